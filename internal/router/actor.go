package router

import (
	"context"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lox/homepoker/internal/events"
	"github.com/lox/homepoker/internal/gameid"
	"github.com/lox/homepoker/internal/handhistory"
	"github.com/lox/homepoker/internal/metrics"
	"github.com/lox/homepoker/internal/protocol"
	"github.com/lox/homepoker/internal/table"
)

const commandBuffer = 64

// turnKey identifies one decision. The time bank only fires for the turn
// it was armed for.
type turnKey struct {
	hand    int
	seat    int
	actions int
}

// tableActor serializes every command for one table on a single goroutine.
// Fields below cmds are only touched from that goroutine.
type tableActor struct {
	id        string
	sessionID string
	cmds      chan func()
	done      chan struct{}

	table     *table.Table
	recorder  *handhistory.Recorder
	subs      map[string]Connection
	chatLog   *chatRing
	actions   int
	turn      turnKey
	turnTimer *quartz.Timer
	nextHand  *quartz.Timer

	clock     quartz.Clock
	timeBank  time.Duration
	handDelay time.Duration
	history   HistorySink
	metrics   *metrics.Metrics
	publisher events.Publisher
	logger    zerolog.Logger
}

func newTableActor(r *Router, id string, cfg table.Config, extra []table.Option) (*tableActor, error) {
	a := &tableActor{
		id:        id,
		sessionID: gameid.Generate(),
		cmds:      make(chan func(), commandBuffer),
		done:      make(chan struct{}),
		subs:      make(map[string]Connection),
		chatLog:   newChatRing(r.chatLimit),
		clock:     r.clock,
		timeBank:  r.timeBank,
		handDelay: r.handDelay,
		history:   r.history,
		metrics:   r.metrics,
		publisher: r.publisher,
		logger:    r.logger.With().Str("table_id", id).Logger(),
	}
	a.recorder = handhistory.NewRecorder(a.sessionID, r.logger, handhistory.OnComplete(a.handRecorded))

	opts := []table.Option{table.WithClock(r.clock), table.WithLogger(r.logger)}
	opts = append(opts, r.tableOpts...)
	opts = append(opts, extra...)
	// The recorder observes first so a completed hand is frozen before
	// clients hear about it.
	opts = append(opts, table.WithObserver(a.recorder), table.WithObserver(a))
	t, err := table.New(id, cfg, opts...)
	if err != nil {
		return nil, err
	}
	a.table = t
	return a, nil
}

func (a *tableActor) run(ctx context.Context) {
	defer close(a.done)
	defer a.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-a.cmds:
			fn()
		}
	}
}

// do runs fn on the actor goroutine and waits for its result.
func (a *tableActor) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case a.cmds <- func() { reply <- fn() }:
	case <-a.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-a.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn without waiting. Timer callbacks use it.
func (a *tableActor) post(fn func()) {
	select {
	case a.cmds <- fn:
	case <-a.done:
	}
}

func (a *tableActor) stopTimers() {
	if a.turnTimer != nil {
		a.turnTimer.Stop()
		a.turnTimer = nil
	}
	if a.nextHand != nil {
		a.nextHand.Stop()
		a.nextHand = nil
	}
}

func (a *tableActor) join(conn Connection, m protocol.JoinRoom) error {
	playerID := conn.PlayerID()
	seat, seated := a.table.SeatOf(playerID)
	if seated {
		s, _ := a.table.Seat(seat)
		if s.SittingOut && !s.Leaving {
			if err := a.table.SetSittingOut(seat, false); err != nil {
				return err
			}
		}
	} else {
		if m.BuyIn <= 0 {
			return ErrBuyInRequired
		}
		seat = m.Seat
		if seat == 0 {
			seat = a.freeSeat()
			if seat == 0 {
				return ErrTableFull
			}
		}
		if err := a.table.SitDown(seat, playerID, m.BuyIn); err != nil {
			return err
		}
		a.logger.Info().Str("player_id", playerID).Int("seat", seat).Int("buy_in", m.BuyIn).Msg("Player seated")
	}

	a.subs[conn.ID()] = conn
	a.sendTo(conn, protocol.TypeRoomJoined, protocol.RoomJoined{
		TableID:  a.id,
		PlayerID: playerID,
		Seat:     seat,
		State:    a.table.Snapshot(seat),
	})
	a.changed()
	return nil
}

func (a *tableActor) freeSeat() int {
	for n := 1; n <= a.table.Config().MaxSeats; n++ {
		if _, taken := a.table.Seat(n); !taken {
			return n
		}
	}
	return 0
}

func (a *tableActor) leave(conn Connection) error {
	_, subscribed := a.subs[conn.ID()]
	seat, seated := a.table.SeatOf(conn.PlayerID())
	if !seated {
		if !subscribed {
			return ErrNotSubscribed
		}
		delete(a.subs, conn.ID())
		return nil
	}

	freed, err := a.table.RequestLeave(seat)
	if err != nil {
		return err
	}
	if !freed {
		s, _ := a.table.Seat(seat)
		a.broadcast(protocol.TypeSittingOut, protocol.SeatUpdate{
			TableID:    a.id,
			Seat:       seat,
			PlayerID:   s.PlayerID,
			Stack:      s.Stack,
			SittingOut: true,
			Reason:     "leaving",
		}, a.clock.Now(), a.table.HandNumber())
	}
	a.logger.Info().Str("player_id", conn.PlayerID()).Int("seat", seat).Bool("immediate", freed).Msg("Player leaving")
	a.changed()
	delete(a.subs, conn.ID())
	return nil
}

func (a *tableActor) act(conn Connection, m protocol.PlayerAction) error {
	seat, ok := a.table.SeatOf(conn.PlayerID())
	if !ok {
		return ErrNotSeated
	}
	err := a.table.Apply(seat, m.TableAction())
	a.metrics.Action(string(m.Action), err == nil)
	if err != nil {
		a.logger.Debug().Err(err).Str("player_id", conn.PlayerID()).Int("seat", seat).Msg("Action rejected")
		return err
	}
	a.changed()
	return nil
}

func (a *tableActor) chat(conn Connection, m protocol.ChatMessage) error {
	if _, ok := a.subs[conn.ID()]; !ok {
		return ErrNotSubscribed
	}
	line := protocol.Chat{
		ID:        uuid.NewString(),
		TableID:   a.id,
		PlayerID:  conn.PlayerID(),
		Message:   m.Message,
		Timestamp: a.clock.Now(),
	}
	a.chatLog.add(line)
	a.metrics.ChatMessage()
	a.broadcast(protocol.TypeChatMessage, line, line.Timestamp, a.table.HandNumber())
	return nil
}

// disconnect drops a connection. The player is sat out only when no other
// connection of theirs is still watching the table.
func (a *tableActor) disconnect(conn Connection) error {
	delete(a.subs, conn.ID())
	playerID := conn.PlayerID()
	for _, other := range a.subs {
		if other.PlayerID() == playerID {
			return nil
		}
	}
	seat, ok := a.table.SeatOf(playerID)
	if !ok {
		return nil
	}
	if err := a.table.SetSittingOut(seat, true); err != nil {
		return err
	}
	s, _ := a.table.Seat(seat)
	a.broadcast(protocol.TypePlayerLeft, protocol.SeatUpdate{
		TableID:    a.id,
		Seat:       seat,
		PlayerID:   playerID,
		Stack:      s.Stack,
		SittingOut: true,
		Reason:     "disconnected",
	}, a.clock.Now(), a.table.HandNumber())
	a.logger.Info().Str("player_id", playerID).Int("seat", seat).Msg("Player disconnected")
	a.changed()
	return nil
}

// changed runs after every accepted mutation: it settles turns owed by
// sitting-out seats, pushes fresh state and rearms the timers.
func (a *tableActor) changed() {
	a.settle()
	a.broadcastState()
	a.armTurnTimer()
	a.scheduleNextHand()
}

// settle takes the default action for acting seats that are sitting out.
func (a *tableActor) settle() {
	for a.table.Status().Betting() {
		seat := a.table.ActingSeat()
		s, ok := a.table.Seat(seat)
		if !ok || !s.SittingOut {
			return
		}
		action, err := a.table.ApplyTimeout(seat)
		if err != nil {
			a.logger.Error().Err(err).Int("seat", seat).Msg("Default action for sitting out seat failed")
			return
		}
		a.logger.Debug().Int("seat", seat).Stringer("action", action).Msg("Acted for sitting out seat")
	}
}

func (a *tableActor) armTurnTimer() {
	key := turnKey{hand: a.table.HandNumber(), seat: a.table.ActingSeat(), actions: a.actions}
	if !a.table.Status().Betting() || key.seat == 0 {
		key = turnKey{}
	}
	if key == a.turn {
		return
	}
	if a.turnTimer != nil {
		a.turnTimer.Stop()
		a.turnTimer = nil
	}
	a.turn = key
	if key.seat == 0 {
		return
	}
	a.turnTimer = a.clock.AfterFunc(a.timeBank, func() {
		a.post(func() { a.expire(key) })
	})
}

// expire plays the default action for a turn whose time bank ran out.
func (a *tableActor) expire(key turnKey) {
	if key != a.turn {
		return
	}
	a.turnTimer = nil
	action, err := a.table.ApplyTimeout(key.seat)
	if err != nil {
		a.logger.Error().Err(err).Int("seat", key.seat).Msg("Timeout action failed")
		return
	}
	a.metrics.TimeBankExpired()
	a.logger.Info().Int("hand", key.hand).Int("seat", key.seat).Stringer("action", action).Msg("Time bank expired")
	a.changed()
}

func (a *tableActor) scheduleNextHand() {
	if a.nextHand != nil || a.table.Status() != table.StatusWaiting || a.table.EligibleSeats() < 2 {
		return
	}
	a.nextHand = a.clock.AfterFunc(a.handDelay, func() {
		a.post(a.startHand)
	})
}

func (a *tableActor) startHand() {
	a.nextHand = nil
	if a.table.Status() != table.StatusWaiting || a.table.EligibleSeats() < 2 {
		return
	}
	if err := a.table.StartHand(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to start hand")
	}
	a.changed()
}

// handRecorded receives each frozen hand from the recorder.
func (a *tableActor) handRecorded(e *handhistory.Entry) {
	a.metrics.HandCompleted(string(e.HandType))
	if a.history != nil {
		a.history.Record(e)
	}
}

// OnTableEvent turns engine events into client frames.
func (a *tableActor) OnTableEvent(e table.Event) {
	var (
		t       protocol.Type
		payload any
	)
	switch e.Type {
	case table.EventHandStarted:
		a.actions = 0
		a.metrics.HandStarted()
		t, payload = protocol.TypeNewHandStarted, protocol.NewHandStarted{TableID: a.id, HandNumber: e.HandNumber, HandStart: *e.Start}

	case table.EventHoleCards:
		a.sendToPlayer(e.PlayerID, protocol.TypeHoleCards, protocol.HoleCards{
			TableID:    a.id,
			HandNumber: e.HandNumber,
			Seat:       e.Seat,
			Cards:      e.Cards,
		}, e.Time)
		return

	case table.EventPlayerAction:
		a.actions++
		t, payload = protocol.TypePlayerAction, protocol.ActionTaken{
			TableID:     a.id,
			HandNumber:  e.HandNumber,
			Seat:        e.Seat,
			PlayerID:    e.PlayerID,
			ActionEvent: *e.Action,
		}

	case table.EventCommunityCards:
		t, payload = protocol.TypeCommunityCards, protocol.CommunityCards{
			TableID:    a.id,
			HandNumber: e.HandNumber,
			Street:     e.Street,
			Cards:      e.Cards,
			Board:      e.Board,
		}

	case table.EventShowdown:
		t, payload = protocol.TypeShowdown, protocol.Showdown{TableID: a.id, HandNumber: e.HandNumber, ShowdownEvent: *e.Showdown}

	case table.EventHandCompleted:
		t, payload = protocol.TypeHandCompleted, protocol.HandCompleted{TableID: a.id, HandNumber: e.HandNumber, HandResult: *e.Result}

	case table.EventHandAborted:
		a.metrics.HandAborted()
		t, payload = protocol.TypeHandAborted, protocol.HandAborted{TableID: a.id, HandNumber: e.HandNumber, Reason: e.Reason}

	case table.EventSeatChanged:
		update := protocol.SeatUpdate{TableID: a.id, Seat: e.Seat, PlayerID: e.PlayerID, Stack: e.Amount, Reason: e.Reason}
		switch e.Reason {
		case "sat_down":
			t = protocol.TypePlayerJoined
		case "stood_up":
			t = protocol.TypePlayerLeft
		default:
			t = protocol.TypeSittingOut
			update.SittingOut = e.Reason == "sitting_out"
		}
		payload = update

	default:
		// Uncalled bets show up in the next state update.
		return
	}
	a.broadcast(t, payload, e.Time, e.HandNumber)
}

// broadcast sends a frame to every subscriber and mirrors it to the
// event publisher.
func (a *tableActor) broadcast(t protocol.Type, payload any, at time.Time, hand int) {
	frame, err := protocol.Encode(t, payload, at)
	if err != nil {
		a.logger.Error().Err(err).Str("type", string(t)).Msg("Failed to encode frame")
		return
	}
	for id, conn := range a.subs {
		a.deliver(id, conn, frame)
	}
	if err := a.publisher.Publish(events.Event{TableID: a.id, Type: string(t), HandNumber: hand, Payload: payload, Time: at}); err != nil {
		a.logger.Warn().Err(err).Str("type", string(t)).Msg("Failed to publish event")
	}
}

func (a *tableActor) sendToPlayer(playerID string, t protocol.Type, payload any, at time.Time) {
	frame, err := protocol.Encode(t, payload, at)
	if err != nil {
		a.logger.Error().Err(err).Str("type", string(t)).Msg("Failed to encode frame")
		return
	}
	for id, conn := range a.subs {
		if conn.PlayerID() == playerID {
			a.deliver(id, conn, frame)
		}
	}
}

func (a *tableActor) sendTo(conn Connection, t protocol.Type, payload any) {
	frame, err := protocol.Encode(t, payload, a.clock.Now())
	if err != nil {
		a.logger.Error().Err(err).Str("type", string(t)).Msg("Failed to encode frame")
		return
	}
	a.deliver(conn.ID(), conn, frame)
}

// deliver sends one frame. A connection that cannot take it is dropped
// from the table; its transport is responsible for disconnecting.
func (a *tableActor) deliver(id string, conn Connection, frame []byte) {
	if err := conn.Send(frame); err != nil {
		a.logger.Warn().Err(err).Str("conn_id", id).Str("player_id", conn.PlayerID()).Msg("Dropping subscriber")
		delete(a.subs, id)
	}
}

// broadcastState sends every subscriber its own view of the table.
func (a *tableActor) broadcastState() {
	now := a.clock.Now()
	frames := make(map[int][]byte)
	for id, conn := range a.subs {
		seat, _ := a.table.SeatOf(conn.PlayerID())
		frame, ok := frames[seat]
		if !ok {
			var err error
			frame, err = protocol.Encode(protocol.TypeGameStateUpdate, a.table.Snapshot(seat), now)
			if err != nil {
				a.logger.Error().Err(err).Msg("Failed to encode state")
				return
			}
			frames[seat] = frame
		}
		a.deliver(id, conn, frame)
	}
}
