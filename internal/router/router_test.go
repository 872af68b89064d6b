package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/homepoker/internal/events"
	"github.com/lox/homepoker/internal/gameid"
	"github.com/lox/homepoker/internal/handhistory"
	"github.com/lox/homepoker/internal/protocol"
	"github.com/lox/homepoker/internal/randutil"
	"github.com/lox/homepoker/internal/table"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	testTable     = "friday"
	testTimeBank  = 30 * time.Second
	testHandDelay = 3 * time.Second
)

type fakeConn struct {
	id     string
	player string

	mu     sync.Mutex
	frames []protocol.Envelope
	fail   bool
}

func (c *fakeConn) ID() string       { return c.id }
func (c *fakeConn) PlayerID() string { return c.player }

func (c *fakeConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("connection closed")
	}
	var env protocol.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return err
	}
	c.frames = append(c.frames, env)
	return nil
}

func (c *fakeConn) ofType(t protocol.Type) []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []protocol.Envelope
	for _, f := range c.frames {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

// payload decodes the latest frame of type t into v.
func (c *fakeConn) payload(t *testing.T, typ protocol.Type, v any) {
	t.Helper()
	frames := c.ofType(typ)
	require.NotEmpty(t, frames, "no %s frame for %s", typ, c.player)
	require.NoError(t, json.Unmarshal(frames[len(frames)-1].Payload, v))
}

type sinkRecorder struct {
	mu      sync.Mutex
	entries []*handhistory.Entry
}

func (s *sinkRecorder) Record(e *handhistory.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

func (s *sinkRecorder) all() []*handhistory.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*handhistory.Entry(nil), s.entries...)
}

type harness struct {
	t       *testing.T
	ctx     context.Context
	router  *Router
	clock   *quartz.Mock
	history *sinkRecorder
	events  *events.Memory
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		clock:   quartz.NewMock(t),
		history: &sinkRecorder{},
		events:  &events.Memory{},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	h.ctx = ctx

	base := []Option{
		WithClock(h.clock),
		WithTimeBank(testTimeBank),
		WithHandDelay(testHandDelay),
		WithHistory(h.history),
		WithPublisher(h.events),
		WithTableOptions(table.WithRand(randutil.New(7))),
	}
	h.router = New(zerolog.Nop(), append(base, opts...)...)
	t.Cleanup(func() { _ = h.router.Close() })

	_, err := h.router.CreateTable(testTable, table.Config{SmallBlind: 1, BigBlind: 2, MaxSeats: 6, MinBuyIn: 40, MaxBuyIn: 400})
	require.NoError(t, err)
	return h
}

func (h *harness) connect(id, player string) *fakeConn {
	h.t.Helper()
	c := &fakeConn{id: id, player: player}
	require.NoError(h.t, h.router.Connect(c))
	return c
}

func (h *harness) submit(c *fakeConn, msg protocol.Inbound) error {
	return h.router.Submit(h.ctx, c.id, msg)
}

func (h *harness) join(c *fakeConn, seat, buyIn int) {
	h.t.Helper()
	require.NoError(h.t, h.submit(c, protocol.JoinRoom{TableID: testTable, Seat: seat, BuyIn: buyIn}))
}

// advance moves the clock and waits until the table has handled whatever
// the fired timers queued.
func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	h.clock.Advance(d).MustWait(h.ctx)
	h.state("")
}

func (h *harness) state(player string) table.Snapshot {
	h.t.Helper()
	snap, err := h.router.GameState(h.ctx, testTable, player)
	require.NoError(h.t, err)
	return snap
}

// seatTwo starts a heads-up hand: alice on the button in seat 1, bob in
// the big blind in seat 2.
func (h *harness) seatTwo() (alice, bob *fakeConn) {
	h.t.Helper()
	alice = h.connect("c-alice", "alice")
	bob = h.connect("c-bob", "bob")
	h.join(alice, 1, 200)
	h.join(bob, 2, 200)
	h.advance(testHandDelay)
	snap := h.state("alice")
	require.Equal(h.t, table.StatusPreflop, snap.Status)
	require.Equal(h.t, 1, snap.ActingSeat)
	return alice, bob
}

func seatOf(snap table.Snapshot, player string) (table.SeatView, bool) {
	for _, s := range snap.Seats {
		if s.PlayerID == player {
			return s, true
		}
	}
	return table.SeatView{}, false
}

func TestJoinSendsRoomJoinedAndState(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("c1", "alice")
	h.join(alice, 0, 100)

	var joined protocol.RoomJoined
	alice.payload(t, protocol.TypeRoomJoined, &joined)
	assert.Equal(t, testTable, joined.TableID)
	assert.Equal(t, 1, joined.Seat, "first free seat")
	assert.Equal(t, 100, joined.State.Seats[0].Stack)
	assert.NotEmpty(t, alice.ofType(protocol.TypeGameStateUpdate))

	bob := h.connect("c2", "bob")
	h.join(bob, 4, 100)
	var seated protocol.SeatUpdate
	alice.payload(t, protocol.TypePlayerJoined, &seated)
	assert.Equal(t, "bob", seated.PlayerID)
	assert.Equal(t, 4, seated.Seat)
}

func TestJoinRejections(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("c1", "alice")
	bob := h.connect("c2", "bob")
	h.join(alice, 1, 100)

	tests := []struct {
		name string
		msg  protocol.JoinRoom
		code string
		is   error
	}{
		{"unknown table", protocol.JoinRoom{TableID: "nope", BuyIn: 100}, protocol.CodeNotFound, nil},
		{"no buy-in", protocol.JoinRoom{TableID: testTable}, protocol.CodeRejected, ErrBuyInRequired},
		{"seat taken", protocol.JoinRoom{TableID: testTable, Seat: 1, BuyIn: 100}, protocol.CodeRejected, table.ErrSeatTaken},
		{"buy-in too small", protocol.JoinRoom{TableID: testTable, Seat: 2, BuyIn: 10}, protocol.CodeRejected, table.ErrInvalidBuyIn},
		{"seat out of range", protocol.JoinRoom{TableID: testTable, Seat: 9, BuyIn: 100}, protocol.CodeRejected, table.ErrSeatOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.submit(bob, tt.msg)
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
			var e protocol.Error
			bob.payload(t, protocol.TypeError, &e)
			assert.Equal(t, tt.code, e.Code)
		})
	}
	assert.Empty(t, alice.ofType(protocol.TypeError), "errors go to the sender only")
}

func TestHandStartsAfterDelay(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.seatTwo()

	for _, c := range []*fakeConn{alice, bob} {
		var started protocol.NewHandStarted
		c.payload(t, protocol.TypeNewHandStarted, &started)
		assert.Equal(t, 1, started.HandNumber)
		assert.Equal(t, 1, started.DealerSeat)

		holes := c.ofType(protocol.TypeHoleCards)
		require.Len(t, holes, 1, "only the owner's hole cards")
		var cards protocol.HoleCards
		require.NoError(t, json.Unmarshal(holes[0].Payload, &cards))
		want, _ := seatOf(h.state(c.player), c.player)
		assert.Equal(t, want.Number, cards.Seat)
		assert.Len(t, cards.Cards, 2)
	}

	assert.Contains(t, h.events.Types(), string(protocol.TypeNewHandStarted))
	assert.NotContains(t, h.events.Types(), string(protocol.TypeHoleCards))

	snap := h.state("alice")
	assert.Equal(t, []table.ActionType{table.ActionFold, table.ActionCall, table.ActionRaise, table.ActionAllIn}, snap.LegalActions)
	assert.Empty(t, h.state("bob").LegalActions, "bob is not acting")
}

func TestActionsAreBroadcastAndIllegalOnesRejected(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.seatTwo()

	err := h.submit(bob, protocol.PlayerAction{TableID: testTable, Action: table.ActionCheck})
	require.Error(t, err)
	assert.True(t, table.IsIllegalAction(err))
	var e protocol.Error
	bob.payload(t, protocol.TypeError, &e)
	assert.Equal(t, protocol.CodeIllegalAction, e.Code)
	assert.Empty(t, alice.ofType(protocol.TypeError))

	require.NoError(t, h.submit(alice, protocol.PlayerAction{TableID: testTable, Action: table.ActionRaise, Amount: 6}))
	for _, c := range []*fakeConn{alice, bob} {
		var taken protocol.ActionTaken
		c.payload(t, protocol.TypePlayerAction, &taken)
		assert.Equal(t, "alice", taken.PlayerID)
		assert.Equal(t, table.ActionRaise, taken.Type)
		assert.Equal(t, 6, taken.StreetBet)
	}
	assert.Equal(t, 2, h.state("bob").ActingSeat)

	observer := h.connect("c3", "carol")
	err = h.submit(observer, protocol.PlayerAction{TableID: testTable, Action: table.ActionFold})
	assert.ErrorIs(t, err, ErrNotSeated)
}

func chipsAtTable(snap table.Snapshot) int {
	total := 0
	for _, s := range snap.Seats {
		total += s.Stack + s.Contribution
	}
	return total
}

func TestConcurrentSubmitsAreSerialized(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.seatTwo()

	var wg sync.WaitGroup
	for range 100 {
		for _, c := range []*fakeConn{alice, bob} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				// Most of these are out of turn and get rejected.
				_ = h.router.Submit(h.ctx, c.id, protocol.PlayerAction{TableID: testTable, Action: table.ActionCall})
				_ = h.router.Submit(h.ctx, c.id, protocol.PlayerAction{TableID: testTable, Action: table.ActionCheck})
				snap, err := h.router.GameState(h.ctx, testTable, c.player)
				if assert.NoError(t, err) {
					assert.Equal(t, 400, chipsAtTable(snap), "snapshot taken mid-action")
				}
			}()
		}
	}
	wg.Wait()

	snap := h.state("")
	assert.Equal(t, 400, chipsAtTable(snap))
	for _, e := range h.history.all() {
		net := 0
		for _, p := range e.Players {
			net += p.NetAmount
		}
		assert.Zero(t, net, "hand %d is not zero-sum", e.HandNumber)
	}
}

func TestTimeBankFoldsFacingABet(t *testing.T) {
	h := newHarness(t)
	h.seatTwo()

	h.advance(testTimeBank - time.Second)
	assert.Equal(t, 1, h.state("").ActingSeat, "not expired yet")

	h.advance(time.Second)
	snap := h.state("")
	assert.Equal(t, table.StatusWaiting, snap.Status)
	bob, _ := seatOf(snap, "bob")
	assert.Equal(t, 201, bob.Stack)

	entries := h.history.all()
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].HandNumber)
	last := entries[0].Actions[len(entries[0].Actions)-1]
	assert.Equal(t, table.ActionFold, last.Action)
	assert.True(t, last.Timeout)

	// The next hand follows after the hand delay.
	h.advance(testHandDelay)
	assert.Equal(t, 2, h.state("").HandNumber)
}

func TestTimeBankIsRearmedForEachTurn(t *testing.T) {
	h := newHarness(t)
	alice, _ := h.seatTwo()

	h.advance(20 * time.Second)
	require.NoError(t, h.submit(alice, protocol.PlayerAction{TableID: testTable, Action: table.ActionCall}))

	// Bob's clock starts at his turn, not at alice's.
	h.advance(20 * time.Second)
	snap := h.state("")
	assert.Equal(t, table.StatusPreflop, snap.Status)
	assert.Equal(t, 2, snap.ActingSeat)

	// Bob can check, so the time bank checks for him.
	h.advance(10 * time.Second)
	assert.Equal(t, table.StatusFlop, h.state("").Status)
}

func TestDisconnectSitsOutAndActsForSeat(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.seatTwo()

	h.router.Disconnect(bob.id)
	var left protocol.SeatUpdate
	alice.payload(t, protocol.TypePlayerLeft, &left)
	assert.Equal(t, "bob", left.PlayerID)
	assert.Equal(t, "disconnected", left.Reason)
	assert.True(t, left.SittingOut)

	snap := h.state("alice")
	view, ok := seatOf(snap, "bob")
	require.True(t, ok, "disconnecting keeps the seat")
	assert.True(t, view.SittingOut)
	assert.Equal(t, 2, view.Contribution, "committed blind stays in the pot")

	// Once the action reaches bob he folds without waiting for the time bank.
	require.NoError(t, h.submit(alice, protocol.PlayerAction{TableID: testTable, Action: table.ActionRaise, Amount: 6}))
	snap = h.state("alice")
	assert.Equal(t, table.StatusWaiting, snap.Status)
	view, _ = seatOf(snap, "alice")
	assert.Equal(t, 202, view.Stack)
	require.Len(t, h.history.all(), 1)

	// Rejoining sits bob back in without a new buy-in.
	again := h.connect("c-bob-2", "bob")
	require.NoError(t, h.submit(again, protocol.JoinRoom{TableID: testTable}))
	var joined protocol.RoomJoined
	again.payload(t, protocol.TypeRoomJoined, &joined)
	assert.Equal(t, 2, joined.Seat)
	view, _ = seatOf(h.state("bob"), "bob")
	assert.False(t, view.SittingOut)
	assert.Equal(t, 198, view.Stack)
}

func TestDisconnectWithAnotherConnectionKeepsPlaying(t *testing.T) {
	h := newHarness(t)
	_, bob := h.seatTwo()
	tab := h.connect("c-bob-tab", "bob")
	require.NoError(t, h.submit(tab, protocol.JoinRoom{TableID: testTable}))

	h.router.Disconnect(bob.id)
	view, _ := seatOf(h.state("bob"), "bob")
	assert.False(t, view.SittingOut)
}

func TestLeaveDuringHandFoldsAndFreesSeatAfterwards(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.seatTwo()

	require.NoError(t, h.submit(alice, protocol.LeaveRoom{TableID: testTable}))
	snap := h.state("bob")
	assert.Equal(t, table.StatusWaiting, snap.Status, "alice was acting so her hand is folded")
	_, seated := seatOf(snap, "alice")
	assert.False(t, seated)

	var leaving protocol.SeatUpdate
	bob.payload(t, protocol.TypeSittingOut, &leaving)
	assert.Equal(t, "leaving", leaving.Reason)
	var left protocol.SeatUpdate
	bob.payload(t, protocol.TypePlayerLeft, &left)
	assert.Equal(t, "alice", left.PlayerID)
	assert.Equal(t, 199, left.Stack)

	// alice no longer receives table traffic
	before := len(alice.ofType(protocol.TypeChatMessage))
	require.NoError(t, h.submit(bob, protocol.ChatMessage{TableID: testTable, Message: "gg"}))
	assert.Len(t, alice.ofType(protocol.TypeChatMessage), before)

	err := h.submit(alice, protocol.LeaveRoom{TableID: testTable})
	assert.ErrorIs(t, err, ErrNotSubscribed)
}

func TestLeaveBetweenHandsFreesSeatImmediately(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("c1", "alice")
	h.join(alice, 3, 100)
	require.NoError(t, h.submit(alice, protocol.LeaveRoom{TableID: testTable}))
	assert.Empty(t, h.state("").Seats)
}

func TestChat(t *testing.T) {
	h := newHarness(t, WithChatLimit(2))
	alice := h.connect("c1", "alice")
	bob := h.connect("c2", "bob")

	err := h.submit(alice, protocol.ChatMessage{TableID: testTable, Message: "hello?"})
	assert.ErrorIs(t, err, ErrNotSubscribed)

	h.join(alice, 1, 100)
	h.join(bob, 2, 100)
	for _, line := range []string{"one", "two", "three"} {
		require.NoError(t, h.submit(alice, protocol.ChatMessage{TableID: testTable, Message: line}))
	}

	var got protocol.Chat
	bob.payload(t, protocol.TypeChatMessage, &got)
	assert.Equal(t, "alice", got.PlayerID)
	assert.Equal(t, "three", got.Message)

	history, err := h.router.ChatHistory(h.ctx, testTable)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "two", history[0].Message)
	assert.Equal(t, "three", history[1].Message)
}

func TestPing(t *testing.T) {
	h := newHarness(t)
	c := h.connect("c1", "alice")
	require.NoError(t, h.submit(c, protocol.Ping{Nonce: "n-1"}))
	var pong protocol.Pong
	c.payload(t, protocol.TypePong, &pong)
	assert.Equal(t, "n-1", pong.Nonce)
}

func TestFailingConnectionIsDropped(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("c1", "alice")
	bob := h.connect("c2", "bob")
	h.join(alice, 1, 100)
	h.join(bob, 2, 100)

	alice.mu.Lock()
	alice.fail = true
	alice.mu.Unlock()
	require.NoError(t, h.submit(bob, protocol.ChatMessage{TableID: testTable, Message: "still there?"}))

	alice.mu.Lock()
	alice.fail = false
	alice.mu.Unlock()
	require.NoError(t, h.submit(bob, protocol.ChatMessage{TableID: testTable, Message: "hello"}))
	for _, f := range alice.ofType(protocol.TypeChatMessage) {
		assert.NotContains(t, string(f.Payload), "hello")
	}
}

func TestUnknownConnection(t *testing.T) {
	h := newHarness(t)
	err := h.router.Submit(h.ctx, "ghost", protocol.Ping{})
	assert.True(t, IsNotFound(err))
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "connection", nf.Kind)
}

func TestCreateTable(t *testing.T) {
	h := newHarness(t)
	_, err := h.router.CreateTable(testTable, table.Config{SmallBlind: 1, BigBlind: 2, MaxSeats: 6})
	assert.ErrorIs(t, err, ErrTableExists)

	_, err = h.router.CreateTable("bad", table.Config{SmallBlind: 0, BigBlind: 2, MaxSeats: 6})
	assert.Error(t, err)

	id, err := h.router.CreateTable("", table.Config{SmallBlind: 5, BigBlind: 10, MaxSeats: 9})
	require.NoError(t, err)
	assert.Len(t, id, 26)

	tables := h.router.Tables()
	require.Len(t, tables, 2)
	for _, info := range tables {
		assert.NoError(t, gameid.Validate(info.SessionID))
		assert.NotEqual(t, info.ID, info.SessionID, "a session is one run of a table, not the table")
	}
	assert.NotEqual(t, tables[0].SessionID, tables[1].SessionID)
}

func TestClosedRouter(t *testing.T) {
	h := newHarness(t)
	c := h.connect("c1", "alice")
	require.NoError(t, h.router.Close())

	err := h.submit(c, protocol.JoinRoom{TableID: testTable, BuyIn: 100})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = h.router.CreateTable("", table.Config{SmallBlind: 1, BigBlind: 2, MaxSeats: 2})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{&protocol.ProtocolError{Reason: "bad"}, protocol.CodeProtocol},
		{&table.IllegalActionError{Seat: 1, Action: table.ActionCheck, Reason: "facing a bet"}, protocol.CodeIllegalAction},
		{&NotFoundError{Kind: "table", ID: "x"}, protocol.CodeNotFound},
		{ErrBuyInRequired, protocol.CodeRejected},
		{table.ErrHandInProgress, protocol.CodeRejected},
		{errors.New("disk on fire"), protocol.CodeInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, ErrorCode(tt.err), tt.err.Error())
	}
}

func TestChatRing(t *testing.T) {
	r := newChatRing(3)
	assert.Empty(t, r.history())
	for _, m := range []string{"a", "b"} {
		r.add(protocol.Chat{Message: m})
	}
	assert.Equal(t, []string{"a", "b"}, messages(r.history()))
	for _, m := range []string{"c", "d", "e"} {
		r.add(protocol.Chat{Message: m})
	}
	assert.Equal(t, []string{"c", "d", "e"}, messages(r.history()))
}

func messages(lines []protocol.Chat) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Message
	}
	return out
}
