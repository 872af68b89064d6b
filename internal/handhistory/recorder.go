package handhistory

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lox/homepoker/internal/table"
	"github.com/lox/homepoker/poker"
)

var (
	// ErrNoHand is returned when an event arrives outside a recorded hand.
	ErrNoHand = errors.New("handhistory: no hand in progress")
	// ErrHandOpen is returned when a hand starts before the previous one closed.
	ErrHandOpen = errors.New("handhistory: previous hand still open")
	// ErrUnknownSeat is returned for actions from a seat not dealt in.
	ErrUnknownSeat = errors.New("handhistory: seat not dealt into hand")
)

// Recorder builds one Entry per hand from a table's event stream. Attach it
// with table.WithObserver; it never touches the table itself.
type Recorder struct {
	sessionID  string
	logger     zerolog.Logger
	newID      func() string
	onComplete func(*Entry)

	mu        sync.Mutex
	current   *handState
	completed int
}

type handState struct {
	entry  *Entry
	bySeat map[int]int // seat -> index into entry.Players

	raises     int // voluntary preflop raises so far
	aggressor  int // seat of the last preflop raiser
	flopOpened bool
	sawAllIn   bool
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithIDGenerator replaces the uuid hand ids, for tests.
func WithIDGenerator(fn func() string) RecorderOption {
	return func(r *Recorder) { r.newID = fn }
}

// OnComplete registers a callback that receives a copy of every completed
// entry. It runs on the goroutine that delivered the final event.
func OnComplete(fn func(*Entry)) RecorderOption {
	return func(r *Recorder) { r.onComplete = fn }
}

// NewRecorder records hands for one session, which is one table's lifetime.
func NewRecorder(sessionID string, logger zerolog.Logger, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		sessionID: sessionID,
		logger:    logger.With().Str("component", "handhistory").Str("session_id", sessionID).Logger(),
		newID:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnTableEvent implements table.Observer.
func (r *Recorder) OnTableEvent(e table.Event) {
	var err error
	switch e.Type {
	case table.EventHandStarted:
		err = r.StartHand(e.HandNumber, *e.Start, e.Time)
	case table.EventHoleCards:
		err = r.RecordHoleCards(e.Seat, e.Cards)
	case table.EventPlayerAction:
		err = r.RecordAction(e.Seat, *e.Action, e.Time)
	case table.EventUncalledBet:
		err = r.RecordUncalledBet(e.Seat, e.Amount, e.Street)
	case table.EventCommunityCards:
		err = r.RecordCommunityCards(e.Street, e.Cards)
	case table.EventHandCompleted:
		_, err = r.CompleteHand(*e.Result, e.Time)
	case table.EventHandAborted:
		r.AbortHand(e.Reason)
	}
	if err != nil {
		r.logger.Error().Err(err).Str("event", string(e.Type)).Int("hand", e.HandNumber).Msg("Dropping table event")
	}
}

// StartHand snapshots the seats, stacks, positions and blinds of a new hand.
func (r *Recorder) StartHand(handNumber int, start table.HandStart, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		return ErrHandOpen
	}

	entry := &Entry{
		HandID:         r.newID(),
		SessionID:      r.sessionID,
		HandNumber:     handNumber,
		StartedAt:      at,
		SmallBlind:     start.SmallBlind,
		BigBlind:       start.BigBlind,
		DealerSeat:     start.DealerSeat,
		SmallBlindSeat: start.SmallBlindSeat,
		BigBlindSeat:   start.BigBlindSeat,
		Players:        make([]Player, 0, len(start.Players)),
	}
	bySeat := make(map[int]int, len(start.Players))
	for _, p := range start.Players {
		bySeat[p.Seat] = len(entry.Players)
		entry.Players = append(entry.Players, Player{
			PlayerID:      p.PlayerID,
			Seat:          p.Seat,
			Position:      p.Position,
			StartingStack: p.Stack,
			EndingStack:   p.Stack,
		})
	}
	r.current = &handState{entry: entry, bySeat: bySeat}
	return nil
}

// RecordHoleCards stores a seat's private cards.
func (r *Recorder) RecordHoleCards(seat int, cards []poker.Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.player(seat)
	if err != nil {
		return err
	}
	p.HoleCards = slices.Clone(cards)
	return nil
}

// RecordAction appends a validated action (or blind post) and updates the
// acting player's flags.
func (r *Recorder) RecordAction(seat int, a table.ActionEvent, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.player(seat)
	if err != nil {
		return err
	}
	h := r.current
	raising := isRaise(a)
	h.entry.Actions = append(h.entry.Actions, Action{
		SequenceNumber: len(h.entry.Actions) + 1,
		PlayerID:       p.PlayerID,
		Seat:           seat,
		Action:         a.Type,
		Amount:         a.Amount,
		StreetBet:      a.StreetBet,
		BettingRound:   a.Street,
		PotSizeAfter:   a.Pot,
		FacingBet:      a.FacingBet,
		IsAllIn:        a.AllIn,
		Raising:        raising,
		Timeout:        a.Timeout,
		Timestamp:      at,
	})
	if a.AllIn {
		h.sawAllIn = true
	}
	if a.Type == table.ActionPostSmallBlind || a.Type == table.ActionPostBigBlind {
		return nil
	}

	switch a.Type {
	case table.ActionFold:
		p.Folded = true
		p.FoldedOn = a.Street
	case table.ActionCall:
		p.PassiveActions++
	case table.ActionAllIn:
		if !raising {
			p.PassiveActions++
		}
	}
	if raising {
		p.AggressiveActions++
	}

	switch a.Street {
	case table.StatusPreflop:
		if h.raises > 0 && h.aggressor != seat {
			p.ThreeBetChance = true
		}
		if a.Type != table.ActionFold && a.Type != table.ActionCheck && a.Amount > 0 {
			p.VPIP = true
		}
		if raising {
			p.PFR = true
			if h.raises > 0 {
				p.ThreeBet = true
			}
			h.raises++
			h.aggressor = seat
		}
	case table.StatusFlop:
		if !h.flopOpened && seat == h.aggressor {
			p.CBetChance = true
			if raising {
				p.CBet = true
			}
		}
		if raising {
			h.flopOpened = true
		}
	}
	return nil
}

// isRaise reports whether the action lifted the street's bet.
func isRaise(a table.ActionEvent) bool {
	switch a.Type {
	case table.ActionBet, table.ActionRaise:
		return true
	case table.ActionAllIn:
		before := a.StreetBet - a.Amount
		return a.StreetBet > before+a.FacingBet
	}
	return false
}

// RecordUncalledBet notes chips returned to the last bettor.
func (r *Recorder) RecordUncalledBet(seat, amount int, street table.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.player(seat)
	if err != nil {
		return err
	}
	r.current.entry.Returned = append(r.current.entry.Returned, Refund{
		PlayerID: p.PlayerID,
		Seat:     seat,
		Amount:   amount,
		Street:   street,
	})
	return nil
}

// RecordCommunityCards appends dealt board cards. Dealing the flop marks
// every player still holding cards as having seen it.
func (r *Recorder) RecordCommunityCards(street table.Status, cards []poker.Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return ErrNoHand
	}
	e := r.current.entry
	e.Board = append(e.Board, cards...)
	if street == table.StatusFlop {
		for i := range e.Players {
			if !e.Players[i].Folded {
				e.Players[i].SawFlop = true
			}
		}
	}
	return nil
}

// CompleteHand freezes the hand: results, net amounts and the hand type.
// The returned entry is a copy.
func (r *Recorder) CompleteHand(result table.HandResult, at time.Time) (*Entry, error) {
	r.mu.Lock()
	h := r.current
	if h == nil {
		r.mu.Unlock()
		return nil, ErrNoHand
	}
	r.current = nil
	e := h.entry

	e.CompletedAt = at
	e.Board = slices.Clone(result.Board)
	e.Showdown = result.Showdown
	net := 0
	for _, sr := range result.Seats {
		idx, ok := h.bySeat[sr.Seat]
		if !ok {
			r.logger.Error().Int("seat", sr.Seat).Msg("Result for seat that was not dealt in")
			continue
		}
		p := &e.Players[idx]
		p.Contributed = sr.Contributed
		p.Winnings = sr.Won
		p.NetAmount = sr.Net()
		p.EndingStack = sr.EndingStack
		p.Folded = sr.Folded
		p.WentToShowdown = sr.ShowedDown
		p.WonAtShowdown = sr.ShowedDown && sr.Won > 0
		net += p.NetAmount
	}
	for _, pot := range result.Pots {
		out := Pot{Amount: pot.Amount}
		for _, a := range pot.Awards {
			award := Award{Seat: a.Seat, Amount: a.Amount}
			if idx, ok := h.bySeat[a.Seat]; ok {
				award.PlayerID = e.Players[idx].PlayerID
			}
			out.Winners = append(out.Winners, award)
		}
		e.Pots = append(e.Pots, out)
	}

	switch {
	case len(e.Players) == 2:
		e.HandType = HandTypeHeadsUp
	case h.sawAllIn:
		e.HandType = HandTypeAllIn
	default:
		e.HandType = HandTypeRegular
	}
	r.completed++
	out := e.Clone()
	onComplete := r.onComplete
	r.mu.Unlock()

	if net != 0 {
		r.logger.Error().Str("hand_id", e.HandID).Int("net", net).Msg("Hand is not zero-sum")
	}
	r.logger.Debug().Str("hand_id", e.HandID).Int("hand", e.HandNumber).Str("type", string(e.HandType)).Msg("Hand recorded")
	if onComplete != nil {
		onComplete(e.Clone())
	}
	return out, nil
}

// AbortHand discards the open hand.
func (r *Recorder) AbortHand(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return
	}
	r.logger.Warn().Str("hand_id", r.current.entry.HandID).Str("reason", reason).Msg("Discarding aborted hand")
	r.current = nil
}

// Current returns a copy of the hand being recorded, if any.
func (r *Recorder) Current() (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil, false
	}
	return r.current.entry.Clone(), true
}

// Completed counts the hands this recorder has frozen.
func (r *Recorder) Completed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}

func (r *Recorder) player(seat int) (*Player, error) {
	if r.current == nil {
		return nil, ErrNoHand
	}
	idx, ok := r.current.bySeat[seat]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSeat, seat)
	}
	return &r.current.entry.Players[idx], nil
}
