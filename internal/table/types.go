package table

import (
	"errors"
	"fmt"

	"github.com/lox/homepoker/poker"
)

// Status is the table's position in the hand lifecycle.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPreflop  Status = "preflop"
	StatusFlop     Status = "flop"
	StatusTurn     Status = "turn"
	StatusRiver    Status = "river"
	StatusShowdown Status = "showdown"
)

// Betting reports whether seats can act in this status.
func (s Status) Betting() bool {
	switch s {
	case StatusPreflop, StatusFlop, StatusTurn, StatusRiver:
		return true
	}
	return false
}

// ActionType names a player decision or a forced bet.
type ActionType string

const (
	ActionFold  ActionType = "fold"
	ActionCheck ActionType = "check"
	ActionCall  ActionType = "call"
	ActionBet   ActionType = "bet"
	ActionRaise ActionType = "raise"
	ActionAllIn ActionType = "all_in"

	// Forced bets never come from players; the table posts them.
	ActionPostSmallBlind ActionType = "post_small_blind"
	ActionPostBigBlind   ActionType = "post_big_blind"
)

var playerActions = map[ActionType]bool{
	ActionFold: true, ActionCheck: true, ActionCall: true,
	ActionBet: true, ActionRaise: true, ActionAllIn: true,
}

// ParseActionType accepts only the decisions a player may submit.
func ParseActionType(s string) (ActionType, error) {
	if a := ActionType(s); playerActions[a] {
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Aggressive reports whether the action puts in chips beyond a call.
func (a ActionType) Aggressive() bool { return a == ActionBet || a == ActionRaise }

// Action is a player decision. Amount is the total street bet after a bet or
// raise ("raise to") and is ignored for every other action.
type Action struct {
	Type   ActionType `json:"action"`
	Amount int        `json:"amount,omitempty"`
}

func (a Action) String() string {
	if a.Type.Aggressive() {
		return fmt.Sprintf("%s %d", a.Type, a.Amount)
	}
	return string(a.Type)
}

// Seat is one position at the table. Stack never goes negative; every chip a
// seat commits moves from Stack into StreetBet and Contribution together.
type Seat struct {
	Number       int          `json:"seatNumber"`
	PlayerID     string       `json:"playerId"`
	Stack        int          `json:"stack"`
	HoleCards    []poker.Card `json:"-"`
	StreetBet    int          `json:"currentStreetBet"`
	Contribution int          `json:"totalHandContribution"`
	Folded       bool         `json:"folded"`
	AllIn        bool         `json:"allIn"`
	SittingOut   bool         `json:"sittingOut"`
	InHand       bool         `json:"inHand"`
	Leaving      bool         `json:"leaving,omitempty"`
}

func (s *Seat) live() bool   { return s.InHand && !s.Folded }
func (s *Seat) active() bool { return s.InHand && !s.Folded && !s.AllIn }

func (s *Seat) eligibleForHand() bool {
	return s.Stack > 0 && !s.SittingOut && !s.Leaving
}

// Pot is the main pot or a side pot. Eligible lists the seat numbers that can
// win it.
type Pot struct {
	Amount   int   `json:"amount"`
	Eligible []int `json:"eligibleSeats"`
}

// Config holds per-table stakes and limits.
type Config struct {
	SmallBlind int
	BigBlind   int
	MaxSeats   int
	MinBuyIn   int
	MaxBuyIn   int
}

// Validate checks stakes and seat count.
func (c Config) Validate() error {
	switch {
	case c.SmallBlind <= 0:
		return errors.New("small blind must be positive")
	case c.BigBlind < c.SmallBlind:
		return errors.New("big blind must be at least the small blind")
	case c.MaxSeats < 2 || c.MaxSeats > 10:
		return fmt.Errorf("max seats must be between 2 and 10, got %d", c.MaxSeats)
	case c.MinBuyIn < 0 || c.MaxBuyIn < 0:
		return errors.New("buy-in limits cannot be negative")
	case c.MaxBuyIn > 0 && c.MinBuyIn > c.MaxBuyIn:
		return errors.New("minimum buy-in exceeds maximum buy-in")
	}
	return nil
}
