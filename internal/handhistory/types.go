// Package handhistory turns the table event stream into frozen, replayable
// hand records and archives them as PHH session files.
package handhistory

import (
	"slices"
	"time"

	"github.com/lox/homepoker/internal/table"
	"github.com/lox/homepoker/poker"
)

// HandType classifies a completed hand.
type HandType string

const (
	HandTypeHeadsUp HandType = "heads_up"
	HandTypeAllIn   HandType = "all_in"
	HandTypeRegular HandType = "regular"
)

// Entry is one completed hand. Entries leave the recorder frozen; callers
// always receive their own copy.
type Entry struct {
	HandID         string       `json:"handId"`
	SessionID      string       `json:"sessionId"`
	HandNumber     int          `json:"handNumber"`
	StartedAt      time.Time    `json:"startedAt"`
	CompletedAt    time.Time    `json:"completedAt"`
	SmallBlind     int          `json:"smallBlind"`
	BigBlind       int          `json:"bigBlind"`
	DealerSeat     int          `json:"dealerSeat"`
	SmallBlindSeat int          `json:"smallBlindSeat"`
	BigBlindSeat   int          `json:"bigBlindSeat"`
	Players        []Player     `json:"players"`
	Actions        []Action     `json:"actions"`
	Board          []poker.Card `json:"board"`
	Pots           []Pot        `json:"pots"`
	Returned       []Refund     `json:"uncalledBets,omitempty"`
	Showdown       bool         `json:"showdown"`
	HandType       HandType     `json:"handType"`
}

// Player is one seat's view of a hand with the derived per-hand flags.
type Player struct {
	PlayerID      string       `json:"playerId"`
	Seat          int          `json:"seatNumber"`
	Position      string       `json:"position"`
	StartingStack int          `json:"startingStack"`
	EndingStack   int          `json:"endingStack"`
	HoleCards     []poker.Card `json:"holeCards,omitempty"`
	Contributed   int          `json:"contributed"`
	Winnings      int          `json:"winnings"`
	NetAmount     int          `json:"netAmount"`

	VPIP           bool         `json:"vpip"`
	PFR            bool         `json:"pfr"`
	ThreeBet       bool         `json:"threeBet"`
	ThreeBetChance bool         `json:"threeBetChance"`
	CBet           bool         `json:"cBet"`
	CBetChance     bool         `json:"cBetChance"`
	SawFlop        bool         `json:"sawFlop"`
	WentToShowdown bool         `json:"wentToShowdown"`
	WonAtShowdown  bool         `json:"wonAtShowdown"`
	Folded         bool         `json:"folded"`
	FoldedOn       table.Status `json:"foldedOn,omitempty"`

	AggressiveActions int `json:"aggressiveActions"`
	PassiveActions    int `json:"passiveActions"`
}

// Action is one entry of the hand's action log, blind posts included.
type Action struct {
	SequenceNumber int              `json:"sequenceNumber"`
	PlayerID       string           `json:"playerId"`
	Seat           int              `json:"seatNumber"`
	Action         table.ActionType `json:"action"`
	Amount         int              `json:"amount"`
	StreetBet      int              `json:"streetBet"`
	BettingRound   table.Status     `json:"bettingRound"`
	PotSizeAfter   int              `json:"potSizeAfter"`
	FacingBet      int              `json:"facingBet"`
	IsAllIn        bool             `json:"isAllIn"`
	Raising        bool             `json:"raising"`
	Timeout        bool             `json:"timeout,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}

// Pot records who won a pot.
type Pot struct {
	Amount  int     `json:"amount"`
	Winners []Award `json:"winners"`
}

// Award is a winner's share of a pot.
type Award struct {
	PlayerID string `json:"playerId"`
	Seat     int    `json:"seatNumber"`
	Amount   int    `json:"amount"`
}

// Refund is an uncalled bet given back to the bettor.
type Refund struct {
	PlayerID string       `json:"playerId"`
	Seat     int          `json:"seatNumber"`
	Amount   int          `json:"amount"`
	Street   table.Status `json:"street"`
}

// Player finds a participant by id.
func (e *Entry) Player(playerID string) (Player, bool) {
	for _, p := range e.Players {
		if p.PlayerID == playerID {
			return p, true
		}
	}
	return Player{}, false
}

// TotalPot sums every pot.
func (e *Entry) TotalPot() int {
	total := 0
	for _, p := range e.Pots {
		total += p.Amount
	}
	return total
}

// Clone deep-copies the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Players = make([]Player, len(e.Players))
	for i, p := range e.Players {
		p.HoleCards = slices.Clone(p.HoleCards)
		c.Players[i] = p
	}
	c.Actions = slices.Clone(e.Actions)
	c.Board = slices.Clone(e.Board)
	c.Pots = make([]Pot, len(e.Pots))
	for i, p := range e.Pots {
		p.Winners = slices.Clone(p.Winners)
		c.Pots[i] = p
	}
	c.Returned = slices.Clone(e.Returned)
	return &c
}

// Redacted returns a copy that hides hole cards the viewer never saw: a
// player's own cards and hands shown at showdown stay visible.
func (e *Entry) Redacted(viewerID string) *Entry {
	c := e.Clone()
	for i := range c.Players {
		p := &c.Players[i]
		if p.PlayerID != viewerID && !p.WentToShowdown {
			p.HoleCards = nil
		}
	}
	return c
}
