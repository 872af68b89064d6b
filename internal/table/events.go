package table

import (
	"time"

	"github.com/lox/homepoker/poker"
)

// EventType identifies a table event.
type EventType string

const (
	EventSeatChanged    EventType = "seat_changed"
	EventHandStarted    EventType = "hand_started"
	EventHoleCards      EventType = "hole_cards"
	EventPlayerAction   EventType = "player_action"
	EventUncalledBet    EventType = "uncalled_bet_returned"
	EventCommunityCards EventType = "community_cards"
	EventShowdown       EventType = "showdown"
	EventHandCompleted  EventType = "hand_completed"
	EventHandAborted    EventType = "hand_aborted"
)

// Event is delivered to observers after the mutation that produced it has
// finished. Only the pointer field matching Type is set.
type Event struct {
	Type       EventType
	TableID    string
	HandNumber int
	Time       time.Time
	Seat       int
	PlayerID   string

	Start    *HandStart
	Action   *ActionEvent
	Cards    []poker.Card // hole cards, or the cards just dealt to the board
	Board    []poker.Card
	Street   Status
	Amount   int
	Showdown *ShowdownEvent
	Result   *HandResult
	Reason   string
}

// Private reports whether only the seat's owner may see the event.
func (e Event) Private() bool { return e.Type == EventHoleCards }

// HandStart describes the seats dealt into a hand, with stacks taken before
// the blinds are posted.
type HandStart struct {
	DealerSeat     int           `json:"dealerSeat"`
	SmallBlindSeat int           `json:"smallBlindSeat"`
	BigBlindSeat   int           `json:"bigBlindSeat"`
	SmallBlind     int           `json:"smallBlind"`
	BigBlind       int           `json:"bigBlind"`
	Players        []PlayerStart `json:"players"`
}

// PlayerStart is one seat at the start of a hand.
type PlayerStart struct {
	Seat     int    `json:"seatNumber"`
	PlayerID string `json:"playerId"`
	Stack    int    `json:"stack"`
	Position string `json:"position"`
}

// ActionEvent is an accepted action or a posted blind.
type ActionEvent struct {
	Type       ActionType `json:"action"`
	Amount     int        `json:"amount"`    // chips moved by this action
	StreetBet  int        `json:"streetBet"` // seat's street total afterwards
	FacingBet  int        `json:"facingBet"` // chips needed to call beforehand
	CurrentBet int        `json:"currentBet"`
	Pot        int        `json:"pot"` // all pots afterwards
	AllIn      bool       `json:"allIn"`
	Street     Status     `json:"street"`
	Timeout    bool       `json:"timeout,omitempty"`
}

// ShowdownEvent reveals the live hands and how each pot was split.
type ShowdownEvent struct {
	Hands []ShownHand `json:"hands"`
	Pots  []PotAward  `json:"pots"`
}

// ShownHand is a hand revealed at showdown.
type ShownHand struct {
	Seat        int            `json:"seatNumber"`
	PlayerID    string         `json:"playerId"`
	Cards       []poker.Card   `json:"cards"`
	Rank        poker.HandRank `json:"rank"`
	Description string         `json:"description"`
}

// PotAward records who won a pot and how much each winner received.
type PotAward struct {
	Amount  int          `json:"amount"`
	Winners []int        `json:"winners"`
	Awards  []SeatAmount `json:"awards"`
}

// SeatAmount pairs a seat with a chip amount.
type SeatAmount struct {
	Seat   int `json:"seatNumber"`
	Amount int `json:"amount"`
}

// HandResult closes a hand. Σ Won equals Σ Contributed.
type HandResult struct {
	Board    []poker.Card `json:"board"`
	Showdown bool         `json:"showdown"`
	Pots     []PotAward   `json:"pots"`
	Seats    []SeatResult `json:"seats"`
}

// SeatResult is one seat's outcome.
type SeatResult struct {
	Seat        int          `json:"seatNumber"`
	PlayerID    string       `json:"playerId"`
	Contributed int          `json:"contributed"`
	Won         int          `json:"won"`
	EndingStack int          `json:"endingStack"`
	HoleCards   []poker.Card `json:"holeCards,omitempty"`
	Folded      bool         `json:"folded"`
	ShowedDown  bool         `json:"showedDown"`
}

// Net returns the chips won minus the chips committed.
func (r SeatResult) Net() int { return r.Won - r.Contributed }

// Observer receives table events in order.
type Observer interface {
	OnTableEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnTableEvent(e Event) { f(e) }
