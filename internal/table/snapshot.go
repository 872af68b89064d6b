package table

import (
	"slices"

	"github.com/lox/homepoker/poker"
)

// Snapshot is a read-only copy of the table as one viewer may see it.
type Snapshot struct {
	TableID        string       `json:"tableId"`
	Status         Status       `json:"status"`
	HandNumber     int          `json:"handNumber"`
	SmallBlind     int          `json:"smallBlind"`
	BigBlind       int          `json:"bigBlind"`
	Board          []poker.Card `json:"communityCards"`
	Pot            int          `json:"pot"`
	SidePots       []Pot        `json:"sidePots,omitempty"`
	CurrentBet     int          `json:"currentBet"`
	MinRaise       int          `json:"minRaise"`
	DealerSeat     int          `json:"dealerSeat"`
	SmallBlindSeat int          `json:"smallBlindSeat"`
	BigBlindSeat   int          `json:"bigBlindSeat"`
	ActingSeat     int          `json:"actingSeat"`
	Seats          []SeatView   `json:"seats"`

	// Set only when the viewer is the acting seat.
	LegalActions []ActionType `json:"legalActions,omitempty"`
	CallAmount   int          `json:"callAmount,omitempty"`
	MinRaiseTo   int          `json:"minRaiseTo,omitempty"`
}

// SeatView is a seat with hole cards hidden unless the viewer may see them.
type SeatView struct {
	Number       int          `json:"seatNumber"`
	PlayerID     string       `json:"playerId"`
	Stack        int          `json:"stack"`
	StreetBet    int          `json:"currentStreetBet"`
	Contribution int          `json:"totalHandContribution"`
	Folded       bool         `json:"folded"`
	AllIn        bool         `json:"allIn"`
	SittingOut   bool         `json:"sittingOut"`
	InHand       bool         `json:"inHand"`
	HasCards     bool         `json:"hasCards"`
	HoleCards    []poker.Card `json:"holeCards,omitempty"`
}

// Snapshot copies the table for viewerSeat. Pass 0 for an observer. Hole
// cards appear for the viewer's own seat and for hands shown at showdown.
func (t *Table) Snapshot(viewerSeat int) Snapshot {
	snap := Snapshot{
		TableID:        t.id,
		Status:         t.status,
		HandNumber:     t.handNumber,
		SmallBlind:     t.cfg.SmallBlind,
		BigBlind:       t.cfg.BigBlind,
		Board:          slices.Clone(t.board),
		Pot:            t.Pot(),
		SidePots:       t.SidePots(),
		CurrentBet:     t.currentBet,
		MinRaise:       t.minRaise,
		DealerSeat:     t.dealer,
		SmallBlindSeat: t.sbSeat,
		BigBlindSeat:   t.bbSeat,
		ActingSeat:     t.acting,
	}
	for _, s := range t.seats {
		if s == nil {
			continue
		}
		v := SeatView{
			Number:       s.Number,
			PlayerID:     s.PlayerID,
			Stack:        s.Stack,
			StreetBet:    s.StreetBet,
			Contribution: s.Contribution,
			Folded:       s.Folded,
			AllIn:        s.AllIn,
			SittingOut:   s.SittingOut,
			InHand:       s.InHand,
			HasCards:     len(s.HoleCards) > 0 && !s.Folded,
		}
		if len(s.HoleCards) > 0 && (s.Number == viewerSeat || t.revealed[s.Number]) {
			v.HoleCards = slices.Clone(s.HoleCards)
		}
		snap.Seats = append(snap.Seats, v)
	}
	if viewerSeat != 0 && viewerSeat == t.acting {
		snap.LegalActions = t.LegalActions(viewerSeat)
		snap.CallAmount = t.CallAmount(viewerSeat)
		snap.MinRaiseTo = t.MinRaiseTo(viewerSeat)
	}
	return snap
}
