package handhistory

import (
	"fmt"

	"github.com/lox/homepoker/internal/phh"
	"github.com/lox/homepoker/internal/table"
)

const defaultVariant = "NT"

// ToPHH converts a completed entry to PHH. Players are listed from the
// small blind clockwise, the button last. Hole cards are masked unless
// includeHoleCards is set; hands shown at showdown are always written.
func ToPHH(e *Entry, variant string, includeHoleCards bool) *phh.HandHistory {
	if variant == "" {
		variant = defaultVariant
	}
	order := phhOrder(e)
	n := len(order)
	hist := &phh.HandHistory{
		Variant:           variant,
		Table:             e.SessionID,
		SeatCount:         n,
		Seats:             make([]int, n),
		Antes:             make([]int, n),
		BlindsOrStraddles: make([]int, n),
		MinBet:            e.BigBlind,
		StartingStacks:    make([]int, n),
		FinishingStacks:   make([]int, n),
		Winnings:          make([]int, n),
		Actions:           make([]string, 0, n+len(e.Actions)+8),
		Players:           make([]string, n),
		HandID:            e.HandID,
	}
	hist.SetTime(e.StartedAt)

	index := make(map[int]int, n)
	for pos, p := range order {
		index[p.Seat] = pos
		hist.Seats[pos] = p.Seat
		hist.StartingStacks[pos] = p.StartingStack
		hist.FinishingStacks[pos] = p.EndingStack
		hist.Winnings[pos] = p.Winnings
		hist.Players[pos] = p.PlayerID
		hist.Actions = append(hist.Actions, fmt.Sprintf("d dh p%d %s", pos+1, phh.HoleCards(p.HoleCards, includeHoleCards)))
	}

	street := table.StatusPreflop
	dealt := 0
	for _, a := range e.Actions {
		switch a.Action {
		case table.ActionPostSmallBlind, table.ActionPostBigBlind:
			if pos, ok := index[a.Seat]; ok {
				hist.BlindsOrStraddles[pos] = a.Amount
			}
			continue
		}
		if a.BettingRound != street {
			dealt = appendBoard(hist, e, dealt, a.BettingRound)
			street = a.BettingRound
		}
		pos, ok := index[a.Seat]
		if !ok {
			continue
		}
		if s, ok := phh.FormatAction(pos, string(a.Action), a.StreetBet, a.Raising); ok {
			hist.Actions = append(hist.Actions, s)
		}
	}
	appendBoard(hist, e, dealt, table.StatusRiver)

	for pos, p := range order {
		if p.WentToShowdown && len(p.HoleCards) >= 2 {
			hist.Actions = append(hist.Actions, fmt.Sprintf("p%d sm %s", pos+1, phh.JoinCards(p.HoleCards)))
		}
	}
	return hist
}

// appendBoard writes the board cards dealt up to and including street,
// starting after the dealt cards already written.
func appendBoard(hist *phh.HandHistory, e *Entry, dealt int, street table.Status) int {
	upto := 0
	switch street {
	case table.StatusFlop:
		upto = 3
	case table.StatusTurn:
		upto = 4
	case table.StatusRiver, table.StatusShowdown:
		upto = 5
	}
	upto = min(upto, len(e.Board))
	for dealt < upto {
		n := 3
		if dealt >= 3 {
			n = 1
		}
		hist.Actions = append(hist.Actions, "d db "+phh.JoinCards(e.Board[dealt:dealt+n]))
		dealt += n
	}
	return dealt
}

// phhOrder sorts players from the small blind clockwise.
func phhOrder(e *Entry) []Player {
	start := e.SmallBlindSeat
	if start == 0 {
		start = e.DealerSeat
	}
	out := make([]Player, 0, len(e.Players))
	// Players are stored clockwise from the button.
	for i := range e.Players {
		if e.Players[i].Seat == start {
			out = append(out, e.Players[i:]...)
			out = append(out, e.Players[:i]...)
			return out
		}
	}
	return append(out, e.Players...)
}
