package table

import (
	"slices"

	"github.com/lox/homepoker/poker"
)

// showdown evaluates every live hand and splits each pot among its best
// eligible hands. Odd chips go one at a time clockwise from the dealer.
func (t *Table) showdown() {
	t.status = StatusShowdown
	t.acting = 0

	ranks := make(map[int]poker.HandRank)
	event := &ShowdownEvent{}
	for _, num := range t.clockwiseFrom(t.dealer, (*Seat).live) {
		s := t.seats[num-1]
		rank := t.evaluate(poker.NewHand(append(slices.Clone(s.HoleCards), t.board...)...))
		ranks[num] = rank
		t.revealed[num] = true
		event.Hands = append(event.Hands, ShownHand{
			Seat:        num,
			PlayerID:    s.PlayerID,
			Cards:       slices.Clone(s.HoleCards),
			Rank:        rank,
			Description: rank.String(),
		})
	}

	won := make(map[int]int)
	for _, pot := range t.pots {
		contenders := pot.Eligible
		if len(contenders) == 0 {
			contenders = liveSeats(t.seats)
		}
		award := t.split(pot.Amount, bestHands(contenders, ranks))
		for _, a := range award.Awards {
			won[a.Seat] += a.Amount
		}
		event.Pots = append(event.Pots, award)
	}

	t.emit(Event{Type: EventShowdown, Showdown: event, Board: slices.Clone(t.board)})
	t.finish(won, event.Pots, true)
}

func bestHands(seats []int, ranks map[int]poker.HandRank) []int {
	var winners []int
	var best poker.HandRank
	for _, num := range seats {
		r, ok := ranks[num]
		if !ok {
			continue
		}
		switch {
		case winners == nil || poker.CompareHands(r, best) > 0:
			winners, best = []int{num}, r
		case r == best:
			winners = append(winners, num)
		}
	}
	return winners
}

// split divides amount evenly; the remainder goes one chip per winner in
// seat order starting left of the dealer.
func (t *Table) split(amount int, winners []int) PotAward {
	award := PotAward{Amount: amount, Winners: t.orderFromDealer(winners)}
	if len(winners) == 0 {
		return award
	}
	share, odd := amount/len(winners), amount%len(winners)
	for i, num := range award.Winners {
		a := share
		if i < odd {
			a++
		}
		award.Awards = append(award.Awards, SeatAmount{Seat: num, Amount: a})
	}
	return award
}

// orderFromDealer sorts seats by clockwise distance from the seat left of
// the dealer.
func (t *Table) orderFromDealer(seats []int) []int {
	n := len(t.seats)
	out := slices.Clone(seats)
	slices.SortFunc(out, func(a, b int) int {
		return (a-t.dealer-1+n)%n - (b-t.dealer-1+n)%n
	})
	return out
}

// awardUncontested gives every pot to the last live seat without a showdown.
func (t *Table) awardUncontested() {
	t.returnUncalled()
	winner := t.next(t.dealer, (*Seat).live)
	total := t.TotalPot()
	award := PotAward{Amount: total, Winners: []int{winner}, Awards: []SeatAmount{{Seat: winner, Amount: total}}}
	t.finish(map[int]int{winner: total}, []PotAward{award}, false)
}

// finish pays out, reports the result and returns the table to waiting.
func (t *Table) finish(won map[int]int, pots []PotAward, showdown bool) {
	result := &HandResult{Board: slices.Clone(t.board), Showdown: showdown, Pots: pots}
	for _, num := range t.clockwiseFrom(t.dealer, t.inHand) {
		s := t.seats[num-1]
		s.Stack += won[num]
		r := SeatResult{
			Seat:        num,
			PlayerID:    s.PlayerID,
			Contributed: s.Contribution,
			Won:         won[num],
			EndingStack: s.Stack,
			Folded:      s.Folded,
			ShowedDown:  showdown && s.live(),
		}
		if r.ShowedDown {
			r.HoleCards = slices.Clone(s.HoleCards)
		}
		result.Seats = append(result.Seats, r)
	}
	t.emit(Event{Type: EventHandCompleted, Result: result})
	t.reset()
}

// abort refunds every contribution after a dealing failure.
func (t *Table) abort(err error) {
	t.logger.Error().Err(err).Int("hand", t.handNumber).Msg("Aborting hand")
	for _, s := range t.seats {
		if s != nil && s.InHand {
			s.Stack += s.Contribution
		}
	}
	t.emit(Event{Type: EventHandAborted, Reason: err.Error()})
	t.reset()
}

// reset clears per-hand chip state and releases seats that asked to leave.
// Hole cards and the board stay visible until the next hand starts.
func (t *Table) reset() {
	t.status = StatusWaiting
	t.acting = 0
	t.currentBet = 0
	t.pots = nil
	t.deck = nil
	t.acted = make(map[int]int)
	for i, s := range t.seats {
		if s == nil {
			continue
		}
		s.StreetBet = 0
		s.Contribution = 0
		s.AllIn = false
		if s.Leaving {
			t.seats[i] = nil
			t.emit(Event{Type: EventSeatChanged, Seat: s.Number, PlayerID: s.PlayerID, Amount: s.Stack, Reason: "stood_up"})
		}
	}
}
