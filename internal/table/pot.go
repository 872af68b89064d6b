package table

import (
	"math"
	"slices"
)

// computePots splits all hand contributions into a main pot and side pots.
// Each distinct all-in total caps one pot; a pot is won only by live seats
// that could match its cap. Folded chips stay in the pots they reached.
func computePots(seats []*Seat) []Pot {
	var caps []int
	for _, s := range seats {
		if s != nil && s.live() && s.AllIn && s.Contribution > 0 && !slices.Contains(caps, s.Contribution) {
			caps = append(caps, s.Contribution)
		}
	}
	slices.Sort(caps)
	levels := append(caps, math.MaxInt)

	var pots []Pot
	prev := 0
	for _, level := range levels {
		pot := Pot{}
		for _, s := range seats {
			if s == nil || !s.InHand {
				continue
			}
			if c := min(s.Contribution, level) - prev; c > 0 {
				pot.Amount += c
			}
			if s.live() && (!s.AllIn || s.Contribution >= level) {
				pot.Eligible = append(pot.Eligible, s.Number)
			}
		}
		prev = level
		switch {
		case pot.Amount == 0 && level == math.MaxInt:
		case len(pot.Eligible) == 0 && len(pots) > 0:
			pots[len(pots)-1].Amount += pot.Amount
		default:
			pots = append(pots, pot)
		}
	}
	if len(pots) == 0 {
		pots = append(pots, Pot{Eligible: liveSeats(seats)})
	}
	return pots
}

func liveSeats(seats []*Seat) []int {
	var out []int
	for _, s := range seats {
		if s != nil && s.live() {
			out = append(out, s.Number)
		}
	}
	return out
}
