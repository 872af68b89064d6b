package table

import (
	"fmt"

	"github.com/lox/homepoker/poker"
)

// Apply validates and applies one player decision. A rejected action returns
// an *IllegalActionError and leaves the table untouched.
func (t *Table) Apply(seat int, a Action) error {
	return t.apply(seat, a, false)
}

// ApplyTimeout applies the default action for the acting seat after its time
// bank ran out: check when free, otherwise fold.
func (t *Table) ApplyTimeout(seat int) (Action, error) {
	a := t.DefaultAction(seat)
	return a, t.apply(seat, a, true)
}

// DefaultAction is check when the seat owes nothing, fold otherwise.
func (t *Table) DefaultAction(seat int) Action {
	if s := t.seat(seat); s != nil && s.StreetBet >= t.currentBet {
		return Action{Type: ActionCheck}
	}
	return Action{Type: ActionFold}
}

func (t *Table) apply(seat int, a Action, timeout bool) error {
	defer t.flush()
	if err := Validate(t, seat, a); err != nil {
		return err
	}

	s := t.seats[seat-1]
	facing := max(t.currentBet-s.StreetBet, 0)
	paid := 0
	switch a.Type {
	case ActionFold:
		s.Folded = true
		t.pots = computePots(t.seats)
	case ActionCheck:
	case ActionCall:
		paid = t.pay(s, facing)
	case ActionBet, ActionRaise:
		paid = t.raiseTo(s, a.Amount)
	case ActionAllIn:
		paid = t.raiseTo(s, s.StreetBet+s.Stack)
	}
	t.acted[seat] = t.currentBet

	t.emit(Event{
		Type:     EventPlayerAction,
		Seat:     seat,
		PlayerID: s.PlayerID,
		Action: &ActionEvent{
			Type:       a.Type,
			Amount:     paid,
			StreetBet:  s.StreetBet,
			FacingBet:  facing,
			CurrentBet: t.currentBet,
			Pot:        t.TotalPot(),
			AllIn:      s.AllIn,
			Street:     t.status,
			Timeout:    timeout,
		},
	})

	t.advance()
	return nil
}

// raiseTo brings the seat's street bet up to total. Only a full raise
// reopens the action for seats that already acted.
func (t *Table) raiseTo(s *Seat, total int) int {
	paid := t.pay(s, total-s.StreetBet)
	if s.StreetBet > t.currentBet {
		if increment := s.StreetBet - t.currentBet; increment >= t.minRaise {
			t.minRaise = increment
			t.acted = make(map[int]int)
		}
		t.currentBet = s.StreetBet
	}
	return paid
}

func (t *Table) needsToAct(s *Seat) bool {
	_, acted := t.acted[s.Number]
	return s.active() && (!acted || s.StreetBet < t.currentBet)
}

// canRaise is false for a seat that already acted unless the bet has since
// grown by at least a full raise. Several incomplete all-ins count together.
func (t *Table) canRaise(s *Seat) bool {
	last, acted := t.acted[s.Number]
	return !acted || t.currentBet-last >= t.minRaise
}

// roundComplete: every seat that can still act has acted since the last full
// raise and matched the current bet. A lone seat with chips has nobody to bet
// against once it has matched the largest live bet.
func (t *Table) roundComplete() bool {
	var active, pending int
	var lone *Seat
	for _, s := range t.seats {
		if s == nil || !s.active() {
			continue
		}
		active++
		lone = s
		if t.needsToAct(s) {
			pending++
		}
	}
	if pending == 0 {
		return true
	}
	if active == 1 {
		return lone.StreetBet >= t.highestOtherBet(lone.Number)
	}
	return false
}

func (t *Table) highestOtherBet(exclude int) int {
	highest := 0
	for _, s := range t.seats {
		if s != nil && s.live() && s.Number != exclude {
			highest = max(highest, s.StreetBet)
		}
	}
	return highest
}

func (t *Table) advance() {
	if t.count((*Seat).live) == 1 {
		t.awardUncontested()
		return
	}
	if t.roundComplete() {
		t.completeRound()
		return
	}
	t.acting = t.next(t.acting, t.needsToAct)
}

// completeRound closes the street and deals forward until some seat has a
// decision to make or the hand is over.
func (t *Table) completeRound() {
	for {
		t.returnUncalled()
		for _, s := range t.seats {
			if s != nil {
				s.StreetBet = 0
			}
		}
		t.currentBet = 0
		t.minRaise = t.cfg.BigBlind
		t.acted = make(map[int]int)
		t.acting = 0

		if t.status == StatusRiver {
			t.showdown()
			return
		}
		if err := t.dealStreet(); err != nil {
			t.abort(err)
			return
		}
		t.acting = t.next(t.dealer, t.needsToAct)
		if !t.roundComplete() {
			return
		}
	}
}

func (t *Table) dealStreet() error {
	next, n := StatusFlop, 3
	switch t.status {
	case StatusFlop:
		next, n = StatusTurn, 1
	case StatusTurn:
		next, n = StatusRiver, 1
	}
	cards, err := t.deck.Deal(n)
	if err != nil {
		return err
	}
	t.status = next
	t.board = append(t.board, cards...)
	t.emit(Event{
		Type:   EventCommunityCards,
		Street: next,
		Cards:  cards,
		Board:  append([]poker.Card(nil), t.board...),
	})
	return nil
}

// returnUncalled gives back the part of the top street bet nobody matched.
func (t *Table) returnUncalled() {
	var top *Seat
	second := 0
	for _, s := range t.seats {
		if s == nil || !s.InHand {
			continue
		}
		switch {
		case top == nil || s.StreetBet > top.StreetBet:
			if top != nil {
				second = max(second, top.StreetBet)
			}
			top = s
		default:
			second = max(second, s.StreetBet)
		}
	}
	if top == nil || top.StreetBet <= second {
		return
	}
	excess := top.StreetBet - second
	top.StreetBet -= excess
	top.Contribution -= excess
	top.Stack += excess
	top.AllIn = false
	t.pots = computePots(t.seats)
	t.emit(Event{Type: EventUncalledBet, Seat: top.Number, PlayerID: top.PlayerID, Amount: excess, Street: t.status})
}

// CallAmount is what the seat must add to stay in, capped by its stack.
func (t *Table) CallAmount(seat int) int {
	s := t.seat(seat)
	if s == nil {
		return 0
	}
	return min(max(t.currentBet-s.StreetBet, 0), s.Stack)
}

// MinRaiseTo is the smallest legal bet or raise total for the seat, capped by
// its all-in amount.
func (t *Table) MinRaiseTo(seat int) int {
	s := t.seat(seat)
	if s == nil {
		return 0
	}
	return min(t.currentBet+t.minRaise, s.StreetBet+s.Stack)
}

func (t *Table) String() string {
	return fmt.Sprintf("table %s hand #%d %s acting=%d pot=%d", t.id, t.handNumber, t.status, t.acting, t.TotalPot())
}
