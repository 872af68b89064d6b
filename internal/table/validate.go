package table

import "fmt"

// Validate checks an action against the table without mutating it: whose
// turn it is, whether the action fits the betting state, then amounts.
func Validate(t *Table, seat int, a Action) error {
	illegal := func(format string, args ...any) error {
		return &IllegalActionError{Seat: seat, Action: a.Type, Reason: fmt.Sprintf(format, args...)}
	}

	if !t.status.Betting() {
		return illegal("no betting round in progress")
	}
	if seat != t.acting {
		return illegal("not this seat's turn, seat %d is acting", t.acting)
	}
	s := t.seat(seat)
	if s == nil || !s.active() {
		return illegal("seat cannot act")
	}
	if a.Amount < 0 {
		return illegal("amount cannot be negative")
	}

	toCall := t.currentBet - s.StreetBet
	switch a.Type {
	case ActionFold:
		return nil
	case ActionCheck:
		if toCall > 0 {
			return illegal("cannot check facing %d to call", toCall)
		}
		return nil
	case ActionCall:
		if toCall <= 0 {
			return illegal("nothing to call")
		}
		return nil
	case ActionBet:
		if t.currentBet > 0 {
			return illegal("a bet of %d is already open, raise instead", t.currentBet)
		}
	case ActionRaise:
		if t.currentBet == 0 {
			return illegal("nothing to raise, bet instead")
		}
	case ActionAllIn:
		if s.Stack > toCall && !t.raiseAllowed(s) {
			return illegal("raising is closed for this seat, call or fold")
		}
		return nil
	default:
		return illegal("unknown action")
	}

	if !t.raiseAllowed(s) {
		return illegal("raising is closed for this seat, call or fold")
	}
	allIn := s.StreetBet + s.Stack
	switch {
	case a.Amount <= t.currentBet:
		return illegal("amount %d must exceed the current bet of %d", a.Amount, t.currentBet)
	case a.Amount > allIn:
		return illegal("amount %d exceeds the seat's %d chips", a.Amount, allIn)
	case a.Amount < t.currentBet+t.minRaise && a.Amount != allIn:
		return illegal("minimum is %d", t.currentBet+t.minRaise)
	}
	return nil
}

// raiseAllowed requires that the seat's option to raise is open and that some
// other seat could still respond.
func (t *Table) raiseAllowed(s *Seat) bool {
	if !t.canRaise(s) {
		return false
	}
	for _, o := range t.seats {
		if o != nil && o != s && o.active() {
			return true
		}
	}
	return false
}

// LegalActions lists what the seat may do right now.
func (t *Table) LegalActions(seat int) []ActionType {
	s := t.seat(seat)
	if !t.status.Betting() || seat != t.acting || s == nil || !s.active() {
		return nil
	}
	actions := []ActionType{ActionFold}
	toCall := t.currentBet - s.StreetBet
	if toCall <= 0 {
		actions = append(actions, ActionCheck)
	} else {
		actions = append(actions, ActionCall)
	}
	if s.Stack > toCall && t.raiseAllowed(s) {
		if t.currentBet == 0 {
			actions = append(actions, ActionBet)
		} else {
			actions = append(actions, ActionRaise)
		}
	}
	if s.Stack <= toCall || t.raiseAllowed(s) {
		actions = append(actions, ActionAllIn)
	}
	return actions
}
