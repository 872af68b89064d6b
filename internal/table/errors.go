package table

import (
	"errors"
	"fmt"
)

var (
	ErrHandInProgress   = errors.New("hand in progress")
	ErrNotEnoughPlayers = errors.New("at least two funded players are required")
	ErrSeatOutOfRange   = errors.New("seat number out of range")
	ErrSeatTaken        = errors.New("seat is taken")
	ErrSeatEmpty        = errors.New("seat is empty")
	ErrAlreadySeated    = errors.New("player is already seated")
	ErrInvalidBuyIn     = errors.New("invalid buy-in")
)

// IllegalActionError rejects an action without touching table state.
type IllegalActionError struct {
	Seat   int
	Action ActionType
	Reason string
}

func (e *IllegalActionError) Error() string {
	return fmt.Sprintf("illegal %s from seat %d: %s", e.Action, e.Seat, e.Reason)
}

// IsIllegalAction reports whether err is an *IllegalActionError.
func IsIllegalAction(err error) bool {
	var target *IllegalActionError
	return errors.As(err, &target)
}
