package router

import (
	"errors"
	"fmt"

	"github.com/lox/homepoker/internal/protocol"
	"github.com/lox/homepoker/internal/table"
)

var (
	ErrNotSeated     = errors.New("player is not seated at this table")
	ErrNotSubscribed = errors.New("connection has not joined this table")
	ErrBuyInRequired = errors.New("a buy-in is required to take a seat")
	ErrTableFull     = errors.New("table is full")
	ErrTableExists   = errors.New("table already exists")
	ErrClosed        = errors.New("router is closed")

	errQueueFull = errors.New("history queue full")
)

// NotFoundError reports an unknown table or connection.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// IsNotFound reports whether err is a *NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// ErrorCode maps an error to the code sent to clients.
func ErrorCode(err error) string {
	switch {
	case protocol.IsProtocolError(err):
		return protocol.CodeProtocol
	case table.IsIllegalAction(err):
		return protocol.CodeIllegalAction
	case IsNotFound(err):
		return protocol.CodeNotFound
	case errors.Is(err, ErrNotSeated),
		errors.Is(err, ErrNotSubscribed),
		errors.Is(err, ErrBuyInRequired),
		errors.Is(err, ErrTableFull),
		errors.Is(err, table.ErrSeatTaken),
		errors.Is(err, table.ErrSeatOutOfRange),
		errors.Is(err, table.ErrAlreadySeated),
		errors.Is(err, table.ErrInvalidBuyIn),
		errors.Is(err, table.ErrHandInProgress),
		errors.Is(err, table.ErrSeatEmpty):
		return protocol.CodeRejected
	default:
		return protocol.CodeInternal
	}
}
