package callerr

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is against these to classify a failure.
var (
	ErrConnection  = errors.New("signaling server unreachable")
	ErrDevice      = errors.New("media device error")
	ErrNegotiation = errors.New("session negotiation failed")
	ErrTimeout     = errors.New("timeout")
	ErrClosed      = errors.New("already closed")
	ErrProtocol    = errors.New("unexpected signaling message")
)

// Error wraps an underlying cause with the operation that failed and its kind.
type Error struct {
	Op      string
	Kind    error
	Err     error
	Details string
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Kind != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Kind)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Details != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Details)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(kind error, op string, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func Connection(op string, err error) *Error  { return newError(ErrConnection, op, err) }
func Device(op string, err error) *Error      { return newError(ErrDevice, op, err) }
func Negotiation(op string, err error) *Error { return newError(ErrNegotiation, op, err) }
func Protocol(op string, err error) *Error    { return newError(ErrProtocol, op, err) }

// Wrap annotates err with op and details without assigning a kind.
func Wrap(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}

// IsConnection reports whether err is a connection failure.
func IsConnection(err error) bool { return errors.Is(err, ErrConnection) }
