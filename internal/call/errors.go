package call

import (
	"errors"
	"fmt"
)

var (
	ErrMediaDenied       = errors.New("local media unavailable")
	ErrNegotiation       = errors.New("negotiation failed")
	ErrNoPeer            = errors.New("no peer connection")
	ErrConnectionFailed  = errors.New("connection failed")
	ErrUnexpectedSignal  = errors.New("unexpected signal type")
	ErrMalformedSignal   = errors.New("malformed signal")
	ErrChannelNotOpen    = errors.New("data channel not open")
	ErrUnexpectedMessage = errors.New("unexpected data channel message")
)

// Error records the step of the call setup that failed.
type Error struct {
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}

// negotiationError marks err as an offer/answer failure while keeping the
// underlying cause reachable.
func negotiationError(op string, err error) *Error {
	return &Error{Op: op, Err: fmt.Errorf("%w: %w", ErrNegotiation, err)}
}
