package session

import (
	"errors"
	"fmt"

	"github.com/BioHazard786/Warpcast/cli/internal/ui"
)

var (
	ErrConnectionLost = errors.New("connection to signaling server lost")
	ErrSignalingError = errors.New("signaling server error")
	ErrNoWelcome      = errors.New("server did not assign a participant id")
)

// Error is a failed session step, printable for the user.
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

func (e *Error) Print() {
	ui.PrintError(e.Error())
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}
