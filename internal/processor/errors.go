package processor

import (
	"errors"
	"fmt"
)

var (
	ErrSourceDecode      = errors.New("failed to decode source image")
	ErrInvalidParameters = errors.New("invalid transform parameters")
	ErrEncode            = errors.New("failed to encode output image")

	// ErrSourceTooLarge is wrapped in an ErrSourceDecode error when the source
	// declares more pixels than the processor accepts.
	ErrSourceTooLarge = errors.New("source image dimensions exceed limit")
)

// Error reports a processing failure. Step is the index of the failing
// transform, or -1 when the failure is not tied to a step.
type Error struct {
	Kind error
	Step int
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Step >= 0 {
		msg = fmt.Sprintf("step %d: %s", e.Step, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
