package fetch

import (
	"errors"
	"fmt"
)

var (
	ErrNetwork    = errors.New("origin unreachable")
	ErrTimeout    = errors.New("origin timed out")
	ErrBadStatus  = errors.New("origin returned non-success status")
	ErrTooLarge   = errors.New("origin response too large")
	ErrInvalidURL = errors.New("invalid source url")
)

// Error is returned by Fetcher.Fetch. Kind is one of the Err* sentinels.
type Error struct {
	Kind       error
	URL        string
	StatusCode int // set for ErrBadStatus
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("fetch %s: %v", e.URL, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (%d)", e.StatusCode)
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

// Retryable reports whether a caller may retry err with backoff.
// Only transport failures qualify; status, size and URL errors are final.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout)
}
