package spec

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedEncoding = errors.New("malformed spec encoding")
	ErrUnknownVariant    = errors.New("unknown transform variant")
	ErrInvalidField      = errors.New("invalid transform field")
	ErrTruncated         = errors.New("truncated spec payload")
)

// DecodeError describes why a spec string was rejected.
// Kind is one of the Err* sentinels above and is matched by errors.Is.
type DecodeError struct {
	Kind  error
	Tag   byte   // variant tag, when known
	Field string // set for ErrInvalidField
	Value string // offending value, for ErrInvalidField
	Err   error  // underlying cause, if any
}

func (e *DecodeError) Error() string {
	switch {
	case errors.Is(e.Kind, ErrInvalidField):
		return fmt.Sprintf("%v: %s=%s", e.Kind, e.Field, e.Value)
	case errors.Is(e.Kind, ErrUnknownVariant), errors.Is(e.Kind, ErrTruncated):
		return fmt.Sprintf("%v: tag %d", e.Kind, e.Tag)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	default:
		return e.Kind.Error()
	}
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func invalidField(tag byte, field string, value any) error {
	return &DecodeError{Kind: ErrInvalidField, Tag: tag, Field: field, Value: fmt.Sprint(value)}
}
