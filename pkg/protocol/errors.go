package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedLength = errors.New("protocol: malformed length")
	ErrFrameTooLarge   = errors.New("protocol: frame exceeds limits")
	ErrTruncated       = errors.New("protocol: truncated frame")
	ErrLengthMismatch  = errors.New("protocol: total length mismatch")
	ErrMissingField    = errors.New("protocol: missing header field")
	ErrInvalidField    = errors.New("protocol: invalid header field")
	ErrChannelClosed   = errors.New("protocol: channel closed")
)

// FieldError reports a header field that could not be decoded.
// Err is ErrMissingField or ErrInvalidField; Cause is the parse error, if any.
type FieldError struct {
	Field string
	Value string
	Err   error
	Cause error
}

func (e *FieldError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v %q (value %q): %v", e.Err, e.Field, e.Value, e.Cause)
	}
	return fmt.Sprintf("%v %q", e.Err, e.Field)
}

func (e *FieldError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// Recoverable reports whether a stream Reader is still aligned on a frame
// boundary after returning err, so the next ReadVolume can proceed.
func Recoverable(err error) bool {
	return errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidField) ||
		errors.Is(err, ErrLengthMismatch)
}
