package muxer

import (
	"errors"
	"fmt"
)

// error kinds.
var (
	ErrUnsupportedFormat   = errors.New("unsupported format")
	ErrInvalidTrackToken   = errors.New("invalid track token")
	ErrIllegalState        = errors.New("illegal state")
	ErrWriteFailed         = errors.New("write failed")
	ErrDestination         = errors.New("destination unavailable")
	ErrUnsupportedMetadata = errors.New("unsupported metadata")
)

// Error is the error returned by muxers.
// Its kind can be matched with errors.Is.
type Error struct {
	Op   string
	Kind error
	Err  error
}

// NewError allocates an Error.
func NewError(op string, kind error, err error) *Error {
	return &Error{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

// Unwrap returns the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// WrapError converts err into an Error.
// Errors that already are an Error are returned unchanged.
func WrapError(op string, kind error, err error) error {
	var me *Error
	if errors.As(err, &me) {
		return me
	}
	return NewError(op, kind, err)
}
