// Package apperror defines the machine-readable error taxonomy shared by the
// relay HTTP surface, the bridge, and the watch-side sync core.
package apperror

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code, propagated via errors.Is/errors.As
// and translated to an HTTP status by the relay's response helpers.
type Code string

const (
	InvalidInput        Code = "INVALID_INPUT"
	NotFound             Code = "NOT_FOUND"
	Conflict             Code = "CONFLICT"
	UpstreamUnavailable  Code = "UPSTREAM_UNAVAILABLE"
	Crypto               Code = "CRYPTO"
	Transport            Code = "TRANSPORT"
	Exhausted            Code = "EXHAUSTED"
	Cancelled            Code = "CANCELLED"
)

// Error is a typed error wrapping a Code and an optional underlying cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is allows errors.Is(err, apperror.New(code, "")) to match on Code alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// New constructs an *Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs an *Error with the given code, message, and cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the Code from err, falling back to "" when err does not
// carry one.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
