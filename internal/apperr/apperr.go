// Package apperr defines the error vocabulary shared by stores, adapters and
// the job engine. Lower layers return *Error values; the HTTP gateway is the
// only place that maps kinds to status codes and the response envelope.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the gateway.
type Kind int

const (
	// Internal is the default for anything unexpected.
	Internal Kind = iota
	// BadRequest marks semantically invalid input (reserved voice name,
	// empty text, unknown mode, malformed filename).
	BadRequest
	// NotFound marks an unknown model, voice, job or file.
	NotFound
	// Conflict marks an operation blocked by current state, e.g. a model
	// that has not been downloaded yet.
	Conflict
	// Unavailable marks a missing optional backend runtime.
	Unavailable
)

// Error carries a kind, a caller-facing message and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a formatted message.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from err, defaulting to Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Message returns the caller-facing message for err. For non-apperr errors
// the plain Error() string is returned.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return err.Error()
}
