package raffle

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can map it to a transport status
// without parsing messages.
type Kind string

const (
	KindUnauthenticated    Kind = "unauthenticated"
	KindPermissionDenied   Kind = "permission-denied"
	KindInvalidArgument    Kind = "invalid-argument"
	KindNotFound           Kind = "not-found"
	KindFailedPrecondition Kind = "failed-precondition"
	KindInternal           Kind = "internal"
)

// Error is a structured failure with a stable kind and a message safe to
// show to callers.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Errorf builds an Error with a formatted message.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind carried by err, or KindInternal for anything that
// is not a structured raffle error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the caller-safe message for err. Unstructured errors get
// a generic message so internal detail never leaks verbatim.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "an unexpected error occurred"
}
