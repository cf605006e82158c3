// Package gameerr defines the error taxonomy shared by the room layer and the
// gateways that translate room failures into HTTP statuses and message events.
package gameerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the gateways.
type Kind int

const (
	// KindInternal is an unexpected failure. It is the zero value so that
	// unclassified errors map to it.
	KindInternal Kind = iota
	// KindInvalid is malformed client input (missing room id, bad JSON).
	KindInvalid
	// KindNotFound is an unknown room or identity.
	KindNotFound
	// KindConflict is an operation that is not allowed in the current room state.
	KindConflict
	// KindUnauthorized is an identity that may not perform the operation.
	KindUnauthorized
	// KindIllegalPlay is a rule failure reported verbatim by the rules engine.
	KindIllegalPlay
)

// String returns the lower-case kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindIllegalPlay:
		return "illegal_play"
	default:
		return "internal"
	}
}

// Error is a classified failure. Msg is safe to show to clients.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// Error returns the client-facing message.
func (e *Error) Error() string {
	return e.Msg
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind, so that
// errors.Is(err, gameerr.ErrNotFound) works for any not-found failure.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Msg == ""
}

// Sentinels for errors.Is comparisons. They carry no message.
var (
	ErrInvalid      = &Error{Kind: KindInvalid}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrIllegalPlay  = &Error{Kind: KindIllegalPlay}
	ErrInternal     = &Error{Kind: KindInternal}
)

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Invalid builds a KindInvalid error.
func Invalid(format string, args ...any) error { return newf(KindInvalid, format, args...) }

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...any) error { return newf(KindNotFound, format, args...) }

// Conflict builds a KindConflict error.
func Conflict(format string, args ...any) error { return newf(KindConflict, format, args...) }

// Unauthorized builds a KindUnauthorized error.
func Unauthorized(format string, args ...any) error { return newf(KindUnauthorized, format, args...) }

// IllegalPlay wraps a rules-engine message without altering it.
func IllegalPlay(msg string) error { return &Error{Kind: KindIllegalPlay, Msg: msg} }

// Internal wraps an unexpected failure. The cause is kept for logging only.
func Internal(err error, format string, args ...any) error {
	e := newf(KindInternal, format, args...)
	e.Err = err
	return e
}

// KindOf returns the Kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the client-facing text for err. Unclassified errors get a
// generic message so internal details never leak.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return "internal error"
}
