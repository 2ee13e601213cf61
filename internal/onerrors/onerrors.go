// Package onerrors classifies errors flowing out of the remote port and the
// sync processor into the kinds enumerated in the design (transient, auth,
// not-found, conflict, quota, fatal). Classification - not type identity -
// is what the rest of the system branches on.
package onerrors

import (
	"errors"
	"fmt"
)

// Kind is one of the error classes the core retries, pauses on, or surfaces.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransient
	KindAuth
	KindNotFound
	KindConflict
	KindQuota
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindQuota:
		return "quota"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Retryable reports whether the sync processor should retry the owning
// ProcessingItem rather than terminate it at error.
func (k Kind) Retryable() bool {
	return k == KindTransient || k == KindAuth
}

// Error wraps a cause with a Kind so callers across package boundaries can
// branch on classification without depending on concrete error types.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates a classified error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap classifies an existing error.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Classify extracts the Kind from err if it (or something it wraps) is an
// *Error, defaulting to KindUnknown otherwise. Unknown/unclassified errors
// are treated as non-retryable terminal errors per the error handling
// design, but the queue entry itself is never lost.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindUnknown
}

// IsNotFound is a convenience check used by callers that treat a remote
// not-found as an implicit delete.
func IsNotFound(err error) bool {
	return Classify(err) == KindNotFound
}
