// Package fault defines the error taxonomy shared by the bridge components.
//
// Each error carries a Kind that the HTTP layer maps to a status code:
//
//	Validation        → 400 (malformed input, field-level detail preserved)
//	UnsupportedSource → 400 (import origin not recognised)
//	NotFound          → 404 (missing persona or conversation)
//	Persistence       → 500 (storage failure)
//	Upstream          → 500 (external provider failure)
//
// Components wrap underlying errors with fmt.Errorf("%w", ...) as usual and
// tag them at the boundary where the classification is known.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	// KindUnknown is the zero value; treated as an internal error.
	KindUnknown Kind = iota
	// KindValidation marks malformed caller input.
	KindValidation
	// KindNotFound marks a missing persona or conversation.
	KindNotFound
	// KindUnsupportedSource marks an import origin that cannot be parsed.
	KindUnsupportedSource
	// KindPersistence marks a storage failure.
	KindPersistence
	// KindUpstream marks an external provider failure.
	KindUpstream
)

// Error is a classified error. The Message is safe to return to callers;
// the wrapped error (if any) is for logs only.
type Error struct {
	Kind    Kind
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.Message + ": " + e.err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.err }

// New creates a classified error with a caller-visible message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted caller-visible message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error. A nil err yields nil.
func Wrap(kind Kind, message string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, err: err}
}

// KindOf returns the Kind of err, or KindUnknown when err carries no
// classification.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsValidation reports whether err is classified as caller input error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsNotFound reports whether err is classified as a missing resource.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }
