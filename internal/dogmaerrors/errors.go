// Package dogmaerrors defines the closed set of error kinds the core
// surfaces across its component boundaries.
package dogmaerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one of the exhaustive error kinds the core can surface.
type Kind string

const (
	NotFound            Kind = "NOT_FOUND"
	AlreadyExists       Kind = "ALREADY_EXISTS"
	ChangeConflict      Kind = "CHANGE_CONFLICT"
	ChangePatchConflict Kind = "CHANGE_PATCH_CONFLICT"
	RedundantChange     Kind = "REDUNDANT_CHANGE"
	InvalidPush         Kind = "INVALID_PUSH"
	ReadOnly            Kind = "READ_ONLY"
	Permission          Kind = "PERMISSION"
	Cancelled           Kind = "CANCELLED"
	Timeout             Kind = "TIMEOUT"
	MirrorError         Kind = "MIRROR_ERROR"
	NoQuorum            Kind = "NO_QUORUM"
	Shutdown            Kind = "SHUTDOWN"
	Corruption          Kind = "CORRUPTION"
	NotAllowed          Kind = "NOT_ALLOWED"
)

// Error is the typed error envelope every component returns. It implements
// Unwrap so callers can still reach the underlying cause with errors.As.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and a stack-carrying cause to an existing error. It
// returns nil if err is nil, so call sites can wrap unconditionally.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		cause:   errors.WithStack(err),
	}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
