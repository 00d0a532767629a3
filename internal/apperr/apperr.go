// Package apperr defines the error kinds surfaced at the request boundary.
package apperr

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Kind classifies an application error.
type Kind string

const (
	KindUnauthenticated   Kind = "UNAUTHENTICATED"
	KindForbidden         Kind = "FORBIDDEN"
	KindNotFound          Kind = "NOT_FOUND"
	KindInvalidInput      Kind = "INVALID_INPUT"
	KindInvalidTransition Kind = "INVALID_TRANSITION"
	KindUnavailable       Kind = "UNAVAILABLE"
	KindInternal          Kind = "INTERNAL"
)

// Error is an application error carrying a Kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
	// Concealed errors are rendered exactly like a missing resource so the
	// caller cannot probe for the existence of records it has no access to.
	Concealed bool
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements the unwrap interface
func (e *Error) Unwrap() error {
	return e.Err
}

// Unauthenticated creates an error for a missing or invalid session.
func Unauthenticated(message string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: message}
}

// Forbidden creates an error for an authenticated principal lacking access.
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// Concealed creates a Forbidden error rendered as a NotFound to the caller.
func Concealed(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message, Concealed: true}
}

// NotFound creates an error for a referenced entity that does not exist.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// InvalidInput creates an error for a missing or malformed field.
func InvalidInput(message string) *Error {
	return &Error{Kind: KindInvalidInput, Message: message}
}

// InvalidTransition creates an error for a move the state machine rejects.
func InvalidTransition(message string) *Error {
	return &Error{Kind: KindInvalidTransition, Message: message}
}

// Unavailable creates an error for an unreachable or timed out collaborator.
func Unavailable(message string, err error) *Error {
	return &Error{Kind: KindUnavailable, Message: message, Err: err}
}

// Internal creates an error for anything unexpected.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether the caller may retry the request.
func IsRetryable(err error) bool {
	return Is(err, KindUnavailable)
}

// IsConcealed reports whether err must be rendered as a missing resource.
func IsConcealed(err error) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Concealed
}

// FromStore converts a store error into an application error. Record-not-found
// becomes NotFound with the given message, timeouts and dropped connections
// become Unavailable, anything else is Internal.
func FromStore(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return NotFound(message)
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, driver.ErrBadConn):
		return Unavailable("store unavailable", err)
	default:
		return Internal("store error", err)
	}
}
