// Package apperrors defines the typed failures surfaced by the order and payment services.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and for HTTP mapping
type Kind string

const (
	KindValidation        Kind = "VALIDATION_ERROR"
	KindNotFound          Kind = "NOT_FOUND"
	KindForbidden         Kind = "FORBIDDEN"
	KindInvalidTransition Kind = "INVALID_TRANSITION"
	KindInvalidState      Kind = "INVALID_STATE"
	KindSecurity          Kind = "INVALID_SIGNATURE"
	KindGateway           Kind = "GATEWAY_ERROR"
	KindPersistence       Kind = "PERSISTENCE_ERROR"
	KindConflict          Kind = "CONFLICT"
	KindInternal          Kind = "INTERNAL_ERROR"
)

// Error is a classified application error
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around a cause
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return New(KindForbidden, format, args...)
}

func InvalidTransition(format string, args ...interface{}) *Error {
	return New(KindInvalidTransition, format, args...)
}

func InvalidState(format string, args ...interface{}) *Error {
	return New(KindInvalidState, format, args...)
}

func Security(err error) *Error {
	return Wrap(KindSecurity, err, "webhook signature verification failed")
}

func Gateway(err error, message string) *Error {
	return Wrap(KindGateway, err, message)
}

func Persistence(err error, message string) *Error {
	return Wrap(KindPersistence, err, message)
}

func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, format, args...)
}

// KindOf returns the kind of the first classified error in err's chain,
// or KindInternal if there is none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether the caller may safely repeat the operation
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindGateway, KindConflict:
		return true
	}
	return false
}

// MessageOf returns the user-facing message without the wrapped cause
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Internal server error"
}
