// Package errs defines the core error taxonomy shared by every component of
// the cognitive runtime. Call sites should construct these with the helper
// functions below rather than formatting ad hoc strings, so the cognition
// pipeline's propagation policy (apology + retry hint, refusal, "service
// degraded", ...) can dispatch on Kind alone.
package errs

import (
	"errors"
	"fmt"
)

// Kind categorizes an error for propagation and retry policy purposes.
type Kind string

const (
	KindConfiguration  Kind = "configuration"
	KindValidation     Kind = "validation"
	KindUnavailable    Kind = "unavailable"
	KindRateLimited    Kind = "rate_limited"
	KindRetryable      Kind = "retryable"
	KindProtected      Kind = "protected"
	KindBudgetExceeded Kind = "budget_exceeded"
	KindCancelled      Kind = "cancelled"
	KindInternal       Kind = "internal"
	KindNotFound       Kind = "not_found"
	KindDuplicate      Kind = "duplicate"
	KindIncompatible   Kind = "incompatible_model"
)

// Error is the common wrapper for every error kind the core produces.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, errs.KindX) style checks via a sentinel comparison
// on Kind rather than identity, by comparing against another *Error with the
// same Kind and no message.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Configuration(format string, args ...any) *Error {
	return New(KindConfiguration, fmt.Sprintf(format, args...))
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

func Unavailable(format string, args ...any) *Error {
	return New(KindUnavailable, fmt.Sprintf(format, args...))
}

func RateLimited(format string, args ...any) *Error {
	return New(KindRateLimited, fmt.Sprintf(format, args...))
}

func Retryable(cause error, format string, args ...any) *Error {
	return Wrap(KindRetryable, fmt.Sprintf(format, args...), cause)
}

func Protected(format string, args ...any) *Error {
	return New(KindProtected, fmt.Sprintf(format, args...))
}

func BudgetExceeded(format string, args ...any) *Error {
	return New(KindBudgetExceeded, fmt.Sprintf(format, args...))
}

func Cancelled(cause error) *Error {
	return Wrap(KindCancelled, "operation cancelled", cause)
}

func Internal(cause error, format string, args ...any) *Error {
	return Wrap(KindInternal, fmt.Sprintf(format, args...), cause)
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func Duplicate(format string, args ...any) *Error {
	return New(KindDuplicate, fmt.Sprintf(format, args...))
}

func IncompatibleModel(format string, args ...any) *Error {
	return New(KindIncompatible, fmt.Sprintf(format, args...))
}

// Is reports whether the first *Error in err's chain has the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or KindInternal if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
