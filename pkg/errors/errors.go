package errors

import (
	"errors"
	"fmt"
)

// Error codes used across the system-design-library. Adapters and
// higher-level packages build on top of these with their own
// domain-specific codes (see e.g. pkg/bus's Code* constants).
const (
	CodeInternal        = "INTERNAL"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeForbidden       = "FORBIDDEN"
)

// AppError is the structured error type used throughout the library. It
// carries a stable Code for programmatic matching (errors.Is/errors.As),
// a human-readable Message, and an optional wrapped cause.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As chains.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError with the given code, message and optional cause.
func New(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// Wrap attaches a message to an existing error without discarding its
// identity: if err is already an *AppError its Code is preserved, otherwise
// the wrapped error is tagged CodeInternal.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return &AppError{Code: ae.Code, Message: message + ": " + ae.Message, Cause: ae.Cause}
	}
	return &AppError{Code: CodeInternal, Message: message, Cause: err}
}

// InvalidArgument creates an AppError for invalid caller input.
func InvalidArgument(message string, cause error) *AppError {
	return New(CodeInvalidArgument, message, cause)
}

// NotFound creates an AppError for a missing resource.
func NotFound(message string, cause error) *AppError {
	return New(CodeNotFound, message, cause)
}

// Conflict creates an AppError for a state conflict (e.g. resource already
// exists, or is in the wrong state for the requested operation).
func Conflict(message string, cause error) *AppError {
	return New(CodeConflict, message, cause)
}

// Forbidden creates an AppError for an authorization failure.
func Forbidden(message string, cause error) *AppError {
	return New(CodeForbidden, message, cause)
}

// Internal creates an AppError for an unexpected internal failure.
func Internal(message string, cause error) *AppError {
	return New(CodeInternal, message, cause)
}

// Is reports whether err matches target, delegating to the standard
// library so AppError chains compose with sentinel errors from other
// packages (e.g. redis.TxFailedErr).
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target, delegating
// to the standard library.
func As(err error, target interface{}) bool { return errors.As(err, target) }
