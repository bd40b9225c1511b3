// Package apperr defines the coded errors every service returns. The HTTP
// layer maps each code to a status and a stable error_code in the JSON
// envelope; nothing else about an internal failure leaks to clients.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a stable, client-visible error code.
type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeInvalidState Code = "INVALID_STATE"
	CodeRateLimited  Code = "RATE_LIMIT_EXCEEDED"
	CodeModelError   Code = "MODEL_ERROR"
	CodeInternal     Code = "INTERNAL_ERROR"
)

// Error is a coded application error.
type Error struct {
	Code    Code
	Message string
	Err     error // wrapped cause, never shown to clients
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return newError(CodeValidation, format, args...)
}

func Unauthorized(format string, args ...any) *Error {
	return newError(CodeUnauthorized, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return newError(CodeForbidden, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newError(CodeNotFound, format, args...)
}

func InvalidState(format string, args ...any) *Error {
	return newError(CodeInvalidState, format, args...)
}

func RateLimited(format string, args ...any) *Error {
	return newError(CodeRateLimited, format, args...)
}

func ModelError(err error) *Error {
	return &Error{Code: CodeModelError, Message: "classifier unavailable", Err: err}
}

// Internal wraps an unexpected failure. The message shown to clients is
// always generic; err carries the real cause for server-side logs.
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "something went wrong", Err: err}
}

// From extracts the coded error from err, wrapping unknown errors as
// INTERNAL_ERROR so the boundary never sees an uncoded failure.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Code == code
}
