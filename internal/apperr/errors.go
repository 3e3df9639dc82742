// Package apperr defines the typed error taxonomy shared by every component.
// The HTTP boundary is the only place these are mapped to a response; domain
// code just constructs and returns them.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Error struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(status int, code, message string, details any) *Error {
	return &Error{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Validation reports malformed or missing input, with optional field-level
// messages in details.
func Validation(message string, details any) *Error {
	return newError(http.StatusBadRequest, "VALIDATION_ERROR", message, details)
}

func NotFound(message string) *Error {
	return newError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

// Conflict reports a uniqueness or invariant violation: duplicate key or
// name, tag still in use, sole-admin user deletion.
func Conflict(message string) *Error {
	return newError(http.StatusConflict, "CONFLICT", message, nil)
}

func Forbidden(message string) *Error {
	return newError(http.StatusForbidden, "FORBIDDEN", message, nil)
}

func Unauthenticated(message string) *Error {
	return newError(http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

// InvalidOperation reports an operation the model forbids outright, such as
// removing a project's owner from its own member list.
func InvalidOperation(message string) *Error {
	return newError(http.StatusConflict, "INVALID_OPERATION", message, nil)
}

// Internal wraps an unexpected failure. The wrapped cause is kept for logs;
// the boundary hides it from callers.
func Internal(err error) *Error {
	message := "internal error"
	if err != nil {
		message = err.Error()
	}
	return newError(http.StatusInternalServerError, "SERVER_ERROR", message, nil)
}

func HasCode(err error, code string) bool {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

func IsNotFound(err error) bool  { return HasCode(err, "NOT_FOUND") }
func IsConflict(err error) bool  { return HasCode(err, "CONFLICT") || HasCode(err, "INVALID_OPERATION") }
func IsForbidden(err error) bool { return HasCode(err, "FORBIDDEN") }
