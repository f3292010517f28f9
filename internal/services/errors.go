package services

import (
	"errors"
	"fmt"
)

// Code is the machine-readable error code returned to API clients.
type Code string

const (
	CodeValidation           Code = "VALIDATION_ERROR"
	CodeAuthenticationFailed Code = "AUTHENTICATION_FAILED"
	CodeInvalidToken         Code = "INVALID_TOKEN"
	CodeInvalidUID           Code = "INVALID_UID"
	CodeInternal             Code = "INTERNAL_ERROR"

	// Transport-level codes, produced by the router rather than by services.
	CodeNotFound           Code = "NOT_FOUND"
	CodeMethodNotAllowed   Code = "METHOD_NOT_ALLOWED"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
)

// Error is a client-facing failure. Err keeps the cause for logging and errors.Is.
type Error struct {
	Code    Code
	Message string
	Fields  map[string][]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr, true
	}
	return nil, false
}

// HasCode reports whether err carries code.
func HasCode(err error, code Code) bool {
	svcErr, ok := AsError(err)
	return ok && svcErr.Code == code
}

func newValidationError(fields map[string][]string) *Error {
	return &Error{Code: CodeValidation, Message: "Invalid input.", Fields: fields}
}

func newAuthenticationFailed(cause error) *Error {
	return &Error{
		Code:    CodeAuthenticationFailed,
		Message: "No active account found with the given credentials",
		Err:     cause,
	}
}

func newInvalidToken(message string, cause error) *Error {
	return &Error{Code: CodeInvalidToken, Message: message, Err: cause}
}

func newInvalidUID(cause error) *Error {
	return &Error{Code: CodeInvalidUID, Message: "Invalid user ID", Err: cause}
}

// fieldErrors accumulates per-field validation messages.
type fieldErrors map[string][]string

func (f fieldErrors) add(field, message string) {
	f[field] = append(f[field], message)
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return newValidationError(f)
}
