// Package domainerrors defines coded domain errors shared by services and
// transport. Stores return sentinel infrastructure errors; services translate
// them into coded errors here; handlers translate codes into HTTP statuses.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error for propagation policy and HTTP mapping.
type Code string

const (
	// CodeBadRequest marks malformed or invalid input.
	CodeBadRequest Code = "bad_request"
	// CodeUnauthorized marks a failed role or authentication check.
	CodeUnauthorized Code = "unauthorized"
	// CodeNotFound marks a reference to an unknown account, strategy, or
	// message.
	CodeNotFound Code = "not_found"
	// CodeConflict marks an operation rejected because of current state
	// (duplicate registration, already-inactive account).
	CodeConflict Code = "conflict"
	// CodeInvariantViolation marks a business-rule violation such as a
	// withdrawal exceeding held shares.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeUnavailable marks an external collaborator failure; retryable by
	// submitting a fresh operation.
	CodeUnavailable Code = "unavailable"
	// CodeInternal marks an unexpected internal failure.
	CodeInternal Code = "internal"
)

// Error is a coded domain error. It wraps an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		de = nil
	}
	return false
}

// CodeOf returns the outermost code of err, or CodeInternal if err carries
// no code.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to the HTTP status the transport layer returns.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeInvariantViolation:
		return http.StatusUnprocessableEntity
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
