// Package apperr defines the error taxonomy shared by the use cases and
// the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks bad client input such as blank fields or a duplicate email.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an unknown id or email.
	ErrNotFound = errors.New("not found")
	// ErrForbidden marks an ownership mismatch or a missing identity.
	ErrForbidden = errors.New("forbidden")
	// ErrUpstream marks a failed or timed out inference call.
	ErrUpstream = errors.New("upstream failure")
	// ErrAuthInvalid marks a malformed, expired or wrongly signed token.
	ErrAuthInvalid = errors.New("invalid token")
)

// Error pairs a taxonomy sentinel with a caller-facing message.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Is reports whether target is the sentinel this error was built from.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation builds an ErrValidation with the given message.
func Validation(message string) error {
	return &Error{Kind: ErrValidation, Message: message}
}

// NotFound builds an ErrNotFound with the given message.
func NotFound(message string) error {
	return &Error{Kind: ErrNotFound, Message: message}
}

// Forbidden builds an ErrForbidden with the given message.
func Forbidden(message string) error {
	return &Error{Kind: ErrForbidden, Message: message}
}

// Upstream builds an ErrUpstream wrapping the collaborator failure.
func Upstream(message string, err error) error {
	return &Error{Kind: ErrUpstream, Message: message, Err: err}
}

// Message returns the caller-facing text of err. Errors outside the
// taxonomy never leak their internals.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}

// HTTPStatus maps err onto the status code the handlers answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrAuthInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
