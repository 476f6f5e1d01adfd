// Package core defines the essential data structures and error taxonomy that
// form the backbone of the application. These components are deliberately free
// of transport and persistence concerns so the surrounding layers stay
// decoupled.
package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors shared across layers. Callers classify failures with
// errors.Is rather than string matching.
var (
	// ErrNotFound signals a missing user, filename, or version.
	ErrNotFound = errors.New("not found")
	// ErrInvalidLanguage signals a language outside the configured mapping.
	ErrInvalidLanguage = errors.New("invalid language")
	// ErrUsernameTaken signals a register attempt with an existing username.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrEmptyCode signals a submission whose code is empty after trimming.
	ErrEmptyCode = errors.New("code provided is empty")
)

// ServiceError is the error type surfaced by the use-case layer. Code carries
// the HTTP-equivalent status the boundary should report.
type ServiceError struct {
	Message string
	Code    int
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.Err }

// NewServiceError wraps err with a message and an HTTP-equivalent code.
func NewServiceError(code int, message string, err error) *ServiceError {
	return &ServiceError{Message: message, Code: code, Err: err}
}

// NotFoundError builds a 404-class ServiceError.
func NotFoundError(message string) *ServiceError {
	return &ServiceError{Message: message, Code: http.StatusNotFound, Err: ErrNotFound}
}

// ValidationError builds a 400-class ServiceError.
func ValidationError(message string, err error) *ServiceError {
	return &ServiceError{Message: message, Code: http.StatusBadRequest, Err: err}
}

// StatusCode extracts the HTTP-equivalent code from err, defaulting to 500.
func StatusCode(err error) int {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidLanguage), errors.Is(err, ErrEmptyCode):
		return http.StatusBadRequest
	case errors.Is(err, ErrUsernameTaken):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
