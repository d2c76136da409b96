// Package errors defines the sentinel errors shared across docsearch and
// maps them to HTTP status codes for the service layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSchemaViolation is returned when a document or query references a
	// field the schema does not declare.
	ErrSchemaViolation = errors.New("schema violation")

	// ErrUnknownField is returned when a boost mapping names an undeclared
	// field. It wraps ErrSchemaViolation.
	ErrUnknownField = fmt.Errorf("unknown field: %w", ErrSchemaViolation)

	ErrInvalidLimit  = errors.New("invalid result limit")
	ErrInvalidBoost  = errors.New("invalid boost weight")
	ErrIndexNotBuilt = errors.New("index not built")

	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrUpstream     = errors.New("upstream request failed")
	ErrInternal     = errors.New("internal error")
	ErrTimeout      = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// IsCallerError reports whether err was caused by bad caller input rather
// than by the engine or an upstream dependency.
func IsCallerError(err error) bool {
	return errors.Is(err, ErrSchemaViolation) ||
		errors.Is(err, ErrInvalidLimit) ||
		errors.Is(err, ErrInvalidBoost) ||
		errors.Is(err, ErrInvalidInput)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case IsCallerError(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrIndexNotBuilt):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
