// Package errors defines the sentinel errors shared by the highlighter core
// and its host surfaces, plus an AppError carrying an HTTP status for the API.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrEmptyPattern     = errors.New("pattern is empty")
	ErrMultilinePattern = errors.New("pattern contains a line break")
	ErrInvalidRange     = errors.New("invalid position range")
	ErrUnknownGroup     = errors.New("unknown search group")
	ErrSchedulerClosed  = errors.New("scheduler closed")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
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

// HTTPStatusCode maps err to the status the API reports for it.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrUnknownGroup):
		return http.StatusNotFound
	case errors.Is(err, ErrEmptyPattern),
		errors.Is(err, ErrMultilinePattern),
		errors.Is(err, ErrInvalidRange),
		errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrSchedulerClosed), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
