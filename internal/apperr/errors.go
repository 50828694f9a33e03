// Package apperr defines the errors that route modules and middleware hand to the
// global error handler. An *Error carries the HTTP status and a client-safe message;
// anything else is treated as an internal failure whose details stay in the logs.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrPayloadTooLarge indicates a request body exceeded the configured cap
	ErrPayloadTooLarge = errors.New("request entity too large")
	// ErrMalformedBody indicates a request body could not be decoded
	ErrMalformedBody = errors.New("malformed request body")
)

// Error is an error with an HTTP status and a message that is safe to return to clients
type Error struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (status %d): %v", e.Message, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error with a status code and public message
func New(statusCode int, message string) *Error {
	return &Error{StatusCode: statusCode, Message: message}
}

// Wrap attaches a status code and public message to err
func Wrap(err error, statusCode int, message string) *Error {
	return &Error{StatusCode: statusCode, Message: message, Err: err}
}

// BadRequest wraps err as a 400 with the given message
func BadRequest(err error, message string) *Error {
	return Wrap(err, http.StatusBadRequest, message)
}

// PayloadTooLarge wraps err as a 413
func PayloadTooLarge(err error) *Error {
	if err == nil {
		err = ErrPayloadTooLarge
	} else if !errors.Is(err, ErrPayloadTooLarge) {
		err = fmt.Errorf("%w: %w", ErrPayloadTooLarge, err)
	}
	return Wrap(err, http.StatusRequestEntityTooLarge, "request entity too large")
}

// Internal wraps err as a 500 without exposing its details
func Internal(err error) *Error {
	return Wrap(err, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

// StatusCode returns the HTTP status for err, defaulting to 500
func StatusCode(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.StatusCode >= 400 && appErr.StatusCode <= 599 {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the message that may be shown to clients for err.
// Errors that are not *Error never leak their text.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return http.StatusText(StatusCode(err))
}
