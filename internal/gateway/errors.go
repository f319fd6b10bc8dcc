package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error is a request failure carrying the HTTP status and the message shown
// to the client. Err holds the underlying cause for logs.
type Error struct {
	Status  int
	Message string
	// Reason is a short metric label such as "too_large".
	Reason string
	// RetryAfter is set for busy responses.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func validation(reason, msg string, err error) *Error {
	return &Error{Status: http.StatusBadRequest, Message: msg, Reason: reason, Err: err}
}

func tooLarge(msg string) *Error {
	return &Error{Status: http.StatusRequestEntityTooLarge, Message: msg, Reason: "too_large"}
}

func exhausted(status int, reason, msg string) *Error {
	return &Error{Status: status, Message: msg, Reason: reason}
}

func internal(msg string, err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: msg, Reason: "internal", Err: err}
}

func notFound(msg string) *Error {
	return &Error{Status: http.StatusNotFound, Message: msg, Reason: "not_found"}
}

// AsError classifies err, wrapping unknown failures as internal errors.
func AsError(err error) *Error {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return internal("Unexpected server error.", err)
}
