package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrSignInRequired is returned when a gated surface is submitted without
	// an identity. Callers are expected to prevent this; it is never a
	// user-facing error.
	ErrSignInRequired = errors.New("sign-in required")

	// ErrSuperseded is returned when a resolution was discarded because a
	// later submission was issued on the same surface.
	ErrSuperseded = errors.New("submission superseded by a later request")

	// ErrAlreadySubscribed is returned when the session subscription is
	// acquired while it is already held.
	ErrAlreadySubscribed = errors.New("session subscription already acquired")

	// ErrMalformedResponse wraps failures to decode or extract the expected
	// field from a backend response.
	ErrMalformedResponse = errors.New("malformed response")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int `json:"status_code"`
	// Status is the status text, e.g. "Internal Server Error".
	Status string `json:"status"`
	// Detail is the backend's error detail when it sent one.
	Detail string `json:"detail,omitempty"`
}

// NewAPIError builds an APIError from a status code and the raw status line
// of the response ("500 Internal Server Error").
func NewAPIError(code int, statusLine, detail string) *APIError {
	text := strings.TrimSpace(strings.TrimPrefix(statusLine, fmt.Sprintf("%d", code)))
	if text == "" {
		text = http.StatusText(code)
	}
	return &APIError{StatusCode: code, Status: text, Detail: detail}
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := fmt.Sprintf("API Error: %d %s", e.StatusCode, e.Status)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// IsAPIError reports whether err is or wraps an *APIError.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// TransportError is a failure to reach the backend at all: connection
// refused, DNS, timeout or a malformed base URL.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// FailureMessage converts any backend error into the human-readable message
// stored in a Failed state.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return "network error: failed to reach the server"
	}

	if errors.Is(err, ErrMalformedResponse) {
		return err.Error()
	}

	msg := err.Error()
	if msg == "" {
		return "An unknown error occurred."
	}
	return msg
}
