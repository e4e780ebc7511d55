package authapi

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned for any HTTP 401, regardless of body. The session is invalid.
var ErrUnauthorized = errors.New("authapi: unauthorized")

// APIError is a non-200 reply (other than 401) from the Authentication API.
// Message is the server's message when it sent one.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("authapi: request failed status=%d", e.StatusCode)
	}
	return fmt.Sprintf("authapi: request failed status=%d: %s", e.StatusCode, e.Message)
}

// TransportError wraps network, timeout and decoding failures. Retrying may succeed.
type TransportError struct {
	err error
}

func (e *TransportError) Error() string {
	return "authapi: transport: " + e.err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.err
}

// NewTransportError wraps err as a TransportError.
func NewTransportError(err error) error {
	return &TransportError{err: err}
}

// IsUnauthorized reports whether err is (or wraps) ErrUnauthorized.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// ServerMessage returns the server-supplied message carried by err, or "".
func ServerMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}
