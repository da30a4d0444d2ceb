package upstream

import (
	"errors"
	"fmt"
)

// ErrEmptyPrompt is returned for a prompt without text.
var ErrEmptyPrompt = errors.New("prompt text is required")

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	// StatusCode is the HTTP status returned by the backend.
	StatusCode int

	// Message is the response body or error message.
	Message string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// ParseError is returned when the backend response cannot be decoded.
type ParseError struct {
	RawResponse string
	Cause       error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse upstream response: %v", e.Cause)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Cause
}
