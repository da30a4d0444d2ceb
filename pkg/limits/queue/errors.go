package queue

import (
	"errors"
	"fmt"
	"time"

	"mercator-hq/governor/pkg/limits/ratelimit"
)

var (
	// ErrQueueFull is returned when the global queue is at capacity.
	ErrQueueFull = errors.New("queue is full")

	// ErrUserQueueLimitExceeded is returned when a user has too many
	// requests in flight for their tier.
	ErrUserQueueLimitExceeded = errors.New("user queue limit exceeded")

	// ErrRequestTimeout marks a request that expired while queued.
	ErrRequestTimeout = errors.New("request timed out in queue")

	// ErrGenerationFailure marks a request whose attempts were exhausted.
	ErrGenerationFailure = errors.New("generation failed")

	// ErrNotFound is returned for unknown or evicted request ids.
	ErrNotFound = errors.New("request not found")

	// ErrStopped is returned when the queue no longer accepts requests.
	ErrStopped = errors.New("queue is stopped")
)

// AdmissionError describes a rejected submission.
type AdmissionError struct {
	// Err is ErrQueueFull or ErrUserQueueLimitExceeded.
	Err error

	Tier       ratelimit.Tier
	Limit      int
	RetryAfter time.Duration
}

func (e *AdmissionError) Error() string {
	if errors.Is(e.Err, ErrUserQueueLimitExceeded) {
		return fmt.Sprintf("%s: %s tier allows %d queued requests per user", e.Err, e.Tier, e.Limit)
	}
	return fmt.Sprintf("%s: capacity %d reached, retry after %s", e.Err, e.Limit, e.RetryAfter)
}

func (e *AdmissionError) Unwrap() error {
	return e.Err
}

// GenerationError is the terminal error of a failed request.
type GenerationError struct {
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrGenerationFailure, e.Attempts, e.Err)
}

// Unwrap exposes both ErrGenerationFailure and the last attempt error.
func (e *GenerationError) Unwrap() []error {
	return []error{ErrGenerationFailure, e.Err}
}
