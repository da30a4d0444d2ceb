package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Category identifies an independent family of rate limit windows.
type Category string

const (
	CategoryAuth    Category = "auth"
	CategoryGeneral Category = "general"
	CategoryUpload  Category = "upload"
	CategoryAdmin   Category = "admin"
	CategoryBurst   Category = "burst"
	CategoryAI      Category = "ai"
)

// Tier is a subscription level.
type Tier string

const (
	TierFree    Tier = "free"
	TierPaid    Tier = "paid"
	TierPremium Tier = "premium"
)

// ParseTier returns the tier named s. Unknown values map to TierFree.
func ParseTier(s string) Tier {
	switch Tier(s) {
	case TierPaid:
		return TierPaid
	case TierPremium:
		return TierPremium
	default:
		return TierFree
	}
}

// Rule is one fixed-window limit.
type Rule struct {
	// Name distinguishes rules of the same category ("window", "daily").
	Name string

	// Window is the length of the fixed window.
	Window time.Duration

	// Max is the number of requests allowed per window.
	Max int64

	// Message is returned to the caller when the rule rejects.
	Message string
}

// Policy is the set of rules applied to a category. All rules must pass.
type Policy struct {
	Rules []Rule

	// SkipSuccessful refunds successful requests via Limiter.Complete.
	SkipSuccessful bool
}

// Request identifies the caller being checked.
type Request struct {
	// Category selects the policy.
	Category Category

	// Key is the caller identity: user id when authenticated, else client IP.
	Key string

	// Tier selects the AI policy. Ignored for other categories.
	Tier Tier
}

// CheckResult contains the result of a rate limit check.
type CheckResult struct {
	// Allowed indicates if the request is permitted.
	Allowed bool

	// Category is the category that was checked.
	Category Category

	// Rule is the name of the rule that rejected the request.
	Rule string

	// Message explains why the request was rejected (if Allowed=false).
	Message string

	// Limit is the configured limit value.
	Limit int64

	// Count is the number of requests seen in the current window.
	Count int64

	// Remaining is how many requests remain in the window.
	Remaining int64

	// Reset is when the limit window resets.
	Reset time.Time

	// RetryAfter suggests how long to wait before retrying.
	RetryAfter time.Duration
}

// Window is the state of one fixed window after an update.
type Window struct {
	// Start is when the window opened.
	Start time.Time

	// Count is the number of requests counted in the window.
	Count int64
}

// WindowStore keeps fixed-window counters. Implementations must make
// Increment atomic per key.
type WindowStore interface {
	// Increment adds one to the counter for key, opening a new window when
	// none exists or the previous one has elapsed at now.
	Increment(ctx context.Context, key string, window time.Duration, now time.Time) (Window, error)

	// Decrement removes one from the counter for key if its window is
	// still open at now.
	Decrement(ctx context.Context, key string, window time.Duration, now time.Time) error
}

// MetricsRecorder receives rate limit events.
type MetricsRecorder interface {
	RecordRateLimitCheck(category string, allowed bool)
	RecordRateLimitHit(category string, rule string)
}

// ErrRateLimitExceeded is returned when a request exceeds its quota.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// LimitError describes a rejected request.
type LimitError struct {
	Category   Category
	Key        string
	Rule       string
	Limit      int64
	Window     time.Duration
	RetryAfter time.Duration
	Message    string
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: %s/%s limit of %d per %s reached for %q", ErrRateLimitExceeded, e.Category, e.Rule, e.Limit, e.Window, e.Key)
}

// Unwrap allows errors.Is(err, ErrRateLimitExceeded).
func (e *LimitError) Unwrap() error {
	return ErrRateLimitExceeded
}
