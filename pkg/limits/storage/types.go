package storage

import (
	"context"
	"time"

	"mercator-hq/governor/pkg/limits/usage"
)

// AlertStore persists usage alerts.
// Implementations must be safe for concurrent use.
type AlertStore interface {
	// Save persists an alert and returns the stored record.
	Save(ctx context.Context, alert usage.Alert) (*Record, error)

	// List returns matching alerts, newest first.
	List(ctx context.Context, filter Filter) ([]Record, error)

	// Cleanup removes alerts raised before olderThan and returns how many
	// were deleted.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)

	// Ping reports whether the store can currently serve requests.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	// The store should not be used after calling Close.
	Close() error
}

// Record is a stored alert.
type Record struct {
	ID int64 `json:"id"`
	usage.Alert
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Since    time.Time
	Severity usage.Severity
	Type     usage.AlertType
	UserID   string

	// Limit caps the number of results. Default: 100
	Limit int
}

// DefaultListLimit is the List limit when Filter.Limit is not set.
const DefaultListLimit = 100

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

func (f Filter) matches(a usage.Alert) bool {
	if !f.Since.IsZero() && a.Timestamp.Before(f.Since) {
		return false
	}
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.UserID != "" && a.UserID != f.UserID {
		return false
	}
	return true
}
