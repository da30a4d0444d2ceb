package usage

import (
	"context"
	"time"
)

// Call is one completed API call folded into the usage aggregates.
type Call struct {
	UserID    string
	Endpoint  string
	Cost      float64
	Success   bool
	Duration  time.Duration
	Timestamp time.Time
}

// Severity grades an alert.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityInfo   Severity = "INFO"
)

// AlertType identifies the rule that raised an alert.
type AlertType string

const (
	AlertDailyCostExceeded  AlertType = "DAILY_COST_EXCEEDED"
	AlertHourlyCostExceeded AlertType = "HOURLY_COST_EXCEEDED"
	AlertUserDailyLimit     AlertType = "USER_DAILY_LIMIT_EXCEEDED"
	AlertSuspiciousActivity AlertType = "SUSPICIOUS_ACTIVITY"
	AlertUserHourlyLimit    AlertType = "USER_HOURLY_LIMIT_EXCEEDED"
	AlertQueueSizeCritical  AlertType = "QUEUE_SIZE_CRITICAL"
	AlertQueueSizeWarning   AlertType = "QUEUE_SIZE_WARNING"
	AlertErrorRateWarning   AlertType = "ERROR_RATE_WARNING"
)

// Alert is emitted when a threshold rule fires.
type Alert struct {
	Type      AlertType `json:"type"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	UserID    string    `json:"userId,omitempty"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertSink delivers alerts somewhere outside the monitor.
type AlertSink interface {
	HandleAlert(ctx context.Context, alert Alert) error
}

// AlertSinkFunc adapts a function to AlertSink.
type AlertSinkFunc func(ctx context.Context, alert Alert) error

// HandleAlert calls f.
func (f AlertSinkFunc) HandleAlert(ctx context.Context, alert Alert) error {
	return f(ctx, alert)
}

// Timeframe selects the period reported by GetUsageStats.
type Timeframe string

const (
	TimeframeDaily  Timeframe = "daily"
	TimeframeHourly Timeframe = "hourly"
)

// ParseTimeframe maps a query value to a timeframe, defaulting to daily.
func ParseTimeframe(s string) Timeframe {
	if Timeframe(s) == TimeframeHourly {
		return TimeframeHourly
	}
	return TimeframeDaily
}

// Stats summarizes usage for one period.
type Stats struct {
	Timeframe   Timeframe `json:"timeframe"`
	Period      string    `json:"period"`
	TotalCosts  float64   `json:"totalCosts"`
	TotalCalls  int64     `json:"totalCalls"`
	FailedCalls int64     `json:"failedCalls"`
	ActiveUsers int       `json:"activeUsers"`

	// SuccessRate weights each active user's lifetime success ratio by
	// their calls in the period. It is an approximation of the period rate.
	SuccessRate float64 `json:"successRate"`
}

// DayUsage is one day of a user's activity.
type DayUsage struct {
	Date      string         `json:"date"`
	Requests  int            `json:"requests"`
	Endpoints map[string]int `json:"endpoints"`
}

// UserUsage is a trailing day-by-day breakdown for one user.
type UserUsage struct {
	UserID             string     `json:"userId"`
	Days               []DayUsage `json:"days"`
	TotalRequests      int64      `json:"totalRequests"`
	SuccessfulRequests int64      `json:"successfulRequests"`
}

// MetricsRecorder receives monitor events.
type MetricsRecorder interface {
	RecordUsage(cost float64, success bool)
	RecordAlert(alertType, severity string)
	RecordAlertDropped()
}
