package types

import "time"

// GenerationResult is the result of a completed generation.
type GenerationResult struct {
	GeneratedText    string  `json:"generatedText"`
	TokensUsed       int     `json:"tokensUsed"`
	ProcessingTimeMs int64   `json:"processingTime"`
	Cost             float64 `json:"cost"`
	Attempts         int     `json:"attempts,omitempty"`
}

// GenerateResponse is returned by the AI generation endpoints. A completed
// generation carries Result; a deferred one carries the queue ticket.
type GenerateResponse struct {
	Success bool `json:"success"`

	Result *GenerationResult `json:"result,omitempty"`

	Queued          bool   `json:"queued,omitempty"`
	RequestID       string `json:"requestId,omitempty"`
	QueuePosition   int    `json:"queuePosition,omitempty"`
	EstimatedWaitMs int64  `json:"estimatedWaitTime,omitempty"`
	Message         string `json:"message,omitempty"`
	StatusURL       string `json:"statusUrl,omitempty"`
}

// StatusResponse is the status of a queued request.
type StatusResponse struct {
	RequestID   string            `json:"requestId"`
	Status      string            `json:"status"`
	UserID      string            `json:"userId"`
	Tier        string            `json:"tier"`
	Type        string            `json:"type"`
	Priority    string            `json:"priority"`
	Attempts    int               `json:"attempts"`
	Result      *GenerationResult `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	EnqueuedAt  time.Time         `json:"enqueuedAt"`
	StartedAt   *time.Time        `json:"startedAt,omitempty"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string      `json:"status"`
	Queue     QueueHealth `json:"queue"`
	Usage     UsageHealth `json:"usage"`
	Timestamp time.Time   `json:"timestamp"`
}

// QueueHealth is the queue part of a health response.
type QueueHealth struct {
	TotalQueued int     `json:"totalQueued"`
	Processing  int     `json:"processing"`
	CurrentLoad float64 `json:"currentLoad"`
}

// UsageHealth is the usage part of a health response.
type UsageHealth struct {
	TotalCosts  float64 `json:"totalCosts"`
	ActiveUsers int     `json:"activeUsers"`
	SuccessRate float64 `json:"successRate"`
}

// UsageStatsResponse is the body of GET /admin/usage-stats.
type UsageStatsResponse struct {
	Usage     UsageStats `json:"usage"`
	Queue     QueueStats `json:"queue"`
	Timestamp time.Time  `json:"timestamp"`
}

// UsageStats summarizes usage for one period.
type UsageStats struct {
	Timeframe   string  `json:"timeframe"`
	Period      string  `json:"period"`
	TotalCosts  float64 `json:"totalCosts"`
	TotalCalls  int64   `json:"totalCalls"`
	FailedCalls int64   `json:"failedCalls"`
	ActiveUsers int     `json:"activeUsers"`
	SuccessRate float64 `json:"successRate"`
}

// QueueStats is a point-in-time view of the queue.
type QueueStats struct {
	High                    int     `json:"high"`
	Normal                  int     `json:"normal"`
	Low                     int     `json:"low"`
	TotalQueued             int     `json:"totalQueued"`
	Processing              int     `json:"processing"`
	MaxConcurrent           int     `json:"maxConcurrent"`
	CurrentLoad             float64 `json:"currentLoad"`
	Completed               int64   `json:"completed"`
	Failed                  int64   `json:"failed"`
	Expired                 int64   `json:"expired"`
	AverageProcessingTimeMs int64   `json:"averageProcessingTime"`
}

// Alert is a stored usage alert.
type Alert struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	UserID    string    `json:"userId,omitempty"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertsResponse is the body of GET /admin/alerts.
type AlertsResponse struct {
	Alerts []Alert `json:"alerts"`
	Count  int     `json:"count"`
}

// DayUsage is one day of a user's activity.
type DayUsage struct {
	Date      string         `json:"date"`
	Requests  int            `json:"requests"`
	Endpoints map[string]int `json:"endpoints"`
}

// UserUsageResponse is the body of GET /user/usage.
type UserUsageResponse struct {
	UserID             string     `json:"userId"`
	Days               []DayUsage `json:"days"`
	TotalRequests      int64      `json:"totalRequests"`
	SuccessfulRequests int64      `json:"successfulRequests"`
}
