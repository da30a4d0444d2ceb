package limits

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"mercator-hq/governor/pkg/limits/queue"
	"mercator-hq/governor/pkg/limits/ratelimit"
	"mercator-hq/governor/pkg/limits/usage"
	"mercator-hq/governor/pkg/upstream"
)

// GenerationRequest is an AI generation submitted through the Manager.
type GenerationRequest struct {
	// UserID identifies the caller. Required.
	UserID string

	// Tier selects queue priority and per-user limits.
	Tier ratelimit.Tier

	// Endpoint is the request path, recorded with usage.
	Endpoint string

	// Prompt is forwarded to the generator.
	Prompt upstream.Prompt

	// Urgent places the request in the high lane.
	Urgent bool
}

// Job is the queue payload of a generation request.
type Job struct {
	Endpoint string
	Prompt   upstream.Prompt

	// Trace is the span context of the submitting request. Worker spans
	// are parented to it.
	Trace trace.SpanContext
}

// GenerationOutcome is the result of Manager.Generate. Exactly one of
// Completion or Ticket is set.
type GenerationOutcome struct {
	// RequestID identifies the queued request. Empty when the queue was
	// bypassed.
	RequestID string

	// Status is the queue status when Generate returned.
	Status queue.Status

	// Completion is set when the generation finished within the wait budget.
	Completion *upstream.Completion

	// Cost is the estimated cost of the completion in USD.
	Cost float64

	// ProcessingTime is how long the successful attempts took.
	ProcessingTime time.Duration

	// Attempts is the number of upstream calls made.
	Attempts int

	// Ticket is set when the request is still queued or processing.
	Ticket *queue.Ticket
}

// Deferred reports whether the caller must poll for the result.
func (o *GenerationOutcome) Deferred() bool {
	return o.Ticket != nil
}

// Health status values.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Degradation thresholds for Health.
const (
	degradedLoad   = 90.0
	degradedQueued = 500
)

// QueueHealth is the queue part of a health report.
type QueueHealth struct {
	TotalQueued int     `json:"totalQueued"`
	Processing  int     `json:"processing"`
	CurrentLoad float64 `json:"currentLoad"`
}

// UsageHealth is the usage part of a health report.
type UsageHealth struct {
	TotalCosts  float64 `json:"totalCosts"`
	ActiveUsers int     `json:"activeUsers"`
	SuccessRate float64 `json:"successRate"`
}

// HealthReport summarizes the usage-control layer.
type HealthReport struct {
	Status    string      `json:"status"`
	Queue     QueueHealth `json:"queue"`
	Usage     UsageHealth `json:"usage"`
	Timestamp time.Time   `json:"timestamp"`
}

// Healthy reports whether the status is healthy.
func (h HealthReport) Healthy() bool {
	return h.Status == StatusHealthy
}

// AdminStats is the administrative usage report.
type AdminStats struct {
	Usage     usage.Stats `json:"usage"`
	Queue     queue.Stats `json:"queue"`
	Timestamp time.Time   `json:"timestamp"`
}
