package queue

import (
	"context"
	"time"

	"mercator-hq/governor/pkg/limits/ratelimit"
)

// Priority is a scheduling lane. Lower values are served first.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
)

// lanes is the number of priority lanes.
const lanes = 3

// String returns the lane name.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

// PriorityFor maps a tier to its lane. Urgent submissions always go to the
// high lane.
func PriorityFor(tier ratelimit.Tier, urgent bool) Priority {
	if urgent {
		return PriorityHigh
	}
	switch tier {
	case ratelimit.TierPremium:
		return PriorityHigh
	case ratelimit.TierPaid:
		return PriorityNormal
	default:
		return PriorityLow
	}
}

// Status is the lifecycle state of a queued request.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
	StatusNotFound   Status = "not_found"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

// Submission is a request offered to the queue.
type Submission struct {
	UserID  string
	Tier    ratelimit.Tier
	Type    string
	Payload any

	// Urgent places the request in the high lane regardless of tier.
	Urgent bool
}

// Result is produced by a successful Processor call.
type Result struct {
	// Output is the generated content.
	Output any `json:"output"`

	// TokensUsed is the token usage reported or estimated for the call.
	TokensUsed int `json:"tokensUsed"`

	// ProcessingTime is the duration of the successful attempt sequence.
	ProcessingTime time.Duration `json:"processingTime"`
}

// Request is a queued AI generation request. Values returned by the queue
// are snapshots and may be read freely.
type Request struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId"`
	Tier        ratelimit.Tier `json:"tier"`
	Type        string         `json:"type"`
	Payload     any            `json:"-"`
	Priority    Priority       `json:"priority"`
	Status      Status         `json:"status"`
	Attempts    int            `json:"attempts"`
	Result      *Result        `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	EnqueuedAt  time.Time      `json:"enqueuedAt"`
	TimeoutAt   time.Time      `json:"timeoutAt"`
	StartedAt   time.Time      `json:"startedAt,omitempty"`
	CompletedAt time.Time      `json:"completedAt,omitempty"`

	err error
}

// Err returns the terminal error of a failed or expired request.
func (r *Request) Err() error {
	return r.err
}

// Ticket is returned on admission.
type Ticket struct {
	RequestID     string        `json:"requestId"`
	Position      int           `json:"queuePosition"`
	EstimatedWait time.Duration `json:"estimatedWaitTime"`
	Priority      Priority      `json:"priority"`
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	High                  int           `json:"high"`
	Normal                int           `json:"normal"`
	Low                   int           `json:"low"`
	TotalQueued           int           `json:"totalQueued"`
	Processing            int           `json:"processing"`
	MaxConcurrent         int           `json:"maxConcurrent"`
	CurrentLoad           float64       `json:"currentLoad"`
	Completed             int64         `json:"completed"`
	Failed                int64         `json:"failed"`
	Expired               int64         `json:"expired"`
	Retained              int           `json:"retained"`
	AverageProcessingTime time.Duration `json:"averageProcessingTime"`
}

// Processor performs the upstream call for a request. ctx carries the
// per-attempt deadline and is cancelled when the attempt times out.
type Processor interface {
	Process(ctx context.Context, req *Request) (*Result, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, req *Request) (*Result, error)

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, req *Request) (*Result, error) {
	return f(ctx, req)
}

// MetricsRecorder receives queue events.
type MetricsRecorder interface {
	SetQueueDepth(lane string, depth int)
	SetProcessing(n int)
	RecordQueueOutcome(status string)
	RecordQueueRejection(reason string)
	ObserveQueueWait(d time.Duration)
}
