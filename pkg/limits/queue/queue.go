package queue

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"mercator-hq/governor/pkg/config"
	"mercator-hq/governor/pkg/limits/ratelimit"
)

// Queue is a bounded, priority-ordered, concurrency-limited scheduler.
//
// Admitted requests wait in one of three FIFO lanes. A dispatcher hands the
// head of the highest non-empty lane to a worker whenever a concurrency slot
// is free. There is no aging between lanes: sustained high-lane load can
// starve the low lane.
type Queue struct {
	processor Processor
	logger    *slog.Logger
	metrics   MetricsRecorder
	now       func() time.Time
	onDone    []func(Request)

	mu         sync.Mutex
	cfg        config.QueueConfig
	lanes      [lanes]*list.List
	active     map[string]*Request
	perUser    map[string]int
	processing int
	completed  int64
	failed     int64
	expired    int64
	avgTime    time.Duration
	samples    int64
	started    bool
	stopped    bool

	done  *cache.Cache
	slots *ratelimit.ConcurrentLimiter
	wake  chan struct{}

	cancelDispatch context.CancelFunc
	cancelWork     context.CancelFunc
	loops          sync.WaitGroup
	workers        sync.WaitGroup
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger.With("component", "queue")
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(q *Queue) { q.metrics = m }
}

// WithClock overrides the time source used for expiry and timestamps.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithCompletionHook registers fn to run once for every request that
// reaches a terminal state. fn runs on the worker goroutine and must not
// block.
func WithCompletionHook(fn func(Request)) Option {
	return func(q *Queue) { q.onDone = append(q.onDone, fn) }
}

// New creates a queue. Call Start to begin dispatching.
func New(cfg config.QueueConfig, processor Processor, opts ...Option) *Queue {
	q := &Queue{
		processor: processor,
		logger:    slog.Default().With("component", "queue"),
		now:       time.Now,
		cfg:       cfg,
		active:    make(map[string]*Request),
		perUser:   make(map[string]int),
		avgTime:   cfg.DefaultProcessingTime,
		done:      cache.New(cfg.CompletedTTL, cfg.CleanupInterval),
		slots:     ratelimit.NewConcurrentLimiter(cfg.MaxConcurrent),
		wake:      make(chan struct{}, 1),
	}
	for i := range q.lanes {
		q.lanes[i] = list.New()
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// AddRequest admits a submission or rejects it with an *AdmissionError.
func (q *Queue) AddRequest(ctx context.Context, sub Submission) (*Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sub.UserID == "" {
		return nil, fmt.Errorf("submission requires a user id")
	}

	q.mu.Lock()

	if q.stopped {
		q.mu.Unlock()
		return nil, ErrStopped
	}

	tier := ratelimit.ParseTier(string(sub.Tier))

	queued := q.queuedLocked()
	if queued >= q.cfg.MaxQueueSize {
		retry := q.avgTime
		limit := q.cfg.MaxQueueSize
		q.mu.Unlock()
		q.reject("queue_full")
		return nil, &AdmissionError{Err: ErrQueueFull, Tier: tier, Limit: limit, RetryAfter: retry}
	}

	userLimit := q.cfg.UserQueueLimits.Tier(string(tier))
	if q.perUser[sub.UserID] >= userLimit {
		q.mu.Unlock()
		q.reject("user_limit")
		return nil, &AdmissionError{Err: ErrUserQueueLimitExceeded, Tier: tier, Limit: userLimit}
	}

	now := q.now()
	req := &Request{
		ID:         uuid.NewString(),
		UserID:     sub.UserID,
		Tier:       tier,
		Type:       sub.Type,
		Payload:    sub.Payload,
		Priority:   PriorityFor(tier, sub.Urgent),
		Status:     StatusQueued,
		EnqueuedAt: now,
		TimeoutAt:  now.Add(q.cfg.QueueTimeouts.Tier(string(tier))),
	}

	q.lanes[req.Priority].PushBack(req)
	q.active[req.ID] = req
	q.perUser[req.UserID]++

	position := 0
	for p := PriorityHigh; p <= req.Priority; p++ {
		position += q.lanes[p].Len()
	}
	wait := time.Duration(float64(q.avgTime) * float64(position) / float64(q.cfg.MaxConcurrent))

	ticket := &Ticket{
		RequestID:     req.ID,
		Position:      position,
		EstimatedWait: wait,
		Priority:      req.Priority,
	}
	q.publishDepthLocked()
	q.mu.Unlock()

	q.logger.Debug("Request queued",
		"request_id", req.ID,
		"user_id", req.UserID,
		"tier", req.Tier,
		"priority", req.Priority.String(),
		"position", position,
	)

	q.signal()
	return ticket, nil
}

// GetRequestStatus returns a snapshot of the request or ErrNotFound once
// it is unknown or its retention has elapsed.
func (q *Queue) GetRequestStatus(id string) (*Request, error) {
	q.mu.Lock()
	if req, ok := q.active[id]; ok {
		snap := *req
		q.mu.Unlock()
		return &snap, nil
	}
	q.mu.Unlock()

	if v, ok := q.done.Get(id); ok {
		snap := *(v.(*Request))
		return &snap, nil
	}
	return nil, ErrNotFound
}

// GetQueueStats returns per-lane counts and load.
func (q *Queue) GetQueueStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{
		High:                  q.lanes[PriorityHigh].Len(),
		Normal:                q.lanes[PriorityNormal].Len(),
		Low:                   q.lanes[PriorityLow].Len(),
		Processing:            q.processing,
		MaxConcurrent:         q.cfg.MaxConcurrent,
		Completed:             q.completed,
		Failed:                q.failed,
		Expired:               q.expired,
		Retained:              q.done.ItemCount(),
		AverageProcessingTime: q.avgTime,
	}
	s.TotalQueued = s.High + s.Normal + s.Low
	if s.MaxConcurrent > 0 {
		s.CurrentLoad = float64(s.Processing) / float64(s.MaxConcurrent) * 100
	}
	return s
}

// Running reports whether the queue has started and not yet stopped.
func (q *Queue) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.started && !q.stopped
}

// UpdateConfig applies new bounds. Requests already admitted keep their
// timeout; retention changes apply to requests finishing afterwards.
func (q *Queue) UpdateConfig(cfg config.QueueConfig) {
	q.mu.Lock()
	q.cfg = cfg
	q.mu.Unlock()
	q.slots.SetLimit(cfg.MaxConcurrent)
	q.signal()
}

func (q *Queue) queuedLocked() int {
	n := 0
	for _, l := range q.lanes {
		n += l.Len()
	}
	return n
}

func (q *Queue) hasQueued() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queuedLocked() > 0
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) reject(reason string) {
	if q.metrics != nil {
		q.metrics.RecordQueueRejection(reason)
	}
}

func (q *Queue) publishDepthLocked() {
	if q.metrics == nil {
		return
	}
	for p := PriorityHigh; p <= PriorityLow; p++ {
		q.metrics.SetQueueDepth(p.String(), q.lanes[p].Len())
	}
	q.metrics.SetProcessing(q.processing)
}
