package limits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/governor/pkg/config"
	"mercator-hq/governor/pkg/limits/queue"
	"mercator-hq/governor/pkg/limits/ratelimit"
	"mercator-hq/governor/pkg/limits/usage"
	"mercator-hq/governor/pkg/processing/costs"
	"mercator-hq/governor/pkg/telemetry/tracing"
	"mercator-hq/governor/pkg/upstream"
)

const instrumentation = tracing.InstrumentationName + "/limits"

// ErrUsageControl marks a failure of the orchestrator's own bookkeeping,
// as opposed to a rejection or a failed generation.
var ErrUsageControl = errors.New("usage control failure")

// tracer resolves the global provider per call so a provider installed
// after construction is honoured.
func tracer() trace.Tracer {
	return otel.Tracer(instrumentation)
}

// Deps are the components a Manager orchestrates.
type Deps struct {
	Limiter   *ratelimit.Limiter
	Queue     *queue.Queue
	Monitor   *usage.Monitor
	Estimator *costs.Estimator
	Generator upstream.Generator
}

// settings is the part of the configuration read per request.
type settings struct {
	queueEnabled   bool
	graceful       bool
	aiPrefixes     []string
	maxWait        time.Duration
	pollInterval   time.Duration
	requestTimeout time.Duration
}

func settingsFrom(cfg *config.Config) settings {
	prefixes := make([]string, len(cfg.UsageControl.AIPathPrefixes))
	copy(prefixes, cfg.UsageControl.AIPathPrefixes)
	return settings{
		queueEnabled:   cfg.UsageControl.QueueEnabled,
		graceful:       cfg.UsageControl.GracefulDegradation,
		aiPrefixes:     prefixes,
		maxWait:        cfg.Queue.MaxWaitTime,
		pollInterval:   cfg.Queue.PollInterval,
		requestTimeout: cfg.Queue.RequestTimeout,
	}
}

// Manager is the usage-control orchestrator. It classifies requests,
// applies rate limits, routes AI generation through the queue and feeds
// the usage monitor.
type Manager struct {
	limiter   *ratelimit.Limiter
	queue     *queue.Queue
	monitor   *usage.Monitor
	estimator *costs.Estimator
	generator upstream.Generator
	logger    *slog.Logger
	now       func() time.Time

	mu  sync.RWMutex
	cfg settings

	tracking sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger.With("component", "usage_control")
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager for cfg. Limiter, Monitor, Estimator and
// Generator are required; Queue is required unless queueing is disabled.
func NewManager(cfg *config.Config, deps Deps, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	switch {
	case deps.Limiter == nil:
		return nil, fmt.Errorf("rate limiter is required")
	case deps.Monitor == nil:
		return nil, fmt.Errorf("usage monitor is required")
	case deps.Estimator == nil:
		return nil, fmt.Errorf("cost estimator is required")
	case deps.Generator == nil:
		return nil, fmt.Errorf("generator is required")
	case deps.Queue == nil && cfg.UsageControl.QueueEnabled:
		return nil, fmt.Errorf("queue is required when queueing is enabled")
	}

	m := &Manager{
		limiter:   deps.Limiter,
		queue:     deps.Queue,
		monitor:   deps.Monitor,
		estimator: deps.Estimator,
		generator: deps.Generator,
		logger:    slog.Default().With("component", "usage_control"),
		now:       time.Now,
		cfg:       settingsFrom(cfg),
	}
	for _, opt := range opts {
		opt(m)
	}

	if !m.cfg.queueEnabled {
		m.logger.Warn("Smart queue bypassed, AI requests call the upstream directly")
	}
	return m, nil
}

// Start starts the queue and the usage monitor.
func (m *Manager) Start(ctx context.Context) error {
	if m.queue != nil {
		if err := m.queue.Start(ctx); err != nil {
			return fmt.Errorf("failed to start queue: %w", err)
		}
	}
	if err := m.monitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start usage monitor: %w", err)
	}
	return nil
}

// Stop drains the queue, waits for pending tracking and flushes alerts,
// all bounded by ctx.
func (m *Manager) Stop(ctx context.Context) error {
	var errs []error
	if m.queue != nil {
		if err := m.queue.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("queue: %w", err))
		}
	}

	tracked := make(chan struct{})
	go func() {
		m.tracking.Wait()
		close(tracked)
	}()
	select {
	case <-tracked:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("tracking: %w", ctx.Err()))
	}

	if err := m.monitor.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("usage monitor: %w", err))
	}
	return errors.Join(errs...)
}

// UpdateConfig applies a new configuration snapshot to every component.
func (m *Manager) UpdateConfig(cfg *config.Config) {
	m.limiter.UpdateConfig(cfg.RateLimit)
	if m.queue != nil {
		m.queue.UpdateConfig(cfg.Queue)
	}
	m.monitor.UpdateConfig(cfg.Monitoring)
	m.estimator.UpdatePricing(costs.PricingFromConfig(cfg.Costs))

	next := settingsFrom(cfg)
	if next.queueEnabled && m.queue == nil {
		m.logger.Warn("Queueing enabled without a queue, keeping direct generation")
		next.queueEnabled = false
	}

	m.mu.Lock()
	m.cfg = next
	m.mu.Unlock()

	m.logger.Info("Usage control configuration updated",
		"queue_enabled", next.queueEnabled,
		"graceful_degradation", next.graceful,
	)
}

func (m *Manager) settings() settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// GracefulDegradation reports whether requests proceed when usage control
// itself fails.
func (m *Manager) GracefulDegradation() bool {
	return m.settings().graceful
}

// IsAIRequest reports whether path is an AI generation endpoint.
func (m *Manager) IsAIRequest(path string) bool {
	for _, prefix := range m.settings().aiPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// CheckLimit applies burst protection and then the category limits for key.
func (m *Manager) CheckLimit(ctx context.Context, category ratelimit.Category, key string, tier ratelimit.Tier) (*ratelimit.CheckResult, error) {
	return m.limiter.CheckRequest(ctx, category, key, tier)
}

// CompleteLimit reports the outcome of a request that passed CheckLimit.
func (m *Manager) CompleteLimit(ctx context.Context, category ratelimit.Category, key string, tier ratelimit.Tier, success bool) {
	m.limiter.Complete(ctx, ratelimit.Request{Category: category, Key: key, Tier: tier}, success)
}

// Generate runs an AI generation under usage control.
//
// With queueing enabled the request is admitted to the queue. When the
// estimated wait is within the wait budget, Generate polls until the
// request finishes or the budget is spent; otherwise, or when the budget
// runs out, it returns a deferred outcome carrying the ticket. Admission
// failures are returned as *queue.AdmissionError. A failed generation
// returns the outcome together with a *queue.GenerationError.
//
// Any other failure is internal. With graceful degradation the request is
// then generated directly, bypassing the queue; otherwise the error wraps
// ErrUsageControl.
func (m *Manager) Generate(ctx context.Context, req GenerationRequest) (out *GenerationOutcome, err error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("generation requires a user id")
	}
	s := m.settings()

	ctx, span := tracer().Start(ctx, "usage_control.generate", trace.WithAttributes(
		tracing.AttrUserID.String(req.UserID),
		tracing.AttrTier.String(string(req.Tier)),
		tracing.AttrQueued.Bool(s.queueEnabled),
	))
	defer func() {
		if out != nil {
			span.SetAttributes(tracing.AttrStatus.String(string(out.Status)))
			if out.RequestID != "" {
				span.SetAttributes(tracing.AttrRequestID.String(out.RequestID))
			}
		}
		tracing.RecordError(span, err)
		span.End()
	}()

	if !s.queueEnabled {
		return m.generateDirect(ctx, req, s)
	}

	out, err = m.generateQueued(ctx, span, req, s)
	if err == nil || expectedFailure(ctx, err) {
		return out, err
	}
	if !s.graceful {
		return nil, fmt.Errorf("%w: %v", ErrUsageControl, err)
	}
	m.logger.Warn("Usage control failed, generating without the queue",
		"user_id", req.UserID,
		"error", err,
	)
	span.AddEvent("graceful_degradation", trace.WithAttributes(attribute.String("error", err.Error())))
	return m.generateDirect(ctx, req, s)
}

// expectedFailure reports whether err belongs to the usage-control error
// taxonomy or is the caller's own cancellation.
func expectedFailure(ctx context.Context, err error) bool {
	var admission *queue.AdmissionError
	switch {
	case errors.As(err, &admission),
		errors.Is(err, queue.ErrGenerationFailure),
		errors.Is(err, queue.ErrRequestTimeout),
		errors.Is(err, queue.ErrStopped):
		return true
	}
	return ctx.Err() != nil && errors.Is(err, ctx.Err())
}

// generateQueued admits req to the queue and waits for it within the wait
// budget.
func (m *Manager) generateQueued(ctx context.Context, span trace.Span, req GenerationRequest, s settings) (*GenerationOutcome, error) {
	ticket, err := m.queue.AddRequest(ctx, queue.Submission{
		UserID: req.UserID,
		Tier:   req.Tier,
		Type:   req.Prompt.Type,
		Payload: &Job{
			Endpoint: req.Endpoint,
			Prompt:   req.Prompt,
			Trace:    trace.SpanContextFromContext(ctx),
		},
		Urgent: req.Urgent,
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		tracing.AttrPriority.String(ticket.Priority.String()),
		attribute.Int("governor.queue.position", ticket.Position),
	)

	deferred := &GenerationOutcome{
		RequestID: ticket.RequestID,
		Status:    queue.StatusQueued,
		Ticket:    ticket,
	}
	if ticket.EstimatedWait >= s.maxWait {
		m.logger.Debug("Estimated wait exceeds budget, deferring",
			"request_id", ticket.RequestID,
			"estimated_wait", ticket.EstimatedWait,
			"max_wait", s.maxWait,
		)
		return deferred, nil
	}

	return m.poll(ctx, deferred, s)
}

// poll waits for the queued request until it is terminal or the wait
// budget is spent.
func (m *Manager) poll(ctx context.Context, deferred *GenerationOutcome, s settings) (*GenerationOutcome, error) {
	budget := time.NewTimer(s.maxWait)
	defer budget.Stop()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		req, err := m.queue.GetRequestStatus(deferred.RequestID)
		if err != nil {
			return nil, fmt.Errorf("request %s: %w", deferred.RequestID, err)
		}

		switch req.Status {
		case queue.StatusCompleted:
			return m.completedOutcome(req), nil
		case queue.StatusFailed, queue.StatusExpired:
			return &GenerationOutcome{
				RequestID: req.ID,
				Status:    req.Status,
				Attempts:  req.Attempts,
			}, req.Err()
		}
		deferred.Status = req.Status

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-budget.C:
			m.logger.Debug("Wait budget exhausted, deferring",
				"request_id", deferred.RequestID,
				"status", deferred.Status,
			)
			return deferred, nil
		case <-ticker.C:
		}
	}
}

func (m *Manager) completedOutcome(req *queue.Request) *GenerationOutcome {
	out := &GenerationOutcome{
		RequestID: req.ID,
		Status:    req.Status,
		Attempts:  req.Attempts,
	}
	if req.Result != nil {
		text, _ := req.Result.Output.(string)
		out.Completion = &upstream.Completion{Text: text, TokensUsed: req.Result.TokensUsed}
		out.ProcessingTime = req.Result.ProcessingTime
		out.Cost = m.estimator.EstimateCost(req.Result.TokensUsed)
	}
	return out
}

// generateDirect calls the generator without queueing. Rate limiting and
// usage tracking still apply.
func (m *Manager) generateDirect(ctx context.Context, req GenerationRequest, s settings) (*GenerationOutcome, error) {
	prompt := req.Prompt
	prompt.UserID = req.UserID

	attemptCtx := ctx
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	start := m.now()
	completion, err := m.generator.Generate(attemptCtx, prompt)
	elapsed := m.now().Sub(start)

	call := usage.Call{
		UserID:    req.UserID,
		Endpoint:  req.Endpoint,
		Success:   err == nil,
		Duration:  elapsed,
		Timestamp: m.now(),
	}
	if err != nil {
		m.monitor.TrackAPICall(call)
		return &GenerationOutcome{Status: queue.StatusFailed, Attempts: 1},
			&queue.GenerationError{Attempts: 1, Err: err}
	}

	cost := m.estimator.EstimateCost(completion.TokensUsed)
	call.Cost = cost
	m.monitor.TrackAPICall(call)

	return &GenerationOutcome{
		Status:         queue.StatusCompleted,
		Completion:     completion,
		Cost:           cost,
		ProcessingTime: elapsed,
		Attempts:       1,
	}, nil
}

// RequestStatus returns the queued request with id.
func (m *Manager) RequestStatus(id string) (*queue.Request, error) {
	if m.queue == nil {
		return nil, queue.ErrNotFound
	}
	return m.queue.GetRequestStatus(id)
}

// TrackRequest records a non-AI call with the monitor without blocking the
// caller. Panics in tracking are recovered and logged.
func (m *Manager) TrackRequest(call usage.Call) {
	if call.Timestamp.IsZero() {
		call.Timestamp = m.now()
	}
	m.tracking.Add(1)
	go func() {
		defer m.tracking.Done()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("Usage tracking panicked",
					"user_id", call.UserID,
					"endpoint", call.Endpoint,
					"panic", r,
				)
			}
		}()
		m.monitor.TrackAPICall(call)
	}()
}

// Health reports queue load and today's usage. The status is degraded
// when load exceeds 90% or more than 500 requests are queued.
func (m *Manager) Health() HealthReport {
	stats := m.monitor.GetUsageStats(usage.TimeframeDaily)
	report := HealthReport{
		Status: StatusHealthy,
		Usage: UsageHealth{
			TotalCosts:  stats.TotalCosts,
			ActiveUsers: stats.ActiveUsers,
			SuccessRate: stats.SuccessRate,
		},
		Timestamp: m.now(),
	}

	if m.queue != nil {
		q := m.queue.GetQueueStats()
		report.Queue = QueueHealth{
			TotalQueued: q.TotalQueued,
			Processing:  q.Processing,
			CurrentLoad: q.CurrentLoad,
		}
	}
	if report.Queue.CurrentLoad > degradedLoad || report.Queue.TotalQueued > degradedQueued {
		report.Status = StatusDegraded
	}
	return report
}

// UsageStats returns the administrative usage report for timeframe.
func (m *Manager) UsageStats(timeframe usage.Timeframe) AdminStats {
	out := AdminStats{
		Usage:     m.monitor.GetUsageStats(timeframe),
		Timestamp: m.now(),
	}
	if m.queue != nil {
		out.Queue = m.queue.GetQueueStats()
	}
	return out
}

// UserUsage returns the day-by-day usage of userID.
func (m *Manager) UserUsage(userID string, days int) usage.UserUsage {
	return m.monitor.GetUserUsage(userID, days)
}
