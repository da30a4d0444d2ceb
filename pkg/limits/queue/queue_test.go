package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/governor/pkg/config"
	"mercator-hq/governor/pkg/limits/ratelimit"
)

func testConfig() config.QueueConfig {
	cfg := config.Base().Queue
	cfg.MaxConcurrent = 2
	cfg.MaxQueueSize = 10
	cfg.RequestTimeout = 500 * time.Millisecond
	cfg.RetryAttempts = 2
	cfg.RetryDelay = time.Millisecond
	cfg.CleanupInterval = time.Hour
	cfg.CompletedTTL = time.Minute
	cfg.DefaultProcessingTime = time.Second
	return cfg
}

func okProcessor() Processor {
	return ProcessorFunc(func(ctx context.Context, req *Request) (*Result, error) {
		return &Result{Output: "ok", TokensUsed: 10}, nil
	})
}

func startQueue(t *testing.T, q *Queue) {
	t.Helper()
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		q.Stop(ctx)
	})
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func waitStatus(t *testing.T, q *Queue, id string, want Status) *Request {
	t.Helper()
	var last *Request
	waitFor(t, 3*time.Second, func() bool {
		req, err := q.GetRequestStatus(id)
		if err != nil {
			return false
		}
		last = req
		return req.Status == want
	})
	return last
}

func submit(t *testing.T, q *Queue, user string, tier ratelimit.Tier) *Ticket {
	t.Helper()
	ticket, err := q.AddRequest(context.Background(), Submission{UserID: user, Tier: tier, Type: "text"})
	if err != nil {
		t.Fatalf("AddRequest(%s) failed: %v", user, err)
	}
	return ticket
}

// ============================================================================
// Admission
// ============================================================================

func TestAddRequest_UserQueueLimit(t *testing.T) {
	q := New(testConfig(), okProcessor())

	for i := 0; i < 5; i++ {
		submit(t, q, "user-1", ratelimit.TierFree)
	}

	_, err := q.AddRequest(context.Background(), Submission{UserID: "user-1", Tier: ratelimit.TierFree})
	if !errors.Is(err, ErrUserQueueLimitExceeded) {
		t.Fatalf("Expected ErrUserQueueLimitExceeded, got %v", err)
	}
	var ae *AdmissionError
	if !errors.As(err, &ae) {
		t.Fatalf("Expected *AdmissionError, got %T", err)
	}
	if ae.Limit != 5 {
		t.Errorf("Expected limit 5, got %d", ae.Limit)
	}
	if ae.Tier != ratelimit.TierFree {
		t.Errorf("Expected tier free, got %s", ae.Tier)
	}

	// Other users are unaffected.
	submit(t, q, "user-2", ratelimit.TierFree)
}

func TestAddRequest_UserQueueLimitByTier(t *testing.T) {
	cfg := testConfig()
	cfg.MaxQueueSize = 100
	q := New(cfg, okProcessor())

	for i := 0; i < 20; i++ {
		submit(t, q, "paid-user", ratelimit.TierPaid)
	}
	if _, err := q.AddRequest(context.Background(), Submission{UserID: "paid-user", Tier: ratelimit.TierPaid}); !errors.Is(err, ErrUserQueueLimitExceeded) {
		t.Errorf("Expected paid user rejected at 21st request, got %v", err)
	}
}

func TestAddRequest_QueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.MaxQueueSize = 3
	q := New(cfg, okProcessor())

	for i := 0; i < 3; i++ {
		submit(t, q, fmt.Sprintf("user-%d", i), ratelimit.TierFree)
	}

	_, err := q.AddRequest(context.Background(), Submission{UserID: "user-x", Tier: ratelimit.TierPremium})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Expected ErrQueueFull, got %v", err)
	}
	var ae *AdmissionError
	if errors.As(err, &ae) && ae.RetryAfter <= 0 {
		t.Errorf("Expected a positive retry hint, got %s", ae.RetryAfter)
	}
}

func TestAddRequest_RequiresUser(t *testing.T) {
	q := New(testConfig(), okProcessor())
	if _, err := q.AddRequest(context.Background(), Submission{Tier: ratelimit.TierFree}); err == nil {
		t.Error("Expected error for missing user id")
	}
}

func TestAddRequest_PositionAndEstimatedWait(t *testing.T) {
	q := New(testConfig(), okProcessor())

	first := submit(t, q, "free-1", ratelimit.TierFree)
	if first.Position != 1 || first.Priority != PriorityLow {
		t.Errorf("Expected position 1 in low lane, got %d in %s", first.Position, first.Priority)
	}

	premium := submit(t, q, "premium-1", ratelimit.TierPremium)
	if premium.Position != 1 || premium.Priority != PriorityHigh {
		t.Errorf("Expected premium ahead of free, got position %d in %s", premium.Position, premium.Priority)
	}

	second := submit(t, q, "free-2", ratelimit.TierFree)
	if second.Position != 3 {
		t.Errorf("Expected position 3, got %d", second.Position)
	}
	// 1s average * 3 / 2 workers
	if second.EstimatedWait != 1500*time.Millisecond {
		t.Errorf("Expected estimated wait 1.5s, got %s", second.EstimatedWait)
	}
}

func TestAddRequest_Urgent(t *testing.T) {
	q := New(testConfig(), okProcessor())
	ticket, err := q.AddRequest(context.Background(), Submission{UserID: "u", Tier: ratelimit.TierFree, Urgent: true})
	if err != nil {
		t.Fatalf("AddRequest failed: %v", err)
	}
	if ticket.Priority != PriorityHigh {
		t.Errorf("Expected urgent request in high lane, got %s", ticket.Priority)
	}
}

func TestGetQueueStats(t *testing.T) {
	q := New(testConfig(), okProcessor())
	submit(t, q, "a", ratelimit.TierFree)
	submit(t, q, "b", ratelimit.TierPaid)
	submit(t, q, "c", ratelimit.TierPaid)
	submit(t, q, "d", ratelimit.TierPremium)

	stats := q.GetQueueStats()
	if stats.High != 1 || stats.Normal != 2 || stats.Low != 1 {
		t.Errorf("Expected lanes 1/2/1, got %d/%d/%d", stats.High, stats.Normal, stats.Low)
	}
	if stats.TotalQueued != 4 {
		t.Errorf("Expected 4 queued, got %d", stats.TotalQueued)
	}
	if stats.CurrentLoad != 0 {
		t.Errorf("Expected zero load before start, got %f", stats.CurrentLoad)
	}
	if stats.MaxConcurrent != 2 {
		t.Errorf("Expected max concurrent 2, got %d", stats.MaxConcurrent)
	}
}

// ============================================================================
// Dispatch
// ============================================================================

func TestDispatch_PriorityOrder(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrent = 1

	var mu sync.Mutex
	var order []string
	q := New(cfg, ProcessorFunc(func(ctx context.Context, req *Request) (*Result, error) {
		mu.Lock()
		order = append(order, req.UserID)
		mu.Unlock()
		return &Result{}, nil
	}))

	submit(t, q, "free", ratelimit.TierFree)
	submit(t, q, "paid", ratelimit.TierPaid)
	submit(t, q, "premium", ratelimit.TierPremium)

	startQueue(t, q)
	waitFor(t, 3*time.Second, func() bool {
		return q.GetQueueStats().Completed == 3
	})

	mu.Lock()
	defer mu.Unlock()
	want := []string{"premium", "paid", "free"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, order)
		}
	}
}

func TestDispatch_MaxConcurrentNeverExceeded(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrent = 3
	cfg.MaxQueueSize = 100

	var inflight, peak atomic.Int64
	q := New(cfg, ProcessorFunc(func(ctx context.Context, req *Request) (*Result, error) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inflight.Add(-1)
		return &Result{}, nil
	}))

	var mu sync.Mutex
	seen := map[string]int{}
	q.onDone = append(q.onDone, func(r Request) {
		mu.Lock()
		seen[r.ID]++
		mu.Unlock()
	})

	startQueue(t, q)
	for i := 0; i < 30; i++ {
		submit(t, q, fmt.Sprintf("user-%d", i), ratelimit.TierPaid)
	}

	waitFor(t, 5*time.Second, func() bool {
		return q.GetQueueStats().Completed == 30
	})

	if p := peak.Load(); p > 3 {
		t.Errorf("Expected at most 3 concurrent requests, observed %d", p)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 30 {
		t.Errorf("Expected completion hook for 30 requests, got %d", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("Expected hook once for %s, got %d", id, n)
		}
	}
}

func TestDispatch_ReleasesUserSlot(t *testing.T) {
	q := New(testConfig(), okProcessor())
	startQueue(t, q)

	for i := 0; i < 5; i++ {
		ticket := submit(t, q, "user-1", ratelimit.TierFree)
		waitStatus(t, q, ticket.RequestID, StatusCompleted)
	}
	// Completed requests no longer count toward the per-user limit.
	submit(t, q, "user-1", ratelimit.TierFree)
}

func TestDispatch_CompletedResult(t *testing.T) {
	q := New(testConfig(), okProcessor())
	startQueue(t, q)

	ticket := submit(t, q, "user-1", ratelimit.TierPaid)
	req := waitStatus(t, q, ticket.RequestID, StatusCompleted)

	if req.Result == nil || req.Result.Output != "ok" {
		t.Fatalf("Expected result output, got %+v", req.Result)
	}
	if req.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", req.Attempts)
	}
	if req.StartedAt.IsZero() || req.CompletedAt.IsZero() {
		t.Error("Expected start and completion timestamps")
	}
}

// ============================================================================
// Retries and failures
// ============================================================================

func TestRetry_ExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	upstreamErr := errors.New("upstream unavailable")
	q := New(testConfig(), ProcessorFunc(func(ctx context.Context, req *Request) (*Result, error) {
		calls.Add(1)
		return nil, upstreamErr
	}))
	startQueue(t, q)

	ticket := submit(t, q, "user-1", ratelimit.TierFree)
	req := waitStatus(t, q, ticket.RequestID, StatusFailed)

	if req.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", req.Attempts)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("Expected 3 processor calls, got %d", got)
	}
	if !errors.Is(req.Err(), ErrGenerationFailure) {
		t.Errorf("Expected ErrGenerationFailure, got %v", req.Err())
	}
	if !errors.Is(req.Err(), upstreamErr) {
		t.Errorf("Expected last upstream error to be wrapped, got %v", req.Err())
	}
	if req.Error == "" {
		t.Error("Expected error message on failed request")
	}
}

func TestRetry_SucceedsAfterFailure(t *testing.T) {
	var calls atomic.Int32
	q := New(testConfig(), ProcessorFunc(func(ctx context.Context, req *Request) (*Result, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("transient")
		}
		return &Result{Output: "second"}, nil
	}))
	startQueue(t, q)

	ticket := submit(t, q, "user-1", ratelimit.TierFree)
	req := waitStatus(t, q, ticket.RequestID, StatusCompleted)
	if req.Attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", req.Attempts)
	}
}

func TestRetry_ZeroRetries(t *testing.T) {
	cfg := testConfig()
	cfg.RetryAttempts = 0
	var calls atomic.Int32
	q := New(cfg, ProcessorFunc(func(ctx context.Context, req *Request) (*Result, error) {
		calls.Add(1)
		return nil, errors.New("boom")
	}))
	startQueue(t, q)

	ticket := submit(t, q, "user-1", ratelimit.TierFree)
	req := waitStatus(t, q, ticket.RequestID, StatusFailed)
	if req.Attempts != 1 || calls.Load() != 1 {
		t.Errorf("Expected a single attempt, got %d attempts and %d calls", req.Attempts, calls.Load())
	}
}

func TestAttemptTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.RequestTimeout = 20 * time.Millisecond
	cfg.RetryAttempts = 0
	q := New(cfg, ProcessorFunc(func(ctx context.Context, req *Request) (*Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	startQueue(t, q)

	ticket := submit(t, q, "user-1", ratelimit.TierFree)
	req := waitStatus(t, q, ticket.RequestID, StatusFailed)
	if !errors.Is(req.Err(), context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", req.Err())
	}
}

func TestProcessorPanic(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrent = 1
	cfg.RetryAttempts = 0
	q := New(cfg, ProcessorFunc(func(ctx context.Context, req *Request) (*Result, error) {
		if req.UserID == "bad" {
			panic("processor exploded")
		}
		return &Result{}, nil
	}))
	startQueue(t, q)

	bad := submit(t, q, "bad", ratelimit.TierFree)
	waitStatus(t, q, bad.RequestID, StatusFailed)

	// The slot is released so later requests still run.
	good := submit(t, q, "good", ratelimit.TierFree)
	waitStatus(t, q, good.RequestID, StatusCompleted)
}

// ============================================================================
// Expiry and retention
// ============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSweepExpired(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	var calls atomic.Int32
	var hooks atomic.Int32
	q := New(testConfig(), ProcessorFunc(func(ctx context.Context, req *Request) (*Result, error) {
		calls.Add(1)
		return &Result{}, nil
	}), WithClock(clock.Now), WithCompletionHook(func(r Request) {
		if r.Status == StatusExpired {
			hooks.Add(1)
		}
	}))

	free := submit(t, q, "free", ratelimit.TierFree)
	premium := submit(t, q, "premium", ratelimit.TierPremium)

	// Free requests time out after 5 minutes, premium after 15.
	clock.Advance(5 * time.Minute)
	if n := q.SweepExpired(clock.Now()); n != 1 {
		t.Fatalf("Expected 1 expired request, got %d", n)
	}

	req, err := q.GetRequestStatus(free.RequestID)
	if err != nil {
		t.Fatalf("GetRequestStatus failed: %v", err)
	}
	if req.Status != StatusExpired {
		t.Errorf("Expected expired, got %s", req.Status)
	}
	if !errors.Is(req.Err(), ErrRequestTimeout) {
		t.Errorf("Expected ErrRequestTimeout, got %v", req.Err())
	}
	if hooks.Load() != 1 {
		t.Errorf("Expected one expiry hook, got %d", hooks.Load())
	}

	startQueue(t, q)
	waitStatus(t, q, premium.RequestID, StatusCompleted)
	if calls.Load() != 1 {
		t.Errorf("Expected only the premium request to be processed, got %d calls", calls.Load())
	}
}

func TestDispatch_SkipsExpired(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	var calls atomic.Int32
	q := New(testConfig(), ProcessorFunc(func(ctx context.Context, req *Request) (*Result, error) {
		calls.Add(1)
		return &Result{}, nil
	}), WithClock(clock.Now))

	ticket := submit(t, q, "free", ratelimit.TierFree)
	clock.Advance(6 * time.Minute)

	startQueue(t, q)
	waitStatus(t, q, ticket.RequestID, StatusExpired)

	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 0 {
		t.Errorf("Expected expired request never to be processed, got %d calls", calls.Load())
	}
	if q.GetQueueStats().Expired != 1 {
		t.Errorf("Expected expired count 1, got %d", q.GetQueueStats().Expired)
	}
}

func TestGetRequestStatus_NotFound(t *testing.T) {
	cfg := testConfig()
	cfg.CompletedTTL = 50 * time.Millisecond
	q := New(cfg, okProcessor())
	startQueue(t, q)

	if _, err := q.GetRequestStatus("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown id, got %v", err)
	}

	ticket := submit(t, q, "user-1", ratelimit.TierFree)
	waitStatus(t, q, ticket.RequestID, StatusCompleted)

	time.Sleep(100 * time.Millisecond)
	if _, err := q.GetRequestStatus(ticket.RequestID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after retention elapsed, got %v", err)
	}
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestRunning(t *testing.T) {
	q := New(testConfig(), okProcessor())
	if q.Running() {
		t.Error("Expected queue not running before Start")
	}
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !q.Running() {
		t.Error("Expected queue running after Start")
	}
	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if q.Running() {
		t.Error("Expected queue not running after Stop")
	}
}

func TestStop_DrainsInFlight(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrent = 1
	started := make(chan struct{}, 1)
	q := New(cfg, ProcessorFunc(func(ctx context.Context, req *Request) (*Result, error) {
		started <- struct{}{}
		time.Sleep(50 * time.Millisecond)
		return &Result{}, nil
	}))
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	inflight := submit(t, q, "a", ratelimit.TierFree)
	<-started
	waiting := submit(t, q, "b", ratelimit.TierFree)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if req, _ := q.GetRequestStatus(inflight.RequestID); req == nil || req.Status != StatusCompleted {
		t.Errorf("Expected in-flight request to complete, got %+v", req)
	}
	if req, _ := q.GetRequestStatus(waiting.RequestID); req == nil || req.Status != StatusExpired {
		t.Errorf("Expected queued request to expire on shutdown, got %+v", req)
	}

	if _, err := q.AddRequest(context.Background(), Submission{UserID: "c", Tier: ratelimit.TierFree}); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped after Stop, got %v", err)
	}
}

func TestStop_DeadlineCancelsWork(t *testing.T) {
	cfg := testConfig()
	cfg.RequestTimeout = 10 * time.Second
	started := make(chan struct{}, 1)
	q := New(cfg, ProcessorFunc(func(ctx context.Context, req *Request) (*Result, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ticket := submit(t, q, "a", ratelimit.TierFree)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected drain deadline error, got %v", err)
	}

	req, err := q.GetRequestStatus(ticket.RequestID)
	if err != nil {
		t.Fatalf("GetRequestStatus failed: %v", err)
	}
	if req.Status != StatusFailed {
		t.Errorf("Expected cancelled request to fail, got %s", req.Status)
	}
	if req.Attempts != 1 {
		t.Errorf("Expected no retries after cancellation, got %d attempts", req.Attempts)
	}
}

func TestStart_Twice(t *testing.T) {
	q := New(testConfig(), okProcessor())
	startQueue(t, q)
	if err := q.Start(context.Background()); err == nil {
		t.Error("Expected error starting queue twice")
	}
}

func TestUpdateConfig_RaisesConcurrency(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrent = 1
	release := make(chan struct{})
	var inflight atomic.Int64
	q := New(cfg, ProcessorFunc(func(ctx context.Context, req *Request) (*Result, error) {
		inflight.Add(1)
		<-release
		inflight.Add(-1)
		return &Result{}, nil
	}))
	startQueue(t, q)

	for i := 0; i < 3; i++ {
		submit(t, q, fmt.Sprintf("u%d", i), ratelimit.TierPaid)
	}
	waitFor(t, time.Second, func() bool { return inflight.Load() == 1 })

	cfg.MaxConcurrent = 3
	q.UpdateConfig(cfg)
	waitFor(t, time.Second, func() bool { return inflight.Load() == 3 })
	close(release)

	waitFor(t, 3*time.Second, func() bool { return q.GetQueueStats().Completed == 3 })
}
