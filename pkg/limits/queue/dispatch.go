package queue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Start launches the dispatcher and the expiry sweep. It returns
// immediately; call Stop to shut down.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started {
		return fmt.Errorf("queue already started")
	}
	if q.stopped {
		return ErrStopped
	}
	q.started = true

	dispatchCtx, cancelDispatch := context.WithCancel(ctx)
	// Workers outlive the dispatcher so Stop can drain them.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	q.cancelDispatch = cancelDispatch
	q.cancelWork = cancelWork

	q.loops.Add(2)
	go q.dispatch(dispatchCtx, workCtx)
	go q.sweepLoop(dispatchCtx, q.cfg.CleanupInterval)

	q.logger.Info("Queue started",
		"max_concurrent", q.cfg.MaxConcurrent,
		"max_queue_size", q.cfg.MaxQueueSize,
	)
	return nil
}

// Stop stops admission and dispatching, then waits for in-flight requests
// until ctx is done, after which their upstream calls are cancelled.
// Requests still queued are marked expired.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	started := q.started
	q.mu.Unlock()

	if started {
		q.cancelDispatch()
		q.loops.Wait()
	}

	drained := make(chan struct{})
	go func() {
		q.workers.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = ctx.Err()
		q.logger.Warn("Queue drain deadline reached, cancelling in-flight requests")
		if q.cancelWork != nil {
			q.cancelWork()
		}
		<-drained
	}
	if q.cancelWork != nil {
		q.cancelWork()
	}

	expired := q.expireAll()
	q.logger.Info("Queue stopped", "expired_on_shutdown", expired)
	return err
}

func (q *Queue) dispatch(ctx, workCtx context.Context) {
	defer q.loops.Done()

	for {
		if ctx.Err() != nil {
			return
		}
		if q.hasQueued() && q.slots.Acquire() {
			req := q.dequeue()
			if req == nil {
				q.slots.Release()
				continue
			}
			q.workers.Add(1)
			go q.run(workCtx, req)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		case <-q.slots.Freed():
		}
	}
}

// dequeue pops the head of the highest non-empty lane and marks it
// processing. Requests past their queue timeout are expired instead and
// never returned.
func (q *Queue) dequeue() *Request {
	now := q.now()

	q.mu.Lock()
	var expired []Request
	var next *Request
	for p := PriorityHigh; p <= PriorityLow && next == nil; p++ {
		lane := q.lanes[p]
		for e := lane.Front(); e != nil; e = lane.Front() {
			req := lane.Remove(e).(*Request)
			if !now.Before(req.TimeoutAt) {
				expired = append(expired, q.expireLocked(req, now))
				continue
			}
			req.Status = StatusProcessing
			req.StartedAt = now
			q.processing++
			next = req
			break
		}
	}
	q.publishDepthLocked()
	q.mu.Unlock()

	q.emit(expired...)
	if next != nil && q.metrics != nil {
		q.metrics.ObserveQueueWait(now.Sub(next.EnqueuedAt))
	}
	return next
}

// run processes req with retries. The concurrency slot is released on
// every exit path, including a panicking processor.
func (q *Queue) run(ctx context.Context, req *Request) {
	defer q.workers.Done()
	defer q.slots.Release()

	q.mu.Lock()
	timeout := q.cfg.RequestTimeout
	retries := q.cfg.RetryAttempts
	delay := q.cfg.RetryDelay
	q.mu.Unlock()

	maxAttempts := retries + 1
	var (
		res     *Result
		lastErr error
		attempt int
	)
	for attempt = 1; attempt <= maxAttempts; attempt++ {
		snap := q.beginAttempt(req, attempt)

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		res, lastErr = q.invoke(attemptCtx, snap)
		if lastErr != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			lastErr = fmt.Errorf("attempt timed out after %s: %w", timeout, lastErr)
		}
		cancel()

		if lastErr == nil {
			break
		}

		q.logger.Warn("Request attempt failed",
			"request_id", req.ID,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", lastErr,
		)

		if attempt == maxAttempts || ctx.Err() != nil {
			break
		}

		backoff := delay * time.Duration(attempt)
		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}
	if attempt > maxAttempts {
		attempt = maxAttempts
	}

	q.finish(req, res, lastErr, attempt)
}

func (q *Queue) beginAttempt(req *Request, attempt int) *Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	req.Attempts = attempt
	snap := *req
	return &snap
}

func (q *Queue) invoke(ctx context.Context, req *Request) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	res, err = q.processor.Process(ctx, req)
	if err == nil && res == nil {
		res = &Result{}
	}
	return res, err
}

func (q *Queue) finish(req *Request, res *Result, lastErr error, attempts int) {
	now := q.now()

	q.mu.Lock()
	q.processing--

	req.Attempts = attempts
	req.CompletedAt = now
	elapsed := now.Sub(req.StartedAt)

	if lastErr == nil {
		res.ProcessingTime = elapsed
		req.Result = res
		req.Status = StatusCompleted
		q.completed++
		q.samples++
		q.avgTime += (elapsed - q.avgTime) / time.Duration(q.samples)
	} else {
		gerr := &GenerationError{Attempts: attempts, Err: lastErr}
		req.err = gerr
		req.Error = gerr.Error()
		req.Status = StatusFailed
		q.failed++
	}
	q.done.Set(req.ID, req, q.cfg.CompletedTTL)
	delete(q.active, req.ID)
	q.decrementUserLocked(req.UserID)
	snap := *req
	q.publishDepthLocked()
	q.mu.Unlock()

	if req.Status == StatusCompleted {
		q.logger.Debug("Request completed",
			"request_id", req.ID,
			"attempts", attempts,
			"processing_time", elapsed,
		)
	} else {
		q.logger.Warn("Request failed",
			"request_id", req.ID,
			"attempts", attempts,
			"error", lastErr,
		)
	}
	q.emit(snap)
}

// expireLocked moves a queued request to expired. The request must already
// be removed from its lane. q.mu must be held.
func (q *Queue) expireLocked(req *Request, now time.Time) Request {
	req.Status = StatusExpired
	req.CompletedAt = now
	req.err = ErrRequestTimeout
	req.Error = ErrRequestTimeout.Error()
	q.expired++

	q.done.Set(req.ID, req, q.cfg.CompletedTTL)
	delete(q.active, req.ID)
	q.decrementUserLocked(req.UserID)
	return *req
}

func (q *Queue) decrementUserLocked(userID string) {
	if q.perUser[userID] <= 1 {
		delete(q.perUser, userID)
		return
	}
	q.perUser[userID]--
}

// SweepExpired expires every queued request whose queue timeout has
// elapsed at now and returns how many were expired.
func (q *Queue) SweepExpired(now time.Time) int {
	q.mu.Lock()
	var expired []Request
	for _, lane := range q.lanes {
		for e := lane.Front(); e != nil; {
			next := e.Next()
			req := e.Value.(*Request)
			if !now.Before(req.TimeoutAt) {
				lane.Remove(e)
				expired = append(expired, q.expireLocked(req, now))
			}
			e = next
		}
	}
	q.publishDepthLocked()
	q.mu.Unlock()

	q.emit(expired...)
	if len(expired) > 0 {
		q.logger.Info("Expired queued requests", "count", len(expired))
	}
	return len(expired)
}

func (q *Queue) expireAll() int {
	q.mu.Lock()
	now := q.now()
	var expired []Request
	for _, lane := range q.lanes {
		for e := lane.Front(); e != nil; e = lane.Front() {
			req := lane.Remove(e).(*Request)
			expired = append(expired, q.expireLocked(req, now))
		}
	}
	q.publishDepthLocked()
	q.mu.Unlock()

	q.emit(expired...)
	return len(expired)
}

func (q *Queue) sweepLoop(ctx context.Context, interval time.Duration) {
	defer q.loops.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.SweepExpired(q.now())
		}
	}
}

func (q *Queue) emit(reqs ...Request) {
	for _, r := range reqs {
		if q.metrics != nil {
			q.metrics.RecordQueueOutcome(string(r.Status))
		}
		for _, fn := range q.onDone {
			fn(r)
		}
	}
}
