package ratelimit

import (
	"sync/atomic"
)

// ConcurrentLimiter limits the number of simultaneous in-flight operations.
//
// It is a counting semaphore built on atomic operations. Release signals
// Freed so a dispatcher blocked on a full limiter can wake up without
// polling.
type ConcurrentLimiter struct {
	limit   atomic.Int64
	current atomic.Int64
	freed   chan struct{}
}

// NewConcurrentLimiter creates a new concurrent operation limiter.
//
// Example:
//
//	limiter := NewConcurrentLimiter(10)
//	if limiter.Acquire() {
//	    defer limiter.Release()
//	    // ... call upstream ...
//	}
func NewConcurrentLimiter(limit int) *ConcurrentLimiter {
	cl := &ConcurrentLimiter{freed: make(chan struct{}, 1)}
	cl.limit.Store(int64(limit))
	return cl
}

// Acquire attempts to acquire a slot. Returns true if acquired, false if
// the limit is reached. A successful Acquire must be paired with Release.
func (cl *ConcurrentLimiter) Acquire() bool {
	current := cl.current.Add(1)
	if current > cl.limit.Load() {
		cl.current.Add(-1)
		return false
	}
	return true
}

// Release releases a slot and signals Freed.
func (cl *ConcurrentLimiter) Release() {
	cl.current.Add(-1)
	select {
	case cl.freed <- struct{}{}:
	default:
	}
}

// Freed is signalled after every Release. Signals coalesce.
func (cl *ConcurrentLimiter) Freed() <-chan struct{} {
	return cl.freed
}

// Current returns the current number of in-flight operations.
func (cl *ConcurrentLimiter) Current() int64 {
	return cl.current.Load()
}

// Limit returns the configured concurrency limit.
func (cl *ConcurrentLimiter) Limit() int64 {
	return cl.limit.Load()
}

// SetLimit changes the limit. In-flight operations above a lowered limit
// finish normally; new acquisitions wait until the count drops.
func (cl *ConcurrentLimiter) SetLimit(limit int) {
	cl.limit.Store(int64(limit))
	select {
	case cl.freed <- struct{}{}:
	default:
	}
}

// Remaining returns the number of available slots.
func (cl *ConcurrentLimiter) Remaining() int64 {
	remaining := cl.limit.Load() - cl.current.Load()
	if remaining < 0 {
		return 0
	}
	return remaining
}
