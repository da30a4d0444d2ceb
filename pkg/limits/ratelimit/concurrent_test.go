package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestConcurrentLimiter_AcquireRelease(t *testing.T) {
	cl := NewConcurrentLimiter(2)

	if !cl.Acquire() || !cl.Acquire() {
		t.Fatal("Expected first two acquisitions to succeed")
	}
	if cl.Acquire() {
		t.Error("Expected third acquisition to fail")
	}
	if cl.Current() != 2 {
		t.Errorf("Expected current 2, got %d", cl.Current())
	}

	cl.Release()
	select {
	case <-cl.Freed():
	case <-time.After(time.Second):
		t.Fatal("Expected Freed to be signalled")
	}

	if cl.Remaining() != 1 {
		t.Errorf("Expected remaining 1, got %d", cl.Remaining())
	}
}

func TestConcurrentLimiter_NeverExceedsLimit(t *testing.T) {
	cl := NewConcurrentLimiter(5)

	var wg sync.WaitGroup
	var mu sync.Mutex
	peak := int64(0)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !cl.Acquire() {
				return
			}
			defer cl.Release()
			mu.Lock()
			if c := cl.Current(); c > peak {
				peak = c
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
		}()
	}
	wg.Wait()

	if peak > 5 {
		t.Errorf("Expected peak <= 5, got %d", peak)
	}
	if cl.Current() != 0 {
		t.Errorf("Expected all slots released, got %d", cl.Current())
	}
}

func TestConcurrentLimiter_SetLimit(t *testing.T) {
	cl := NewConcurrentLimiter(1)
	cl.Acquire()

	cl.SetLimit(2)
	if !cl.Acquire() {
		t.Error("Expected acquisition after raising the limit")
	}
	if cl.Limit() != 2 {
		t.Errorf("Expected limit 2, got %d", cl.Limit())
	}
}
