package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"mercator-hq/governor/pkg/config"
	"mercator-hq/governor/pkg/limits/queue"
	"mercator-hq/governor/pkg/limits/ratelimit"
	"mercator-hq/governor/pkg/limits/usage"
)

var (
	_ ratelimit.MetricsRecorder = (*Collector)(nil)
	_ queue.MetricsRecorder     = (*Collector)(nil)
	_ usage.MetricsRecorder     = (*Collector)(nil)
)

func newTestCollector(enabled bool) *Collector {
	return NewCollector(config.MetricsConfig{Enabled: enabled, Path: "/metrics"}, prometheus.NewRegistry())
}

func TestCollector_RateLimit(t *testing.T) {
	c := newTestCollector(true)

	c.RecordRateLimitCheck("ai", true)
	c.RecordRateLimitCheck("ai", false)
	c.RecordRateLimitCheck("ai", false)
	c.RecordRateLimitHit("ai", "daily")

	if got := testutil.ToFloat64(c.limits.checks.WithLabelValues("ai", "blocked")); got != 2 {
		t.Errorf("Expected 2 blocked checks, got %v", got)
	}
	if got := testutil.ToFloat64(c.limits.hits.WithLabelValues("ai", "daily")); got != 1 {
		t.Errorf("Expected 1 hit, got %v", got)
	}
}

func TestCollector_Queue(t *testing.T) {
	c := newTestCollector(true)

	c.SetQueueDepth("high", 3)
	c.SetQueueDepth("high", 2)
	c.SetProcessing(4)
	c.RecordQueueOutcome("completed")
	c.RecordQueueRejection("queue_full")
	c.ObserveQueueWait(2 * time.Second)

	if got := testutil.ToFloat64(c.queue.depth.WithLabelValues("high")); got != 2 {
		t.Errorf("Expected depth 2, got %v", got)
	}
	if got := testutil.ToFloat64(c.queue.processing); got != 4 {
		t.Errorf("Expected processing 4, got %v", got)
	}
	if got := testutil.ToFloat64(c.queue.outcomes.WithLabelValues("completed")); got != 1 {
		t.Errorf("Expected 1 completed, got %v", got)
	}
	if got := testutil.ToFloat64(c.queue.rejections.WithLabelValues("queue_full")); got != 1 {
		t.Errorf("Expected 1 rejection, got %v", got)
	}
	if n := testutil.CollectAndCount(c.queue.wait); n != 1 {
		t.Errorf("Expected wait histogram collected, got %d", n)
	}
}

func TestCollector_Usage(t *testing.T) {
	c := newTestCollector(true)

	c.RecordUsage(0.5, true)
	c.RecordUsage(0.25, false)
	c.RecordAlert("DAILY_COST_EXCEEDED", "HIGH")
	c.RecordAlertDropped()

	if got := testutil.ToFloat64(c.usage.cost); got != 0.75 {
		t.Errorf("Expected cost 0.75, got %v", got)
	}
	if got := testutil.ToFloat64(c.usage.calls.WithLabelValues("failure")); got != 1 {
		t.Errorf("Expected 1 failed call, got %v", got)
	}
	if got := testutil.ToFloat64(c.usage.alerts.WithLabelValues("DAILY_COST_EXCEEDED", "HIGH")); got != 1 {
		t.Errorf("Expected 1 alert, got %v", got)
	}
	if got := testutil.ToFloat64(c.usage.dropped); got != 1 {
		t.Errorf("Expected 1 dropped alert, got %v", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	c := newTestCollector(false)

	c.RecordRateLimitCheck("ai", false)
	c.RecordUsage(1, true)
	c.RecordHTTPRequest("/health", "GET", 200, time.Millisecond)

	if got := testutil.ToFloat64(c.limits.checks.WithLabelValues("ai", "blocked")); got != 0 {
		t.Errorf("Expected no checks recorded when disabled, got %v", got)
	}
	if got := testutil.ToFloat64(c.usage.cost); got != 0 {
		t.Errorf("Expected no cost recorded when disabled, got %v", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := newTestCollector(true)
	c.RecordHTTPRequest("/ai/generate", "POST", 200, 150*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "governor_http_requests_total") {
		t.Error("Expected request counter in exposition output")
	}
}

func TestNewCollector_DefaultRegistry(t *testing.T) {
	c := NewCollector(config.MetricsConfig{Enabled: true}, nil)
	if c.Registry() == nil {
		t.Fatal("Expected registry")
	}
	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Error("Expected runtime collectors registered")
	}
}
