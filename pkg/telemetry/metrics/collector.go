package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/governor/pkg/config"
)

// Namespace prefixes every metric name.
const Namespace = "governor"

// Collector owns the Prometheus registry and records events from the rate
// limiter, the queue, the usage monitor and the HTTP layer. It satisfies
// the MetricsRecorder interfaces of those packages.
//
// When metrics are disabled every method is a no-op.
type Collector struct {
	enabled  bool
	registry *prometheus.Registry

	requests *RequestMetrics
	limits   *LimitMetrics
	queue    *QueueMetrics
	usage    *UsageMetrics
}

// NewCollector creates a collector registering into registry. A nil
// registry gets a fresh one with the Go and process collectors.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			prometheus.NewGoCollector(),
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		)
	}

	return &Collector{
		enabled:  cfg.Enabled,
		registry: registry,
		requests: NewRequestMetrics(registry),
		limits:   NewLimitMetrics(registry),
		queue:    NewQueueMetrics(registry),
		usage:    NewUsageMetrics(registry),
	}
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordHTTPRequest records a served HTTP request.
func (c *Collector) RecordHTTPRequest(route, method string, status int, duration time.Duration) {
	if !c.enabled {
		return
	}
	c.requests.Record(route, method, status, duration)
}

// RecordRateLimitCheck implements ratelimit.MetricsRecorder.
func (c *Collector) RecordRateLimitCheck(category string, allowed bool) {
	if !c.enabled {
		return
	}
	c.limits.RecordCheck(category, allowed)
}

// RecordRateLimitHit implements ratelimit.MetricsRecorder.
func (c *Collector) RecordRateLimitHit(category, rule string) {
	if !c.enabled {
		return
	}
	c.limits.RecordHit(category, rule)
}

// SetQueueDepth implements queue.MetricsRecorder.
func (c *Collector) SetQueueDepth(lane string, depth int) {
	if !c.enabled {
		return
	}
	c.queue.depth.WithLabelValues(lane).Set(float64(depth))
}

// SetProcessing implements queue.MetricsRecorder.
func (c *Collector) SetProcessing(n int) {
	if !c.enabled {
		return
	}
	c.queue.processing.Set(float64(n))
}

// RecordQueueOutcome implements queue.MetricsRecorder.
func (c *Collector) RecordQueueOutcome(status string) {
	if !c.enabled {
		return
	}
	c.queue.outcomes.WithLabelValues(status).Inc()
}

// RecordQueueRejection implements queue.MetricsRecorder.
func (c *Collector) RecordQueueRejection(reason string) {
	if !c.enabled {
		return
	}
	c.queue.rejections.WithLabelValues(reason).Inc()
}

// ObserveQueueWait implements queue.MetricsRecorder.
func (c *Collector) ObserveQueueWait(d time.Duration) {
	if !c.enabled {
		return
	}
	c.queue.wait.Observe(d.Seconds())
}

// RecordUsage implements usage.MetricsRecorder.
func (c *Collector) RecordUsage(cost float64, success bool) {
	if !c.enabled {
		return
	}
	c.usage.RecordCall(cost, success)
}

// RecordAlert implements usage.MetricsRecorder.
func (c *Collector) RecordAlert(alertType, severity string) {
	if !c.enabled {
		return
	}
	c.usage.alerts.WithLabelValues(alertType, severity).Inc()
}

// RecordAlertDropped implements usage.MetricsRecorder.
func (c *Collector) RecordAlertDropped() {
	if !c.enabled {
		return
	}
	c.usage.dropped.Inc()
}
