package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LimitMetrics tracks rate limit decisions.
//
// Metrics:
//   - governor_ratelimit_checks_total: checks by category and result
//   - governor_ratelimit_hits_total: rejections by category and rule
type LimitMetrics struct {
	checks *prometheus.CounterVec
	hits   *prometheus.CounterVec
}

// NewLimitMetrics creates and registers rate limit metrics.
func NewLimitMetrics(reg prometheus.Registerer) *LimitMetrics {
	f := promauto.With(reg)
	return &LimitMetrics{
		checks: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "ratelimit",
				Name:      "checks_total",
				Help:      "Total number of rate limit checks performed",
			},
			[]string{"category", "result"},
		),
		hits: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "ratelimit",
				Name:      "hits_total",
				Help:      "Total number of rate limit rejections",
			},
			[]string{"category", "rule"},
		),
	}
}

// RecordCheck records a rate limit check.
func (m *LimitMetrics) RecordCheck(category string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "blocked"
	}
	m.checks.WithLabelValues(category, result).Inc()
}

// RecordHit records a rejection.
func (m *LimitMetrics) RecordHit(category, rule string) {
	m.hits.WithLabelValues(category, rule).Inc()
}
