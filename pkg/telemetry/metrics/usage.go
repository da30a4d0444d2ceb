package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// UsageMetrics tracks tracked calls, cost and alerts.
//
// Metrics:
//   - governor_usage_calls_total: tracked calls by result
//   - governor_usage_cost_usd_total: accumulated cost in USD
//   - governor_usage_alerts_total: alerts by type and severity
//   - governor_usage_alerts_dropped_total: alerts dropped on a full buffer
type UsageMetrics struct {
	calls   *prometheus.CounterVec
	cost    prometheus.Counter
	alerts  *prometheus.CounterVec
	dropped prometheus.Counter
}

// NewUsageMetrics creates and registers usage metrics.
func NewUsageMetrics(reg prometheus.Registerer) *UsageMetrics {
	f := promauto.With(reg)
	return &UsageMetrics{
		calls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "usage",
				Name:      "calls_total",
				Help:      "Total number of tracked API calls",
			},
			[]string{"result"},
		),
		cost: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "usage",
				Name:      "cost_usd_total",
				Help:      "Total tracked cost in USD",
			},
		),
		alerts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "usage",
				Name:      "alerts_total",
				Help:      "Total number of usage alerts raised",
			},
			[]string{"type", "severity"},
		),
		dropped: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "usage",
				Name:      "alerts_dropped_total",
				Help:      "Total number of alerts dropped because the buffer was full",
			},
		),
	}
}

// RecordCall records one tracked call.
func (m *UsageMetrics) RecordCall(cost float64, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.calls.WithLabelValues(result).Inc()
	if cost > 0 {
		m.cost.Add(cost)
	}
}
