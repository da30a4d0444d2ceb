package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// QueueMetrics tracks the generation queue.
//
// Metrics:
//   - governor_queue_depth: queued requests per lane
//   - governor_queue_processing: requests being processed
//   - governor_queue_outcomes_total: terminal requests by status
//   - governor_queue_rejections_total: refused submissions by reason
//   - governor_queue_wait_seconds: time spent queued before dispatch
type QueueMetrics struct {
	depth      *prometheus.GaugeVec
	processing prometheus.Gauge
	outcomes   *prometheus.CounterVec
	rejections *prometheus.CounterVec
	wait       prometheus.Histogram
}

// NewQueueMetrics creates and registers queue metrics.
func NewQueueMetrics(reg prometheus.Registerer) *QueueMetrics {
	f := promauto.With(reg)
	return &QueueMetrics{
		depth: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "queue",
				Name:      "depth",
				Help:      "Number of queued requests per priority lane",
			},
			[]string{"lane"},
		),
		processing: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "queue",
				Name:      "processing",
				Help:      "Number of requests currently being processed",
			},
		),
		outcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "queue",
				Name:      "outcomes_total",
				Help:      "Total number of requests reaching a terminal state",
			},
			[]string{"status"},
		),
		rejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "queue",
				Name:      "rejections_total",
				Help:      "Total number of submissions refused at admission",
			},
			[]string{"reason"},
		),
		wait: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "queue",
				Name:      "wait_seconds",
				Help:      "Time requests spend queued before dispatch",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
			},
		),
	}
}
