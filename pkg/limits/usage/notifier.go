package usage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Notifier decouples rule evaluation from delivery. Alerts are buffered in
// a bounded channel and fanned out to sinks by a single goroutine. Publish
// never blocks: when the buffer is full the alert is dropped.
type Notifier struct {
	logger  *slog.Logger
	metrics MetricsRecorder

	ch      chan Alert
	dropped atomic.Int64

	mu     sync.RWMutex
	sinks  []AlertSink
	subs   []chan Alert
	closed bool

	done chan struct{}
	once sync.Once
}

// NewNotifier creates a notifier with the given buffer capacity.
func NewNotifier(buffer int, logger *slog.Logger) *Notifier {
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		logger: logger.With("component", "alerts"),
		ch:     make(chan Alert, buffer),
		done:   make(chan struct{}),
	}
}

// AddSink registers a sink. Sinks added after Run are used for subsequent
// alerts.
func (n *Notifier) AddSink(sink AlertSink) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sinks = append(n.sinks, sink)
}

// Subscribe returns a channel receiving every delivered alert. Slow
// subscribers miss alerts rather than stall delivery.
func (n *Notifier) Subscribe(buffer int) <-chan Alert {
	ch := make(chan Alert, buffer)
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		close(ch)
		return ch
	}
	n.subs = append(n.subs, ch)
	return ch
}

// Publish enqueues alert for delivery and reports whether it was accepted.
func (n *Notifier) Publish(alert Alert) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return false
	}

	select {
	case n.ch <- alert:
		return true
	default:
		n.dropped.Add(1)
		if n.metrics != nil {
			n.metrics.RecordAlertDropped()
		}
		n.logger.Warn("Alert buffer full, dropping alert",
			"type", alert.Type,
			"user_id", alert.UserID,
		)
		return false
	}
}

// Dropped returns how many alerts were dropped on a full buffer.
func (n *Notifier) Dropped() int64 {
	return n.dropped.Load()
}

// Run delivers alerts until Close is called and the buffer is drained.
func (n *Notifier) Run(ctx context.Context) {
	defer close(n.done)
	for alert := range n.ch {
		n.deliver(ctx, alert)
	}
}

func (n *Notifier) deliver(ctx context.Context, alert Alert) {
	n.mu.RLock()
	sinks := n.sinks
	subs := n.subs
	n.mu.RUnlock()

	for _, sink := range sinks {
		if err := sink.HandleAlert(ctx, alert); err != nil {
			n.logger.Warn("Alert sink failed",
				"type", alert.Type,
				"error", err,
			)
		}
	}
	for _, sub := range subs {
		select {
		case sub <- alert:
		default:
		}
	}
}

// Close stops accepting alerts and waits until buffered ones are delivered
// or ctx is done. Run must have been started.
func (n *Notifier) Close(ctx context.Context) error {
	n.once.Do(func() {
		n.mu.Lock()
		n.closed = true
		close(n.ch)
		n.mu.Unlock()
	})

	select {
	case <-n.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	n.mu.Lock()
	for _, sub := range n.subs {
		close(sub)
	}
	n.subs = nil
	n.mu.Unlock()
	return nil
}

// LogSink writes alerts to a logger.
type LogSink struct {
	Logger *slog.Logger
}

// HandleAlert implements AlertSink.
func (s LogSink) HandleAlert(ctx context.Context, alert Alert) error {
	level := slog.LevelWarn
	if alert.Severity == SeverityInfo {
		level = slog.LevelInfo
	}
	s.Logger.Log(ctx, level, alert.Message,
		"alert_type", alert.Type,
		"severity", alert.Severity,
		"user_id", alert.UserID,
		"value", alert.Value,
		"threshold", alert.Threshold,
	)
	return nil
}
