package usage

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/governor/pkg/config"
)

const (
	dayLayout    = "2006-01-02"
	hourLayout   = "2006-01-02T15"
	minuteLayout = "2006-01-02T15:04"

	// minuteRetention bounds per-minute counters regardless of RetentionDays.
	minuteRetention = 24 * time.Hour

	// minErrorRateSample is the number of calls needed today before the
	// error rate is evaluated.
	minErrorRateSample = 20

	maxUserUsageDays = 90
)

// nanos is a USD amount in billionths. Costs are accumulated as integers
// so totals are exact sums of the tracked calls.
type nanos int64

func toNanos(usd float64) nanos {
	return nanos(math.Round(usd * 1e9))
}

func (n nanos) USD() float64 {
	return float64(n) / 1e9
}

type costBucket struct {
	total  nanos
	hourly map[int]nanos
	calls  int64
	failed int64
}

type dayPattern struct {
	count     int
	endpoints map[string]int
}

type userPattern struct {
	daily      map[string]*dayPattern
	hourly     map[string]int
	minutely   map[string]int
	total      int64
	successful int64
	lastSeen   time.Time
}

// Monitor aggregates API usage and raises threshold alerts.
type Monitor struct {
	logger   *slog.Logger
	metrics  MetricsRecorder
	notifier *Notifier
	now      func() time.Time
	loc      *time.Location
	queued   func() int
	onClean  []func(time.Time)

	mu       sync.Mutex
	cfg      config.MonitoringConfig
	costs    map[string]*costBucket
	patterns map[string]*userPattern

	cron *cron.Cron
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger.With("component", "usage")
		}
	}
}

// WithMetrics sets the metrics recorder. It is shared with the notifier.
func WithMetrics(r MetricsRecorder) Option {
	return func(m *Monitor) { m.metrics = r }
}

// WithClock overrides the time source used for stats, cleanup and calls
// without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithLocation sets the time zone of day and hour buckets. Default UTC.
func WithLocation(loc *time.Location) Option {
	return func(m *Monitor) { m.loc = loc }
}

// WithNotifier replaces the default notifier.
func WithNotifier(n *Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

// WithQueueSource attaches a queue depth source evaluated on the
// evaluation schedule.
func WithQueueSource(queued func() int) Option {
	return func(m *Monitor) { m.queued = queued }
}

// WithCleanupHook registers fn to run after every retention sweep.
func WithCleanupHook(fn func(now time.Time)) Option {
	return func(m *Monitor) { m.onClean = append(m.onClean, fn) }
}

// New creates a monitor for cfg.
func New(cfg config.MonitoringConfig, opts ...Option) *Monitor {
	m := &Monitor{
		logger:   slog.Default().With("component", "usage"),
		now:      time.Now,
		loc:      time.UTC,
		cfg:      cfg,
		costs:    make(map[string]*costBucket),
		patterns: make(map[string]*userPattern),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.notifier == nil {
		m.notifier = NewNotifier(cfg.AlertBuffer, m.logger)
	}
	if m.notifier.metrics == nil {
		m.notifier.metrics = m.metrics
	}
	return m
}

// Notifier returns the alert notifier.
func (m *Monitor) Notifier() *Notifier {
	return m.notifier
}

// UpdateConfig replaces the thresholds. Schedules keep their values until
// the monitor is restarted.
func (m *Monitor) UpdateConfig(cfg config.MonitoringConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

// TrackAPICall folds call into the aggregates and evaluates the threshold
// rules. Alerts are published without blocking.
func (m *Monitor) TrackAPICall(call Call) {
	if call.Timestamp.IsZero() {
		call.Timestamp = m.now()
	}
	ts := call.Timestamp.In(m.loc)
	day := ts.Format(dayLayout)
	hour := ts.Format(hourLayout)
	minute := ts.Format(minuteLayout)
	cost := toNanos(call.Cost)

	m.mu.Lock()

	bucket := m.costs[day]
	if bucket == nil {
		bucket = &costBucket{hourly: make(map[int]nanos)}
		m.costs[day] = bucket
	}
	bucket.total += cost
	bucket.hourly[ts.Hour()] += cost
	bucket.calls++
	if !call.Success {
		bucket.failed++
	}

	var p *userPattern
	if call.UserID != "" {
		p = m.patterns[call.UserID]
		if p == nil {
			p = &userPattern{
				daily:    make(map[string]*dayPattern),
				hourly:   make(map[string]int),
				minutely: make(map[string]int),
			}
			m.patterns[call.UserID] = p
		}
		d := p.daily[day]
		if d == nil {
			d = &dayPattern{endpoints: make(map[string]int)}
			p.daily[day] = d
		}
		d.count++
		if call.Endpoint != "" {
			d.endpoints[call.Endpoint]++
		}
		p.hourly[hour]++
		p.minutely[minute]++
		p.total++
		if call.Success {
			p.successful++
		}
		if ts.After(p.lastSeen) {
			p.lastSeen = ts
		}
	}

	alerts := m.evaluateLocked(call.UserID, ts, bucket, p, day, hour, minute)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordUsage(call.Cost, call.Success)
	}
	for _, a := range alerts {
		m.emit(a)
	}
}

// evaluateLocked applies the per-call rules in order. Rules use strict
// comparisons; a non-positive threshold disables its rule.
func (m *Monitor) evaluateLocked(userID string, ts time.Time, bucket *costBucket, p *userPattern, day, hour, minute string) []Alert {
	cfg := m.cfg
	var alerts []Alert

	if cfg.DailyCostLimit > 0 && bucket.total > toNanos(cfg.DailyCostLimit) {
		alerts = append(alerts, Alert{
			Type:      AlertDailyCostExceeded,
			Severity:  SeverityHigh,
			Message:   fmt.Sprintf("Daily cost limit exceeded: $%.2f > $%.2f", bucket.total.USD(), cfg.DailyCostLimit),
			Value:     bucket.total.USD(),
			Threshold: cfg.DailyCostLimit,
			Timestamp: ts,
		})
	}

	hourly := bucket.hourly[ts.Hour()]
	if cfg.HourlyCostLimit > 0 && hourly > toNanos(cfg.HourlyCostLimit) {
		alerts = append(alerts, Alert{
			Type:      AlertHourlyCostExceeded,
			Severity:  SeverityHigh,
			Message:   fmt.Sprintf("Hourly cost limit exceeded: $%.2f > $%.2f", hourly.USD(), cfg.HourlyCostLimit),
			Value:     hourly.USD(),
			Threshold: cfg.HourlyCostLimit,
			Timestamp: ts,
		})
	}

	if p == nil {
		return alerts
	}

	if n := p.daily[day].count; cfg.PerUserDailyLimit > 0 && n > cfg.PerUserDailyLimit {
		alerts = append(alerts, Alert{
			Type:      AlertUserDailyLimit,
			Severity:  SeverityMedium,
			Message:   fmt.Sprintf("User %s exceeded daily request limit: %d > %d", userID, n, cfg.PerUserDailyLimit),
			UserID:    userID,
			Value:     float64(n),
			Threshold: float64(cfg.PerUserDailyLimit),
			Timestamp: ts,
		})
	}

	if n := p.minutely[minute]; cfg.SuspiciousPerMinute > 0 && n > cfg.SuspiciousPerMinute {
		alerts = append(alerts, Alert{
			Type:      AlertSuspiciousActivity,
			Severity:  SeverityHigh,
			Message:   fmt.Sprintf("Suspicious activity from user %s: %d calls in one minute", userID, n),
			UserID:    userID,
			Value:     float64(n),
			Threshold: float64(cfg.SuspiciousPerMinute),
			Timestamp: ts,
		})
	}

	if n := p.hourly[hour]; cfg.PerUserHourlyLimit > 0 && n > cfg.PerUserHourlyLimit {
		alerts = append(alerts, Alert{
			Type:      AlertUserHourlyLimit,
			Severity:  SeverityMedium,
			Message:   fmt.Sprintf("User %s exceeded hourly request limit: %d > %d", userID, n, cfg.PerUserHourlyLimit),
			UserID:    userID,
			Value:     float64(n),
			Threshold: float64(cfg.PerUserHourlyLimit),
			Timestamp: ts,
		})
	}

	return alerts
}

// EvaluateQueue raises a queue size alert for the given depth. The
// critical alert replaces the warning.
func (m *Monitor) EvaluateQueue(totalQueued int) {
	m.mu.Lock()
	warning, critical := m.cfg.QueueSizeWarning, m.cfg.QueueSizeCritical
	m.mu.Unlock()

	now := m.now()
	switch {
	case critical > 0 && totalQueued > critical:
		m.emit(Alert{
			Type:      AlertQueueSizeCritical,
			Severity:  SeverityHigh,
			Message:   fmt.Sprintf("Queue size critical: %d requests queued", totalQueued),
			Value:     float64(totalQueued),
			Threshold: float64(critical),
			Timestamp: now,
		})
	case warning > 0 && totalQueued > warning:
		m.emit(Alert{
			Type:      AlertQueueSizeWarning,
			Severity:  SeverityMedium,
			Message:   fmt.Sprintf("Queue size high: %d requests queued", totalQueued),
			Value:     float64(totalQueued),
			Threshold: float64(warning),
			Timestamp: now,
		})
	}
}

// EvaluateErrorRate raises ERROR_RATE_WARNING when today's failure ratio
// exceeds the configured rate.
func (m *Monitor) EvaluateErrorRate() {
	now := m.now()
	day := now.In(m.loc).Format(dayLayout)

	m.mu.Lock()
	threshold := m.cfg.ErrorRateWarning
	var calls, failed int64
	if b := m.costs[day]; b != nil {
		calls, failed = b.calls, b.failed
	}
	m.mu.Unlock()

	if threshold <= 0 || calls < minErrorRateSample {
		return
	}
	rate := float64(failed) / float64(calls)
	if rate > threshold {
		m.emit(Alert{
			Type:      AlertErrorRateWarning,
			Severity:  SeverityMedium,
			Message:   fmt.Sprintf("Error rate %.1f%% exceeds %.1f%%", rate*100, threshold*100),
			Value:     rate,
			Threshold: threshold,
			Timestamp: now,
		})
	}
}

func (m *Monitor) emit(a Alert) {
	if m.metrics != nil {
		m.metrics.RecordAlert(string(a.Type), string(a.Severity))
	}
	m.notifier.Publish(a)
}

// Cleanup drops aggregates older than the retention window at now and
// returns how many entries were removed. Minute counters older than a day
// are always removed.
func (m *Monitor) Cleanup(now time.Time) int {
	removed := m.cleanup(now.In(m.loc))
	for _, fn := range m.onClean {
		fn(now)
	}
	return removed
}

func (m *Monitor) cleanup(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	days := m.cfg.RetentionDays
	if days <= 0 {
		days = config.DefaultRetentionDays
	}
	dayCutoff := now.AddDate(0, 0, -days).Format(dayLayout)
	hourCutoff := now.Add(-minuteRetention).Format(hourLayout)
	minuteCutoff := now.Add(-minuteRetention).Format(minuteLayout)
	userCutoff := now.AddDate(0, 0, -days)

	removed := 0
	for day := range m.costs {
		if day < dayCutoff {
			delete(m.costs, day)
			removed++
		}
	}
	for userID, p := range m.patterns {
		for day := range p.daily {
			if day < dayCutoff {
				delete(p.daily, day)
				removed++
			}
		}
		for hour := range p.hourly {
			if hour < hourCutoff {
				delete(p.hourly, hour)
				removed++
			}
		}
		for minute := range p.minutely {
			if minute < minuteCutoff {
				delete(p.minutely, minute)
				removed++
			}
		}
		if p.lastSeen.Before(userCutoff) {
			delete(m.patterns, userID)
			removed++
		}
	}

	m.logger.Info("Usage retention sweep completed", "removed", removed)
	return removed
}

// Start runs the notifier and the scheduled retention and evaluation jobs.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	retention, evaluation := m.cfg.RetentionSchedule, m.cfg.EvaluationSchedule
	m.mu.Unlock()

	c := cron.New(cron.WithLocation(m.loc))
	if _, err := c.AddFunc(retention, func() { m.Cleanup(m.now()) }); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", retention, err)
	}
	if evaluation != "" {
		if _, err := c.AddFunc(evaluation, m.evaluate); err != nil {
			return fmt.Errorf("invalid evaluation schedule %q: %w", evaluation, err)
		}
	}

	m.cron = c
	go m.notifier.Run(context.WithoutCancel(ctx))
	c.Start()

	m.logger.Info("Usage monitor started",
		"retention_schedule", retention,
		"evaluation_schedule", evaluation,
	)
	return nil
}

func (m *Monitor) evaluate() {
	if m.queued != nil {
		m.EvaluateQueue(m.queued())
	}
	m.EvaluateErrorRate()
}

// Stop halts scheduled jobs and flushes pending alerts until ctx is done.
func (m *Monitor) Stop(ctx context.Context) error {
	if m.cron == nil {
		return nil
	}
	select {
	case <-m.cron.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return m.notifier.Close(ctx)
}
