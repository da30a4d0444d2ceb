package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/governor/pkg/config"
)

// dailyWindow is the length of the additional daily cap.
const dailyWindow = 24 * time.Hour

// Limiter applies per-category fixed-window limits keyed by caller identity.
//
// Each category has a policy of one or more rules; every rule keeps its own
// window per identity. A request is rejected by the first rule whose count
// exceeds its max. Rejected requests still count toward their window.
type Limiter struct {
	store   WindowStore
	logger  *slog.Logger
	metrics MetricsRecorder
	now     func() time.Time

	mu       sync.RWMutex
	enabled  bool
	failOpen bool
	policies map[Category]Policy
	aiTiers  map[Tier]Policy
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger.With("component", "ratelimit")
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(l *Limiter) { l.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter creates a limiter for cfg backed by store.
func NewLimiter(cfg config.RateLimitConfig, store WindowStore, opts ...Option) *Limiter {
	if store == nil {
		store = NewMemoryStore()
	}
	l := &Limiter{
		store:  store,
		logger: slog.Default().With("component", "ratelimit"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.UpdateConfig(cfg)
	return l
}

// UpdateConfig replaces the policies. Existing windows are kept.
func (l *Limiter) UpdateConfig(cfg config.RateLimitConfig) {
	policies := map[Category]Policy{
		CategoryAuth:    policyFromWindow(cfg.Auth),
		CategoryGeneral: policyFromWindow(cfg.General),
		CategoryUpload:  policyFromWindow(cfg.Upload),
		CategoryAdmin:   policyFromWindow(cfg.Admin),
		CategoryBurst:   policyFromWindow(cfg.Burst),
	}
	aiTiers := map[Tier]Policy{
		TierFree:    policyFromWindow(cfg.AI.Free),
		TierPaid:    policyFromWindow(cfg.AI.Paid),
		TierPremium: policyFromWindow(cfg.AI.Premium),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = cfg.Enabled
	l.failOpen = cfg.FailOpen
	l.policies = policies
	l.aiTiers = aiTiers
}

func policyFromWindow(w config.WindowConfig) Policy {
	p := Policy{SkipSuccessful: w.SkipSuccessful}
	p.Rules = append(p.Rules, Rule{
		Name:    "window",
		Window:  w.Window,
		Max:     int64(w.Max),
		Message: w.Message,
	})
	if w.DailyMax > 0 {
		p.Rules = append(p.Rules, Rule{
			Name:    "daily",
			Window:  dailyWindow,
			Max:     int64(w.DailyMax),
			Message: w.Message,
		})
	}
	return p
}

// Policy returns the policy applied to req.
func (l *Limiter) Policy(req Request) (Policy, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if req.Category == CategoryAI {
		p, ok := l.aiTiers[req.Tier]
		if !ok {
			p, ok = l.aiTiers[TierFree]
		}
		return p, ok
	}
	p, ok := l.policies[req.Category]
	return p, ok
}

// Check counts req against its category policy.
//
// When a rule rejects, the result has Allowed=false and the error wraps
// ErrRateLimitExceeded as a *LimitError. Store failures are logged and
// allowed through when fail-open is configured, otherwise returned.
func (l *Limiter) Check(ctx context.Context, req Request) (*CheckResult, error) {
	l.mu.RLock()
	enabled, failOpen := l.enabled, l.failOpen
	l.mu.RUnlock()

	if !enabled {
		return &CheckResult{Allowed: true, Category: req.Category}, nil
	}

	policy, ok := l.Policy(req)
	if !ok {
		return nil, fmt.Errorf("unknown rate limit category %q", req.Category)
	}

	now := l.now()
	result := &CheckResult{Allowed: true, Category: req.Category}

	for _, rule := range policy.Rules {
		w, err := l.store.Increment(ctx, windowKey(req, rule), rule.Window, now)
		if err != nil {
			if failOpen {
				l.logger.Warn("Rate limit store unavailable, allowing request",
					"category", req.Category,
					"error", err,
				)
				return &CheckResult{Allowed: true, Category: req.Category}, nil
			}
			return nil, fmt.Errorf("rate limit check failed: %w", err)
		}

		reset := w.Start.Add(rule.Window)
		remaining := rule.Max - w.Count
		if remaining < 0 {
			remaining = 0
		}

		if w.Count > rule.Max {
			result = &CheckResult{
				Allowed:    false,
				Category:   req.Category,
				Rule:       rule.Name,
				Message:    rule.Message,
				Limit:      rule.Max,
				Count:      w.Count,
				Remaining:  0,
				Reset:      reset,
				RetryAfter: reset.Sub(now),
			}
			l.record(req.Category, false, rule.Name)
			l.logger.Debug("Rate limit exceeded",
				"category", req.Category,
				"rule", rule.Name,
				"key", req.Key,
				"count", w.Count,
				"limit", rule.Max,
			)
			return result, &LimitError{
				Category:   req.Category,
				Key:        req.Key,
				Rule:       rule.Name,
				Limit:      rule.Max,
				Window:     rule.Window,
				RetryAfter: result.RetryAfter,
				Message:    rule.Message,
			}
		}

		// Report the tightest rule.
		if result.Rule == "" || remaining < result.Remaining {
			result.Rule = rule.Name
			result.Limit = rule.Max
			result.Count = w.Count
			result.Remaining = remaining
			result.Reset = reset
		}
	}

	l.record(req.Category, true, "")
	return result, nil
}

// CheckRequest applies burst protection and then the category policy.
func (l *Limiter) CheckRequest(ctx context.Context, category Category, key string, tier Tier) (*CheckResult, error) {
	if category != CategoryBurst {
		if res, err := l.Check(ctx, Request{Category: CategoryBurst, Key: key}); err != nil || !res.Allowed {
			return res, err
		}
	}
	return l.Check(ctx, Request{Category: category, Key: key, Tier: tier})
}

// Complete reports the outcome of a request that passed Check. Successful
// requests are refunded for categories that skip successful requests.
func (l *Limiter) Complete(ctx context.Context, req Request, success bool) {
	if !success {
		return
	}
	policy, ok := l.Policy(req)
	if !ok || !policy.SkipSuccessful {
		return
	}

	now := l.now()
	for _, rule := range policy.Rules {
		if err := l.store.Decrement(ctx, windowKey(req, rule), rule.Window, now); err != nil {
			l.logger.Warn("Failed to refund rate limit window",
				"category", req.Category,
				"error", err,
			)
		}
	}
}

func (l *Limiter) record(category Category, allowed bool, rule string) {
	if l.metrics == nil {
		return
	}
	l.metrics.RecordRateLimitCheck(string(category), allowed)
	if !allowed {
		l.metrics.RecordRateLimitHit(string(category), rule)
	}
}

// windowKey is category:rule:identity. Tier is not part of the key so a
// tier change keeps the caller's counts.
func windowKey(req Request, rule Rule) string {
	return fmt.Sprintf("%s:%s:%s", req.Category, rule.Name, req.Key)
}
