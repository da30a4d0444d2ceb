package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"mercator-hq/governor/pkg/limits"
	"mercator-hq/governor/pkg/limits/queue"
	"mercator-hq/governor/pkg/limits/storage"
	"mercator-hq/governor/pkg/limits/usage"
	"mercator-hq/governor/pkg/proxy"
	"mercator-hq/governor/pkg/proxy/middleware"
	"mercator-hq/governor/pkg/proxy/types"
)

// UsageControl is the part of the usage-control manager used by the
// handlers.
type UsageControl interface {
	Generate(ctx context.Context, req limits.GenerationRequest) (*limits.GenerationOutcome, error)
	RequestStatus(id string) (*queue.Request, error)
	Health() limits.HealthReport
	UsageStats(timeframe usage.Timeframe) limits.AdminStats
	UserUsage(userID string, days int) usage.UserUsage
}

// CostEstimator prices token usage.
type CostEstimator interface {
	EstimateCost(tokens int) float64
}

// Handlers serves the governor HTTP API.
type Handlers struct {
	uc        UsageControl
	alerts    storage.AlertStore
	estimator CostEstimator
	logger    *slog.Logger
	maxBody   int64
}

// Option configures Handlers.
type Option func(*Handlers)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handlers) {
		if logger != nil {
			h.logger = logger.With("component", "handlers")
		}
	}
}

// WithAlertStore enables GET /admin/alerts.
func WithAlertStore(store storage.AlertStore) Option {
	return func(h *Handlers) { h.alerts = store }
}

// WithEstimator prices results reported by the status endpoint.
func WithEstimator(e CostEstimator) Option {
	return func(h *Handlers) { h.estimator = e }
}

// WithMaxBodyBytes limits generation request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handlers) { h.maxBody = n }
}

// New creates the API handlers.
func New(uc UsageControl, opts ...Option) *Handlers {
	h := &Handlers{
		uc:      uc,
		logger:  slog.Default().With("component", "handlers"),
		maxBody: proxy.DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// writeError maps err and writes it with the request id attached.
func writeError(w http.ResponseWriter, r *http.Request, errResp *types.ErrorResponse) {
	errResp.Error.RequestID = middleware.GetRequestID(r.Context())
	_ = proxy.WriteErrorResponse(w, errResp)
}

// requireUser returns the caller's identity or writes 401.
func requireUser(w http.ResponseWriter, r *http.Request) (middleware.Identity, bool) {
	id, ok := middleware.GetIdentity(r.Context())
	if !ok {
		id = middleware.IdentityFromRequest(r)
	}
	if !id.Authenticated() {
		writeError(w, r, types.NewErrorResponse(
			"Authentication required.",
			types.ErrorTypeAuthentication,
			"",
			types.CodeMissingUser,
		))
		return id, false
	}
	return id, true
}
