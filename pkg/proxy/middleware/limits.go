package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"mercator-hq/governor/pkg/limits/ratelimit"
	"mercator-hq/governor/pkg/limits/usage"
	"mercator-hq/governor/pkg/proxy"
	"mercator-hq/governor/pkg/proxy/types"
)

// UsageControl is the part of the usage-control manager used by Protect.
type UsageControl interface {
	CheckLimit(ctx context.Context, category ratelimit.Category, key string, tier ratelimit.Tier) (*ratelimit.CheckResult, error)
	CompleteLimit(ctx context.Context, category ratelimit.Category, key string, tier ratelimit.Tier, success bool)
	IsAIRequest(path string) bool
	TrackRequest(call usage.Call)
	GracefulDegradation() bool
}

// Protect applies burst protection and the category's rate limit to every
// request, then hands it to next.
//
// This middleware:
//   - Keys limits by user id, falling back to the client IP
//   - Sets X-RateLimit-* headers from the tightest rule
//   - Rejects with 429 and Retry-After when a window is exhausted
//   - Lets requests through when the limiter itself fails and graceful
//     degradation is enabled
//   - Tracks usage of non-AI requests; AI generations are tracked by the
//     queue when they finish
//
// Example:
//
//	r.With(Protect(manager, ratelimit.CategoryAdmin, logger)).Get("/admin/usage-stats", h)
func Protect(uc UsageControl, category ratelimit.Category, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("subsystem", "usage_control", "category", category)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			id := identityOf(r)
			key := id.Key()

			result, err := uc.CheckLimit(ctx, category, key, id.Tier)
			if err != nil {
				var limitErr *ratelimit.LimitError
				if errors.As(err, &limitErr) {
					setLimitHeaders(w, result)
					logger.InfoContext(ctx, "Request rate limited",
						"key", key,
						"rule", limitErr.Rule,
						"retry_after", limitErr.RetryAfter,
					)
					errResp := proxy.HandleError(err)
					errResp.Error.RequestID = GetRequestID(ctx)
					_ = proxy.WriteErrorResponse(w, errResp)
					return
				}

				if uc.GracefulDegradation() {
					logger.WarnContext(ctx, "Usage control failed, allowing request", "error", err)
					next.ServeHTTP(w, r)
					return
				}

				logger.ErrorContext(ctx, "Usage control failed", "error", err)
				errResp := types.NewServerError("An internal error occurred. Please try again later.")
				errResp.Error.RequestID = GetRequestID(ctx)
				_ = proxy.WriteErrorResponse(w, errResp)
				return
			}

			setLimitHeaders(w, result)

			start := time.Now()
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			success := rw.statusCode < http.StatusBadRequest
			uc.CompleteLimit(ctx, category, key, id.Tier, success)

			if id.Authenticated() && !uc.IsAIRequest(r.URL.Path) {
				uc.TrackRequest(usage.Call{
					UserID:    id.UserID,
					Endpoint:  r.URL.Path,
					Success:   success,
					Duration:  time.Since(start),
					Timestamp: start,
				})
			}
		})
	}
}

// setLimitHeaders sets the X-RateLimit-* headers.
func setLimitHeaders(w http.ResponseWriter, result *ratelimit.CheckResult) {
	if result == nil || result.Limit <= 0 {
		return
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
	if !result.Reset.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(result.Reset.Unix(), 10))
	}
}
