package handlers

import (
	"net/http"
	"strconv"
	"time"

	"mercator-hq/governor/pkg/limits/storage"
	"mercator-hq/governor/pkg/limits/usage"
	"mercator-hq/governor/pkg/proxy"
	"mercator-hq/governor/pkg/proxy/types"
)

// UsageStats serves GET /admin/usage-stats?timeframe=daily|hourly.
func (h *Handlers) UsageStats(w http.ResponseWriter, r *http.Request) {
	timeframe := usage.ParseTimeframe(r.URL.Query().Get("timeframe"))
	stats := h.uc.UsageStats(timeframe)
	_ = proxy.WriteJSONResponse(w, http.StatusOK, proxy.FormatUsageStatsResponse(stats))
}

// Alerts serves GET /admin/alerts.
//
// Query parameters:
//   - since: RFC 3339 timestamp or a duration back from now ("24h")
//   - severity: HIGH, MEDIUM or INFO
//   - type: alert type
//   - user: user id
//   - limit: maximum number of alerts (default 100)
func (h *Handlers) Alerts(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		writeError(w, r, types.NewNotFoundError("Alert storage is not configured.", types.CodeRequestNotFound))
		return
	}

	filter, errResp := parseAlertFilter(r, time.Now())
	if errResp != nil {
		writeError(w, r, errResp)
		return
	}

	records, err := h.alerts.List(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to list alerts", "error", err)
		writeError(w, r, types.NewServerError("Failed to list alerts."))
		return
	}
	_ = proxy.WriteJSONResponse(w, http.StatusOK, proxy.FormatAlertsResponse(records))
}

func parseAlertFilter(r *http.Request, now time.Time) (storage.Filter, *types.ErrorResponse) {
	q := r.URL.Query()
	filter := storage.Filter{
		Type:   usage.AlertType(q.Get("type")),
		UserID: q.Get("user"),
	}

	if since := q.Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			filter.Since = t
		} else if d, err := time.ParseDuration(since); err == nil && d > 0 {
			filter.Since = now.Add(-d)
		} else {
			return filter, types.NewInvalidRequestError(
				"since must be an RFC 3339 timestamp or a positive duration",
				"since",
				types.CodeInvalidValue,
			)
		}
	}

	if severity := q.Get("severity"); severity != "" {
		switch s := usage.Severity(severity); s {
		case usage.SeverityHigh, usage.SeverityMedium, usage.SeverityInfo:
			filter.Severity = s
		default:
			return filter, types.NewInvalidRequestError(
				"severity must be HIGH, MEDIUM or INFO",
				"severity",
				types.CodeInvalidValue,
			)
		}
	}

	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			return filter, types.NewInvalidRequestError("limit must be a positive integer", "limit", types.CodeInvalidValue)
		}
		filter.Limit = n
	}

	return filter, nil
}
