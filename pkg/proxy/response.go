package proxy

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"mercator-hq/governor/pkg/limits"
	"mercator-hq/governor/pkg/limits/queue"
	"mercator-hq/governor/pkg/limits/storage"
	"mercator-hq/governor/pkg/limits/usage"
	"mercator-hq/governor/pkg/proxy/types"
)

// WriteJSONResponse writes data as JSON with the given status code.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}
	return nil
}

// WriteErrorResponse writes errResp with the status code of its type. A
// retry hint is also sent as a Retry-After header.
func WriteErrorResponse(w http.ResponseWriter, errResp *types.ErrorResponse) error {
	if errResp.Error.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(errResp.Error.RetryAfter))
	}
	return WriteJSONResponse(w, errResp.Error.HTTPStatusCode(), errResp)
}

// WriteError maps err with HandleError and writes the response.
func WriteError(w http.ResponseWriter, err error) error {
	return WriteErrorResponse(w, HandleError(err))
}

// FormatGenerateResponse converts a generation outcome. statusURL is the
// polling URL for deferred outcomes.
func FormatGenerateResponse(out *limits.GenerationOutcome, statusURL string) *types.GenerateResponse {
	if out.Deferred() {
		return &types.GenerateResponse{
			Success:         true,
			Queued:          true,
			RequestID:       out.Ticket.RequestID,
			QueuePosition:   out.Ticket.Position,
			EstimatedWaitMs: out.Ticket.EstimatedWait.Milliseconds(),
			Message:         "Your request is queued. Poll the status URL for the result.",
			StatusURL:       statusURL,
		}
	}

	resp := &types.GenerateResponse{Success: true, RequestID: out.RequestID}
	if out.Completion != nil {
		resp.Result = &types.GenerationResult{
			GeneratedText:    out.Completion.Text,
			TokensUsed:       out.Completion.TokensUsed,
			ProcessingTimeMs: out.ProcessingTime.Milliseconds(),
			Cost:             out.Cost,
			Attempts:         out.Attempts,
		}
	}
	return resp
}

// FormatStatusResponse converts a queued request snapshot. cost prices the
// result's token usage.
func FormatStatusResponse(req *queue.Request, cost func(tokens int) float64) *types.StatusResponse {
	resp := &types.StatusResponse{
		RequestID:  req.ID,
		Status:     string(req.Status),
		UserID:     req.UserID,
		Tier:       string(req.Tier),
		Type:       req.Type,
		Priority:   req.Priority.String(),
		Attempts:   req.Attempts,
		Error:      req.Error,
		EnqueuedAt: req.EnqueuedAt,
	}
	if !req.StartedAt.IsZero() {
		t := req.StartedAt
		resp.StartedAt = &t
	}
	if !req.CompletedAt.IsZero() {
		t := req.CompletedAt
		resp.CompletedAt = &t
	}
	if req.Result != nil {
		text, _ := req.Result.Output.(string)
		resp.Result = &types.GenerationResult{
			GeneratedText:    text,
			TokensUsed:       req.Result.TokensUsed,
			ProcessingTimeMs: req.Result.ProcessingTime.Milliseconds(),
			Attempts:         req.Attempts,
		}
		if cost != nil {
			resp.Result.Cost = cost(req.Result.TokensUsed)
		}
	}
	return resp
}

// FormatHealthResponse converts a health report.
func FormatHealthResponse(h limits.HealthReport) *types.HealthResponse {
	return &types.HealthResponse{
		Status: h.Status,
		Queue: types.QueueHealth{
			TotalQueued: h.Queue.TotalQueued,
			Processing:  h.Queue.Processing,
			CurrentLoad: h.Queue.CurrentLoad,
		},
		Usage: types.UsageHealth{
			TotalCosts:  h.Usage.TotalCosts,
			ActiveUsers: h.Usage.ActiveUsers,
			SuccessRate: h.Usage.SuccessRate,
		},
		Timestamp: h.Timestamp,
	}
}

// FormatUsageStatsResponse converts the administrative usage report.
func FormatUsageStatsResponse(s limits.AdminStats) *types.UsageStatsResponse {
	return &types.UsageStatsResponse{
		Usage: types.UsageStats{
			Timeframe:   string(s.Usage.Timeframe),
			Period:      s.Usage.Period,
			TotalCosts:  s.Usage.TotalCosts,
			TotalCalls:  s.Usage.TotalCalls,
			FailedCalls: s.Usage.FailedCalls,
			ActiveUsers: s.Usage.ActiveUsers,
			SuccessRate: s.Usage.SuccessRate,
		},
		Queue: types.QueueStats{
			High:                    s.Queue.High,
			Normal:                  s.Queue.Normal,
			Low:                     s.Queue.Low,
			TotalQueued:             s.Queue.TotalQueued,
			Processing:              s.Queue.Processing,
			MaxConcurrent:           s.Queue.MaxConcurrent,
			CurrentLoad:             s.Queue.CurrentLoad,
			Completed:               s.Queue.Completed,
			Failed:                  s.Queue.Failed,
			Expired:                 s.Queue.Expired,
			AverageProcessingTimeMs: s.Queue.AverageProcessingTime.Milliseconds(),
		},
		Timestamp: s.Timestamp,
	}
}

// FormatUserUsageResponse converts a user usage breakdown.
func FormatUserUsageResponse(u usage.UserUsage) *types.UserUsageResponse {
	resp := &types.UserUsageResponse{
		UserID:             u.UserID,
		Days:               make([]types.DayUsage, 0, len(u.Days)),
		TotalRequests:      u.TotalRequests,
		SuccessfulRequests: u.SuccessfulRequests,
	}
	for _, d := range u.Days {
		endpoints := d.Endpoints
		if endpoints == nil {
			endpoints = map[string]int{}
		}
		resp.Days = append(resp.Days, types.DayUsage{Date: d.Date, Requests: d.Requests, Endpoints: endpoints})
	}
	return resp
}

// FormatAlertsResponse converts stored alert records.
func FormatAlertsResponse(records []storage.Record) *types.AlertsResponse {
	resp := &types.AlertsResponse{Alerts: make([]types.Alert, 0, len(records))}
	for _, r := range records {
		resp.Alerts = append(resp.Alerts, types.Alert{
			ID:        r.ID,
			Type:      string(r.Type),
			Severity:  string(r.Severity),
			Message:   r.Message,
			UserID:    r.UserID,
			Value:     r.Value,
			Threshold: r.Threshold,
			Timestamp: r.Timestamp,
		})
	}
	resp.Count = len(resp.Alerts)
	return resp
}
