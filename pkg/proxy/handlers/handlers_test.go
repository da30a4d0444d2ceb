package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/governor/pkg/limits"
	"mercator-hq/governor/pkg/limits/queue"
	"mercator-hq/governor/pkg/limits/ratelimit"
	"mercator-hq/governor/pkg/limits/storage"
	"mercator-hq/governor/pkg/limits/usage"
	"mercator-hq/governor/pkg/proxy/middleware"
	"mercator-hq/governor/pkg/proxy/types"
	"mercator-hq/governor/pkg/upstream"
)

// fakeControl records calls and returns canned results.
type fakeControl struct {
	outcome *limits.GenerationOutcome
	genErr  error
	lastGen limits.GenerationRequest

	requests map[string]*queue.Request

	health    limits.HealthReport
	stats     limits.AdminStats
	timeframe usage.Timeframe

	userDays int
	userID   string
}

func (f *fakeControl) Generate(_ context.Context, req limits.GenerationRequest) (*limits.GenerationOutcome, error) {
	f.lastGen = req
	return f.outcome, f.genErr
}

func (f *fakeControl) RequestStatus(id string) (*queue.Request, error) {
	if req, ok := f.requests[id]; ok {
		return req, nil
	}
	return nil, queue.ErrNotFound
}

func (f *fakeControl) Health() limits.HealthReport { return f.health }

func (f *fakeControl) UsageStats(tf usage.Timeframe) limits.AdminStats {
	f.timeframe = tf
	return f.stats
}

func (f *fakeControl) UserUsage(userID string, days int) usage.UserUsage {
	f.userID, f.userDays = userID, days
	return usage.UserUsage{
		UserID: userID,
		Days: []usage.DayUsage{
			{Date: "2026-10-18", Requests: 2, Endpoints: map[string]int{"/ai/generate": 2}},
			{Date: "2026-10-17"},
		},
		TotalRequests:      2,
		SuccessfulRequests: 1,
	}
}

type flatCost struct{}

func (flatCost) EstimateCost(tokens int) float64 { return float64(tokens) * 0.001 }

func newRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestIDMiddleware, middleware.IdentityMiddleware)
	r.Get("/health", h.Health)
	r.Post("/ai/generate", h.Generate)
	r.Post("/ai/generate/{type}", h.Generate)
	r.Get("/ai/status/{requestID}", h.Status)
	r.Get("/user/usage", h.UserUsage)
	r.Get("/admin/usage-stats", h.UsageStats)
	r.Get("/admin/alerts", h.Alerts)
	return r
}

type call struct {
	method string
	path   string
	body   string
	user   string
	tier   string
}

func do(t *testing.T, handler http.Handler, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if c.body != "" {
		body = bytes.NewReader([]byte(c.body))
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.user != "" {
		req.Header.Set("X-User-ID", c.user)
	}
	if c.tier != "" {
		req.Header.Set("X-User-Tier", c.tier)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

// ============================================================================
// Health
// ============================================================================

func TestHealth(t *testing.T) {
	uc := &fakeControl{health: limits.HealthReport{
		Status:    limits.StatusDegraded,
		Queue:     limits.QueueHealth{TotalQueued: 600, Processing: 10, CurrentLoad: 100},
		Usage:     limits.UsageHealth{TotalCosts: 1.5, ActiveUsers: 3, SuccessRate: 0.9},
		Timestamp: time.Now(),
	}}

	w := do(t, newRouter(New(uc)), call{method: http.MethodGet, path: "/health"})

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[types.HealthResponse](t, w)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, 600, resp.Queue.TotalQueued)
	assert.Equal(t, 100.0, resp.Queue.CurrentLoad)
	assert.Equal(t, 3, resp.Usage.ActiveUsers)
}

// ============================================================================
// Generate
// ============================================================================

func TestGenerate_Completed(t *testing.T) {
	uc := &fakeControl{outcome: &limits.GenerationOutcome{
		RequestID:      "req-1",
		Status:         queue.StatusCompleted,
		Completion:     &upstream.Completion{Text: "done", TokensUsed: 42},
		Cost:           0.042,
		ProcessingTime: 1500 * time.Millisecond,
		Attempts:       1,
	}}

	w := do(t, newRouter(New(uc)), call{
		method: http.MethodPost,
		path:   "/ai/generate",
		body:   `{"prompt":"write a haiku","type":"poem","maxTokens":64,"urgent":true}`,
		user:   "user-1",
		tier:   "premium",
	})

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[types.GenerateResponse](t, w)
	assert.True(t, resp.Success)
	assert.False(t, resp.Queued)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "done", resp.Result.GeneratedText)
	assert.Equal(t, 42, resp.Result.TokensUsed)
	assert.Equal(t, int64(1500), resp.Result.ProcessingTimeMs)
	assert.InDelta(t, 0.042, resp.Result.Cost, 1e-9)

	got := uc.lastGen
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, ratelimit.TierPremium, got.Tier)
	assert.Equal(t, "/ai/generate", got.Endpoint)
	assert.Equal(t, "poem", got.Prompt.Type)
	assert.Equal(t, "write a haiku", got.Prompt.Text)
	assert.Equal(t, 64, got.Prompt.MaxTokens)
	assert.True(t, got.Urgent)
}

func TestGenerate_Deferred(t *testing.T) {
	uc := &fakeControl{outcome: &limits.GenerationOutcome{
		RequestID: "req-2",
		Status:    queue.StatusQueued,
		Ticket:    &queue.Ticket{RequestID: "req-2", Position: 4, EstimatedWait: 40 * time.Second},
	}}

	w := do(t, newRouter(New(uc)), call{
		method: http.MethodPost,
		path:   "/ai/generate/summary",
		body:   `{"prompt":"summarize","type":"ignored"}`,
		user:   "user-1",
	})

	require.Equal(t, http.StatusAccepted, w.Code)
	resp := decode[types.GenerateResponse](t, w)
	assert.True(t, resp.Queued)
	assert.Equal(t, "req-2", resp.RequestID)
	assert.Equal(t, 4, resp.QueuePosition)
	assert.Equal(t, int64(40000), resp.EstimatedWaitMs)
	assert.Equal(t, "/ai/status/req-2", resp.StatusURL)
	assert.Nil(t, resp.Result)

	assert.Equal(t, "summary", uc.lastGen.Prompt.Type, "path type wins over body type")
	assert.Equal(t, ratelimit.TierFree, uc.lastGen.Tier)
}

func TestGenerate_RequestErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		user     string
		wantCode int
		wantErr  string
	}{
		{"missing user", `{"prompt":"hi"}`, "", http.StatusUnauthorized, types.CodeMissingUser},
		{"invalid JSON", `{"prompt":`, "user-1", http.StatusBadRequest, types.CodeInvalidJSON},
		{"empty prompt", `{"prompt":"   "}`, "user-1", http.StatusBadRequest, types.CodeMissingField},
		{"negative max tokens", `{"prompt":"hi","maxTokens":-1}`, "user-1", http.StatusBadRequest, types.CodeInvalidValue},
		{"body too large", fmt.Sprintf(`{"prompt":"%s"}`, strings.Repeat("a", 200)), "user-1", http.StatusBadRequest, types.CodeRequestTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := &fakeControl{}
			router := newRouter(New(uc, WithMaxBodyBytes(128)))

			w := do(t, router, call{method: http.MethodPost, path: "/ai/generate", body: tt.body, user: tt.user})

			require.Equal(t, tt.wantCode, w.Code)
			resp := decode[types.ErrorResponse](t, w)
			assert.Equal(t, tt.wantErr, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)
			assert.Empty(t, uc.lastGen.UserID, "manager must not be called")
		})
	}
}

func TestGenerate_ManagerErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  int
		wantCode2 string
		wantRetry string
	}{
		{
			name:      "queue full",
			err:       &queue.AdmissionError{Err: queue.ErrQueueFull, RetryAfter: 2500 * time.Millisecond},
			wantCode:  http.StatusServiceUnavailable,
			wantCode2: types.CodeQueueFull,
			wantRetry: "3",
		},
		{
			name:      "user queue limit",
			err:       &queue.AdmissionError{Err: queue.ErrUserQueueLimitExceeded, Limit: 5},
			wantCode:  http.StatusTooManyRequests,
			wantCode2: types.CodeUserQueueLimit,
		},
		{
			name:     "generation failure",
			err:      &queue.GenerationError{Attempts: 3, Err: fmt.Errorf("upstream 500")},
			wantCode: http.StatusBadGateway,
		},
		{
			name:      "generation timeout",
			err:       &queue.GenerationError{Attempts: 1, Err: context.DeadlineExceeded},
			wantCode:  http.StatusGatewayTimeout,
			wantCode2: types.CodeGenerationTimeout,
		},
		{
			name:      "expired in queue",
			err:       queue.ErrRequestTimeout,
			wantCode:  http.StatusGatewayTimeout,
			wantCode2: types.CodeRequestTimeout,
		},
		{
			name:      "stopping",
			err:       queue.ErrStopped,
			wantCode:  http.StatusServiceUnavailable,
			wantCode2: types.CodeServiceStopping,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := &fakeControl{genErr: tt.err}

			w := do(t, newRouter(New(uc)), call{method: http.MethodPost, path: "/ai/generate", body: `{"prompt":"hi"}`, user: "user-1"})

			require.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantRetry, w.Header().Get("Retry-After"))
			resp := decode[types.ErrorResponse](t, w)
			if tt.wantCode2 != "" {
				assert.Equal(t, tt.wantCode2, resp.Error.Code)
			}
		})
	}
}

// ============================================================================
// Status
// ============================================================================

func TestStatus(t *testing.T) {
	now := time.Now()
	uc := &fakeControl{requests: map[string]*queue.Request{
		"req-1": {
			ID:          "req-1",
			UserID:      "user-1",
			Tier:        ratelimit.TierPaid,
			Type:        "summary",
			Priority:    queue.PriorityNormal,
			Status:      queue.StatusCompleted,
			Attempts:    2,
			Result:      &queue.Result{Output: "text", TokensUsed: 100, ProcessingTime: time.Second},
			EnqueuedAt:  now.Add(-3 * time.Second),
			StartedAt:   now.Add(-2 * time.Second),
			CompletedAt: now,
		},
		"req-2": {ID: "req-2", UserID: "user-2", Status: queue.StatusQueued, EnqueuedAt: now},
	}}
	router := newRouter(New(uc, WithEstimator(flatCost{})))

	t.Run("owner sees result", func(t *testing.T) {
		w := do(t, router, call{method: http.MethodGet, path: "/ai/status/req-1", user: "user-1"})

		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[types.StatusResponse](t, w)
		assert.Equal(t, "completed", resp.Status)
		assert.Equal(t, "paid", resp.Tier)
		assert.Equal(t, "normal", resp.Priority)
		assert.Equal(t, 2, resp.Attempts)
		require.NotNil(t, resp.Result)
		assert.Equal(t, "text", resp.Result.GeneratedText)
		assert.InDelta(t, 0.1, resp.Result.Cost, 1e-9)
		assert.NotNil(t, resp.StartedAt)
		assert.NotNil(t, resp.CompletedAt)
	})

	t.Run("queued request has no timestamps", func(t *testing.T) {
		w := do(t, router, call{method: http.MethodGet, path: "/ai/status/req-2", user: "user-2"})

		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[types.StatusResponse](t, w)
		assert.Equal(t, "queued", resp.Status)
		assert.Nil(t, resp.StartedAt)
		assert.Nil(t, resp.Result)
	})

	t.Run("other user gets not found", func(t *testing.T) {
		w := do(t, router, call{method: http.MethodGet, path: "/ai/status/req-1", user: "user-2"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unknown request", func(t *testing.T) {
		w := do(t, router, call{method: http.MethodGet, path: "/ai/status/nope", user: "user-1"})

		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, types.CodeRequestNotFound, decode[types.ErrorResponse](t, w).Error.Code)
	})

	t.Run("anonymous", func(t *testing.T) {
		w := do(t, router, call{method: http.MethodGet, path: "/ai/status/req-1"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

// ============================================================================
// Usage
// ============================================================================

func TestUserUsage(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		user     string
		wantCode int
		wantDays int
	}{
		{"default days", "", "user-1", http.StatusOK, DefaultUsageDays},
		{"explicit days", "?days=30", "user-1", http.StatusOK, 30},
		{"invalid days", "?days=abc", "user-1", http.StatusBadRequest, 0},
		{"zero days", "?days=0", "user-1", http.StatusBadRequest, 0},
		{"anonymous", "", "", http.StatusUnauthorized, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := &fakeControl{}

			w := do(t, newRouter(New(uc)), call{method: http.MethodGet, path: "/user/usage" + tt.query, user: tt.user})

			require.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode != http.StatusOK {
				return
			}
			assert.Equal(t, tt.wantDays, uc.userDays)
			assert.Equal(t, "user-1", uc.userID)

			resp := decode[types.UserUsageResponse](t, w)
			require.Len(t, resp.Days, 2)
			assert.Equal(t, 2, resp.Days[0].Endpoints["/ai/generate"])
			assert.NotNil(t, resp.Days[1].Endpoints, "empty days serialize as {}")
			assert.Equal(t, int64(2), resp.TotalRequests)
		})
	}
}

func TestUsageStats(t *testing.T) {
	uc := &fakeControl{stats: limits.AdminStats{
		Usage: usage.Stats{Timeframe: usage.TimeframeHourly, Period: "2026-10-18T10", TotalCosts: 2.5, TotalCalls: 10},
		Queue: queue.Stats{Normal: 3, TotalQueued: 3, Processing: 2, MaxConcurrent: 10, CurrentLoad: 20, AverageProcessingTime: 2 * time.Second},
	}}

	w := do(t, newRouter(New(uc)), call{method: http.MethodGet, path: "/admin/usage-stats?timeframe=hourly"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, usage.TimeframeHourly, uc.timeframe)

	resp := decode[types.UsageStatsResponse](t, w)
	assert.Equal(t, "hourly", resp.Usage.Timeframe)
	assert.Equal(t, int64(10), resp.Usage.TotalCalls)
	assert.Equal(t, 3, resp.Queue.Normal)
	assert.Equal(t, int64(2000), resp.Queue.AverageProcessingTimeMs)
}

// ============================================================================
// Alerts
// ============================================================================

func TestAlerts(t *testing.T) {
	store := storage.NewMemoryStore(10)
	ctx := context.Background()
	now := time.Now()

	_, err := store.Save(ctx, usage.Alert{Type: usage.AlertDailyCostExceeded, Severity: usage.SeverityHigh, Message: "cost", Value: 60, Threshold: 50, Timestamp: now.Add(-2 * time.Hour)})
	require.NoError(t, err)
	_, err = store.Save(ctx, usage.Alert{Type: usage.AlertUserHourlyLimit, Severity: usage.SeverityMedium, UserID: "user-1", Message: "hourly", Timestamp: now.Add(-time.Minute)})
	require.NoError(t, err)

	router := newRouter(New(&fakeControl{}, WithAlertStore(store)))

	t.Run("all alerts newest first", func(t *testing.T) {
		w := do(t, router, call{method: http.MethodGet, path: "/admin/alerts"})

		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[types.AlertsResponse](t, w)
		require.Equal(t, 2, resp.Count)
		assert.Equal(t, string(usage.AlertUserHourlyLimit), resp.Alerts[0].Type)
		assert.Equal(t, "user-1", resp.Alerts[0].UserID)
	})

	t.Run("severity filter", func(t *testing.T) {
		w := do(t, router, call{method: http.MethodGet, path: "/admin/alerts?severity=HIGH"})

		resp := decode[types.AlertsResponse](t, w)
		require.Equal(t, 1, resp.Count)
		assert.Equal(t, 60.0, resp.Alerts[0].Value)
	})

	t.Run("since duration", func(t *testing.T) {
		w := do(t, router, call{method: http.MethodGet, path: "/admin/alerts?since=1h"})

		resp := decode[types.AlertsResponse](t, w)
		require.Equal(t, 1, resp.Count)
		assert.Equal(t, "hourly", resp.Alerts[0].Message)
	})

	t.Run("invalid parameters", func(t *testing.T) {
		for _, q := range []string{"since=yesterday", "severity=LOW", "limit=-1"} {
			w := do(t, router, call{method: http.MethodGet, path: "/admin/alerts?" + q})
			assert.Equal(t, http.StatusBadRequest, w.Code, q)
		}
	})

	t.Run("no store", func(t *testing.T) {
		w := do(t, newRouter(New(&fakeControl{})), call{method: http.MethodGet, path: "/admin/alerts"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
