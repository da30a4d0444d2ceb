package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type httpCall struct {
	route  string
	method string
	status int
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []httpCall
}

func (f *fakeRecorder) RecordHTTPRequest(route, method string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, httpCall{route, method, status})
}

func TestLogging_RecordsRoutePattern(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	rec := &fakeRecorder{}

	r := chi.NewRouter()
	r.Use(Logging(logger, rec))
	r.Get("/ai/status/{requestID}", func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, GetStartTime(r.Context()).IsZero())
		w.WriteHeader(http.StatusNotFound)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ai/status/abc", nil))

	require.Len(t, rec.calls, 1)
	assert.Equal(t, httpCall{"/ai/status/{requestID}", http.MethodGet, http.StatusNotFound}, rec.calls[0])
	assert.Contains(t, logs.String(), `"level":"WARN"`)
	assert.Contains(t, logs.String(), `"status":404`)
}

func TestLogging_KeepsCallerComponent(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})).
		With("component", "server")

	handler := Logging(logger, nil)(http.NotFoundHandler())
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	require.NotEmpty(t, lines)
	for _, line := range lines {
		assert.Equal(t, 1, strings.Count(line, `"component"`), line)
		assert.Contains(t, line, `"component":"server"`)
		assert.Contains(t, line, `"subsystem":"http"`)
	}
}

func TestLogging_UnmatchedRoute(t *testing.T) {
	rec := &fakeRecorder{}
	handler := Logging(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), rec)(http.NotFoundHandler())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	require.Len(t, rec.calls, 1)
	assert.Equal(t, "unmatched", rec.calls[0].route)
}

func TestResponseWriter_DefaultStatus(t *testing.T) {
	w := httptest.NewRecorder()
	rw := newResponseWriter(w)

	_, err := rw.Write([]byte("hello"))
	require.NoError(t, err)
	rw.WriteHeader(http.StatusTeapot)

	assert.Equal(t, http.StatusOK, rw.statusCode)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, w, rw.Unwrap())
}
