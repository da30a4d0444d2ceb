package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/governor/pkg/proxy"
	"mercator-hq/governor/pkg/telemetry/tracing"
)

func newSpanRecorder() (*tracetest.SpanRecorder, trace.Tracer) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	return rec, tp.Tracer("test")
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracing_NamesSpanByRoute(t *testing.T) {
	rec, tracer := newSpanRecorder()

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware, IdentityMiddleware, Tracing(tracer, nil))
	r.Get("/ai/status/{requestID}", func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, trace.SpanContextFromContext(r.Context()).IsValid())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ai/status/abc", nil)
	req.Header.Set(proxy.UserIDHeader, "u1")
	req.Header.Set(proxy.UserTierHeader, "paid")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "HTTP GET /ai/status/{requestID}", span.Name())
	assert.Equal(t, trace.SpanKindServer, span.SpanKind())
	assert.Equal(t, span.SpanContext().TraceID().String(), w.Header().Get("X-Trace-ID"))

	user, ok := spanAttr(span, tracing.AttrUserID)
	require.True(t, ok)
	assert.Equal(t, "u1", user.AsString())
	status, ok := spanAttr(span, "http.response.status_code")
	require.True(t, ok)
	assert.Equal(t, int64(http.StatusOK), status.AsInt64())
	reqID, ok := spanAttr(span, tracing.AttrRequestID)
	require.True(t, ok)
	assert.NotEmpty(t, reqID.AsString())
}

func TestTracing_ContinuesIncomingTrace(t *testing.T) {
	rec, tracer := newSpanRecorder()

	parentRec, parentTracer := newSpanRecorder()
	ctx, parent := parentTracer.Start(context.Background(), "client")
	parent.End()
	require.Len(t, parentRec.Ended(), 1)

	handler := Tracing(tracer, tracing.Propagator())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	tracing.Propagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, parent.SpanContext().TraceID(), spans[0].SpanContext().TraceID())
	assert.Equal(t, parent.SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.Equal(t, "HTTP GET unmatched", spans[0].Name())
}

func TestTracing_ServerErrorMarksSpan(t *testing.T) {
	rec, tracer := newSpanRecorder()

	handler := Tracing(tracer, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/ai/generate", nil))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}
