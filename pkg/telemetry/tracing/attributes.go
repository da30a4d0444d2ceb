package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys in the governor namespace.
const (
	AttrRequestID = attribute.Key("governor.request_id")
	AttrUserID    = attribute.Key("governor.user_id")
	AttrTier      = attribute.Key("governor.tier")
	AttrCategory  = attribute.Key("governor.category")
	AttrPriority  = attribute.Key("governor.queue.priority")
	AttrQueued    = attribute.Key("governor.queued")
	AttrStatus    = attribute.Key("governor.status")
	AttrAttempt   = attribute.Key("governor.attempt")
	AttrTokens    = attribute.Key("governor.tokens")
	AttrCost      = attribute.Key("governor.cost_usd")
)

// RecordError marks span failed with err. A nil err marks it OK.
func RecordError(span trace.Span, err error) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceID returns the trace id of the span in ctx, or "" when there is
// none.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
