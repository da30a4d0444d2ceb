package limits

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"mercator-hq/governor/pkg/limits/queue"
	"mercator-hq/governor/pkg/limits/usage"
	"mercator-hq/governor/pkg/processing/costs"
	"mercator-hq/governor/pkg/telemetry/tracing"
	"mercator-hq/governor/pkg/upstream"
)

// NewProcessor returns a queue processor that runs each Job through gen.
func NewProcessor(gen upstream.Generator) queue.Processor {
	return queue.ProcessorFunc(func(ctx context.Context, req *queue.Request) (*queue.Result, error) {
		job, ok := req.Payload.(*Job)
		if !ok {
			return nil, fmt.Errorf("unexpected payload %T for request %s", req.Payload, req.ID)
		}
		prompt := job.Prompt
		prompt.UserID = req.UserID

		if job.Trace.IsValid() {
			ctx = trace.ContextWithSpanContext(ctx, job.Trace)
		}
		ctx, span := tracer().Start(ctx, "queue.process", trace.WithAttributes(
			tracing.AttrRequestID.String(req.ID),
			tracing.AttrUserID.String(req.UserID),
			tracing.AttrPriority.String(req.Priority.String()),
			tracing.AttrAttempt.Int(req.Attempts),
		))
		defer span.End()

		completion, err := gen.Generate(ctx, prompt)
		tracing.RecordError(span, err)
		if err != nil {
			return nil, err
		}
		span.SetAttributes(tracing.AttrTokens.Int(completion.TokensUsed))
		return &queue.Result{
			Output:     completion.Text,
			TokensUsed: completion.TokensUsed,
		}, nil
	})
}

// UsageHook returns a queue completion hook that records finished
// generations with the monitor. Failed requests are recorded with zero
// cost. Expired requests never reached the upstream and are not recorded.
func UsageHook(monitor *usage.Monitor, estimator *costs.Estimator, logger *slog.Logger) func(queue.Request) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "usage_control")

	return func(req queue.Request) {
		if req.Status != queue.StatusCompleted && req.Status != queue.StatusFailed {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Usage tracking panicked", "request_id", req.ID, "panic", r)
			}
		}()
		monitor.TrackAPICall(callFor(req, estimator))
	}
}

func callFor(req queue.Request, estimator *costs.Estimator) usage.Call {
	endpoint := req.Type
	if job, ok := req.Payload.(*Job); ok && job.Endpoint != "" {
		endpoint = job.Endpoint
	}

	call := usage.Call{
		UserID:    req.UserID,
		Endpoint:  endpoint,
		Success:   req.Status == queue.StatusCompleted,
		Timestamp: req.CompletedAt,
	}
	if !req.StartedAt.IsZero() {
		call.Duration = req.CompletedAt.Sub(req.StartedAt)
	}
	if call.Success && req.Result != nil {
		call.Cost = estimator.EstimateCost(req.Result.TokensUsed)
	}
	if call.Timestamp.IsZero() {
		call.Timestamp = time.Now()
	}
	return call
}
