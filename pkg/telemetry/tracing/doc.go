// Package tracing configures OpenTelemetry tracing for the governor.
//
// When telemetry.tracing.enabled is set, spans are batched and exported
// over OTLP/gRPC to telemetry.tracing.endpoint, and the tracer becomes the
// global provider so instrumented packages pick it up through otel.Tracer.
// Incoming requests continue W3C traceparent headers and the upstream
// client forwards them.
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    endpoint: otel-collector:4317
//	    insecure: true
//	    sampler: ratio
//	    sample_ratio: 0.1
//
// Span names:
//
//	HTTP <method> <route>      server span per request
//	usage_control.generate     admission, queueing and waiting
//	queue.process              one upstream attempt on a worker
//
// Queue workers run outside the request context; the submitting span
// context travels with the job so worker spans join the request trace.
package tracing
