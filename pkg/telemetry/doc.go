// Package telemetry groups the observability packages of the governor.
//
// # Components
//
//   - logging: slog construction with request-scoped fields and secret redaction
//   - metrics: Prometheus collectors for HTTP, rate limiting, the queue and usage
//   - tracing: OpenTelemetry tracer provider with OTLP/gRPC export
//   - health: readiness checks and the /ready and /version handlers
//
// # Usage
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging, os.Stderr))
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, prometheus.NewRegistry())
//	tracer, err := tracing.New(cfg.Telemetry.Tracing, tracing.WithLogger(logger))
//	defer tracer.Shutdown(ctx)
//
// Each component is optional. Packages under pkg/limits take metrics
// through narrow recorder interfaces satisfied by *metrics.Collector.
package telemetry
