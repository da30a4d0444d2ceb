package tracing

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mercator-hq/governor/pkg/config"
)

// InstrumentationName names the tracer used by governor packages.
const InstrumentationName = "mercator-hq/governor"

// Tracer owns the span pipeline. When tracing is disabled it hands out a
// noop tracer and Shutdown does nothing.
type Tracer struct {
	trace.Tracer

	provider *sdktrace.TracerProvider
	enabled  bool
	logger   *slog.Logger
}

// Option configures a Tracer.
type Option func(*options)

type options struct {
	exporter sdktrace.SpanExporter
	version  string
	logger   *slog.Logger
	global   bool
}

// WithExporter replaces the OTLP exporter.
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.exporter = exp }
}

// WithVersion sets the service.version resource attribute.
func WithVersion(version string) Option {
	return func(o *options) { o.version = version }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithoutGlobal keeps the provider out of the otel globals.
func WithoutGlobal() Option {
	return func(o *options) { o.global = false }
}

// New builds the tracer for cfg. An enabled tracer exports batches over
// OTLP/gRPC and, unless WithoutGlobal is given, becomes the global tracer
// provider with W3C trace context propagation.
//
// The tracer must be shut down to flush pending spans:
//
//	defer tracer.Shutdown(ctx)
func New(cfg config.TracingConfig, opts ...Option) (*Tracer, error) {
	o := options{version: "dev", logger: slog.Default(), global: true}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("component", "tracing")

	if !cfg.Enabled {
		return &Tracer{
			Tracer: noop.NewTracerProvider().Tracer(InstrumentationName),
			logger: logger,
		}, nil
	}

	sampler, err := newSampler(cfg.Sampler, cfg.SampleRatio)
	if err != nil {
		return nil, fmt.Errorf("failed to create sampler: %w", err)
	}

	exporter := o.exporter
	if exporter == nil {
		exporter, err = newOTLPExporter(cfg)
		if err != nil {
			return nil, err
		}
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(o.version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	if o.global {
		otel.SetTracerProvider(provider)
		otel.SetTextMapPropagator(Propagator())
	}

	logger.Info("Tracing enabled",
		"endpoint", cfg.Endpoint,
		"sampler", cfg.Sampler,
		"sample_ratio", cfg.SampleRatio,
	)

	return &Tracer{
		Tracer:   provider.Tracer(InstrumentationName),
		provider: provider,
		enabled:  true,
		logger:   logger,
	}, nil
}

func newOTLPExporter(cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if cfg.Timeout > 0 {
		opts = append(opts, otlptracegrpc.WithTimeout(cfg.Timeout))
	}

	// The gRPC connection is established lazily; this does not dial.
	exporter, err := otlptracegrpc.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}
	return exporter, nil
}

// Propagator is the W3C trace context and baggage propagator.
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// Enabled reports whether spans are exported.
func (t *Tracer) Enabled() bool {
	return t.enabled
}

// ForceFlush exports every finished span still buffered.
func (t *Tracer) ForceFlush(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.ForceFlush(ctx)
}

// Shutdown flushes pending spans and stops the exporter.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	if err := t.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down tracer provider: %w", err)
	}
	t.logger.Info("Tracing stopped")
	return nil
}
