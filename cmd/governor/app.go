package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"mercator-hq/governor/pkg/config"
	"mercator-hq/governor/pkg/limits"
	"mercator-hq/governor/pkg/limits/queue"
	"mercator-hq/governor/pkg/limits/ratelimit"
	"mercator-hq/governor/pkg/limits/storage"
	"mercator-hq/governor/pkg/limits/usage"
	"mercator-hq/governor/pkg/processing/costs"
	"mercator-hq/governor/pkg/proxy/handlers"
	"mercator-hq/governor/pkg/server"
	"mercator-hq/governor/pkg/telemetry/health"
	"mercator-hq/governor/pkg/telemetry/metrics"
	"mercator-hq/governor/pkg/telemetry/tracing"
	"mercator-hq/governor/pkg/upstream"
)

const (
	// redisPingTimeout bounds the startup connectivity check.
	redisPingTimeout = 5 * time.Second

	// tracerFlushTimeout bounds the final span export.
	tracerFlushTimeout = 5 * time.Second
)

// app holds every long-lived component of a running governor.
type app struct {
	store  *config.Store
	logger *slog.Logger

	collector *metrics.Collector
	tracer    *tracing.Tracer
	readiness *health.Checker
	windows   *ratelimit.MemoryStore
	redis     *redis.Client
	alerts    storage.AlertStore
	queue     *queue.Queue
	monitor   *usage.Monitor
	manager   *limits.Manager
	server    *server.Server
	watcher   *config.Watcher
}

// newApp wires the components for the store's current configuration.
// When watchPath is set, changes to that file are reloaded with reload.
func newApp(store *config.Store, logger *slog.Logger, watchPath string, reload func() (*config.Config, error)) (_ *app, err error) {
	cfg := store.Get()
	a := &app{store: store, logger: logger}
	defer func() {
		if err != nil {
			a.closeStores()
		}
	}()

	a.collector = metrics.NewCollector(cfg.Telemetry.Metrics, nil)
	a.tracer, err = tracing.New(cfg.Telemetry.Tracing,
		tracing.WithVersion(Version),
		tracing.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.readiness = health.New(cfg.Telemetry.Health.CheckTimeout, health.WithLogger(logger))

	var windows ratelimit.WindowStore
	switch cfg.RateLimit.Backend {
	case "redis":
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Address,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		defer cancel()
		if err := a.redis.Ping(ctx).Err(); err != nil {
			if !cfg.RateLimit.FailOpen {
				return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Storage.Redis.Address, err)
			}
			logger.Warn("Redis unavailable at startup, rate limiting fails open until it recovers",
				"address", cfg.Storage.Redis.Address,
				"error", err,
			)
		}
		windows = ratelimit.NewRedisStore(a.redis, cfg.Storage.Redis.KeyPrefix)
		a.readiness.Register("window_store", func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
	default:
		a.windows = ratelimit.NewMemoryStore()
		windows = a.windows
	}
	limiter := ratelimit.NewLimiter(cfg.RateLimit, windows,
		ratelimit.WithLogger(logger),
		ratelimit.WithMetrics(a.collector),
	)

	a.alerts, err = storage.Open(cfg.Storage.Alerts)
	if err != nil {
		return nil, fmt.Errorf("failed to open alert storage: %w", err)
	}
	a.readiness.Register("alert_store", a.alerts.Ping)

	estimator := costs.NewEstimator(costs.PricingFromConfig(cfg.Costs))
	gen, err := upstream.New(cfg.Upstream,
		upstream.WithLogger(logger),
		upstream.WithTokenEstimator(estimator),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream generator: %w", err)
	}

	a.monitor = usage.New(cfg.Monitoring,
		usage.WithLogger(logger),
		usage.WithMetrics(a.collector),
		usage.WithQueueSource(func() int { return a.queue.GetQueueStats().TotalQueued }),
		usage.WithCleanupHook(storage.Pruner(a.alerts, cfg.Storage.Alerts.Retention, logger)),
	)
	a.monitor.Notifier().AddSink(usage.LogSink{Logger: logger.With("component", "alerts")})
	a.monitor.Notifier().AddSink(storage.Sink{Store: a.alerts})

	// The queue is built even when bypassed so a reload can enable it.
	a.queue = queue.New(cfg.Queue, limits.NewProcessor(gen),
		queue.WithLogger(logger),
		queue.WithMetrics(a.collector),
		queue.WithCompletionHook(limits.UsageHook(a.monitor, estimator, logger)),
	)

	a.manager, err = limits.NewManager(cfg, limits.Deps{
		Limiter:   limiter,
		Queue:     a.queue,
		Monitor:   a.monitor,
		Estimator: estimator,
		Generator: gen,
	}, limits.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create usage control manager: %w", err)
	}
	store.OnChange(func(_, updated *config.Config) {
		a.manager.UpdateConfig(updated)
	})
	a.readiness.Register("queue", a.checkQueue)

	h := handlers.New(a.manager,
		handlers.WithLogger(logger),
		handlers.WithAlertStore(a.alerts),
		handlers.WithEstimator(estimator),
		handlers.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
	)
	opts := []server.Option{
		server.WithLogger(logger),
		server.WithReadiness(a.readiness),
		server.WithVersion(health.NewVersionInfo(Version, GitCommit, BuildDate)),
	}
	if a.tracer.Enabled() {
		opts = append(opts, server.WithTracer(a.tracer))
	}
	if cfg.Telemetry.Metrics.Enabled {
		opts = append(opts, server.WithMetrics(a.collector, cfg.Telemetry.Metrics.Path, a.collector.Handler()))
	}
	a.server = server.New(cfg.Server, a.manager, h, opts...)

	if watchPath != "" && reload != nil {
		a.watcher = config.NewWatcher(watchPath, store, reload, logger)
	}
	return a, nil
}

// run serves until ctx is cancelled or a component fails, then shuts
// everything down: HTTP server first, then the queue and the monitor,
// then the stores.
func (a *app) run(ctx context.Context) error {
	cfg := a.store.Get()

	// Background work outlives ctx so queued requests keep moving while
	// the HTTP server drains.
	if err := a.manager.Start(context.WithoutCancel(ctx)); err != nil {
		a.closeStores()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Start(gctx)
	})
	if a.windows != nil {
		g.Go(func() error {
			a.windows.Run(gctx, cfg.RateLimit.SweepInterval)
			return nil
		})
	}
	if a.watcher != nil {
		g.Go(func() error {
			if err := a.watcher.Watch(gctx); err != nil {
				a.logger.Error("Config watcher failed, hot reload disabled", "error", err)
			}
			return nil
		})
	}

	serveErr := g.Wait()
	if err := a.server.Shutdown(context.Background()); err != nil {
		serveErr = errors.Join(serveErr, err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.manager.Stop(stopCtx); err != nil {
		a.logger.Error("Usage control did not stop cleanly", "error", err)
		serveErr = errors.Join(serveErr, err)
	}

	a.closeStores()
	a.logger.Info("Governor stopped")
	return serveErr
}

// checkQueue fails when AI requests would be rejected by the queue.
func (a *app) checkQueue(_ context.Context) error {
	cfg := a.store.Get()
	if !cfg.UsageControl.QueueEnabled {
		return nil
	}
	if !a.queue.Running() {
		return errors.New("queue is not running")
	}
	if stats := a.queue.GetQueueStats(); stats.TotalQueued >= cfg.Queue.MaxQueueSize {
		return fmt.Errorf("queue is full (%d queued)", stats.TotalQueued)
	}
	return nil
}

func (a *app) closeStores() {
	if a.alerts != nil {
		if err := a.alerts.Close(); err != nil {
			a.logger.Warn("Failed to close alert storage", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Failed to close redis client", "error", err)
		}
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), tracerFlushTimeout)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("Failed to flush traces", "error", err)
		}
	}
}
