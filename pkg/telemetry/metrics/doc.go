// Package metrics provides Prometheus metrics for the governor.
//
// # Metrics Categories
//
//   - HTTP: request count and duration by route
//   - Rate limit: checks and rejections by category
//   - Queue: lane depth, processing count, outcomes, rejections, wait time
//   - Usage: tracked calls, cost, alerts raised and dropped
//
// # Usage
//
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//
//	limiter := ratelimit.NewLimiter(cfg.RateLimit, store, ratelimit.WithMetrics(collector))
//	q := queue.New(cfg.Queue, processor, queue.WithMetrics(collector))
//	monitor := usage.New(cfg.Monitoring, usage.WithMetrics(collector))
//
//	router.Handle("/metrics", collector.Handler())
//
// Every collector uses its own registry so tests and multiple instances do
// not collide on the global default registry.
package metrics
