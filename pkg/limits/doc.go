// Package limits coordinates usage control for AI generation requests.
//
// # Overview
//
// The Manager ties together the components in the sub-packages:
//
//   - ratelimit: per-category fixed windows with burst protection
//   - queue: bounded priority queue with a concurrency-limited worker pool
//   - usage: cost and usage aggregation with threshold alerts
//   - storage: alert persistence (memory, SQLite)
//
// AI generation requests are rate limited by tier, admitted to the queue
// and, when the estimated wait allows, polled until they finish. Requests
// that take longer than the wait budget are returned as tickets the client
// can poll at /ai/status/{requestID}. Every other request is tracked
// asynchronously so tracking never delays a response.
//
// # Usage
//
//	monitor := usage.New(cfg.Monitoring)
//	estimator := costs.NewEstimator(costs.PricingFromConfig(cfg.Costs))
//	q := queue.New(cfg.Queue, limits.NewProcessor(generator),
//	    queue.WithCompletionHook(limits.UsageHook(monitor, estimator, logger)))
//
//	manager, err := limits.NewManager(cfg, limits.Deps{
//	    Limiter:   ratelimit.NewLimiter(cfg.RateLimit, nil),
//	    Queue:     q,
//	    Monitor:   monitor,
//	    Estimator: estimator,
//	    Generator: generator,
//	})
//
//	outcome, err := manager.Generate(ctx, limits.GenerationRequest{
//	    UserID: "user-1",
//	    Tier:   ratelimit.TierPaid,
//	    Prompt: upstream.Prompt{Text: "Summarize my notes"},
//	})
//
// # Thread Safety
//
// All Manager methods are safe for concurrent use. Configuration updates
// are applied with UpdateConfig and take effect for requests that start
// afterwards.
package limits
