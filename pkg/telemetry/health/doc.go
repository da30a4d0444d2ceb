// Package health runs readiness checks for the governor's dependencies.
//
// Components register a CheckFunc under a name. Checker.Check runs them
// concurrently, each bounded by the checker timeout, and reports the
// service ready only when every check passes:
//
//	checker := health.New(2*time.Second, health.WithLogger(logger))
//	checker.Register("redis", func(ctx context.Context) error {
//		return client.Ping(ctx).Err()
//	})
//	r.Get("/ready", checker.ReadinessHandler())
//
// Liveness is served separately by the usage control health handler,
// which always answers 200 while the process is up.
package health
