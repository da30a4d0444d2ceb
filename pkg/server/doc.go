// Package server provides the governor HTTP server.
//
// It builds the chi router, assigns every route its rate limit category and
// manages the http.Server lifecycle.
//
// # Basic Usage
//
//	h := handlers.New(manager, handlers.WithAlertStore(alerts))
//	srv := server.New(cfg.Server, manager, h,
//	    server.WithLogger(logger),
//	    server.WithMetrics(collector, cfg.Telemetry.Metrics.Path, collector.Handler()),
//	)
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Start blocks until ctx is cancelled, then shuts down gracefully within
// server.shutdown_timeout.
//
// # Routes
//
//	GET  /health                    no rate limit
//	GET  /ready                     no rate limit (WithReadiness)
//	GET  /version                   no rate limit (WithVersion)
//	GET  /metrics                   no rate limit (telemetry.metrics.path)
//	POST /ai/generate               ai (per tier)
//	POST /ai/generate/{type}        ai (per tier)
//	GET  /ai/status/{requestID}     general
//	GET  /user/usage                general
//	GET  /admin/usage-stats         admin
//	GET  /admin/alerts              admin
//
// Every rate-limited route also passes the burst check first. Admin routes
// additionally require X-User-Role: admin or a user id listed in
// server.admin_users (401 anonymous, 403 otherwise).
//
// # Middleware Chain
//
// Outermost first:
//  1. RequestID: assigns or propagates X-Request-ID
//  2. Identity: reads X-User-ID, X-User-Tier and X-User-Role
//  3. Tracing: server span per request (WithTracer only)
//  4. Logging: access log and HTTP metrics
//  5. Recovery: turns panics into 500 responses
//  6. CORS: cross-origin headers and preflight
//
// # TLS
//
//	server:
//	  tls:
//	    enabled: true
//	    cert_file: "/path/to/cert.pem"
//	    key_file: "/path/to/key.pem"
package server
