package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/governor/pkg/config"
	"mercator-hq/governor/pkg/limits/ratelimit"
	"mercator-hq/governor/pkg/proxy/handlers"
	"mercator-hq/governor/pkg/proxy/middleware"
	"mercator-hq/governor/pkg/telemetry/health"
	"mercator-hq/governor/pkg/telemetry/tracing"
)

// Server is the governor HTTP server.
type Server struct {
	config   config.ServerConfig
	control  middleware.UsageControl
	handlers *handlers.Handlers
	logger   *slog.Logger

	recorder       middleware.HTTPRecorder
	metricsPath    string
	metricsHandler http.Handler
	readiness      *health.Checker
	version        *health.VersionInfo
	tracer         trace.Tracer

	httpServer   *http.Server
	listener     net.Listener
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger.With("component", "server")
		}
	}
}

// WithMetrics records per-route HTTP metrics with recorder and, when path
// is not empty, mounts handler at path.
func WithMetrics(recorder middleware.HTTPRecorder, path string, handler http.Handler) Option {
	return func(s *Server) {
		s.recorder = recorder
		s.metricsPath = path
		s.metricsHandler = handler
	}
}

// WithReadiness serves checker at GET /ready.
func WithReadiness(checker *health.Checker) Option {
	return func(s *Server) { s.readiness = checker }
}

// WithVersion serves info at GET /version.
func WithVersion(info health.VersionInfo) Option {
	return func(s *Server) { s.version = &info }
}

// WithTracer starts a server span for every request.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Server) { s.tracer = tracer }
}

// New creates a server. control rate-limits and tracks requests; h serves
// the API endpoints.
func New(cfg config.ServerConfig, control middleware.UsageControl, h *handlers.Handlers, opts ...Option) *Server {
	s := &Server{
		config:   cfg,
		control:  control,
		handlers: h,
		logger:   slog.Default().With("component", "server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start listens on the configured address and serves until ctx is
// cancelled or the listener fails. Cancellation triggers Shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		ln.Close()
		return fmt.Errorf("server is already running")
	}

	s.httpServer = &http.Server{
		Handler:        s.Handler(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	if s.config.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(s.config.TLS.CertFile, s.config.TLS.KeyFile)
		if err != nil {
			s.mu.Unlock()
			ln.Close()
			return fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
		ln = tls.NewListener(ln, s.httpServer.TLSConfig)
	}

	s.listener = ln
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server",
			"address", ln.Addr().String(),
			"tls_enabled", s.config.TLS.Enabled,
		)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err, ok := <-errChan:
		if !ok {
			return nil
		}
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	}
}

// Shutdown stops accepting connections and waits for in-flight requests
// up to the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		running, srv := s.isRunning, s.httpServer
		s.mu.RUnlock()
		if !running || srv == nil {
			return
		}

		s.logger.Info("Initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx := ctx
		if s.config.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			shutdownCtx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
			defer cancel()
		}

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("HTTP server stopped")
	})

	return shutdownErr
}

// Addr returns the listener address, or nil before the server starts.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the router with the full middleware chain.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.IdentityMiddleware)
	if s.tracer != nil {
		r.Use(middleware.Tracing(s.tracer, tracing.Propagator()))
	}
	r.Use(middleware.Logging(s.logger, s.recorder))
	r.Use(middleware.Recovery(s.logger))
	r.Use(middleware.CORSMiddleware(s.config.CORS))

	r.Get("/health", s.handlers.Health)
	if s.readiness != nil {
		r.Get("/ready", s.readiness.ReadinessHandler())
	}
	if s.version != nil {
		r.Get("/version", health.VersionHandler(*s.version))
	}
	if s.metricsPath != "" && s.metricsHandler != nil {
		r.Handle(s.metricsPath, s.metricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Protect(s.control, ratelimit.CategoryAI, s.logger))
		r.Post("/ai/generate", s.handlers.Generate)
		r.Post("/ai/generate/{type}", s.handlers.Generate)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Protect(s.control, ratelimit.CategoryGeneral, s.logger))
		r.Get("/ai/status/{requestID}", s.handlers.Status)
		r.Get("/user/usage", s.handlers.UserUsage)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Protect(s.control, ratelimit.CategoryAdmin, s.logger))
		r.Use(middleware.RequireAdmin(s.config.AdminUsers, s.logger))
		r.Get("/admin/usage-stats", s.handlers.UsageStats)
		r.Get("/admin/alerts", s.handlers.Alerts)
	})

	return r
}
