package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "queue.max_concurrent").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateRateLimit(&cfg.RateLimit, &cfg.Storage.Redis)...)
	errs = append(errs, validateQueue(&cfg.Queue)...)
	errs = append(errs, validateMonitoring(&cfg.Monitoring)...)
	errs = append(errs, validateCosts(&cfg.Costs)...)
	errs = append(errs, validateUpstream(&cfg.Upstream)...)
	errs = append(errs, validateStorage(&cfg.Storage.Alerts)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	if cfg.Secrets.CacheTTL < 0 {
		errs = append(errs, FieldError{Field: "secrets.cache_ttl", Message: "cache TTL must not be negative"})
	}
	errs = append(errs, validateUsageControl(&cfg.UsageControl)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must be positive"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.idle_timeout", Message: "idle timeout must be positive"})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.shutdown_timeout", Message: "shutdown timeout must be positive"})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_header_bytes", Message: "max header bytes must be non-negative"})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "max body bytes must be non-negative"})
	}
	if cfg.CORS.MaxAge < 0 {
		errs = append(errs, FieldError{Field: "server.cors.max_age", Message: "max age must be non-negative"})
	}
	if cfg.CORS.Enabled && cfg.CORS.AllowCredentials {
		for _, o := range cfg.CORS.AllowedOrigins {
			if o == "*" {
				errs = append(errs, FieldError{
					Field:   "server.cors.allowed_origins",
					Message: "wildcard origin cannot be combined with allow_credentials",
				})
				break
			}
		}
	}
	for i, u := range cfg.AdminUsers {
		if strings.TrimSpace(u) == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("server.admin_users[%d]", i),
				Message: "admin user id must not be empty",
			})
		}
	}
	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			errs = append(errs, FieldError{Field: "server.tls.cert_file", Message: "cert file is required when TLS is enabled"})
		}
		if cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{Field: "server.tls.key_file", Message: "key file is required when TLS is enabled"})
		}
	}

	return errs
}

func validateRateLimit(cfg *RateLimitConfig, redis *RedisConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "redis":
		if redis.Address == "" {
			errs = append(errs, FieldError{
				Field:   "storage.redis.address",
				Message: "redis address is required when rate_limit.backend is redis",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "rate_limit.backend",
			Message: fmt.Sprintf("invalid backend %q (must be memory or redis)", cfg.Backend),
		})
	}

	if cfg.SweepInterval <= 0 {
		errs = append(errs, FieldError{Field: "rate_limit.sweep_interval", Message: "sweep interval must be positive"})
	}

	errs = append(errs, validateWindow("rate_limit.auth", &cfg.Auth)...)
	errs = append(errs, validateWindow("rate_limit.general", &cfg.General)...)
	errs = append(errs, validateWindow("rate_limit.upload", &cfg.Upload)...)
	errs = append(errs, validateWindow("rate_limit.admin", &cfg.Admin)...)
	errs = append(errs, validateWindow("rate_limit.burst", &cfg.Burst)...)
	errs = append(errs, validateWindow("rate_limit.ai.free", &cfg.AI.Free)...)
	errs = append(errs, validateWindow("rate_limit.ai.paid", &cfg.AI.Paid)...)
	errs = append(errs, validateWindow("rate_limit.ai.premium", &cfg.AI.Premium)...)

	return errs
}

func validateWindow(prefix string, w *WindowConfig) []FieldError {
	var errs []FieldError

	if w.Window <= 0 {
		errs = append(errs, FieldError{Field: prefix + ".window", Message: "window must be positive"})
	}
	if w.Max <= 0 {
		errs = append(errs, FieldError{Field: prefix + ".max", Message: "max must be positive"})
	}
	if w.DailyMax < 0 {
		errs = append(errs, FieldError{Field: prefix + ".daily_max", Message: "daily max must be non-negative"})
	}
	if w.DailyMax > 0 && w.DailyMax < w.Max && w.Window < 24*time.Hour {
		errs = append(errs, FieldError{
			Field:   prefix + ".daily_max",
			Message: fmt.Sprintf("daily max (%d) is lower than the per-window max (%d)", w.DailyMax, w.Max),
		})
	}

	return errs
}

func validateQueue(cfg *QueueConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxConcurrent <= 0 {
		errs = append(errs, FieldError{Field: "queue.max_concurrent", Message: "max concurrent must be positive"})
	}
	if cfg.MaxQueueSize <= 0 {
		errs = append(errs, FieldError{Field: "queue.max_queue_size", Message: "max queue size must be positive"})
	}
	if cfg.RequestTimeout <= 0 {
		errs = append(errs, FieldError{Field: "queue.request_timeout", Message: "request timeout must be positive"})
	}
	if cfg.RetryAttempts < 0 {
		errs = append(errs, FieldError{Field: "queue.retry_attempts", Message: "retry attempts must be non-negative"})
	}
	if cfg.RetryDelay < 0 {
		errs = append(errs, FieldError{Field: "queue.retry_delay", Message: "retry delay must be non-negative"})
	}
	if cfg.CleanupInterval <= 0 {
		errs = append(errs, FieldError{Field: "queue.cleanup_interval", Message: "cleanup interval must be positive"})
	}
	if cfg.CompletedTTL <= 0 {
		errs = append(errs, FieldError{Field: "queue.completed_ttl", Message: "completed ttl must be positive"})
	}
	if cfg.MaxWaitTime <= 0 {
		errs = append(errs, FieldError{Field: "queue.max_wait_time", Message: "max wait time must be positive"})
	}
	if cfg.CompletedTTL > 0 && cfg.MaxWaitTime > 0 && cfg.CompletedTTL < cfg.MaxWaitTime {
		errs = append(errs, FieldError{
			Field:   "queue.completed_ttl",
			Message: fmt.Sprintf("completed ttl (%s) must be at least max wait time (%s)", cfg.CompletedTTL, cfg.MaxWaitTime),
		})
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, FieldError{Field: "queue.poll_interval", Message: "poll interval must be positive"})
	} else if cfg.PollInterval > cfg.MaxWaitTime && cfg.MaxWaitTime > 0 {
		errs = append(errs, FieldError{
			Field:   "queue.poll_interval",
			Message: "poll interval must not exceed max wait time",
		})
	}
	if cfg.DefaultProcessingTime <= 0 {
		errs = append(errs, FieldError{Field: "queue.default_processing_time", Message: "default processing time must be positive"})
	}

	for _, t := range []struct {
		tier    string
		limit   int
		timeout time.Duration
	}{
		{"free", cfg.UserQueueLimits.Free, cfg.QueueTimeouts.Free},
		{"paid", cfg.UserQueueLimits.Paid, cfg.QueueTimeouts.Paid},
		{"premium", cfg.UserQueueLimits.Premium, cfg.QueueTimeouts.Premium},
	} {
		if t.limit <= 0 {
			errs = append(errs, FieldError{Field: "queue.user_queue_limits." + t.tier, Message: "user queue limit must be positive"})
		}
		if t.timeout <= 0 {
			errs = append(errs, FieldError{Field: "queue.queue_timeouts." + t.tier, Message: "queue timeout must be positive"})
		}
	}

	return errs
}

func validateMonitoring(cfg *MonitoringConfig) []FieldError {
	var errs []FieldError

	// Zero thresholds take their defaults; negative ones disable the rule.
	if cfg.QueueSizeWarning > 0 && cfg.QueueSizeCritical > 0 && cfg.QueueSizeCritical < cfg.QueueSizeWarning {
		errs = append(errs, FieldError{
			Field:   "monitoring.queue_size_critical",
			Message: "queue size critical must be at least the warning threshold",
		})
	}
	if cfg.ErrorRateWarning > 1 {
		errs = append(errs, FieldError{Field: "monitoring.error_rate_warning", Message: "error rate warning must not exceed 1"})
	}
	if cfg.RetentionDays < 1 {
		errs = append(errs, FieldError{Field: "monitoring.retention_days", Message: "retention days must be at least 1"})
	}
	if _, err := cron.ParseStandard(cfg.RetentionSchedule); err != nil {
		errs = append(errs, FieldError{Field: "monitoring.retention_schedule", Message: fmt.Sprintf("invalid cron schedule: %v", err)})
	}
	if _, err := cron.ParseStandard(cfg.EvaluationSchedule); err != nil {
		errs = append(errs, FieldError{Field: "monitoring.evaluation_schedule", Message: fmt.Sprintf("invalid cron schedule: %v", err)})
	}
	if cfg.AlertBuffer <= 0 {
		errs = append(errs, FieldError{Field: "monitoring.alert_buffer", Message: "alert buffer must be positive"})
	}

	return errs
}

func validateCosts(cfg *CostsConfig) []FieldError {
	var errs []FieldError

	if cfg.InputPer1K < 0 {
		errs = append(errs, FieldError{Field: "costs.input_per_1k", Message: "price must be non-negative"})
	}
	if cfg.OutputPer1K < 0 {
		errs = append(errs, FieldError{Field: "costs.output_per_1k", Message: "price must be non-negative"})
	}
	if cfg.InputRatio < 0 || cfg.InputRatio > 1 {
		errs = append(errs, FieldError{Field: "costs.input_ratio", Message: "input ratio must be between 0 and 1"})
	}
	if cfg.CharsPerToken <= 0 {
		errs = append(errs, FieldError{Field: "costs.chars_per_token", Message: "chars per token must be positive"})
	}

	return errs
}

func validateUpstream(cfg *UpstreamConfig) []FieldError {
	var errs []FieldError

	switch cfg.Mode {
	case "echo":
	case "http":
		if cfg.Endpoint == "" {
			errs = append(errs, FieldError{Field: "upstream.endpoint", Message: "endpoint is required when mode is http"})
		} else if u, err := url.Parse(cfg.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, FieldError{Field: "upstream.endpoint", Message: fmt.Sprintf("invalid endpoint URL %q", cfg.Endpoint)})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "upstream.mode",
			Message: fmt.Sprintf("invalid mode %q (must be echo or http)", cfg.Mode),
		})
	}
	if cfg.Timeout <= 0 {
		errs = append(errs, FieldError{Field: "upstream.timeout", Message: "timeout must be positive"})
	}
	if cfg.EchoLatency < 0 {
		errs = append(errs, FieldError{Field: "upstream.echo_latency", Message: "echo latency must be non-negative"})
	}

	return errs
}

func validateStorage(cfg *AlertStorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
		if cfg.MaxAlerts <= 0 {
			errs = append(errs, FieldError{Field: "storage.alerts.max_alerts", Message: "max alerts must be positive"})
		}
	case "sqlite":
		if cfg.Path == "" {
			errs = append(errs, FieldError{Field: "storage.alerts.path", Message: "path is required for sqlite backend"})
		}
		if cfg.Driver != "sqlite" && cfg.Driver != "sqlite3" {
			errs = append(errs, FieldError{
				Field:   "storage.alerts.driver",
				Message: fmt.Sprintf("invalid driver %q (must be sqlite or sqlite3)", cfg.Driver),
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "storage.alerts.backend",
			Message: fmt.Sprintf("invalid backend %q (must be memory or sqlite)", cfg.Backend),
		})
	}
	if cfg.Retention <= 0 {
		errs = append(errs, FieldError{Field: "storage.alerts.retention", Message: "retention must be positive"})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be debug, info, warn or error)", cfg.Logging.Level),
		})
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json or text)", cfg.Logging.Format),
		})
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "metrics path must start with /"})
	}

	tr := cfg.Tracing
	if tr.Enabled && tr.Endpoint == "" {
		errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "endpoint is required when tracing is enabled"})
	}
	switch tr.Sampler {
	case "", "always", "never":
	case "ratio":
		if tr.SampleRatio < 0 || tr.SampleRatio > 1 {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sample_ratio",
				Message: fmt.Sprintf("sample ratio must be between 0 and 1, got %g", tr.SampleRatio),
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q (must be always, never or ratio)", tr.Sampler),
		})
	}
	if cfg.Health.CheckTimeout < 0 {
		errs = append(errs, FieldError{Field: "telemetry.health.check_timeout", Message: "check timeout must not be negative"})
	}

	return errs
}

func validateUsageControl(cfg *UsageControlConfig) []FieldError {
	var errs []FieldError

	if len(cfg.AIPathPrefixes) == 0 {
		errs = append(errs, FieldError{Field: "usage_control.ai_path_prefixes", Message: "at least one AI path prefix is required"})
	}
	for i, p := range cfg.AIPathPrefixes {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("usage_control.ai_path_prefixes[%d]", i),
				Message: "path prefix must start with /",
			})
		}
	}

	return errs
}
