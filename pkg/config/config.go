package config

import "time"

// Config is the root configuration structure for Mercator Governor.
// A resolved Config is treated as an immutable snapshot; use Store to
// replace it at runtime.
type Config struct {
	// Environment is the name of the profile the configuration was resolved
	// for (development, staging, production).
	Environment string `yaml:"environment"`

	// Server contains HTTP server configuration.
	Server ServerConfig `yaml:"server"`

	// RateLimit contains per-category and per-tier window limits.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Queue contains smart queue bounds, timeouts and per-tier limits.
	Queue QueueConfig `yaml:"queue"`

	// Monitoring contains usage monitor thresholds and retention settings.
	Monitoring MonitoringConfig `yaml:"monitoring"`

	// Costs contains the price table used for cost estimation.
	Costs CostsConfig `yaml:"costs"`

	// Upstream configures the AI generation backend.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Storage configures alert persistence and the shared window store.
	Storage StorageConfig `yaml:"storage"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// UsageControl contains orchestrator behaviour switches.
	UsageControl UsageControlConfig `yaml:"usage_control"`

	// Secrets configures resolution of ${secret:name} references.
	Secrets SecretsConfig `yaml:"secrets"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. It must cover queue.max_wait_time for synchronous AI requests.
	// Default: 60s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown, including queue draining.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes limits AI generation request bodies.
	// Default: 1048576 (1MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// CORS configures cross-origin access to the HTTP API.
	CORS CORSConfig `yaml:"cors"`

	// TLS enables HTTPS on the listener.
	TLS TLSConfig `yaml:"tls"`

	// AdminUsers lists user ids allowed on the /admin routes in addition to
	// callers whose X-User-Role is "admin".
	AdminUsers []string `yaml:"admin_users"`
}

// TLSConfig contains listener TLS settings.
type TLSConfig struct {
	// Enabled serves HTTPS with CertFile and KeyFile.
	Enabled bool `yaml:"enabled"`

	// CertFile is the PEM certificate chain path.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the PEM private key path.
	KeyFile string `yaml:"key_file"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	// Enabled turns CORS handling on.
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins lists allowed origins. Use ["*"] to allow all.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods lists methods allowed in preflight responses.
	// Default: ["GET", "POST", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders lists request headers allowed in preflight responses.
	AllowedHeaders []string `yaml:"allowed_headers"`

	// ExposedHeaders lists response headers readable by clients.
	ExposedHeaders []string `yaml:"exposed_headers"`

	// MaxAge is how long browsers may cache preflight results.
	// Default: 1h
	MaxAge time.Duration `yaml:"max_age"`

	// AllowCredentials allows cookies and authorization headers.
	AllowCredentials bool `yaml:"allow_credentials"`
}

// WindowConfig describes one fixed-window limit.
type WindowConfig struct {
	// Window is the length of the fixed window.
	Window time.Duration `yaml:"window"`

	// Max is the number of requests allowed per window.
	Max int `yaml:"max"`

	// DailyMax is an additional 24h cap. Zero disables it.
	DailyMax int `yaml:"daily_max"`

	// Message is returned to the caller when the limit is hit.
	Message string `yaml:"message"`

	// SkipSuccessful excludes successful requests from the count.
	SkipSuccessful bool `yaml:"skip_successful"`
}

// TierWindows holds AI generation limits for each subscription tier.
type TierWindows struct {
	Free    WindowConfig `yaml:"free"`
	Paid    WindowConfig `yaml:"paid"`
	Premium WindowConfig `yaml:"premium"`
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	// Enabled turns rate limiting on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// FailOpen allows requests through when the window store errors.
	// Default: true
	FailOpen bool `yaml:"fail_open"`

	// Backend selects the window store: "memory" or "redis".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// SweepInterval is how often expired in-memory windows are dropped.
	// Default: 5m
	SweepInterval time.Duration `yaml:"sweep_interval"`

	Auth    WindowConfig `yaml:"auth"`
	General WindowConfig `yaml:"general"`
	Upload  WindowConfig `yaml:"upload"`
	Admin   WindowConfig `yaml:"admin"`
	Burst   WindowConfig `yaml:"burst"`

	// AI holds the per-tier AI generation windows.
	AI TierWindows `yaml:"ai"`
}

// TierInts holds one integer per subscription tier.
type TierInts struct {
	Free    int `yaml:"free"`
	Paid    int `yaml:"paid"`
	Premium int `yaml:"premium"`
}

// TierDurations holds one duration per subscription tier.
type TierDurations struct {
	Free    time.Duration `yaml:"free"`
	Paid    time.Duration `yaml:"paid"`
	Premium time.Duration `yaml:"premium"`
}

// QueueConfig contains smart queue configuration.
type QueueConfig struct {
	// MaxConcurrent is the number of requests processed at once.
	// Default: 10
	MaxConcurrent int `yaml:"max_concurrent"`

	// MaxQueueSize caps the number of queued requests across all lanes.
	// Default: 1000
	MaxQueueSize int `yaml:"max_queue_size"`

	// RequestTimeout bounds a single upstream attempt.
	// Default: 30s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// RetryAttempts is the number of retries after the first failure.
	// Default: 3
	RetryAttempts int `yaml:"retry_attempts"`

	// RetryDelay is the backoff unit; attempt n waits RetryDelay*n.
	// Default: 1s
	RetryDelay time.Duration `yaml:"retry_delay"`

	// CleanupInterval is how often expiry and eviction sweeps run.
	// Default: 60s
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// CompletedTTL is how long terminal requests stay queryable.
	// Default: 1h
	CompletedTTL time.Duration `yaml:"completed_ttl"`

	// MaxWaitTime is the longest a caller blocks polling for a result.
	// Default: 30s
	MaxWaitTime time.Duration `yaml:"max_wait_time"`

	// PollInterval is the status polling interval.
	// Default: 500ms
	PollInterval time.Duration `yaml:"poll_interval"`

	// DefaultProcessingTime seeds the wait estimate before any request has
	// completed.
	// Default: 5s
	DefaultProcessingTime time.Duration `yaml:"default_processing_time"`

	// UserQueueLimits caps non-terminal requests per user.
	UserQueueLimits TierInts `yaml:"user_queue_limits"`

	// QueueTimeouts is the longest a request may wait queued.
	QueueTimeouts TierDurations `yaml:"queue_timeouts"`
}

// MonitoringConfig contains usage monitor configuration.
//
// Alert thresholds left at zero take their defaults. A negative threshold
// disables its rule.
type MonitoringConfig struct {
	// DailyCostLimit triggers DAILY_COST_EXCEEDED when exceeded (USD).
	// Default: 50
	DailyCostLimit float64 `yaml:"daily_cost_limit"`

	// HourlyCostLimit triggers HOURLY_COST_EXCEEDED when exceeded (USD).
	// Default: 10
	HourlyCostLimit float64 `yaml:"hourly_cost_limit"`

	// PerUserDailyLimit is the per-user daily request count alert threshold.
	// Default: 100
	PerUserDailyLimit int `yaml:"per_user_daily_limit"`

	// PerUserHourlyLimit is the per-user hourly request count alert threshold.
	// Default: 20
	PerUserHourlyLimit int `yaml:"per_user_hourly_limit"`

	// SuspiciousPerMinute is the per-user calls-per-minute threshold.
	// Default: 10
	SuspiciousPerMinute int `yaml:"suspicious_per_minute"`

	// QueueSizeWarning and QueueSizeCritical are queued-request thresholds.
	// Defaults: 100 and 500
	QueueSizeWarning  int `yaml:"queue_size_warning"`
	QueueSizeCritical int `yaml:"queue_size_critical"`

	// ErrorRateWarning is the failed/total ratio that triggers a warning.
	// Default: 0.1
	ErrorRateWarning float64 `yaml:"error_rate_warning"`

	// RetentionDays is how long daily aggregates are kept.
	// Default: 30
	RetentionDays int `yaml:"retention_days"`

	// RetentionSchedule is the cron spec of the retention sweep.
	// Default: "@daily"
	RetentionSchedule string `yaml:"retention_schedule"`

	// EvaluationSchedule is the cron spec of queue and error rate checks.
	// Default: "@every 1m"
	EvaluationSchedule string `yaml:"evaluation_schedule"`

	// AlertBuffer is the capacity of the alert channel.
	// Default: 256
	AlertBuffer int `yaml:"alert_buffer"`
}

// CostsConfig contains the price table for cost estimation.
type CostsConfig struct {
	// InputPer1K is the price in USD per 1000 input tokens.
	// Default: 0.00125
	InputPer1K float64 `yaml:"input_per_1k"`

	// OutputPer1K is the price in USD per 1000 output tokens.
	// Default: 0.00375
	OutputPer1K float64 `yaml:"output_per_1k"`

	// InputRatio is the share of tokens counted as input.
	// Default: 0.7
	InputRatio float64 `yaml:"input_ratio"`

	// CharsPerToken is used when token usage is unavailable.
	// Default: 4
	CharsPerToken int `yaml:"chars_per_token"`
}

// UpstreamConfig configures the AI generation backend.
type UpstreamConfig struct {
	// Mode selects the generator: "echo" or "http".
	// Default: "echo"
	Mode string `yaml:"mode"`

	// Endpoint is the generation URL for mode "http".
	Endpoint string `yaml:"endpoint"`

	// APIKey is sent as a bearer token.
	APIKey string `yaml:"api_key"`

	// Model is passed through to the upstream.
	Model string `yaml:"model"`

	// Timeout is the HTTP client timeout.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout"`

	// EchoLatency is the simulated latency of the echo generator.
	EchoLatency time.Duration `yaml:"echo_latency"`
}

// StorageConfig configures persistence backends.
type StorageConfig struct {
	Alerts AlertStorageConfig `yaml:"alerts"`
	Redis  RedisConfig        `yaml:"redis"`
}

// AlertStorageConfig configures alert persistence.
type AlertStorageConfig struct {
	// Backend is "memory" or "sqlite".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// Path is the SQLite database path.
	// Default: "governor-alerts.db"
	Path string `yaml:"path"`

	// Driver is the database/sql driver: "sqlite" (pure Go) or "sqlite3" (cgo).
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// MaxAlerts bounds the in-memory store.
	// Default: 1000
	MaxAlerts int `yaml:"max_alerts"`

	// Retention is how long stored alerts are kept.
	// Default: 720h
	Retention time.Duration `yaml:"retention"`
}

// RedisConfig configures the shared rate limit window store.
type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	Health  HealthConfig  `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes source file and line in log records.
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled exposes the metrics endpoint.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the metrics endpoint path.
	// Default: "/metrics"
	Path string `yaml:"path"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled exports spans over OTLP/gRPC.
	Enabled bool `yaml:"enabled"`

	// Endpoint is the collector host:port.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// ServiceName is the service.name resource attribute.
	// Default: "governor"
	ServiceName string `yaml:"service_name"`

	// Sampler is "always", "never" or "ratio".
	// Default: "always"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the sampled share of traces for sampler "ratio".
	SampleRatio float64 `yaml:"sample_ratio"`

	// Timeout bounds one export call.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains readiness probe configuration.
type HealthConfig struct {
	// CheckTimeout bounds each readiness check.
	// Default: 2s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

// SecretsConfig configures where secret references are looked up.
type SecretsConfig struct {
	// EnvPrefix is prepended to the upper-cased secret name.
	// Default: "GOVERNOR_SECRET_"
	EnvPrefix string `yaml:"env_prefix"`

	// Dir holds one file per secret. Empty disables file lookup.
	Dir string `yaml:"dir"`

	// CacheTTL is how long resolved values are reused.
	// Default: 5m
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// UsageControlConfig contains orchestrator switches.
type UsageControlConfig struct {
	// GracefulDegradation lets requests proceed without usage control when
	// the control layer itself fails.
	// Default: true
	GracefulDegradation bool `yaml:"graceful_degradation"`

	// QueueEnabled routes AI requests through the smart queue. When false,
	// AI requests call the upstream directly while rate limiting and
	// monitoring stay active.
	// Default: true
	QueueEnabled bool `yaml:"queue_enabled"`

	// AIPathPrefixes classifies requests as AI generation.
	// Default: ["/ai/generate"]
	AIPathPrefixes []string `yaml:"ai_path_prefixes"`
}

// Tier returns the window for the named tier, falling back to free.
func (t TierWindows) Tier(name string) WindowConfig {
	switch name {
	case "premium":
		return t.Premium
	case "paid":
		return t.Paid
	default:
		return t.Free
	}
}

// Tier returns the value for the named tier, falling back to free.
func (t TierInts) Tier(name string) int {
	switch name {
	case "premium":
		return t.Premium
	case "paid":
		return t.Paid
	default:
		return t.Free
	}
}

// Tier returns the value for the named tier, falling back to free.
func (t TierDurations) Tier(name string) time.Duration {
	switch name {
	case "premium":
		return t.Premium
	case "paid":
		return t.Paid
	default:
		return t.Free
	}
}
