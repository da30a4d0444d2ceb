package config

import "time"

// Default values for configuration fields.
const (
	// Environment defaults
	DefaultEnvironment = "development"

	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB
	DefaultMaxBodyBytes    = 1048576 // 1MB
	DefaultCORSMaxAge      = time.Hour

	// Rate limit defaults
	DefaultRateLimitBackend       = "memory"
	DefaultRateLimitSweepInterval = 5 * time.Minute

	// Queue defaults
	DefaultMaxConcurrent         = 10
	DefaultMaxQueueSize          = 1000
	DefaultRequestTimeout        = 30 * time.Second
	DefaultRetryAttempts         = 3
	DefaultRetryDelay            = time.Second
	DefaultCleanupInterval       = 60 * time.Second
	DefaultCompletedTTL          = time.Hour
	DefaultMaxWaitTime           = 30 * time.Second
	DefaultPollInterval          = 500 * time.Millisecond
	DefaultProcessingTime        = 5 * time.Second
	DefaultFreeQueueLimit        = 5
	DefaultPaidQueueLimit        = 20
	DefaultPremiumQueueLimit     = 50
	DefaultFreeQueueTimeout      = 5 * time.Minute
	DefaultPaidQueueTimeout      = 10 * time.Minute
	DefaultPremiumQueueTimeout   = 15 * time.Minute
	DefaultAlertBuffer           = 256
	DefaultRetentionDays         = 30
	DefaultRetentionSchedule     = "@daily"
	DefaultEvaluationSchedule    = "@every 1m"
	DefaultDailyCostLimit        = 50.0
	DefaultHourlyCostLimit       = 10.0
	DefaultPerUserDailyLimit     = 100
	DefaultPerUserHourlyLimit    = 20
	DefaultSuspiciousPerMinute   = 10
	DefaultQueueSizeWarning      = 100
	DefaultQueueSizeCritical     = 500
	DefaultErrorRateWarning      = 0.1
	DefaultCostsInputPer1K       = 0.00125
	DefaultCostsOutputPer1K      = 0.00375
	DefaultCostsInputRatio       = 0.7
	DefaultCostsCharsPerToken    = 4
	DefaultUpstreamMode          = "echo"
	DefaultUpstreamTimeout       = 60 * time.Second
	DefaultAlertStorageBackend   = "memory"
	DefaultAlertStoragePath      = "governor-alerts.db"
	DefaultAlertStorageDriver    = "sqlite"
	DefaultAlertStorageMaxAlerts = 1000
	DefaultAlertRetention        = 30 * 24 * time.Hour
	DefaultRedisKeyPrefix        = "governor:rl:"

	// Telemetry defaults
	DefaultLoggingLevel   = "info"
	DefaultLoggingFormat  = "json"
	DefaultPrometheusPath = "/metrics"
	DefaultTracingService = "governor"
	DefaultTracingSampler = "always"
	DefaultTracingTimeout = 10 * time.Second
	DefaultHealthTimeout  = 2 * time.Second

	// Usage control defaults
	DefaultAIPathPrefix = "/ai/generate"

	// Secrets defaults
	DefaultSecretsEnvPrefix = "GOVERNOR_SECRET_"
	DefaultSecretsCacheTTL  = 5 * time.Minute
)

// Default rate limit windows.
var (
	DefaultAuthWindow = WindowConfig{
		Window:         15 * time.Minute,
		Max:            5,
		Message:        "Too many authentication attempts, please try again later.",
		SkipSuccessful: true,
	}
	DefaultGeneralWindow = WindowConfig{
		Window:  15 * time.Minute,
		Max:     500,
		Message: "Too many requests, please try again later.",
	}
	DefaultUploadWindow = WindowConfig{
		Window:   time.Hour,
		Max:      20,
		DailyMax: 100,
		Message:  "Upload limit reached, please try again later.",
	}
	DefaultAdminWindow = WindowConfig{
		Window:  time.Hour,
		Max:     50,
		Message: "Too many admin requests, please try again later.",
	}
	DefaultBurstWindow = WindowConfig{
		Window:  time.Minute,
		Max:     30,
		Message: "Too many requests in a short period, please slow down.",
	}
	DefaultAIWindows = TierWindows{
		Free: WindowConfig{
			Window:   time.Hour,
			Max:      10,
			DailyMax: 25,
			Message:  "AI generation limit reached for the free tier. Upgrade for higher limits.",
		},
		Paid: WindowConfig{
			Window:   time.Hour,
			Max:      100,
			DailyMax: 500,
			Message:  "AI generation limit reached for the paid tier, please try again later.",
		},
		Premium: WindowConfig{
			Window:   time.Hour,
			Max:      300,
			DailyMax: 2000,
			Message:  "AI generation limit reached, please try again later.",
		},
	}
)

// Base returns the base configuration shared by every environment profile.
// Boolean switches are set here since zero values cannot be told apart from
// unset ones once merged.
func Base() *Config {
	cfg := &Config{
		Environment: DefaultEnvironment,
		Server: ServerConfig{
			CORS: CORSConfig{Enabled: true},
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			FailOpen: true,
			Auth:     DefaultAuthWindow,
			General:  DefaultGeneralWindow,
			Upload:   DefaultUploadWindow,
			Admin:    DefaultAdminWindow,
			Burst:    DefaultBurstWindow,
			AI:       DefaultAIWindows,
		},
		Queue: QueueConfig{
			RetryAttempts: DefaultRetryAttempts,
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: true},
		},
		UsageControl: UsageControlConfig{
			GracefulDegradation: true,
			QueueEnabled:        true,
			AIPathPrefixes:      []string{DefaultAIPathPrefix},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = DefaultEnvironment
	}

	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if len(cfg.Server.CORS.AllowedOrigins) == 0 {
		cfg.Server.CORS.AllowedOrigins = []string{"*"}
	}
	if len(cfg.Server.CORS.AllowedMethods) == 0 {
		cfg.Server.CORS.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.Server.CORS.AllowedHeaders) == 0 {
		cfg.Server.CORS.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID", "X-User-ID", "X-User-Tier"}
	}
	if len(cfg.Server.CORS.ExposedHeaders) == 0 {
		cfg.Server.CORS.ExposedHeaders = []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"}
	}
	if cfg.Server.CORS.MaxAge == 0 {
		cfg.Server.CORS.MaxAge = DefaultCORSMaxAge
	}

	applyRateLimitDefaults(&cfg.RateLimit)
	applyQueueDefaults(&cfg.Queue)
	applyMonitoringDefaults(&cfg.Monitoring)

	// Costs defaults
	if cfg.Costs.InputPer1K == 0 {
		cfg.Costs.InputPer1K = DefaultCostsInputPer1K
	}
	if cfg.Costs.OutputPer1K == 0 {
		cfg.Costs.OutputPer1K = DefaultCostsOutputPer1K
	}
	if cfg.Costs.InputRatio == 0 {
		cfg.Costs.InputRatio = DefaultCostsInputRatio
	}
	if cfg.Costs.CharsPerToken == 0 {
		cfg.Costs.CharsPerToken = DefaultCostsCharsPerToken
	}

	// Upstream defaults
	if cfg.Upstream.Mode == "" {
		cfg.Upstream.Mode = DefaultUpstreamMode
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = DefaultUpstreamTimeout
	}

	// Storage defaults
	if cfg.Storage.Alerts.Backend == "" {
		cfg.Storage.Alerts.Backend = DefaultAlertStorageBackend
	}
	if cfg.Storage.Alerts.Path == "" {
		cfg.Storage.Alerts.Path = DefaultAlertStoragePath
	}
	if cfg.Storage.Alerts.Driver == "" {
		cfg.Storage.Alerts.Driver = DefaultAlertStorageDriver
	}
	if cfg.Storage.Alerts.MaxAlerts == 0 {
		cfg.Storage.Alerts.MaxAlerts = DefaultAlertStorageMaxAlerts
	}
	if cfg.Storage.Alerts.Retention == 0 {
		cfg.Storage.Alerts.Retention = DefaultAlertRetention
	}
	if cfg.Storage.Redis.KeyPrefix == "" {
		cfg.Storage.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingService
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
	if cfg.Telemetry.Health.CheckTimeout == 0 {
		cfg.Telemetry.Health.CheckTimeout = DefaultHealthTimeout
	}

	if len(cfg.UsageControl.AIPathPrefixes) == 0 {
		cfg.UsageControl.AIPathPrefixes = []string{DefaultAIPathPrefix}
	}

	if cfg.Secrets.EnvPrefix == "" {
		cfg.Secrets.EnvPrefix = DefaultSecretsEnvPrefix
	}
	if cfg.Secrets.CacheTTL == 0 {
		cfg.Secrets.CacheTTL = DefaultSecretsCacheTTL
	}
}

func applyRateLimitDefaults(cfg *RateLimitConfig) {
	if cfg.Backend == "" {
		cfg.Backend = DefaultRateLimitBackend
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultRateLimitSweepInterval
	}
	applyWindowDefaults(&cfg.Auth, DefaultAuthWindow)
	applyWindowDefaults(&cfg.General, DefaultGeneralWindow)
	applyWindowDefaults(&cfg.Upload, DefaultUploadWindow)
	applyWindowDefaults(&cfg.Admin, DefaultAdminWindow)
	applyWindowDefaults(&cfg.Burst, DefaultBurstWindow)
	applyWindowDefaults(&cfg.AI.Free, DefaultAIWindows.Free)
	applyWindowDefaults(&cfg.AI.Paid, DefaultAIWindows.Paid)
	applyWindowDefaults(&cfg.AI.Premium, DefaultAIWindows.Premium)
}

// applyWindowDefaults fills zero fields of w from def. DailyMax and
// SkipSuccessful are left alone because zero is meaningful for both.
func applyWindowDefaults(w *WindowConfig, def WindowConfig) {
	if w.Window == 0 {
		w.Window = def.Window
	}
	if w.Max == 0 {
		w.Max = def.Max
	}
	if w.Message == "" {
		w.Message = def.Message
	}
}

func applyQueueDefaults(cfg *QueueConfig) {
	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.MaxQueueSize == 0 {
		cfg.MaxQueueSize = DefaultMaxQueueSize
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.CompletedTTL == 0 {
		cfg.CompletedTTL = DefaultCompletedTTL
	}
	if cfg.MaxWaitTime == 0 {
		cfg.MaxWaitTime = DefaultMaxWaitTime
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.DefaultProcessingTime == 0 {
		cfg.DefaultProcessingTime = DefaultProcessingTime
	}
	if cfg.UserQueueLimits.Free == 0 {
		cfg.UserQueueLimits.Free = DefaultFreeQueueLimit
	}
	if cfg.UserQueueLimits.Paid == 0 {
		cfg.UserQueueLimits.Paid = DefaultPaidQueueLimit
	}
	if cfg.UserQueueLimits.Premium == 0 {
		cfg.UserQueueLimits.Premium = DefaultPremiumQueueLimit
	}
	if cfg.QueueTimeouts.Free == 0 {
		cfg.QueueTimeouts.Free = DefaultFreeQueueTimeout
	}
	if cfg.QueueTimeouts.Paid == 0 {
		cfg.QueueTimeouts.Paid = DefaultPaidQueueTimeout
	}
	if cfg.QueueTimeouts.Premium == 0 {
		cfg.QueueTimeouts.Premium = DefaultPremiumQueueTimeout
	}
}

func applyMonitoringDefaults(cfg *MonitoringConfig) {
	if cfg.DailyCostLimit == 0 {
		cfg.DailyCostLimit = DefaultDailyCostLimit
	}
	if cfg.HourlyCostLimit == 0 {
		cfg.HourlyCostLimit = DefaultHourlyCostLimit
	}
	if cfg.PerUserDailyLimit == 0 {
		cfg.PerUserDailyLimit = DefaultPerUserDailyLimit
	}
	if cfg.PerUserHourlyLimit == 0 {
		cfg.PerUserHourlyLimit = DefaultPerUserHourlyLimit
	}
	if cfg.SuspiciousPerMinute == 0 {
		cfg.SuspiciousPerMinute = DefaultSuspiciousPerMinute
	}
	if cfg.QueueSizeWarning == 0 {
		cfg.QueueSizeWarning = DefaultQueueSizeWarning
	}
	if cfg.QueueSizeCritical == 0 {
		cfg.QueueSizeCritical = DefaultQueueSizeCritical
	}
	if cfg.ErrorRateWarning == 0 {
		cfg.ErrorRateWarning = DefaultErrorRateWarning
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	if cfg.RetentionSchedule == "" {
		cfg.RetentionSchedule = DefaultRetentionSchedule
	}
	if cfg.EvaluationSchedule == "" {
		cfg.EvaluationSchedule = DefaultEvaluationSchedule
	}
	if cfg.AlertBuffer == 0 {
		cfg.AlertBuffer = DefaultAlertBuffer
	}
}
