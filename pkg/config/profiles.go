package config

import (
	"fmt"
	"time"

	"dario.cat/mergo"
)

// Known environment profiles.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Profile returns the override configuration for the named environment.
// Only non-zero fields of the returned Config take effect when merged.
func Profile(env string) (*Config, error) {
	switch env {
	case "", EnvDevelopment:
		return &Config{
			Environment: EnvDevelopment,
			Telemetry: TelemetryConfig{
				Logging: LoggingConfig{Level: "debug", Format: "text"},
			},
			Upstream: UpstreamConfig{
				Mode:        "echo",
				EchoLatency: 200 * time.Millisecond,
			},
			RateLimit: RateLimitConfig{
				General: WindowConfig{Max: 1000},
				Burst:   WindowConfig{Max: 100},
			},
			Monitoring: MonitoringConfig{
				DailyCostLimit:  5,
				HourlyCostLimit: 1,
			},
		}, nil

	case EnvStaging:
		return &Config{
			Environment: EnvStaging,
			Telemetry: TelemetryConfig{
				Logging: LoggingConfig{Level: "info", Format: "json"},
			},
			Queue: QueueConfig{
				MaxConcurrent: 5,
				MaxQueueSize:  200,
			},
			Monitoring: MonitoringConfig{
				DailyCostLimit:  20,
				HourlyCostLimit: 5,
			},
			Storage: StorageConfig{
				Alerts: AlertStorageConfig{Backend: "sqlite"},
			},
		}, nil

	case EnvProduction:
		return &Config{
			Environment: EnvProduction,
			Server: ServerConfig{
				ListenAddress: "0.0.0.0:8080",
			},
			Telemetry: TelemetryConfig{
				Logging: LoggingConfig{Level: "info", Format: "json"},
			},
			Upstream: UpstreamConfig{
				Mode: "http",
			},
			Queue: QueueConfig{
				MaxConcurrent: 20,
				MaxQueueSize:  2000,
			},
			Monitoring: MonitoringConfig{
				DailyCostLimit:    500,
				HourlyCostLimit:   50,
				QueueSizeWarning:  500,
				QueueSizeCritical: 1500,
			},
			Storage: StorageConfig{
				Alerts: AlertStorageConfig{Backend: "sqlite"},
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown environment profile %q", env)
	}
}

// Merge deep-merges override into a copy of base. Non-zero fields of
// override win; slices in override replace those in base.
func Merge(base, override *Config) (*Config, error) {
	merged := base.Clone()
	if override == nil {
		return merged, nil
	}
	if err := mergo.Merge(merged, override, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge configuration: %w", err)
	}
	return merged, nil
}

// ForEnvironment returns the base configuration merged with the named
// profile, with defaults applied. It does not read files or environment
// variables.
func ForEnvironment(env string) (*Config, error) {
	profile, err := Profile(env)
	if err != nil {
		return nil, err
	}
	cfg, err := Merge(Base(), profile)
	if err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.UsageControl.AIPathPrefixes = cloneStrings(c.UsageControl.AIPathPrefixes)
	out.Server.AdminUsers = cloneStrings(c.Server.AdminUsers)
	cors := &out.Server.CORS
	cors.AllowedOrigins = cloneStrings(cors.AllowedOrigins)
	cors.AllowedMethods = cloneStrings(cors.AllowedMethods)
	cors.AllowedHeaders = cloneStrings(cors.AllowedHeaders)
	cors.ExposedHeaders = cloneStrings(cors.ExposedHeaders)
	return &out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
