package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvProfileVar selects the environment profile.
const EnvProfileVar = "GOVERNOR_ENV"

// LoadOptions controls how a configuration is resolved.
type LoadOptions struct {
	// Path is an optional YAML file merged over the profile.
	Path string

	// Environment selects the profile. Empty means GOVERNOR_ENV, then
	// development.
	Environment string

	// DotEnvFiles are loaded into the process environment before lookup.
	// Missing files are ignored. Default: [".env"]
	DotEnvFiles []string

	// SkipDotEnv disables .env loading.
	SkipDotEnv bool
}

// envBindings maps GOVERNOR_* variables to configuration key paths.
var envBindings = []struct {
	env  string
	path string
}{
	{"GOVERNOR_LISTEN_ADDRESS", "server.listen_address"},
	{"GOVERNOR_SHUTDOWN_TIMEOUT", "server.shutdown_timeout"},
	{"GOVERNOR_RATE_LIMIT_ENABLED", "rate_limit.enabled"},
	{"GOVERNOR_RATE_LIMIT_FAIL_OPEN", "rate_limit.fail_open"},
	{"GOVERNOR_RATE_LIMIT_BACKEND", "rate_limit.backend"},
	{"GOVERNOR_REDIS_ADDRESS", "storage.redis.address"},
	{"GOVERNOR_REDIS_PASSWORD", "storage.redis.password"},
	{"GOVERNOR_REDIS_DB", "storage.redis.db"},
	{"GOVERNOR_QUEUE_MAX_CONCURRENT", "queue.max_concurrent"},
	{"GOVERNOR_QUEUE_MAX_QUEUE_SIZE", "queue.max_queue_size"},
	{"GOVERNOR_QUEUE_REQUEST_TIMEOUT", "queue.request_timeout"},
	{"GOVERNOR_QUEUE_MAX_WAIT_TIME", "queue.max_wait_time"},
	{"GOVERNOR_QUEUE_ENABLED", "usage_control.queue_enabled"},
	{"GOVERNOR_GRACEFUL_DEGRADATION", "usage_control.graceful_degradation"},
	{"GOVERNOR_DAILY_COST_LIMIT", "monitoring.daily_cost_limit"},
	{"GOVERNOR_HOURLY_COST_LIMIT", "monitoring.hourly_cost_limit"},
	{"GOVERNOR_UPSTREAM_MODE", "upstream.mode"},
	{"GOVERNOR_UPSTREAM_ENDPOINT", "upstream.endpoint"},
	{"GOVERNOR_UPSTREAM_API_KEY", "upstream.api_key"},
	{"GOVERNOR_UPSTREAM_MODEL", "upstream.model"},
	{"GOVERNOR_UPSTREAM_TIMEOUT", "upstream.timeout"},
	{"GOVERNOR_ALERT_STORAGE_BACKEND", "storage.alerts.backend"},
	{"GOVERNOR_ALERT_STORAGE_PATH", "storage.alerts.path"},
	{"GOVERNOR_ALERT_STORAGE_DRIVER", "storage.alerts.driver"},
	{"GOVERNOR_LOG_LEVEL", "telemetry.logging.level"},
	{"GOVERNOR_LOG_FORMAT", "telemetry.logging.format"},
	{"GOVERNOR_METRICS_ENABLED", "telemetry.metrics.enabled"},
}

// Load resolves a configuration: .env files, base, environment profile,
// optional YAML file, GOVERNOR_* overrides, defaults, then validation.
func Load(opts LoadOptions) (*Config, error) {
	if !opts.SkipDotEnv {
		if err := loadDotEnv(opts.DotEnvFiles); err != nil {
			return nil, err
		}
	}

	env := opts.Environment
	if env == "" {
		env = os.Getenv(EnvProfileVar)
	}
	if env == "" {
		env = DefaultEnvironment
	}

	cfg, err := ForEnvironment(env)
	if err != nil {
		return nil, err
	}

	if opts.Path != "" {
		if err := overlayFile(cfg, opts.Path); err != nil {
			return nil, err
		}
		cfg.Environment = env
	}

	cfg, err = applyEnvOverrides(cfg)
	if err != nil {
		return nil, err
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFile resolves a configuration from a YAML file over the named
// profile without consulting the process environment.
func LoadFile(path, env string) (*Config, error) {
	cfg, err := ForEnvironment(env)
	if err != nil {
		return nil, err
	}
	if err := overlayFile(cfg, path); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadDotEnv(files []string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %q: %w", f, err)
		}
	}
	return nil
}

// overlayFile decodes the YAML file into cfg. Keys present in the file
// replace the current values, including explicit false and zero values.
func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) (*Config, error) {
	var updates []pathValue
	for _, b := range envBindings {
		if val, ok := os.LookupEnv(b.env); ok && val != "" {
			updates = append(updates, pathValue{path: b.path, value: val})
		}
	}
	if len(updates) == 0 {
		return cfg, nil
	}
	out, err := applyPaths(cfg, updates)
	if err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}
	return out, nil
}
