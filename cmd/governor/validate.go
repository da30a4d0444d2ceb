package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/governor/pkg/cli"
	"mercator-hq/governor/pkg/config"
	"mercator-hq/governor/pkg/telemetry/logging"
)

var validateFlags struct {
	output string
	full   bool
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Resolve the configuration exactly as "governor run" would and report
the result. Exits with status 2 when the configuration is invalid.

Examples:
  # Validate the production profile with a config file
  governor validate --config config.yaml --env production

  # Print the fully resolved configuration as YAML (secrets masked)
  governor validate --config config.yaml --full --output yaml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFlags.output, "output", "o", "text", "output format: text, json, yaml")
	validateCmd.Flags().BoolVar(&validateFlags.full, "full", false, "print the full resolved configuration")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(validateFlags.output)
	if err != nil {
		return err
	}

	cfg, err := config.Load(loadOptions())
	if err != nil {
		return cli.FromLoadError(err)
	}

	var out interface{} = summarize(cfg)
	if validateFlags.full {
		out = maskSecrets(cfg)
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), out)
}

// configSummary is the short report printed by validate.
type configSummary struct {
	Valid          bool     `json:"valid" yaml:"valid"`
	Environment    string   `json:"environment" yaml:"environment"`
	ListenAddress  string   `json:"listen_address" yaml:"listen_address"`
	RateLimit      string   `json:"rate_limit" yaml:"rate_limit"`
	QueueEnabled   bool     `json:"queue_enabled" yaml:"queue_enabled"`
	MaxConcurrent  int      `json:"max_concurrent" yaml:"max_concurrent"`
	MaxQueueSize   int      `json:"max_queue_size" yaml:"max_queue_size"`
	Upstream       string   `json:"upstream" yaml:"upstream"`
	AlertStorage   string   `json:"alert_storage" yaml:"alert_storage"`
	Metrics        string   `json:"metrics" yaml:"metrics"`
	AIPathPrefixes []string `json:"ai_path_prefixes" yaml:"ai_path_prefixes"`
}

func summarize(cfg *config.Config) configSummary {
	s := configSummary{
		Valid:          true,
		Environment:    cfg.Environment,
		ListenAddress:  cfg.Server.ListenAddress,
		RateLimit:      "disabled",
		QueueEnabled:   cfg.UsageControl.QueueEnabled,
		MaxConcurrent:  cfg.Queue.MaxConcurrent,
		MaxQueueSize:   cfg.Queue.MaxQueueSize,
		Upstream:       cfg.Upstream.Mode,
		AlertStorage:   cfg.Storage.Alerts.Backend,
		Metrics:        "disabled",
		AIPathPrefixes: cfg.UsageControl.AIPathPrefixes,
	}
	if cfg.RateLimit.Enabled {
		s.RateLimit = cfg.RateLimit.Backend
	}
	if cfg.Upstream.Mode == "http" {
		s.Upstream = "http " + cfg.Upstream.Endpoint
	}
	if cfg.Storage.Alerts.Backend == "sqlite" {
		s.AlertStorage = fmt.Sprintf("sqlite (%s, driver %s)", cfg.Storage.Alerts.Path, cfg.Storage.Alerts.Driver)
	}
	if cfg.Telemetry.Metrics.Enabled {
		s.Metrics = cfg.Telemetry.Metrics.Path
	}
	return s
}

func (s configSummary) String() string {
	var b strings.Builder
	b.WriteString("✓ Configuration valid\n")
	fmt.Fprintf(&b, "  Environment:    %s\n", s.Environment)
	fmt.Fprintf(&b, "  Listen address: %s\n", s.ListenAddress)
	fmt.Fprintf(&b, "  Rate limiting:  %s\n", s.RateLimit)
	if s.QueueEnabled {
		fmt.Fprintf(&b, "  Smart queue:    %d concurrent, %d max queued\n", s.MaxConcurrent, s.MaxQueueSize)
	} else {
		b.WriteString("  Smart queue:    bypassed\n")
	}
	fmt.Fprintf(&b, "  Upstream:       %s\n", s.Upstream)
	fmt.Fprintf(&b, "  Alert storage:  %s\n", s.AlertStorage)
	fmt.Fprintf(&b, "  Metrics:        %s\n", s.Metrics)
	fmt.Fprintf(&b, "  AI paths:       %s\n", strings.Join(s.AIPathPrefixes, ", "))
	return b.String()
}

// maskSecrets returns a copy of cfg safe to print.
func maskSecrets(cfg *config.Config) *config.Config {
	out := cfg.Clone()
	if out.Upstream.APIKey != "" {
		out.Upstream.APIKey = logging.RedactSecret(out.Upstream.APIKey)
	}
	if out.Storage.Redis.Password != "" {
		out.Storage.Redis.Password = logging.RedactSecret(out.Storage.Redis.Password)
	}
	return out
}
