package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/governor/pkg/cli"
	"mercator-hq/governor/pkg/config"
	"mercator-hq/governor/pkg/security/secrets"
	"mercator-hq/governor/pkg/telemetry/logging"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	sets          []string
	watch         bool
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the governor server",
	Long: `Start the governor HTTP server with the resolved configuration.

AI generation requests are rate limited per tier and scheduled through the
smart queue; every other route is rate limited per category and tracked by
the usage monitor. SIGINT or SIGTERM stops the server gracefully: in-flight
requests finish, the queue drains and pending alerts are flushed.

Examples:
  # Start with the development profile
  governor run

  # Start with a config file and the production profile
  governor run --config /etc/governor/config.yaml --env production

  # Override individual keys
  governor run --set queue.max_concurrent=20 --set rate_limit.backend=redis

  # Validate config without starting server
  governor run --dry-run

Credential fields (upstream.api_key, storage.redis.password) may reference
secrets as ${secret:name}. They are read from GOVERNOR_SECRET_<NAME>
environment variables, then from files in secrets.dir.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().StringArrayVar(&runFlags.sets, "set", nil, "override a config key, e.g. queue.max_concurrent=20 (repeatable)")
	runCmd.Flags().BoolVar(&runFlags.watch, "watch", true, "reload the config file when it changes")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	overrides, err := parseSets(runFlags.sets)
	if err != nil {
		return err
	}

	var resolver *secrets.Resolver
	load := func() (*config.Config, error) {
		cfg, err := config.Load(loadOptions())
		if err != nil {
			return nil, err
		}
		if cfg, err = applyOverrides(cfg, overrides); err != nil {
			return nil, err
		}
		if resolver == nil {
			if resolver, err = secrets.FromConfig(cfg.Secrets); err != nil {
				return nil, cli.NewConfigError("secrets.dir", err.Error())
			}
		}
		return resolveSecrets(resolver, cfg)
	}

	cfg, err := load()
	if err != nil {
		var cfgErr *cli.ConfigError
		if errors.As(err, &cfgErr) {
			return cfgErr
		}
		return cli.FromLoadError(err)
	}

	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging, os.Stderr))
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return nil
	}

	store := config.NewStore(cfg, logger)
	watchPath := ""
	if runFlags.watch {
		watchPath = cfgFile
	}

	a, err := newApp(store, logger, watchPath, load)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	printBanner(cmd, cfg)

	ctx, stop := cli.SignalContext(context.Background(), logger)
	defer stop()

	if err := a.run(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Server stopped")
	return nil
}

type keyValue struct {
	key   string
	value string
}

func parseSets(sets []string) ([]keyValue, error) {
	out := make([]keyValue, 0, len(sets))
	for _, s := range sets {
		key, value, ok := strings.Cut(s, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, cli.NewConfigError("--set", fmt.Sprintf("expected key=value, got %q", s))
		}
		out = append(out, keyValue{key: key, value: value})
	}
	return out, nil
}

// applyOverrides applies command line overrides on top of a loaded
// configuration. The result is validated again.
func applyOverrides(cfg *config.Config, sets []keyValue) (*config.Config, error) {
	var err error
	for _, kv := range sets {
		cfg, err = config.SetPath(cfg, kv.key, kv.value)
		if err != nil {
			return nil, fmt.Errorf("--set %s: %w", kv.key, err)
		}
	}
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// resolveSecrets expands ${secret:name} references in credential fields.
// Cached values are purged first so a reload picks up rotated secrets.
func resolveSecrets(resolver *secrets.Resolver, cfg *config.Config) (*config.Config, error) {
	resolver.Purge()
	out, err := resolver.ResolveConfig(context.Background(), cfg)
	if err != nil {
		return nil, cli.NewConfigError("secrets", err.Error())
	}
	return out, nil
}

func printBanner(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Governor v%s (%s profile)\n", Version, cfg.Environment)
	if cfgFile != "" {
		fmt.Fprintf(out, "Loaded configuration from: %s\n", cfgFile)
	}
	fmt.Fprintf(out, "✓ Listening on %s\n", cfg.Server.ListenAddress)
	fmt.Fprintf(out, "✓ Health endpoint: /health\n")
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Fprintf(out, "✓ Metrics endpoint: %s\n", cfg.Telemetry.Metrics.Path)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")
}
