package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/governor/pkg/cli"
	"mercator-hq/governor/pkg/config"
)

var (
	// Global flags
	cfgFile string
	envName string
)

var rootCmd = &cobra.Command{
	Use:   "governor",
	Short: "Governor - usage control for AI generation services",
	Long: `Governor protects an AI generation backend with rate limiting, a smart
priority queue, cost estimation and usage monitoring.

Configuration is resolved from the environment profile, an optional YAML
file, .env files and GOVERNOR_* environment variables.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (YAML)")
	rootCmd.PersistentFlags().StringVarP(&envName, "env", "e", "", "environment profile (development, staging, production); defaults to $"+config.EnvProfileVar)
}

// loadOptions returns the options used for the initial load and every
// reload.
func loadOptions() config.LoadOptions {
	return config.LoadOptions{
		Path:        cfgFile,
		Environment: envName,
	}
}
