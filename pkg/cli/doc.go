/*
Package cli provides helpers shared by the governor command.

Output Formatting:

Commands that print structured results support text, JSON and YAML:

	format, err := cli.ParseOutputFormat(flagValue)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, summary)

Errors and Exit Codes:

Configuration problems are reported as *ConfigError and exit with status 2;
every other failure exits with status 1:

	if err := rootCmd.Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SignalContext(context.Background(), logger)
	defer stop()
*/
package cli
