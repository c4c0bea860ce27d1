package main

import (
	"github.com/spf13/cobra"

	"github.com/buildtrace/buildtrace/pkg/version"
)

// newRootCmd builds the command tree. Running the root without a subcommand
// is the same as running trace.
func newRootCmd() *cobra.Command {
	opts := &traceOptions{}

	rootCmd := &cobra.Command{
		Use:   "buildtrace",
		Short: "Export GitHub Actions runs as OpenTelemetry traces",
		Long: `buildtrace reconstructs the timing of one or more GitHub Actions workflow
runs (workflows, jobs and steps) and exports it as a single trace.

Run it as the last step of a deploy workflow and pass the CI run that
preceded it with --preceding-run-ids to get one "build and deploy" trace.`,
		Version:       version.FullString(),
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd.Context(), cmd.OutOrStdout(), *opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flags.StringVar(&opts.runID, "run-id", "", "Run to trace (defaults to GITHUB_RUN_ID)")
	flags.StringVar(&opts.precedingRunIDs, "preceding-run-ids", "", "Comma separated runs that precede the traced run")
	flags.StringVar(&opts.fromFile, "from-file", "", "Comma separated stored jobs responses to replay instead of calling GitHub")
	flags.StringVar(&opts.saveDir, "save-dir", "", "Directory receiving the jobs of every fetched run, for later --from-file replay")
	flags.StringVar(&opts.exporter, "exporter", "", "Override span exporter (otlpgrpc, otlphttp, console)")
	flags.StringVar(&opts.endpoint, "endpoint", "", "Override collector endpoint")
	flags.StringVar(&opts.rootName, "root-name", "", "Override the root span name")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Print the reconstructed tree instead of exporting it")

	rootCmd.AddCommand(newTraceCmd(opts))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}
