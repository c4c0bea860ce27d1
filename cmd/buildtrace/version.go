package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buildtrace/buildtrace/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display detailed version information including build time, git commit, and Go version.`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Info()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "buildtrace version: %s\n", info["version"])
			fmt.Fprintf(out, "  build time: %s\n", info["buildTime"])
			fmt.Fprintf(out, "  git commit: %s\n", info["gitCommit"])
			fmt.Fprintf(out, "  go version: %s\n", info["goVersion"])
		},
	}
}
