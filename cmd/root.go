// Package cmd wires the cobra CLI (spec.md §6) onto the coordinator,
// config, account, and database packages. It replaces the teacher's
// toml-Blogs-file model with the spec's one-shot-per-invocation model:
// selectors and lifecycle flags live on the `backup` subcommand itself
// rather than in a persisted multi-blog config file, matching the
// original's argparse-driven CLI more closely than the teacher's daemon
// config did.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// exitCode is set by subcommands that need a specific process exit code
// beyond cobra's own success/failure split (spec.md §6's 0/1/3/4/5 table).
var exitCode int

var rootCmd = &cobra.Command{
	Use:   "tumblr-backup",
	Short: "Archives a Tumblr blog's posts and media to disk",
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if exitCode == 0 {
			exitCode = 1
		}
		return exitCode
	}
	return exitCode
}
