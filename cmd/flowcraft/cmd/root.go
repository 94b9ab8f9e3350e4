// Package cmd implements the flowcraft CLI: serve, run, resume, and replay,
// using cobra (a root command with one subcommand file per verb) rather than
// the teacher's
// flag-only cmd/server/main.go.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "flowcraft",
	Short: "Flowcraft is a declarative workflow engine",
	Long:  "Flowcraft runs, resumes, and replays declarative workflow blueprints against a pluggable registry of node implementations.",
}

// Execute runs the root command; main calls this and exits non-zero on
// error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd, runCmd, resumeCmd, replayCmd)
}
