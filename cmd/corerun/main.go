// Package main provides the CLI entry point for corerun.
//
// The root command's only subcommand is `query`, the DAG-from-a-goal
// entrypoint: Planner drafts a plan, the wave Executor runs it, and the
// Record Store persists the audit trail — wiring performed in
// internal/cmd/query.go.
package main

import (
	"fmt"
	"os"

	"github.com/harrison/corerun/internal/cmd"
)

// Version is the current version of the corerun application
const Version = "1.0.0"

func main() {
	rootCmd := cmd.NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
