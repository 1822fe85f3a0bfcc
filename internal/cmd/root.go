package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for corerun.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corerun",
		Short: "Dynamic DAG-based multi-agent orchestration engine",
		Long: `corerun plans and executes a natural-language goal as a DAG of agent
tasks. The 'query' command drafts a plan via the Planner, then runs the
resulting DAG through the wave Executor to completion, streaming progress
to the console and persisting the run's audit trail to the Record Store.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	// Add subcommands
	cmd.AddCommand(NewQueryCommand())

	return cmd
}
