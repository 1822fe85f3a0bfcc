package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/harrison/corerun/internal/claude"
	"github.com/harrison/corerun/internal/config"
	"github.com/harrison/corerun/internal/filelock"
	"github.com/harrison/corerun/internal/models"
	"github.com/harrison/corerun/internal/orchestrator"
	"github.com/harrison/corerun/internal/planner"
	"github.com/harrison/corerun/internal/rag"
	"github.com/harrison/corerun/internal/react"
	"github.com/harrison/corerun/internal/recordstore"
	"github.com/harrison/corerun/internal/recovery"
	"github.com/harrison/corerun/internal/statusbus"
	"github.com/harrison/corerun/internal/toolregistry"
	"github.com/harrison/corerun/internal/wave"
	"github.com/spf13/cobra"
)

// NewQueryCommand creates the `query` command: the DAG-from-a-goal
// entrypoint. It drafts its own plan via the Planner, rather than executing
// a hand-authored plan file, before running the resulting DAG to completion.
func NewQueryCommand() *cobra.Command {
	var (
		scopePaths      []string
		recordStorePath string
		maxConcurrency  int
		autoApprove     bool
		tokenBudget     int
	)

	cmd := &cobra.Command{
		Use:   "query <goal>",
		Short: "Plan and execute a natural-language goal as a DAG",
		Long: `query drafts a task DAG for the given goal via the Planner, then runs it
through the wave Executor to completion, streaming progress to the console
and persisting the run's audit trail to the Record Store.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			goal := strings.Join(args, " ")

			coreCfg, err := config.LoadCoreConfig(".corerun/config.yaml")
			if err != nil {
				return fmt.Errorf("query: load config: %w", err)
			}
			if recordStorePath != "" {
				coreCfg.RecordStorePath = recordStorePath
			}
			if maxConcurrency > 0 {
				coreCfg.MaxConcurrency = maxConcurrency
			}

			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("query: getwd: %w", err)
			}

			locks := filelock.NewRegistry()
			tools := toolregistry.New()
			tools.Register(toolregistry.ReadTool{})
			tools.Register(toolregistry.NewWriteTool(locks))
			tools.Register(toolregistry.ListTool{})
			tools.Register(toolregistry.TreeSitterOutlineTool{})
			tools.Register(toolregistry.NewGitCommitTool(locks, "corerun-query"))
			tools.Register(toolregistry.NewRAGQueryTool(rag.NewGrepProvider(wd)))

			bus := statusbus.New()
			observer := newConsoleStatusObserver(os.Stdout)
			stopObserver := observer.watch(bus)
			defer stopObserver()

			invoker := claude.NewInvoker()
			model := react.NewClaudeClient(invoker)

			p := planner.New(model, tools, bus, planner.Config{
				DefaultMaxRetries: coreCfg.Recovery.MaxRetries,
			})

			var hitlGate wave.HITLGate = wave.AutoApprove{}
			if !autoApprove {
				hitlGate = newConsoleHITLGate(os.Stdin, os.Stdout)
			}

			w := wave.New(model, tools, locks, bus, recovery.New(), hitlGate, wave.Config{
				TaskTimeout: coreCfg.TaskTimeout,
			})
			if tokenBudget > 0 {
				w.Budget = wave.NewTokenBudget(tokenBudget)
			}

			var storeIface orchestrator.Store
			if coreCfg.RecordStorePath != "" {
				store, err := recordstore.Open(coreCfg.RecordStorePath)
				if err != nil {
					return fmt.Errorf("query: open record store: %w", err)
				}
				defer store.Close()
				storeIface = store
			}

			o := orchestrator.New(p, w, bus, storeIface)

			out, err := o.Execute(c.Context(), models.Query{
				Goal:  goal,
				Scope: models.Scope{Paths: scopePaths},
			})
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			fmt.Fprintf(c.OutOrStdout(), "\nrun %s finished: %s\n", out.RunID, out.Status)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&scopePaths, "scope", nil, "path prefixes the run is allowed to touch (default: whole repository)")
	cmd.Flags().StringVar(&recordStorePath, "record-store", "", "override the Record Store's SQLite path")
	cmd.Flags().IntVar(&maxConcurrency, "max-concurrency", 0, "set CoreConfig.MaxConcurrency (not read by the wave executor; waves keep the budget dag.CalculateWaves computes)")
	cmd.Flags().BoolVar(&autoApprove, "yes", false, "auto-approve every HITL checkpoint instead of prompting")
	cmd.Flags().IntVar(&tokenBudget, "token-budget", 0, "abort the run once estimated output tokens exceed this (0 = unbounded)")

	return cmd
}
