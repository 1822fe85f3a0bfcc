// Package orchestrator drives one query end to end: Planner drafts a DAG,
// the wave Executor runs it to quiescence, and the Record Store persists the
// audit trail. It is the spec-true counterpart of the teacher's
// internal/executor Orchestrator, generalized from a pre-authored plan file
// to a natural-language Query and from a single ExecutePlan call to the
// plan/execute/persist pipeline the DAG scheduler needs.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/corerun/internal/models"
	"github.com/harrison/corerun/internal/planner"
	"github.com/harrison/corerun/internal/recordstore"
	"github.com/harrison/corerun/internal/statusbus"
	"github.com/harrison/corerun/internal/wave"
)

// Store is the subset of recordstore.Store the orchestrator needs, so a
// caller that doesn't want persistence can pass nil instead of standing up a
// SQLite file.
type Store interface {
	UpsertRun(ctx context.Context, r recordstore.RunRecord) error
	UpsertTaskOutcome(ctx context.Context, r recordstore.TaskOutcomeRecord) error
}

// Orchestrator wires Planner, the wave Executor, and an optional Record
// Store around one shared StatusBus.
type Orchestrator struct {
	Planner *planner.Planner
	Waves   *wave.Executor
	Status  *statusbus.Bus
	Store   Store
}

// New constructs an Orchestrator. store may be nil to disable persistence.
func New(p *planner.Planner, w *wave.Executor, status *statusbus.Bus, store Store) *Orchestrator {
	return &Orchestrator{Planner: p, Waves: w, Status: status, Store: store}
}

// Outcome is everything a caller (CLI, test, or a future API layer) needs to
// report on one Execute call.
type Outcome struct {
	RunID  string
	Status wave.Status
	Plan   *models.DAG
	Result *wave.Result
}

// Execute plans and runs query to completion (or abort). It upserts the run's
// status at each stage and, once the waves have finished, persists each
// task's final outcome. It installs its own SIGINT/SIGTERM
// handler so a run can be interrupted cleanly mid-wave, the way the
// teacher's ExecutePlan does for plan-file runs.
func (o *Orchestrator) Execute(ctx context.Context, query models.Query) (*Outcome, error) {
	if query.RunID == "" {
		query.RunID = uuid.NewString()
	}
	runID := query.RunID

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	started := time.Now()
	o.publish(models.EventRunStarted, "", map[string]any{"goal": query.Goal})
	o.upsertRun(ctx, recordstore.RunRecord{RunID: runID, Goal: query.Goal, Status: "planning", StartedAt: started})

	d, err := o.Planner.Plan(ctx, query)
	if err != nil {
		o.upsertRun(ctx, recordstore.RunRecord{RunID: runID, Goal: query.Goal, Status: "planning_failed", StartedAt: started, FinishedAt: time.Now()})
		o.publish(models.EventRunFinished, "", map[string]any{"status": "planning_failed"})
		return nil, fmt.Errorf("orchestrator: plan %s: %w", runID, err)
	}

	o.upsertRun(ctx, recordstore.RunRecord{RunID: runID, Goal: query.Goal, Status: "running", StartedAt: started})

	result, err := o.Waves.Run(ctx, d)
	if err != nil {
		o.upsertRun(ctx, recordstore.RunRecord{RunID: runID, Goal: query.Goal, Status: "failed", StartedAt: started, FinishedAt: time.Now()})
		o.publish(models.EventRunFinished, "", map[string]any{"status": "failed"})
		return nil, fmt.Errorf("orchestrator: run %s: %w", runID, err)
	}

	for _, outcome := range result.Outcomes {
		o.upsertTaskOutcome(ctx, recordstore.FromTaskOutcome(runID, outcome))
	}

	o.upsertRun(ctx, recordstore.RunRecord{RunID: runID, Goal: query.Goal, Status: string(result.Status), StartedAt: started, FinishedAt: time.Now()})
	o.publish(models.EventRunFinished, "", map[string]any{"status": result.Status})

	return &Outcome{RunID: runID, Status: result.Status, Plan: d, Result: result}, nil
}

func (o *Orchestrator) upsertRun(ctx context.Context, r recordstore.RunRecord) {
	if o.Store == nil {
		return
	}
	// Persistence is best-effort: a Record Store outage should not abort an
	// in-flight run, only lose its audit trail.
	_ = o.Store.UpsertRun(ctx, r)
}

func (o *Orchestrator) upsertTaskOutcome(ctx context.Context, r recordstore.TaskOutcomeRecord) {
	if o.Store == nil {
		return
	}
	_ = o.Store.UpsertTaskOutcome(ctx, r)
}

func (o *Orchestrator) publish(kind models.EventKind, taskID string, payload interface{}) {
	if o.Status == nil {
		return
	}
	o.Status.Publish(models.StatusEvent{Kind: kind, TaskID: taskID, Payload: payload})
}
