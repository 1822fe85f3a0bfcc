// Package wave executes a models.DAG one topological wave at a time: it is
// the new scheduler that actually wires dag.CalculateWaves, react.Loop,
// recovery.Controller, filelock.Registry, toolregistry.Registry and
// statusbus.Bus together.
package wave

import (
	"context"
	"fmt"

	"github.com/harrison/corerun/internal/models"
)

// HITLGate resolves a human checkpoint. The console-interactive
// implementation lives in internal/cmd (console_hitl.go); AutoApprove is for headless runs and
// tests.
type HITLGate interface {
	Request(ctx context.Context, req models.HITLRequest) (models.HITLDecision, error)
}

// AutoApprove always approves immediately, without asking anyone. It is the
// default gate when a caller doesn't configure one — useful for CI and for
// tasks that only declare HITL because of a conservative default rather than
// genuine operator risk.
type AutoApprove struct{}

func (AutoApprove) Request(context.Context, models.HITLRequest) (models.HITLDecision, error) {
	return models.HITLApprove, nil
}

// RejectAll denies every checkpoint without asking — useful in tests that
// assert the reject path.
type RejectAll struct{}

func (RejectAll) Request(context.Context, models.HITLRequest) (models.HITLDecision, error) {
	return models.HITLReject, nil
}

// FuncGate adapts a plain function to HITLGate.
type FuncGate func(ctx context.Context, req models.HITLRequest) (models.HITLDecision, error)

func (f FuncGate) Request(ctx context.Context, req models.HITLRequest) (models.HITLDecision, error) {
	return f(ctx, req)
}

// idGen produces HITLRequest ids without pulling in google/uuid for a single
// counter — Orchestrator uses uuid for RunIDs; request ids only need to be
// unique within one bus's lifetime.
type idGen struct {
	runID string
	n     int
}

func (g *idGen) next(taskID string) string {
	g.n++
	return fmt.Sprintf("%s-hitl-%d-%s", g.runID, g.n, taskID)
}
