package wave

import (
	"fmt"
	"sync"

	"github.com/harrison/corerun/internal/models"
)

// BudgetGate is consulted by Run before entering each wave, the way the
// teacher's budget package gates further orchestration once a run's Claude
// CLI spend crosses a threshold (internal/budget.UsageTracker/BurnRate).
// Repurposed here as a generic per-run budget check since ReActLoop's
// ModelClient interface carries no dollar-cost field of its own — a
// concrete cost-aware ModelClient can still implement BudgetGate against
// its own accounting.
type BudgetGate interface {
	// Allow reports whether the run may enter another wave, and if not, an
	// error explaining why (surfaced as the run's abort cause).
	Allow() (bool, error)
	// Record is called once per terminal task outcome so the gate can update
	// its running total before the next wave's Allow check.
	Record(models.TaskOutcome)
}

// NullBudget never blocks a wave. It is the default when a caller doesn't
// configure a BudgetGate.
type NullBudget struct{}

func (NullBudget) Allow() (bool, error)      { return true, nil }
func (NullBudget) Record(models.TaskOutcome) {}

// TokenBudget caps a run's cumulative estimated token usage, charging each
// terminal task outcome by the byte length of its output as a proxy for the
// token count a real cost-accounting ModelClient would report (the
// teacher's budget package reads this from Claude CLI's own usage blocks,
// which ReActLoop's ModelClient interface has no equivalent of).
type TokenBudget struct {
	Limit int

	mu    sync.Mutex
	spent int
}

func NewTokenBudget(limit int) *TokenBudget {
	return &TokenBudget{Limit: limit}
}

func (b *TokenBudget) Allow() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Limit <= 0 {
		return true, nil
	}
	if b.spent >= b.Limit {
		return false, fmt.Errorf("wave: token budget exhausted (%d/%d estimated tokens spent)", b.spent, b.Limit)
	}
	return true, nil
}

func (b *TokenBudget) Record(o models.TaskOutcome) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spent += len(o.Output)
}

// Spent returns the running total, for status reporting.
func (b *TokenBudget) Spent() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spent
}
