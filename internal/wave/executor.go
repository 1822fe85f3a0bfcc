package wave

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harrison/corerun/internal/dag"
	"github.com/harrison/corerun/internal/filelock"
	"github.com/harrison/corerun/internal/models"
	"github.com/harrison/corerun/internal/react"
	"github.com/harrison/corerun/internal/recovery"
	"github.com/harrison/corerun/internal/statusbus"
	"github.com/harrison/corerun/internal/toolregistry"
)

// DefaultTaskTimeout bounds a single task attempt (all of its ReAct
// iterations combined), the way the teacher's claude.Invoker calls carry a
// per-call deadline.
const DefaultTaskTimeout = 5 * time.Minute

// Config tunes an Executor. Zero values fall back to sane defaults via
// withDefaults.
type Config struct {
	TaskTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = DefaultTaskTimeout
	}
	return c
}

// Status summarizes how a Run ended.
type Status string

const (
	StatusEmpty              Status = "empty"                // DAG had no tasks
	StatusCompleted          Status = "completed"             // completion policy satisfied, no skips
	StatusCompletedWithSkips Status = "completed_with_skips"  // completion policy satisfied, but some tasks were skipped
	StatusIncomplete         Status = "incomplete"             // ran to quiescence without satisfying the completion policy
	StatusAborted            Status = "aborted"                // a PolicyAbort or cancellation stopped the run early
)

// Result is everything Orchestrator needs to report a run and persist its
// audit trail.
type Result struct {
	Status   Status
	Outcomes map[string]models.TaskOutcome
	Cause    error
}

// Executor runs a models.DAG wave by wave, consulting RecoveryController on
// every non-success TaskOutcome and HITLGate on every HITLBlocking
// checkpoint. It is the spec-true analogue of the teacher's WaveExecutor,
// generalized from a fixed plan-file Wave/TaskResult pair to the DAG
// scheduler's open-ended retry/switch/skip/escalate/abort action space.
type Executor struct {
	Model    react.ModelClient
	Tools    *toolregistry.Registry
	Locks    *filelock.Registry
	Status   *statusbus.Bus
	Recovery *recovery.Controller
	HITL     HITLGate
	Budget   BudgetGate
	Config   Config
}

// New constructs an Executor. hitl may be nil, in which case AutoApprove is
// used — a headless run never blocks on a human who isn't there to answer.
// Budget defaults to NullBudget; set Executor.Budget directly after
// construction to cap a run's spend.
func New(model react.ModelClient, tools *toolregistry.Registry, locks *filelock.Registry, status *statusbus.Bus, rc *recovery.Controller, hitl HITLGate, cfg Config) *Executor {
	if hitl == nil {
		hitl = AutoApprove{}
	}
	if rc == nil {
		rc = recovery.New()
	}
	return &Executor{Model: model, Tools: tools, Locks: locks, Status: status, Recovery: rc, HITL: hitl, Budget: NullBudget{}, Config: cfg.withDefaults()}
}

// taskState is the mutable per-task bookkeeping the run loop threads through
// waves: a task can be retried, switched to a fallback agent, or skipped
// without leaving its originating wave.
type taskState struct {
	task      *models.Task
	attempt   int
	terminal  bool
	skipped   bool
	outcome   models.TaskOutcome
}

// Run partitions d into waves and executes it to quiescence. It never
// mutates the caller's *models.Task values directly — SwitchAgent rewrites a
// private copy held in taskState.
func (e *Executor) Run(ctx context.Context, d *models.DAG) (*Result, error) {
	taskSlice := make([]models.Task, 0, len(d.Tasks))
	for _, t := range d.Tasks {
		taskSlice = append(taskSlice, *t)
	}

	waves, err := dag.CalculateWaves(taskSlice)
	if err != nil {
		return nil, fmt.Errorf("wave: partition: %w", err)
	}
	d.Waves = waves

	if len(waves) == 0 {
		return &Result{Status: StatusEmpty, Outcomes: map[string]models.TaskOutcome{}}, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	states := make(map[string]*taskState, len(d.Tasks))
	for id, t := range d.Tasks {
		states[id] = &taskState{task: t}
	}

	ids := &idGen{runID: d.RunID}
	policy := d.Policy
	if policy == "" {
		policy = models.TerminalContinue
	}

	var abortCause error

waveLoop:
	for _, wv := range waves {
		if runCtx.Err() != nil {
			abortCause = runCtx.Err()
			break waveLoop
		}

		if ok, err := e.budgetGate().Allow(); !ok {
			abortCause = err
			break waveLoop
		}

		e.publish(models.EventWaveStarted, wv.Name, "", nil)

		runnable := e.resolveWave(d, wv, states)
		waveFailed := e.runWave(runCtx, cancel, d.RunID, wv, runnable, states, ids, &abortCause)

		e.publish(models.EventWaveCompleted, wv.Name, "", map[string]any{"failed": waveFailed})

		if abortCause != nil {
			break waveLoop
		}
		if waveFailed && policy == models.TerminalHaltWave {
			break waveLoop
		}
		if waveFailed && policy == models.TerminalHaltAll {
			cancel()
			abortCause = fmt.Errorf("wave: %s failed under halt_all policy", wv.Name)
			break waveLoop
		}
	}

	outcomes := make(map[string]models.TaskOutcome, len(states))
	for id, st := range states {
		if st.terminal {
			outcomes[id] = st.outcome
		}
	}

	return &Result{Status: e.classify(d, states, abortCause), Outcomes: outcomes, Cause: abortCause}, nil
}

// resolveWave decides, before launching any goroutines, which of this wave's
// tasks actually need to run: a task whose dependency failed or was skipped
// is itself marked skipped (fail-propagation) rather than attempted, since
// its prerequisite — data or ordering — was never satisfied.
func (e *Executor) resolveWave(d *models.DAG, wv models.Wave, states map[string]*taskState) []string {
	var runnable []string
	for _, id := range wv.TaskNumbers {
		st := states[id]
		if st.terminal {
			continue
		}
		if blocker, ok := e.blockedBy(st.task, states); ok {
			st.terminal = true
			st.skipped = true
			now := time.Now()
			st.outcome = models.TaskOutcome{TaskID: id, Kind: models.OutcomeSkipped, Err: fmt.Errorf("skipped: dependency %s did not succeed", blocker), Started: now, Finished: now}
			e.publish(models.EventTaskOutcome, wv.Name, id, map[string]any{"skipped": true, "blocker": blocker})
			continue
		}
		runnable = append(runnable, id)
	}
	return runnable
}

func (e *Executor) blockedBy(task *models.Task, states map[string]*taskState) (string, bool) {
	for _, dep := range task.DependsOn {
		depSt, ok := states[dep]
		if !ok || !depSt.terminal {
			continue
		}
		if depSt.skipped || !depSt.outcome.Success() {
			return dep, true
		}
	}
	return "", false
}

// runWave launches every runnable task concurrently (bounded by the wave's
// MaxConcurrency, mirroring the teacher's semaphore-plus-WaitGroup pattern),
// consults RecoveryController on each non-success outcome, and loops tasks
// that were retried or switched back through the same wave until every task
// reaches a terminal state or the run aborts. It reports whether any task in
// the wave ended non-success.
func (e *Executor) runWave(ctx context.Context, cancel context.CancelFunc, runID string, wv models.Wave, runnable []string, states map[string]*taskState, ids *idGen, abortCause *error) bool {
	pending := runnable
	anyFailure := false

	for len(pending) > 0 {
		if ctx.Err() != nil {
			*abortCause = ctx.Err()
			return true
		}

		maxConcurrency := wv.MaxConcurrency
		if maxConcurrency <= 0 || maxConcurrency > len(pending) {
			maxConcurrency = len(pending)
		}
		if maxConcurrency == 0 {
			maxConcurrency = 1
		}

		semaphore := make(chan struct{}, maxConcurrency)
		type runResult struct {
			id      string
			outcome models.TaskOutcome
		}
		resultsCh := make(chan runResult, len(pending))
		var wg sync.WaitGroup

		for _, id := range pending {
			if ctx.Err() != nil {
				break
			}
			acquired := false
			select {
			case semaphore <- struct{}{}:
				acquired = true
			case <-ctx.Done():
			}
			if !acquired {
				break
			}
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				defer func() { <-semaphore }()
				st := states[id]
				st.attempt++
				outcome := e.runTask(ctx, runID, wv.Name, st)
				select {
				case resultsCh <- runResult{id: id, outcome: outcome}:
				case <-ctx.Done():
				}
			}(id)
		}

		go func() {
			wg.Wait()
			close(resultsCh)
		}()

		var retryNext []string
		for r := range resultsCh {
			st := states[r.id]
			st.outcome = r.outcome
			e.budgetGate().Record(r.outcome)
			e.publish(models.EventTaskOutcome, wv.Name, r.id, map[string]any{"kind": r.outcome.Kind, "attempt": st.attempt})

			if r.outcome.Success() {
				st.terminal = true
				continue
			}

			anyFailure = true
			decision := e.Recovery.Decide(st.task, r.outcome, st.attempt)
			e.publish(models.EventRecoveryAction, wv.Name, r.id, map[string]any{"policy": decision.Policy, "reason": decision.Reason})

			switch decision.Policy {
			case models.PolicyRetry:
				if err := recovery.Sleep(ctx, decision.Backoff); err != nil {
					st.terminal = true
					st.outcome.Err = err
					continue
				}
				retryNext = append(retryNext, r.id)
			case models.PolicySwitchAgent:
				switched := *st.task
				switched.Kind = decision.FallbackAgent
				st.task = &switched
				retryNext = append(retryNext, r.id)
			case models.PolicySkip:
				st.terminal = true
				st.skipped = true
			case models.PolicyEscalateHuman:
				req := models.HITLRequest{ID: ids.next(r.id), TaskID: r.id, WaveName: wv.Name, Mode: models.HITLAsync, Reason: decision.Reason, CreatedAt: time.Now()}
				e.publish(models.EventHITLRequested, wv.Name, r.id, req)
				resolution, err := e.HITL.Request(ctx, req)
				e.publish(models.EventHITLResolved, wv.Name, r.id, map[string]any{"decision": resolution, "err": err})
				if err == nil && resolution == models.HITLApprove {
					retryNext = append(retryNext, r.id)
				} else {
					st.terminal = true
					st.skipped = true
				}
			case models.PolicyAbort:
				st.terminal = true
				*abortCause = fmt.Errorf("task %s: %w", r.id, r.outcome.Err)
				cancel()
			default:
				st.terminal = true
			}
		}

		if ctx.Err() != nil && *abortCause == nil {
			*abortCause = ctx.Err()
		}
		if *abortCause != nil {
			return true
		}

		sort.Strings(retryNext)
		pending = retryNext
	}

	return anyFailure
}

// runTask drives one task's ReAct loop (after its HITLBlocking gate, if any)
// and returns the resulting TaskOutcome. Locking is handled inside the
// filesystem.write tool itself via toolregistry.WithActor; runTask only
// needs to attach the actor identity to the context.
func (e *Executor) runTask(ctx context.Context, runID, waveName string, st *taskState) models.TaskOutcome {
	task := st.task
	taskCtx, cancel := context.WithTimeout(ctx, e.taskTimeout())
	defer cancel()
	taskCtx = toolregistry.WithActor(taskCtx, fmt.Sprintf("task:%s", task.ID()))

	e.publish(models.EventTaskStarted, waveName, task.ID(), map[string]any{"attempt": st.attempt, "kind": task.Kind})

	loop := react.New(e.Model, e.Tools, task.MaxIterations)
	loop.FormatHint = task.FormatHint
	loop.Kind = task.Kind
	seed := models.Message{Role: models.RoleUser, Content: e.renderPrompt(task), At: time.Now()}

	hooks := react.Hooks{
		OnIteration: func(state models.ReActState, resp models.ChatResponse) {
			e.publish(models.EventReactIter, waveName, task.ID(), map[string]any{"iteration": state.Iteration})
		},
		OnToolCall: func(call models.ToolCall) {
			e.publish(models.EventToolInvoked, waveName, task.ID(), map[string]any{"tool": call.Name})
		},
		OnToolResult: func(result models.ToolResult) {
			e.publish(models.EventToolResult, waveName, task.ID(), map[string]any{"is_error": result.IsError})
		},
	}

	_, outcome := loop.RunWithHooks(taskCtx, task.ID(), systemPromptFor(task.Kind), task.RequiredTools, seed, hooks)
	outcome.Attempt = st.attempt

	if outcome.Success() && task.HITL != nil && task.HITL.Mode == models.HITLBlocking {
		req := models.HITLRequest{ID: fmt.Sprintf("%s-gate-%s", runID, task.ID()), TaskID: task.ID(), WaveName: waveName, Mode: models.HITLBlocking, Reason: task.HITL.Reason, CreatedAt: time.Now()}
		e.publish(models.EventHITLRequested, waveName, task.ID(), req)
		decision, err := e.HITL.Request(taskCtx, req)
		e.publish(models.EventHITLResolved, waveName, task.ID(), map[string]any{"decision": decision, "err": err})
		if err != nil || decision != models.HITLApprove {
			outcome.Kind = models.OutcomeEvaluatorReject
			outcome.Err = fmt.Errorf("HITL checkpoint rejected: %s", task.HITL.Reason)
		}
	}

	return outcome
}

func (e *Executor) budgetGate() BudgetGate {
	if e.Budget == nil {
		return NullBudget{}
	}
	return e.Budget
}

func (e *Executor) taskTimeout() time.Duration {
	if e.Config.TaskTimeout <= 0 {
		return DefaultTaskTimeout
	}
	return e.Config.TaskTimeout
}

// renderPrompt returns the task's own prompt. The output of EdgeDataFlow
// predecessors is not added to it.
func (e *Executor) renderPrompt(task *models.Task) string {
	return task.Prompt
}

func systemPromptFor(kind models.AgentKind) string {
	switch kind {
	case models.AgentKindPlanning:
		return "You are a planning agent. Decompose the goal, do not modify files."
	case models.AgentKindWriting:
		return "You are a writing agent producing user-facing prose or documentation."
	case models.AgentKindEvaluator:
		return "You are an evaluator agent. Judge the cited task's output against its rubric and state pass or fail plainly."
	default:
		return "You are a coding agent. Use the available tools to read and modify the repository."
	}
}

func (e *Executor) classify(d *models.DAG, states map[string]*taskState, abortCause error) Status {
	if abortCause != nil {
		return StatusAborted
	}
	var anySkip, anySuccess, allSuccess bool
	allSuccess = true
	for _, st := range states {
		if st.skipped {
			anySkip = true
			allSuccess = false
			continue
		}
		if st.outcome.Success() {
			anySuccess = true
		} else {
			allSuccess = false
		}
	}

	policy := d.Completion
	if policy == "" {
		policy = models.AnySuccess
	}

	satisfied := anySuccess
	if policy == models.AllSuccess {
		satisfied = allSuccess
	}

	switch {
	case satisfied && anySkip:
		return StatusCompletedWithSkips
	case satisfied:
		return StatusCompleted
	default:
		return StatusIncomplete
	}
}

func (e *Executor) publish(kind models.EventKind, waveName, taskID string, payload interface{}) {
	if e.Status == nil {
		return
	}
	e.Status.Publish(models.StatusEvent{Kind: kind, WaveName: waveName, TaskID: taskID, Payload: payload})
}
