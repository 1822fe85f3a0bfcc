// Package react drives one agent task's inner model-tool dialog to
// termination. It generalizes the teacher's one-shot agent.Invoker /
// claude.Invoker (build prompt, invoke, parse, done) into a genuine loop:
// the model may ask for tools any number of times before giving a final
// answer, and the loop enforces the stability and iteration-limit
// termination rules the teacher's single-call design never needed.
package react

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harrison/corerun/internal/models"
	"github.com/harrison/corerun/internal/toolregistry"
)

// DefaultMaxIterations is used when a task doesn't override it.
const DefaultMaxIterations = 5

// ModelClient is the model endpoint the loop talks to. Request/response
// shapes are in internal/models so both this package and toolregistry can
// share them without an import cycle.
type ModelClient interface {
	Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error)
}

// Loop is immutable once constructed and safe to share across concurrently
// running tasks — mirroring the teacher's "build the Invoker once, reuse it"
// http.Client-style pattern (claude.Invoker's own doc comment). All per-run
// state lives in models.ReActState, created fresh by Run for each task.
type Loop struct {
	Model   ModelClient
	Tools   *toolregistry.Registry
	MaxIter int

	// FormatHint, if set, is threaded into every ChatRequest; the stability
	// check treats a final answer that doesn't conform to it as
	// Failure(NoProgress) instead of Success.
	FormatHint string

	// Kind picks the NoProgress default when neither path above produces a
	// clean answer (models.NoProgressIsSuccess, decided in DESIGN.md):
	// success for writing agents, failure for every other kind, including
	// planning and evaluator agents.
	Kind models.AgentKind
}

// New constructs a Loop. maxIter <= 0 uses DefaultMaxIterations.
func New(model ModelClient, tools *toolregistry.Registry, maxIter int) *Loop {
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	return &Loop{Model: model, Tools: tools, MaxIter: maxIter}
}

// Run drives the dialog for one task to termination, emitting an
// OnIteration callback (may be nil) after every model turn so callers can
// publish react_iter / tool_invoked / tool_result StatusEvents without this
// package knowing about StatusBus.
type Hooks struct {
	OnIteration func(state models.ReActState, resp models.ChatResponse)
	OnToolCall  func(call models.ToolCall)
	OnToolResult func(result models.ToolResult)
}

func (l *Loop) Run(ctx context.Context, taskID, systemPrompt string, toolNames []string, seed models.Message) (models.ReActState, models.TaskOutcome) {
	return l.RunWithHooks(ctx, taskID, systemPrompt, toolNames, seed, Hooks{})
}

// RunWithHooks is Run plus observability hooks; Run is the common case.
func (l *Loop) RunWithHooks(ctx context.Context, taskID, systemPrompt string, toolNames []string, seed models.Message, hooks Hooks) (models.ReActState, models.TaskOutcome) {
	state := models.ReActState{TaskID: taskID, History: []models.Message{seed}}
	started := time.Now()
	specs := l.Tools.Specs(toolNames)

	prevNoToolCalls := false

	for state.Iteration < l.MaxIter {
		select {
		case <-ctx.Done():
			state.Terminated = true
			state.Reason = models.TerminatedCancelled
			return state, outcome(taskID, models.OutcomeCancelled, "", ctx.Err(), state, started)
		default:
		}

		state.Iteration++

		resp, err := l.Model.Chat(ctx, models.ChatRequest{
			SystemPrompt: systemPrompt,
			Messages:     state.History,
			Tools:        specs,
			ResumeID:     state.SessionID,
			FormatHint:   l.FormatHint,
		})
		if err != nil {
			state.Terminated = true
			state.Reason = models.TerminatedModelError
			return state, outcome(taskID, models.OutcomeModelError, "", fmt.Errorf("model call failed on iteration %d: %w", state.Iteration, err), state, started)
		}
		if resp.SessionID != "" {
			state.SessionID = resp.SessionID
		}

		state.History = append(state.History, models.Message{Role: models.RoleAssistant, Content: resp.Content, At: time.Now()})
		if hooks.OnIteration != nil {
			hooks.OnIteration(state, resp)
		}

		if !resp.HasToolCalls() {
			if resp.Content != "" && prevNoToolCalls {
				state.Terminated = true
				state.Reason = models.TerminatedStable
				// A request with no FormatHint has nothing to conform to —
				// ModelClient implementations (including test doubles) are
				// not required to set Conforms in that case.
				if l.FormatHint == "" || resp.Conforms {
					return state, outcome(taskID, models.OutcomeSuccess, resp.Content, nil, state, started)
				}
				return state, l.noProgressOutcome(taskID, resp.Content, state, started)
			}
			prevNoToolCalls = true
			continue
		}
		prevNoToolCalls = false

		for _, call := range resp.ToolCalls {
			if hooks.OnToolCall != nil {
				hooks.OnToolCall(call)
			}
			result := l.Tools.Invoke(ctx, call)
			if hooks.OnToolResult != nil {
				hooks.OnToolResult(result)
			}

			msg := models.Message{Role: models.RoleTool, ToolName: call.Name, Content: result.Output, At: time.Now()}
			state.History = append(state.History, msg)

			if result.IsError && result.Fatal {
				state.Terminated = true
				state.Reason = models.TerminatedToolError
				return state, outcome(taskID, models.OutcomeToolError, "", fmt.Errorf("tool %s: %s", call.Name, result.Output), state, started)
			}
		}
	}

	state.Terminated = true
	state.Reason = models.TerminatedNoProgress
	return state, l.noProgressOutcome(taskID, "", state, started)
}

// noProgressOutcome applies the configurable NoProgress default
// (models.NoProgressIsSuccess) to a stability-check or iteration-limit
// termination that never produced a conformant final answer.
func (l *Loop) noProgressOutcome(taskID, content string, state models.ReActState, started time.Time) models.TaskOutcome {
	if models.NoProgressIsSuccess(l.Kind) {
		return outcome(taskID, models.OutcomeSuccess, content, nil, state, started)
	}
	var reason string
	switch state.Reason {
	case models.TerminatedStable:
		reason = fmt.Sprintf("stable answer did not conform to format_hint %q (NoProgress)", l.FormatHint)
	default:
		reason = fmt.Sprintf("exceeded %d iterations without a conformant answer (NoProgress)", l.MaxIter)
	}
	return outcome(taskID, models.OutcomeNoProgress, content, errors.New(reason), state, started)
}

func outcome(taskID string, kind models.OutcomeKind, output string, err error, state models.ReActState, started time.Time) models.TaskOutcome {
	return models.TaskOutcome{
		TaskID:     taskID,
		Kind:       kind,
		Output:     output,
		Err:        err,
		Attempt:    1,
		SessionID:  state.SessionID,
		Started:    started,
		Finished:   time.Now(),
		Transcript: state.History,
	}
}
