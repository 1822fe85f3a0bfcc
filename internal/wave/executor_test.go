package wave

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harrison/corerun/internal/filelock"
	"github.com/harrison/corerun/internal/models"
	"github.com/harrison/corerun/internal/recovery"
	"github.com/harrison/corerun/internal/statusbus"
	"github.com/harrison/corerun/internal/toolregistry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constantModel always answers with the same no-tool-calls content, so every
// task that offers it terminates successfully after the loop's two
// consecutive stable turns — deterministic regardless of goroutine
// interleaving since the stub carries no shared mutable state.
type constantModel struct{ content string }

func (m constantModel) Chat(context.Context, models.ChatRequest) (models.ChatResponse, error) {
	return models.ChatResponse{Content: m.content}, nil
}

// erroringModel always fails the call, driving every task offered it to
// OutcomeModelError.
type erroringModel struct{ err error }

func (m erroringModel) Chat(context.Context, models.ChatRequest) (models.ChatResponse, error) {
	return models.ChatResponse{}, m.err
}

func newExecutor(model interface {
	Chat(context.Context, models.ChatRequest) (models.ChatResponse, error)
}, gate HITLGate) *Executor {
	return New(model, toolregistry.New(), filelock.NewRegistry(), statusbus.New(), recovery.New(), gate, Config{TaskTimeout: 2 * time.Second})
}

func TestRun_EmptyDAGReportsEmpty(t *testing.T) {
	e := newExecutor(constantModel{content: "done"}, nil)
	d := &models.DAG{RunID: "r1", Tasks: map[string]*models.Task{}}

	res, err := e.Run(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, StatusEmpty, res.Status)
}

func TestRun_TwoTaskChainSucceeds(t *testing.T) {
	e := newExecutor(constantModel{content: "done"}, nil)
	d := &models.DAG{
		RunID: "r2",
		Tasks: map[string]*models.Task{
			"a": {Number: "a", Name: "a", Prompt: "do a", Kind: models.AgentKindCoding},
			"b": {Number: "b", Name: "b", Prompt: "do b", Kind: models.AgentKindCoding, DependsOn: []string{"a"}},
		},
	}

	res, err := e.Run(context.Background(), d)
	require.NoError(t, err)
	require.NoError(t, res.Cause)
	assert.Equal(t, StatusCompleted, res.Status)
	require.Contains(t, res.Outcomes, "a")
	require.Contains(t, res.Outcomes, "b")
	assert.True(t, res.Outcomes["a"].Success())
	assert.True(t, res.Outcomes["b"].Success())
}

func TestRun_FailedDependencySkipsDescendant(t *testing.T) {
	e := newExecutor(erroringModel{err: errors.New("unclassified explosion")}, RejectAll{})
	d := &models.DAG{
		RunID: "r3",
		Tasks: map[string]*models.Task{
			"a": {
				Number: "a", Name: "a", Prompt: "do a", Kind: models.AgentKindCoding,
				Recovery: &models.RecoveryPolicy{Default: models.PolicySkip},
			},
			"b": {Number: "b", Name: "b", Prompt: "do b", Kind: models.AgentKindCoding, DependsOn: []string{"a"}},
		},
	}

	res, err := e.Run(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, StatusIncomplete, res.Status)
	require.Contains(t, res.Outcomes, "a")
	require.Contains(t, res.Outcomes, "b")
	assert.False(t, res.Outcomes["a"].Success())
	assert.False(t, res.Outcomes["b"].Success())
	assert.Equal(t, models.OutcomeSkipped, res.Outcomes["b"].Kind)
	assert.ErrorContains(t, res.Outcomes["b"].Err, "dependency a did not succeed")
}

func TestRun_AbortPolicyHaltsRun(t *testing.T) {
	e := newExecutor(erroringModel{err: errors.New("unclassified explosion")}, nil)
	d := &models.DAG{
		RunID: "r4",
		Tasks: map[string]*models.Task{
			"a": {
				Number: "a", Name: "a", Prompt: "do a", Kind: models.AgentKindCoding,
				Recovery: &models.RecoveryPolicy{Default: models.PolicyAbort},
			},
			"b": {Number: "b", Name: "b", Prompt: "do b", Kind: models.AgentKindCoding},
		},
	}

	res, err := e.Run(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, StatusAborted, res.Status)
	require.Error(t, res.Cause)
}

func TestRun_RetryExhaustionEscalatesAndRejectSkips(t *testing.T) {
	e := newExecutor(erroringModel{err: errors.New("connection reset by peer, timeout")}, RejectAll{})
	d := &models.DAG{
		RunID: "r5",
		Tasks: map[string]*models.Task{
			"a": {
				Number: "a", Name: "a", Prompt: "flaky", Kind: models.AgentKindCoding,
				Recovery: &models.RecoveryPolicy{Default: models.PolicyRetry, MaxRetries: 1, BackoffBase: time.Millisecond, BackoffMax: 2 * time.Millisecond},
			},
		},
	}

	res, err := e.Run(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, StatusIncomplete, res.Status)
	assert.False(t, res.Outcomes["a"].Success())
}

func TestRun_HITLBlockingGateRejectMarksNonSuccess(t *testing.T) {
	e := newExecutor(constantModel{content: "done"}, RejectAll{})
	d := &models.DAG{
		RunID: "r6",
		Tasks: map[string]*models.Task{
			"deploy": {
				Number: "deploy", Name: "deploy", Prompt: "ship it", Kind: models.AgentKindCoding,
				HITL: &models.HITLCheckpoint{Mode: models.HITLBlocking, Reason: "production deploy"},
			},
		},
	}

	res, err := e.Run(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, res.Outcomes["deploy"].Success())
	assert.Equal(t, models.OutcomeEvaluatorReject, res.Outcomes["deploy"].Kind)
	assert.Equal(t, StatusIncomplete, res.Status)
}

func TestRun_HITLBlockingGateApproveSucceeds(t *testing.T) {
	e := newExecutor(constantModel{content: "done"}, AutoApprove{})
	d := &models.DAG{
		RunID: "r7",
		Tasks: map[string]*models.Task{
			"deploy": {
				Number: "deploy", Name: "deploy", Prompt: "ship it", Kind: models.AgentKindCoding,
				HITL: &models.HITLCheckpoint{Mode: models.HITLBlocking, Reason: "production deploy"},
			},
		},
	}

	res, err := e.Run(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.True(t, res.Outcomes["deploy"].Success())
}

func TestRun_AllSuccessPolicyRequiresEveryTask(t *testing.T) {
	e := newExecutor(erroringModel{err: errors.New("unclassified explosion")}, RejectAll{})
	d := &models.DAG{
		RunID:      "r8",
		Completion: models.AllSuccess,
		Tasks: map[string]*models.Task{
			"a": {Number: "a", Name: "a", Prompt: "ok", Kind: models.AgentKindCoding, Recovery: &models.RecoveryPolicy{Default: models.PolicySkip}},
		},
	}

	res, err := e.Run(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, StatusIncomplete, res.Status)
}

func TestRun_ExhaustedBudgetAbortsBeforeLaterWave(t *testing.T) {
	e := newExecutor(constantModel{content: "some fairly long piece of output text"}, nil)
	e.Budget = NewTokenBudget(10)

	d := &models.DAG{
		RunID: "r10",
		Tasks: map[string]*models.Task{
			"a": {Number: "a", Name: "a", Prompt: "do a", Kind: models.AgentKindCoding},
			"b": {Number: "b", Name: "b", Prompt: "do b", Kind: models.AgentKindCoding, DependsOn: []string{"a"}},
		},
	}

	res, err := e.Run(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, StatusAborted, res.Status)
	require.Error(t, res.Cause)
	assert.True(t, res.Outcomes["a"].Success())
	assert.NotContains(t, res.Outcomes, "b")
}

func TestRun_CancelledContextAborts(t *testing.T) {
	e := newExecutor(constantModel{content: "done"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &models.DAG{
		RunID: "r9",
		Tasks: map[string]*models.Task{
			"a": {Number: "a", Name: "a", Prompt: "do a", Kind: models.AgentKindCoding},
		},
	}

	res, err := e.Run(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, StatusAborted, res.Status)
}
