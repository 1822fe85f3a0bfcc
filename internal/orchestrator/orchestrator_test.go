package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harrison/corerun/internal/filelock"
	"github.com/harrison/corerun/internal/models"
	"github.com/harrison/corerun/internal/planner"
	"github.com/harrison/corerun/internal/recordstore"
	"github.com/harrison/corerun/internal/recovery"
	"github.com/harrison/corerun/internal/statusbus"
	"github.com/harrison/corerun/internal/toolregistry"
	"github.com/harrison/corerun/internal/wave"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedClient struct{ response string }

func (c scriptedClient) Chat(context.Context, models.ChatRequest) (models.ChatResponse, error) {
	return models.ChatResponse{Content: c.response}, nil
}

type constantModel struct{ content string }

func (m constantModel) Chat(context.Context, models.ChatRequest) (models.ChatResponse, error) {
	return models.ChatResponse{Content: m.content}, nil
}

const validPlan = `
nodes:
  - id: read
    kind: coding
    prompt: read the file
    tools: [filesystem.read]
    risk: low
  - id: write
    kind: coding
    prompt: write the file
    tools: [filesystem.write]
    risk: low
edges:
  - from: read
    to: write
    kind: ordering
`

func newStack(t *testing.T, planResponse, taskResponse string) (*planner.Planner, *wave.Executor) {
	t.Helper()
	tools := toolregistry.New()
	tools.Register(readStub{})
	tools.Register(writeStub{})

	p := planner.New(scriptedClient{response: planResponse}, tools, nil, planner.Config{})
	w := wave.New(constantModel{content: taskResponse}, tools, filelock.NewRegistry(), statusbus.New(), recovery.New(), wave.AutoApprove{}, wave.Config{TaskTimeout: 2 * time.Second})
	return p, w
}

type readStub struct{}

func (readStub) Spec() models.ToolSpec {
	return models.ToolSpec{Name: "filesystem.read", Description: "stub read", InputSchema: "{}"}
}
func (readStub) Call(context.Context, []byte) (string, error) { return "ok", nil }

type writeStub struct{}

func (writeStub) Spec() models.ToolSpec {
	return models.ToolSpec{Name: "filesystem.write", Description: "stub write", InputSchema: "{}"}
}
func (writeStub) Call(context.Context, []byte) (string, error) { return "ok", nil }

func TestExecute_EndToEndRunPersistsAuditTrail(t *testing.T) {
	p, w := newStack(t, validPlan, "done")
	store, err := recordstore.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	o := New(p, w, statusbus.New(), store)

	out, err := o.Execute(context.Background(), models.Query{Goal: "rename foo to bar"})
	require.NoError(t, err)
	require.NotEmpty(t, out.RunID)
	assert.Equal(t, wave.StatusCompleted, out.Status)
	require.Len(t, out.Result.Outcomes, 2)

	ctx := context.Background()
	var status string
	row := store.DB().QueryRowContext(ctx, `SELECT status FROM runs WHERE run_id = ?`, out.RunID)
	require.NoError(t, row.Scan(&status))
	assert.Equal(t, string(wave.StatusCompleted), status)

	outcomes, err := store.TaskOutcomesForRun(ctx, out.RunID)
	require.NoError(t, err)
	assert.Len(t, outcomes, 2)
}

func TestExecute_EmptyRunIDGeneratesOne(t *testing.T) {
	p, w := newStack(t, validPlan, "done")
	o := New(p, w, nil, nil)

	out, err := o.Execute(context.Background(), models.Query{Goal: "x"})
	require.NoError(t, err)
	assert.NotEmpty(t, out.RunID)
}

func TestExecute_NilStoreDisablesPersistence(t *testing.T) {
	p, w := newStack(t, validPlan, "done")
	o := New(p, w, statusbus.New(), nil)

	out, err := o.Execute(context.Background(), models.Query{Goal: "x", RunID: "fixed-run"})
	require.NoError(t, err)
	assert.Equal(t, "fixed-run", out.RunID)
	assert.Equal(t, wave.StatusCompleted, out.Status)
}

func TestExecute_PlanningFailureReturnsError(t *testing.T) {
	p, w := newStack(t, "not: valid: : yaml: [", "done")
	store, err := recordstore.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	o := New(p, w, nil, store)

	_, err = o.Execute(context.Background(), models.Query{Goal: "x", RunID: "bad-plan-run"})
	require.Error(t, err)

	var status string
	row := store.DB().QueryRowContext(context.Background(), `SELECT status FROM runs WHERE run_id = ?`, "bad-plan-run")
	require.NoError(t, row.Scan(&status))
	assert.Equal(t, "planning_failed", status)
}

type abortingErr struct{ err error }

func (a abortingErr) Chat(context.Context, models.ChatRequest) (models.ChatResponse, error) {
	return models.ChatResponse{}, a.err
}

func TestExecute_WaveFailureStillReturnsResultNotError(t *testing.T) {
	tools := toolregistry.New()
	tools.Register(readStub{})
	tools.Register(writeStub{})

	p := planner.New(scriptedClient{response: validPlan}, tools, nil, planner.Config{})
	w := wave.New(abortingErr{err: errors.New("unclassified explosion")}, tools, filelock.NewRegistry(), statusbus.New(), recovery.New(), wave.RejectAll{}, wave.Config{TaskTimeout: 2 * time.Second})

	o := New(p, w, nil, nil)

	out, err := o.Execute(context.Background(), models.Query{Goal: "x"})
	require.NoError(t, err)
	assert.Equal(t, wave.StatusIncomplete, out.Status)
}
