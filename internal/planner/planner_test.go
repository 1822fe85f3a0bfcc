package planner

import (
	"context"
	"testing"

	"github.com/harrison/corerun/internal/models"
	"github.com/harrison/corerun/internal/statusbus"
	"github.com/harrison/corerun/internal/toolregistry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct{ name string }

func (s stubTool) Spec() models.ToolSpec {
	return models.ToolSpec{Name: s.name, Description: "stub", InputSchema: "{}"}
}
func (s stubTool) Call(context.Context, []byte) (string, error) { return "ok", nil }

type scriptedClient struct {
	responses []string
	calls     int
}

func (c *scriptedClient) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	i := c.calls
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	c.calls++
	return models.ChatResponse{Content: c.responses[i]}, nil
}

func newRegistry(names ...string) *toolregistry.Registry {
	r := toolregistry.New()
	for _, n := range names {
		r.Register(stubTool{name: n})
	}
	return r
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

func TestPlan_ValidPlanProducesAcyclicDAG(t *testing.T) {
	tools := newRegistry("filesystem.read", "filesystem.write")
	p := New(&scriptedClient{responses: []string{validPlan}}, tools, nil, Config{})

	d, err := p.Plan(context.Background(), models.Query{Goal: "rename foo to bar", RunID: "run-1"})
	require.NoError(t, err)
	require.Len(t, d.Tasks, 2)
	assert.Contains(t, d.Tasks, "read")
	assert.Contains(t, d.Tasks, "write")
	assert.Equal(t, []string{"read"}, d.Tasks["write"].DependsOn)
}

func TestPlan_UnresolvedToolFailsEvenAfterRetries(t *testing.T) {
	tools := newRegistry("filesystem.read")
	bad := `
nodes:
  - id: write
    kind: coding
    prompt: write it
    tools: [filesystem.write]
`
	p := New(&scriptedClient{responses: []string{bad, bad, bad}}, tools, nil, Config{MaxParseAttempts: 2})

	_, err := p.Plan(context.Background(), models.Query{Goal: "x"})
	require.Error(t, err)
	var pfe *PlanFailedError
	require.ErrorAs(t, err, &pfe)
	assert.Equal(t, 2, pfe.Attempts)
}

func TestPlan_RecoversAfterMalformedFirstAttempt(t *testing.T) {
	tools := newRegistry("filesystem.read")
	p := New(&scriptedClient{responses: []string{"not: valid: : yaml: [", validPlanSingleNode}}, tools, nil, Config{})

	d, err := p.Plan(context.Background(), models.Query{Goal: "x"})
	require.NoError(t, err)
	assert.Len(t, d.Tasks, 1)
}

const validPlanSingleNode = `
nodes:
  - id: read
    kind: coding
    prompt: read it
    tools: [filesystem.read]
    risk: low
`

func TestPlan_CyclicDependencyRejected(t *testing.T) {
	tools := newRegistry("filesystem.read")
	cyclic := `
nodes:
  - id: a
    kind: coding
    prompt: a
    tools: [filesystem.read]
  - id: b
    kind: coding
    prompt: b
    tools: [filesystem.read]
edges:
  - {from: a, to: b, kind: ordering}
  - {from: b, to: a, kind: ordering}
`
	p := New(&scriptedClient{responses: []string{cyclic, cyclic}}, tools, nil, Config{MaxParseAttempts: 1})
	_, err := p.Plan(context.Background(), models.Query{Goal: "x"})
	require.Error(t, err)
}

func TestPlan_DuplicateNodeIDKeepsFirst(t *testing.T) {
	tools := newRegistry("filesystem.read")
	dup := `
nodes:
  - id: a
    kind: coding
    prompt: first
    tools: [filesystem.read]
  - id: a
    kind: coding
    prompt: second
    tools: [filesystem.read]
`
	bus := statusbus.New()
	p := New(&scriptedClient{responses: []string{dup}}, tools, bus, Config{})
	d, err := p.Plan(context.Background(), models.Query{Goal: "x"})
	require.NoError(t, err)
	require.Len(t, d.Tasks, 1)
	assert.Equal(t, "first", d.Tasks["a"].Prompt)
}

func TestPlan_HighRiskGetsBlockingHITL(t *testing.T) {
	tools := newRegistry("filesystem.write")
	highRisk := `
nodes:
  - id: deploy
    kind: coding
    prompt: deploy it
    tools: [filesystem.write]
    risk: high
`
	p := New(&scriptedClient{responses: []string{highRisk}}, tools, nil, Config{})
	d, err := p.Plan(context.Background(), models.Query{Goal: "x"})
	require.NoError(t, err)
	require.NotNil(t, d.Tasks["deploy"].HITL)
	assert.Equal(t, models.HITLBlocking, d.Tasks["deploy"].HITL.Mode)
}

func TestPlan_ModerateRiskWritingTaskGetsEvaluator(t *testing.T) {
	tools := newRegistry("filesystem.write")
	doc := `
nodes:
  - id: draft
    kind: writing
    prompt: draft the doc
    tools: [filesystem.write]
    risk: medium
    user_visible_output: true
`
	p := New(&scriptedClient{responses: []string{doc}}, tools, nil, Config{})
	d, err := p.Plan(context.Background(), models.Query{Goal: "x"})
	require.NoError(t, err)
	require.NotNil(t, d.Tasks["draft"].Evaluator)
	evalID := d.Tasks["draft"].Evaluator.EvaluatorTaskID
	require.Contains(t, d.Tasks, evalID)
	assert.Equal(t, models.AgentKindEvaluator, d.Tasks[evalID].Kind)
	assert.Contains(t, d.Tasks[evalID].DependsOn, "draft")
}

func TestPlan_UnknownAgentKindRejected(t *testing.T) {
	tools := newRegistry("filesystem.read")
	bad := `
nodes:
  - id: mystery
    kind: sorcery
    prompt: x
    tools: [filesystem.read]
`
	p := New(&scriptedClient{responses: []string{bad, bad}}, tools, nil, Config{MaxParseAttempts: 1})
	_, err := p.Plan(context.Background(), models.Query{Goal: "x"})
	require.Error(t, err)
}
