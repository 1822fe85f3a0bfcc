// Package planner turns a (Query, Scope, conversation summary) into a
// validated models.DAG. It is the one component the teacher never had an
// equivalent of: conductor's plans are hand-authored Markdown/YAML files
// parsed by internal/parser, while this spec requires drafting the DAG from
// a natural-language query via a single structured model call. The
// validation style — unique ids, acyclicity, tool/agent-kind resolution —
// is lifted directly from internal/parser/yaml_validation.go and
// internal/dag's Kahn-style cycle check, just run here against
// model-authored output instead of a human-authored file.
package planner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/harrison/corerun/internal/dag"
	"github.com/harrison/corerun/internal/models"
	"github.com/harrison/corerun/internal/statusbus"
	"github.com/harrison/corerun/internal/toolregistry"
	"gopkg.in/yaml.v3"
)

// DefaultMaxParseAttempts bounds how many times Plan will re-ask the model
// for a parseable, structurally valid plan before giving up with PlanFailed.
const DefaultMaxParseAttempts = 3

// PlanFailedError is returned when the planner model produced malformed or
// structurally invalid output past MaxParseAttempts, or the resulting graph
// fails validation outright (unknown agent kind, unresolved tool). Per §7 it
// is one of the two error kinds that surface all the way past Orchestrator
// as a run-level Abort.
type PlanFailedError struct {
	Attempts int
	Cause    error
}

func (e *PlanFailedError) Error() string {
	return fmt.Sprintf("planner: PlanFailed after %d attempt(s): %v", e.Attempts, e.Cause)
}
func (e *PlanFailedError) Unwrap() error { return e.Cause }

// ModelClient is the structured planning call. It has the same shape as
// react.ModelClient (and react.ClaudeClient already satisfies it) so the same
// concrete model adapter backs both the planning call and every task's
// ReAct loop, matching the teacher's "one Invoker, many callers" pattern.
type ModelClient interface {
	Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error)
}

// QualityStrategy decides when an attached evaluator actually runs.
type QualityStrategy string

const (
	QualityOnlyForCritical QualityStrategy = "only_for_critical"
	QualityAfterNIterations QualityStrategy = "after_n_iterations"
	QualityAlways          QualityStrategy = "always"
)

// Config tunes the annotation rules in spec.md §4.1. Zero value uses the
// spec's stated defaults.
type Config struct {
	MaxParseAttempts int
	QualityStrategy  QualityStrategy
	EvaluatorAfterN  int // only read when QualityStrategy == QualityAfterNIterations
	SensitivePaths   []string
	DefaultMaxRetries int
}

func (c Config) withDefaults() Config {
	if c.MaxParseAttempts <= 0 {
		c.MaxParseAttempts = DefaultMaxParseAttempts
	}
	if c.QualityStrategy == "" {
		c.QualityStrategy = QualityOnlyForCritical
	}
	if c.DefaultMaxRetries <= 0 {
		c.DefaultMaxRetries = 3
	}
	return c
}

// Planner drafts a DAG from a query via one structured model call, then
// validates and annotates it. AgentKinds lists the agent kinds this
// deployment has configured; a node naming any other kind fails plan-time
// validation per spec.md's "unknown agent kind" rule.
type Planner struct {
	Model      ModelClient
	Tools      *toolregistry.Registry
	Status     *statusbus.Bus
	AgentKinds map[models.AgentKind]bool
	Config     Config
}

// New constructs a Planner. status may be nil if PlanFixup events shouldn't
// be published (e.g. in tests).
func New(model ModelClient, tools *toolregistry.Registry, status *statusbus.Bus, cfg Config) *Planner {
	return &Planner{
		Model:  model,
		Tools:  tools,
		Status: status,
		AgentKinds: map[models.AgentKind]bool{
			models.AgentKindCoding:    true,
			models.AgentKindPlanning:  true,
			models.AgentKindWriting:   true,
			models.AgentKindEvaluator: true,
		},
		Config: cfg.withDefaults(),
	}
}

// planDoc is the YAML shape requested from the model: a flat node list plus
// an explicit edge list, matching spec.md §3's (nodes, edges) DAG
// construction rather than the teacher's numbered-task-with-depends_on
// convention, so data-flow vs ordering edges can be expressed explicitly.
type planDoc struct {
	Nodes []planNodeDoc `yaml:"nodes"`
	Edges []planEdgeDoc `yaml:"edges"`
}

type planNodeDoc struct {
	ID        string   `yaml:"id"`
	Kind      string   `yaml:"kind"`
	Model     string   `yaml:"model"`
	Prompt    string   `yaml:"prompt"`
	Tools     []string `yaml:"tools"`
	Risk      string   `yaml:"risk"`
	RAGScope  []string `yaml:"rag_scope"`
	Sensitive   bool   `yaml:"sensitive_write"`
	UserVisible bool   `yaml:"user_visible_output"`
	MaxRetries  int    `yaml:"max_retries"`
	FormatHint  string `yaml:"format_hint"`
}

type planEdgeDoc struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Kind string `yaml:"kind"` // "data" | "ordering"; empty defaults to "data"
}

// Plan drafts, validates, and annotates a DAG for query. It issues at most
// Config.MaxParseAttempts model calls before returning a *PlanFailedError.
func (p *Planner) Plan(ctx context.Context, query models.Query) (*models.DAG, error) {
	p.publish(models.EventPlanning, query.RunID, "", nil)

	var lastErr error
	for attempt := 1; attempt <= p.Config.MaxParseAttempts; attempt++ {
		d, err := p.attempt(ctx, query, attempt)
		if err == nil {
			return d, nil
		}
		lastErr = err
	}
	return nil, &PlanFailedError{Attempts: p.Config.MaxParseAttempts, Cause: lastErr}
}

func (p *Planner) attempt(ctx context.Context, query models.Query, attemptNum int) (*models.DAG, error) {
	resp, err := p.Model.Chat(ctx, models.ChatRequest{
		SystemPrompt: planningSystemPrompt,
		Messages: []models.Message{{
			Role:    models.RoleUser,
			Content: renderPlanningPrompt(query),
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("planning call failed (attempt %d): %w", attemptNum, err)
	}

	var doc planDoc
	if err := yaml.Unmarshal([]byte(resp.Content), &doc); err != nil {
		return nil, fmt.Errorf("malformed plan output (attempt %d): %w", attemptNum, err)
	}

	return p.build(query, doc)
}

// build turns a parsed planDoc into a validated, annotated DAG. Failures
// here are NOT retried with a fresh model call within the same attempt() —
// they report up so the caller's retry loop asks the model again, matching
// spec.md's "reject at plan time" wording for structural problems.
func (p *Planner) build(query models.Query, doc planDoc) (*models.DAG, error) {
	if len(doc.Nodes) == 0 {
		return nil, fmt.Errorf("plan has no nodes")
	}

	tasks := make(map[string]*models.Task, len(doc.Nodes))
	order := make([]string, 0, len(doc.Nodes))
	for _, n := range doc.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("plan node has empty id")
		}
		if _, dup := tasks[n.ID]; dup {
			p.publish(models.EventPlanFixup, query.RunID, n.ID, map[string]any{"fixup": "duplicate_node_id_kept_first"})
			continue
		}
		kind := models.AgentKind(n.Kind)
		if !p.AgentKinds[kind] {
			return nil, fmt.Errorf("node %s: unknown agent kind %q", n.ID, n.Kind)
		}
		for _, toolName := range n.Tools {
			if _, ok := p.Tools.Get(toolName); !ok {
				return nil, fmt.Errorf("node %s: required tool %q is not registered", n.ID, toolName)
			}
		}

		task := &models.Task{
			Number:        n.ID,
			Name:          n.ID,
			Prompt:        n.Prompt,
			Kind:          kind,
			ModelID:       n.Model,
			RequiredTools: n.Tools,
			Risk:          models.RiskLevel(n.Risk),
			UserVisible:   n.UserVisible,
			FormatHint:    n.FormatHint,
		}
		if len(n.RAGScope) > 0 {
			task.RAGScope = &models.Scope{Paths: n.RAGScope}
		}
		p.annotateRecovery(task, n)
		p.annotateHITL(task, n)

		tasks[n.ID] = task
		order = append(order, n.ID)
	}

	edges := make([]models.Edge, 0, len(doc.Edges))
	for _, e := range doc.Edges {
		if _, ok := tasks[e.From]; !ok {
			return nil, fmt.Errorf("edge references unknown node %q", e.From)
		}
		to, ok := tasks[e.To]
		if !ok {
			return nil, fmt.Errorf("edge references unknown node %q", e.To)
		}
		kind := models.EdgeDataFlow
		if e.Kind == "ordering" {
			kind = models.EdgeDependency
		}
		edges = append(edges, models.Edge{From: e.From, To: e.To, Kind: kind})
		to.DependsOn = appendUnique(to.DependsOn, e.From)
	}

	p.attachEvaluators(tasks, order, &edges)

	allIDs := make([]string, 0, len(tasks))
	for id := range tasks {
		allIDs = append(allIDs, id)
	}
	sort.Strings(allIDs)

	taskSlice := make([]models.Task, 0, len(tasks))
	for _, id := range allIDs {
		taskSlice = append(taskSlice, *tasks[id])
	}
	if err := dag.Validate(taskSlice); err != nil {
		return nil, fmt.Errorf("structurally invalid plan: %w", err)
	}
	g := dag.Build(taskSlice)
	if g.HasCycle() {
		return nil, fmt.Errorf("plan contains a circular dependency")
	}

	return &models.DAG{
		RunID:      query.RunID,
		Tasks:      tasks,
		Edges:      edges,
		Completion: models.AnySuccess,
	}, nil
}

// annotateRecovery applies the default-recovery rule: Retry{max=3,
// backoff=exponential starting 500ms} unless the node sets its own
// max_retries. The max comes from Config.DefaultMaxRetries (3 unless
// configured); the agent kind's models.DefaultRecoveryPolicy is not consulted.
func (p *Planner) annotateRecovery(task *models.Task, n planNodeDoc) {
	maxRetries := p.Config.DefaultMaxRetries
	if n.MaxRetries > 0 {
		maxRetries = n.MaxRetries
	}
	task.Recovery = &models.RecoveryPolicy{
		Default:     models.PolicyRetry,
		MaxRetries:  maxRetries,
		BackoffBase: defaultBackoffBase,
		BackoffMax:  defaultBackoffMax,
	}
}

// annotateHITL implements: risk >= high OR writes a sensitive path ->
// Blocking HITL.
func (p *Planner) annotateHITL(task *models.Task, n planNodeDoc) {
	sensitive := n.Sensitive || isSensitivePath(n.RAGScope, p.Config.SensitivePaths)
	if task.Risk == models.RiskHigh || sensitive {
		task.HITL = &models.HITLCheckpoint{Mode: models.HITLBlocking, Reason: "high risk or sensitive-path write"}
	}
}

// attachEvaluators implements: risk moderate + user-visible text output ->
// attach a downstream evaluator node. The producer->evaluator edge is
// EdgeDataFlow (the wave executor orders on it like any edge and does not add
// the producer's output to the evaluator's prompt); evaluator->consumer edges are EdgeDependency (ordering only) — the
// concrete rule spec.md §9 leaves as an open question, decided in
// DESIGN.md.
func (p *Planner) attachEvaluators(tasks map[string]*models.Task, order []string, edges *[]models.Edge) {
	snapshot := append([]string(nil), order...)
	for _, id := range snapshot {
		producer := tasks[id]
		if !p.needsEvaluator(producer) {
			continue
		}
		evalID := id + "-evaluator"
		if _, exists := tasks[evalID]; exists {
			continue
		}
		evaluator := &models.Task{
			Number:    evalID,
			Name:      evalID,
			Kind:      models.AgentKindEvaluator,
			Prompt:    fmt.Sprintf("Review the output of task %s against its rubric.", id),
			DependsOn: []string{id},
			Recovery:  &models.RecoveryPolicy{Default: models.PolicyEscalateHuman},
		}
		tasks[evalID] = evaluator
		producer.Evaluator = &models.EvaluatorAttachment{EvaluatorTaskID: evalID}
		*edges = append(*edges, models.Edge{From: id, To: evalID, Kind: models.EdgeDataFlow})

		// Consumers of the producer become ordered behind the evaluator
		// instead of the producer directly, so a rejected evaluation can
		// re-enqueue the producer without the consumer having already
		// started on a possibly-unaccepted output.
		for _, other := range tasks {
			if other.Number == evalID {
				continue
			}
			for i, dep := range other.DependsOn {
				if dep == id {
					other.DependsOn[i] = evalID
					*edges = append(*edges, models.Edge{From: evalID, To: other.Number, Kind: models.EdgeDependency})
				}
			}
		}
	}
}

// needsEvaluator applies the configured QualityStrategy to decide whether
// producer gets a downstream evaluator attached. QualityOnlyForCritical
// (the default) matches the spec's stated rule verbatim: moderate risk plus
// user-visible output. QualityAlways widens it to any risk level.
// QualityAfterNIterations instead gates on how many ReAct iterations the
// task is allowed (Config.EvaluatorAfterN), on the theory that a task
// budgeted for a long dialog is the one worth double-checking.
func (p *Planner) needsEvaluator(t *models.Task) bool {
	if !isUserVisible(t) {
		return false
	}
	switch p.Config.QualityStrategy {
	case QualityAlways:
		return true
	case QualityAfterNIterations:
		n := p.Config.EvaluatorAfterN
		if n <= 0 {
			n = 1
		}
		return t.MaxIterations >= n
	default: // QualityOnlyForCritical
		return t.Risk == models.RiskMedium
	}
}

func isUserVisible(t *models.Task) bool {
	return t.UserVisible || t.Kind == models.AgentKindWriting
}

func isSensitivePath(ragScope, sensitivePaths []string) bool {
	for _, p := range ragScope {
		for _, s := range sensitivePaths {
			if p == s {
				return true
			}
		}
	}
	return false
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func (p *Planner) publish(kind models.EventKind, runID, taskID string, payload map[string]any) {
	if p.Status == nil {
		return
	}
	p.Status.Publish(models.StatusEvent{Kind: kind, TaskID: taskID, Payload: payload})
}

const (
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffMax  = 30 * time.Second
)

const planningSystemPrompt = `You are the planning agent for a multi-agent orchestration engine.
Given a user goal and an optional project scope, emit a YAML document describing a task DAG:

nodes:
  - id: <unique short id>
    kind: coding|planning|writing|evaluator
    model: <model identity string>
    prompt: <what this task should do>
    tools: [<required tool names>]
    risk: low|medium|high
    rag_scope: [<paths this task's retrieval and edits are bounded to>]
    sensitive_write: <true if this task writes a sensitive path>
    user_visible_output: <true if this task's output is shown to the end user>
    format_hint: <optional: "json" if the task's final answer must be valid JSON, else omit>
edges:
  - from: <node id>
    to: <node id>
    kind: data|ordering

Output ONLY the YAML document, no prose, no code fences.`

func renderPlanningPrompt(query models.Query) string {
	scope := "whole repository"
	if len(query.Scope.Paths) > 0 {
		scope = fmt.Sprintf("%v", query.Scope.Paths)
	}
	return fmt.Sprintf("Goal: %s\nScope: %s\n", query.Goal, scope)
}

// SortedTaskIDs is a small helper for tests and CLI rendering that want a
// deterministic listing of a DAG's nodes.
func SortedTaskIDs(d *models.DAG) []string {
	ids := make([]string, 0, len(d.Tasks))
	for id := range d.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
