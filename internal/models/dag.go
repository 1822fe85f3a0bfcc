package models

import (
	"sort"
	"time"
)

// AgentKind identifies the role a task is executed under. Unlike the teacher's
// free-form agent name strings, AgentKind is a closed set so the recovery
// controller and the tool registry can make policy decisions without parsing
// persona text.
type AgentKind string

const (
	AgentKindCoding    AgentKind = "coding"
	AgentKindPlanning  AgentKind = "planning"
	AgentKindWriting   AgentKind = "writing"
	AgentKindEvaluator AgentKind = "evaluator"
)

// RiskLevel annotates how much blast radius a task carries. RecoveryController
// and HITL checkpoints both read this to decide whether a failure can be
// retried unattended or must escalate.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Scope bounds what a task (and the RAG provider it queries) is allowed to
// read. An empty Scope means "whole repository".
type Scope struct {
	Paths       []string `yaml:"paths,omitempty" json:"paths,omitempty"`
	ExcludeGlob []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
}

// Allows reports whether path falls within the scope. An empty scope allows
// everything.
func (s Scope) Allows(path string) bool {
	if len(s.Paths) == 0 {
		return true
	}
	for _, p := range s.Paths {
		if p == path || matchPrefix(p, path) {
			return true
		}
	}
	return false
}

func matchPrefix(prefix, path string) bool {
	if len(path) < len(prefix) {
		return false
	}
	return path[:len(prefix)] == prefix
}

// HITLMode selects how a checkpoint gates wave progression.
type HITLMode string

const (
	HITLNone        HITLMode = ""
	HITLBlocking    HITLMode = "blocking"
	HITLAsync       HITLMode = "async"
	HITLSampleBased HITLMode = "sample_based"
)

// HITLCheckpoint configures a human checkpoint attached to a task or a wave.
type HITLCheckpoint struct {
	Mode       HITLMode `yaml:"mode,omitempty" json:"mode,omitempty"`
	SampleRate float64  `yaml:"sample_rate,omitempty" json:"sample_rate,omitempty"` // only used for HITLSampleBased, 0..1
	Reason     string   `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// HITLDecision is the answer a human (or the sampling policy) gives to a
// checkpoint request.
type HITLDecision string

const (
	HITLApprove HITLDecision = "approve"
	HITLReject  HITLDecision = "reject"
	HITLAbstain HITLDecision = "abstain" // sampling policy chose not to ask
)

// HITLRequest is published on the StatusBus when a checkpoint blocks wave
// progression, and is resolved by a HITLDecision delivered out of band (CLI
// prompt, web hook, etc).
type HITLRequest struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	WaveName  string    `json:"wave_name"`
	Mode      HITLMode  `json:"mode"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// PolicyKind enumerates the recovery actions RecoveryController can dispatch
// once a task outcome is classified.
type PolicyKind string

const (
	PolicyRetry          PolicyKind = "retry"
	PolicySwitchAgent     PolicyKind = "switch_agent"
	PolicySkip           PolicyKind = "skip"
	PolicyEscalateHuman  PolicyKind = "escalate_to_human"
	PolicyAbort          PolicyKind = "abort"
)

// RecoveryPolicy configures how RecoveryController reacts to a task's
// failures. MaxRetries bounds PolicyRetry; FallbackAgent is used by
// PolicySwitchAgent.
type RecoveryPolicy struct {
	Default       PolicyKind `yaml:"default,omitempty" json:"default,omitempty"`
	MaxRetries    int        `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	FallbackAgent AgentKind  `yaml:"fallback_agent,omitempty" json:"fallback_agent,omitempty"`
	BackoffBase   time.Duration `yaml:"backoff_base,omitempty" json:"backoff_base,omitempty"`
	BackoffMax    time.Duration `yaml:"backoff_max,omitempty" json:"backoff_max,omitempty"`
}

// DefaultRecoveryPolicy returns the policy applied when a task does not
// declare one explicitly. Decided in the Open Questions pass: coding/writing
// agents retry before escalating, planning/evaluator agents escalate
// immediately since a wrong plan or a wrong verdict is cheap to re-run by a
// human but expensive to retry blindly.
func DefaultRecoveryPolicy(kind AgentKind) RecoveryPolicy {
	switch kind {
	case AgentKindPlanning, AgentKindEvaluator:
		return RecoveryPolicy{Default: PolicyEscalateHuman, MaxRetries: 0}
	default:
		return RecoveryPolicy{
			Default:     PolicyRetry,
			MaxRetries:  2,
			BackoffBase: 2 * time.Second,
			BackoffMax:  30 * time.Second,
		}
	}
}

// NoProgressIsSuccess decides, per spec.md's Open Question, whether a
// ReActLoop's NoProgress termination (stable turn, but the answer never
// conformed to its FormatHint) should be treated as success or failure: the
// default is failure for coding agents (an unconfirmed patch is not done)
// and success for writing agents (prose rarely has a strict wire format to
// conform to, so failing to parse is not evidence of a bad answer).
func NoProgressIsSuccess(kind AgentKind) bool {
	return kind == AgentKindWriting
}

// EvaluatorAttachment wires an evaluator-kind task to judge the output of
// another task before it is accepted.
type EvaluatorAttachment struct {
	EvaluatorTaskID string   `yaml:"evaluator_task,omitempty" json:"evaluator_task,omitempty"`
	Rubric          []string `yaml:"rubric,omitempty" json:"rubric,omitempty"`
}

// EdgeKind distinguishes an ordinary dependency edge from a data-flow edge.
// The wave executor treats both kinds as ordering constraints; it does not
// copy the producing task's output into the consumer's prompt.
type EdgeKind string

const (
	EdgeDependency EdgeKind = "depends_on"
	EdgeDataFlow   EdgeKind = "data_flow"
)

// Edge is a directed arc in the task DAG: From must complete before To
// starts, whatever the Kind.
type Edge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind"`
}

// TerminalPolicy decides what happens to a wave when one of its tasks fails.
type TerminalPolicy string

const (
	TerminalHaltWave   TerminalPolicy = "halt_wave"   // stop scheduling new waves, let the rest of this wave finish
	TerminalHaltAll    TerminalPolicy = "halt_all"     // cancel in-flight siblings too
	TerminalContinue   TerminalPolicy = "continue"     // mark failed, keep going
)

// CompletionPolicy decides whether a run is considered Completed once its
// DAG has quiesced: AnySuccess is satisfied by at least one Succeeded task,
// AllSuccess requires every task to have Succeeded (any Skipped task leaves
// it unsatisfied).
type CompletionPolicy string

const (
	AnySuccess CompletionPolicy = "any_success"
	AllSuccess CompletionPolicy = "all_success"
)

// DAG is the validated, wave-partitioned form of a set of tasks. It is built
// by Planner and consumed by WaveExecutor; Waves is nil until partitioning
// has run. RunID identifies this DAG's orchestrator run for StatusEvent
// producer identity and Record Store upserts.
type DAG struct {
	RunID      string
	Tasks      map[string]*Task
	Edges      []Edge
	Waves      []Wave
	Policy     TerminalPolicy
	Completion CompletionPolicy
}

// Roots returns the ids of tasks with no dependency, in a stable order —
// the DAG's wave-0 candidates before WaveExecutor partitions it.
func (d *DAG) Roots() []string {
	var roots []string
	for id, t := range d.Tasks {
		if len(t.DependsOn) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	return roots
}

// OutcomeKind classifies how a task run ended, feeding both RecoveryController
// dispatch and StatusBus reporting.
type OutcomeKind string

const (
	OutcomeSuccess         OutcomeKind = "success"
	OutcomeToolError       OutcomeKind = "tool_error"
	OutcomeModelError      OutcomeKind = "model_error"
	OutcomeEvaluatorReject OutcomeKind = "evaluator_reject"
	OutcomeTimeout         OutcomeKind = "timeout"
	OutcomeCancelled       OutcomeKind = "cancelled"
	// OutcomeNoProgress means the loop reached a stable or iteration-limit
	// stop without producing an answer conformant to its format_hint — a
	// distinct failure from OutcomeModelError (the model itself responded
	// fine; the content just never settled into the expected shape).
	OutcomeNoProgress OutcomeKind = "no_progress"
	// OutcomeSkipped marks a task that was never attempted because a
	// dependency it required did not succeed — distinct from
	// OutcomeCancelled, which means this task's own run was interrupted.
	OutcomeSkipped OutcomeKind = "skipped"
)

// TaskOutcome is the terminal record produced once a task's ReAct loop (and,
// if attached, its evaluator) has settled. WaveExecutor collects these and
// RecoveryController reads them to decide the next action.
type TaskOutcome struct {
	TaskID     string
	Kind       OutcomeKind
	Output     string
	Err        error
	Attempt    int
	SessionID  string
	Started    time.Time
	Finished   time.Time
	Transcript []Message
}

// Success reports whether the outcome needs no recovery action.
func (o TaskOutcome) Success() bool {
	return o.Kind == OutcomeSuccess
}

// Role distinguishes the speaker of a ReAct transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of a ReAct transcript, threaded back into the model on
// the next iteration.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	ToolName  string    `json:"tool_name,omitempty"`
	ToolInput string    `json:"tool_input,omitempty"`
	At        time.Time `json:"at"`
}

// TerminationReason explains why a ReAct loop stopped iterating.
type TerminationReason string

const (
	TerminatedStable     TerminationReason = "stable" // two consecutive no-tool-call turns
	TerminatedIterLimit  TerminationReason = "iter_limit"
	TerminatedToolError  TerminationReason = "tool_error"
	TerminatedModelError TerminationReason = "model_error"
	TerminatedCancelled  TerminationReason = "cancelled"
	TerminatedNoProgress TerminationReason = "no_progress"
)

// ReActState is the mutable state of a single task's reasoning loop. It is
// created fresh for every task invocation; ReActLoop itself is stateless and
// reusable across tasks, the way claude.Invoker is reusable across requests.
type ReActState struct {
	TaskID     string
	Iteration  int
	History    []Message
	SessionID  string
	Terminated bool
	Reason     TerminationReason
}

// EventKind enumerates what a StatusEvent reports.
type EventKind string

const (
	EventRunStarted     EventKind = "run_started"
	EventRunFinished    EventKind = "run_finished"
	EventPlanning       EventKind = "planning"
	EventPlanFixup      EventKind = "plan_fixup"
	EventWaveStarted    EventKind = "wave_started"
	EventWaveCompleted  EventKind = "wave_completed"
	EventTaskStarted    EventKind = "task_started"
	EventReactIter      EventKind = "react_iter"
	EventToolInvoked    EventKind = "tool_invoked"
	EventToolResult     EventKind = "tool_result"
	EventTaskOutcome    EventKind = "task_outcome"
	EventRecoveryAction EventKind = "recovery_action"
	EventHITLRequested  EventKind = "hitl_requested"
	EventHITLResolved   EventKind = "hitl_resolved"
	EventLagDropped     EventKind = "lag_dropped"
)

// StatusEvent is the unit published on StatusBus. Seq is assigned by the bus
// itself and is strictly increasing per bus instance, giving subscribers a
// total order even across producer goroutines.
type StatusEvent struct {
	Seq     uint64      `json:"seq"`
	Kind    EventKind   `json:"kind"`
	At      time.Time   `json:"at"`
	WaveName string     `json:"wave_name,omitempty"`
	TaskID  string      `json:"task_id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// Query is the top-level request handed to Orchestrator.Execute: a natural
// language goal plus the scope it is allowed to touch.
type Query struct {
	Goal  string
	Scope Scope
	RunID string
}
