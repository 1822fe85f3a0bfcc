// Package recovery decides what happens after a task emits Failure. The
// classification table and pattern-matching approach are lifted directly
// from the teacher's internal/executor error-pattern detector; what changes
// is the action space, which here is the five-way PolicyKind dispatch the
// DAG scheduler understands instead of the teacher's single "is this
// agent-fixable" boolean.
package recovery

import (
	"context"
	"math"
	"math/rand"
	"regexp"
	"time"

	"github.com/harrison/corerun/internal/models"
)

// FailureKind is the generic classification RecoveryController assigns to a
// TaskOutcome before consulting the task's RecoveryPolicy.
type FailureKind string

const (
	FailureTransient        FailureKind = "transient_network_timeout"
	FailureInvalidToolCall  FailureKind = "invalid_tool_call"
	FailureLockTimeout      FailureKind = "lock_timeout"
	FailurePlanFailed       FailureKind = "plan_failed"
	FailurePanic            FailureKind = "panic"
	FailureConfiguration    FailureKind = "configuration_error"
	FailureUnclassified     FailureKind = "unclassified"
)

var classifiers = []struct {
	pattern *regexp.Regexp
	kind    FailureKind
}{
	{regexp.MustCompile(`(?i)locktimeout|timed out waiting for lock`), FailureLockTimeout},
	{regexp.MustCompile(`(?i)timeout|deadline exceeded|connection reset|i/o timeout`), FailureTransient},
	{regexp.MustCompile(`(?i)invalid tool call|unknown tool|malformed response`), FailureInvalidToolCall},
	{regexp.MustCompile(`(?i)planfailed|circular dependency|unresolved tool`), FailurePlanFailed},
	{regexp.MustCompile(`(?i)panic:`), FailurePanic},
	{regexp.MustCompile(`(?i)missing tool|unknown agent kind|configurationerror`), FailureConfiguration},
}

// Classify inspects an outcome's error text and returns the first matching
// FailureKind, or FailureUnclassified if nothing matches (first-match-wins,
// same as the teacher's DetectErrorPattern).
func Classify(outcome models.TaskOutcome) FailureKind {
	if outcome.Err == nil {
		return FailureUnclassified
	}
	text := outcome.Err.Error()
	for _, c := range classifiers {
		if c.pattern.MatchString(text) {
			return c.kind
		}
	}
	return FailureUnclassified
}

// defaultPolicyFor implements the classification table in §4.5: a failure
// kind maps to a default PolicyKind when the task didn't declare its own
// RecoveryPolicy.Default.
func defaultPolicyFor(kind FailureKind) (models.PolicyKind, int) {
	switch kind {
	case FailureTransient:
		return models.PolicyRetry, 2
	case FailureInvalidToolCall:
		return models.PolicyRetry, 1 // then Skip, handled by Decide's attempt check
	case FailureLockTimeout:
		return models.PolicyRetry, 2
	case FailurePlanFailed:
		return models.PolicyAbort, 0
	case FailurePanic:
		return models.PolicyEscalateHuman, 0
	case FailureConfiguration:
		return models.PolicyAbort, 0
	default:
		return models.PolicyRetry, 1
	}
}

// Decision is what Decide tells the wave executor to do next.
type Decision struct {
	Policy       models.PolicyKind
	FallbackAgent models.AgentKind
	Backoff      time.Duration
	Reason       string
}

// Controller dispatches recovery decisions for failed task outcomes.
type Controller struct {
	Rand *rand.Rand
}

func New() *Controller {
	return &Controller{Rand: rand.New(rand.NewSource(1))}
}

// Decide classifies outcome and combines it with task's declared
// RecoveryPolicy (or the kind-appropriate default) to produce the next
// action. attempt is the 1-based count of attempts already made at this task,
// including the one that produced outcome.
func (c *Controller) Decide(task *models.Task, outcome models.TaskOutcome, attempt int) Decision {
	policy := task.EffectiveRecovery()
	kind := Classify(outcome)
	defaultPolicy, defaultMax := defaultPolicyFor(kind)

	action := policy.Default
	maxRetries := policy.MaxRetries
	if action == "" {
		action = defaultPolicy
		maxRetries = defaultMax
	}

	// Invalid tool calls retry once then fall through to Skip, independent
	// of the task's own policy, per the classification table.
	if kind == FailureInvalidToolCall && attempt > 1 {
		return Decision{Policy: models.PolicySkip, Reason: "invalid tool call retried once, skipping"}
	}
	// Lock timeouts get a retry budget of 2 regardless of a more
	// conservative task policy, since the contention is expected to clear on
	// its own. The lock deadline is the same on every attempt; it is not
	// doubled.
	if kind == FailureLockTimeout && action == models.PolicyRetry {
		maxRetries = 2
	}

	switch action {
	case models.PolicyRetry:
		if attempt >= maxRetries {
			if policy.FallbackAgent != "" {
				return Decision{Policy: models.PolicySwitchAgent, FallbackAgent: policy.FallbackAgent, Reason: "retry budget exhausted, switching agent"}
			}
			return Decision{Policy: models.PolicyEscalateHuman, Reason: "retry budget exhausted"}
		}
		return Decision{Policy: models.PolicyRetry, Backoff: c.backoff(policy, attempt), Reason: string(kind)}
	case models.PolicySwitchAgent:
		if attempt > 1 {
			return Decision{Policy: models.PolicyAbort, Reason: "backup agent also failed"}
		}
		return Decision{Policy: models.PolicySwitchAgent, FallbackAgent: policy.FallbackAgent, Reason: string(kind)}
	default:
		return Decision{Policy: action, Reason: string(kind)}
	}
}

// backoff computes exponential backoff with jitter, bounded by the policy's
// configured (or default) base/max.
func (c *Controller) backoff(policy models.RecoveryPolicy, attempt int) time.Duration {
	base := policy.BackoffBase
	if base <= 0 {
		base = 2 * time.Second
	}
	max := policy.BackoffMax
	if max <= 0 {
		max = 30 * time.Second
	}
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if d > max {
		d = max
	}
	jitter := time.Duration(c.Rand.Int63n(int64(d) / 4 + 1))
	return d + jitter
}

// Sleep waits out a Decision's backoff or returns early on cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
