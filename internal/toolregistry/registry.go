// Package toolregistry is the ReAct loop's bridge to the outside world: a
// named set of Tool implementations a task's AgentKind may call, each
// described by a models.ToolSpec so the model knows it exists and how to call
// it. It generalizes the teacher's agent.Registry (which discovers fixed
// Claude-Code persona files) into a programmatic catalog of callable actions,
// since a DAG task needs to invoke filesystem/git/RAG operations directly
// rather than delegate to an opaque CLI persona.
package toolregistry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/harrison/corerun/internal/filelock"
	"github.com/harrison/corerun/internal/models"
)

// Tool is one callable action exposed to the ReAct loop.
type Tool interface {
	Spec() models.ToolSpec
	Call(ctx context.Context, input []byte) (string, error)
}

// Registry holds the tools available to a run, optionally restricted per
// task via Task.RequiredTools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds (or replaces) a tool under its own spec name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Spec().Name] = t
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Specs returns the ToolSpecs for the named tools, in the order requested.
// Unknown names are skipped rather than erroring, so a task that lists a
// speculative tool (e.g. one not yet wired) degrades to not offering it
// instead of failing to start.
func (r *Registry) Specs(names []string) []models.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]models.ToolSpec, 0, len(names))
	for _, n := range names {
		if t, ok := r.tools[n]; ok {
			specs = append(specs, t.Spec())
		}
	}
	return specs
}

// All returns every registered tool's spec, sorted by name, for callers that
// want to print the whole catalog.
func (r *Registry) All() []models.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]models.ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, t.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Invoke resolves name and calls it. An unknown tool name comes back as a
// fatal error ToolResult, so the ReAct loop ends the task with a tool-error
// outcome rather than feeding the error back to the model.
func (r *Registry) Invoke(ctx context.Context, call models.ToolCall) models.ToolResult {
	t, ok := r.Get(call.Name)
	if !ok {
		return models.ToolResult{CallID: call.ID, IsError: true, Fatal: true, Output: fmt.Sprintf("unknown tool %q", call.Name)}
	}
	out, err := t.Call(ctx, call.Input)
	if err != nil {
		// A lock timeout is transient: the caller has budget to retry against
		// the same path once the holder releases it. Every other tool error
		// (bad path, permission denied, malformed arguments) is fatal.
		fatal := !errors.Is(err, filelock.ErrLockTimeout)
		return models.ToolResult{CallID: call.ID, IsError: true, Fatal: fatal, Output: err.Error()}
	}
	return models.ToolResult{CallID: call.ID, Output: out}
}
