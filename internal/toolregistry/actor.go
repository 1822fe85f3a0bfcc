package toolregistry

import "context"

type actorKey struct{}

// WithActor attaches the calling task's identity (e.g. "task:7") to ctx so
// locking tools can record who holds a path without needing a dedicated
// WriteTool instance per task. WaveExecutor sets this once per task
// invocation, before handing the context to the ReAct loop.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// actorFrom reads back the identity WithActor attached, defaulting to
// "unknown" so a lock holder is still recorded if a caller forgets to set one
// (tests, mainly).
func actorFrom(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok && v != "" {
		return v
	}
	return "unknown"
}
