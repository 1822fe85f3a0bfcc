// Package rag defines the external retrieval interface the core consumes and
// a local grep-based provider good enough to exercise the rag.query tool and
// the ReAct loop's context-seeding step without depending on a real vector
// store. A production deployment swaps Provider for one backed by whatever
// retrieval service the surrounding system already runs.
package rag

import (
	"context"

	"github.com/harrison/corerun/internal/models"
)

// Origin marks where a fragment came from.
type Origin string

const (
	OriginWorkspace Origin = "workspace"
	OriginPersonal  Origin = "personal"
	OriginWeb       Origin = "web"
)

// Fragment is one ranked piece of retrieved context.
type Fragment struct {
	Content string  `json:"content"`
	Origin  Origin  `json:"origin"`
	Score   float64 `json:"score"`
}

// Provider is the core's view of an external RAG subsystem. Retrieval is
// best-effort: an empty slice is a valid, non-error result and must not fail
// the task that requested it.
type Provider interface {
	RetrieveContext(ctx context.Context, query string, scope models.Scope, conversationID string, limit int) ([]Fragment, error)
}

// NullProvider always returns no fragments. It is the default when no RAG
// backend is configured, so rag.query degrades to a no-op rather than an
// error.
type NullProvider struct{}

func (NullProvider) RetrieveContext(context.Context, string, models.Scope, string, int) ([]Fragment, error) {
	return nil, nil
}
