package toolregistry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harrison/corerun/internal/models"
	"github.com/harrison/corerun/internal/rag"
)

// RAGQueryTool implements rag.query: best-effort retrieval that delegates to
// an external rag.Provider. A provider error or empty result is never fatal —
// it degrades to no context, matching the behavioral contract in §6.1.
type RAGQueryTool struct {
	Provider rag.Provider
}

func NewRAGQueryTool(p rag.Provider) *RAGQueryTool {
	if p == nil {
		p = rag.NullProvider{}
	}
	return &RAGQueryTool{Provider: p}
}

func (RAGQueryTool) Spec() models.ToolSpec {
	return models.ToolSpec{
		Name:        "rag.query",
		Description: "Retrieve ranked context fragments relevant to a query, optionally scoped to a path set.",
		InputSchema: `{"type":"object","properties":{"query":{"type":"string"},"scope":{"type":"array","items":{"type":"string"}},"limit":{"type":"integer"}},"required":["query"]}`,
	}
}

func (t *RAGQueryTool) Call(ctx context.Context, input []byte) (string, error) {
	var args struct {
		Query string   `json:"query"`
		Scope []string `json:"scope"`
		Limit int      `json:"limit"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("rag.query: bad arguments: %w", err)
	}
	if args.Limit <= 0 {
		args.Limit = 5
	}

	fragments, err := t.Provider.RetrieveContext(ctx, args.Query, models.Scope{Paths: args.Scope}, "", args.Limit)
	if err != nil {
		// Best-effort per contract: report empty rather than propagate.
		return "[]", nil
	}
	out, err := json.Marshal(fragments)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
