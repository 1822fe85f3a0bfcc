package react

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harrison/corerun/internal/claude"
	"github.com/harrison/corerun/internal/models"
)

// responseSchema forces the model to discriminate between "I want to call
// tools" and "I'm done", the same way DefaultSystemPrompt forces JSON-only
// output in the teacher's claude.Invoker. Where the teacher needed one shot
// at a final JSON answer, a ReAct turn also needs the model to describe zero
// or more tool calls, so the schema carries both.
const responseSchema = `{
  "type": "object",
  "properties": {
    "content": {"type": "string"},
    "tool_calls": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "id": {"type": "string"},
          "name": {"type": "string"},
          "input": {"type": "object"}
        },
        "required": ["name"]
      }
    }
  },
  "required": ["content", "tool_calls"]
}`

// ClaudeClient adapts claude.Invoker (a one-shot "print mode" CLI call) into
// the multi-turn ModelClient the loop needs: each call passes the previous
// session id via --resume (the continuation mechanism the teacher built for
// rate-limit recovery) and also sends the whole rendered transcript as the
// prompt (see renderPrompt).
type ClaudeClient struct {
	Invoker *claude.Invoker
}

func NewClaudeClient(inv *claude.Invoker) *ClaudeClient {
	return &ClaudeClient{Invoker: inv}
}

func (c *ClaudeClient) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	prompt := renderPrompt(req)

	toolsJSON, err := json.Marshal(req.Tools)
	if err != nil {
		return models.ChatResponse{}, fmt.Errorf("react: marshal tool schemas: %w", err)
	}

	system := req.SystemPrompt
	if system == "" {
		system = claude.DefaultSystemPrompt
	}
	system += "\n\nAvailable tools (call by name with matching input, or leave tool_calls empty when done):\n" + string(toolsJSON)
	if req.FormatHint != "" {
		system += fmt.Sprintf("\n\nOnce you are done calling tools, your final \"content\" field must be valid %s.", req.FormatHint)
	}

	resp, err := c.Invoker.Invoke(ctx, claude.Request{
		Prompt:      prompt,
		Schema:      responseSchema,
		ResumeID:    req.ResumeID,
		BypassPerms: true,
	})
	if err != nil {
		return models.ChatResponse{}, fmt.Errorf("react: model call failed: %w", err)
	}

	content, sessionID, err := claude.ParseResponse(resp.RawOutput)
	if err != nil {
		return models.ChatResponse{}, fmt.Errorf("react: parse model output: %w", err)
	}
	if content == "" {
		return models.ChatResponse{}, fmt.Errorf("react: empty model response")
	}

	var parsed struct {
		Content   string `json:"content"`
		ToolCalls []struct {
			ID    string          `json:"id"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		} `json:"tool_calls"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return models.ChatResponse{}, fmt.Errorf("react: malformed structured response: %w", err)
	}

	calls := make([]models.ToolCall, 0, len(parsed.ToolCalls))
	for i, tc := range parsed.ToolCalls {
		id := tc.ID
		if id == "" {
			id = fmt.Sprintf("call-%d", i)
		}
		calls = append(calls, models.ToolCall{ID: id, Name: tc.Name, Input: tc.Input})
	}

	conforms := conformsToHint(parsed.Content, len(calls) == 0, req.FormatHint)

	return models.ChatResponse{Content: parsed.Content, ToolCalls: calls, SessionID: sessionID, Conforms: conforms}, nil
}

// conformsToHint checks a final (no-tool-calls) answer against FormatHint.
// Only the final turn is ever checked for conformance — a turn that still
// has tool calls pending isn't a final answer yet, so it trivially conforms.
func conformsToHint(content string, final bool, hint string) bool {
	if !final || hint == "" {
		return true
	}
	switch hint {
	case "json":
		return json.Valid([]byte(content))
	default:
		return true
	}
}

// renderPrompt flattens the message history into the single -p prompt string
// claude CLI print-mode expects. Only the newest turn needs to be sent on a
// resumed call, but the full transcript is always rendered so a ModelClient
// swapped in without session resumption (e.g. in tests) still works.
func renderPrompt(req models.ChatRequest) string {
	var b strings.Builder
	for _, m := range req.Messages {
		switch m.Role {
		case models.RoleTool:
			fmt.Fprintf(&b, "[tool result: %s]\n%s\n\n", m.ToolName, m.Content)
		default:
			fmt.Fprintf(&b, "[%s]\n%s\n\n", m.Role, m.Content)
		}
	}
	return b.String()
}
