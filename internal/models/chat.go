package models

import "encoding/json"

// ToolSpec describes one callable tool as exposed to a model: enough for the
// model to decide when to call it and how to fill its input.
type ToolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema string `json:"input_schema"` // raw JSON Schema text
}

// ToolCall is a single invocation the model asked for in one turn. A model
// response may contain zero, one, or several.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is threaded back to the model as the outcome of a ToolCall.
// Fatal distinguishes an unrecoverable error (e.g. permission denied) from a
// transient one (e.g. LockTimeout with budget remaining) — classification is
// tool-local, per the ToolRegistry contract, and ReActLoop/RecoveryController
// both read it rather than re-deriving it from the error text.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Output  string `json:"output"`
	IsError bool   `json:"is_error"`
	Fatal   bool   `json:"fatal,omitempty"`
}

// ChatRequest is one turn of model input: system instructions, the running
// transcript, and the tool set currently available to the agent kind running
// this task.
type ChatRequest struct {
	SystemPrompt string
	Messages     []Message
	Tools        []ToolSpec
	ResumeID     string // continuation token for a previous ChatResponse.SessionID

	// FormatHint names the structured form the final (no-tool-calls) answer
	// must conform to, e.g. "json". Empty means no structured-output
	// requirement — any non-empty text is an acceptable final answer.
	FormatHint string
}

// ChatResponse is one turn of model output: either a final answer (no tool
// calls) or a set of tool calls the loop must satisfy before calling the
// model again.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
	SessionID string

	// Conforms reports whether Content parses as the FormatHint the
	// request asked for. Always true when the request carried no
	// FormatHint. ReActLoop's stability check reads this to decide between
	// Success and Failure(NoProgress) on a final answer.
	Conforms bool
}

// HasToolCalls reports whether the model asked to act rather than answer.
func (r ChatResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}
