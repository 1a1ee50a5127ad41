// Package contract defines the request and response documents exchanged
// with execution engines, and their validation.
package contract

// Version is the contract version written into generated documents.
const Version = "1.0"

// Response status values.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Request is one structured task description handed to an engine.
// Immutable once created; produced by the caller.
type Request struct {
	Version            string          `json:"version"`
	TaskID             string          `json:"task_id"`
	Task               string          `json:"task"`
	Context            Context         `json:"context,omitempty"`
	Constraints        []string        `json:"constraints,omitempty"`
	ExpectedOutput     *ExpectedOutput `json:"expected_output,omitempty"`
	AcceptanceCriteria []string        `json:"acceptance_criteria,omitempty"`
}

// Context carries supporting material for a task.
type Context struct {
	Files []string `json:"files,omitempty"`
	Notes string   `json:"notes,omitempty"`
}

// ExpectedOutput describes what the engine should produce.
type ExpectedOutput struct {
	Description string `json:"description,omitempty"`
	Format      string `json:"format,omitempty"`
	Schema      string `json:"schema,omitempty"`
}

// ToolInvocation records one tool call. Array order in Response.Outputs is
// the ground truth for chronological order.
type ToolInvocation struct {
	Tool   string         `json:"tool"`
	Input  map[string]any `json:"input"`
	Result any            `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Response is the document written exactly once per attempt.
type Response struct {
	Version    string           `json:"version"`
	TaskID     string           `json:"task_id"`
	Status     string           `json:"status"`
	Summary    string           `json:"summary"`
	Outputs    []ToolInvocation `json:"outputs"`
	Validation []string         `json:"validation,omitempty"`
	Issues     []string         `json:"issues"`
}

// TokenUsage accumulates billed units across the iterations of one
// API-engine attempt. Counts only ever grow.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	APICallsCount    int `json:"api_calls_count"`
}

// AddCall records usage from one model round-trip.
func (u *TokenUsage) AddCall(prompt, completion int) {
	u.PromptTokens += prompt
	u.CompletionTokens += completion
	u.TotalTokens += prompt + completion
	u.APICallsCount++
}

// ValidStatus reports whether s is one of the three enumerated values.
func ValidStatus(s string) bool {
	return s == StatusSuccess || s == StatusPartial || s == StatusFailed
}
