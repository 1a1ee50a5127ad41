// Package llm abstracts hosted completion providers with structured tool
// use.
package llm

import (
	"context"
	"fmt"
)

// Message is one conversation turn.
type Message struct {
	Role       string // system, user, assistant, tool
	Content    string
	ToolCalls  []ToolCall // assistant messages only
	ToolCallID string     // tool messages only
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolDef is the model-facing tool definition.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChatRequest carries the full conversation so far plus the tool set.
type ChatRequest struct {
	Messages  []Message
	Tools     []ToolDef
	MaxTokens int
}

// ChatResponse is one model round-trip result, including reported usage.
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	StopReason   string
	InputTokens  int
	OutputTokens int
	Model        string
}

// Provider is a hosted completion API.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// TransportError marks an unrecoverable transport or auth failure calling
// the hosted API. It is surfaced, never retried internally; a retry is a new
// attempt chosen by the caller.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("API call failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
