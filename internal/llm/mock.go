package llm

import (
	"context"
	"sync"
)

// MockProvider is a scriptable Provider for tests. Responses are consumed
// in order; when the script is exhausted the last response repeats.
type MockProvider struct {
	mu        sync.Mutex
	script    []*ChatResponse
	requests  []ChatRequest
	err       error
	callCount int
}

// NewMockProvider creates an empty mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// SetResponse scripts a single plain-text response with no tool calls.
func (p *MockProvider) SetResponse(content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = []*ChatResponse{{Content: content, StopReason: "end_turn"}}
}

// Enqueue appends a scripted response.
func (p *MockProvider) Enqueue(resp *ChatResponse) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = append(p.script, resp)
}

// SetError makes every Chat call fail with err.
func (p *MockProvider) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Chat implements Provider.
func (p *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Err: err}
	}

	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.script) == 0 {
		return &ChatResponse{StopReason: "end_turn"}, nil
	}

	idx := p.callCount
	if idx >= len(p.script) {
		idx = len(p.script) - 1
	}
	p.callCount++
	return p.script[idx], nil
}

// LastRequest returns the most recent request seen.
func (p *MockProvider) LastRequest() ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return ChatRequest{}
	}
	return p.requests[len(p.requests)-1]
}

// Calls returns the number of Chat invocations.
func (p *MockProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}
