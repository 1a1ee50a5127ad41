// Package engine runs a single subagent attempt. Two engines exist: a
// process engine that supervises an external CLI agent, and an API engine
// that drives a hosted model through a tool-use loop. Both report the same
// Outcome shape so the assembler can treat them uniformly.
package engine

import (
	"context"
	"time"

	"github.com/vinayprograms/subagent/internal/contract"
)

// Engine executes one attempt against an already-validated request.
type Engine interface {
	// Name identifies the engine in logs and info.json ("process" or "api").
	Name() string
	// Run executes the attempt. A non-nil Outcome is returned even on
	// failure so the assembler can persist whatever was produced. The
	// error is non-nil only for orchestrator-level failures.
	Run(ctx context.Context, req *contract.Request, rawRequest []byte) (*Outcome, error)
}

// Outcome is everything an engine run produced, before assembly.
type Outcome struct {
	// Response is the parsed response document, nil when none was produced.
	Response *contract.Response
	// ResponseRaw is the exact bytes the agent produced. Preserved verbatim
	// when they validate.
	ResponseRaw []byte
	// OnDisk reports whether the agent already wrote ResponseRaw to the
	// audit response path itself.
	OnDisk bool
	// Transcript is the engine's diagnostic stream: child stderr for the
	// process engine, the conversation log for the API engine.
	Transcript string
	// ExitCode is the child exit code. Meaningful for the process engine;
	// the API engine reports 0 on completion and -1 on transport failure.
	ExitCode int
	// TimedOut reports an idle-timeout kill.
	TimedOut bool
	// IdleTimeout is the configured idle window, for fallback messages.
	IdleTimeout time.Duration
	// StderrTail holds the last portion of the transcript for diagnostics.
	StderrTail string
	// Duration is wall-clock time for the run.
	Duration time.Duration
	// Usage is token accounting. Zero for the process engine.
	Usage contract.TokenUsage
}

// tail returns at most n trailing bytes of s, starting at a line boundary
// when one exists in the window.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	t := s[len(s)-n:]
	for i := 0; i < len(t); i++ {
		if t[i] == '\n' {
			return t[i+1:]
		}
	}
	return t
}
