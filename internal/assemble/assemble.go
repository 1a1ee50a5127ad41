// Package assemble turns an engine outcome into the attempt's final
// artifacts: response.json, stderr.txt and the completed info.json. Exactly
// one response document exists per attempt when Finalize returns without
// error, whatever the engine did.
package assemble

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/vinayprograms/subagent/internal/audit"
	"github.com/vinayprograms/subagent/internal/contract"
	"github.com/vinayprograms/subagent/internal/engine"
	"github.com/vinayprograms/subagent/internal/llm"
)

// Result reports what Finalize persisted.
type Result struct {
	// Response is the document now at the attempt's response path.
	Response *contract.Response
	// Fallback is true when the document was synthesized by the
	// orchestrator rather than produced by the agent.
	Fallback bool
}

// Finalize persists the attempt artifacts. It always tries to leave a
// response document behind, including for timeouts and transport failures;
// the returned error covers only artifact-writing problems.
//
// A valid response the agent wrote to disk itself is preserved byte for
// byte. Everything else is rewritten from the selected document.
func Finalize(attempt *audit.Attempt, info *audit.Info, req *contract.Request, outcome *engine.Outcome, runErr error) (*Result, error) {
	if outcome == nil {
		outcome = &engine.Outcome{ExitCode: -1}
	}

	transcript := outcome.Transcript
	if outcome.TimedOut {
		if transcript != "" && !strings.HasSuffix(transcript, "\n") {
			transcript += "\n"
		}
		transcript += fmt.Sprintf("--- terminated: no output for %s ---\n", outcome.IdleTimeout)
	}
	if transcript != "" {
		if err := attempt.WriteStderr(transcript); err != nil {
			return nil, fmt.Errorf("write transcript: %w", err)
		}
	}

	resp, fallback := selectResponse(req, outcome, runErr)

	// Rewrite unless the exact bytes already sit at the response path.
	preserve := false
	if !fallback && outcome.OnDisk && len(outcome.ResponseRaw) > 0 {
		if cur, err := os.ReadFile(attempt.ResponsePath); err == nil && string(cur) == string(outcome.ResponseRaw) {
			preserve = true
		}
	}
	if !preserve {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode response: %w", err)
		}
		if err := os.WriteFile(attempt.ResponsePath, append(data, '\n'), 0o644); err != nil {
			return nil, fmt.Errorf("write response: %w", err)
		}
	}

	if info != nil {
		exit := outcome.ExitCode
		info.ExitCode = &exit
		info.DurationSeconds = outcome.Duration.Seconds()
		if outcome.Usage.APICallsCount > 0 {
			usage := outcome.Usage
			info.Metrics = &usage
		}
		if err := attempt.WriteInfo(info); err != nil {
			return nil, fmt.Errorf("write info: %w", err)
		}
	}

	return &Result{Response: resp, Fallback: fallback}, nil
}

// selectResponse picks the document to persist, in preference order: the
// engine's own parsed document, a valid document the agent wrote to disk,
// then a synthesized failure record.
func selectResponse(req *contract.Request, outcome *engine.Outcome, runErr error) (*contract.Response, bool) {
	if outcome.Response != nil {
		resp := outcome.Response
		if resp.TaskID != req.TaskID {
			resp.Issues = append(resp.Issues, fmt.Sprintf(
				"response task_id %q does not match request task_id %q", resp.TaskID, req.TaskID))
			resp.TaskID = req.TaskID
			return resp, true
		}
		return resp, false
	}

	if len(outcome.ResponseRaw) > 0 {
		if resp, _, err := contract.ValidateResponse(outcome.ResponseRaw); err == nil {
			if resp.TaskID != req.TaskID {
				resp.Issues = append(resp.Issues, fmt.Sprintf(
					"response task_id %q does not match request task_id %q", resp.TaskID, req.TaskID))
				resp.TaskID = req.TaskID
				return resp, true
			}
			return resp, false
		}
	}

	return fallbackResponse(req, outcome, runErr), true
}

func fallbackResponse(req *contract.Request, outcome *engine.Outcome, runErr error) *contract.Response {
	var summary string
	var issues []string

	var transportErr *llm.TransportError
	switch {
	case outcome.TimedOut:
		summary = fmt.Sprintf("subagent produced no output for %s and was terminated", outcome.IdleTimeout)
		issues = append(issues, fmt.Sprintf("idle timeout after %s", outcome.IdleTimeout))
	case errors.As(runErr, &transportErr):
		summary = "subagent could not reach the model API"
		issues = append(issues, transportErr.Error())
	case runErr != nil:
		summary = "subagent run failed"
		issues = append(issues, runErr.Error())
	case len(outcome.ResponseRaw) > 0:
		summary = "subagent wrote an invalid response document"
		_, _, err := contract.ValidateResponse(outcome.ResponseRaw)
		issues = append(issues, fmt.Sprintf("response validation: %v", err))
	default:
		summary = fmt.Sprintf("subagent exited with code %d without writing a response", outcome.ExitCode)
		issues = append(issues, "no response document was produced")
	}

	if tail := strings.TrimSpace(outcome.StderrTail); tail != "" {
		issues = append(issues, "stderr tail: "+tail)
	}

	return &contract.Response{
		Version: contract.Version,
		TaskID:  req.TaskID,
		Status:  contract.StatusFailed,
		Summary: summary,
		Outputs: []contract.ToolInvocation{},
		Issues:  issues,
	}
}
