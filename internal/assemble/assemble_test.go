package assemble

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/vinayprograms/subagent/internal/audit"
	"github.com/vinayprograms/subagent/internal/contract"
	"github.com/vinayprograms/subagent/internal/engine"
	"github.com/vinayprograms/subagent/internal/llm"
)

func testAttempt(t *testing.T) *audit.Attempt {
	t.Helper()
	attempt, err := audit.Ensure(t.TempDir(), "phase-1", "task-1", "subagent-001")
	if err != nil {
		t.Fatal(err)
	}
	return attempt
}

func testReq() *contract.Request {
	return &contract.Request{Version: "1.0", TaskID: "T-1", Task: "do the thing"}
}

func TestFinalize_PreservesValidOnDiskResponse(t *testing.T) {
	attempt := testAttempt(t)
	// Deliberately compact formatting: the bytes must survive untouched.
	raw := []byte(`{"version":"1.0","task_id":"T-1","status":"success","summary":"done","outputs":[],"issues":[]}`)
	if err := os.WriteFile(attempt.ResponsePath, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := Finalize(attempt, nil, testReq(), &engine.Outcome{
		ResponseRaw: raw,
		OnDisk:      true,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Fallback {
		t.Error("valid response marked as fallback")
	}
	if res.Response.Status != contract.StatusSuccess {
		t.Errorf("status = %q", res.Response.Status)
	}

	got, _ := os.ReadFile(attempt.ResponsePath)
	if string(got) != string(raw) {
		t.Errorf("on-disk response was rewritten: %q", got)
	}
}

func TestFinalize_TimeoutFallback(t *testing.T) {
	attempt := testAttempt(t)
	res, err := Finalize(attempt, nil, testReq(), &engine.Outcome{
		TimedOut:    true,
		IdleTimeout: 60 * time.Second,
		ExitCode:    -1,
		Transcript:  "last sign of life",
		StderrTail:  "last sign of life",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if !res.Fallback {
		t.Error("timeout should produce a fallback document")
	}
	if res.Response.Status != contract.StatusFailed {
		t.Errorf("status = %q", res.Response.Status)
	}
	if res.Response.TaskID != "T-1" {
		t.Errorf("task_id = %q", res.Response.TaskID)
	}

	var sawTimeout, sawTail bool
	for _, issue := range res.Response.Issues {
		if strings.Contains(issue, "idle timeout") {
			sawTimeout = true
		}
		if strings.Contains(issue, "last sign of life") {
			sawTail = true
		}
	}
	if !sawTimeout || !sawTail {
		t.Errorf("issues = %v", res.Response.Issues)
	}

	var onDisk contract.Response
	data, err := os.ReadFile(attempt.ResponsePath)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatal(err)
	}
	if onDisk.Status != contract.StatusFailed {
		t.Errorf("persisted status = %q", onDisk.Status)
	}

	transcript, err := os.ReadFile(attempt.StderrPath())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(transcript), "terminated: no output for 1m0s") {
		t.Errorf("timeout marker missing from transcript: %q", transcript)
	}
}

func TestFinalize_InvalidOnDiskResponse(t *testing.T) {
	attempt := testAttempt(t)
	raw := []byte(`{"version":"1.0","status":"maybe"}`)
	if err := os.WriteFile(attempt.ResponsePath, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := Finalize(attempt, nil, testReq(), &engine.Outcome{
		ResponseRaw: raw,
		OnDisk:      true,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Fallback {
		t.Error("invalid document should be replaced by a fallback")
	}
	var sawValidation bool
	for _, issue := range res.Response.Issues {
		if strings.Contains(issue, "validation") {
			sawValidation = true
		}
	}
	if !sawValidation {
		t.Errorf("issues = %v", res.Response.Issues)
	}
}

func TestFinalize_TaskIDMismatch(t *testing.T) {
	attempt := testAttempt(t)
	raw := []byte(`{"version":"1.0","task_id":"T-OTHER","status":"success","summary":"done","outputs":[],"issues":[]}`)

	res, err := Finalize(attempt, nil, testReq(), &engine.Outcome{
		ResponseRaw: raw,
		OnDisk:      false,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Fallback {
		t.Error("mismatch should be flagged")
	}
	if res.Response.TaskID != "T-1" {
		t.Errorf("task_id = %q, want the request's T-1", res.Response.TaskID)
	}
	var saw bool
	for _, issue := range res.Response.Issues {
		if strings.Contains(issue, "does not match request task_id") {
			saw = true
		}
	}
	if !saw {
		t.Errorf("issues = %v", res.Response.Issues)
	}
}

func TestFinalize_EngineResponseTaskIDMismatch(t *testing.T) {
	attempt := testAttempt(t)
	outcome := &engine.Outcome{
		Response: &contract.Response{
			Version: contract.Version,
			TaskID:  "T-OTHER",
			Status:  contract.StatusSuccess,
			Summary: "done",
			Outputs: []contract.ToolInvocation{},
			Issues:  []string{},
		},
	}

	res, err := Finalize(attempt, nil, testReq(), outcome, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Fallback {
		t.Error("mismatch should be flagged")
	}
	if res.Response.TaskID != "T-1" {
		t.Errorf("task_id = %q, want the request's T-1", res.Response.TaskID)
	}

	data, err := os.ReadFile(attempt.ResponsePath)
	if err != nil {
		t.Fatal(err)
	}
	var onDisk contract.Response
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatal(err)
	}
	if onDisk.TaskID != "T-1" {
		t.Errorf("persisted task_id = %q, want the request's T-1", onDisk.TaskID)
	}
	var saw bool
	for _, issue := range onDisk.Issues {
		if strings.Contains(issue, "T-OTHER") {
			saw = true
		}
	}
	if !saw {
		t.Errorf("persisted issues = %v", onDisk.Issues)
	}
}

func TestFinalize_TransportErrorFallback(t *testing.T) {
	attempt := testAttempt(t)
	runErr := &llm.TransportError{Err: errors.New("connection refused")}
	res, err := Finalize(attempt, nil, testReq(), &engine.Outcome{ExitCode: -1}, runErr)
	if err != nil {
		t.Fatal(err)
	}
	if res.Response.Status != contract.StatusFailed {
		t.Errorf("status = %q", res.Response.Status)
	}
	var saw bool
	for _, issue := range res.Response.Issues {
		if strings.Contains(issue, "API call failed") {
			saw = true
		}
	}
	if !saw {
		t.Errorf("issues = %v", res.Response.Issues)
	}
}

func TestFinalize_PrefersEngineResponse(t *testing.T) {
	attempt := testAttempt(t)
	parsed := &contract.Response{
		Version: contract.Version,
		TaskID:  "T-1",
		Status:  contract.StatusPartial,
		Summary: "engine-assembled",
		Outputs: []contract.ToolInvocation{{Tool: "read_file", Input: map[string]any{"path": "x"}}},
	}

	res, err := Finalize(attempt, nil, testReq(), &engine.Outcome{Response: parsed}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Fallback {
		t.Error("engine response marked as fallback")
	}
	if res.Response.Summary != "engine-assembled" {
		t.Errorf("summary = %q", res.Response.Summary)
	}
	if len(res.Response.Outputs) != 1 {
		t.Errorf("outputs = %+v", res.Response.Outputs)
	}
}

func TestFinalize_WritesTranscriptAndInfo(t *testing.T) {
	attempt := testAttempt(t)
	info := audit.NewInfo("api", "claude-sonnet-4-5-20250929", "/work")

	outcome := &engine.Outcome{
		Response:   &contract.Response{Version: "1.0", TaskID: "T-1", Status: contract.StatusSuccess, Summary: "ok"},
		Transcript: "[iteration 1] assistant: done\n",
		ExitCode:   0,
		Duration:   1500 * time.Millisecond,
	}
	outcome.Usage.AddCall(100, 20)

	if _, err := Finalize(attempt, info, testReq(), outcome, nil); err != nil {
		t.Fatal(err)
	}

	transcript, err := os.ReadFile(attempt.StderrPath())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(transcript), "assistant: done") {
		t.Errorf("transcript = %q", transcript)
	}

	data, err := os.ReadFile(attempt.InfoPath())
	if err != nil {
		t.Fatal(err)
	}
	var got audit.Info
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ExitCode == nil || *got.ExitCode != 0 {
		t.Errorf("exit_code = %v", got.ExitCode)
	}
	if got.DurationSeconds != 1.5 {
		t.Errorf("duration = %v", got.DurationSeconds)
	}
	if got.Metrics == nil || got.Metrics.APICallsCount != 1 || got.Metrics.TotalTokens != 120 {
		t.Errorf("metrics = %+v", got.Metrics)
	}
}

func TestFinalize_NilOutcome(t *testing.T) {
	attempt := testAttempt(t)
	res, err := Finalize(attempt, nil, testReq(), nil, errors.New("engine never started"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Response.Status != contract.StatusFailed {
		t.Errorf("status = %q", res.Response.Status)
	}
}
