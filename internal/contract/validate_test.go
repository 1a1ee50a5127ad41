package contract

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateRequest_Valid(t *testing.T) {
	data := []byte(`{
		"version": "1.0",
		"task_id": "task-001",
		"task": "create file X",
		"context": {"files": ["a.go"], "notes": "see a.go"},
		"constraints": ["no network"],
		"expected_output": {"description": "a file", "format": "text"},
		"acceptance_criteria": ["file exists"]
	}`)

	req, warnings, err := ValidateRequest(data)
	if err != nil {
		t.Fatalf("validate error: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if req.TaskID != "task-001" {
		t.Errorf("task_id = %q, want task-001", req.TaskID)
	}
	if len(req.Context.Files) != 1 || req.Context.Files[0] != "a.go" {
		t.Errorf("context.files = %v", req.Context.Files)
	}
}

func TestValidateRequest_EnumeratesAllErrors(t *testing.T) {
	data := []byte(`{
		"task": 42,
		"constraints": "not a list",
		"context": {"files": [1]}
	}`)

	_, _, err := ValidateRequest(data)
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SchemaError, got %v", err)
	}

	wants := []string{
		"missing required field version",
		"missing required field task_id",
		"field task must be a string",
		"field constraints must be an array of strings",
		"field context.files[0] must be a string",
	}
	for _, want := range wants {
		found := false
		for _, got := range se.Errors {
			if got == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing error %q in %v", want, se.Errors)
		}
	}
}

func TestValidateRequest_UnknownFieldsAreWarnings(t *testing.T) {
	data := []byte(`{"version":"1.0","task_id":"t","task":"x","bogus":true}`)

	req, warnings, err := ValidateRequest(data)
	if err != nil {
		t.Fatalf("validate error: %v", err)
	}
	if req == nil {
		t.Fatal("expected parsed request")
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "bogus") {
		t.Errorf("warnings = %v, want one mentioning bogus", warnings)
	}
}

func TestValidateRequest_InvalidJSON(t *testing.T) {
	_, _, err := ValidateRequest([]byte("{not json"))
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SchemaError, got %v", err)
	}
	if !strings.Contains(se.Errors[0], "invalid") {
		t.Errorf("error = %v", se.Errors)
	}
}

func TestValidateRequest_StripsBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`{"version":"1.0","task_id":"t","task":"x"}`)...)
	if _, _, err := ValidateRequest(data); err != nil {
		t.Fatalf("BOM-prefixed request rejected: %v", err)
	}
}

func TestValidateResponse_StatusEnum(t *testing.T) {
	tests := []struct {
		status string
		valid  bool
	}{
		{"success", true},
		{"partial", true},
		{"failed", true},
		{"done", false},
		{"", false},
	}

	for _, tt := range tests {
		data := []byte(`{"version":"1.0","task_id":"t","status":"` + tt.status + `","summary":"","outputs":[],"issues":[]}`)
		_, _, err := ValidateResponse(data)
		if tt.valid && err != nil {
			t.Errorf("status %q: unexpected error %v", tt.status, err)
		}
		if !tt.valid && err == nil {
			t.Errorf("status %q: expected error", tt.status)
		}
	}
}

func TestValidateResponse_MissingFields(t *testing.T) {
	_, _, err := ValidateResponse([]byte(`{"summary":"done"}`))
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SchemaError, got %v", err)
	}
	joined := strings.Join(se.Errors, "; ")
	for _, want := range []string{"version", "task_id", "status"} {
		if !strings.Contains(joined, want) {
			t.Errorf("errors missing mention of %s: %s", want, joined)
		}
	}
}

func TestValidateResponse_OutputsShape(t *testing.T) {
	data := []byte(`{"version":"1.0","task_id":"t","status":"success","summary":"","outputs":["oops"],"issues":[]}`)
	_, _, err := ValidateResponse(data)
	if err == nil {
		t.Fatal("expected error for non-object output entry")
	}
}

func TestTokenUsage_AddCall(t *testing.T) {
	var u TokenUsage
	u.AddCall(100, 20)
	u.AddCall(250, 30)

	if u.PromptTokens != 350 || u.CompletionTokens != 50 {
		t.Errorf("prompt=%d completion=%d", u.PromptTokens, u.CompletionTokens)
	}
	if u.TotalTokens != 400 {
		t.Errorf("total=%d, want 400", u.TotalTokens)
	}
	if u.APICallsCount != 2 {
		t.Errorf("api_calls=%d, want 2", u.APICallsCount)
	}
}
