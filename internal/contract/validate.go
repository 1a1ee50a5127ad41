package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// SchemaError reports every missing or mistyped field found in a document.
type SchemaError struct {
	Doc    string // "request" or "response"
	Errors []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s validation failed: %s", e.Doc, strings.Join(e.Errors, "; "))
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// stripBOM tolerates documents written by tools that emit a UTF-8 BOM.
func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, utf8BOM)
}

// ValidateRequest parses and validates a request document. It returns the
// parsed request, warnings for unknown top-level fields, and a *SchemaError
// enumerating every missing or mistyped field when the document is invalid.
func ValidateRequest(data []byte) (*Request, []string, error) {
	data = stripBOM(data)

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, &SchemaError{Doc: "request", Errors: []string{fmt.Sprintf("request JSON is invalid: %v", err)}}
	}

	var errs []string
	checkString(raw, "version", true, &errs)
	checkString(raw, "task_id", true, &errs)
	checkString(raw, "task", true, &errs)
	checkStringSlice(raw, "constraints", &errs)
	checkStringSlice(raw, "acceptance_criteria", &errs)

	if v, ok := raw["context"]; ok {
		if m, ok := v.(map[string]any); ok {
			checkStringSlice(m, "context.files", &errs, "files")
			checkString(m, "context.notes", false, &errs, "notes")
		} else {
			errs = append(errs, "field context must be an object")
		}
	}
	if v, ok := raw["expected_output"]; ok {
		if m, ok := v.(map[string]any); ok {
			checkString(m, "expected_output.description", false, &errs, "description")
			checkString(m, "expected_output.format", false, &errs, "format")
			checkString(m, "expected_output.schema", false, &errs, "schema")
		} else {
			errs = append(errs, "field expected_output must be an object")
		}
	}

	warnings := unknownFields(raw, []string{
		"version", "task_id", "task", "context", "constraints",
		"expected_output", "acceptance_criteria",
	})

	if len(errs) > 0 {
		return nil, warnings, &SchemaError{Doc: "request", Errors: errs}
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, warnings, &SchemaError{Doc: "request", Errors: []string{fmt.Sprintf("request JSON is invalid: %v", err)}}
	}
	return &req, warnings, nil
}

// ValidateResponse parses and validates a response document, including the
// status enumeration. Like ValidateRequest it enumerates every problem.
func ValidateResponse(data []byte) (*Response, []string, error) {
	data = stripBOM(data)

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, &SchemaError{Doc: "response", Errors: []string{fmt.Sprintf("response JSON is invalid: %v", err)}}
	}

	var errs []string
	checkString(raw, "version", true, &errs)
	checkString(raw, "task_id", true, &errs)
	checkString(raw, "summary", false, &errs)
	checkStringSlice(raw, "validation", &errs)
	checkStringSlice(raw, "issues", &errs)

	if v, ok := raw["status"]; !ok {
		errs = append(errs, "missing required field status")
	} else if s, ok := v.(string); !ok {
		errs = append(errs, "field status must be a string")
	} else if !ValidStatus(s) {
		errs = append(errs, fmt.Sprintf("invalid status %q: must be one of success, partial, failed", s))
	}

	if v, ok := raw["outputs"]; ok {
		if items, ok := v.([]any); ok {
			for i, item := range items {
				if _, ok := item.(map[string]any); !ok {
					errs = append(errs, fmt.Sprintf("outputs[%d] must be an object", i))
				}
			}
		} else {
			errs = append(errs, "field outputs must be an array")
		}
	}

	warnings := unknownFields(raw, []string{
		"version", "task_id", "status", "summary", "outputs", "validation", "issues",
	})

	if len(errs) > 0 {
		return nil, warnings, &SchemaError{Doc: "response", Errors: errs}
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, warnings, &SchemaError{Doc: "response", Errors: []string{fmt.Sprintf("response JSON is invalid: %v", err)}}
	}
	return &resp, warnings, nil
}

func checkString(m map[string]any, label string, required bool, errs *[]string, key ...string) {
	k := label
	if len(key) > 0 {
		k = key[0]
	}
	v, ok := m[k]
	if !ok {
		if required {
			*errs = append(*errs, "missing required field "+label)
		}
		return
	}
	if _, ok := v.(string); !ok {
		*errs = append(*errs, "field "+label+" must be a string")
	}
}

func checkStringSlice(m map[string]any, label string, errs *[]string, key ...string) {
	k := label
	if len(key) > 0 {
		k = key[0]
	}
	v, ok := m[k]
	if !ok {
		return
	}
	items, ok := v.([]any)
	if !ok {
		*errs = append(*errs, "field "+label+" must be an array of strings")
		return
	}
	for i, item := range items {
		if _, ok := item.(string); !ok {
			*errs = append(*errs, fmt.Sprintf("field %s[%d] must be a string", label, i))
		}
	}
}

func unknownFields(m map[string]any, known []string) []string {
	isKnown := make(map[string]bool, len(known))
	for _, k := range known {
		isKnown[k] = true
	}
	var extra []string
	for k := range m {
		if !isKnown[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	var warnings []string
	for _, k := range extra {
		warnings = append(warnings, "unknown field "+k)
	}
	return warnings
}
