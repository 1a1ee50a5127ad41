package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vinayprograms/subagent/internal/contract"
	"github.com/vinayprograms/subagent/internal/llm"
	"github.com/vinayprograms/subagent/internal/logging"
	"github.com/vinayprograms/subagent/internal/tools"
)

// APIEngine drives a hosted model through a tool-use loop. Every tool call
// the model makes is executed in order and recorded; the model's final text
// is parsed as the response document.
type APIEngine struct {
	Provider      llm.Provider
	Tools         *tools.Registry
	SystemPrompt  string
	MaxIterations int
	Log           *logging.Logger
}

func (e *APIEngine) Name() string { return "api" }

func (e *APIEngine) Run(ctx context.Context, req *contract.Request, rawRequest []byte) (*Outcome, error) {
	maxIter := e.MaxIterations
	if maxIter <= 0 {
		maxIter = 25
	}
	log := e.Log
	if log == nil {
		log = logging.New()
	}

	start := time.Now()
	var usage contract.TokenUsage
	outputs := []contract.ToolInvocation{}
	var transcript strings.Builder

	defs := e.Tools.Definitions()
	toolDefs := make([]llm.ToolDef, 0, len(defs))
	for _, d := range defs {
		toolDefs = append(toolDefs, llm.ToolDef{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}

	messages := []llm.Message{
		{Role: "system", Content: e.SystemPrompt},
		{Role: "user", Content: requestMessage(rawRequest)},
	}

	outcome := func(resp *contract.Response, raw []byte, exitCode int) *Outcome {
		return &Outcome{
			Response:    resp,
			ResponseRaw: raw,
			Transcript:  transcript.String(),
			ExitCode:    exitCode,
			StderrTail:  tail(transcript.String(), stderrTailBytes),
			Duration:    time.Since(start),
			Usage:       usage,
		}
	}

	for iter := 1; iter <= maxIter; iter++ {
		resp, err := e.Provider.Chat(ctx, llm.ChatRequest{
			Messages: messages,
			Tools:    toolDefs,
		})
		if err != nil {
			fmt.Fprintf(&transcript, "[iteration %d] API call failed: %v\n", iter, err)
			log.Error("API call failed", map[string]interface{}{
				"task_id":   req.TaskID,
				"iteration": iter,
				"error":     err.Error(),
			})
			return outcome(nil, nil, -1), err
		}
		usage.AddCall(resp.InputTokens, resp.OutputTokens)
		fmt.Fprintf(&transcript, "[iteration %d] usage prompt=%d completion=%d\n",
			iter, resp.InputTokens, resp.OutputTokens)

		if resp.Content != "" {
			fmt.Fprintf(&transcript, "[iteration %d] assistant: %s\n", iter, resp.Content)
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		if len(resp.ToolCalls) == 0 {
			final := e.parseFinal(req, resp.Content, outputs)
			log.Info("model finished", map[string]interface{}{
				"task_id":    req.TaskID,
				"iterations": iter,
				"status":     final.Status,
				"api_calls":  usage.APICallsCount,
			})
			return outcome(final, []byte(extractJSON(resp.Content)), 0), nil
		}

		for _, tc := range resp.ToolCalls {
			log.ToolCall(tc.Name)
			toolStart := time.Now()
			result, err := e.Tools.Dispatch(ctx, tc.Name, tc.Args)
			log.ToolResult(tc.Name, time.Since(toolStart), err)

			inv := contract.ToolInvocation{
				Tool:  tc.Name,
				Input: tc.Args,
			}
			var feedback string
			if err != nil {
				inv.Error = err.Error()
				feedback = fmt.Sprintf("error: %v", err)
				fmt.Fprintf(&transcript, "[iteration %d] tool %s failed: %v\n", iter, tc.Name, err)
			} else {
				inv.Result = result
				feedback = encodeToolResult(result)
				fmt.Fprintf(&transcript, "[iteration %d] tool %s ok\n", iter, tc.Name)
			}
			outputs = append(outputs, inv)

			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    feedback,
				ToolCallID: tc.ID,
			})
		}
	}

	log.Warn("iteration limit reached", map[string]interface{}{
		"task_id":        req.TaskID,
		"max_iterations": maxIter,
	})
	fmt.Fprintf(&transcript, "iteration limit of %d reached without a final answer\n", maxIter)
	// Work was done, just never concluded: partial, not failed.
	capped := &contract.Response{
		Version: contract.Version,
		TaskID:  req.TaskID,
		Status:  contract.StatusPartial,
		Summary: "maximum iterations reached",
		Outputs: outputs,
		Issues:  []string{fmt.Sprintf("iteration limit of %d reached without a final answer", maxIter)},
	}
	return outcome(capped, nil, 0), nil
}

// parseFinal interprets the model's final text as a response document. The
// orchestrator's own record of tool invocations always replaces whatever the
// model claimed in outputs, and the document is always stamped with the
// request's task_id. Unparseable text becomes a failed response that carries
// the raw text for the caller to inspect.
func (e *APIEngine) parseFinal(req *contract.Request, text string, outputs []contract.ToolInvocation) *contract.Response {
	resp, _, err := contract.ValidateResponse([]byte(extractJSON(text)))
	if err == nil {
		resp.Outputs = outputs
		if resp.Issues == nil {
			resp.Issues = []string{}
		}
		if resp.TaskID != req.TaskID {
			resp.Issues = append(resp.Issues, fmt.Sprintf(
				"model reported task_id %q, replaced with request task_id %q", resp.TaskID, req.TaskID))
			resp.TaskID = req.TaskID
		}
		return resp
	}

	issues := []string{fmt.Sprintf("final model output was not a valid response document: %v", err)}
	if strings.TrimSpace(text) != "" {
		issues = append(issues, "raw output: "+strings.TrimSpace(text))
	}
	return &contract.Response{
		Version: contract.Version,
		TaskID:  req.TaskID,
		Status:  contract.StatusFailed,
		Summary: "subagent finished without a valid response document",
		Outputs: outputs,
		Issues:  issues,
	}
}

func requestMessage(rawRequest []byte) string {
	return "Here is your task request:\n\n```json\n" +
		strings.TrimRight(string(rawRequest), "\n") + "\n```\n"
}

// extractJSON pulls a JSON document out of model text that may wrap it in a
// fenced code block or surrounding prose.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "{") {
		return text
	}
	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		if j := strings.IndexByte(rest, '\n'); j >= 0 {
			rest = rest[j+1:]
		}
		if k := strings.Index(rest, "```"); k >= 0 {
			return strings.TrimSpace(rest[:k])
		}
	}
	if i := strings.IndexByte(text, '{'); i >= 0 {
		if j := strings.LastIndexByte(text, '}'); j > i {
			return text[i : j+1]
		}
	}
	return text
}

func encodeToolResult(result any) string {
	if s, ok := result.(string); ok {
		return s
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(data)
}
