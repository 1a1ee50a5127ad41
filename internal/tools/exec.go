package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

type execTool struct {
	workDir string
	timeout time.Duration
}

func (t *execTool) Name() string { return "execute_command" }

func (t *execTool) Description() string {
	return "Execute a shell command and return its stdout, stderr, and exit code. The command runs with a hard timeout."
}

func (t *execTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Shell command to execute",
			},
			"working_directory": map[string]any{
				"type":        "string",
				"description": "Directory to run the command in (optional)",
			},
		},
		"required": []string{"command"},
	}
}

func (t *execTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	command, err := stringArg(args, "command")
	if err != nil {
		return nil, err
	}
	dir := optStringArg(args, "working_directory", t.workDir)

	cmdCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "/bin/sh", "-c", command)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if cmdCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("command timed out after %s", t.timeout)
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("execute command: %w", runErr)
		}
	}

	// A non-zero exit is a result, not a tool failure. The model sees the
	// exit code and decides what to do next.
	return map[string]any{
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"exit_code": exitCode,
	}, nil
}
