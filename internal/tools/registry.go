// Package tools provides the closed tool set available to the API engine.
//
// The capability set is fixed: read_file, write_file, execute_command,
// list_directory, search_files. Each tool is independently time-bounded and
// a failure in one call never aborts the engine loop; it is returned as a
// typed error visible to the model.
package tools

import (
	"context"
	"fmt"
	"time"
)

// Tool represents an executable tool.
type Tool interface {
	// Name returns the tool name.
	Name() string
	// Description returns a description for the model.
	Description() string
	// Parameters returns the JSON schema for parameters.
	Parameters() map[string]any
	// Execute runs the tool with the given arguments.
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// Definition is the model-facing tool definition.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Limits bounds each capability. Zero values are filled by DefaultLimits.
type Limits struct {
	ExecTimeout    time.Duration // execute_command total cap
	SearchTimeout  time.Duration // search_files cap
	MaxSearchBytes int           // search_files result-size cap
}

// DefaultLimits returns the documented defaults.
func DefaultLimits() Limits {
	return Limits{
		ExecTimeout:    300 * time.Second,
		SearchTimeout:  60 * time.Second,
		MaxSearchBytes: 256 * 1024,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.ExecTimeout <= 0 {
		l.ExecTimeout = d.ExecTimeout
	}
	if l.SearchTimeout <= 0 {
		l.SearchTimeout = d.SearchTimeout
	}
	if l.MaxSearchBytes <= 0 {
		l.MaxSearchBytes = d.MaxSearchBytes
	}
	return l
}

// NotFoundError reports a missing file or path.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Path)
}

// ToolError wraps a failed invocation of one tool. Non-fatal: the engine
// records it and feeds it back to the model.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Registry holds the closed tool set.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates a registry with the built-in tools. workDir is the
// default working directory for execute_command.
func NewRegistry(workDir string, limits Limits) *Registry {
	limits = limits.withDefaults()
	r := &Registry{tools: make(map[string]Tool)}
	r.register(&readFileTool{})
	r.register(&writeFileTool{})
	r.register(&execTool{workDir: workDir, timeout: limits.ExecTimeout})
	r.register(&listDirectoryTool{})
	r.register(&searchFilesTool{timeout: limits.SearchTimeout, maxBytes: limits.MaxSearchBytes})
	return r
}

func (r *Registry) register(t Tool) {
	r.tools[t.Name()] = t
	r.order = append(r.order, t.Name())
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) Tool {
	return r.tools[name]
}

// Definitions returns model-facing definitions in registration order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, Definition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// Dispatch executes the named tool, wrapping failures as *ToolError.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (any, error) {
	t := r.Get(name)
	if t == nil {
		return nil, &ToolError{Tool: name, Err: fmt.Errorf("unknown tool")}
	}
	result, err := t.Execute(ctx, args)
	if err != nil {
		return nil, &ToolError{Tool: name, Err: err}
	}
	return result, nil
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

func optStringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
