package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vinayprograms/subagent/internal/assemble"
	"github.com/vinayprograms/subagent/internal/audit"
	"github.com/vinayprograms/subagent/internal/config"
	"github.com/vinayprograms/subagent/internal/contract"
	"github.com/vinayprograms/subagent/internal/engine"
	"github.com/vinayprograms/subagent/internal/llm"
	"github.com/vinayprograms/subagent/internal/logging"
	"github.com/vinayprograms/subagent/internal/tools"
)

// Run executes one subagent attempt. The exit is zero whenever a response
// document was produced, including timeouts and failed tasks; a non-zero
// exit means the orchestrator itself could not run the attempt.
func (c *RunCmd) Run(ctx context.Context) error {
	cfg, err := config.LoadOrDefault(c.Config)
	if err != nil {
		return err
	}
	c.applyOverrides(cfg)

	log := logging.New().WithComponent(c.Engine)
	if c.Verbose {
		log.SetLevel(logging.LevelDebug)
	}

	attempt, err := c.resolveAttempt(cfg)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(attempt.RequestPath)
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	req, warnings, err := contract.ValidateRequest(raw)
	if err != nil {
		var schemaErr *contract.SchemaError
		if errors.As(err, &schemaErr) {
			for _, e := range schemaErr.Errors {
				fmt.Fprintf(os.Stderr, "request: %s\n", e)
			}
		}
		return fmt.Errorf("invalid request document: %w", err)
	}
	for _, w := range warnings {
		log.Warn("request warning", map[string]interface{}{"warning": w})
	}

	prompt, err := engine.LoadPrompt(cfg.Audit.PromptFile)
	if err != nil {
		return err
	}

	eng, info, err := c.buildEngine(cfg, attempt, prompt, raw, log)
	if err != nil {
		return err
	}
	if err := attempt.WriteInfo(info); err != nil {
		return fmt.Errorf("write info: %w", err)
	}

	log.AttemptStart(eng.Name(), req.TaskID)
	outcome, runErr := eng.Run(ctx, req, raw)

	res, err := assemble.Finalize(attempt, info, req, outcome, runErr)
	if err != nil {
		return err
	}
	var duration time.Duration
	if outcome != nil {
		duration = outcome.Duration
	}
	log.AttemptComplete(eng.Name(), req.TaskID, res.Response.Status, duration)
	fmt.Println(attempt.ResponsePath)

	// A fallback document downgrades the attempt, not the orchestrator.
	// Transport failures are the one engine error that stays fatal.
	var transportErr *llm.TransportError
	if errors.As(runErr, &transportErr) {
		return runErr
	}
	return nil
}

func (c *RunCmd) applyOverrides(cfg *config.Config) {
	if c.AuditRoot != "" {
		cfg.Audit.Root = c.AuditRoot
	}
	if c.PromptFile != "" {
		cfg.Audit.PromptFile = c.PromptFile
	}
	if c.Profile != "" {
		cfg.Process.Profile = c.Profile
	}
	if c.Sandbox != "" {
		cfg.Process.Sandbox = c.Sandbox
	}
	if c.Cd != "" {
		cfg.Process.WorkDir = c.Cd
	}
	if c.IdleTimeout > 0 {
		cfg.Process.IdleTimeout = c.IdleTimeout
	}
	if c.Provider != "" {
		cfg.LLM.Provider = c.Provider
	}
	if c.Model != "" {
		cfg.LLM.Model = c.Model
	}
	if c.BaseURL != "" {
		cfg.LLM.BaseURL = c.BaseURL
	}
	if c.MaxIterations > 0 {
		cfg.LLM.MaxIterations = c.MaxIterations
	}
}

func (c *RunCmd) resolveAttempt(cfg *config.Config) (*audit.Attempt, error) {
	if c.Request != "" || c.Response != "" {
		return audit.Resolve(c.Request, c.Response)
	}
	if c.Phase == "" || c.Task == "" {
		return nil, errors.New("either --phase and --task, or --request and --response, are required")
	}
	subagent := c.Subagent
	if subagent == "" {
		subagent = audit.NextSubagent(cfg.Audit.Root, c.Phase, c.Task)
	}
	return audit.Ensure(cfg.Audit.Root, c.Phase, c.Task, subagent)
}

func (c *RunCmd) buildEngine(cfg *config.Config, attempt *audit.Attempt, prompt string, raw []byte, log *logging.Logger) (engine.Engine, *audit.Info, error) {
	switch c.Engine {
	case "process":
		args := engine.CodexArgs(
			cfg.Process.Profile,
			cfg.Process.Sandbox,
			cfg.Process.WorkDir,
			c.SkipGitRepoCheck,
			attempt.ResponsePath,
			append(cfg.Process.Args, c.ExtraArgs...),
		)
		info := audit.NewInfo("process", "", cfg.Process.WorkDir)
		info.CommandArgs = append([]string{cfg.Process.Command}, args...)
		eng := &engine.ProcessEngine{
			Command:      cfg.Process.Command,
			Args:         args,
			Dir:          cfg.Process.WorkDir,
			Stdin:        engine.BuildUserMessage(prompt, raw),
			ResponsePath: attempt.ResponsePath,
			IdleTimeout:  time.Duration(cfg.Process.IdleTimeout) * time.Second,
			TermGrace:    time.Duration(cfg.Process.TermGrace) * time.Second,
			Log:          log,
		}
		return eng, info, nil

	case "api":
		provider := cfg.LLM.Provider
		if provider == "" {
			provider = llm.InferProviderFromModel(cfg.LLM.Model)
		}
		p, err := llm.NewProvider(llm.Config{
			Provider:  provider,
			Model:     cfg.LLM.Model,
			APIKey:    c.resolveAPIKey(cfg, provider),
			BaseURL:   cfg.LLM.BaseURL,
			MaxTokens: cfg.LLM.MaxTokens,
		})
		if err != nil {
			return nil, nil, err
		}
		registry := tools.NewRegistry(cfg.Process.WorkDir, tools.Limits{
			ExecTimeout:    time.Duration(cfg.Tools.ExecTimeout) * time.Second,
			SearchTimeout:  time.Duration(cfg.Tools.SearchTimeout) * time.Second,
			MaxSearchBytes: cfg.Tools.MaxSearchBytes,
		})
		info := audit.NewInfo("api", cfg.LLM.Model, cfg.Process.WorkDir)
		eng := &engine.APIEngine{
			Provider:      p,
			Tools:         registry,
			SystemPrompt:  prompt,
			MaxIterations: cfg.LLM.MaxIterations,
			Log:           log,
		}
		return eng, info, nil

	default:
		return nil, nil, fmt.Errorf("unknown engine %q", c.Engine)
	}
}

// resolveAPIKey prefers the flag, then the configured env var, then the
// provider's conventional env var.
func (c *RunCmd) resolveAPIKey(cfg *config.Config, provider string) string {
	if c.APIKey != "" {
		return c.APIKey
	}
	if cfg.LLM.APIKeyEnv != "" {
		return os.Getenv(cfg.LLM.APIKeyEnv)
	}
	switch provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "google":
		return os.Getenv("GEMINI_API_KEY")
	case "openrouter":
		return os.Getenv("OPENROUTER_API_KEY")
	default:
		return ""
	}
}

// Run creates the attempt directory and prints its paths.
func (c *InitCmd) Run() error {
	cfg, err := config.LoadOrDefault(c.Config)
	if err != nil {
		return err
	}
	root := cfg.Audit.Root
	if c.AuditRoot != "" {
		root = c.AuditRoot
	}

	subagent := c.Subagent
	if subagent == "" {
		subagent = audit.NextSubagent(root, c.Phase, c.Task)
	}
	attempt, err := audit.Ensure(root, c.Phase, c.Task, subagent)
	if err != nil {
		return err
	}

	if c.Template != "" {
		data, err := os.ReadFile(c.Template)
		if err != nil {
			return fmt.Errorf("read template: %w", err)
		}
		if _, err := os.Stat(attempt.RequestPath); err == nil {
			return fmt.Errorf("request already exists: %s", attempt.RequestPath)
		}
		if err := os.WriteFile(attempt.RequestPath, data, 0o644); err != nil {
			return fmt.Errorf("seed request: %w", err)
		}
	}

	if c.JSON {
		out, err := json.MarshalIndent(map[string]string{
			"dir":      attempt.Dir,
			"request":  attempt.RequestPath,
			"response": attempt.ResponsePath,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	fmt.Println(attempt.Dir)
	fmt.Println(attempt.RequestPath)
	fmt.Println(attempt.ResponsePath)
	return nil
}

// Run validates one document and reports every problem it finds.
func (c *ValidateCmd) Run() error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}

	docType := c.Type
	if docType == "auto" {
		base := strings.ToLower(filepath.Base(c.File))
		switch {
		case strings.Contains(base, "request"):
			docType = "request"
		case strings.Contains(base, "response"):
			docType = "response"
		default:
			return fmt.Errorf("cannot infer document type from %q; use --type", c.File)
		}
	}

	var warnings []string
	var resp *contract.Response
	if docType == "request" {
		_, warnings, err = contract.ValidateRequest(data)
	} else {
		resp, warnings, err = contract.ValidateResponse(data)
	}

	var problems []string
	if err != nil {
		var schemaErr *contract.SchemaError
		if errors.As(err, &schemaErr) {
			problems = schemaErr.Errors
		} else {
			problems = []string{err.Error()}
		}
	}
	if err == nil && c.Status != "" {
		if docType != "response" {
			return errors.New("--status applies only to response documents")
		}
		if resp.Status != c.Status {
			problems = append(problems, fmt.Sprintf("status is %q, expected %q", resp.Status, c.Status))
		}
	}

	if c.JSON {
		out, jerr := json.MarshalIndent(map[string]any{
			"file":     c.File,
			"type":     docType,
			"valid":    len(problems) == 0,
			"errors":   problems,
			"warnings": warnings,
		}, "", "  ")
		if jerr != nil {
			return jerr
		}
		fmt.Println(string(out))
		if len(problems) > 0 {
			return fmt.Errorf("%s is not a valid %s document", c.File, docType)
		}
		return nil
	}

	for _, w := range warnings {
		fmt.Printf("warning: %s\n", w)
	}
	for _, p := range problems {
		fmt.Fprintf(os.Stderr, "invalid: %s\n", p)
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s is not a valid %s document", c.File, docType)
	}
	fmt.Println("valid")
	return nil
}

// Run lists catalog models, optionally filtered by provider.
func (c *ModelsCmd) Run(ctx context.Context) error {
	models, err := llm.ListAllModels(ctx)
	if err != nil {
		return err
	}
	for _, m := range models {
		if c.Provider != "" && m.Provider != c.Provider {
			continue
		}
		fmt.Printf("%-14s %-44s ctx=%d $%.2f/$%.2f per 1M\n",
			m.Provider, m.ID, m.ContextWindow, m.CostPer1MIn, m.CostPer1MOut)
	}
	return nil
}
