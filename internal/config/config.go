// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config represents the orchestrator configuration.
type Config struct {
	Audit   AuditConfig   `toml:"audit"`
	LLM     LLMConfig     `toml:"llm"`
	Process ProcessConfig `toml:"process"`
	Tools   ToolsConfig   `toml:"tools"`
}

// AuditConfig contains audit tree settings.
type AuditConfig struct {
	Root       string `toml:"root"`        // Audit root directory
	PromptFile string `toml:"prompt_file"` // Base prompt for execution agents
}

// LLMConfig contains hosted API engine settings.
type LLMConfig struct {
	Provider      string `toml:"provider"` // Inferred from model when empty
	Model         string `toml:"model"`
	APIKeyEnv     string `toml:"api_key_env"`
	BaseURL       string `toml:"base_url"` // Custom endpoint (OpenRouter, LiteLLM, Ollama)
	MaxTokens     int    `toml:"max_tokens"`
	MaxIterations int    `toml:"max_iterations"` // Tool-use loop hard cap
}

// ProcessConfig contains process engine settings.
type ProcessConfig struct {
	Command     string   `toml:"command"` // Execution agent CLI
	Args        []string `toml:"args,omitempty"`
	Profile     string   `toml:"profile"`
	Sandbox     string   `toml:"sandbox"`
	WorkDir     string   `toml:"work_dir"`
	IdleTimeout int      `toml:"idle_timeout"` // Seconds of output silence before termination
	TermGrace   int      `toml:"term_grace"`   // Seconds between SIGTERM and SIGKILL
}

// ToolsConfig contains tool dispatcher limits. Documented defaults, not
// hard-coded: every value here is overridable.
type ToolsConfig struct {
	ExecTimeout    int `toml:"exec_timeout"`     // Seconds, execute_command total cap
	SearchTimeout  int `toml:"search_timeout"`   // Seconds, search_files cap
	MaxSearchBytes int `toml:"max_search_bytes"` // Result-size cap for search_files
}

// Default returns the configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads a toml configuration file and applies defaults for anything
// unset.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// LoadOrDefault loads the file when it exists, otherwise returns defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// ApplyDefaults fills in zero values.
func (c *Config) ApplyDefaults() {
	if c.Audit.Root == "" {
		c.Audit.Root = ".agent/audit"
	}
	if c.Audit.PromptFile == "" {
		c.Audit.PromptFile = ".agent/docs/subagent_prompt.md"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "claude-sonnet-4-5-20250929"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 4096
	}
	if c.LLM.MaxIterations == 0 {
		c.LLM.MaxIterations = 25
	}
	if c.Process.Command == "" {
		c.Process.Command = "codex"
	}
	if c.Process.WorkDir == "" {
		c.Process.WorkDir = "."
	}
	if c.Process.IdleTimeout == 0 {
		c.Process.IdleTimeout = 60
	}
	if c.Process.TermGrace == 0 {
		c.Process.TermGrace = 5
	}
	if c.Tools.ExecTimeout == 0 {
		c.Tools.ExecTimeout = 300
	}
	if c.Tools.SearchTimeout == 0 {
		c.Tools.SearchTimeout = 60
	}
	if c.Tools.MaxSearchBytes == 0 {
		c.Tools.MaxSearchBytes = 256 * 1024
	}
}
