// Package main defines the CLI structure using kong.
package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Run      RunCmd      `cmd:"" help:"Run one subagent attempt"`
	Init     InitCmd     `cmd:"" help:"Create an attempt directory in the audit tree"`
	Validate ValidateCmd `cmd:"" help:"Validate a request or response document"`
	Models   ModelsCmd   `cmd:"" help:"List models known to the catalog"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// RunCmd executes one attempt against the request document in the audit tree.
type RunCmd struct {
	Phase    string `help:"Phase name in the audit tree"`
	Task     string `help:"Task name in the audit tree"`
	Subagent string `help:"Attempt name (default: next unused subagent-NNN)"`

	AuditRoot string `help:"Audit tree root" placeholder:"DIR"`
	Request   string `help:"Explicit request path (bypasses the audit tree, requires --response)" type:"path"`
	Response  string `help:"Explicit response path (bypasses the audit tree, requires --request)" type:"path"`

	Engine     string `default:"process" enum:"process,api" help:"Execution engine"`
	PromptFile string `help:"System prompt file" type:"path"`
	Config     string `help:"Config file path" type:"path"`
	Verbose    bool   `short:"v" help:"Enable debug logging"`

	// Process engine.
	Profile          string   `help:"Agent CLI profile"`
	Sandbox          string   `enum:",read-only,workspace-write,danger-full-access" default:"" help:"Agent CLI sandbox mode"`
	Cd               string   `help:"Working directory for the agent CLI" type:"path"`
	SkipGitRepoCheck bool     `help:"Pass --skip-git-repo-check to the agent CLI"`
	IdleTimeout      int      `help:"Seconds of output silence before termination" placeholder:"SECONDS"`
	ExtraArgs        []string `arg:"" optional:"" passthrough:"" help:"Extra arguments forwarded to the agent CLI"`

	// API engine.
	Provider      string `help:"Hosted provider (default: inferred from model)"`
	Model         string `help:"Model name"`
	APIKey        string `help:"API key (default: provider environment variable)"`
	BaseURL       string `help:"Custom OpenAI-compatible endpoint"`
	MaxIterations int    `help:"Tool-use loop hard cap"`
}

// InitCmd prepares an attempt directory without running anything.
type InitCmd struct {
	Phase     string `arg:"" help:"Phase name"`
	Task      string `arg:"" help:"Task name"`
	Subagent  string `arg:"" optional:"" help:"Attempt name (default: next unused subagent-NNN)"`
	AuditRoot string `help:"Audit tree root" placeholder:"DIR"`
	Config    string `help:"Config file path" type:"path"`
	Template  string `help:"Seed request.json from this file" type:"path"`
	JSON      bool   `help:"Print paths as JSON"`
}

// ValidateCmd checks a document against the contract.
type ValidateCmd struct {
	File   string `arg:"" help:"Document to validate" type:"path"`
	Type   string `default:"auto" enum:"auto,request,response" help:"Document type (default: inferred from filename)"`
	Status string `enum:",success,partial,failed" default:"" help:"Additionally assert this response status"`
	JSON   bool   `help:"Print the result as JSON"`
}

// ModelsCmd lists catalog models.
type ModelsCmd struct {
	Provider string `help:"Only show models from this provider"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
