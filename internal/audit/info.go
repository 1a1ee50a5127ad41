package audit

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/subagent/internal/contract"
)

// Info is the attempt metadata record persisted as info.json. It is written
// once when the attempt starts and rewritten with the exit code, duration
// and metrics when it completes.
type Info struct {
	AttemptID        string               `json:"attempt_id"`
	Engine           string               `json:"engine"`
	Model            string               `json:"model,omitempty"`
	StartedAt        time.Time            `json:"started_at"`
	PID              int                  `json:"pid"`
	WorkingDirectory string               `json:"working_directory,omitempty"`
	CommandArgs      []string             `json:"command_args,omitempty"`
	ExitCode         *int                 `json:"exit_code,omitempty"`
	DurationSeconds  float64              `json:"duration_seconds,omitempty"`
	Metrics          *contract.TokenUsage `json:"performance_metrics,omitempty"`
}

// NewInfo creates the metadata record for a starting attempt.
func NewInfo(engine, model, workDir string) *Info {
	return &Info{
		AttemptID:        uuid.NewString(),
		Engine:           engine,
		Model:            model,
		StartedAt:        time.Now().UTC(),
		PID:              os.Getpid(),
		WorkingDirectory: workDir,
	}
}

// WriteInfo persists the metadata record to info.json.
func (a *Attempt) WriteInfo(info *Info) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(a.InfoPath(), append(data, '\n'), 0o644)
}
