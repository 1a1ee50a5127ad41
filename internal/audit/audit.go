// Package audit manages the append-only per-attempt directory tree.
//
// One attempt is identified by a (phase, task, subagent) triple and owns
// one directory holding request.json, response.json and engine-produced
// side artifacts. Attempts never mutate a prior attempt's files; a retry is
// a fresh subagent-NNN directory.
package audit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	requestFile  = "request.json"
	responseFile = "response.json"
	stderrFile   = "stderr.txt"
	infoFile     = "info.json"
)

// PathConflict reports an audit path component that exists and is not a
// directory.
type PathConflict struct {
	Path string
}

func (e *PathConflict) Error() string {
	return fmt.Sprintf("audit path exists and is not a directory: %s", e.Path)
}

// Attempt is one resolved attempt directory.
type Attempt struct {
	Dir          string
	RequestPath  string
	ResponsePath string
}

// Ensure creates the attempt directory for the given triple and returns its
// paths. It is idempotent: repeated calls with the same triple return the
// same paths and never delete existing files.
func Ensure(root, phase, task, subagent string) (*Attempt, error) {
	if phase == "" || task == "" || subagent == "" {
		return nil, errors.New("phase, task and subagent are all required")
	}
	dir := filepath.Join(root, phase, task, subagent)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		if conflict := findConflict(dir); conflict != "" {
			return nil, &PathConflict{Path: conflict}
		}
		return nil, fmt.Errorf("create attempt directory: %w", err)
	}
	return &Attempt{
		Dir:          dir,
		RequestPath:  filepath.Join(dir, requestFile),
		ResponsePath: filepath.Join(dir, responseFile),
	}, nil
}

// Resolve bypasses tree creation for direct invocation with explicit paths.
func Resolve(requestPath, responsePath string) (*Attempt, error) {
	if requestPath == "" || responsePath == "" {
		return nil, errors.New("both request and response paths are required")
	}
	return &Attempt{
		Dir:          filepath.Dir(responsePath),
		RequestPath:  requestPath,
		ResponsePath: responsePath,
	}, nil
}

// NextSubagent returns the first unused subagent-NNN name under the task,
// implementing the retry-sequence convention.
func NextSubagent(root, phase, task string) string {
	for n := 1; ; n++ {
		name := fmt.Sprintf("subagent-%03d", n)
		if _, err := os.Stat(filepath.Join(root, phase, task, name)); os.IsNotExist(err) {
			return name
		}
	}
}

// StderrPath is the transcript artifact path for this attempt.
func (a *Attempt) StderrPath() string {
	return filepath.Join(a.Dir, stderrFile)
}

// InfoPath is the metadata artifact path for this attempt.
func (a *Attempt) InfoPath() string {
	return filepath.Join(a.Dir, infoFile)
}

// WriteStderr persists the raw transcript artifact.
func (a *Attempt) WriteStderr(text string) error {
	return os.WriteFile(a.StderrPath(), []byte(text), 0o644)
}

// findConflict walks up from dir and returns the first existing path
// component that is not a directory, or "".
func findConflict(dir string) string {
	for p := dir; ; {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return ""
		}
		p = parent
	}
}
