package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/vinayprograms/subagent/internal/contract"
	"github.com/vinayprograms/subagent/internal/logging"
)

const (
	supervisorInterval = 500 * time.Millisecond
	stderrTailBytes    = 4 * 1024
)

// ProcessEngine runs an external CLI agent and supervises it with an idle
// timeout. The child is expected to write the response document to
// ResponsePath on its own; progress on either stdout or stderr resets the
// idle clock.
type ProcessEngine struct {
	Command      string
	Args         []string
	Dir          string
	Env          []string // appended to the inherited environment
	Stdin        string
	ResponsePath string
	IdleTimeout  time.Duration
	TermGrace    time.Duration
	Log          *logging.Logger
}

func (e *ProcessEngine) Name() string { return "process" }

// Run starts the child, feeds it the prompt on stdin, and waits for exit or
// idle timeout. On timeout the child gets SIGTERM, then SIGKILL after the
// grace period. The outcome always carries whatever response document the
// child managed to write.
func (e *ProcessEngine) Run(ctx context.Context, req *contract.Request, rawRequest []byte) (*Outcome, error) {
	idle := e.IdleTimeout
	if idle <= 0 {
		idle = 60 * time.Second
	}
	grace := e.TermGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	log := e.Log
	if log == nil {
		log = logging.New()
	}

	start := time.Now()
	cmd := exec.Command(e.Command, e.Args...)
	cmd.Dir = e.Dir
	// Own process group, so termination reaches grandchildren that would
	// otherwise hold the output pipes open.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}
	cmd.Stdin = strings.NewReader(e.Stdin)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	log.Info("starting child process", map[string]interface{}{
		"command":      e.Command,
		"task_id":      req.TaskID,
		"idle_timeout": idle.String(),
	})

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", e.Command, err)
	}

	// lastActivity is nanoseconds since start, bumped on every chunk read
	// from either stream.
	var lastActivity atomic.Int64
	var stderrBuf, stdoutBuf lockedBuffer
	var wg sync.WaitGroup
	wg.Add(2)
	go drain(stdout, &stdoutBuf, &lastActivity, start, &wg)
	go drain(stderr, &stderrBuf, &lastActivity, start, &wg)

	done := make(chan error, 1)
	go func() {
		wg.Wait()
		done <- cmd.Wait()
	}()

	timedOut := false
	killed := false
	ticker := time.NewTicker(supervisorInterval)
	defer ticker.Stop()

	// Closed once the child is reaped; disarms any pending kill escalation.
	exited := make(chan struct{})
	defer close(exited)

	ctxDone := ctx.Done()
	var waitErr error
wait:
	for {
		select {
		case waitErr = <-done:
			break wait
		case <-ctxDone:
			ctxDone = nil
			killed = true
			log.Warn("context canceled, terminating child", map[string]interface{}{
				"task_id": req.TaskID,
			})
			terminate(cmd, grace, exited)
		case <-ticker.C:
			quiet := time.Since(start) - time.Duration(lastActivity.Load())
			if quiet >= idle && !killed {
				timedOut = true
				killed = true
				log.Warn("idle timeout reached, terminating child", map[string]interface{}{
					"task_id": req.TaskID,
					"quiet":   quiet.Truncate(time.Millisecond).String(),
				})
				terminate(cmd, grace, exited)
			}
		}
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("wait for %s: %w", e.Command, waitErr)
		}
	}

	transcript := stderrBuf.String()
	if out := stdoutBuf.String(); out != "" {
		if transcript != "" && !strings.HasSuffix(transcript, "\n") {
			transcript += "\n"
		}
		transcript += "--- stdout ---\n" + out
	}

	outcome := &Outcome{
		Transcript:  transcript,
		ExitCode:    exitCode,
		TimedOut:    timedOut,
		IdleTimeout: idle,
		StderrTail:  tail(stderrBuf.String(), stderrTailBytes),
		Duration:    time.Since(start),
	}

	if raw, err := os.ReadFile(e.ResponsePath); err == nil && len(bytes.TrimSpace(raw)) > 0 {
		outcome.ResponseRaw = raw
		outcome.OnDisk = true
	}

	log.Info("child process finished", map[string]interface{}{
		"task_id":   req.TaskID,
		"exit_code": exitCode,
		"timed_out": timedOut,
		"duration":  outcome.Duration.Truncate(time.Millisecond).String(),
	})

	return outcome, nil
}

// terminate asks the child's process group to exit, escalating to SIGKILL
// after grace. The escalation is disarmed by exited, so a group that honors
// SIGTERM is never signaled again: its pgid may already belong to someone
// else.
func terminate(cmd *exec.Cmd, grace time.Duration, exited <-chan struct{}) {
	if cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		cmd.Process.Signal(syscall.SIGTERM)
	}
	go func() {
		select {
		case <-time.After(grace):
			syscall.Kill(-pid, syscall.SIGKILL)
		case <-exited:
		}
	}()
}

func drain(r io.Reader, buf *lockedBuffer, lastActivity *atomic.Int64, start time.Time, wg *sync.WaitGroup) {
	defer wg.Done()
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			lastActivity.Store(int64(time.Since(start)))
			buf.Write(chunk[:n])
		}
		if err != nil {
			return
		}
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// CodexArgs builds the argument list for a codex-style CLI agent: an exec
// subcommand, sandbox and profile selection, the audit response path, then
// "-" so the prompt arrives on stdin.
func CodexArgs(profile, sandbox, cd string, skipGitCheck bool, responsePath string, extra []string) []string {
	args := []string{"exec"}
	if profile != "" {
		args = append(args, "--profile", profile)
	}
	if sandbox != "" {
		args = append(args, "--sandbox", sandbox)
	}
	if cd != "" {
		args = append(args, "--cd", cd)
	}
	if skipGitCheck {
		args = append(args, "--skip-git-repo-check")
	}
	args = append(args, "--output-last-message", responsePath)
	args = append(args, extra...)
	args = append(args, "-")
	return args
}
