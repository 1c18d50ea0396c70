// Package toolchain wraps every external process the build invokes:
// the compiler driver for compile and link, make for the library, and
// version probes. Each invocation is a single blocking process with its own
// timeout; callers never need to cancel.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Norgate-AV/incbuild/internal/codes"
)

// Status is the outcome class of an invocation
type Status int

const (
	Success Status = iota
	Failure
	Timeout
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Timeout:
		return "timeout"
	}

	return "unknown"
}

// Outcome is the structured result of one external invocation
type Outcome struct {
	Status Status
	// Path of the produced artifact on success
	Path string
	// Captured diagnostic text, set on failure and timeout
	Diagnostic string
	Duration   time.Duration
}

// OK reports whether the invocation succeeded
func (o Outcome) OK() bool {
	return o.Status == Success
}

// Commander interface for testing
type Commander interface {
	CombinedOutput() ([]byte, error)
}

// Runner executes external commands with a per-invocation timeout
type Runner struct {
	execCommand func(ctx context.Context, dir, name string, args ...string) Commander
}

// NewRunner creates a runner backed by os/exec
func NewRunner() *Runner {
	return &Runner{
		execCommand: func(ctx context.Context, dir, name string, args ...string) Commander {
			cmd := exec.CommandContext(ctx, name, args...)
			cmd.Dir = dir
			// Don't wait forever on pipes held open by orphaned children after a kill
			cmd.WaitDelay = 2 * time.Second
			return cmd
		},
	}
}

// Run executes name with args in dir and waits at most timeout for it
func (r *Runner) Run(ctx context.Context, dir string, timeout time.Duration, name string, args ...string) Outcome {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	out, err := r.execCommand(runCtx, dir, name, args...).CombinedOutput()
	elapsed := time.Since(start)

	text := strings.TrimSpace(string(out))

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return Outcome{
			Status:     Timeout,
			Diagnostic: joinDiagnostic(fmt.Sprintf("%s timed out after %s", name, timeout), text),
			Duration:   elapsed,
		}
	}

	if err != nil {
		return Outcome{
			Status:     Failure,
			Diagnostic: joinDiagnostic(describe(name, err), text),
			Duration:   elapsed,
		}
	}

	return Outcome{Status: Success, Duration: elapsed}
}

// describe turns a process error into a one line summary
func describe(name string, err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		return fmt.Sprintf("%s failed (exit code %d): %s", name, code, codes.GetErrorMessage(code))
	}

	return fmt.Sprintf("%s failed: %v", name, err)
}

func joinDiagnostic(summary, output string) string {
	if output == "" {
		return summary
	}

	return summary + "\n" + output
}
