package action

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// ExitNotStarted is the exit code reported when a command cannot be started,
// as a shell does for a missing binary.
const ExitNotStarted = 127

// Runner executes a process and reports its exit code.
//
// A process that ran and exited non-zero is not an error: Run returns its
// code and a nil error. err is reserved for processes that could not be
// started or were stopped by the context.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (int, error)
}

// ExecRunner runs commands on the local host with os/exec.
type ExecRunner struct {
	// Timeout bounds each command. Zero means no limit beyond ctx.
	Timeout time.Duration

	// Stdout and Stderr receive the command's output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (int, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, fmt.Errorf("run %s: %w", name, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}

	return ExitNotStarted, fmt.Errorf("run %s: %w", name, err)
}
