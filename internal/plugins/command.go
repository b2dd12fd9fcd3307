package plugins

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// Command describes one tool invocation.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Stream  io.Writer     // Optional: receives stdout and stderr as they arrive
	Timeout time.Duration // Optional: zero means the caller's context only
}

// CommandResult holds a finished invocation's output.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Combined returns stdout followed by stderr.
func (r *CommandResult) Combined() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// waitDelay caps how long Run waits on output pipes after the process is killed.
const waitDelay = 2 * time.Second

// CommandRunner executes a Command. A non-zero exit is reported through
// ExitCode, not as an error; only start failures and timeouts are errors.
type CommandRunner func(ctx context.Context, cmd Command) (*CommandResult, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, c Command) (*CommandResult, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	if c.Stream != nil {
		cmd.Stdout = io.MultiWriter(&stdout, c.Stream)
		cmd.Stderr = io.MultiWriter(&stderr, c.Stream)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	res := &CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return res, fmt.Errorf("%s timed out after %v: %w", c.Name, c.Timeout, ctxErr)
		}
		return res, fmt.Errorf("%s cancelled: %w", c.Name, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return nil, fmt.Errorf("failed to run %s: %w", c.Name, err)
}
