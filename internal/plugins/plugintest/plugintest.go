// Package plugintest provides fixtures for testing plugins without the real
// tools installed.
package plugintest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/steveyegge/sieve/internal/plugins"
)

// WriteVenvBinary creates an executable shell script at
// <root>/.venv/bin/<name> and returns its path.
func WriteVenvBinary(t *testing.T, root, name string) string {
	t.Helper()
	return WriteScript(t, filepath.Join(root, ".venv", "bin"), name, "exit 0")
}

// WriteScript creates an executable /bin/sh script in dir.
func WriteScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// Response is a canned reply for Runner.
type Response struct {
	Result *plugins.CommandResult
	Err    error
}

// Runner is a scripted CommandRunner that records every call. Replies are
// chosen by Handler when set, else popped from Responses in order, else a
// zero-exit empty result.
type Runner struct {
	mu        sync.Mutex
	Calls     []plugins.Command
	Responses []Response
	Handler   func(cmd plugins.Command) (*plugins.CommandResult, error)
}

// Run implements plugins.CommandRunner.
func (r *Runner) Run(_ context.Context, cmd plugins.Command) (*plugins.CommandResult, error) {
	r.mu.Lock()
	r.Calls = append(r.Calls, cmd)
	var next *Response
	if r.Handler == nil && len(r.Responses) > 0 {
		next = &r.Responses[0]
		r.Responses = r.Responses[1:]
	}
	r.mu.Unlock()

	if r.Handler != nil {
		return r.Handler(cmd)
	}
	if next != nil {
		return next.Result, next.Err
	}
	return &plugins.CommandResult{}, nil
}

// CallCount returns the number of recorded invocations.
func (r *Runner) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}
