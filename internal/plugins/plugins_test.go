package plugins

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/sieve/internal/types"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

type stubPlugin struct {
	Base
	installed bool
}

func (s *stubPlugin) EnsureBinary() (string, error) {
	if !s.installed {
		return "", &NotInstalledError{Binary: s.Binary}
	}
	return "/usr/bin/" + s.Binary, nil
}

type stubFixer struct {
	stubPlugin
	fixed []string
}

func (s *stubFixer) Fix(_ context.Context, sc *types.ScanContext) error {
	s.fixed = append(s.fixed, sc.Paths...)
	return nil
}

func newStub(name string, domain types.Domain, installed bool) *stubPlugin {
	return &stubPlugin{Base: NewBase(name, name, domain, nil, Options{}), installed: installed}
}

func TestFindBinaryPrefersVenv(t *testing.T) {
	root := t.TempDir()
	want := writeScript(t, filepath.Join(root, ".venv", "bin"), "coverage", "echo venv")

	got, err := FindBinary(root, "coverage")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFindBinarySkipsNonExecutable(t *testing.T) {
	root := t.TempDir()
	venv := filepath.Join(root, ".venv", "bin")
	require.NoError(t, os.MkdirAll(venv, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(venv, "ruff"), []byte("data"), 0o644))
	t.Setenv("PATH", t.TempDir())

	_, err := FindBinary(root, "ruff")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotInstalled))
}

func TestFindBinaryExtraDirs(t *testing.T) {
	root := t.TempDir()
	want := writeScript(t, filepath.Join(root, "node_modules", ".bin"), "eslint", "echo 9.0.0")
	t.Setenv("PATH", t.TempDir())

	got, err := FindBinary(root, "eslint", filepath.Join("node_modules", ".bin"))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFindBinaryFallsBackToPath(t *testing.T) {
	pathDir := t.TempDir()
	want := writeScript(t, pathDir, "trivy", "echo ok")
	t.Setenv("PATH", pathDir)

	got, err := FindBinary(t.TempDir(), "trivy")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestNotInstalledError(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	_, err := FindBinary(t.TempDir(), "coverage")
	require.Error(t, err)

	var nie *NotInstalledError
	require.True(t, errors.As(err, &nie))
	assert.Equal(t, "coverage", nie.Binary)
	assert.Contains(t, err.Error(), "coverage is not installed")
}

func TestQueryVersion(t *testing.T) {
	root := t.TempDir()
	writeScript(t, filepath.Join(root, ".venv", "bin"), "coverage",
		`echo "Coverage.py, version 7.4.1 with C extension"`)

	assert.Equal(t, "7.4.1", QueryVersion(context.Background(), nil, root, "coverage"))
}

func TestQueryVersionUnknown(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	assert.Equal(t, "unknown", QueryVersion(context.Background(), nil, t.TempDir(), "coverage"))

	root := t.TempDir()
	writeScript(t, filepath.Join(root, ".venv", "bin"), "broken", "exit 3")
	assert.Equal(t, "unknown", QueryVersion(context.Background(), nil, root, "broken"))
}

func TestExecRunnerNonZeroExitIsNotError(t *testing.T) {
	res, err := ExecRunner(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo out; echo err >&2; exit 2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ExitCode)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Contains(t, res.Combined(), "out")
	assert.Contains(t, res.Combined(), "err")
}

func TestExecRunnerTimeout(t *testing.T) {
	_, err := ExecRunner(context.Background(), Command{
		Name:    "sh",
		Args:    []string{"-c", "exec sleep 5"},
		Timeout: 50 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestExecRunnerMissingBinary(t *testing.T) {
	_, err := ExecRunner(context.Background(), Command{Name: "definitely-not-a-real-binary-xyz"})
	require.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newStub("ruff", types.DomainLinting, true)))
	require.NoError(t, r.Register(newStub("mypy", types.DomainTypeChecking, false)))
	require.NoError(t, r.Register(newStub("eslint", types.DomainLinting, false)))

	err := r.Register(newStub("ruff", types.DomainLinting, true))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	assert.Equal(t, []string{"eslint", "mypy", "ruff"}, r.List())

	p, ok := r.Get("mypy")
	require.True(t, ok)
	assert.Equal(t, types.DomainTypeChecking, p.Domain())

	_, ok = r.Get("nope")
	assert.False(t, ok)

	linters := r.ForDomain(types.DomainLinting)
	require.Len(t, linters, 2)
	assert.Equal(t, "eslint", linters[0].Name())
	assert.Equal(t, "ruff", linters[1].Name())

	assert.Equal(t, []string{"ruff"}, r.Available())
}

func TestRegistryFindFixer(t *testing.T) {
	r := NewRegistry()
	fixer := &stubFixer{stubPlugin: *newStub("ruff", types.DomainLinting, true)}
	require.NoError(t, r.Register(fixer))
	require.NoError(t, r.Register(newStub("mypy", types.DomainTypeChecking, true)))

	f, ok := r.FindFixer("ruff")
	require.True(t, ok)
	assert.Equal(t, "ruff", f.Name())

	_, ok = r.FindFixer("mypy")
	assert.False(t, ok)
}

func TestSupportsLanguage(t *testing.T) {
	anyLang := newStub("semgrep", types.DomainSAST, true)
	assert.True(t, SupportsLanguage(anyLang, "rust"))

	py := &stubPlugin{Base: NewBase("ruff", "ruff", types.DomainLinting, []string{"python"}, Options{})}
	assert.True(t, SupportsLanguage(py, "python"))
	assert.False(t, SupportsLanguage(py, "javascript"))
}

func TestBaseExecUsesRunner(t *testing.T) {
	var got Command
	fake := func(_ context.Context, c Command) (*CommandResult, error) {
		got = c
		return &CommandResult{Stdout: "ok"}, nil
	}
	b := NewBase("ruff", "ruff", types.DomainLinting, nil, Options{ProjectRoot: "/proj", Runner: fake})

	res, err := b.Exec(context.Background(), &types.ScanContext{ProjectRoot: "/proj"}, "/bin/ruff", "check", ".")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Stdout)
	assert.Equal(t, "/bin/ruff", got.Name)
	assert.Equal(t, []string{"check", "."}, got.Args)
	assert.Equal(t, "/proj", got.Dir)
	assert.Equal(t, DefaultTimeout, got.Timeout)
}
