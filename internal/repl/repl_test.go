package repl

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/sieve/internal/orchestrator"
)

func init() {
	color.NoColor = true
}

type fakeExecutor struct {
	scanned [][]string
	checked []string
	cleared int
	fixIDs  []string
	scanErr string
}

func (f *fakeExecutor) Scan(_ context.Context, domains []string, _ []string) *orchestrator.ScanResult {
	f.scanned = append(f.scanned, domains)
	if f.scanErr != "" {
		return &orchestrator.ScanResult{Error: f.scanErr}
	}
	return &orchestrator.ScanResult{
		Domains:        domains,
		TotalIssues:    2,
		SeverityCounts: map[string]int{"HIGH": 1, "LOW": 1},
		Issues: []orchestrator.IssueSummary{
			{ID: "i1", Severity: "HIGH", Title: "Hardcoded password", Tool: "semgrep", Domain: "sast"},
			{ID: "i2", Severity: "LOW", Title: "Line too long", Tool: "ruff", Domain: "linting"},
		},
	}
}

func (f *fakeExecutor) CheckFile(_ context.Context, path string) *orchestrator.ScanResult {
	f.checked = append(f.checked, path)
	return &orchestrator.ScanResult{File: path, Language: "python", Domains: []string{"linting"}}
}

func (f *fakeExecutor) GetFixInstructions(_ context.Context, id string) *orchestrator.FixInstructions {
	return &orchestrator.FixInstructions{IssueID: id, Priority: 2, Severity: "HIGH", Title: "Hardcoded password", FixSteps: []string{"Move it to a secret store"}}
}

func (f *fakeExecutor) ApplyFix(_ context.Context, id string) *orchestrator.FixResult {
	f.fixIDs = append(f.fixIDs, id)
	return &orchestrator.FixResult{IssueID: id, Error: "automatic fixes are only supported for linting issues (issue domain: sast)"}
}

func (f *fakeExecutor) GetStatus(context.Context) *orchestrator.Status {
	return &orchestrator.Status{ProjectRoot: "/proj", RegisteredTools: []string{"ruff"}, AvailableTools: []string{"ruff"}}
}

func (f *fakeExecutor) ClearCache() { f.cleared++ }

func newTestREPL(t *testing.T) (*REPL, *fakeExecutor, *bytes.Buffer) {
	t.Helper()
	exec := &fakeExecutor{}
	var out bytes.Buffer
	r, err := New(&Config{Executor: exec, Out: &out})
	require.NoError(t, err)
	return r, exec, &out
}

func TestNewRequiresExecutor(t *testing.T) {
	_, err := New(&Config{})
	assert.Error(t, err)
}

func TestScanDefaultsToAll(t *testing.T) {
	r, exec, out := newTestREPL(t)

	require.NoError(t, r.processInput("scan"))
	require.NoError(t, r.processInput("/scan sast linting"))

	assert.Equal(t, [][]string{{"all"}, {"sast", "linting"}}, exec.scanned)
	assert.Contains(t, out.String(), "Hardcoded password")
}

func TestIssuesRequiresScan(t *testing.T) {
	r, _, out := newTestREPL(t)

	require.NoError(t, r.processInput("issues"))
	assert.Contains(t, out.String(), "no scan yet")

	require.NoError(t, r.processInput("scan"))
	out.Reset()
	require.NoError(t, r.processInput("issues 1"))
	assert.Contains(t, out.String(), "Hardcoded password")
	assert.Contains(t, out.String(), "... and 1 more")

	assert.Error(t, r.processInput("issues nope"))
}

func TestFailedScanKeepsPreviousIssues(t *testing.T) {
	r, exec, out := newTestREPL(t)
	require.NoError(t, r.processInput("scan"))

	exec.scanErr = "scan cancelled: context canceled"
	require.NoError(t, r.processInput("scan"))
	assert.Contains(t, out.String(), "scan cancelled")

	out.Reset()
	require.NoError(t, r.processInput("issues"))
	assert.Contains(t, out.String(), "Line too long")
}

func TestCheck(t *testing.T) {
	r, exec, out := newTestREPL(t)

	assert.Error(t, r.processInput("check"))
	require.NoError(t, r.processInput("check app.py"))
	assert.Equal(t, []string{"app.py"}, exec.checked)
	assert.Contains(t, out.String(), "Check app.py (python)")
}

func TestExplainAndFix(t *testing.T) {
	r, exec, out := newTestREPL(t)

	assert.Error(t, r.processInput("explain"))
	require.NoError(t, r.processInput("explain i1"))
	assert.Contains(t, out.String(), "Move it to a secret store")

	require.NoError(t, r.processInput("fix i1"))
	assert.Equal(t, []string{"i1"}, exec.fixIDs)
	assert.Contains(t, out.String(), "only supported for linting issues")
}

func TestStatusAndClear(t *testing.T) {
	r, exec, out := newTestREPL(t)

	require.NoError(t, r.processInput("status"))
	assert.Contains(t, out.String(), "/proj")

	require.NoError(t, r.processInput("scan"))
	require.NoError(t, r.processInput("clear"))
	assert.Equal(t, 1, exec.cleared)
	assert.Nil(t, r.lastScan)
}

func TestUnknownCommand(t *testing.T) {
	r, _, out := newTestREPL(t)
	require.NoError(t, r.processInput("frobnicate"))
	assert.Contains(t, out.String(), `unknown command "frobnicate"`)
}

func TestHelpAndExit(t *testing.T) {
	r, _, out := newTestREPL(t)
	require.NoError(t, r.processInput("?"))
	assert.Contains(t, out.String(), "explain <id>")

	assert.Equal(t, io.EOF, r.processInput("quit"))
}
