package pytest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/sieve/internal/plugins"
	"github.com/steveyegge/sieve/internal/plugins/plugintest"
	"github.com/steveyegge/sieve/internal/types"
)

func TestParseSummary(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   types.TestStatistics
	}{
		{
			name:   "all passed",
			output: "===== 9 passed in 0.12s =====",
			want:   types.TestStatistics{Total: 9, Passed: 9},
		},
		{
			name:   "mixed",
			output: "===== 1 failed, 5 passed, 2 skipped in 0.15s =====",
			want:   types.TestStatistics{Total: 8, Passed: 5, Failed: 1, Skipped: 2},
		},
		{
			name:   "errors",
			output: "===== 1 error, 3 passed in 0.10s =====",
			want:   types.TestStatistics{Total: 4, Passed: 3, Errors: 1},
		},
		{
			name:   "plural errors",
			output: "2 errors in 0.01s",
			want:   types.TestStatistics{Total: 2, Errors: 2},
		},
		{
			name:   "no summary",
			output: "some random output",
			want:   types.TestStatistics{},
		},
		{
			name:   "only last summary line counts",
			output: "FAILED tests/test_a.py::test_x - assert 3 passed == 2\n1 failed, 4 passed in 0.2s\n",
			want:   types.TestStatistics{Total: 5, Passed: 4, Failed: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSummary(tt.output))
		})
	}
}

func TestParseFailures(t *testing.T) {
	output := `..F.E
=========================== short test summary info ============================
FAILED tests/test_app.py::test_login - AssertionError: assert 401 == 200
ERROR tests/test_models.py - ImportError: cannot import name 'User'
1 failed, 3 passed, 1 error in 0.42s`

	issues := ParseFailures(output, "/proj")
	require.Len(t, issues, 2)

	assert.Equal(t, "test-failure", issues[0].RuleID)
	assert.Equal(t, filepath.Join("/proj", "tests/test_app.py"), issues[0].FilePath)
	assert.Equal(t, "AssertionError: assert 401 == 200", issues[0].Description)
	assert.Equal(t, types.SeverityHigh, issues[0].Severity)
	assert.Equal(t, types.DomainTesting, issues[0].Domain)

	assert.Equal(t, "collection-error", issues[1].RuleID)
	assert.Contains(t, issues[1].Title, "tests/test_models.py")

	again := ParseFailures(output, "/proj")
	assert.Equal(t, issues[0].ID, again[0].ID)
}

func TestScanNoTestsCollected(t *testing.T) {
	root := t.TempDir()
	fake := func(_ context.Context, c plugins.Command) (*plugins.CommandResult, error) {
		return &plugins.CommandResult{ExitCode: exitNoTests, Stdout: "no tests ran in 0.01s"}, nil
	}
	p := New(plugins.Options{ProjectRoot: root, Runner: fake})
	plugintest.WriteVenvBinary(t, root, "pytest")

	issues, err := p.Scan(context.Background(), &types.ScanContext{ProjectRoot: root, Paths: []string{root}})
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestScanPassesFilesForTargetedScan(t *testing.T) {
	root := t.TempDir()
	plugintest.WriteVenvBinary(t, root, "pytest")

	var args []string
	fake := func(_ context.Context, c plugins.Command) (*plugins.CommandResult, error) {
		args = c.Args
		return &plugins.CommandResult{ExitCode: 1, Stdout: "FAILED tests/test_a.py::test_b - boom\n1 failed in 0.1s"}, nil
	}
	p := New(plugins.Options{ProjectRoot: root, Runner: fake})

	target := filepath.Join(root, "tests", "test_a.py")
	issues, err := p.Scan(context.Background(), &types.ScanContext{ProjectRoot: root, Paths: []string{target}})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Contains(t, args, target)
}

func TestScanNotInstalled(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	p := New(plugins.Options{ProjectRoot: t.TempDir()})

	_, err := p.Scan(context.Background(), &types.ScanContext{ProjectRoot: p.ProjectRoot, Paths: []string{p.ProjectRoot}})
	require.Error(t, err)
	assert.ErrorIs(t, err, plugins.ErrNotInstalled)
}
