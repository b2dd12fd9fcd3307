package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/sieve/internal/config"
	"github.com/steveyegge/sieve/internal/plugins"
	"github.com/steveyegge/sieve/internal/types"
)

type fakePlugin struct {
	name      string
	domain    types.Domain
	langs     []string
	installed bool
	issues    []types.UnifiedIssue
	scanErr   error

	mu      sync.Mutex
	scanned [][]string
	fixed   []string
}

func (f *fakePlugin) Name() string         { return f.name }
func (f *fakePlugin) Languages() []string  { return f.langs }
func (f *fakePlugin) Domain() types.Domain { return f.domain }

func (f *fakePlugin) EnsureBinary() (string, error) {
	if !f.installed {
		return "", &plugins.NotInstalledError{Binary: f.name}
	}
	return "/usr/bin/" + f.name, nil
}

func (f *fakePlugin) GetVersion(context.Context) string { return "1.2.3" }

func (f *fakePlugin) Scan(_ context.Context, sc *types.ScanContext) ([]types.UnifiedIssue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanned = append(f.scanned, sc.Paths)
	return f.issues, f.scanErr
}

func (f *fakePlugin) Fix(_ context.Context, sc *types.ScanContext) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fixed = append(f.fixed, sc.Paths...)
	return nil
}

type fakeCoverage struct {
	fakePlugin
	result *types.CoverageResult
}

func (f *fakeCoverage) MeasureCoverage(_ context.Context, _ *types.ScanContext, threshold float64, _ bool) *types.CoverageResult {
	f.result.Threshold = threshold
	return f.result
}

type fakeAdvisor struct {
	guidance string
	err      error
}

func (a fakeAdvisor) SuggestFix(context.Context, types.UnifiedIssue) (string, error) {
	return a.guidance, a.err
}

func newExecutor(t *testing.T, mutate func(c *Config)) *Executor {
	t.Helper()
	cfg := &Config{ProjectRoot: t.TempDir(), Registry: plugins.NewRegistry()}
	if mutate != nil {
		mutate(cfg)
	}
	e, err := New(cfg)
	require.NoError(t, err)
	return e
}

func issue(id string, domain types.Domain, sev types.Severity) types.UnifiedIssue {
	return types.UnifiedIssue{
		ID:          id,
		Domain:      domain,
		SourceTool:  "ruff",
		Severity:    sev,
		Title:       "Test issue",
		Description: "Test description",
		FilePath:    "test.py",
		LineStart:   10,
	}
}

func stubRunner(issues ...types.UnifiedIssue) RunFunc {
	return func(context.Context, *types.ScanContext) ([]types.UnifiedIssue, error) {
		return issues, nil
	}
}

func TestNewRequiresProjectRoot(t *testing.T) {
	_, err := New(&Config{})
	require.Error(t, err)
}

func TestParseDomains(t *testing.T) {
	assert.Equal(t,
		[]types.Domain{types.DomainLinting, types.DomainSAST},
		ParseDomains([]string{"lint", "security", "linting", "nonsense"}))

	all := ParseDomains([]string{"all"})
	assert.Equal(t, append(types.ScanDomains(), types.ToolDomains()...), all)

	assert.Empty(t, ParseDomains(nil))
}

func TestDetectLanguage(t *testing.T) {
	cases := map[string]string{
		"app.py":        "python",
		"stubs.PYI":     "python",
		"index.mjs":     "javascript",
		"view.tsx":      "typescript",
		"main.tf":       "terraform",
		"ci.yml":        "yaml",
		"package.json":  "json",
		"lib.rs":        "rust",
		"README.md":     LanguageUnknown,
		"Makefile":      LanguageUnknown,
		"dir/server.go": "go",
	}
	for path, want := range cases {
		assert.Equal(t, want, DetectLanguage(path), path)
	}
}

func TestDomainsForLanguage(t *testing.T) {
	assert.Equal(t, []string{"linting", "type_checking", "security", "testing", "coverage"}, DomainsForLanguage("python"))
	assert.Equal(t, []string{"iac"}, DomainsForLanguage("terraform"))
	assert.Equal(t, []string{"security"}, DomainsForLanguage(LanguageUnknown))

	got := DomainsForLanguage("go")
	got[0] = "mutated"
	assert.Equal(t, []string{"linting", "security"}, DomainsForLanguage("go"))
}

func TestBuildContext(t *testing.T) {
	e := newExecutor(t, nil)
	root := e.ProjectRoot()

	sc, outside := e.BuildContext([]types.Domain{types.DomainLinting}, []string{"a.py", "/elsewhere/b.py", "a.py", "../other/c.py"})
	assert.Equal(t, root, sc.ProjectRoot)
	assert.Equal(t, []string{
		filepath.Join(root, "a.py"),
		filepath.Join(root, "a.py"),
	}, sc.Paths)
	assert.Equal(t, []string{"/elsewhere/b.py", "../other/c.py"}, outside)
	assert.False(t, sc.IsProjectWide())

	sc, outside = e.BuildContext(nil, nil)
	assert.Equal(t, []string{root}, sc.Paths)
	assert.Empty(t, outside)
	assert.True(t, sc.IsProjectWide())
}

func TestScanSkipsFilesOutsideRoot(t *testing.T) {
	e := newExecutor(t, nil)
	var scanned [][]string
	e.SetRunner(types.DomainLinting, func(_ context.Context, sc *types.ScanContext) ([]types.UnifiedIssue, error) {
		scanned = append(scanned, sc.Paths)
		return nil, nil
	})

	result := e.Scan(context.Background(), []string{"linting"}, []string{"app.py", "/etc", "../other"})
	require.Empty(t, result.Error)
	assert.Equal(t, [][]string{{filepath.Join(e.ProjectRoot(), "app.py")}}, scanned)
	assert.Equal(t, []string{"app.py"}, result.Files)
	assert.Equal(t, "outside project root: /etc, ../other", result.Errors["files"])

	scanned = nil
	result = e.Scan(context.Background(), []string{"linting"}, []string{"/etc"})
	assert.Equal(t, "outside project root: /etc", result.Error)
	assert.Empty(t, scanned, "nothing inside the root is left to scan")
}

func TestCheckFileNotFound(t *testing.T) {
	e := newExecutor(t, nil)

	result := e.CheckFile(context.Background(), "nonexistent.py")
	assert.Contains(t, result.Error, "not found")

	outside := filepath.Join(t.TempDir(), "outside.py")
	require.NoError(t, os.WriteFile(outside, []byte("x = 1\n"), 0o644))
	result = e.CheckFile(context.Background(), outside)
	assert.Contains(t, result.Error, "not found")

	result = e.CheckFile(context.Background(), ".")
	assert.Contains(t, result.Error, "not found")
}

func TestCheckFileRunsLanguageDomains(t *testing.T) {
	e := newExecutor(t, nil)
	var ran []types.Domain
	for _, d := range append(types.ScanDomains(), types.ToolDomains()...) {
		d := d
		e.SetRunner(d, func(_ context.Context, sc *types.ScanContext) ([]types.UnifiedIssue, error) {
			ran = append(ran, d)
			assert.Equal(t, []string{filepath.Join(e.ProjectRoot(), "main.go")}, sc.Paths)
			return nil, nil
		})
	}
	require.NoError(t, os.WriteFile(filepath.Join(e.ProjectRoot(), "main.go"), []byte("package main\n"), 0o644))

	result := e.CheckFile(context.Background(), "main.go")
	require.Empty(t, result.Error)
	assert.Equal(t, "main.go", result.File)
	assert.Equal(t, "go", result.Language)
	assert.Equal(t, []types.Domain{types.DomainLinting, types.DomainSAST}, ran)
	assert.Equal(t, []string{"linting", "sast"}, result.Domains)
}

func TestScanNoIssuesIsNotBlocking(t *testing.T) {
	e := newExecutor(t, nil)
	e.SetRunner(types.DomainLinting, stubRunner())

	result := e.Scan(context.Background(), []string{"linting"}, nil)
	require.Empty(t, result.Error)
	assert.Equal(t, 0, result.TotalIssues)
	assert.False(t, result.Blocking)
	assert.Equal(t, 0, result.SeverityCounts["CRITICAL"])
	assert.Empty(t, result.Errors)
	assert.NotNil(t, result.Issues)
}

func TestScanBlockingAtFailOnLevel(t *testing.T) {
	e := newExecutor(t, nil)
	e.SetRunner(types.DomainLinting, stubRunner(
		issue("low", types.DomainLinting, types.SeverityLow),
		issue("high", types.DomainLinting, types.SeverityHigh),
	))

	result := e.Scan(context.Background(), []string{"lint"}, nil)
	assert.Equal(t, 2, result.TotalIssues)
	assert.True(t, result.Blocking)
	assert.Equal(t, 1, result.SeverityCounts["HIGH"])
	assert.Equal(t, 1, result.SeverityCounts["LOW"])
	require.Len(t, result.Issues, 2)
	assert.Equal(t, "high", result.Issues[0].ID, "sorted by priority")
	assert.Equal(t, 2, result.Issues[0].Priority)
	assert.Len(t, e.CachedIssues(), 2)
}

func TestScanFailOnCritical(t *testing.T) {
	settings := config.DefaultConfig()
	settings.FailOn = "CRITICAL"
	e := newExecutor(t, func(c *Config) { c.Settings = &settings })
	e.SetRunner(types.DomainLinting, stubRunner(issue("high", types.DomainLinting, types.SeverityHigh)))

	result := e.Scan(context.Background(), []string{"lint"}, nil)
	assert.False(t, result.Blocking)
}

func TestScanSkipsDisabledDomains(t *testing.T) {
	settings := config.DefaultConfig()
	settings.Domains = []string{"security"}
	e := newExecutor(t, func(c *Config) { c.Settings = &settings })

	called := false
	e.SetRunner(types.DomainLinting, func(context.Context, *types.ScanContext) ([]types.UnifiedIssue, error) {
		called = true
		return nil, nil
	})
	e.SetRunner(types.DomainSAST, stubRunner())

	result := e.Scan(context.Background(), []string{"lint", "security"}, nil)
	assert.False(t, called)
	assert.Equal(t, []string{"sast"}, result.Domains)
}

func TestScanRecordsDomainErrors(t *testing.T) {
	e := newExecutor(t, nil)
	e.SetRunner(types.DomainLinting, func(context.Context, *types.ScanContext) ([]types.UnifiedIssue, error) {
		return []types.UnifiedIssue{issue("partial", types.DomainLinting, types.SeverityLow)}, errors.New("ruff crashed")
	})
	e.SetRunner(types.DomainSAST, stubRunner(issue("sast", types.DomainSAST, types.SeverityMedium)))

	result := e.Scan(context.Background(), []string{"lint", "security"}, nil)
	assert.Equal(t, "ruff crashed", result.Errors["linting"])
	assert.Equal(t, 2, result.TotalIssues)
}

func TestPluginRunnerNotInstalled(t *testing.T) {
	registry := plugins.NewRegistry()
	require.NoError(t, registry.Register(&fakePlugin{name: "ruff", domain: types.DomainLinting}))
	e := newExecutor(t, func(c *Config) { c.Registry = registry })

	result := e.Scan(context.Background(), []string{"lint"}, nil)
	assert.Contains(t, result.Errors["linting"], "ruff is not installed")
	assert.Equal(t, 0, result.TotalIssues)
}

func TestPluginRunnerToleratesOneMissingTool(t *testing.T) {
	registry := plugins.NewRegistry()
	installed := &fakePlugin{
		name:      "ruff",
		domain:    types.DomainLinting,
		installed: true,
		issues:    []types.UnifiedIssue{issue("r1", types.DomainLinting, types.SeverityLow)},
	}
	require.NoError(t, registry.Register(installed))
	require.NoError(t, registry.Register(&fakePlugin{name: "eslint", domain: types.DomainLinting}))
	e := newExecutor(t, func(c *Config) { c.Registry = registry })

	result := e.Scan(context.Background(), []string{"lint"}, nil)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, result.TotalIssues)
	assert.Equal(t, [][]string{{e.ProjectRoot()}}, installed.scanned)
}

func TestPluginRunnerFiltersByLanguage(t *testing.T) {
	registry := plugins.NewRegistry()
	py := &fakePlugin{name: "ruff", domain: types.DomainLinting, langs: []string{"python"}, installed: true}
	js := &fakePlugin{name: "eslint", domain: types.DomainLinting, langs: []string{"javascript"}, installed: true}
	require.NoError(t, registry.Register(py))
	require.NoError(t, registry.Register(js))
	e := newExecutor(t, func(c *Config) { c.Registry = registry })

	e.Scan(context.Background(), []string{"lint"}, []string{"a.py", "b.js", "c.py"})
	root := e.ProjectRoot()
	assert.Equal(t, [][]string{{filepath.Join(root, "a.py"), filepath.Join(root, "c.py")}}, py.scanned)
	assert.Equal(t, [][]string{{filepath.Join(root, "b.js")}}, js.scanned)

	e.Scan(context.Background(), []string{"lint"}, []string{"main.tf"})
	assert.Len(t, py.scanned, 1, "no python files, ruff skipped")
}

func TestPluginRunnerCoverage(t *testing.T) {
	cov := types.NewEmptyCoverageResult("coverage.py", 0)
	cov.TotalLines, cov.CoveredLines = 100, 40
	cov.Issues = []types.UnifiedIssue{issue("cov", types.DomainCoverage, types.SeverityHigh)}

	registry := plugins.NewRegistry()
	require.NoError(t, registry.Register(&fakeCoverage{
		fakePlugin: fakePlugin{name: "coverage_py", domain: types.DomainCoverage, installed: true},
		result:     cov,
	}))
	e := newExecutor(t, func(c *Config) { c.Registry = registry })

	result := e.Scan(context.Background(), []string{"coverage"}, nil)
	require.NotNil(t, result.Coverage)
	assert.Equal(t, 80.0, result.Coverage.Threshold)
	assert.Equal(t, 40.0, result.Coverage.Percentage())
	assert.Equal(t, 1, result.TotalIssues)
	assert.True(t, result.Blocking)
}

func TestScanFilesUnionsDomains(t *testing.T) {
	e := newExecutor(t, nil)
	var ran []types.Domain
	for _, d := range append(types.ScanDomains(), types.ToolDomains()...) {
		d := d
		e.SetRunner(d, func(context.Context, *types.ScanContext) ([]types.UnifiedIssue, error) {
			ran = append(ran, d)
			return nil, nil
		})
	}

	result := e.ScanFiles(context.Background(), []string{"app.py", "infra/main.tf"})
	assert.Equal(t, []types.Domain{
		types.DomainLinting, types.DomainTypeChecking, types.DomainSAST,
		types.DomainTesting, types.DomainCoverage, types.DomainIaC,
	}, ran)
	assert.Equal(t, []string{"app.py", filepath.Join("infra", "main.tf")}, result.Files)

	ran = nil
	result = e.ScanFiles(context.Background(), nil)
	assert.Empty(t, ran)
	assert.Equal(t, 0, result.TotalIssues)
}

func TestScanNotifiesListeners(t *testing.T) {
	var got []*ScanResult
	e := newExecutor(t, func(c *Config) {
		c.Listeners = []ScanListener{func(_ context.Context, r *ScanResult) { got = append(got, r) }}
	})
	e.SetRunner(types.DomainLinting, stubRunner())

	result := e.Scan(context.Background(), []string{"lint"}, nil)
	require.Len(t, got, 1)
	assert.Same(t, result, got[0])

	e.AddListener(func(_ context.Context, r *ScanResult) { got = append(got, r) })
	e.Scan(context.Background(), []string{"lint"}, nil)
	assert.Len(t, got, 3)
}

func TestScanCancelledContext(t *testing.T) {
	e := newExecutor(t, nil)
	e.SetRunner(types.DomainLinting, stubRunner())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := e.Scan(ctx, []string{"lint"}, nil)
	assert.Contains(t, result.Error, "cancelled")
}

func TestGetFixInstructionsNotFound(t *testing.T) {
	e := newExecutor(t, nil)
	fi := e.GetFixInstructions(context.Background(), "nonexistent-id")
	assert.Contains(t, fi.Error, "not found")
}

func TestGetFixInstructions(t *testing.T) {
	e := newExecutor(t, nil)
	e.cacheIssues([]types.UnifiedIssue{issue("test-id", types.DomainLinting, types.SeverityHigh)})

	fi := e.GetFixInstructions(context.Background(), "test-id")
	require.Empty(t, fi.Error)
	assert.Equal(t, 2, fi.Priority)
	assert.Equal(t, "test.py", fi.File)
	assert.Equal(t, 10, fi.Line)
	assert.Equal(t, "linting", fi.Domain)
	assert.NotEmpty(t, fi.FixSteps)
	assert.False(t, fi.AutoFixable, "no fixer registered")
	assert.Empty(t, fi.AIGuidance)
}

func TestGetFixInstructionsRelativizesAbsolutePaths(t *testing.T) {
	e := newExecutor(t, nil)
	iss := issue("abs", types.DomainSAST, types.SeverityCritical)
	iss.FilePath = filepath.Join(e.ProjectRoot(), "pkg", "db.py")
	e.cacheIssues([]types.UnifiedIssue{iss})

	fi := e.GetFixInstructions(context.Background(), "abs")
	assert.Equal(t, filepath.Join("pkg", "db.py"), fi.File)
	assert.Equal(t, 1, fi.Priority)
}

func TestGetFixInstructionsAdvisor(t *testing.T) {
	e := newExecutor(t, func(c *Config) { c.Advisor = fakeAdvisor{guidance: "Use parameterized queries."} })
	e.cacheIssues([]types.UnifiedIssue{issue("id", types.DomainSAST, types.SeverityHigh)})
	assert.Equal(t, "Use parameterized queries.", e.GetFixInstructions(context.Background(), "id").AIGuidance)

	e = newExecutor(t, func(c *Config) { c.Advisor = fakeAdvisor{err: errors.New("api down")} })
	e.cacheIssues([]types.UnifiedIssue{issue("id", types.DomainSAST, types.SeverityHigh)})
	fi := e.GetFixInstructions(context.Background(), "id")
	assert.Empty(t, fi.Error)
	assert.Empty(t, fi.AIGuidance)
}

func TestApplyFixNotFound(t *testing.T) {
	e := newExecutor(t, nil)
	assert.Contains(t, e.ApplyFix(context.Background(), "nonexistent-id").Error, "not found")
}

func TestApplyFixNonLinting(t *testing.T) {
	e := newExecutor(t, nil)
	e.cacheIssues([]types.UnifiedIssue{issue("sec-1", types.DomainSAST, types.SeverityHigh)})

	result := e.ApplyFix(context.Background(), "sec-1")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "linting")
}

func TestApplyFixNoFixer(t *testing.T) {
	e := newExecutor(t, nil)
	e.cacheIssues([]types.UnifiedIssue{issue("lint-1", types.DomainLinting, types.SeverityLow)})

	result := e.ApplyFix(context.Background(), "lint-1")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "no fixer")
}

func TestApplyFix(t *testing.T) {
	registry := plugins.NewRegistry()
	ruff := &fakePlugin{name: "ruff", domain: types.DomainLinting, installed: true}
	require.NoError(t, registry.Register(ruff))
	e := newExecutor(t, func(c *Config) { c.Registry = registry })

	iss := issue("lint-1", types.DomainLinting, types.SeverityLow)
	iss.Fixable = true
	e.cacheIssues([]types.UnifiedIssue{iss})

	fi := e.GetFixInstructions(context.Background(), "lint-1")
	assert.True(t, fi.AutoFixable)

	result := e.ApplyFix(context.Background(), "lint-1")
	require.Empty(t, result.Error)
	assert.True(t, result.Success)
	assert.Equal(t, "test.py", result.File)
	assert.Equal(t, []string{filepath.Join(e.ProjectRoot(), "test.py")}, ruff.fixed)

	_, stillCached := e.CachedIssue("lint-1")
	assert.True(t, stillCached)
}

func TestGetStatusAndClearCache(t *testing.T) {
	registry := plugins.NewRegistry()
	require.NoError(t, registry.Register(&fakePlugin{name: "ruff", domain: types.DomainLinting, installed: true}))
	require.NoError(t, registry.Register(&fakePlugin{name: "semgrep", domain: types.DomainSAST}))
	e := newExecutor(t, func(c *Config) { c.Registry = registry })

	status := e.GetStatus(context.Background())
	assert.Equal(t, 0, status.CachedIssues)
	assert.Equal(t, e.ProjectRoot(), status.ProjectRoot)
	assert.Equal(t, []string{"ruff"}, status.AvailableTools)
	assert.Equal(t, []string{"ruff", "semgrep"}, status.RegisteredTools)
	assert.Equal(t, "HIGH", status.FailOn)

	assert.Equal(t, map[string]string{"ruff": "1.2.3"}, e.ToolVersions(context.Background()))

	e.cacheIssues([]types.UnifiedIssue{issue("a", types.DomainLinting, types.SeverityLow)})
	assert.Equal(t, 1, e.GetStatus(context.Background()).CachedIssues)

	e.ClearCache()
	assert.Equal(t, 0, e.GetStatus(context.Background()).CachedIssues)
	assert.Empty(t, e.CachedIssues())
}

func TestCachedIssuesSorted(t *testing.T) {
	e := newExecutor(t, nil)
	e.cacheIssues([]types.UnifiedIssue{
		issue("info", types.DomainLinting, types.SeverityInfo),
		issue("crit", types.DomainSAST, types.SeverityCritical),
		issue("med", types.DomainLinting, types.SeverityMedium),
	})

	var ids []string
	for _, iss := range e.CachedIssues() {
		ids = append(ids, iss.ID)
	}
	assert.Equal(t, []string{"crit", "med", "info"}, ids)
}

func TestFixStepsIncludeRecommendation(t *testing.T) {
	iss := issue("x", types.DomainSCA, types.SeverityHigh)
	iss.Recommendation = "Upgrade requests to 2.32.0 or later."
	steps := fixSteps(iss)
	assert.Contains(t, steps, "Upgrade requests to 2.32.0 or later.")
	assert.Equal(t, "Re-run sieve to verify the issue is resolved", steps[len(steps)-1])
}
