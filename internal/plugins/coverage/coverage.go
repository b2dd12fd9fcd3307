// Package coverage measures Python line coverage with coverage.py and
// reports a single issue when the project falls below the threshold.
package coverage

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/steveyegge/sieve/internal/plugins"
	"github.com/steveyegge/sieve/internal/plugins/pytest"
	"github.com/steveyegge/sieve/internal/types"
)

const (
	// PluginName is the registry key and the CoverageResult tool name.
	PluginName = "coverage_py"

	// SourceTool tags issues produced by this plugin.
	SourceTool = "coverage.py"

	binaryName = "coverage"
	ruleID     = "coverage-below-threshold"
)

// SeverityPolicy decides how severe a coverage shortfall is.
type SeverityPolicy struct {
	// HighBelow: coverage under this percentage is HIGH
	HighBelow float64
	// MediumGap: coverage more than this many points under the threshold is MEDIUM
	MediumGap float64
}

// DefaultSeverityPolicy returns HIGH below 50% and MEDIUM beyond a 10 point gap.
func DefaultSeverityPolicy() SeverityPolicy {
	return SeverityPolicy{HighBelow: 50, MediumGap: 10}
}

// Classify maps a shortfall to a severity. Anything not HIGH or MEDIUM is LOW.
func (sp SeverityPolicy) Classify(percentage, threshold float64) types.Severity {
	switch {
	case percentage < sp.HighBelow:
		return types.SeverityHigh
	case percentage < threshold-sp.MediumGap:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

// Plugin wraps coverage.py.
type Plugin struct {
	plugins.Base
	policy SeverityPolicy
}

// New creates the coverage plugin.
func New(opts plugins.Options, policy SeverityPolicy) *Plugin {
	return &Plugin{
		Base:   plugins.NewBase(PluginName, binaryName, types.DomainCoverage, []string{"python"}, opts),
		policy: policy,
	}
}

// MeasureCoverage optionally runs the test suite under coverage, then
// produces the JSON report and parses it. Every failure degrades to a
// zeroed result carrying the threshold and tool name.
func (p *Plugin) MeasureCoverage(ctx context.Context, sc *types.ScanContext, threshold float64, runTests bool) *types.CoverageResult {
	bin, err := p.EnsureBinary()
	if err != nil {
		p.Log.Warnw("coverage unavailable", "error", err)
		result := types.NewEmptyCoverageResult(PluginName, threshold)
		result.Error = err.Error()
		return result
	}

	var stats *types.TestStatistics
	if runTests {
		ok, s := p.runTests(ctx, bin, sc)
		if !ok {
			p.Log.Warnw("test run under coverage failed, reporting existing data")
		}
		stats = s
	}

	result := p.generateReport(ctx, bin, sc, threshold)
	if stats != nil {
		result.TestStats = stats
	}
	return result
}

// runTests executes "coverage run [--source dir] <pytest> -q".
// Returns false when pytest is missing or the process could not run.
func (p *Plugin) runTests(ctx context.Context, coverageBin string, sc *types.ScanContext) (bool, *types.TestStatistics) {
	root := p.root(sc)
	pytestBin, err := plugins.FindBinary(root, "pytest")
	if err != nil {
		p.Log.Warnw("pytest not found, skipping test run", "error", err)
		return false, nil
	}

	args := []string{"run"}
	if dir := DetectSourceDir(root); dir != "" {
		args = append(args, "--source", dir)
	}
	args = append(args, pytestBin, "-q")

	res, err := p.Exec(ctx, sc, coverageBin, args...)
	if err != nil {
		p.Log.Warnw("coverage run failed", "error", err)
		return false, nil
	}

	stats := pytest.ParseSummary(res.Combined())
	return true, &stats
}

// generateReport writes coverage JSON to a temporary file and parses it.
func (p *Plugin) generateReport(ctx context.Context, coverageBin string, sc *types.ScanContext, threshold float64) *types.CoverageResult {
	root := p.root(sc)

	tmpDir, err := os.MkdirTemp("", "sieve-coverage-")
	if err != nil {
		result := types.NewEmptyCoverageResult(PluginName, threshold)
		result.Error = fmt.Sprintf("failed to create report dir: %v", err)
		return result
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	reportPath := filepath.Join(tmpDir, "coverage.json")
	args := []string{"json", "-o", reportPath}
	if dir := DetectSourceDir(root); dir != "" {
		args = append(args, "--include", dir+"/*")
	}

	res, err := p.Exec(ctx, sc, coverageBin, args...)
	if err != nil {
		result := types.NewEmptyCoverageResult(PluginName, threshold)
		result.Error = err.Error()
		return result
	}
	if res.ExitCode != 0 {
		p.Log.Warnw("coverage json failed", "exit_code", res.ExitCode, "stderr", res.Stderr)
		result := types.NewEmptyCoverageResult(PluginName, threshold)
		result.Error = strings.TrimSpace(res.Combined())
		return result
	}

	return p.ParseReport(reportPath, root, threshold)
}

type reportTotals struct {
	NumStatements  int     `json:"num_statements"`
	CoveredLines   int     `json:"covered_lines"`
	MissingLines   int     `json:"missing_lines"`
	ExcludedLines  int     `json:"excluded_lines"`
	PercentCovered float64 `json:"percent_covered"`
}

type reportFile struct {
	Summary struct {
		NumStatements int `json:"num_statements"`
		CoveredLines  int `json:"covered_lines"`
		ExcludedLines int `json:"excluded_lines"`
	} `json:"summary"`
	MissingLines []int `json:"missing_lines"`
}

type jsonReport struct {
	Totals reportTotals          `json:"totals"`
	Files  map[string]reportFile `json:"files"`
}

// ParseReport reads a coverage.py JSON report. An unreadable or malformed
// report yields a zeroed result.
func (p *Plugin) ParseReport(reportPath, projectRoot string, threshold float64) *types.CoverageResult {
	data, err := os.ReadFile(reportPath)
	if err != nil {
		result := types.NewEmptyCoverageResult(PluginName, threshold)
		result.Error = fmt.Sprintf("failed to read coverage report: %v", err)
		return result
	}

	var report jsonReport
	if err := json.Unmarshal(data, &report); err != nil {
		result := types.NewEmptyCoverageResult(PluginName, threshold)
		result.Error = fmt.Sprintf("failed to parse coverage report: %v", err)
		return result
	}

	result := &types.CoverageResult{
		TotalLines:         report.Totals.NumStatements,
		CoveredLines:       report.Totals.CoveredLines,
		MissingLines:       report.Totals.MissingLines,
		ExcludedLines:      report.Totals.ExcludedLines,
		ReportedPercentage: report.Totals.PercentCovered,
		Threshold:          threshold,
		Tool:               PluginName,
		Files:              make(map[string]types.FileCoverage, len(report.Files)),
	}

	for path, f := range report.Files {
		if filepath.IsAbs(path) {
			if rel, err := filepath.Rel(projectRoot, path); err == nil {
				path = filepath.ToSlash(rel)
			}
		}
		result.Files[path] = types.FileCoverage{
			TotalLines:    f.Summary.NumStatements,
			CoveredLines:  f.Summary.CoveredLines,
			ExcludedLines: f.Summary.ExcludedLines,
			MissingLines:  f.MissingLines,
		}
	}

	if !result.Passed() {
		result.Issues = []types.UnifiedIssue{
			p.coverageIssue(projectRoot, result.Percentage(), threshold, result.TotalLines, result.CoveredLines, result.MissingLines),
		}
	}
	return result
}

func (p *Plugin) coverageIssue(projectRoot string, percentage, threshold float64, total, covered, missing int) types.UnifiedIssue {
	return types.UnifiedIssue{
		ID:         types.NewIssueID(SourceTool, ruleID, projectRoot),
		Domain:     types.DomainCoverage,
		SourceTool: SourceTool,
		Severity:   p.policy.Classify(percentage, threshold),
		Title:      fmt.Sprintf("Coverage %.1f%% is below threshold %.1f%%", percentage, threshold),
		Description: fmt.Sprintf(
			"Line coverage is %.1f%% (%d of %d lines covered, %d missing). The required minimum is %.1f%%.",
			percentage, covered, total, missing, threshold),
		RuleID:           ruleID,
		Recommendation:   "Add tests that exercise the missing lines listed in the coverage report.",
		DocumentationURL: "https://coverage.readthedocs.io/",
		Metadata: map[string]interface{}{
			"coverage_percentage": round2(percentage),
			"threshold":           threshold,
			"total_lines":         total,
			"covered_lines":       covered,
			"missing_lines":       missing,
			"gap_percentage":      round2(threshold - percentage),
		},
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (p *Plugin) root(sc *types.ScanContext) string {
	if sc != nil && sc.ProjectRoot != "" {
		return sc.ProjectRoot
	}
	return p.ProjectRoot
}

// DetectSourceDir guesses the package directory coverage should measure.
// Checked in order: src/<pkg> with __init__.py, bare src, a root package
// named after the project (hyphens become underscores), then
// [tool.setuptools.packages.find] where in pyproject.toml. Empty when
// nothing matches.
func DetectSourceDir(root string) string {
	src := filepath.Join(root, "src")
	if isDir(src) {
		entries, err := os.ReadDir(src)
		if err == nil {
			sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
			for _, e := range entries {
				if e.IsDir() && fileExists(filepath.Join(src, e.Name(), "__init__.py")) {
					return "src/" + e.Name()
				}
			}
		}
		return "src"
	}

	pkg := strings.ReplaceAll(filepath.Base(root), "-", "_")
	if fileExists(filepath.Join(root, pkg, "__init__.py")) {
		return pkg
	}

	return pyprojectWhere(filepath.Join(root, "pyproject.toml"))
}

// pyprojectWhere navigates tool.setuptools.packages.find.where generically,
// since setuptools also allows "packages" to be a plain list.
func pyprojectWhere(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var doc map[string]interface{}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return ""
	}

	node := interface{}(doc)
	for _, key := range []string{"tool", "setuptools", "packages", "find", "where"} {
		m, ok := node.(map[string]interface{})
		if !ok {
			return ""
		}
		node = m[key]
	}

	where, ok := node.([]interface{})
	if !ok || len(where) == 0 {
		return ""
	}
	first, _ := where[0].(string)
	return first
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
