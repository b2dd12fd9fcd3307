package types

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityPriority(t *testing.T) {
	tests := []struct {
		severity Severity
		priority int
	}{
		{SeverityCritical, 1},
		{SeverityHigh, 2},
		{SeverityMedium, 3},
		{SeverityLow, 4},
		{SeverityInfo, 5},
		{Severity("bogus"), 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.priority, tt.severity.Priority(), "severity %s", tt.severity)
	}
}

func TestSeverityOrdering(t *testing.T) {
	all := AllSeverities()
	for i := 1; i < len(all); i++ {
		assert.Greater(t, all[i-1].Rank(), all[i].Rank())
	}
	assert.True(t, SeverityCritical.AtLeast(SeverityHigh))
	assert.True(t, SeverityHigh.AtLeast(SeverityHigh))
	assert.False(t, SeverityMedium.AtLeast(SeverityHigh))
}

func TestParseSeverity(t *testing.T) {
	sev, ok := ParseSeverity(" high ")
	assert.True(t, ok)
	assert.Equal(t, SeverityHigh, sev)

	sev, ok = ParseSeverity("warning")
	assert.False(t, ok)
	assert.Equal(t, SeverityInfo, sev)
}

func TestDomainCategories(t *testing.T) {
	for _, d := range ScanDomains() {
		assert.True(t, d.IsScanDomain(), d)
		assert.False(t, d.IsToolDomain(), d)
		assert.True(t, d.IsValid(), d)
	}
	for _, d := range ToolDomains() {
		assert.True(t, d.IsToolDomain(), d)
		assert.False(t, d.IsScanDomain(), d)
	}
	assert.False(t, Domain("nope").IsValid())
}

func TestLookupDomain(t *testing.T) {
	tests := map[string]Domain{
		"lint":         DomainLinting,
		"LINTING":      DomainLinting,
		"typecheck":    DomainTypeChecking,
		"types":        DomainTypeChecking,
		"security":     DomainSAST,
		"deps":         DomainSCA,
		"dependencies": DomainSCA,
		"containers":   DomainContainer,
		"tests":        DomainTesting,
		"cov":          DomainCoverage,
		"iac":          DomainIaC,
	}
	for name, want := range tests {
		got, ok := LookupDomain(name)
		require.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}

	_, ok := LookupDomain("all")
	assert.False(t, ok, "all is expanded by callers, not aliased")
	_, ok = LookupDomain("nonsense")
	assert.False(t, ok)
}

func TestDomainAliasesIsCopy(t *testing.T) {
	aliases := DomainAliases()
	aliases["lint"] = DomainCoverage

	got, _ := LookupDomain("lint")
	assert.Equal(t, DomainLinting, got)
}

func TestNewIssueIDDeterministic(t *testing.T) {
	a := NewIssueID("ruff", "E501", "app.py", 10)
	b := NewIssueID("ruff", "E501", "app.py", 10)
	c := NewIssueID("ruff", "E501", "app.py", 11)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 36)
}

func TestSortIssues(t *testing.T) {
	issues := []UnifiedIssue{
		{ID: "3", Severity: SeverityLow, FilePath: "a.py"},
		{ID: "2", Severity: SeverityCritical, FilePath: "b.py", LineStart: 5},
		{ID: "1", Severity: SeverityCritical, FilePath: "b.py", LineStart: 2},
		{ID: "4", Severity: SeverityHigh, FilePath: "a.py"},
	}
	SortIssues(issues)

	ids := make([]string, len(issues))
	for i, issue := range issues {
		ids[i] = issue.ID
	}
	assert.Equal(t, []string{"1", "2", "4", "3"}, ids)

	counts := CountBySeverity(issues)
	assert.Equal(t, 2, counts[SeverityCritical])
	assert.Equal(t, 1, counts[SeverityHigh])
	assert.Equal(t, 0, counts[SeverityMedium])
}

func TestIssueLocation(t *testing.T) {
	assert.Equal(t, "", UnifiedIssue{}.Location())
	assert.Equal(t, "app.py", UnifiedIssue{FilePath: "app.py"}.Location())
	assert.Equal(t, "app.py:12", UnifiedIssue{FilePath: "app.py", LineStart: 12}.Location())
}

func TestScanContextProjectWide(t *testing.T) {
	sc := &ScanContext{ProjectRoot: "/p", Paths: []string{"/p"}, Stream: &bytes.Buffer{}}
	assert.True(t, sc.IsProjectWide())

	sc = &ScanContext{ProjectRoot: "/p", Paths: []string{"/p/a.py"}}
	assert.False(t, sc.IsProjectWide())
}

func TestCoverageResultPercentage(t *testing.T) {
	r := &CoverageResult{TotalLines: 200, CoveredLines: 150, ReportedPercentage: 99, Threshold: 80}
	assert.Equal(t, 75.0, r.Percentage())
	assert.False(t, r.Passed())

	r = &CoverageResult{ReportedPercentage: 85, Threshold: 80}
	assert.Equal(t, 85.0, r.Percentage())
	assert.True(t, r.Passed())

	empty := NewEmptyCoverageResult("coverage_py", 80)
	assert.Equal(t, 0, empty.TotalLines)
	assert.Equal(t, 80.0, empty.Threshold)
	assert.Equal(t, "coverage_py", empty.Tool)
	assert.False(t, empty.Passed())
}

func TestFileCoveragePercentage(t *testing.T) {
	assert.Equal(t, 0.0, FileCoverage{}.Percentage())
	assert.Equal(t, 50.0, FileCoverage{TotalLines: 10, CoveredLines: 5}.Percentage())
}
