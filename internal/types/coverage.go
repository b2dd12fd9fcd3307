package types

// TestStatistics summarizes a test-runner invocation.
type TestStatistics struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// FileCoverage is the coverage breakdown for one file.
type FileCoverage struct {
	TotalLines    int   `json:"total_lines"`
	CoveredLines  int   `json:"covered_lines"`
	ExcludedLines int   `json:"excluded_lines"`
	MissingLines  []int `json:"missing_lines"`
}

// Percentage returns covered/total as a percentage (0 for empty files).
func (f FileCoverage) Percentage() float64 {
	if f.TotalLines == 0 {
		return 0
	}
	return float64(f.CoveredLines) * 100 / float64(f.TotalLines)
}

// CoverageResult is the outcome of a coverage measurement.
// A zero-valued result (TotalLines == 0) is the soft-failure shape: the tool
// was missing or produced nothing usable.
type CoverageResult struct {
	TotalLines    int `json:"total_lines"`
	CoveredLines  int `json:"covered_lines"`
	MissingLines  int `json:"missing_lines"`
	ExcludedLines int `json:"excluded_lines"`

	// ReportedPercentage is the tool's own figure. Only used when there is
	// no line data to recompute from.
	ReportedPercentage float64 `json:"reported_percentage,omitempty"`

	Threshold float64                 `json:"threshold"`
	Tool      string                  `json:"tool"`
	Files     map[string]FileCoverage `json:"files,omitempty"`
	TestStats *TestStatistics         `json:"test_stats,omitempty"`
	Issues    []UnifiedIssue          `json:"issues,omitempty"`

	// Error carries soft-failure context (e.g. report generation stderr)
	Error string `json:"error,omitempty"`
}

// NewEmptyCoverageResult returns the zeroed result used for soft failures.
func NewEmptyCoverageResult(tool string, threshold float64) *CoverageResult {
	return &CoverageResult{
		Tool:      tool,
		Threshold: threshold,
		Files:     map[string]FileCoverage{},
	}
}

// Percentage recomputes coverage from line counts, falling back to the
// reported figure when there are no lines.
func (r *CoverageResult) Percentage() float64 {
	if r.TotalLines > 0 {
		return float64(r.CoveredLines) * 100 / float64(r.TotalLines)
	}
	return r.ReportedPercentage
}

// Passed reports whether coverage meets the threshold.
func (r *CoverageResult) Passed() bool {
	return r.Percentage() >= r.Threshold
}
