package orchestrator

import (
	"time"

	"github.com/steveyegge/sieve/internal/types"
)

// IssueSummary is the compact issue form returned from scans.
type IssueSummary struct {
	ID       string `json:"id"`
	Domain   string `json:"domain"`
	Severity string `json:"severity"`
	Priority int    `json:"priority"`
	Tool     string `json:"tool"`
	Title    string `json:"title"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Fixable  bool   `json:"fixable,omitempty"`
}

// ScanResult is the outcome of Scan, ScanFiles and CheckFile.
// Lookup failures are reported in Error, never as a Go error.
type ScanResult struct {
	Domains        []string              `json:"domains"`
	TotalIssues    int                   `json:"total_issues"`
	Blocking       bool                  `json:"blocking"`
	SeverityCounts map[string]int        `json:"severity_counts"`
	Issues         []IssueSummary        `json:"issues"`
	Errors         map[string]string     `json:"errors,omitempty"`
	Coverage       *types.CoverageResult `json:"coverage,omitempty"`
	File           string                `json:"file,omitempty"`
	Language       string                `json:"language,omitempty"`
	Files          []string              `json:"files,omitempty"`
	StartedAt      time.Time             `json:"started_at"`
	DurationMS     int64                 `json:"duration_ms"`
	Error          string                `json:"error,omitempty"`
}

func newScanResult() *ScanResult {
	counts := make(map[string]int)
	for _, sev := range types.AllSeverities() {
		counts[string(sev)] = 0
	}
	return &ScanResult{
		Domains:        []string{},
		SeverityCounts: counts,
		Issues:         []IssueSummary{},
		Errors:         map[string]string{},
		StartedAt:      time.Now(),
	}
}

// FixInstructions explains how to resolve one cached issue.
type FixInstructions struct {
	IssueID          string   `json:"issue_id"`
	Priority         int      `json:"priority"`
	Severity         string   `json:"severity"`
	Domain           string   `json:"domain"`
	Tool             string   `json:"tool"`
	Title            string   `json:"title"`
	File             string   `json:"file,omitempty"`
	Line             int      `json:"line,omitempty"`
	Description      string   `json:"description"`
	Recommendation   string   `json:"recommendation,omitempty"`
	FixSteps         []string `json:"fix_steps"`
	DocumentationURL string   `json:"documentation_url,omitempty"`
	AutoFixable      bool     `json:"auto_fixable"`
	AIGuidance       string   `json:"ai_guidance,omitempty"`
	Error            string   `json:"error,omitempty"`
}

// FixResult reports an automatic fix attempt.
type FixResult struct {
	IssueID string `json:"issue_id"`
	Success bool   `json:"success"`
	Tool    string `json:"tool,omitempty"`
	File    string `json:"file,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Status describes the executor and its environment.
type Status struct {
	ProjectRoot     string            `json:"project_root"`
	AvailableTools  []string          `json:"available_tools"`
	RegisteredTools []string          `json:"registered_tools"`
	ToolVersions    map[string]string `json:"tool_versions,omitempty"`
	CachedIssues    int               `json:"cached_issues"`
	Domains         []string          `json:"domains"`
	FailOn          string            `json:"fail_on"`
	Error           string            `json:"error,omitempty"`
}
