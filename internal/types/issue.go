package types

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// issueNamespace scopes generated issue ids so they never collide with
// other UUIDv5 users.
var issueNamespace = uuid.MustParse("6f0e1c8a-3d2b-5b7e-9c41-2a8d5e7f1b03")

// UnifiedIssue is a finding normalized from any analysis tool.
// Identity is the ID: two issues are the same issue iff their ids match.
type UnifiedIssue struct {
	ID               string                 `json:"id"`
	Domain           Domain                 `json:"domain"`
	SourceTool       string                 `json:"source_tool"`
	Severity         Severity               `json:"severity"`
	Title            string                 `json:"title"`
	Description      string                 `json:"description"`
	FilePath         string                 `json:"file_path,omitempty"`
	LineStart        int                    `json:"line_start,omitempty"`
	LineEnd          int                    `json:"line_end,omitempty"`
	RuleID           string                 `json:"rule_id,omitempty"`
	Recommendation   string                 `json:"recommendation,omitempty"`
	DocumentationURL string                 `json:"documentation_url,omitempty"`
	Fixable          bool                   `json:"fixable,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// NewIssueID derives a stable id from the parts that locate a finding
// (tool, rule, file, line, ...). The same finding on a rescan gets the same id.
func NewIssueID(parts ...interface{}) string {
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = fmt.Sprint(p)
	}
	return uuid.NewSHA1(issueNamespace, []byte(strings.Join(strs, "\x00"))).String()
}

// Location renders file:line for display. Empty when the issue has no file.
func (i UnifiedIssue) Location() string {
	if i.FilePath == "" {
		return ""
	}
	if i.LineStart > 0 {
		return fmt.Sprintf("%s:%d", i.FilePath, i.LineStart)
	}
	return i.FilePath
}

// SortIssues orders issues by priority, then file, then line, then id.
func SortIssues(issues []UnifiedIssue) {
	sort.SliceStable(issues, func(a, b int) bool {
		x, y := issues[a], issues[b]
		if x.Severity.Priority() != y.Severity.Priority() {
			return x.Severity.Priority() < y.Severity.Priority()
		}
		if x.FilePath != y.FilePath {
			return x.FilePath < y.FilePath
		}
		if x.LineStart != y.LineStart {
			return x.LineStart < y.LineStart
		}
		return x.ID < y.ID
	})
}

// CountBySeverity tallies issues per severity.
func CountBySeverity(issues []UnifiedIssue) map[Severity]int {
	counts := make(map[Severity]int)
	for _, issue := range issues {
		counts[issue.Severity]++
	}
	return counts
}

// ScanContext describes one scan invocation. It is built per request and
// never persisted.
type ScanContext struct {
	// ProjectRoot is the absolute project directory
	ProjectRoot string

	// Paths are the absolute targets in request order. A domain-wide scan
	// has exactly one path: the project root.
	Paths []string

	// Stream receives live tool output when set
	Stream io.Writer
}

// IsProjectWide reports whether the context targets the whole project.
func (c *ScanContext) IsProjectWide() bool {
	return len(c.Paths) == 1 && c.Paths[0] == c.ProjectRoot
}
