// Package pytest runs the project's test suite and reports failing tests
// and collection errors as issues.
package pytest

import (
	"bufio"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/steveyegge/sieve/internal/plugins"
	"github.com/steveyegge/sieve/internal/types"
)

// PluginName is the registry key.
const PluginName = "pytest"

// pytest exit code when nothing was collected
const exitNoTests = 5

var (
	countPattern   = regexp.MustCompile(`(\d+) (passed|failed|skipped|errors?)\b`)
	summaryPattern = regexp.MustCompile(`^(FAILED|ERROR) (\S+)(?: - (.*))?$`)
)

// Plugin wraps pytest.
type Plugin struct {
	plugins.Base
}

// New creates the pytest plugin.
func New(opts plugins.Options) *Plugin {
	return &Plugin{
		Base: plugins.NewBase(PluginName, "pytest", types.DomainTesting, []string{"python"}, opts),
	}
}

// Scan runs the suite with short failure summaries and converts each
// FAILED/ERROR summary line into a HIGH issue.
func (p *Plugin) Scan(ctx context.Context, sc *types.ScanContext) ([]types.UnifiedIssue, error) {
	bin, err := p.EnsureBinary()
	if err != nil {
		return nil, err
	}

	args := []string{"-q", "-rfE", "--tb=no", "--no-header"}
	if !sc.IsProjectWide() {
		args = append(args, sc.Paths...)
	}

	res, err := p.Exec(ctx, sc, bin, args...)
	if err != nil {
		return nil, fmt.Errorf("pytest failed: %w", err)
	}
	if res.ExitCode == exitNoTests {
		return nil, nil
	}
	return ParseFailures(res.Combined(), sc.ProjectRoot), nil
}

// ParseFailures extracts issues from pytest's short test summary.
func ParseFailures(output, projectRoot string) []types.UnifiedIssue {
	var issues []types.UnifiedIssue
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		m := summaryPattern.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if m == nil {
			continue
		}
		kind, nodeID, reason := m[1], m[2], m[3]
		file := nodeID
		if i := strings.Index(nodeID, "::"); i >= 0 {
			file = nodeID[:i]
		}

		rule := "test-failure"
		title := fmt.Sprintf("Test failed: %s", nodeID)
		if kind == "ERROR" {
			rule = "collection-error"
			title = fmt.Sprintf("Test error: %s", nodeID)
		}
		desc := title
		if reason != "" {
			desc = reason
		}

		issues = append(issues, types.UnifiedIssue{
			ID:             types.NewIssueID(PluginName, rule, nodeID),
			Domain:         types.DomainTesting,
			SourceTool:     PluginName,
			Severity:       types.SeverityHigh,
			Title:          title,
			Description:    desc,
			FilePath:       filepath.Join(projectRoot, file),
			RuleID:         rule,
			Recommendation: "Run the test locally with -x -vv and fix the failing assertion or setup.",
			Metadata: map[string]interface{}{
				"node_id": nodeID,
			},
		})
	}
	return issues
}

// ParseSummary reads pytest's final "N passed, M failed ..." line.
// Output without a recognizable summary yields zero counts.
func ParseSummary(output string) types.TestStatistics {
	var stats types.TestStatistics
	lines := strings.Split(output, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		matches := countPattern.FindAllStringSubmatch(lines[i], -1)
		if len(matches) == 0 {
			continue
		}
		for _, m := range matches {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			switch m[2] {
			case "passed":
				stats.Passed += n
			case "failed":
				stats.Failed += n
			case "skipped":
				stats.Skipped += n
			case "error", "errors":
				stats.Errors += n
			}
		}
		break
	}
	stats.Total = stats.Passed + stats.Failed + stats.Skipped + stats.Errors
	return stats
}
