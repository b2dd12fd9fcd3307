package orchestrator

import (
	"context"
	"fmt"

	"github.com/steveyegge/sieve/internal/types"
)

// GetFixInstructions explains how to resolve a cached issue.
func (e *Executor) GetFixInstructions(ctx context.Context, id string) *FixInstructions {
	issue, ok := e.CachedIssue(id)
	if !ok {
		return &FixInstructions{
			IssueID:  id,
			FixSteps: []string{},
			Error:    fmt.Sprintf("issue not found: %s", id),
		}
	}

	fi := &FixInstructions{
		IssueID:          issue.ID,
		Priority:         issue.Severity.Priority(),
		Severity:         string(issue.Severity),
		Domain:           string(issue.Domain),
		Tool:             issue.SourceTool,
		Title:            issue.Title,
		File:             e.relPath(issue.FilePath),
		Line:             issue.LineStart,
		Description:      issue.Description,
		Recommendation:   issue.Recommendation,
		FixSteps:         fixSteps(issue),
		DocumentationURL: issue.DocumentationURL,
		AutoFixable:      e.canAutoFix(issue),
	}

	if e.advisor != nil {
		guidance, err := e.advisor.SuggestFix(ctx, issue)
		if err != nil {
			e.log.Warnw("fix advisor failed", "issue", id, "error", err)
		} else {
			fi.AIGuidance = guidance
		}
	}
	return fi
}

// ApplyFix runs the owning tool's autofix on the issue's file. Only linting
// issues can be fixed automatically. The cache is left as is; the next scan
// of the file refreshes it.
func (e *Executor) ApplyFix(ctx context.Context, id string) *FixResult {
	issue, ok := e.CachedIssue(id)
	if !ok {
		return &FixResult{IssueID: id, Error: fmt.Sprintf("issue not found: %s", id)}
	}

	result := &FixResult{
		IssueID: id,
		Tool:    issue.SourceTool,
		File:    e.relPath(issue.FilePath),
	}
	if issue.Domain != types.DomainLinting {
		result.Error = fmt.Sprintf("automatic fixes are only supported for linting issues (issue domain: %s)", issue.Domain)
		return result
	}
	if issue.FilePath == "" {
		result.Error = "issue has no file to fix"
		return result
	}
	fixer, ok := e.registry.FindFixer(issue.SourceTool)
	if !ok {
		result.Error = fmt.Sprintf("no fixer available for %s", issue.SourceTool)
		return result
	}
	if _, err := fixer.EnsureBinary(); err != nil {
		result.Error = err.Error()
		return result
	}

	if err := e.scanSem.Acquire(ctx, 1); err != nil {
		result.Error = fmt.Sprintf("fix cancelled: %v", err)
		return result
	}
	defer e.scanSem.Release(1)

	abs, _ := e.resolvePath(issue.FilePath)
	sc := &types.ScanContext{ProjectRoot: e.root, Paths: []string{abs}, Stream: e.stream}
	if err := fixer.Fix(ctx, sc); err != nil {
		result.Error = fmt.Sprintf("fix failed: %v", err)
		return result
	}

	e.log.Infow("applied fix", "issue", id, "tool", fixer.Name(), "file", result.File)
	result.Success = true
	result.Message = fmt.Sprintf("applied %s fixes to %s", fixer.Name(), result.File)
	return result
}

func (e *Executor) canAutoFix(issue types.UnifiedIssue) bool {
	if issue.Domain != types.DomainLinting || issue.FilePath == "" {
		return false
	}
	_, ok := e.registry.FindFixer(issue.SourceTool)
	return ok
}

// fixSteps returns generic remediation steps for the issue's domain.
func fixSteps(issue types.UnifiedIssue) []string {
	where := issue.Location()
	if where == "" {
		where = "the affected code"
	}

	var steps []string
	switch issue.Domain {
	case types.DomainLinting:
		steps = []string{
			fmt.Sprintf("Open %s", where),
			fmt.Sprintf("Apply the change rule %s asks for", orDefault(issue.RuleID, "the rule")),
		}
		if issue.Fixable {
			steps = append(steps, fmt.Sprintf("Or run `sieve fix %s` to let %s fix it", issue.ID, issue.SourceTool))
		}
	case types.DomainTypeChecking:
		steps = []string{
			fmt.Sprintf("Open %s", where),
			"Correct the type annotation or the value so both agree",
			"Re-run the type checker to confirm",
		}
	case types.DomainSAST:
		steps = []string{
			fmt.Sprintf("Review the flagged code at %s", where),
			"Replace the unsafe pattern with a safe API",
			"Add a regression test covering the vulnerable input",
		}
	case types.DomainSCA:
		steps = []string{
			"Upgrade the vulnerable dependency to a fixed version",
			"Regenerate the lock file",
			"Run the test suite against the upgraded dependency",
		}
	case types.DomainIaC, types.DomainContainer:
		steps = []string{
			fmt.Sprintf("Update the configuration at %s", where),
			"Re-run the scan to confirm the misconfiguration is gone",
		}
	case types.DomainTesting:
		steps = []string{
			"Run the failing test locally with verbose output",
			"Fix the code under test or the test's expectation",
		}
	case types.DomainCoverage:
		steps = []string{
			"Find the files with the most missing lines in the coverage report",
			"Add tests that exercise the uncovered branches",
			"Re-run coverage to confirm the threshold is met",
		}
	default:
		steps = []string{fmt.Sprintf("Review %s", where)}
	}

	if issue.Recommendation != "" {
		steps = append(steps, issue.Recommendation)
	}
	return append(steps, "Re-run sieve to verify the issue is resolved")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
