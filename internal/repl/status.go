package repl

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"

	"github.com/steveyegge/sieve/internal/report"
)

// issueListLimit caps how many issues scan output lists; 'issues' shows all
const issueListLimit = 25

// cmdScan runs a project scan
func (r *REPL) cmdScan(args []string) error {
	domains := args
	if len(domains) == 0 {
		domains = []string{"all"}
	}

	result := r.exec.Scan(r.ctx, domains, nil)
	if result.Error == "" {
		r.lastScan = result
	}
	report.Scan(r.out, result, issueListLimit)
	return nil
}

// cmdCheck analyzes a single file
func (r *REPL) cmdCheck(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: check <file>")
	}

	result := r.exec.CheckFile(r.ctx, args[0])
	if result.Error == "" {
		r.lastScan = result
	}
	report.Scan(r.out, result, issueListLimit)
	return nil
}

// cmdIssues lists every issue from the last scan
func (r *REPL) cmdIssues(args []string) error {
	if r.lastScan == nil {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Fprintf(r.out, "%s no scan yet. Run 'scan' first.\n", yellow("Note:"))
		return nil
	}

	limit := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return fmt.Errorf("invalid limit: %s", args[0])
		}
		limit = n
	}
	report.Scan(r.out, r.lastScan, limit)
	return nil
}

// cmdExplain shows fix instructions for an issue
func (r *REPL) cmdExplain(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: explain <issue-id>")
	}
	report.Fix(r.out, r.exec.GetFixInstructions(r.ctx, args[0]))
	return nil
}

// cmdFix applies an automatic fix
func (r *REPL) cmdFix(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: fix <issue-id>")
	}
	report.FixResult(r.out, r.exec.ApplyFix(r.ctx, args[0]))
	return nil
}

// cmdStatus shows tools and cache state
func (r *REPL) cmdStatus(args []string) error {
	report.Status(r.out, r.exec.GetStatus(r.ctx))
	return nil
}

// cmdClear empties the issue cache
func (r *REPL) cmdClear(args []string) error {
	r.exec.ClearCache()
	r.lastScan = nil
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "%s issue cache cleared\n", green("✓"))
	return nil
}
