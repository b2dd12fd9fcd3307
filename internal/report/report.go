// Package report renders executor results for terminals.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/steveyegge/sieve/internal/history"
	"github.com/steveyegge/sieve/internal/orchestrator"
	"github.com/steveyegge/sieve/internal/types"
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

func severityColor(sev string) func(a ...interface{}) string {
	switch types.Severity(sev) {
	case types.SeverityCritical:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case types.SeverityHigh:
		return red
	case types.SeverityMedium:
		return yellow
	case types.SeverityLow:
		return color.New(color.FgBlue).SprintFunc()
	default:
		return faint
	}
}

// Scan prints a scan result. At most limit issues are listed (0 = all).
func Scan(w io.Writer, r *orchestrator.ScanResult, limit int) {
	if r.Error != "" {
		fmt.Fprintf(w, "%s %s\n", red("Error:"), r.Error)
		return
	}

	header := "Scan"
	if r.File != "" {
		header = fmt.Sprintf("Check %s", r.File)
		if r.Language != "" {
			header += fmt.Sprintf(" (%s)", r.Language)
		}
	}
	fmt.Fprintf(w, "\n%s  %s\n\n", cyan(header), faint(strings.Join(r.Domains, ", ")))

	shown := r.Issues
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, issue := range shown {
		sev := severityColor(issue.Severity)
		loc := issue.File
		if loc != "" && issue.Line > 0 {
			loc = fmt.Sprintf("%s:%d", loc, issue.Line)
		}
		fixable := ""
		if issue.Fixable {
			fixable = green(" [fixable]")
		}
		fmt.Fprintf(w, "  %-18s %s %s%s\n", sev(issue.Severity), issue.Title, faint(loc), fixable)
		fmt.Fprintf(w, "  %-9s %s\n", "", faint(fmt.Sprintf("%s · %s · %s", issue.Tool, issue.Domain, issue.ID)))
	}
	if hidden := len(r.Issues) - len(shown); hidden > 0 {
		fmt.Fprintf(w, "  %s\n", faint(fmt.Sprintf("... and %d more", hidden)))
	}

	if r.Coverage != nil {
		cov := r.Coverage
		mark := green("✓")
		if !cov.Passed() {
			mark = red("✗")
		}
		fmt.Fprintf(w, "\n  %s coverage %.1f%% (threshold %.1f%%)\n", mark, cov.Percentage(), cov.Threshold)
		if cov.TestStats != nil {
			s := cov.TestStats
			fmt.Fprintf(w, "    tests: %d passed, %d failed, %d skipped, %d errors\n", s.Passed, s.Failed, s.Skipped, s.Errors)
		}
	}

	if len(r.Errors) > 0 {
		fmt.Fprintln(w)
		for _, domain := range sortedKeys(r.Errors) {
			fmt.Fprintf(w, "  %s %s: %s\n", yellow("!"), domain, r.Errors[domain])
		}
	}

	fmt.Fprintln(w)
	var counts []string
	for _, sev := range types.AllSeverities() {
		if n := r.SeverityCounts[string(sev)]; n > 0 {
			counts = append(counts, severityColor(string(sev))(fmt.Sprintf("%d %s", n, sev)))
		}
	}
	summary := fmt.Sprintf("%d issues", r.TotalIssues)
	if len(counts) > 0 {
		summary += " (" + strings.Join(counts, ", ") + ")"
	}
	verdict := green("✓ passed")
	if r.Blocking {
		verdict = red("✗ blocking")
	}
	fmt.Fprintf(w, "%s  %s  %s\n\n", verdict, summary, faint(fmt.Sprintf("%dms", r.DurationMS)))
}

// Fix prints fix instructions.
func Fix(w io.Writer, fi *orchestrator.FixInstructions) {
	if fi.Error != "" {
		fmt.Fprintf(w, "%s %s\n", red("Error:"), fi.Error)
		return
	}

	sev := severityColor(fi.Severity)
	fmt.Fprintf(w, "\n%s %s\n", sev(fmt.Sprintf("[P%d %s]", fi.Priority, fi.Severity)), bold(fi.Title))
	loc := fi.File
	if loc != "" && fi.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, fi.Line)
	}
	fmt.Fprintf(w, "%s\n\n", faint(fmt.Sprintf("%s · %s · %s", fi.Tool, fi.Domain, loc)))

	if fi.Description != "" {
		fmt.Fprintf(w, "%s\n\n", fi.Description)
	}

	fmt.Fprintf(w, "%s\n", cyan("Steps"))
	for i, step := range fi.FixSteps {
		fmt.Fprintf(w, "  %d. %s\n", i+1, step)
	}
	if fi.DocumentationURL != "" {
		fmt.Fprintf(w, "\n%s %s\n", cyan("Docs"), fi.DocumentationURL)
	}
	if fi.AIGuidance != "" {
		fmt.Fprintf(w, "\n%s\n%s\n", cyan("Guidance"), fi.AIGuidance)
	}
	if fi.AutoFixable {
		fmt.Fprintf(w, "\n%s run `sieve fix %s`\n", green("Auto-fixable:"), fi.IssueID)
	}
	fmt.Fprintln(w)
}

// FixResult prints the outcome of an automatic fix.
func FixResult(w io.Writer, fr *orchestrator.FixResult) {
	if !fr.Success {
		fmt.Fprintf(w, "%s %s\n", red("✗ Fix failed:"), fr.Error)
		return
	}
	fmt.Fprintf(w, "%s %s\n", green("✓"), fr.Message)
}

// Status prints executor status.
func Status(w io.Writer, st *orchestrator.Status) {
	if st.Error != "" {
		fmt.Fprintf(w, "%s %s\n", red("Error:"), st.Error)
		return
	}
	fmt.Fprintf(w, "\n%s\n\n", cyan("Sieve Status"))
	fmt.Fprintf(w, "  %-16s %s\n", "Project", st.ProjectRoot)
	fmt.Fprintf(w, "  %-16s %s\n", "Domains", strings.Join(st.Domains, ", "))
	fmt.Fprintf(w, "  %-16s %s\n", "Fail on", st.FailOn)
	fmt.Fprintf(w, "  %-16s %d\n", "Cached issues", st.CachedIssues)
	fmt.Fprintln(w)

	available := make(map[string]bool, len(st.AvailableTools))
	for _, name := range st.AvailableTools {
		available[name] = true
	}
	fmt.Fprintf(w, "%s\n", cyan("Tools"))
	for _, name := range st.RegisteredTools {
		mark, note := red("✗"), faint("not installed")
		if available[name] {
			mark, note = green("✓"), ""
			if v, ok := st.ToolVersions[name]; ok {
				note = faint(v)
			}
		}
		fmt.Fprintf(w, "  %s %-18s %s\n", mark, name, note)
	}
	fmt.Fprintln(w)
}

// History prints recorded scans, newest first.
func History(w io.Writer, records []history.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No scans recorded yet.")
		return
	}
	fmt.Fprintf(w, "\n%s\n\n", cyan("Recent Scans"))
	for _, rec := range records {
		verdict := green("pass")
		if rec.Blocking {
			verdict = red("block")
		}
		fmt.Fprintf(w, "  %s  %-6s %-5s %4d issues  C%d H%d M%d L%d I%d  %s\n",
			rec.StartedAt.Local().Format("2006-01-02 15:04:05"),
			rec.Source,
			verdict,
			rec.TotalIssues,
			rec.Counts[types.SeverityCritical],
			rec.Counts[types.SeverityHigh],
			rec.Counts[types.SeverityMedium],
			rec.Counts[types.SeverityLow],
			rec.Counts[types.SeverityInfo],
			faint(rec.Duration.String()),
		)
	}
	fmt.Fprintln(w)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
