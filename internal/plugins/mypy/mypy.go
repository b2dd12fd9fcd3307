// Package mypy type-checks Python with mypy's JSON output mode.
package mypy

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/steveyegge/sieve/internal/plugins"
	"github.com/steveyegge/sieve/internal/types"
)

// PluginName is the registry key and issue source tool.
const PluginName = "mypy"

type diagnostic struct {
	File     string  `json:"file"`
	Line     int     `json:"line"`
	Column   int     `json:"column"`
	Message  string  `json:"message"`
	Hint     *string `json:"hint"`
	Code     *string `json:"code"`
	Severity string  `json:"severity"`
}

// Plugin wraps mypy.
type Plugin struct {
	plugins.Base
}

// New creates the mypy plugin.
func New(opts plugins.Options) *Plugin {
	return &Plugin{
		Base: plugins.NewBase(PluginName, "mypy", types.DomainTypeChecking, []string{"python"}, opts),
	}
}

// Scan runs "mypy -O json". mypy exits 1 when it finds errors.
func (p *Plugin) Scan(ctx context.Context, sc *types.ScanContext) ([]types.UnifiedIssue, error) {
	bin, err := p.EnsureBinary()
	if err != nil {
		return nil, err
	}

	args := []string{"-O", "json", "--no-error-summary", "--show-column-numbers"}
	if sc.IsProjectWide() {
		args = append(args, ".")
	} else {
		args = append(args, sc.Paths...)
	}

	res, err := p.Exec(ctx, sc, bin, args...)
	if err != nil {
		return nil, fmt.Errorf("mypy failed: %w", err)
	}
	if res.ExitCode > 1 {
		p.Log.Warnw("mypy crashed", "exit_code", res.ExitCode, "stderr", res.Stderr)
		return nil, nil
	}
	return ParseOutput(res.Stdout, sc.ProjectRoot), nil
}

// ParseOutput reads one JSON object per line. Lines that are not JSON
// (mypy prints plain text for some fatal errors) are skipped.
func ParseOutput(output, projectRoot string) []types.UnifiedIssue {
	var issues []types.UnifiedIssue
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var d diagnostic
		if err := json.Unmarshal([]byte(line), &d); err != nil {
			continue
		}

		code := "misc"
		if d.Code != nil && *d.Code != "" {
			code = *d.Code
		}
		path := d.File
		if !filepath.IsAbs(path) && projectRoot != "" {
			path = filepath.Join(projectRoot, path)
		}

		sev := types.SeverityMedium
		if d.Severity == "note" {
			sev = types.SeverityInfo
		}

		issue := types.UnifiedIssue{
			ID:               types.NewIssueID(PluginName, code, d.File, d.Line, d.Column),
			Domain:           types.DomainTypeChecking,
			SourceTool:       PluginName,
			Severity:         sev,
			Title:            fmt.Sprintf("[%s] %s", code, d.Message),
			Description:      d.Message,
			FilePath:         path,
			LineStart:        d.Line,
			LineEnd:          d.Line,
			RuleID:           code,
			DocumentationURL: "https://mypy.readthedocs.io/en/stable/error_code_list.html",
		}
		if d.Hint != nil {
			issue.Recommendation = *d.Hint
		}
		issues = append(issues, issue)
	}
	return issues
}
