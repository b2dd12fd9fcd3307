// Package ruff lints Python with ruff and applies its safe fixes.
package ruff

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/steveyegge/sieve/internal/plugins"
	"github.com/steveyegge/sieve/internal/types"
)

// PluginName is the registry key and issue source tool.
const PluginName = "ruff"

type location struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

type diagnostic struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Filename    string   `json:"filename"`
	Location    location `json:"location"`
	EndLocation location `json:"end_location"`
	URL         string   `json:"url"`
	Fix         *struct {
		Applicability string `json:"applicability"`
		Message       string `json:"message"`
	} `json:"fix"`
}

// Plugin wraps ruff.
type Plugin struct {
	plugins.Base
}

// New creates the ruff plugin.
func New(opts plugins.Options) *Plugin {
	return &Plugin{
		Base: plugins.NewBase(PluginName, "ruff", types.DomainLinting, []string{"python"}, opts),
	}
}

// Scan runs "ruff check --output-format json --exit-zero".
func (p *Plugin) Scan(ctx context.Context, sc *types.ScanContext) ([]types.UnifiedIssue, error) {
	bin, err := p.EnsureBinary()
	if err != nil {
		return nil, err
	}

	args := append([]string{"check", "--output-format", "json", "--exit-zero", "--no-cache"}, sc.Paths...)
	res, err := p.Exec(ctx, sc, bin, args...)
	if err != nil {
		return nil, fmt.Errorf("ruff failed: %w", err)
	}
	if res.ExitCode != 0 {
		p.Log.Warnw("ruff exited non-zero", "exit_code", res.ExitCode, "stderr", res.Stderr)
		return nil, nil
	}

	issues, err := ParseOutput([]byte(res.Stdout), sc.ProjectRoot)
	if err != nil {
		p.Log.Warnw("unparseable ruff output", "error", err)
		return nil, nil
	}
	return issues, nil
}

// Fix runs "ruff check --fix" on the context's paths. Exit code 1 means
// unfixable violations remain, which is not a failure of the fix itself.
func (p *Plugin) Fix(ctx context.Context, sc *types.ScanContext) error {
	bin, err := p.EnsureBinary()
	if err != nil {
		return err
	}

	args := append([]string{"check", "--fix", "--no-cache"}, sc.Paths...)
	res, err := p.Exec(ctx, sc, bin, args...)
	if err != nil {
		return fmt.Errorf("ruff --fix failed: %w", err)
	}
	if res.ExitCode > 1 {
		return fmt.Errorf("ruff --fix exited with code %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// ParseOutput converts ruff's JSON array into issues.
func ParseOutput(data []byte, projectRoot string) ([]types.UnifiedIssue, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}
	var diags []diagnostic
	if err := json.Unmarshal(data, &diags); err != nil {
		return nil, err
	}

	issues := make([]types.UnifiedIssue, 0, len(diags))
	for _, d := range diags {
		path := d.Filename
		if !filepath.IsAbs(path) && projectRoot != "" {
			path = filepath.Join(projectRoot, path)
		}
		code := d.Code
		if code == "" {
			code = "syntax-error"
		}

		issue := types.UnifiedIssue{
			ID:               types.NewIssueID(PluginName, code, path, d.Location.Row, d.Location.Column),
			Domain:           types.DomainLinting,
			SourceTool:       PluginName,
			Severity:         severity(code),
			Title:            fmt.Sprintf("%s: %s", code, d.Message),
			Description:      d.Message,
			FilePath:         path,
			LineStart:        d.Location.Row,
			LineEnd:          d.EndLocation.Row,
			RuleID:           code,
			DocumentationURL: d.URL,
			Fixable:          d.Fix != nil,
			Metadata: map[string]interface{}{
				"column": d.Location.Column,
			},
		}
		if d.Fix != nil {
			issue.Recommendation = d.Fix.Message
			issue.Metadata["fix_applicability"] = d.Fix.Applicability
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// severity grades rule families: syntax errors and bandit rules are HIGH,
// pyflakes findings are MEDIUM, style is LOW.
func severity(code string) types.Severity {
	switch {
	case code == "syntax-error", strings.HasPrefix(code, "E9"), strings.HasPrefix(code, "S"):
		return types.SeverityHigh
	case strings.HasPrefix(code, "F"), strings.HasPrefix(code, "B"):
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}
