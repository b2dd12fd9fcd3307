// Package eslint lints JavaScript and TypeScript with ESLint.
package eslint

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
const PluginName = "eslint"

type fileResult struct {
	FilePath string `json:"filePath"`
	Messages []struct {
		RuleID   *string `json:"ruleId"`
		Severity int     `json:"severity"` // 1 warn, 2 error
		Fatal    bool    `json:"fatal"`
		Message  string  `json:"message"`
		Line     int     `json:"line"`
		EndLine  int     `json:"endLine"`
		Column   int     `json:"column"`
		Fix      *struct {
			Text string `json:"text"`
		} `json:"fix"`
	} `json:"messages"`
}

// Plugin wraps eslint. The binary is also searched in node_modules/.bin.
type Plugin struct {
	plugins.Base
}

// New creates the eslint plugin.
func New(opts plugins.Options) *Plugin {
	b := plugins.NewBase(PluginName, "eslint", types.DomainLinting, []string{"javascript", "typescript"}, opts)
	b.SearchDirs = []string{filepath.Join("node_modules", ".bin")}
	return &Plugin{Base: b}
}

// Scan runs "eslint -f json" over the context's paths.
func (p *Plugin) Scan(ctx context.Context, sc *types.ScanContext) ([]types.UnifiedIssue, error) {
	bin, err := p.EnsureBinary()
	if err != nil {
		return nil, err
	}

	args := append([]string{"-f", "json", "--no-error-on-unmatched-pattern"}, sc.Paths...)
	res, err := p.Exec(ctx, sc, bin, args...)
	if err != nil {
		return nil, fmt.Errorf("eslint failed: %w", err)
	}
	// 0: clean, 1: lint problems, 2: configuration or crash
	if res.ExitCode > 1 {
		p.Log.Warnw("eslint could not lint", "exit_code", res.ExitCode, "stderr", res.Stderr)
		return nil, nil
	}

	issues, err := ParseOutput([]byte(res.Stdout))
	if err != nil {
		p.Log.Warnw("unparseable eslint output", "error", err)
		return nil, nil
	}
	return issues, nil
}

// Fix runs "eslint --fix".
func (p *Plugin) Fix(ctx context.Context, sc *types.ScanContext) error {
	bin, err := p.EnsureBinary()
	if err != nil {
		return err
	}

	args := append([]string{"--fix"}, sc.Paths...)
	res, err := p.Exec(ctx, sc, bin, args...)
	if err != nil {
		return fmt.Errorf("eslint --fix failed: %w", err)
	}
	if res.ExitCode > 1 {
		return fmt.Errorf("eslint --fix exited with code %d: %s", res.ExitCode, strings.TrimSpace(res.Combined()))
	}
	return nil
}

// ParseOutput converts eslint's JSON formatter output into issues.
func ParseOutput(data []byte) ([]types.UnifiedIssue, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}
	var files []fileResult
	if err := json.Unmarshal(data, &files); err != nil {
		return nil, err
	}

	var issues []types.UnifiedIssue
	for _, f := range files {
		for _, m := range f.Messages {
			rule := "parse-error"
			if m.RuleID != nil && *m.RuleID != "" {
				rule = *m.RuleID
			}

			sev := types.SeverityLow
			switch {
			case m.Fatal:
				sev = types.SeverityHigh
			case m.Severity >= 2:
				sev = types.SeverityMedium
			}

			issue := types.UnifiedIssue{
				ID:          types.NewIssueID(PluginName, rule, f.FilePath, m.Line, m.Column),
				Domain:      types.DomainLinting,
				SourceTool:  PluginName,
				Severity:    sev,
				Title:       fmt.Sprintf("%s: %s", rule, m.Message),
				Description: m.Message,
				FilePath:    f.FilePath,
				LineStart:   m.Line,
				LineEnd:     m.EndLine,
				RuleID:      rule,
				Fixable:     m.Fix != nil,
			}
			if rule != "parse-error" && !strings.Contains(rule, "/") {
				issue.DocumentationURL = "https://eslint.org/docs/latest/rules/" + rule
			}
			issues = append(issues, issue)
		}
	}
	return issues, nil
}
