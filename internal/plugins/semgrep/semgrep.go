// Package semgrep runs semgrep's registry rules for static application
// security testing.
package semgrep

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/steveyegge/sieve/internal/plugins"
	"github.com/steveyegge/sieve/internal/types"
)

// PluginName is the registry key.
const PluginName = "semgrep"

type semgrepJSON struct {
	Results []struct {
		CheckID string `json:"check_id"`
		Path    string `json:"path"`
		Start   struct {
			Line int `json:"line"`
		} `json:"start"`
		End struct {
			Line int `json:"line"`
		} `json:"end"`
		Extra struct {
			Message  string `json:"message"`
			Severity string `json:"severity"` // INFO|WARNING|ERROR
			Fix      string `json:"fix"`
			Metadata struct {
				CWE        interface{} `json:"cwe"` // string | []string | null
				References []string    `json:"references"`
				Source     string      `json:"source"`
			} `json:"metadata"`
		} `json:"extra"`
	} `json:"results"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Plugin wraps semgrep.
type Plugin struct {
	plugins.Base
	config string
}

// New creates the semgrep plugin using the "auto" rule config.
func New(opts plugins.Options) *Plugin {
	return &Plugin{
		Base:   plugins.NewBase(PluginName, "semgrep", types.DomainSAST, nil, opts),
		config: "auto",
	}
}

// Scan runs "semgrep scan --config auto --json" over the context's paths.
func (p *Plugin) Scan(ctx context.Context, sc *types.ScanContext) ([]types.UnifiedIssue, error) {
	bin, err := p.EnsureBinary()
	if err != nil {
		return nil, err
	}

	args := []string{"scan", "--config", p.config, "--json", "--quiet", "--metrics=off"}
	args = append(args, sc.Paths...)

	res, err := p.Exec(ctx, sc, bin, args...)
	if err != nil {
		return nil, fmt.Errorf("semgrep failed: %w", err)
	}
	if strings.TrimSpace(res.Stdout) == "" {
		p.Log.Warnw("semgrep produced no output", "exit_code", res.ExitCode, "stderr", res.Stderr)
		return nil, nil
	}

	issues, err := ParseOutput([]byte(res.Stdout), sc.ProjectRoot)
	if err != nil {
		p.Log.Warnw("unparseable semgrep output", "error", err)
		return nil, nil
	}
	return issues, nil
}

// ParseOutput converts semgrep JSON into issues.
func ParseOutput(data []byte, projectRoot string) ([]types.UnifiedIssue, error) {
	var doc semgrepJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	issues := make([]types.UnifiedIssue, 0, len(doc.Results))
	for _, r := range doc.Results {
		path := r.Path
		if !filepath.IsAbs(path) && projectRoot != "" {
			path = filepath.Join(projectRoot, path)
		}

		docURL := r.Extra.Metadata.Source
		if docURL == "" && len(r.Extra.Metadata.References) > 0 {
			docURL = r.Extra.Metadata.References[0]
		}

		meta := map[string]interface{}{}
		if cwe := toCWE(r.Extra.Metadata.CWE); len(cwe) > 0 {
			meta["cwe"] = cwe
		}

		issues = append(issues, types.UnifiedIssue{
			ID:               types.NewIssueID(PluginName, r.CheckID, r.Path, r.Start.Line),
			Domain:           types.DomainSAST,
			SourceTool:       PluginName,
			Severity:         severity(r.Extra.Severity),
			Title:            shortRule(r.CheckID),
			Description:      strings.TrimSpace(r.Extra.Message),
			FilePath:         path,
			LineStart:        r.Start.Line,
			LineEnd:          r.End.Line,
			RuleID:           r.CheckID,
			Recommendation:   recommendation(r.Extra.Fix),
			DocumentationURL: docURL,
			Metadata:         meta,
		})
	}
	return issues, nil
}

func severity(s string) types.Severity {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return types.SeverityHigh
	case "WARNING":
		return types.SeverityMedium
	default:
		return types.SeverityInfo
	}
}

func toCWE(v interface{}) []string {
	switch t := v.(type) {
	case string:
		if t != "" {
			return []string{t}
		}
	case []interface{}:
		var out []string
		for _, e := range t {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// shortRule trims the registry prefix from dotted rule ids.
func shortRule(checkID string) string {
	if i := strings.LastIndex(checkID, "."); i >= 0 && i < len(checkID)-1 {
		return checkID[i+1:]
	}
	return checkID
}

func recommendation(fix string) string {
	if fix == "" {
		return ""
	}
	return "Suggested replacement: " + fix
}
