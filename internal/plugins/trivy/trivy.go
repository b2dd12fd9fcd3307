// Package trivy scans dependencies, infrastructure-as-code and container
// images with Trivy. One implementation backs three plugins, one per domain.
package trivy

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/steveyegge/sieve/internal/plugins"
	"github.com/steveyegge/sieve/internal/types"
)

// Mode selects the trivy subcommand and the domain reported into.
type Mode string

const (
	ModeDependencies Mode = "sca"
	ModeConfig       Mode = "iac"
	ModeImage        Mode = "container"
)

const binaryName = "trivy"

type trivyJSON struct {
	Results []struct {
		Target          string `json:"Target"`
		Vulnerabilities []struct {
			VulnerabilityID  string   `json:"VulnerabilityID"`
			PkgName          string   `json:"PkgName"`
			InstalledVersion string   `json:"InstalledVersion"`
			FixedVersion     string   `json:"FixedVersion"`
			Title            string   `json:"Title"`
			Description      string   `json:"Description"`
			Severity         string   `json:"Severity"`
			PrimaryURL       string   `json:"PrimaryURL"`
			References       []string `json:"References"`
		} `json:"Vulnerabilities"`
		Misconfigurations []struct {
			ID            string   `json:"ID"`
			Title         string   `json:"Title"`
			Description   string   `json:"Description"`
			Resolution    string   `json:"Resolution"`
			Severity      string   `json:"Severity"`
			PrimaryURL    string   `json:"PrimaryURL"`
			References    []string `json:"References"`
			CauseMetadata struct {
				StartLine int `json:"StartLine"`
				EndLine   int `json:"EndLine"`
			} `json:"CauseMetadata"`
		} `json:"Misconfigurations"`
	} `json:"Results"`
}

// Plugin wraps one trivy mode.
type Plugin struct {
	plugins.Base
	mode   Mode
	images []string
}

// NewDependencies creates the "trivy-sca" plugin (trivy fs, vulnerabilities only).
func NewDependencies(opts plugins.Options) *Plugin {
	return newPlugin(ModeDependencies, types.DomainSCA, opts, nil)
}

// NewConfig creates the "trivy-iac" plugin (trivy config).
func NewConfig(opts plugins.Options) *Plugin {
	return newPlugin(ModeConfig, types.DomainIaC, opts, nil)
}

// NewImage creates the "trivy-container" plugin scanning the given image refs.
func NewImage(opts plugins.Options, images []string) *Plugin {
	return newPlugin(ModeImage, types.DomainContainer, opts, images)
}

func newPlugin(mode Mode, domain types.Domain, opts plugins.Options, images []string) *Plugin {
	name := "trivy-" + string(mode)
	return &Plugin{
		Base:   plugins.NewBase(name, binaryName, domain, nil, opts),
		mode:   mode,
		images: images,
	}
}

// Mode returns the plugin's trivy mode.
func (p *Plugin) Mode() Mode { return p.mode }

// Scan runs trivy for the plugin's mode. Dependency and config scans always
// cover the project root because trivy resolves manifests per directory.
func (p *Plugin) Scan(ctx context.Context, sc *types.ScanContext) ([]types.UnifiedIssue, error) {
	bin, err := p.EnsureBinary()
	if err != nil {
		return nil, err
	}

	var targets [][]string
	switch p.mode {
	case ModeDependencies:
		targets = append(targets, []string{"fs", "--scanners", "vuln", "--format", "json", "--quiet", sc.ProjectRoot})
	case ModeConfig:
		targets = append(targets, []string{"config", "--format", "json", "--quiet", sc.ProjectRoot})
	case ModeImage:
		for _, img := range p.images {
			targets = append(targets, []string{"image", "--format", "json", "--quiet", img})
		}
	}

	var issues []types.UnifiedIssue
	for _, args := range targets {
		res, err := p.Exec(ctx, sc, bin, args...)
		if err != nil {
			return issues, fmt.Errorf("trivy %s failed: %w", args[0], err)
		}
		if res.ExitCode != 0 {
			p.Log.Warnw("trivy exited non-zero", "mode", p.mode, "exit_code", res.ExitCode, "stderr", res.Stderr)
		}
		found, err := ParseOutput([]byte(res.Stdout), p.Domain(), sc.ProjectRoot)
		if err != nil {
			p.Log.Warnw("unparseable trivy output", "mode", p.mode, "error", err)
			continue
		}
		issues = append(issues, found...)
	}
	return issues, nil
}

// ParseOutput converts trivy JSON into issues tagged with domain.
func ParseOutput(data []byte, domain types.Domain, projectRoot string) ([]types.UnifiedIssue, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}
	var doc trivyJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	var issues []types.UnifiedIssue
	for _, r := range doc.Results {
		target := r.Target
		filePath := target
		if domain != types.DomainContainer && !filepath.IsAbs(target) && projectRoot != "" {
			filePath = filepath.Join(projectRoot, target)
		}

		for _, v := range r.Vulnerabilities {
			rec := "No fixed version is available yet."
			if v.FixedVersion != "" {
				rec = fmt.Sprintf("Upgrade %s to %s or later.", v.PkgName, v.FixedVersion)
			}
			issues = append(issues, types.UnifiedIssue{
				ID:               types.NewIssueID(binaryName, domain, v.VulnerabilityID, target, v.PkgName, v.InstalledVersion),
				Domain:           domain,
				SourceTool:       binaryName,
				Severity:         severity(v.Severity),
				Title:            fmt.Sprintf("%s in %s %s", v.VulnerabilityID, v.PkgName, v.InstalledVersion),
				Description:      firstNonEmpty(v.Title, v.Description),
				FilePath:         filePath,
				RuleID:           v.VulnerabilityID,
				Recommendation:   rec,
				DocumentationURL: firstURL(v.PrimaryURL, v.References),
				Metadata: map[string]interface{}{
					"package":           v.PkgName,
					"installed_version": v.InstalledVersion,
					"fixed_version":     v.FixedVersion,
				},
			})
		}

		for _, m := range r.Misconfigurations {
			issues = append(issues, types.UnifiedIssue{
				ID:               types.NewIssueID(binaryName, domain, m.ID, target, m.CauseMetadata.StartLine),
				Domain:           domain,
				SourceTool:       binaryName,
				Severity:         severity(m.Severity),
				Title:            m.Title,
				Description:      firstNonEmpty(m.Description, m.Title),
				FilePath:         filePath,
				LineStart:        m.CauseMetadata.StartLine,
				LineEnd:          m.CauseMetadata.EndLine,
				RuleID:           m.ID,
				Recommendation:   m.Resolution,
				DocumentationURL: firstURL(m.PrimaryURL, m.References),
			})
		}
	}
	return issues, nil
}

func severity(s string) types.Severity {
	sev, _ := types.ParseSeverity(s)
	return sev
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

func firstURL(primary string, refs []string) string {
	if primary != "" {
		return primary
	}
	if len(refs) > 0 {
		return refs[0]
	}
	return ""
}
