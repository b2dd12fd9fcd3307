// Package plugins defines the contract between the orchestrator and the
// external analysis tools it drives, plus the shared plumbing (binary
// resolution, subprocess execution, registry) every built-in plugin uses.
package plugins

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/steveyegge/sieve/internal/types"
)

// DefaultTimeout bounds a single tool invocation.
const DefaultTimeout = 5 * time.Minute

// Plugin is implemented by every analysis tool wrapper.
type Plugin interface {
	// Name is the unique registry key (e.g. "ruff", "coverage_py")
	Name() string

	// Languages lists the languages the tool understands. Empty means any.
	Languages() []string

	// Domain is the analysis domain the plugin reports into
	Domain() types.Domain

	// EnsureBinary resolves the tool's executable or returns a
	// *NotInstalledError.
	EnsureBinary() (string, error)

	// GetVersion returns the tool version or "unknown".
	GetVersion(ctx context.Context) string
}

// IssueScanner produces issues for a scan context.
type IssueScanner interface {
	Plugin
	Scan(ctx context.Context, sc *types.ScanContext) ([]types.UnifiedIssue, error)
}

// Fixer applies the tool's automatic fixes to the context's paths.
type Fixer interface {
	Plugin
	Fix(ctx context.Context, sc *types.ScanContext) error
}

// CoverageMeasurer runs tests under coverage and reports the result.
// It never fails hard: tool problems come back as a zeroed result.
type CoverageMeasurer interface {
	Plugin
	MeasureCoverage(ctx context.Context, sc *types.ScanContext, threshold float64, runTests bool) *types.CoverageResult
}

// Options carries the dependencies shared by built-in plugins.
type Options struct {
	ProjectRoot string
	Runner      CommandRunner      // Optional: defaults to ExecRunner
	Timeout     time.Duration      // Optional: defaults to DefaultTimeout
	Logger      *zap.SugaredLogger // Optional: defaults to a no-op logger
}

// Base implements the Plugin methods common to every built-in wrapper.
// Concrete plugins embed it and add Scan/Fix/MeasureCoverage.
type Base struct {
	PluginName   string
	Binary       string
	Langs        []string
	PluginDomain types.Domain

	// SearchDirs are project-relative directories checked after .venv/bin
	// and before $PATH (e.g. node_modules/.bin).
	SearchDirs []string

	ProjectRoot string
	Run         CommandRunner
	Timeout     time.Duration
	Log         *zap.SugaredLogger
}

// NewBase fills a Base from shared options, applying defaults.
func NewBase(name, binary string, domain types.Domain, langs []string, opts Options) Base {
	b := Base{
		PluginName:   name,
		Binary:       binary,
		Langs:        langs,
		PluginDomain: domain,
		ProjectRoot:  opts.ProjectRoot,
		Run:          opts.Runner,
		Timeout:      opts.Timeout,
		Log:          opts.Logger,
	}
	if b.Run == nil {
		b.Run = ExecRunner
	}
	if b.Timeout <= 0 {
		b.Timeout = DefaultTimeout
	}
	if b.Log == nil {
		b.Log = zap.NewNop().Sugar()
	}
	return b
}

func (b *Base) Name() string         { return b.PluginName }
func (b *Base) Languages() []string  { return b.Langs }
func (b *Base) Domain() types.Domain { return b.PluginDomain }

// EnsureBinary resolves the plugin's executable.
func (b *Base) EnsureBinary() (string, error) {
	return FindBinary(b.ProjectRoot, b.Binary, b.SearchDirs...)
}

// GetVersion queries "<binary> --version".
func (b *Base) GetVersion(ctx context.Context) string {
	return QueryVersion(ctx, b.Run, b.ProjectRoot, b.Binary, b.SearchDirs...)
}

// Exec runs bin with args in the project root, teeing output to the
// context's stream when set.
func (b *Base) Exec(ctx context.Context, sc *types.ScanContext, bin string, args ...string) (*CommandResult, error) {
	cmd := Command{
		Name:    bin,
		Args:    args,
		Dir:     b.ProjectRoot,
		Timeout: b.Timeout,
	}
	if sc != nil {
		cmd.Stream = sc.Stream
		if sc.ProjectRoot != "" {
			cmd.Dir = sc.ProjectRoot
		}
	}
	b.Log.Debugw("running tool", "plugin", b.PluginName, "bin", bin, "args", args)
	return b.Run(ctx, cmd)
}

// SupportsLanguage reports whether the plugin handles lang. Plugins with no
// language list handle everything.
func SupportsLanguage(p Plugin, lang string) bool {
	langs := p.Languages()
	if len(langs) == 0 {
		return true
	}
	for _, l := range langs {
		if l == lang {
			return true
		}
	}
	return false
}
