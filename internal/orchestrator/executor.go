// Package orchestrator dispatches scans to analysis plugins, aggregates their
// findings into one result, and caches issues so they can later be explained
// or fixed by id.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/steveyegge/sieve/internal/config"
	"github.com/steveyegge/sieve/internal/logging"
	"github.com/steveyegge/sieve/internal/plugins"
	"github.com/steveyegge/sieve/internal/types"
)

// RunFunc executes one domain's analysis for a scan context.
// It may return partial issues alongside an error.
type RunFunc func(ctx context.Context, sc *types.ScanContext) ([]types.UnifiedIssue, error)

// Advisor produces free-form fix guidance for an issue.
type Advisor interface {
	SuggestFix(ctx context.Context, issue types.UnifiedIssue) (string, error)
}

// ScanListener is notified after every completed scan.
type ScanListener func(ctx context.Context, result *ScanResult)

// Config holds executor configuration
type Config struct {
	ProjectRoot string             // Required
	Settings    *config.Config     // Optional: defaults to config.DefaultConfig()
	Registry    *plugins.Registry  // Optional: defaults to an empty registry
	Logger      *zap.SugaredLogger // Optional
	Advisor     Advisor            // Optional: enables AI guidance in fix instructions
	Listeners   []ScanListener     // Optional: history, event publishing
	Stream      io.Writer          // Optional: live tool output
}

// Executor is the long-lived tool executor for one project.
type Executor struct {
	root     string
	settings *config.Config
	registry *plugins.Registry
	log      *zap.SugaredLogger
	advisor  Advisor
	stream   io.Writer

	// one scan or fix at a time
	scanSem *semaphore.Weighted

	mu           sync.Mutex
	cache        map[string]types.UnifiedIssue
	runners      map[types.Domain]RunFunc
	listeners    []ScanListener
	lastCoverage *types.CoverageResult
}

// New creates an executor rooted at cfg.ProjectRoot.
func New(cfg *Config) (*Executor, error) {
	if cfg.ProjectRoot == "" {
		return nil, fmt.Errorf("project root is required")
	}
	root, err := filepath.Abs(cfg.ProjectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}

	settings := cfg.Settings
	if settings == nil {
		def := config.DefaultConfig()
		settings = &def
	}
	registry := cfg.Registry
	if registry == nil {
		registry = plugins.NewRegistry()
	}

	e := &Executor{
		root:      root,
		settings:  settings,
		registry:  registry,
		log:       logging.OrNop(cfg.Logger),
		advisor:   cfg.Advisor,
		stream:    cfg.Stream,
		scanSem:   semaphore.NewWeighted(1),
		cache:     make(map[string]types.UnifiedIssue),
		runners:   make(map[types.Domain]RunFunc),
		listeners: append([]ScanListener(nil), cfg.Listeners...),
	}
	for _, d := range append(types.ScanDomains(), types.ToolDomains()...) {
		e.runners[d] = e.pluginRunner(d)
	}
	return e, nil
}

// ProjectRoot returns the absolute project root.
func (e *Executor) ProjectRoot() string { return e.root }

// Settings returns the executor's configuration.
func (e *Executor) Settings() *config.Config { return e.settings }

// SetRunner replaces the runner for a domain.
func (e *Executor) SetRunner(d types.Domain, fn RunFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runners[d] = fn
}

// AddListener registers a scan listener.
func (e *Executor) AddListener(l ScanListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// BuildContext creates the scan context. Files are resolved against the
// project root in input order (duplicates kept); no files means the whole
// project. Files outside the root are left out and returned.
func (e *Executor) BuildContext(domains []types.Domain, files []string) (*types.ScanContext, []string) {
	paths := make([]string, 0, len(files))
	var outside []string
	for _, f := range files {
		abs, inside := e.resolvePath(f)
		if !inside {
			outside = append(outside, f)
			continue
		}
		paths = append(paths, abs)
	}
	if len(files) == 0 {
		paths = []string{e.root}
	}
	return &types.ScanContext{
		ProjectRoot: e.root,
		Paths:       paths,
		Stream:      e.stream,
	}, outside
}

// Scan runs the named domains over files (or the whole project) and
// caches every issue found. Tool failures land in the result's Errors map
// keyed by domain; the remaining domains still run.
func (e *Executor) Scan(ctx context.Context, names []string, files []string) *ScanResult {
	result := e.scan(ctx, names, files)
	if result.Error == "" {
		e.notify(ctx, result)
	}
	return result
}

func (e *Executor) scan(ctx context.Context, names []string, files []string) *ScanResult {
	result := newScanResult()
	domains := e.filterEnabled(ParseDomains(names))
	result.Domains = domainNames(domains)

	sc, outside := e.BuildContext(domains, files)
	if len(files) > 0 {
		for _, p := range sc.Paths {
			result.Files = append(result.Files, e.relPath(p))
		}
	}
	if len(outside) > 0 {
		msg := fmt.Sprintf("outside project root: %s", strings.Join(outside, ", "))
		if len(sc.Paths) == 0 {
			result.Error = msg
			return result
		}
		result.Errors["files"] = msg
		e.log.Warnw("skipping files outside project root", "files", outside)
	}

	if len(domains) == 0 {
		result.DurationMS = time.Since(result.StartedAt).Milliseconds()
		return result
	}

	if err := e.scanSem.Acquire(ctx, 1); err != nil {
		result.Error = fmt.Sprintf("scan cancelled: %v", err)
		return result
	}
	defer e.scanSem.Release(1)

	e.setCoverage(nil)

	var all []types.UnifiedIssue
	for _, d := range domains {
		if err := ctx.Err(); err != nil {
			result.Errors[string(d)] = fmt.Sprintf("scan cancelled: %v", err)
			continue
		}

		start := time.Now()
		issues, err := e.runner(d)(ctx, sc)
		all = append(all, issues...)
		if err != nil {
			result.Errors[string(d)] = err.Error()
			e.log.Warnw("domain failed", "domain", d, "error", err)
		}
		e.log.Debugw("domain finished", "domain", d, "issues", len(issues), "elapsed", time.Since(start))
	}

	all = dedupe(all)
	e.cacheIssues(all)
	result.Coverage = e.takeCoverage()
	e.summarize(result, all)
	result.DurationMS = time.Since(result.StartedAt).Milliseconds()
	return result
}

// ScanFiles scans a batch of changed files with the union of the domains
// relevant to their languages. Used by the watcher.
func (e *Executor) ScanFiles(ctx context.Context, files []string) *ScanResult {
	if len(files) == 0 {
		return newScanResult()
	}

	seen := make(map[string]bool)
	var names []string
	for _, f := range files {
		for _, name := range DomainsForLanguage(DetectLanguage(f)) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return e.Scan(ctx, names, files)
}

// CheckFile scans a single file with the domains relevant to its language.
func (e *Executor) CheckFile(ctx context.Context, path string) *ScanResult {
	abs, inside := e.resolvePath(path)
	info, err := os.Stat(abs)
	if !inside || err != nil || info.IsDir() {
		result := newScanResult()
		result.File = path
		result.Error = fmt.Sprintf("file not found: %s", path)
		return result
	}

	lang := DetectLanguage(abs)
	result := e.Scan(ctx, DomainsForLanguage(lang), []string{abs})
	result.File = e.relPath(abs)
	result.Language = lang
	return result
}

// GetStatus reports the executor's state.
func (e *Executor) GetStatus(_ context.Context) *Status {
	available := e.registry.Available()
	if available == nil {
		available = []string{}
	}

	e.mu.Lock()
	cached := len(e.cache)
	e.mu.Unlock()

	return &Status{
		ProjectRoot:     e.root,
		AvailableTools:  available,
		RegisteredTools: e.registry.List(),
		CachedIssues:    cached,
		Domains:         domainNames(e.settings.EnabledDomains()),
		FailOn:          string(e.settings.FailOnSeverity()),
	}
}

// ToolVersions queries the version of every available plugin.
func (e *Executor) ToolVersions(ctx context.Context) map[string]string {
	versions := make(map[string]string)
	for _, p := range e.registry.Plugins() {
		if _, err := p.EnsureBinary(); err != nil {
			continue
		}
		versions[p.Name()] = p.GetVersion(ctx)
	}
	return versions
}

// ClearCache forgets every cached issue.
func (e *Executor) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]types.UnifiedIssue)
}

// CachedIssues returns the cached issues in fix-priority order.
func (e *Executor) CachedIssues() []types.UnifiedIssue {
	e.mu.Lock()
	issues := make([]types.UnifiedIssue, 0, len(e.cache))
	for _, issue := range e.cache {
		issues = append(issues, issue)
	}
	e.mu.Unlock()

	types.SortIssues(issues)
	return issues
}

// CachedIssue looks up one cached issue.
func (e *Executor) CachedIssue(id string) (types.UnifiedIssue, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	issue, ok := e.cache[id]
	return issue, ok
}

func (e *Executor) cacheIssues(issues []types.UnifiedIssue) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, issue := range issues {
		e.cache[issue.ID] = issue
	}
}

func (e *Executor) runner(d types.Domain) RunFunc {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runners[d]
}

func (e *Executor) notify(ctx context.Context, result *ScanResult) {
	e.mu.Lock()
	listeners := append([]ScanListener(nil), e.listeners...)
	e.mu.Unlock()

	for _, l := range listeners {
		l(ctx, result)
	}
}

func (e *Executor) setCoverage(r *types.CoverageResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastCoverage = r
}

func (e *Executor) takeCoverage() *types.CoverageResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.lastCoverage
	e.lastCoverage = nil
	return r
}

func (e *Executor) filterEnabled(domains []types.Domain) []types.Domain {
	enabled := make(map[types.Domain]bool)
	for _, d := range e.settings.EnabledDomains() {
		enabled[d] = true
	}
	out := make([]types.Domain, 0, len(domains))
	for _, d := range domains {
		if enabled[d] {
			out = append(out, d)
			continue
		}
		e.log.Debugw("domain disabled by configuration", "domain", d)
	}
	return out
}

func (e *Executor) summarize(result *ScanResult, issues []types.UnifiedIssue) {
	types.SortIssues(issues)
	failOn := e.settings.FailOnSeverity()

	result.TotalIssues = len(issues)
	for _, issue := range issues {
		result.SeverityCounts[string(issue.Severity)]++
		if issue.Severity.AtLeast(failOn) {
			result.Blocking = true
		}
		result.Issues = append(result.Issues, IssueSummary{
			ID:       issue.ID,
			Domain:   string(issue.Domain),
			Severity: string(issue.Severity),
			Priority: issue.Severity.Priority(),
			Tool:     issue.SourceTool,
			Title:    issue.Title,
			File:     e.relPath(issue.FilePath),
			Line:     issue.LineStart,
			Fixable:  issue.Fixable,
		})
	}
}

// resolvePath makes p absolute against the project root and reports
// whether it stays inside the root.
func (e *Executor) resolvePath(p string) (string, bool) {
	abs := p
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(e.root, abs)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(e.root, abs)
	if err != nil {
		return abs, false
	}
	inside := rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
	return abs, inside
}

// relPath renders p relative to the project root when it lies inside it.
func (e *Executor) relPath(p string) string {
	if p == "" || !filepath.IsAbs(p) {
		return p
	}
	rel, err := filepath.Rel(e.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return p
	}
	return rel
}

// pluginRunner is the default RunFunc: every registered plugin for the
// domain that understands at least one target file. A missing binary only
// fails the domain when no plugin could run at all.
func (e *Executor) pluginRunner(d types.Domain) RunFunc {
	return func(ctx context.Context, sc *types.ScanContext) ([]types.UnifiedIssue, error) {
		candidates := e.registry.ForDomain(d)
		if len(candidates) == 0 {
			return nil, fmt.Errorf("no plugin registered for %s", d)
		}

		var (
			issues       []types.UnifiedIssue
			failures     []error
			notInstalled []error
			ran          int
		)
		for _, p := range candidates {
			pctx := contextFor(p, sc)
			if pctx == nil {
				continue
			}

			found, err := e.runPlugin(ctx, p, pctx)
			issues = append(issues, found...)
			switch {
			case errors.Is(err, plugins.ErrNotInstalled):
				notInstalled = append(notInstalled, err)
			case err != nil:
				failures = append(failures, fmt.Errorf("%s: %w", p.Name(), err))
			default:
				ran++
			}
		}

		if len(failures) > 0 {
			return issues, errors.Join(failures...)
		}
		if ran == 0 && len(notInstalled) > 0 {
			return issues, errors.Join(notInstalled...)
		}
		for _, err := range notInstalled {
			e.log.Debugw("skipping unavailable tool", "domain", d, "error", err)
		}
		return issues, nil
	}
}

func (e *Executor) runPlugin(ctx context.Context, p plugins.Plugin, sc *types.ScanContext) ([]types.UnifiedIssue, error) {
	if _, err := p.EnsureBinary(); err != nil {
		return nil, err
	}

	switch impl := p.(type) {
	case plugins.CoverageMeasurer:
		cov := impl.MeasureCoverage(ctx, sc, e.settings.Coverage.Threshold, e.settings.Coverage.RunTests)
		if cov.Error != "" {
			e.log.Warnw("coverage measurement degraded", "plugin", p.Name(), "error", cov.Error)
		}
		e.setCoverage(cov)
		return cov.Issues, nil
	case plugins.IssueScanner:
		return impl.Scan(ctx, sc)
	default:
		return nil, fmt.Errorf("plugin %s cannot scan", p.Name())
	}
}

// contextFor narrows a targeted scan to the files the plugin understands.
// Nil means the plugin has nothing to look at.
func contextFor(p plugins.Plugin, sc *types.ScanContext) *types.ScanContext {
	if sc.IsProjectWide() || len(p.Languages()) == 0 {
		return sc
	}
	var paths []string
	for _, path := range sc.Paths {
		if plugins.SupportsLanguage(p, DetectLanguage(path)) {
			paths = append(paths, path)
		}
	}
	if len(paths) == 0 {
		return nil
	}
	return &types.ScanContext{ProjectRoot: sc.ProjectRoot, Paths: paths, Stream: sc.Stream}
}

// dedupe drops repeated ids, keeping the first occurrence.
func dedupe(issues []types.UnifiedIssue) []types.UnifiedIssue {
	seen := make(map[string]bool, len(issues))
	out := issues[:0]
	for _, issue := range issues {
		if seen[issue.ID] {
			continue
		}
		seen[issue.ID] = true
		out = append(out, issue)
	}
	return out
}
