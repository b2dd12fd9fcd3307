// Package watcher turns bursts of filesystem changes into single rescans.
//
// Changes are collected into a pending set. Every qualifying change re-arms
// the debounce timer; when the window passes without further changes the
// whole batch is scanned once and the outcome fanned out to every callback.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/steveyegge/sieve/internal/config"
	"github.com/steveyegge/sieve/internal/logging"
	"github.com/steveyegge/sieve/internal/orchestrator"
)

// DefaultDebounce is the quiet period before a batch is scanned.
const DefaultDebounce = time.Second

// defaultIgnore is always in effect; configured patterns are added to it.
var defaultIgnore = []string{
	".git",
	"__pycache__",
	"node_modules",
	".venv",
	config.StateDir,
	"*.pyc",
	"*.pyo",
	".mypy_cache",
	".pytest_cache",
	".ruff_cache",
	"*.egg-info",
	".DS_Store",
	"*.swp",
	"*~",
}

// Scanner is what a flush triggers. *orchestrator.Executor implements it.
type Scanner interface {
	ScanFiles(ctx context.Context, files []string) *orchestrator.ScanResult
}

// ResultCallback receives the outcome of every flush.
type ResultCallback func(ctx context.Context, result *orchestrator.ScanResult)

// Config holds watcher configuration
type Config struct {
	ProjectRoot string             // Required
	Scanner     Scanner            // Required
	Debounce    time.Duration      // Optional: defaults to DefaultDebounce
	Ignore      []string           // Optional: appended to the defaults
	Logger      *zap.SugaredLogger // Optional
}

// Watcher debounces file changes under a project root into scans.
type Watcher struct {
	root     string
	scanner  Scanner
	debounce time.Duration
	ignore   []string
	log      *zap.SugaredLogger

	mu        sync.Mutex
	pending   map[string]struct{}
	timer     *time.Timer
	callbacks []ResultCallback
	running   bool
	fsw       *fsnotify.Watcher
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// serialises flushes
	flushMu sync.Mutex
}

// New creates a watcher. It does not touch the filesystem until Start.
func New(cfg *Config) (*Watcher, error) {
	if cfg.ProjectRoot == "" {
		return nil, fmt.Errorf("project root is required")
	}
	if cfg.Scanner == nil {
		return nil, fmt.Errorf("scanner is required")
	}
	root, err := filepath.Abs(cfg.ProjectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	ignore := make([]string, 0, len(defaultIgnore)+len(cfg.Ignore))
	ignore = append(ignore, defaultIgnore...)
	ignore = append(ignore, cfg.Ignore...)

	return &Watcher{
		root:     root,
		scanner:  cfg.Scanner,
		debounce: debounce,
		ignore:   ignore,
		log:      logging.OrNop(cfg.Logger),
		pending:  make(map[string]struct{}),
	}, nil
}

// IgnorePatterns returns the effective ignore list.
func (w *Watcher) IgnorePatterns() []string {
	out := make([]string, len(w.ignore))
	copy(out, w.ignore)
	return out
}

// Debounce returns the quiet period.
func (w *Watcher) Debounce() time.Duration { return w.debounce }

// OnResult registers a callback. Callbacks run in registration order.
func (w *Watcher) OnResult(cb ResultCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Ignored reports whether any ignore pattern matches a component of path
// (relative to the root), or the relative path as a whole.
func (w *Watcher) Ignored(path string) bool {
	rel := path
	if filepath.IsAbs(path) {
		if r, err := filepath.Rel(w.root, path); err == nil {
			rel = r
		}
	}
	rel = filepath.Clean(rel)

	parts := strings.Split(rel, string(filepath.Separator))
	for _, pattern := range w.ignore {
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
		for _, part := range parts {
			if part == pattern {
				return true
			}
			if ok, _ := filepath.Match(pattern, part); ok {
				return true
			}
		}
	}
	return false
}

// OnFileChange records a changed file and re-arms the debounce timer.
// Directories and ignored paths are dropped; the return value reports
// whether the change was queued.
func (w *Watcher) OnFileChange(path string) bool {
	if !filepath.IsAbs(path) {
		path = filepath.Join(w.root, path)
	}
	path = filepath.Clean(path)

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return false
	}
	if w.Ignored(path) {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
	return true
}

// Pending returns the queued paths, sorted.
func (w *Watcher) Pending() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return sortedKeys(w.pending)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	// a dead context would fail the scan and drop the batch
	if ctx.Err() != nil {
		w.log.Debugw("watch context done, keeping changes queued", "count", len(w.Pending()))
		return
	}
	w.ProcessPending(ctx)
}

// ProcessPending scans the queued batch once and hands the outcome to every
// callback. With nothing queued it does nothing and returns nil.
func (w *Watcher) ProcessPending(ctx context.Context) *orchestrator.ScanResult {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return nil
	}
	batch := sortedKeys(w.pending)
	w.pending = make(map[string]struct{})
	callbacks := append([]ResultCallback(nil), w.callbacks...)
	w.mu.Unlock()

	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.log.Debugw("scanning changed files", "count", len(batch))
	result := w.scanner.ScanFiles(ctx, batch)
	for _, cb := range callbacks {
		cb(ctx, result)
	}
	return result
}

// Start watches the project tree until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	w.fsw = fsw
	if err := w.addTree(w.root, false); err != nil {
		_ = fsw.Close()
		w.fsw = nil
		return err
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.running = true

	w.wg.Add(1)
	go w.loop(w.ctx)

	w.log.Infow("watching for changes", "root", w.root, "debounce", w.debounce)
	return nil
}

// Stop ends watching. Safe to call when not running. Queued changes stay
// queued and can still be flushed with ProcessPending.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.ctx, w.cancel = nil, nil
	if w.timer != nil {
		w.timer.Stop()
	}
	fsw := w.fsw
	w.mu.Unlock()

	_ = fsw.Close()
	w.wg.Wait()
	w.log.Infow("watcher stopped")
}

// Running reports whether Start is in effect.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warnw("watch error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) || ev.Op == fsnotify.Chmod {
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if w.Ignored(ev.Name) {
				return
			}
			if err := w.addTree(ev.Name, true); err != nil {
				w.log.Warnw("failed to watch new directory", "path", ev.Name, "error", err)
			}
			return
		}
	}
	w.OnFileChange(ev.Name)
}

// addTree registers every non-ignored directory under dir. For directories
// that appeared after Start, files already inside are queued since their
// create events were missed.
func (w *Watcher) addTree(dir string, queueFiles bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if path != w.root && w.Ignored(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			if queueFiles {
				w.OnFileChange(path)
			}
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
