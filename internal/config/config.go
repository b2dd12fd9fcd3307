package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/sieve/internal/types"
)

const (
	// FileName is the project configuration file, looked up in the project root
	FileName = ".sieve.yml"

	// StateDir holds sieve's per-project state (history db, control socket)
	StateDir = ".sieve"
)

// Config is the full sieve configuration for one project.
type Config struct {
	// Domains enabled for scans. Accepts aliases and "all".
	// Default: ["all"]
	Domains []string `yaml:"domains"`

	// FailOn is the lowest severity that makes a scan blocking
	// Default: HIGH
	FailOn string `yaml:"fail_on"`

	// ToolTimeout bounds every external tool invocation
	// Default: 5m
	ToolTimeout time.Duration `yaml:"tool_timeout"`

	// DisabledTools lists plugin names that are never registered
	DisabledTools []string `yaml:"disabled_tools"`

	Coverage  CoverageConfig  `yaml:"coverage"`
	Watch     WatchConfig     `yaml:"watch"`
	Container ContainerConfig `yaml:"container"`
	Events    EventsConfig    `yaml:"events"`
	History   HistoryConfig   `yaml:"history"`
	Advisor   AdvisorConfig   `yaml:"advisor"`
	Control   ControlConfig   `yaml:"control"`
}

// CoverageConfig configures coverage measurement and shortfall severity.
type CoverageConfig struct {
	// Threshold is the required line coverage percentage. Default: 80
	Threshold float64 `yaml:"threshold"`

	// RunTests runs the suite under coverage before reporting. Default: true
	RunTests bool `yaml:"run_tests"`

	// HighBelow: coverage under this is a HIGH issue. Default: 50
	HighBelow float64 `yaml:"high_below"`

	// MediumGap: coverage more than this many points under threshold is MEDIUM. Default: 10
	MediumGap float64 `yaml:"medium_gap"`
}

// WatchConfig configures the file watcher.
type WatchConfig struct {
	// DebounceMS is the quiet period before a batch is scanned. Default: 1000
	DebounceMS int `yaml:"debounce_ms"`

	// Ignore patterns are appended to the built-in ignore list
	Ignore []string `yaml:"ignore"`
}

// ContainerConfig lists images for container scanning.
type ContainerConfig struct {
	Images []string `yaml:"images"`
}

// EventsConfig configures scan-event publishing.
type EventsConfig struct {
	// NatsURL enables publishing when set (e.g. nats://localhost:4222)
	NatsURL string `yaml:"nats_url"`

	// Subject scan outcomes are published on. Default: sieve.scans
	Subject string `yaml:"subject"`
}

// HistoryConfig configures the scan history database.
type HistoryConfig struct {
	// Enabled records every completed scan. Default: true
	Enabled bool `yaml:"enabled"`

	// Path of the sqlite database, relative to the project root. Default: .sieve/history.db
	Path string `yaml:"path"`
}

// AdvisorConfig configures AI fix guidance.
type AdvisorConfig struct {
	// Enabled turns on guidance when ANTHROPIC_API_KEY is also set. Default: false
	Enabled bool `yaml:"enabled"`

	// Model used for guidance. Empty means the advisor default.
	Model string `yaml:"model"`
}

// ControlConfig configures the control socket.
type ControlConfig struct {
	// SocketPath, relative to the project root. Default: .sieve/control.sock
	SocketPath string `yaml:"socket_path"`

	// RateLimit is requests per second accepted across all clients. Default: 20
	RateLimit float64 `yaml:"rate_limit"`

	// Burst is the token bucket size. Default: 40
	Burst int `yaml:"burst"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Domains:     []string{types.AllDomainsToken},
		FailOn:      string(types.SeverityHigh),
		ToolTimeout: 5 * time.Minute,
		Coverage: CoverageConfig{
			Threshold: 80,
			RunTests:  true,
			HighBelow: 50,
			MediumGap: 10,
		},
		Watch: WatchConfig{
			DebounceMS: 1000,
		},
		Events: EventsConfig{
			Subject: "sieve.scans",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    filepath.Join(StateDir, "history.db"),
		},
		Control: ControlConfig{
			SocketPath: filepath.Join(StateDir, "control.sock"),
			RateLimit:  20,
			Burst:      40,
		},
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	for _, name := range c.Domains {
		if strings.EqualFold(name, types.AllDomainsToken) {
			continue
		}
		if _, ok := types.LookupDomain(name); !ok {
			return fmt.Errorf("unknown domain %q", name)
		}
	}

	if _, ok := types.ParseSeverity(c.FailOn); !ok {
		return fmt.Errorf("fail_on must be one of CRITICAL, HIGH, MEDIUM, LOW, INFO (got %q)", c.FailOn)
	}

	if c.ToolTimeout <= 0 {
		return fmt.Errorf("tool_timeout must be positive (got %v)", c.ToolTimeout)
	}

	if c.Coverage.Threshold < 0 || c.Coverage.Threshold > 100 {
		return fmt.Errorf("coverage.threshold must be between 0 and 100 (got %v)", c.Coverage.Threshold)
	}
	if c.Coverage.HighBelow < 0 || c.Coverage.HighBelow > 100 {
		return fmt.Errorf("coverage.high_below must be between 0 and 100 (got %v)", c.Coverage.HighBelow)
	}
	if c.Coverage.MediumGap < 0 {
		return fmt.Errorf("coverage.medium_gap cannot be negative (got %v)", c.Coverage.MediumGap)
	}

	if c.Watch.DebounceMS < 10 || c.Watch.DebounceMS > 60000 {
		return fmt.Errorf("watch.debounce_ms must be between 10 and 60000 (got %d)", c.Watch.DebounceMS)
	}

	if c.Events.NatsURL != "" && c.Events.Subject == "" {
		return fmt.Errorf("events.subject is required when events.nats_url is set")
	}

	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}

	if c.Control.RateLimit <= 0 {
		return fmt.Errorf("control.rate_limit must be positive (got %v)", c.Control.RateLimit)
	}
	if c.Control.Burst < 1 {
		return fmt.Errorf("control.burst must be at least 1 (got %d)", c.Control.Burst)
	}

	return nil
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{Domains: %v, FailOn: %s, ToolTimeout: %v, Coverage: %.1f%% (tests: %t), "+
			"Debounce: %dms, Images: %d, Events: %t, History: %t, Advisor: %t}",
		c.Domains, c.FailOn, c.ToolTimeout, c.Coverage.Threshold, c.Coverage.RunTests,
		c.Watch.DebounceMS, len(c.Container.Images), c.Events.NatsURL != "",
		c.History.Enabled, c.Advisor.Enabled,
	)
}

// FailOnSeverity returns the parsed fail_on level.
func (c Config) FailOnSeverity() types.Severity {
	sev, ok := types.ParseSeverity(c.FailOn)
	if !ok {
		return types.SeverityHigh
	}
	return sev
}

// EnabledDomains resolves Domains into canonical domains, expanding "all".
func (c Config) EnabledDomains() []types.Domain {
	seen := make(map[types.Domain]bool)
	var out []types.Domain
	add := func(d types.Domain) {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	for _, name := range c.Domains {
		if strings.EqualFold(strings.TrimSpace(name), types.AllDomainsToken) {
			for _, d := range types.ScanDomains() {
				add(d)
			}
			for _, d := range types.ToolDomains() {
				add(d)
			}
			continue
		}
		if d, ok := types.LookupDomain(name); ok {
			add(d)
		}
	}
	return out
}

// Debounce returns the watch debounce window.
func (c Config) Debounce() time.Duration {
	return time.Duration(c.Watch.DebounceMS) * time.Millisecond
}

// HistoryPath returns the absolute history database path for root.
func (c Config) HistoryPath(root string) string {
	return resolve(root, c.History.Path)
}

// SocketPath returns the absolute control socket path for root.
func (c Config) SocketPath(root string) string {
	return resolve(root, c.Control.SocketPath)
}

func resolve(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// Load builds the configuration for a project: defaults, then .sieve.yml,
// then .env (existing environment wins), then SIEVE_* variables.
func Load(projectRoot string) (*Config, error) {
	cfg := DefaultConfig()

	path := filepath.Join(projectRoot, FileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	envPath := filepath.Join(projectRoot, ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("loading %s: %w", envPath, err)
		}
	}

	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
