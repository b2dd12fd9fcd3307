// Package builtin wires the bundled tool wrappers into a registry.
package builtin

import (
	"github.com/steveyegge/sieve/internal/plugins"
	"github.com/steveyegge/sieve/internal/plugins/coverage"
	"github.com/steveyegge/sieve/internal/plugins/eslint"
	"github.com/steveyegge/sieve/internal/plugins/mypy"
	"github.com/steveyegge/sieve/internal/plugins/pytest"
	"github.com/steveyegge/sieve/internal/plugins/ruff"
	"github.com/steveyegge/sieve/internal/plugins/semgrep"
	"github.com/steveyegge/sieve/internal/plugins/trivy"
)

// Options configures the bundled plugins.
type Options struct {
	plugins.Options

	Coverage coverage.SeverityPolicy
	Images   []string // container images for trivy-container
	Disabled []string // plugin names to skip
}

// RegisterAll registers every bundled plugin not listed in opts.Disabled.
func RegisterAll(registry *plugins.Registry, opts Options) error {
	all := []plugins.Plugin{
		ruff.New(opts.Options),
		eslint.New(opts.Options),
		mypy.New(opts.Options),
		semgrep.New(opts.Options),
		trivy.NewDependencies(opts.Options),
		trivy.NewConfig(opts.Options),
		trivy.NewImage(opts.Options, opts.Images),
		pytest.New(opts.Options),
		coverage.New(opts.Options, opts.Coverage),
	}

	disabled := make(map[string]bool, len(opts.Disabled))
	for _, name := range opts.Disabled {
		disabled[name] = true
	}

	for _, p := range all {
		if disabled[p.Name()] {
			continue
		}
		if err := registry.Register(p); err != nil {
			return err
		}
	}

	return nil
}
