package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/sieve/internal/plugins"
	"github.com/steveyegge/sieve/internal/plugins/coverage"
	"github.com/steveyegge/sieve/internal/types"
)

func TestRegisterAll(t *testing.T) {
	registry := plugins.NewRegistry()
	require.NoError(t, RegisterAll(registry, Options{Coverage: coverage.DefaultSeverityPolicy()}))

	assert.Equal(t, []string{
		"coverage_py", "eslint", "mypy", "pytest", "ruff", "semgrep",
		"trivy-container", "trivy-iac", "trivy-sca",
	}, registry.List())

	// every domain has at least one plugin
	for _, d := range append(types.ScanDomains(), types.ToolDomains()...) {
		assert.NotEmpty(t, registry.ForDomain(d), "domain %s", d)
	}

	cov, ok := registry.Get("coverage_py")
	require.True(t, ok)
	_, isMeasurer := cov.(plugins.CoverageMeasurer)
	assert.True(t, isMeasurer)

	_, ok = registry.FindFixer("ruff")
	assert.True(t, ok)
	_, ok = registry.FindFixer("eslint")
	assert.True(t, ok)
}

func TestRegisterAllDisabled(t *testing.T) {
	registry := plugins.NewRegistry()
	require.NoError(t, RegisterAll(registry, Options{Disabled: []string{"semgrep", "trivy-container"}}))

	_, ok := registry.Get("semgrep")
	assert.False(t, ok)
	_, ok = registry.Get("trivy-container")
	assert.False(t, ok)
	_, ok = registry.Get("ruff")
	assert.True(t, ok)
}

func TestRegisterAllTwiceFails(t *testing.T) {
	registry := plugins.NewRegistry()
	require.NoError(t, RegisterAll(registry, Options{}))
	assert.Error(t, RegisterAll(registry, Options{}))
}
