package types

import (
	"strings"
)

// Severity is the normalized severity of a finding, independent of the tool
// that produced it.
type Severity string

// Severity constants, most severe first
const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// Fix priorities. Lower numbers are fixed first.
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityMedium   = 3
	PriorityLow      = 4
	PriorityInfo     = 5
)

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// Priority maps the severity to its fix-ordering priority (CRITICAL=1 ... INFO=5).
// Unknown values sort last.
func (s Severity) Priority() int {
	switch s {
	case SeverityCritical:
		return PriorityCritical
	case SeverityHigh:
		return PriorityHigh
	case SeverityMedium:
		return PriorityMedium
	case SeverityLow:
		return PriorityLow
	default:
		return PriorityInfo
	}
}

// Rank returns a comparable weight where higher means more severe.
func (s Severity) Rank() int {
	return PriorityInfo + 1 - s.Priority()
}

// AtLeast reports whether s is as severe as, or more severe than, other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// ParseSeverity normalizes a severity string. Unrecognized values map to INFO
// and ok=false.
func ParseSeverity(raw string) (Severity, bool) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(raw)))
	if !sev.IsValid() {
		return SeverityInfo, false
	}
	return sev, true
}

// AllSeverities returns every severity, most severe first.
func AllSeverities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}
}

// Domain is an analysis domain. Values fall in one of two categories:
// scan domains are cross-cutting scans (SAST, dependencies, IaC, containers),
// tool domains are per-language tooling (linting, type checking, tests, coverage).
type Domain string

// Scan domains
const (
	DomainSAST      Domain = "sast"
	DomainSCA       Domain = "sca"
	DomainIaC       Domain = "iac"
	DomainContainer Domain = "container"
)

// Tool domains
const (
	DomainLinting      Domain = "linting"
	DomainTypeChecking Domain = "type_checking"
	DomainTesting      Domain = "testing"
	DomainCoverage     Domain = "coverage"
)

// ScanDomains returns the scan-domain values in canonical order.
func ScanDomains() []Domain {
	return []Domain{DomainSAST, DomainSCA, DomainIaC, DomainContainer}
}

// ToolDomains returns the tool-domain values in canonical order.
func ToolDomains() []Domain {
	return []Domain{DomainLinting, DomainTypeChecking, DomainTesting, DomainCoverage}
}

// IsScanDomain reports whether d is a cross-cutting scan domain.
func (d Domain) IsScanDomain() bool {
	switch d {
	case DomainSAST, DomainSCA, DomainIaC, DomainContainer:
		return true
	}
	return false
}

// IsToolDomain reports whether d is a per-language tool domain.
func (d Domain) IsToolDomain() bool {
	switch d {
	case DomainLinting, DomainTypeChecking, DomainTesting, DomainCoverage:
		return true
	}
	return false
}

// IsValid checks if the domain value is valid
func (d Domain) IsValid() bool {
	return d.IsScanDomain() || d.IsToolDomain()
}

// domainAliases maps request names onto canonical domains. Read-only after init.
var domainAliases = map[string]Domain{
	"linting":       DomainLinting,
	"lint":          DomainLinting,
	"type_checking": DomainTypeChecking,
	"typecheck":     DomainTypeChecking,
	"types":         DomainTypeChecking,
	"security":      DomainSAST,
	"sast":          DomainSAST,
	"sca":           DomainSCA,
	"dependencies":  DomainSCA,
	"deps":          DomainSCA,
	"iac":           DomainIaC,
	"container":     DomainContainer,
	"containers":    DomainContainer,
	"testing":       DomainTesting,
	"test":          DomainTesting,
	"tests":         DomainTesting,
	"coverage":      DomainCoverage,
	"cov":           DomainCoverage,
}

// AllDomainsToken is the request name that expands to every domain.
const AllDomainsToken = "all"

// LookupDomain resolves a request name (case-insensitive) to its canonical domain.
func LookupDomain(name string) (Domain, bool) {
	d, ok := domainAliases[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// DomainAliases returns a copy of the alias table.
func DomainAliases() map[string]Domain {
	out := make(map[string]Domain, len(domainAliases))
	for k, v := range domainAliases {
		out[k] = v
	}
	return out
}
