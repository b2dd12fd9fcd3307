package orchestrator

import (
	"path/filepath"
	"strings"

	"github.com/steveyegge/sieve/internal/types"
)

// LanguageUnknown is reported for files with no known extension.
const LanguageUnknown = "unknown"

var extensionLanguages = map[string]string{
	".py":     "python",
	".pyi":    "python",
	".js":     "javascript",
	".jsx":    "javascript",
	".mjs":    "javascript",
	".cjs":    "javascript",
	".ts":     "typescript",
	".tsx":    "typescript",
	".tf":     "terraform",
	".tfvars": "terraform",
	".go":     "go",
	".java":   "java",
	".rb":     "ruby",
	".rs":     "rust",
	".yaml":   "yaml",
	".yml":    "yaml",
	".json":   "json",
}

// languageDomains lists request names (not canonical domains) per language.
var languageDomains = map[string][]string{
	"python":     {"linting", "type_checking", "security", "testing", "coverage"},
	"javascript": {"linting", "security", "testing", "coverage"},
	"typescript": {"linting", "type_checking", "security", "testing", "coverage"},
	"terraform":  {"iac"},
	"yaml":       {"iac"},
	"json":       {"iac"},
	"go":         {"linting", "security"},
	"java":       {"linting", "security"},
	"ruby":       {"linting", "security"},
	"rust":       {"linting", "security"},
}

// ParseDomains resolves request names to canonical domains. "all" expands
// to every scan domain then every tool domain; unknown names are dropped;
// the result keeps first-seen order without duplicates.
func ParseDomains(names []string) []types.Domain {
	seen := make(map[types.Domain]bool)
	var out []types.Domain
	add := func(d types.Domain) {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}

	for _, name := range names {
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

// DetectLanguage maps a file's extension (case-insensitive) to a language.
func DetectLanguage(path string) string {
	if lang, ok := extensionLanguages[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return LanguageUnknown
}

// DomainsForLanguage returns the domain names worth running for lang.
// Unknown languages still get a security scan.
func DomainsForLanguage(lang string) []string {
	if domains, ok := languageDomains[lang]; ok {
		out := make([]string, len(domains))
		copy(out, domains)
		return out
	}
	return []string{"security"}
}

func domainNames(domains []types.Domain) []string {
	out := make([]string, len(domains))
	for i, d := range domains {
		out[i] = string(d)
	}
	return out
}
