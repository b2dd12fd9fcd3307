// Package ai asks Claude for remediation guidance on analysis findings.
package ai

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/steveyegge/sieve/internal/logging"
	"github.com/steveyegge/sieve/internal/types"
)

const (
	// ModelSonnet is the high-end model for complex reasoning tasks
	ModelSonnet = "claude-sonnet-4-5-20250929"

	// ModelHaiku is the cost-efficient model for simple tasks
	ModelHaiku = "claude-3-5-haiku-20241022"

	// DefaultModel: fix guidance is a short, focused task
	DefaultModel = ModelHaiku

	defaultMaxTokens = 1024

	// snippetRadius lines of source are shown either side of the finding
	snippetRadius = 5
)

// messageFunc is the slice of the SDK the advisor calls.
type messageFunc func(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)

// Config holds advisor configuration
type Config struct {
	APIKey      string             // Anthropic API key (if empty, reads from ANTHROPIC_API_KEY env var)
	Model       string             // Optional: defaults to DefaultModel
	MaxTokens   int                // Optional: defaults to 1024
	ProjectRoot string             // Resolves relative issue paths for code snippets
	Retry       RetryConfig        // Uses defaults if not specified
	Logger      *zap.SugaredLogger // Optional
}

// Advisor writes fix guidance for issues.
type Advisor struct {
	send      messageFunc
	model     string
	maxTokens int
	root      string
	retry     *retrier
	log       *zap.SugaredLogger
}

// NewAdvisor creates an advisor backed by the Anthropic API.
func NewAdvisor(cfg *Config) (*Advisor, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return newAdvisor(cfg, func(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
		return client.Messages.New(ctx, params)
	}), nil
}

func newAdvisor(cfg *Config, send messageFunc) *Advisor {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}
	log := logging.OrNop(cfg.Logger)

	return &Advisor{
		send:      send,
		model:     model,
		maxTokens: maxTokens,
		root:      cfg.ProjectRoot,
		retry:     newRetrier(retry, log),
		log:       log,
	}
}

// Model returns the model in use.
func (a *Advisor) Model() string { return a.model }

// SuggestFix asks the model how to resolve issue and returns its answer.
func (a *Advisor) SuggestFix(ctx context.Context, issue types.UnifiedIssue) (string, error) {
	prompt := a.buildPrompt(issue)

	var response *anthropic.Message
	err := a.retry.do(ctx, "fix guidance", func(attemptCtx context.Context) error {
		resp, apiErr := a.send(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(a.model),
			MaxTokens: int64(a.maxTokens),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	guidance := strings.TrimSpace(text.String())
	if guidance == "" {
		return "", fmt.Errorf("empty response from model")
	}

	a.log.Debugw("fix guidance generated", "issue", issue.ID, "model", a.model,
		"input_tokens", response.Usage.InputTokens, "output_tokens", response.Usage.OutputTokens)
	return guidance, nil
}

func (a *Advisor) buildPrompt(issue types.UnifiedIssue) string {
	var b strings.Builder
	b.WriteString("You are reviewing a finding reported by a static analysis tool. ")
	b.WriteString("Explain briefly why it matters and give a concrete fix. ")
	b.WriteString("Answer in at most 8 short lines; include a corrected code fragment when it helps.\n\n")

	fmt.Fprintf(&b, "Tool: %s\n", issue.SourceTool)
	fmt.Fprintf(&b, "Domain: %s\n", issue.Domain)
	fmt.Fprintf(&b, "Severity: %s\n", issue.Severity)
	if issue.RuleID != "" {
		fmt.Fprintf(&b, "Rule: %s\n", issue.RuleID)
	}
	if loc := issue.Location(); loc != "" {
		fmt.Fprintf(&b, "Location: %s\n", loc)
	}
	fmt.Fprintf(&b, "Title: %s\n", issue.Title)
	if issue.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", issue.Description)
	}
	if issue.Recommendation != "" {
		fmt.Fprintf(&b, "Tool recommendation: %s\n", issue.Recommendation)
	}

	if snippet := a.snippet(issue); snippet != "" {
		b.WriteString("\nCode:\n")
		b.WriteString(snippet)
	}
	return b.String()
}

// snippet returns numbered source lines around the finding, or "".
func (a *Advisor) snippet(issue types.UnifiedIssue) string {
	if issue.FilePath == "" || issue.LineStart <= 0 {
		return ""
	}
	path := issue.FilePath
	if !filepath.IsAbs(path) {
		if a.root == "" {
			return ""
		}
		path = filepath.Join(a.root, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	end := issue.LineEnd
	if end < issue.LineStart {
		end = issue.LineStart
	}
	from, to := issue.LineStart-snippetRadius, end+snippetRadius

	var b strings.Builder
	scanner := bufio.NewScanner(f)
	for n := 1; scanner.Scan() && n <= to; n++ {
		if n < from {
			continue
		}
		marker := "  "
		if n >= issue.LineStart && n <= end {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%4d | %s\n", marker, n, scanner.Text())
	}
	return b.String()
}
