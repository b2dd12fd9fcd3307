package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/steveyegge/sieve/internal/orchestrator"
)

// Executor is the query surface served over the socket.
// *orchestrator.Executor implements it.
type Executor interface {
	Scan(ctx context.Context, domains []string, files []string) *orchestrator.ScanResult
	CheckFile(ctx context.Context, path string) *orchestrator.ScanResult
	GetFixInstructions(ctx context.Context, issueID string) *orchestrator.FixInstructions
	ApplyFix(ctx context.Context, issueID string) *orchestrator.FixResult
	GetStatus(ctx context.Context) *orchestrator.Status
	ClearCache()
}

// NewExecutorHandler maps commands onto executor operations. Results that
// carry an error string are returned alongside that error.
func NewExecutorHandler(exec Executor) HandlerFunc {
	return func(ctx context.Context, cmd Command) (interface{}, error) {
		switch cmd.Type {
		case CmdScan:
			domains := cmd.Domains
			if len(domains) == 0 {
				domains = []string{"all"}
			}
			r := exec.Scan(ctx, domains, cmd.Files)
			return r, resultError(r.Error)

		case CmdCheckFile:
			if cmd.Path == "" {
				return nil, errors.New("path is required")
			}
			r := exec.CheckFile(ctx, cmd.Path)
			return r, resultError(r.Error)

		case CmdGetFixInstructions:
			if cmd.IssueID == "" {
				return nil, errors.New("issue_id is required")
			}
			r := exec.GetFixInstructions(ctx, cmd.IssueID)
			return r, resultError(r.Error)

		case CmdApplyFix:
			if cmd.IssueID == "" {
				return nil, errors.New("issue_id is required")
			}
			r := exec.ApplyFix(ctx, cmd.IssueID)
			return r, resultError(r.Error)

		case CmdGetStatus:
			return exec.GetStatus(ctx), nil

		case CmdClearCache:
			exec.ClearCache()
			return map[string]bool{"cleared": true}, nil

		default:
			return nil, fmt.Errorf("unknown command type: %q", cmd.Type)
		}
	}
}

func resultError(msg string) error {
	if msg == "" {
		return nil
	}
	return errors.New(msg)
}
