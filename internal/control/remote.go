package control

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/steveyegge/sieve/internal/logging"
	"github.com/steveyegge/sieve/internal/orchestrator"
)

const clearCacheTimeout = 10 * time.Second

// RemoteExecutor implements Executor against a running server, so the CLI
// and REPL can share the server's issue cache. Transport failures are
// reported in the result's Error field.
type RemoteExecutor struct {
	client *Client
	log    *zap.SugaredLogger
}

var _ Executor = (*RemoteExecutor)(nil)

// NewRemoteExecutor wraps client.
func NewRemoteExecutor(client *Client, logger *zap.SugaredLogger) *RemoteExecutor {
	return &RemoteExecutor{client: client, log: logging.OrNop(logger)}
}

func (r *RemoteExecutor) Scan(ctx context.Context, domains []string, files []string) *orchestrator.ScanResult {
	resp, err := r.client.Scan(ctx, domains, files)
	return decodeScan(resp, err)
}

func (r *RemoteExecutor) CheckFile(ctx context.Context, path string) *orchestrator.ScanResult {
	resp, err := r.client.CheckFile(ctx, path)
	return decodeScan(resp, err)
}

func (r *RemoteExecutor) GetFixInstructions(ctx context.Context, issueID string) *orchestrator.FixInstructions {
	var fi orchestrator.FixInstructions
	if msg := decode(r.client.FixInstructions(ctx, issueID))(&fi); msg != "" {
		return &orchestrator.FixInstructions{IssueID: issueID, FixSteps: []string{}, Error: msg}
	}
	return &fi
}

func (r *RemoteExecutor) ApplyFix(ctx context.Context, issueID string) *orchestrator.FixResult {
	var fr orchestrator.FixResult
	if msg := decode(r.client.ApplyFix(ctx, issueID))(&fr); msg != "" {
		return &orchestrator.FixResult{IssueID: issueID, Error: msg}
	}
	return &fr
}

func (r *RemoteExecutor) GetStatus(ctx context.Context) *orchestrator.Status {
	var st orchestrator.Status
	if msg := decode(r.client.Status(ctx))(&st); msg != "" {
		r.log.Warnw("status request failed", "error", msg)
		return &orchestrator.Status{AvailableTools: []string{}, RegisteredTools: []string{}, Domains: []string{}, Error: msg}
	}
	return &st
}

func (r *RemoteExecutor) ClearCache() {
	ctx, cancel := context.WithTimeout(context.Background(), clearCacheTimeout)
	defer cancel()
	resp, err := r.client.ClearCache(ctx)
	if err == nil && !resp.Success {
		err = errors.New(resp.Error)
	}
	if err != nil {
		r.log.Warnw("clear cache request failed", "error", err)
	}
}

func decodeScan(resp *Response, err error) *orchestrator.ScanResult {
	var result orchestrator.ScanResult
	if msg := decode(resp, err)(&result); msg != "" {
		return &orchestrator.ScanResult{Error: msg}
	}
	return &result
}

// decode returns a function that unpacks the response payload into v and
// reports the first failure as a message, or "" on success.
func decode(resp *Response, err error) func(v interface{}) string {
	return func(v interface{}) string {
		if err != nil {
			return err.Error()
		}
		if resp.Data != nil {
			if derr := resp.Decode(v); derr != nil {
				return derr.Error()
			}
			// error-shaped results carry their own Error field
			return ""
		}
		if !resp.Success {
			return resp.Error
		}
		return "response has no data"
	}
}
