package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

const (
	// DefaultClientTimeout covers a full scan with several slow tools.
	DefaultClientTimeout = 15 * time.Minute

	dialTimeout = 5 * time.Second

	// probeTimeout bounds the liveness check in Available
	probeTimeout = 500 * time.Millisecond
)

// Client sends control commands to a running sieve server
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new control client
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    DefaultClientTimeout,
	}
}

// SetTimeout sets the client timeout for commands
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// Available reports whether a server is accepting connections. A socket
// file left behind by a killed server does not count.
func (c *Client) Available() bool {
	conn, err := net.DialTimeout("unix", c.socketPath, probeTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// SendCommand sends a command and waits for the response. Cancelling ctx
// abandons the request; the server still finishes the command.
func (c *Client) SendCommand(ctx context.Context, cmd Command) (*Response, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "unix", c.socketPath)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("failed to connect to sieve server (is it running?): %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	// unblock pending reads and writes when ctx is done
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}
	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &resp, nil
}

// Scan requests a scan of the given domains and files.
func (c *Client) Scan(ctx context.Context, domains, files []string) (*Response, error) {
	return c.SendCommand(ctx, Command{Type: CmdScan, Domains: domains, Files: files})
}

// CheckFile requests a single-file check.
func (c *Client) CheckFile(ctx context.Context, path string) (*Response, error) {
	return c.SendCommand(ctx, Command{Type: CmdCheckFile, Path: path})
}

// FixInstructions requests fix instructions for a cached issue.
func (c *Client) FixInstructions(ctx context.Context, issueID string) (*Response, error) {
	return c.SendCommand(ctx, Command{Type: CmdGetFixInstructions, IssueID: issueID})
}

// ApplyFix asks the server to auto-fix a cached issue.
func (c *Client) ApplyFix(ctx context.Context, issueID string) (*Response, error) {
	return c.SendCommand(ctx, Command{Type: CmdApplyFix, IssueID: issueID})
}

// Status requests the current executor status
func (c *Client) Status(ctx context.Context) (*Response, error) {
	return c.SendCommand(ctx, Command{Type: CmdGetStatus})
}

// ClearCache empties the server's issue cache.
func (c *Client) ClearCache(ctx context.Context) (*Response, error) {
	return c.SendCommand(ctx, Command{Type: CmdClearCache})
}
