// Package control exposes an executor over a Unix domain socket so editors,
// agents and a second terminal can query a long-lived sieve process.
//
// Every request is one JSON Command; every reply is one JSON Response.
// A connection may carry several requests in sequence.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/steveyegge/sieve/internal/logging"
)

// Command types
const (
	CmdScan               = "scan"
	CmdCheckFile          = "check_file"
	CmdGetFixInstructions = "get_fix_instructions"
	CmdApplyFix           = "apply_fix"
	CmdGetStatus          = "get_status"
	CmdClearCache         = "clear_cache"
)

// idleTimeout bounds how long a connection may sit between requests.
const idleTimeout = 30 * time.Second

// Command represents a request sent to the executor
type Command struct {
	Type      string    `json:"type"`
	Domains   []string  `json:"domains,omitempty"`  // scan
	Files     []string  `json:"files,omitempty"`    // scan
	Path      string    `json:"path,omitempty"`     // check_file
	IssueID   string    `json:"issue_id,omitempty"` // get_fix_instructions, apply_fix
	Timestamp time.Time `json:"timestamp"`
}

// Response represents a response to a control command
type Response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Decode unmarshals the response payload into v.
func (r *Response) Decode(v interface{}) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("response has no data")
	}
	return json.Unmarshal(r.Data, v)
}

// HandlerFunc executes a command. The returned value becomes the response
// payload; a non-nil error marks the response unsuccessful (the payload,
// if any, is still sent).
type HandlerFunc func(ctx context.Context, cmd Command) (interface{}, error)

// ServerConfig holds control server configuration
type ServerConfig struct {
	SocketPath string             // Required
	Handler    HandlerFunc        // Required
	RateLimit  float64            // Optional: requests per second, 0 disables limiting
	Burst      int                // Optional: defaults to 1 when limiting
	Logger     *zap.SugaredLogger // Optional
}

// Server manages the control socket
type Server struct {
	socketPath string
	handler    HandlerFunc
	limiter    *rate.Limiter
	log        *zap.SugaredLogger

	listener net.Listener
	mu       sync.RWMutex
	running  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewServer creates a new control server
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.SocketPath == "" {
		return nil, fmt.Errorf("socket path is required")
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("handler is required")
	}

	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.SocketPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}

	// Remove existing socket file if it exists (from crashed previous instance)
	if err := os.RemoveAll(cfg.SocketPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Server{
		socketPath: cfg.SocketPath,
		handler:    cfg.Handler,
		limiter:    limiter,
		log:        logging.OrNop(cfg.Logger),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start begins listening for control commands
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("control server already running")
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to create control socket: %w", err)
	}

	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.log.Infow("control server listening", "socket", s.socketPath)

	go s.acceptLoop(ctx)
	return nil
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop(ctx context.Context) {
	defer close(s.doneCh)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		// Accept timeout lets the loop observe ctx and stopCh
		if err := s.listener.(*net.UnixListener).SetDeadline(time.Now().Add(time.Second)); err != nil {
			s.log.Warnw("failed to set accept deadline", "error", err)
			continue
		}

		conn, err := s.listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-s.stopCh:
				return
			default:
			}
			s.log.Warnw("accept failed", "error", err)
			continue
		}

		go s.handleConnection(ctx, conn)
	}
}

// handleConnection serves requests on one connection until EOF.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
			s.log.Warnw("failed to set read deadline", "error", err)
			return
		}

		var cmd Command
		if err := decoder.Decode(&cmd); err != nil {
			if !errors.Is(err, io.EOF) && !isTimeout(err) {
				_ = encoder.Encode(errorResponse(fmt.Sprintf("failed to decode command: %v", err)))
			}
			return
		}
		// Handling may outlast the idle timeout (scans run external tools)
		_ = conn.SetReadDeadline(time.Time{})

		resp := s.dispatch(ctx, cmd)
		if err := encoder.Encode(resp); err != nil {
			s.log.Warnw("failed to send response", "error", err)
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, cmd Command) Response {
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.log.Warnw("rate limit exceeded", "command", cmd.Type)
		return errorResponse("rate limit exceeded")
	}

	data, err := s.handler(ctx, cmd)

	var payload json.RawMessage
	if data != nil {
		raw, merr := json.Marshal(data)
		if merr != nil {
			return errorResponse(fmt.Sprintf("failed to encode result: %v", merr))
		}
		payload = raw
	}

	if err != nil {
		return Response{
			Success: false,
			Message: fmt.Sprintf("Command '%s' failed", cmd.Type),
			Data:    payload,
			Error:   err.Error(),
		}
	}
	return Response{
		Success: true,
		Message: fmt.Sprintf("Command '%s' completed successfully", cmd.Type),
		Data:    payload,
	}
}

func errorResponse(message string) Response {
	return Response{Success: false, Message: message, Error: message}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Stop stops the control server and removes the socket file.
func (s *Server) Stop() error {
	s.mu.RLock()
	started := s.listener != nil
	s.mu.RUnlock()
	if !started {
		return nil
	}

	s.stopOnce.Do(func() {
		close(s.stopCh)
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.Warnw("error closing listener", "error", err)
		}

		select {
		case <-s.doneCh:
		case <-time.After(5 * time.Second):
			s.log.Warnw("timeout waiting for server shutdown")
		}

		if err := os.RemoveAll(s.socketPath); err != nil {
			s.log.Warnw("failed to remove socket file", "error", err)
		}
		s.log.Infow("control server stopped")
	})
	return nil
}

// IsRunning returns whether the server is currently running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// SocketPath returns the path to the control socket
func (s *Server) SocketPath() string {
	return s.socketPath
}
