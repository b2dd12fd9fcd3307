// Package eventbus publishes scan outcomes to NATS so dashboards and other
// agents can follow a project without polling the control socket.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/steveyegge/sieve/internal/logging"
	"github.com/steveyegge/sieve/internal/orchestrator"
)

// ScanEvent is the message body published for every scan.
type ScanEvent struct {
	ProjectRoot    string            `json:"project_root"`
	Source         string            `json:"source"`
	Timestamp      int64             `json:"timestamp"`
	Domains        []string          `json:"domains"`
	Files          []string          `json:"files,omitempty"`
	TotalIssues    int               `json:"total_issues"`
	Blocking       bool              `json:"blocking"`
	SeverityCounts map[string]int    `json:"severity_counts"`
	Errors         map[string]string `json:"errors,omitempty"`
	DurationMS     int64             `json:"duration_ms"`
}

// conn is the subset of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	IsConnected() bool
	Close()
}

// Publisher sends scan events on one subject.
type Publisher struct {
	conn    conn
	subject string
	root    string
	log     *zap.SugaredLogger
}

// NewPublisher connects to natsURL. Connection failures are retried in the
// background; events published meanwhile are buffered by the client.
func NewPublisher(natsURL, subject, projectRoot string, logger *zap.SugaredLogger) (*Publisher, error) {
	if subject == "" {
		return nil, fmt.Errorf("subject is required")
	}
	log := logging.OrNop(logger)

	nc, err := nats.Connect(natsURL,
		nats.Name("sieve"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnw("disconnected from NATS", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infow("reconnected to NATS", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", natsURL, err)
	}

	log.Infow("connected to NATS", "url", natsURL, "subject", subject)
	return newPublisher(nc, subject, projectRoot, log), nil
}

func newPublisher(c conn, subject, projectRoot string, log *zap.SugaredLogger) *Publisher {
	return &Publisher{conn: c, subject: subject, root: projectRoot, log: logging.OrNop(log)}
}

// Publish sends one scan outcome.
func (p *Publisher) Publish(source string, r *orchestrator.ScanResult) error {
	event := ScanEvent{
		ProjectRoot:    p.root,
		Source:         source,
		Timestamp:      r.StartedAt.Unix(),
		Domains:        r.Domains,
		Files:          r.Files,
		TotalIssues:    r.TotalIssues,
		Blocking:       r.Blocking,
		SeverityCounts: r.SeverityCounts,
		Errors:         r.Errors,
		DurationMS:     r.DurationMS,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode scan event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish scan event: %w", err)
	}
	p.log.Debugw("published scan event", "subject", p.subject, "issues", r.TotalIssues)
	return nil
}

// Listener publishes every scan under source; failures are logged.
func (p *Publisher) Listener(source string) orchestrator.ScanListener {
	return func(_ context.Context, r *orchestrator.ScanResult) {
		if err := p.Publish(source, r); err != nil {
			p.log.Warnw("scan event not published", "error", err)
		}
	}
}

// IsConnected reports whether the NATS connection is up.
func (p *Publisher) IsConnected() bool {
	return p.conn != nil && p.conn.IsConnected()
}

// Close drops the connection.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
		p.log.Infow("disconnected from NATS")
	}
}
