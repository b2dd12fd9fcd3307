// Package history records completed scans in a local SQLite database so
// trends can be reviewed with `sieve history`.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/zap"

	"github.com/steveyegge/sieve/internal/logging"
	"github.com/steveyegge/sieve/internal/orchestrator"
	"github.com/steveyegge/sieve/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS scans (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at   TEXT    NOT NULL,
	source       TEXT    NOT NULL,
	domains      TEXT    NOT NULL,
	files        INTEGER NOT NULL DEFAULT 0,
	total_issues INTEGER NOT NULL DEFAULT 0,
	critical     INTEGER NOT NULL DEFAULT 0,
	high         INTEGER NOT NULL DEFAULT 0,
	medium       INTEGER NOT NULL DEFAULT 0,
	low          INTEGER NOT NULL DEFAULT 0,
	info         INTEGER NOT NULL DEFAULT 0,
	blocking     INTEGER NOT NULL DEFAULT 0,
	duration_ms  INTEGER NOT NULL DEFAULT 0,
	errors       TEXT    NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_scans_started_at ON scans(started_at);
`

// timeLayout is fixed-width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record is one stored scan.
type Record struct {
	ID          int64
	StartedAt   time.Time
	Source      string // scan, check, watch, serve
	Domains     []string
	Files       int
	TotalIssues int
	Counts      map[types.Severity]int
	Blocking    bool
	Duration    time.Duration
	Errors      map[string]string
}

// Store is the scan history database.
type Store struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

// Open opens (creating if needed) the history database at path.
func Open(path string, logger *zap.SugaredLogger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, log: logging.OrNop(logger)}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordScan stores a scan outcome and returns its row id.
func (s *Store) RecordScan(ctx context.Context, source string, r *orchestrator.ScanResult) (int64, error) {
	errs, err := json.Marshal(r.Errors)
	if err != nil {
		return 0, fmt.Errorf("failed to encode scan errors: %w", err)
	}

	started := r.StartedAt
	if started.IsZero() {
		started = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scans (started_at, source, domains, files, total_issues,
		                   critical, high, medium, low, info,
		                   blocking, duration_ms, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		started.UTC().Format(timeLayout),
		source,
		strings.Join(r.Domains, ","),
		len(r.Files),
		r.TotalIssues,
		r.SeverityCounts[string(types.SeverityCritical)],
		r.SeverityCounts[string(types.SeverityHigh)],
		r.SeverityCounts[string(types.SeverityMedium)],
		r.SeverityCounts[string(types.SeverityLow)],
		r.SeverityCounts[string(types.SeverityInfo)],
		r.Blocking,
		r.DurationMS,
		string(errs),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record scan: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit scans, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, source, domains, files, total_issues,
		       critical, high, medium, low, info,
		       blocking, duration_ms, errors
		FROM scans
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var (
			rec                              Record
			startedAt, domains, errs         string
			critical, high, medium, low, inf int
			durationMS                       int64
		)
		if err := rows.Scan(
			&rec.ID, &startedAt, &rec.Source, &domains, &rec.Files, &rec.TotalIssues,
			&critical, &high, &medium, &low, &inf,
			&rec.Blocking, &durationMS, &errs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}

		rec.StartedAt, err = time.Parse(timeLayout, startedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid started_at %q: %w", startedAt, err)
		}
		if domains != "" {
			rec.Domains = strings.Split(domains, ",")
		}
		rec.Counts = map[types.Severity]int{
			types.SeverityCritical: critical,
			types.SeverityHigh:     high,
			types.SeverityMedium:   medium,
			types.SeverityLow:      low,
			types.SeverityInfo:     inf,
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		if err := json.Unmarshal([]byte(errs), &rec.Errors); err != nil {
			return nil, fmt.Errorf("invalid errors column: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}
	return records, nil
}

// Listener records every scan under source. Failures are logged, never
// surfaced to the scan.
func (s *Store) Listener(source string) orchestrator.ScanListener {
	return func(ctx context.Context, r *orchestrator.ScanResult) {
		if _, err := s.RecordScan(ctx, source, r); err != nil {
			s.log.Warnw("failed to record scan history", "error", err)
		}
	}
}
