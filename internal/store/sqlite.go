package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

// SQLiteStore implements Store on modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens or creates the database at dsn. Use ":memory:" in tests.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}
	// An in-memory database exists per connection, so pin it to one.
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(2)
	}
	db.SetConnMaxLifetime(time.Hour)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS request_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			request_id TEXT NOT NULL DEFAULT '',
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			mode TEXT NOT NULL DEFAULT 'generate',
			latency_ms INTEGER NOT NULL DEFAULT 0,
			prompt_chars INTEGER NOT NULL DEFAULT 0,
			output_chars INTEGER NOT NULL DEFAULT 0,
			estimated_cost_usd REAL NOT NULL DEFAULT 0,
			success INTEGER NOT NULL DEFAULT 1,
			error_kind TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_request_logs_provider ON request_logs(provider, model)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			action TEXT NOT NULL,
			resource TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			request_id TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func stamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

// Request log

func (s *SQLiteStore) LogRequest(ctx context.Context, e RequestLog) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO request_logs (timestamp, request_id, provider, model, mode, latency_ms,
		   prompt_chars, output_chars, estimated_cost_usd, success, error_kind)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stamp(e.Timestamp), e.RequestID, e.Provider, e.Model, e.Mode, e.LatencyMs,
		e.PromptChars, e.OutputChars, e.EstimatedCostUSD, e.Success, e.ErrorKind)
	return err
}

func (s *SQLiteStore) ListRequestLogs(ctx context.Context, f RequestFilter) ([]RequestLog, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	var (
		where []string
		args  []any
	)
	if f.Provider != "" {
		where = append(where, "provider = ?")
		args = append(args, f.Provider)
	}
	if f.Model != "" {
		where = append(where, "model = ?")
		args = append(args, f.Model)
	}
	q := `SELECT id, timestamp, request_id, provider, model, mode, latency_ms,
	        prompt_chars, output_chars, estimated_cost_usd, success, error_kind
	      FROM request_logs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var logs []RequestLog
	for rows.Next() {
		var (
			l  RequestLog
			ts string
		)
		if err := rows.Scan(&l.ID, &ts, &l.RequestID, &l.Provider, &l.Model, &l.Mode, &l.LatencyMs,
			&l.PromptChars, &l.OutputChars, &l.EstimatedCostUSD, &l.Success, &l.ErrorKind); err != nil {
			return nil, err
		}
		l.Timestamp, _ = time.Parse(timeLayout, ts)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *SQLiteStore) SummarizeUsage(ctx context.Context) ([]UsageSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, model, COUNT(*),
		   SUM(CASE WHEN success THEN 0 ELSE 1 END),
		   AVG(latency_ms), SUM(estimated_cost_usd)
		 FROM request_logs
		 GROUP BY provider, model
		 ORDER BY provider, model`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []UsageSummary
	for rows.Next() {
		var u UsageSummary
		if err := rows.Scan(&u.Provider, &u.Model, &u.Requests, &u.Errors, &u.AvgLatencyMs, &u.TotalCostUSD); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Audit log

func (s *SQLiteStore) LogAudit(ctx context.Context, e AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_logs (timestamp, action, resource, detail, request_id)
		 VALUES (?, ?, ?, ?, ?)`,
		stamp(e.Timestamp), e.Action, e.Resource, e.Detail, e.RequestID)
	return err
}

func (s *SQLiteStore) ListAuditLogs(ctx context.Context, limit, offset int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, action, resource, detail, request_id
		 FROM audit_logs ORDER BY id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var logs []AuditEntry
	for rows.Next() {
		var (
			l  AuditEntry
			ts string
		)
		if err := rows.Scan(&l.ID, &ts, &l.Action, &l.Resource, &l.Detail, &l.RequestID); err != nil {
			return nil, err
		}
		l.Timestamp, _ = time.Parse(timeLayout, ts)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
