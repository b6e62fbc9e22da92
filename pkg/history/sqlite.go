package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteBackend stores events in a SQLite database. Suitable for
// single-instance deployments that want decision history to survive
// restarts. The admission core itself remains in-memory.
//
// WAL mode is enabled for better concurrent read performance.
type SQLiteBackend struct {
	db *sql.DB

	appendStmt *sql.Stmt
	pruneStmt  *sql.Stmt
}

// NewSQLiteBackend opens (or creates) the database at dbPath and prepares
// the schema.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	backend := &SQLiteBackend{db: db}

	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := backend.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return backend, nil
}

// initSchema creates the events table if it doesn't exist.
func (s *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS decision_events (
		id TEXT PRIMARY KEY,
		identity TEXT NOT NULL,
		algorithm TEXT NOT NULL,
		cost INTEGER NOT NULL,
		allowed INTEGER NOT NULL,
		remaining INTEGER NOT NULL,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_decision_events_identity ON decision_events(identity);
	CREATE INDEX IF NOT EXISTS idx_decision_events_timestamp ON decision_events(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements pre-compiles the hot-path statements.
func (s *SQLiteBackend) prepareStatements() error {
	var err error

	s.appendStmt, err = s.db.Prepare(`
		INSERT INTO decision_events (id, identity, algorithm, cost, allowed, remaining, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare append: %w", err)
	}

	s.pruneStmt, err = s.db.Prepare(`DELETE FROM decision_events WHERE timestamp < ?`)
	if err != nil {
		return fmt.Errorf("prepare prune: %w", err)
	}

	return nil
}

// Append stores one event.
func (s *SQLiteBackend) Append(ctx context.Context, ev *Event) error {
	if ev == nil {
		return fmt.Errorf("event cannot be nil")
	}

	allowed := 0
	if ev.Allowed {
		allowed = 1
	}

	_, err := s.appendStmt.ExecContext(ctx,
		ev.ID, ev.Identity, ev.Algorithm, ev.Cost, allowed, ev.Remaining,
		ev.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Query returns matching events, newest first.
func (s *SQLiteBackend) Query(ctx context.Context, f Filter) ([]*Event, error) {
	var (
		conds []string
		args  []any
	)
	if f.Identity != "" {
		conds = append(conds, "identity = ?")
		args = append(args, f.Identity)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, f.Since.UnixMilli())
	}
	if !f.Until.IsZero() {
		conds = append(conds, "timestamp < ?")
		args = append(args, f.Until.UnixMilli())
	}
	if f.BlockedOnly {
		conds = append(conds, "allowed = 0")
	}

	query := "SELECT id, identity, algorithm, cost, allowed, remaining, timestamp FROM decision_events"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var (
			ev      Event
			allowed int
			ms      int64
		)
		if err := rows.Scan(&ev.ID, &ev.Identity, &ev.Algorithm, &ev.Cost, &allowed, &ev.Remaining, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Allowed = allowed == 1
		ev.Timestamp = time.UnixMilli(ms)
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// Prune removes events older than the cutoff.
func (s *SQLiteBackend) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.pruneStmt.ExecContext(ctx, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close closes prepared statements and the database.
func (s *SQLiteBackend) Close() error {
	if s.appendStmt != nil {
		s.appendStmt.Close()
	}
	if s.pruneStmt != nil {
		s.pruneStmt.Close()
	}
	return s.db.Close()
}
