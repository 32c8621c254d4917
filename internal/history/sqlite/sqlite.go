package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/agentbox/agentbox/internal/history"
)

// Sink writes crash events to a SQLite database.
type Sink struct {
	db *sql.DB
}

// New creates a new SQLite crash sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}

	// Handle sqlite:// prefix
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	// Append-only audit table, no primary key.
	stmt := `CREATE TABLE IF NOT EXISTS crash_history(
		occurred_at TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP),
		trigger_reason TEXT NOT NULL,
		memory_mb REAL NOT NULL,
		swap_mb REAL NOT NULL,
		target_procs INTEGER NOT NULL,
		sessions INTEGER NOT NULL,
		kernel_line TEXT
	);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crash_history(occurred_at, trigger_reason, memory_mb, swap_mb, target_procs, sessions, kernel_line)
		VALUES(?, ?, ?, ?, ?, ?, ?);`,
		e.OccurredAt.UTC(), e.Trigger, e.MemoryMB, e.SwapMB, e.TargetProcs, e.Sessions, e.KernelLine)
	return err
}

// Count returns the number of stored events (used by tests and the
// status API).
func (s *Sink) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM crash_history;`).Scan(&n)
	return n, err
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
