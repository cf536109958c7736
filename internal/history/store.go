// Package history keeps finished run summaries in SQLite so the last run
// survives restarts.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"cttsync/internal/coordinator"
)

// Store persists run summaries.
type Store struct {
	db     *sql.DB
	dbPath string
	keep   int
	mu     sync.Mutex
}

// Open creates or opens the history database at path. keep bounds the number
// of summaries retained; zero keeps all of them. ":memory:" opens a private
// in-memory database.
func Open(path string, keep int) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: an in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dbPath: path, keep: keep}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		total_orders INTEGER NOT NULL,
		patched INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		error TEXT,
		summary_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save stores a summary, replacing one with the same ID, then prunes the
// oldest rows beyond the retention limit.
func (s *Store) Save(ctx context.Context, run *coordinator.RunSummary) error {
	if run == nil {
		return errors.New("nil run summary")
	}
	if run.ID == "" {
		return errors.New("run summary without id")
	}
	blob, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	var errStr sql.NullString
	if run.Error != "" {
		errStr = sql.NullString{String: run.Error, Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, started_at, finished_at, total_orders, patched, skipped, failed, error, summary_json) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
		run.TotalOrders,
		run.Patched,
		run.Skipped,
		len(run.Failures),
		errStr,
		string(blob),
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}

	if s.keep > 0 {
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?)`,
			s.keep)
		if err != nil {
			return fmt.Errorf("failed to prune runs: %w", err)
		}
	}
	return nil
}

// Last returns the most recently started run, or nil when there is none.
func (s *Store) Last(ctx context.Context) (*coordinator.RunSummary, error) {
	runs, err := s.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0], nil
}

// Get returns the run with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*coordinator.RunSummary, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT summary_json FROM runs WHERE id = ?`, id).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return decode(blob)
}

// List returns up to limit runs, newest first. A limit of zero or less
// returns all of them.
func (s *Store) List(ctx context.Context, limit int) ([]*coordinator.RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT summary_json FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*coordinator.RunSummary
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run, err := decode(blob)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Count returns the number of stored runs.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return n, nil
}

func decode(blob string) (*coordinator.RunSummary, error) {
	var run coordinator.RunSummary
	if err := json.Unmarshal([]byte(blob), &run); err != nil {
		return nil, fmt.Errorf("failed to decode run: %w", err)
	}
	return &run, nil
}

// formatTime uses a fixed-width UTC layout so text order is time order.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}
