package state

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/scipunch/campusfeed/fetcher/types"
)

//go:embed schema.sql
var schemaSQL string

// Store keeps run history and conditional GET validators between runs
type Store struct {
	db *sql.DB
}

// Run is one recorded pipeline invocation
type Run struct {
	ID         string
	FeedURL    string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    string
	Fetched    int
	Filtered   int
	Duplicates int
	Appended   int
	Malformed  bool
	Error      string
}

// Stats contains store statistics
type Stats struct {
	Runs       int
	Validators int
	LastRun    time.Time
}

// Open initializes the state database at the given path
func Open(dbPath string) (*Store, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database at '%s': %w", dbPath, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}

	return &Store{db: db}, nil
}

// GetValidators returns the validators stored for url
// Returns: (validators, found, error)
func (s *Store) GetValidators(ctx context.Context, url string) (types.Validators, bool, error) {
	var v types.Validators
	err := s.db.QueryRowContext(ctx,
		"SELECT etag, last_modified FROM feed_validators WHERE url = ?",
		url,
	).Scan(&v.ETag, &v.LastModified)

	if errors.Is(err, sql.ErrNoRows) {
		return v, false, nil
	}
	if err != nil {
		return v, false, fmt.Errorf("failed to read validators: %w", err)
	}
	return v, true, nil
}

// SetValidators stores validators for url. Zero validators remove the
// entry so the next fetch is unconditional.
func (s *Store) SetValidators(ctx context.Context, url string, v types.Validators) error {
	if v.IsZero() {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM feed_validators WHERE url = ?", url); err != nil {
			return fmt.Errorf("failed to delete validators: %w", err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO feed_validators
		(url, etag, last_modified, updated_at)
		VALUES (?, ?, ?, ?)
	`, url, v.ETag, v.LastModified, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write validators: %w", err)
	}
	return nil
}

// RecordRun appends a run to the history
func (s *Store) RecordRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(run_id, feed_url, started_at, finished_at, outcome, fetched, filtered, duplicates, appended, malformed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.FeedURL, r.StartedAt.UnixMilli(), r.FinishedAt.UnixMilli(), r.Outcome,
		r.Fetched, r.Filtered, r.Duplicates, r.Appended, r.Malformed, r.Error)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.ID, err)
	}
	slog.Debug("run recorded", "run_id", r.ID, "outcome", r.Outcome)
	return nil
}

// RecentRuns returns up to n runs, newest first
func (s *Store) RecentRuns(ctx context.Context, n int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, feed_url, started_at, finished_at, outcome, fetched, filtered, duplicates, appended, malformed, error
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.FeedURL, &started, &finished, &r.Outcome,
			&r.Fetched, &r.Filtered, &r.Duplicates, &r.Appended, &r.Malformed, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		r.FinishedAt = time.UnixMilli(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Clear removes run history and validators
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM runs"); err != nil {
		return fmt.Errorf("failed to clear runs: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM feed_validators"); err != nil {
		return fmt.Errorf("failed to clear validators: %w", err)
	}
	return nil
}

// Stats returns store statistics
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&stats.Runs)
	if err != nil {
		return stats, err
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feed_validators").Scan(&stats.Validators)
	if err != nil {
		return stats, err
	}

	var last sql.NullInt64
	err = s.db.QueryRowContext(ctx, "SELECT MAX(started_at) FROM runs").Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return stats, err
	}
	if last.Valid && last.Int64 > 0 {
		stats.LastRun = time.UnixMilli(last.Int64)
	}

	return stats, nil
}

// Close closes the state database
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DefaultPath returns the default state database path
func DefaultPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home := os.Getenv("HOME")
		if home == "" {
			return "state.db" // Fallback to current directory
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "campusfeed", "state.db")
}
