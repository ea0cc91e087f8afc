// Package history persists conversion run outcomes in a SQLite database so
// past runs can be inspected with the history command.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Run is one recorded conversion run.
type Run struct {
	ID               string
	Input            string
	OutputDir        string
	MusicXMLPath     string
	MuseScorePath    string
	PagesTotal       int
	PagesTranscribed int
	PagesExcluded    int
	Status           string // "success" or "failed"
	Error            string
	StartedAt        time.Time
	Duration         time.Duration
}

// Store is a SQLite-backed run history.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (and initializes if needed) the history database at dbPath.
// Use ":memory:" for an in-memory database.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		input TEXT NOT NULL,
		output_dir TEXT NOT NULL,
		musicxml_path TEXT,
		musescore_path TEXT,
		pages_total INTEGER NOT NULL,
		pages_transcribed INTEGER NOT NULL,
		pages_excluded INTEGER NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record inserts one run.
func (s *Store) Record(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, input, output_dir, musicxml_path, musescore_path,
			pages_total, pages_transcribed, pages_excluded, status, error, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Input, run.OutputDir, run.MusicXMLPath, run.MuseScorePath,
		run.PagesTotal, run.PagesTranscribed, run.PagesExcluded,
		run.Status, run.Error, run.StartedAt.Unix(), run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, input, output_dir, musicxml_path, musescore_path,
			pages_total, pages_transcribed, pages_excluded, status, error, started_at, duration_ms
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var startedUnix, durationMS int64
		if err := rows.Scan(&r.ID, &r.Input, &r.OutputDir, &r.MusicXMLPath, &r.MuseScorePath,
			&r.PagesTotal, &r.PagesTranscribed, &r.PagesExcluded,
			&r.Status, &r.Error, &startedUnix, &durationMS); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.Unix(startedUnix, 0)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
