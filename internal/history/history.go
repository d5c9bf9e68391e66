// Package history persists a ledger of optimization runs in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/assetpress/internal/manifest"
)

// Run is one recorded run row.
type Run struct {
	ID         int64
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	SourceDir  string
	Success    bool
	Processed  int
	Failed     int
}

// Store appends run manifests to a SQLite ledger.
// Use ":memory:" for an in-memory database, or a file path for persistence.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the ledger database.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		source_dir TEXT NOT NULL,
		success INTEGER NOT NULL,
		processed INTEGER NOT NULL,
		failed INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS run_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		pass TEXT NOT NULL,
		path TEXT NOT NULL,
		outputs TEXT,
		rewritten INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_run_files_run ON run_files(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append records a finished run and its per-file outputs in one transaction.
func (s *Store) Append(ctx context.Context, m *manifest.RunManifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	success := 0
	if m.Success {
		success = 1
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO runs (run_id, started_at, finished_at, source_dir, success, processed, failed) VALUES (?, ?, ?, ?, ?, ?, ?)",
		m.RunID, m.StartedAt.Unix(), m.FinishedAt.Unix(), m.SourceDir, success, len(m.Processed), len(m.Failures),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, rec := range m.Processed {
		outputs, err := json.Marshal(rec.Outputs)
		if err != nil {
			return fmt.Errorf("marshal outputs: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO run_files (run_id, pass, path, outputs, rewritten) VALUES (?, ?, ?, ?, ?)",
			m.RunID, string(rec.Pass), rec.Path, outputs, rec.Rewritten,
		)
		if err != nil {
			return fmt.Errorf("insert run file: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// Recent returns the most recent runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, run_id, started_at, finished_at, source_dir, success, processed, failed FROM runs ORDER BY started_at DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		var success int
		if err := rows.Scan(&r.ID, &r.RunID, &started, &finished, &r.SourceDir, &success, &r.Processed, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.Unix(started, 0).UTC()
		r.FinishedAt = time.Unix(finished, 0).UTC()
		r.Success = success == 1
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Files returns the per-file records for one run.
func (s *Store) Files(ctx context.Context, runID string) ([]manifest.ProcessedFileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT pass, path, outputs, rewritten FROM run_files WHERE run_id = ? ORDER BY id",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query run files: %w", err)
	}
	defer rows.Close()

	var records []manifest.ProcessedFileRecord
	for rows.Next() {
		var rec manifest.ProcessedFileRecord
		var pass string
		var outputs []byte
		if err := rows.Scan(&pass, &rec.Path, &outputs, &rec.Rewritten); err != nil {
			return nil, fmt.Errorf("scan run file: %w", err)
		}
		rec.Pass = manifest.Pass(pass)
		if len(outputs) > 0 {
			if err := json.Unmarshal(outputs, &rec.Outputs); err != nil {
				return nil, fmt.Errorf("parse outputs: %w", err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
