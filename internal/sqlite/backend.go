// Package sqlite implements the run ledger on an embedded SQLite database.
//
// The database lives in the data directory, never in a chunk directory, so
// that a run's chunk directory only ever holds that run's artifacts.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jlehrer1/big-csv/pkg/types"
)

// DBFile is the ledger file name inside the data directory.
const DBFile = "ledger.db"

// Backend implements types.Ledger. It is safe for concurrent use.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	db       *sql.DB
	path     string
}

var _ types.Ledger = (*Backend)(nil)

// NewBackend creates a detached backend; call Attach before use.
func NewBackend() *Backend {
	return &Backend{}
}

// Path returns the database file path, or "" while detached.
func (b *Backend) Path() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.path
}

// Attach opens or creates the ledger under dataDir.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(dataDir string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return &types.IOError{Op: "mkdir", Path: dataDir, Err: err}
	}

	path := filepath.Join(dataDir, DBFile)
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	// One connection serializes writers from concurrent chunk workers.
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return fmt.Errorf("create ledger schema: %w", err)
		}
	}

	b.db = db
	b.path = path
	b.attached = true
	return nil
}

// Detach closes the database. After Detach all operations return
// ErrLedgerDetached. Idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	b.path = ""
	b.attached = false
	return err
}

// SaveRun inserts or updates a run record.
func (b *Backend) SaveRun(run *types.Run) error {
	if run == nil || run.RunID == "" {
		return types.ErrInvalidID
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return types.ErrLedgerDetached
	}

	var finished sql.NullString
	if run.FinishedAt != nil {
		finished = sql.NullString{String: formatTime(*run.FinishedAt), Valid: true}
	}
	_, err := b.db.Exec(`INSERT INTO runs
    (run_id, source, output, chunk_dir, total_rows, chunk_size, num_chunks, state, error, started_at, finished_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    ON CONFLICT(run_id) DO UPDATE SET
    total_rows = excluded.total_rows,
    chunk_size = excluded.chunk_size,
    num_chunks = excluded.num_chunks,
    state = excluded.state,
    error = excluded.error,
    finished_at = excluded.finished_at`,
		run.RunID, run.Source, run.Output, run.ChunkDir,
		run.Plan.TotalRows, run.Plan.ChunkSize, run.Plan.NumChunks,
		run.State, run.Error, formatTime(run.StartedAt), finished)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.RunID, err)
	}
	return nil
}

const runColumns = `run_id, source, output, chunk_dir, total_rows, chunk_size, num_chunks, state, error, started_at, finished_at`

// GetRun returns the run with the given ID or ErrRunNotFound.
func (b *Backend) GetRun(id string) (*types.Run, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrLedgerDetached
	}

	run, err := scanRun(b.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrRunNotFound
	}
	return run, err
}

// ListRuns returns all runs, most recent first.
func (b *Backend) ListRuns() ([]*types.Run, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrLedgerDetached
	}

	rows, err := b.db.Query(`SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, run_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*types.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RecordChunk stores a chunk record. Returns ErrRunNotFound when the run
// was never saved.
func (b *Backend) RecordChunk(rec types.ChunkRecord) error {
	if rec.RunID == "" {
		return types.ErrInvalidID
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return types.ErrLedgerDetached
	}

	var one int
	err := b.db.QueryRow(`SELECT 1 FROM runs WHERE run_id = ?`, rec.RunID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ErrRunNotFound
	}
	if err != nil {
		return fmt.Errorf("record chunk %d: %w", rec.Index, err)
	}

	_, err = b.db.Exec(`INSERT OR REPLACE INTO chunks (run_id, chunk_index, path, rows, cols, written_at)
    VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Index, rec.Path, rec.Rows, rec.Cols, formatTime(rec.WrittenAt))
	if err != nil {
		return fmt.Errorf("record chunk %d: %w", rec.Index, err)
	}
	return nil
}

// Chunks returns the chunk records of a run ordered by index.
func (b *Backend) Chunks(runID string) ([]types.ChunkRecord, error) {
	if runID == "" {
		return nil, types.ErrInvalidID
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrLedgerDetached
	}

	rows, err := b.db.Query(`SELECT run_id, chunk_index, path, rows, cols, written_at
    FROM chunks WHERE run_id = ? ORDER BY chunk_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var out []types.ChunkRecord
	for rows.Next() {
		var rec types.ChunkRecord
		var written string
		if err := rows.Scan(&rec.RunID, &rec.Index, &rec.Path, &rec.Rows, &rec.Cols, &written); err != nil {
			return nil, err
		}
		if rec.WrittenAt, err = parseTime(written); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*types.Run, error) {
	var run types.Run
	var started string
	var finished sql.NullString
	err := s.Scan(&run.RunID, &run.Source, &run.Output, &run.ChunkDir,
		&run.Plan.TotalRows, &run.Plan.ChunkSize, &run.Plan.NumChunks,
		&run.State, &run.Error, &started, &finished)
	if err != nil {
		return nil, err
	}
	if run.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if finished.Valid {
		t, err := parseTime(finished.String)
		if err != nil {
			return nil, err
		}
		run.FinishedAt = &t
	}
	return &run, nil
}

// timeLayout is fixed width so stored timestamps sort as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
