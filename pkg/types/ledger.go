package types

import "errors"

// Ledger records transpose runs and the chunks they persisted so that a
// failed run can be inspected after the fact. Implementations must be safe
// for concurrent use: chunk workers record chunks in parallel.
type Ledger interface {
	// Attach opens the ledger stored under dataDir, creating it if needed.
	// Returns ErrAlreadyAttached if called while attached.
	Attach(dataDir string) error

	// Detach releases resources. Idempotent.
	Detach() error

	// SaveRun inserts or updates a run record.
	SaveRun(run *Run) error

	// GetRun returns the run with the given ID or ErrRunNotFound.
	GetRun(id string) (*Run, error)

	// ListRuns returns all runs, most recent first.
	ListRuns() ([]*Run, error)

	// RecordChunk stores a chunk record for an existing run.
	RecordChunk(rec ChunkRecord) error

	// Chunks returns the chunk records of a run ordered by index.
	Chunks(runID string) ([]ChunkRecord, error)
}

// Ledger errors.
var (
	ErrLedgerDetached  = errors.New("ledger is detached")
	ErrAlreadyAttached = errors.New("ledger is already attached")
	ErrRunNotFound     = errors.New("run not found")
	ErrInvalidID       = errors.New("invalid run ID")
)
