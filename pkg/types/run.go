package types

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Run states. A run moves forward through these states; failed is reachable
// from every non-terminal state.
const (
	RunStateInit         = "init"
	RunStateCounting     = "counting"
	RunStateChunking     = "chunking"
	RunStateReassembling = "reassembling"
	RunStateCleanup      = "cleanup"
	RunStateDone         = "done"
	RunStateFailed       = "failed"
)

// Run lifecycle errors.
var (
	ErrInvalidState      = errors.New("invalid run state")
	ErrInvalidTransition = errors.New("invalid run state transition")
)

// runTransitions lists the forward successor of each non-terminal state.
var runTransitions = map[string]string{
	RunStateInit:         RunStateCounting,
	RunStateCounting:     RunStateChunking,
	RunStateChunking:     RunStateReassembling,
	RunStateReassembling: RunStateCleanup,
	RunStateCleanup:      RunStateDone,
}

// Run records one execution of the transpose pipeline.
type Run struct {
	RunID      string     `json:"run_id"`
	Source     string     `json:"source"`
	Output     string     `json:"output"`
	ChunkDir   string     `json:"chunk_dir"`
	Plan       Plan       `json:"plan"`
	State      string     `json:"state"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewRunID returns a time-ordered run identifier (UUID v7).
func NewRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// NewRun returns a run in the init state.
func NewRun(id string, cfg Config) *Run {
	return &Run{
		RunID:     id,
		Source:    cfg.Source,
		Output:    cfg.Output,
		ChunkDir:  cfg.ChunkDir,
		Plan:      Plan{ChunkSize: cfg.ChunkSize},
		State:     RunStateInit,
		StartedAt: time.Now(),
	}
}

// Advance moves the run to the next state. Returns ErrInvalidTransition if
// next is not the successor of the current state.
func (r *Run) Advance(next string) error {
	if _, ok := runTransitions[next]; !ok && next != RunStateDone {
		return ErrInvalidState
	}
	if runTransitions[r.State] != next {
		return ErrInvalidTransition
	}
	r.State = next
	if next == RunStateDone {
		r.finish()
	}
	return nil
}

// Fail moves the run to the failed state and records the cause.
// Returns ErrInvalidTransition when the run already finished.
func (r *Run) Fail(cause error) error {
	if r.Terminal() {
		return ErrInvalidTransition
	}
	r.State = RunStateFailed
	if cause != nil {
		r.Error = cause.Error()
	}
	r.finish()
	return nil
}

// Terminal reports whether the run is done or failed.
func (r *Run) Terminal() bool {
	return r.State == RunStateDone || r.State == RunStateFailed
}

func (r *Run) finish() {
	now := time.Now()
	r.FinishedAt = &now
}

// ChunkRecord describes one persisted chunk transpose.
type ChunkRecord struct {
	RunID     string    `json:"run_id"`
	Index     int       `json:"index"`
	Path      string    `json:"path"`
	Rows      int       `json:"rows"`
	Cols      int       `json:"cols"`
	WrittenAt time.Time `json:"written_at"`
}
