package sqlite

// Schema DDL. Statements are idempotent so an existing ledger is reused
// across runs.
const (
	createRuns = `CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    output TEXT NOT NULL,
    chunk_dir TEXT NOT NULL,
    total_rows INTEGER NOT NULL DEFAULT 0,
    chunk_size INTEGER NOT NULL,
    num_chunks INTEGER NOT NULL DEFAULT 0,
    state TEXT NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    started_at TEXT NOT NULL,
    finished_at TEXT
);`

	createChunks = `CREATE TABLE IF NOT EXISTS chunks (
    run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    chunk_index INTEGER NOT NULL,
    path TEXT NOT NULL,
    rows INTEGER NOT NULL,
    cols INTEGER NOT NULL,
    written_at TEXT NOT NULL,
    PRIMARY KEY (run_id, chunk_index)
);`

	createRunsStartedIndex = `CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);`
)

var schema = []string{createRuns, createChunks, createRunsStartedIndex}
