package transpose

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jlehrer1/big-csv/internal/chunkstore"
	"github.com/jlehrer1/big-csv/internal/metrics"
	"github.com/jlehrer1/big-csv/internal/sqlite"
	"github.com/jlehrer1/big-csv/internal/tabular"
	"github.com/jlehrer1/big-csv/internal/upload"
	"github.com/jlehrer1/big-csv/pkg/types"
)

// matrix returns a rows x cols table whose cells encode their position.
func matrix(rows, cols int) types.Table {
	t := make(types.Table, rows)
	for i := range t {
		t[i] = make([]string, cols)
		for j := range t[i] {
			t[i][j] = fmt.Sprintf("r%d_c%d", i, j)
		}
	}
	return t
}

func writeSource(t *testing.T, dir string, tbl types.Table) string {
	t.Helper()
	path := filepath.Join(dir, "in.csv")
	require.NoError(t, tabular.WriteFile(path, tbl, ','))
	return path
}

func baseConfig(src, out string, chunkSize int) types.Config {
	return types.Config{Source: src, Output: out, ChunkSize: chunkSize}
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names
}

func assertTransposed(t *testing.T, src types.Table, out string) {
	t.Helper()
	got, err := tabular.ReadFile(out, ',')
	require.NoError(t, err)
	require.Equal(t, src.Cols(), got.Rows(), "output rows = source width")
	require.Equal(t, src.Rows(), got.Cols(), "output cols = source rows")
	for i := range got {
		for j := range got[i] {
			if got[i][j] != src[j][i] {
				t.Fatalf("out[%d][%d] = %q, want %q", i, j, got[i][j], src[j][i])
			}
		}
	}
}

func TestRun_500x1000(t *testing.T) {
	dir := t.TempDir()
	src := matrix(500, 1000)
	out := filepath.Join(dir, "out.csv")

	res, err := Run(context.Background(), baseConfig(writeSource(t, dir, src), out, 100))
	require.NoError(t, err)

	assert.Equal(t, types.Plan{TotalRows: 500, ChunkSize: 100, NumChunks: 5}, res.Plan)
	assert.Equal(t, types.RunStateDone, res.Run.State)
	assert.NotNil(t, res.Run.FinishedAt)
	assert.Empty(t, res.Chunks)
	assertTransposed(t, src, out)

	assert.Empty(t, dirEntries(t, filepath.Join(dir, "chunks_out")), "chunk directory purged")
}

func TestRun_ChunkSizes(t *testing.T) {
	tests := []struct {
		name       string
		rows, cols int
		chunkSize  int
		wantChunks int
	}{
		{name: "remainder chunk", rows: 437, cols: 3, chunkSize: 50, wantChunks: 9},
		{name: "exact multiple", rows: 450, cols: 4, chunkSize: 50, wantChunks: 9},
		{name: "single chunk larger than source", rows: 7, cols: 5, chunkSize: 400, wantChunks: 1},
		{name: "one row per chunk", rows: 13, cols: 2, chunkSize: 1, wantChunks: 13},
		{name: "single column", rows: 20, cols: 1, chunkSize: 6, wantChunks: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			src := matrix(tt.rows, tt.cols)
			out := filepath.Join(dir, "out.csv")

			res, err := Run(context.Background(), baseConfig(writeSource(t, dir, src), out, tt.chunkSize))
			require.NoError(t, err)
			assert.Equal(t, tt.wantChunks, res.Plan.NumChunks)
			assertTransposed(t, src, out)
		})
	}
}

func TestRun_EmptyAndQuotedFields(t *testing.T) {
	rich := types.Table{
		{"id", "note", "value"},
		{"g1", "", "1"},
		{"g2", "a,b", ""},
		{"", "line\nbreak", `say "hi"`},
		{"g4", "", ""},
	}
	tests := []struct {
		name      string
		src       types.Table
		chunkSize int
	}{
		{"one-row remainder with empty cell", types.Table{{"a", "b"}, {"c", "d"}, {"e", ""}}, 2},
		{"one-row source", types.Table{{"a", "", "b"}}, 1},
		{"one-row source larger chunk", types.Table{{"", "x", ""}}, 10},
		{"single column", types.Table{{"a"}, {""}, {"b"}}, 2},
		{"mixed fields chunk 1", rich, 1},
		{"mixed fields chunk 2", rich, 2},
		{"mixed fields chunk 3", rich, 3},
		{"mixed fields one chunk", rich, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			out := filepath.Join(dir, "out.csv")

			_, err := Run(context.Background(), baseConfig(writeSource(t, dir, tt.src), out, tt.chunkSize))
			require.NoError(t, err)
			assertTransposed(t, tt.src, out)
		})
	}
}

func TestRun_OneRowSourceBytes(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(src, []byte("a,,b\n"), 0o644))
	out := filepath.Join(dir, "out.csv")

	_, err := Run(context.Background(), baseConfig(src, out, 1))
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "a\n\"\"\nb\n", string(data))
}

func TestRun_KeepChunksOrdering(t *testing.T) {
	dir := t.TempDir()
	src := matrix(23, 4)
	out := filepath.Join(dir, "out.csv")
	cfg := baseConfig(writeSource(t, dir, src), out, 2)
	cfg.KeepChunks = true

	res, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, 12, res.Plan.NumChunks)
	assertTransposed(t, src, out)

	chunkDir := filepath.Join(dir, "chunks_out")
	assert.Len(t, dirEntries(t, chunkDir), 12, "exactly NumChunks artifacts retained")
	require.Len(t, res.Chunks, 12)
	for i, p := range res.Chunks {
		assert.Equal(t, filepath.Join(chunkDir, fmt.Sprintf("chunk_out_%06d.csv", i)), p)
	}
}

func TestRun_WorkersMatchSequential(t *testing.T) {
	dir := t.TempDir()
	srcPath := writeSource(t, dir, matrix(101, 17))

	outputs := map[int]string{}
	for _, workers := range []int{1, 4} {
		out := filepath.Join(dir, fmt.Sprintf("out_w%d.csv", workers))
		cfg := baseConfig(srcPath, out, 7)
		cfg.Workers = workers
		_, err := Run(context.Background(), cfg)
		require.NoError(t, err)

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		outputs[workers] = string(data)
	}
	assert.Equal(t, outputs[1], outputs[4])
}

func TestRun_SmallFanIn(t *testing.T) {
	dir := t.TempDir()
	src := matrix(40, 3)
	out := filepath.Join(dir, "out.csv")
	cfg := baseConfig(writeSource(t, dir, src), out, 3)
	cfg.MaxOpen = 2

	_, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assertTransposed(t, src, out)
}

func TestRun_Golden(t *testing.T) {
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))

	tests := []struct {
		name   string
		outSep string
	}{
		{name: "expression_T", outSep: ","},
		{name: "expression_T_tab", outSep: `\t`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "expression_T.csv")
			cfg := baseConfig(filepath.Join("testdata", "expression.csv"), out, 2)
			cfg.OutSep = tt.outSep

			_, err := Run(context.Background(), cfg)
			require.NoError(t, err)

			data, err := os.ReadFile(out)
			require.NoError(t, err)
			g.Assert(t, tt.name, data)
		})
	}
}

func TestRun_GzipSource(t *testing.T) {
	dir := t.TempDir()
	src := matrix(9, 4)
	path := filepath.Join(dir, "in.csv.gz")

	f, err := os.Create(path)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	for _, row := range src {
		_, err := zw.Write([]byte(strings.Join(row, ",") + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	out := filepath.Join(dir, "out.csv")
	_, err = Run(context.Background(), baseConfig(path, out, 4))
	require.NoError(t, err)
	assertTransposed(t, src, out)
}

func TestRun_EmptySource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(src, nil, 0o644))
	out := filepath.Join(dir, "out.csv")

	res, err := Run(context.Background(), baseConfig(src, out, 10))
	require.NoError(t, err)
	assert.Zero(t, res.Plan.NumChunks)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestRun_ConfigErrors(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, matrix(3, 3))

	tests := []struct {
		name  string
		cfg   types.Config
		field string
	}{
		{name: "zero chunk size", cfg: baseConfig(src, filepath.Join(dir, "out.csv"), 0), field: "chunksize"},
		{name: "missing source", cfg: baseConfig(filepath.Join(dir, "nope.csv"), filepath.Join(dir, "out.csv"), 10), field: "source"},
		{name: "output equals source", cfg: baseConfig(src, src, 10), field: "output"},
		{name: "two character separator", cfg: types.Config{Source: src, Output: filepath.Join(dir, "out.csv"), ChunkSize: 10, InSep: ";;"}, field: "insep"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Run(context.Background(), tt.cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrConfig), "got %v", err)

			var ce *types.ConfigError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.field, ce.Field)
			assert.Equal(t, types.RunStateFailed, res.Run.State)

			_, statErr := os.Stat(filepath.Join(dir, "chunks_out"))
			assert.True(t, os.IsNotExist(statErr), "no I/O before validation")
		})
	}
}

func TestRun_StorageCollision(t *testing.T) {
	dir := t.TempDir()
	src := matrix(5, 2)
	srcPath := writeSource(t, dir, src)
	out := filepath.Join(dir, "out.csv")

	chunkDir := filepath.Join(dir, "chunks_out")
	require.NoError(t, os.Mkdir(chunkDir, 0o755))
	stale := filepath.Join(chunkDir, "chunk_out_000000.csv")
	require.NoError(t, os.WriteFile(stale, []byte("stale\n"), 0o644))

	_, err := Run(context.Background(), baseConfig(srcPath, out, 2))
	assert.True(t, errors.Is(err, types.ErrStorageCollision), "got %v", err)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(stale)
	assert.NoError(t, statErr, "existing entries are untouched")

	cfg := baseConfig(srcPath, out, 2)
	cfg.CleanChunkDir = true
	_, err = Run(context.Background(), cfg)
	require.NoError(t, err)
	assertTransposed(t, src, out)
}

func TestRun_CleanKeepsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	src := matrix(5, 2)
	srcPath := writeSource(t, dir, src)
	out := filepath.Join(dir, "out.csv")

	chunkDir := filepath.Join(dir, "chunks_out")
	require.NoError(t, os.Mkdir(chunkDir, 0o755))
	notes := filepath.Join(chunkDir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("keep me\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(chunkDir, "chunk_out_000007.csv"), []byte("stale\n"), 0o644))

	cfg := baseConfig(srcPath, out, 2)
	cfg.CleanChunkDir = true
	_, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assertTransposed(t, src, out)
	assert.Equal(t, []string{"notes.txt"}, dirEntries(t, chunkDir))
}

func TestRun_ChunkDirHoldingRunFiles(t *testing.T) {
	tests := []struct {
		name  string
		setup func(dir, srcPath string) types.Config
		field string
	}{
		{
			name: "output inside chunk dir",
			setup: func(dir, srcPath string) types.Config {
				cfg := baseConfig(srcPath, filepath.Join(dir, "work", "out.csv"), 2)
				cfg.ChunkDir = filepath.Join(dir, "work")
				return cfg
			},
			field: "output",
		},
		{
			name: "source dir cleaned as chunk dir",
			setup: func(dir, srcPath string) types.Config {
				cfg := baseConfig(srcPath, filepath.Join(dir, "results", "out.csv"), 2)
				cfg.ChunkDir = dir
				cfg.CleanChunkDir = true
				return cfg
			},
			field: "source",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			srcPath := writeSource(t, dir, matrix(4, 3))
			require.NoError(t, os.MkdirAll(filepath.Join(dir, "work"), 0o755))
			require.NoError(t, os.MkdirAll(filepath.Join(dir, "results"), 0o755))
			cfg := tt.setup(dir, srcPath)

			_, err := Run(context.Background(), cfg)
			var cerr *types.ConfigError
			require.True(t, errors.As(err, &cerr), "got %v", err)
			assert.Equal(t, tt.field, cerr.Field)

			assert.FileExists(t, srcPath, "source is never deleted")
			assert.NoFileExists(t, cfg.Output)
		})
	}
}

func TestRun_ParseFailure(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(src, []byte("a,b\n1,2\n3,4\n5,6\n7,8\n9,10\n11\n13,14\n"), 0o644))
	out := filepath.Join(dir, "out.csv")

	res, err := Run(context.Background(), baseConfig(src, out, 2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrParse), "got %v", err)

	var pe *types.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 6, pe.Row)
	assert.Equal(t, 7, pe.Line)

	// The counter uses the same parser, so the run fails before chunking.
	assert.Equal(t, types.RunStateFailed, res.Run.State)
	assert.Equal(t, 0, res.Plan.NumChunks)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "no output on failure")
}

func TestChunk_PlanMismatch(t *testing.T) {
	tests := []struct {
		name     string
		rows     int
		planRows int
	}{
		{"source longer than plan", 5, 3},
		{"source shorter than plan", 4, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			cfg := baseConfig(writeSource(t, dir, matrix(tt.rows, 2)), filepath.Join(dir, "out.csv"), 2).WithDefaults()
			r := &runner{
				logger: slog.New(slog.DiscardHandler),
				cfg:    cfg,
				store:  chunkstore.New(cfg.ChunkDir, "out"),
				inSep:  ',',
				outSep: ',',
			}
			require.NoError(t, r.store.Ensure())

			plan, err := types.NewPlan(tt.planRows, cfg.ChunkSize)
			require.NoError(t, err)
			_, err = r.chunk(context.Background(), plan)
			assert.True(t, errors.Is(err, types.ErrPlanMismatch), "got %v", err)
		})
	}
}

// cancelingLedger cancels the run once the first chunk is recorded.
type cancelingLedger struct {
	types.Ledger
	cancel context.CancelFunc
	once   sync.Once
}

func (l *cancelingLedger) SaveRun(*types.Run) error { return nil }

func (l *cancelingLedger) RecordChunk(types.ChunkRecord) error {
	l.once.Do(l.cancel)
	return nil
}

func TestRun_FailureKeepsArtifacts(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.csv")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := Run(ctx, baseConfig(writeSource(t, dir, matrix(50, 2)), out, 5),
		WithLedger(&cancelingLedger{cancel: cancel}))
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Equal(t, types.RunStateFailed, res.Run.State)

	artifacts := dirEntries(t, filepath.Join(dir, "chunks_out"))
	assert.NotEmpty(t, artifacts, "written artifacts are kept")
	assert.Less(t, len(artifacts), 10)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_Canceled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, baseConfig(writeSource(t, dir, matrix(10, 2)), filepath.Join(dir, "out.csv"), 3))
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Equal(t, types.RunStateFailed, res.Run.State)
}

func TestRun_Ledger(t *testing.T) {
	dir := t.TempDir()
	ledger := sqlite.NewBackend()
	require.NoError(t, ledger.Attach(filepath.Join(dir, "data")))
	defer ledger.Detach()

	res, err := Run(context.Background(),
		baseConfig(writeSource(t, dir, matrix(10, 3)), filepath.Join(dir, "out.csv"), 4),
		WithLedger(ledger), WithRunID("run-1"))
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.Run.RunID)

	run, err := ledger.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, types.RunStateDone, run.State)
	assert.Equal(t, 3, run.Plan.NumChunks)

	recs, err := ledger.Chunks("run-1")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, 3, recs[0].Rows, "transposed chunk has source width rows")
	assert.Equal(t, 4, recs[0].Cols)
	assert.Equal(t, 2, recs[2].Cols)
}

func TestRun_LedgerRecordsFailure(t *testing.T) {
	dir := t.TempDir()
	ledger := sqlite.NewBackend()
	require.NoError(t, ledger.Attach(dir))
	defer ledger.Detach()

	res, err := Run(context.Background(), baseConfig(filepath.Join(dir, "missing.csv"), filepath.Join(dir, "out.csv"), 4), WithLedger(ledger))
	require.Error(t, err)

	run, err := ledger.GetRun(res.Run.RunID)
	require.NoError(t, err)
	assert.Equal(t, types.RunStateFailed, run.State)
	assert.Contains(t, run.Error, "source")
}

func TestRun_Metrics(t *testing.T) {
	dir := t.TempDir()
	m := metrics.New()

	_, err := Run(context.Background(), baseConfig(writeSource(t, dir, matrix(25, 2)), filepath.Join(dir, "out.csv"), 10), WithMetrics(m))
	require.NoError(t, err)

	assert.Equal(t, 25.0, testutil.ToFloat64(m.RowsTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ChunksTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("done")))
}

// recordingUploader keeps object keys and contents, and fails keys listed
// in fail.
type recordingUploader struct {
	mu      sync.Mutex
	objects map[string]string
	fail    map[string]bool
}

func (u *recordingUploader) UploadFile(_ context.Context, localPath, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.fail[key] {
		return fmt.Errorf("upload %s: %w", key, types.ErrNetwork)
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	u.objects[key] = string(data)
	return nil
}

func TestRun_UploadsChunksAndOutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.csv")
	up := &recordingUploader{objects: map[string]string{}}
	targets := upload.Targets{OutputKey: "results/out.csv", ChunkPrefix: "results/chunks"}

	res, err := Run(context.Background(), baseConfig(writeSource(t, dir, matrix(10, 2)), out, 4),
		WithUploader(up, targets), WithUploadLimits(2, nil))
	require.NoError(t, err)
	require.NoError(t, res.UploadErr)
	assert.Equal(t, 4, res.Uploaded)

	want, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, string(want), up.objects["results/out.csv"])
	for i := range 3 {
		assert.Contains(t, up.objects, fmt.Sprintf("results/chunks/chunk_out_%06d.csv", i))
	}
	assert.Empty(t, dirEntries(t, filepath.Join(dir, "chunks_out")), "purged after uploads joined")
}

func TestRun_UploadFailureDoesNotFailRun(t *testing.T) {
	dir := t.TempDir()
	src := matrix(6, 2)
	out := filepath.Join(dir, "out.csv")
	up := &recordingUploader{objects: map[string]string{}, fail: map[string]bool{"out.csv": true}}

	res, err := Run(context.Background(), baseConfig(writeSource(t, dir, src), out, 4),
		WithUploader(up, upload.Targets{OutputKey: "out.csv"}))
	require.NoError(t, err)
	assert.True(t, errors.Is(res.UploadErr, types.ErrNetwork))
	assert.Zero(t, res.Uploaded)
	assertTransposed(t, src, out)
}
