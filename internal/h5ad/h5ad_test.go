package h5ad

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jlehrer1/big-csv/internal/tabular"
	"github.com/jlehrer1/big-csv/pkg/types"
)

const hdf5Signature = "\x89HDF\r\n\x1a\n"

func chunks(content string, size int) *tabular.ChunkReader {
	return tabular.NewChunkReader(strings.NewReader(content), "test.csv", ',', size)
}

// load feeds content through a builder without writing a file.
func load(t *testing.T, content string, size int, opts Options) *builder {
	t.Helper()
	b := newBuilder("test.csv", opts)
	src := chunks(content, size)
	for {
		c, err := src.Next()
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			return b
		}
		require.NoError(t, b.add(c))
	}
}

func TestBuilder_Dense(t *testing.T) {
	b := load(t, "1,2,3\n4,5,6\n", 1, Options{})
	rows, cols := b.shape()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 3, cols)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, b.dense)
}

func TestBuilder_Sparse(t *testing.T) {
	b := load(t, "0,2,0\n0,0,0\n3,0,4.5\n", 2, Options{Sparsify: true})
	assert.Equal(t, []float64{2, 3, 4.5}, b.csr.Data)
	assert.Equal(t, []int32{1, 0, 2}, b.csr.Indices)
	assert.Equal(t, []int64{0, 1, 1, 3}, b.csr.Indptr)
	assert.Equal(t, 3, b.nnz())
}

func TestBuilder_HeaderAndIndex(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		content  string
		wantVars []string
		wantObs  []string
		wantCols int
	}{
		{
			name:     "header only",
			opts:     Options{Header: true},
			content:  "g1,g2\n1,2\n3,4\n",
			wantVars: []string{"g1", "g2"},
			wantCols: 2,
		},
		{
			name:     "index only",
			opts:     Options{IndexCol: true},
			content:  "c1,1,2\nc2,3,4\n",
			wantObs:  []string{"c1", "c2"},
			wantCols: 2,
		},
		{
			name:     "header and index drop the corner cell",
			opts:     Options{Header: true, IndexCol: true},
			content:  "cell,g1,g2\nc1,1,2\nc2,3,4\n",
			wantVars: []string{"g1", "g2"},
			wantObs:  []string{"c1", "c2"},
			wantCols: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := load(t, tt.content, 1, tt.opts)
			rows, cols := b.shape()
			assert.Equal(t, 2, rows)
			assert.Equal(t, tt.wantCols, cols)
			assert.Equal(t, tt.wantVars, b.vars)
			assert.Equal(t, tt.wantObs, b.obs)
			assert.Equal(t, []float64{1, 2, 3, 4}, b.dense)
		})
	}
}

func TestBuilder_MissingValues(t *testing.T) {
	b := load(t, "1,,3\n", 10, Options{})
	require.Len(t, b.dense, 3)
	assert.True(t, math.IsNaN(b.dense[1]))

	// Missing values are stored in sparse form too.
	b = load(t, "0, \n", 10, Options{Sparsify: true})
	assert.Equal(t, 1, b.nnz())
}

func TestBuilder_NonNumeric(t *testing.T) {
	b := newBuilder("test.csv", Options{})
	src := chunks("1,2\n3,abc\n", 10)
	c, err := src.Next()
	require.NoError(t, err)

	err = b.add(c)
	assert.True(t, errors.Is(err, types.ErrParse))
	var pe *types.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 1, pe.Row)
	assert.Contains(t, err.Error(), "abc")
}

func TestConvert_Dense(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "x.h5ad")

	sum, err := Convert(context.Background(), chunks("cell,g1,g2\nc1,1,0\nc2,0,2\nc3,5,6\n", 2), out,
		Options{Header: true, IndexCol: true})
	require.NoError(t, err)
	assert.Equal(t, &Summary{Rows: 3, Cols: 2, NNZ: 6, VarNames: out + VarSuffix, ObsNames: out + ObsSuffix}, sum)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.True(t, len(data) >= len(hdf5Signature))
	assert.Equal(t, hdf5Signature, string(data[:len(hdf5Signature)]))

	vars, err := os.ReadFile(out + VarSuffix)
	require.NoError(t, err)
	assert.Equal(t, "g1\ng2\n", string(vars))
	obs, err := os.ReadFile(out + ObsSuffix)
	require.NoError(t, err)
	assert.Equal(t, "c1\nc2\nc3\n", string(obs))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "no temp files left behind")
}

func TestConvert_Sparse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		nnz     int
	}{
		{name: "some values", content: "0,1\n2,0\n0,0\n", nnz: 2},
		{name: "all zero", content: "0,0\n0,0\n", nnz: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "x.h5ad")
			sum, err := Convert(context.Background(), chunks(tt.content, 1), out, Options{Sparsify: true})
			require.NoError(t, err)
			assert.True(t, sum.Sparse)
			assert.Equal(t, tt.nnz, sum.NNZ)
			assert.Empty(t, sum.VarNames)
			assert.Empty(t, sum.ObsNames)

			_, err = os.Stat(out)
			assert.NoError(t, err)
			_, err = os.Stat(out + VarSuffix)
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestConvert_ParseErrorWritesNothing(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "x.h5ad")

	_, err := Convert(context.Background(), chunks("1,2\nNA?,3\n", 1), out, Options{})
	assert.True(t, errors.Is(err, types.ErrParse))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConvert_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Convert(ctx, chunks("1\n", 1), filepath.Join(t.TempDir(), "x.h5ad"), Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConvert_MissingDir(t *testing.T) {
	_, err := Convert(context.Background(), chunks("1\n", 1), filepath.Join(t.TempDir(), "nope", "x.h5ad"), Options{})
	assert.True(t, errors.Is(err, types.ErrIO))
}
