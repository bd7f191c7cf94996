// Package h5ad converts a delimited numeric matrix into an HDF5 file laid
// out for anndata: a dense /X, or /X_data, /X_indices and /X_indptr in CSR
// form, plus /X_shape.
//
// Observation and variable names are not numeric, so they are written to
// sidecar text files next to the output, one name per line.
package h5ad

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/scigolib/hdf5"

	"github.com/jlehrer1/big-csv/pkg/types"
)

// Sidecar suffixes appended to the output path.
const (
	VarSuffix = ".var.txt"
	ObsSuffix = ".obs.txt"
)

// ChunkSource yields row chunks in source order and io.EOF at the end.
// *tabular.ChunkReader implements it.
type ChunkSource interface {
	Next() (types.Chunk, error)
}

// Options controls a conversion.
type Options struct {
	Sparsify bool // encode X as CSR
	Header   bool // first row holds variable names
	IndexCol bool // first field of each row holds the observation name
	Logger   *slog.Logger
}

// Summary describes a written file.
type Summary struct {
	Rows, Cols int
	NNZ        int
	Sparse     bool
	VarNames   string // sidecar path, empty when not written
	ObsNames   string
}

// Convert reads every chunk from src and writes out. The matrix is held in
// memory until written, since datasets are written whole. Non-numeric
// values yield a ParseError and no output.
func Convert(ctx context.Context, src ChunkSource, out string, opts Options) (*Summary, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	b := newBuilder(out, opts)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := b.add(c); err != nil {
			return nil, err
		}
		logger.Debug("loaded chunk", "chunk", c.Index, "rows", c.Table.Rows())
	}

	if err := writeMatrix(out, b); err != nil {
		return nil, err
	}
	rows, cols := b.shape()
	sum := &Summary{Rows: rows, Cols: cols, NNZ: b.nnz(), Sparse: b.sparse}

	if len(b.vars) > 0 {
		sum.VarNames = out + VarSuffix
		if err := writeNames(sum.VarNames, b.vars); err != nil {
			return nil, err
		}
	}
	if len(b.obs) > 0 {
		sum.ObsNames = out + ObsSuffix
		if err := writeNames(sum.ObsNames, b.obs); err != nil {
			return nil, err
		}
	}
	logger.Info("wrote h5ad", "output", out, "rows", rows, "cols", cols, "nnz", sum.NNZ, "sparse", sum.Sparse)
	return sum, nil
}

// writeMatrix writes the datasets to a temporary file and renames it over
// out once closed.
func writeMatrix(out string, b *builder) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(out), "."+filepath.Base(out)+".*.tmp")
	if err != nil {
		return &types.IOError{Op: "create", Path: out, Err: err}
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	fw, err := hdf5.CreateForWrite(tmpPath, hdf5.CreateTruncate)
	if err != nil {
		return &types.IOError{Op: "create", Path: tmpPath, Err: err}
	}

	putInt64 := func(name string, data []int64) error {
		ds, err := fw.CreateDataset(name, hdf5.Int64, []uint64{uint64(len(data))})
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		return ds.Write(data)
	}
	putInt32 := func(name string, data []int32) error {
		ds, err := fw.CreateDataset(name, hdf5.Int32, []uint64{uint64(len(data))})
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		return ds.Write(data)
	}
	putFloat64 := func(name string, data []float64, dims ...uint64) error {
		if len(dims) == 0 {
			dims = []uint64{uint64(len(data))}
		}
		ds, err := fw.CreateDataset(name, hdf5.Float64, dims)
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		return ds.Write(data)
	}

	rows, cols := b.shape()
	werr := putInt64("/X_shape", []int64{int64(rows), int64(cols)})
	switch {
	case werr != nil:
	case !b.sparse:
		if rows > 0 && cols > 0 {
			werr = putFloat64("/X", b.dense, uint64(rows), uint64(cols))
		}
	default:
		werr = putInt64("/X_indptr", b.csr.Indptr)
		// An all-zero matrix has nothing to store.
		if werr == nil && len(b.csr.Data) > 0 {
			werr = putFloat64("/X_data", b.csr.Data)
			if werr == nil {
				werr = putInt32("/X_indices", b.csr.Indices)
			}
		}
	}
	if werr != nil {
		fw.Close()
		return &types.IOError{Op: "write", Path: out, Err: werr}
	}

	if err := fw.Close(); err != nil {
		return &types.IOError{Op: "close", Path: out, Err: err}
	}
	if err := os.Rename(tmpPath, out); err != nil {
		return &types.IOError{Op: "rename", Path: out, Err: err}
	}
	return nil
}

func writeNames(path string, names []string) error {
	data := strings.Join(names, "\n") + "\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return &types.IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}
