package tabular

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	"github.com/jlehrer1/big-csv/pkg/types"
)

const writeBufferSize = 1 << 20

// Writer writes records to a temporary file next to its destination. The
// destination only appears, complete and synced, when Commit succeeds.
type Writer struct {
	path string
	f    *os.File
	bw   *bufio.Writer
	cw   *csv.Writer
	rows int
}

// Create starts writing a delimited file that will be published at path.
func Create(path string, sep rune) (*Writer, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, &types.IOError{Op: "create", Path: path, Err: err}
	}
	bw := bufio.NewWriterSize(f, writeBufferSize)
	cw := csv.NewWriter(bw)
	cw.Comma = sep
	return &Writer{path: path, f: f, bw: bw, cw: cw}, nil
}

// Write appends one record.
func (w *Writer) Write(rec []string) error {
	if len(rec) == 1 && rec[0] == "" {
		return w.writeEmptyField()
	}
	if err := w.cw.Write(rec); err != nil {
		return &types.IOError{Op: "write", Path: w.path, Err: err}
	}
	w.rows++
	return nil
}

// writeEmptyField writes a record holding one empty field as a quoted empty
// string. csv.Writer would emit a blank line, which readers skip.
func (w *Writer) writeEmptyField() error {
	w.cw.Flush()
	if err := w.cw.Error(); err != nil {
		return &types.IOError{Op: "write", Path: w.path, Err: err}
	}
	if _, err := w.bw.WriteString(`""` + "\n"); err != nil {
		return &types.IOError{Op: "write", Path: w.path, Err: err}
	}
	w.rows++
	return nil
}

// Rows returns the number of records written so far.
func (w *Writer) Rows() int { return w.rows }

// Commit flushes, syncs and renames the temporary file onto the destination.
func (w *Writer) Commit() error {
	w.cw.Flush()
	if err := w.cw.Error(); err != nil {
		w.Abort()
		return &types.IOError{Op: "write", Path: w.path, Err: err}
	}
	if err := w.bw.Flush(); err != nil {
		w.Abort()
		return &types.IOError{Op: "write", Path: w.path, Err: err}
	}
	if err := w.f.Sync(); err != nil {
		w.Abort()
		return &types.IOError{Op: "sync", Path: w.path, Err: err}
	}
	tmp := w.f.Name()
	if err := w.f.Close(); err != nil {
		os.Remove(tmp)
		return &types.IOError{Op: "close", Path: w.path, Err: err}
	}
	if err := os.Rename(tmp, w.path); err != nil {
		os.Remove(tmp)
		return &types.IOError{Op: "rename", Path: w.path, Err: err}
	}
	return nil
}

// Abort discards the temporary file. Safe to call after a failed Commit.
func (w *Writer) Abort() {
	tmp := w.f.Name()
	w.f.Close()
	os.Remove(tmp)
}

// WriteFile writes t to path with the given separator.
func WriteFile(path string, t types.Table, sep rune) error {
	w, err := Create(path, sep)
	if err != nil {
		return err
	}
	for _, row := range t {
		if err := w.Write(row); err != nil {
			w.Abort()
			return err
		}
	}
	return w.Commit()
}

// ReadFile reads a whole delimited file into memory. Intended for small
// files such as tests and diagnostics.
func ReadFile(path string, sep rune) (types.Table, error) {
	src, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	rr := newRecordReader(src, path, sep, false)
	var t types.Table
	for {
		rec, err := rr.read()
		if err == io.EOF {
			return t, nil
		}
		if err != nil {
			return t, err
		}
		t = append(t, rec)
	}
}
