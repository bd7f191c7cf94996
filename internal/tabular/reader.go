package tabular

import (
	"encoding/csv"
	"errors"
	"io"

	"github.com/jlehrer1/big-csv/pkg/types"
)

// recordReader decodes records and enforces a uniform width. The width of
// the first record fixes the width of the whole stream.
type recordReader struct {
	name  string
	r     *csv.Reader
	width int
	row   int
}

func newRecordReader(r io.Reader, name string, sep rune, reuse bool) *recordReader {
	cr := csv.NewReader(r)
	cr.Comma = sep
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = reuse
	return &recordReader{name: name, r: cr, width: -1}
}

// read returns the next record, io.EOF at the end of input, a ParseError for
// malformed or misaligned records, or an IOError for read failures.
func (rr *recordReader) read() ([]string, error) {
	rec, err := rr.r.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return nil, &types.ParseError{Path: rr.name, Row: rr.row, Line: pe.StartLine, Err: pe.Err}
		}
		return nil, &types.IOError{Op: "read", Path: rr.name, Err: err}
	}

	if rr.width < 0 {
		rr.width = len(rec)
	} else if len(rec) != rr.width {
		line, _ := rr.r.FieldPos(0)
		return nil, &types.ParseError{Path: rr.name, Row: rr.row, Line: line, Want: rr.width, Got: len(rec)}
	}
	rr.row++
	return rec, nil
}

// ChunkReader yields consecutive row chunks of a delimited source in order.
// It is single pass: once exhausted it must be reopened to read again.
type ChunkReader struct {
	rr     *recordReader
	closer io.Closer
	size   int
	index  int
	done   bool
}

// NewChunkReader reads chunks of at most chunkSize rows from r. name is used
// in error messages.
func NewChunkReader(r io.Reader, name string, sep rune, chunkSize int) *ChunkReader {
	return &ChunkReader{
		rr:   newRecordReader(r, name, sep, false),
		size: chunkSize,
	}
}

// OpenChunks opens path (decompressing .gz/.zst) and returns a ChunkReader
// over it. The caller must Close the reader.
func OpenChunks(path string, sep rune, chunkSize int) (*ChunkReader, error) {
	if chunkSize <= 0 {
		return nil, &types.ConfigError{Field: "chunksize", Reason: "must be greater than 0"}
	}
	src, err := Open(path)
	if err != nil {
		return nil, err
	}
	cr := NewChunkReader(src, path, sep, chunkSize)
	cr.closer = src
	return cr, nil
}

// Next returns the next chunk. The final chunk may hold fewer rows than the
// chunk size. After the last chunk Next returns io.EOF.
func (c *ChunkReader) Next() (types.Chunk, error) {
	if c.done {
		return types.Chunk{}, io.EOF
	}

	chunk := types.Chunk{Index: c.index, FirstRow: c.rr.row}
	table := make(types.Table, 0, c.size)
	for len(table) < c.size {
		rec, err := c.rr.read()
		if err == io.EOF {
			c.done = true
			break
		}
		if err != nil {
			c.done = true
			return types.Chunk{}, err
		}
		table = append(table, rec)
	}
	if len(table) == 0 {
		return types.Chunk{}, io.EOF
	}

	chunk.Table = table
	c.index++
	return chunk, nil
}

// Rows returns the number of records read so far.
func (c *ChunkReader) Rows() int { return c.rr.row }

// Close releases the underlying file, if the reader owns one.
func (c *ChunkReader) Close() error {
	if c.closer == nil {
		return nil
	}
	err := c.closer.Close()
	c.closer = nil
	return err
}

// RecordReader streams the records of one file. The slice returned by Read
// is reused by the next call.
type RecordReader struct {
	rr  *recordReader
	src io.ReadCloser
}

// OpenRecords opens path for streaming record reads.
func OpenRecords(path string, sep rune) (*RecordReader, error) {
	src, err := Open(path)
	if err != nil {
		return nil, err
	}
	return &RecordReader{rr: newRecordReader(src, path, sep, true), src: src}, nil
}

// Read returns the next record or io.EOF.
func (r *RecordReader) Read() ([]string, error) { return r.rr.read() }

// Rows returns the number of records read so far.
func (r *RecordReader) Rows() int { return r.rr.row }

// Close closes the underlying file.
func (r *RecordReader) Close() error { return r.src.Close() }
