// Package tabular reads and writes delimited text tables: it counts records,
// streams a source file as fixed-size row chunks, and serializes tables with
// a chosen separator.
package tabular

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/jlehrer1/big-csv/pkg/types"
)

const readBufferSize = 1 << 20

// source is an open, possibly decompressed, input stream.
type source struct {
	io.Reader
	closers []io.Closer
}

func (s *source) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// zstdCloser adapts zstd.Decoder, whose Close has no return value.
type zstdCloser struct{ d *zstd.Decoder }

func (z zstdCloser) Close() error {
	z.d.Close()
	return nil
}

// Open opens path for reading. Files ending in .gz or .zst are decompressed
// transparently.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &types.IOError{Op: "open", Path: path, Err: err}
	}
	src := &source{closers: []io.Closer{f}}
	buffered := bufio.NewReaderSize(f, readBufferSize)

	switch {
	case strings.HasSuffix(path, ".gz"):
		zr, err := gzip.NewReader(buffered)
		if err != nil {
			f.Close()
			return nil, &types.IOError{Op: "gunzip", Path: path, Err: err}
		}
		src.Reader = zr
		src.closers = append(src.closers, zr)
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(buffered)
		if err != nil {
			f.Close()
			return nil, &types.IOError{Op: "unzstd", Path: path, Err: err}
		}
		src.Reader = zr
		src.closers = append(src.closers, zstdCloser{zr})
	default:
		src.Reader = buffered
	}
	return src, nil
}
