package tabular

import "io"

// CountRecords returns the number of records in path. Every record counts,
// including a header line; blank lines are skipped. The same decoder as
// ChunkReader is used so the count always agrees with the chunk sequence,
// and a misaligned record fails the count with a ParseError.
func CountRecords(path string, sep rune) (int, error) {
	rows, _, err := Shape(path, sep)
	return rows, err
}

// Shape returns the record count and width of path. An empty file has
// shape (0, 0).
func Shape(path string, sep rune) (rows, cols int, err error) {
	src, err := Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer src.Close()

	return shape(src, path, sep)
}

func shape(r io.Reader, name string, sep rune) (rows, cols int, err error) {
	rr := newRecordReader(r, name, sep, true)
	for {
		_, err := rr.read()
		if err == io.EOF {
			return rr.row, max(rr.width, 0), nil
		}
		if err != nil {
			return rr.row, max(rr.width, 0), err
		}
	}
}
