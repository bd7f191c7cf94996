package types

// Table is an ordered sequence of rows of raw field values. All rows of a
// well-formed Table have the same width. Fields are never coerced: a value
// that looks numeric stays the exact string read from the source.
type Table [][]string

// Rows returns the number of rows.
func (t Table) Rows() int { return len(t) }

// Cols returns the width of the first row, or 0 for an empty table.
func (t Table) Cols() int {
	if len(t) == 0 {
		return 0
	}
	return len(t[0])
}

// Transpose returns a new Table with rows and columns swapped, so that
// out[i][j] == t[j][i]. The receiver is not modified. Rows shorter than the
// first row leave empty strings in the result; callers reject such input
// before it reaches this point.
func (t Table) Transpose() Table {
	rows, cols := t.Rows(), t.Cols()
	if rows == 0 || cols == 0 {
		return Table{}
	}

	// One backing array keeps the transposed chunk in a single allocation.
	cells := make([]string, rows*cols)
	out := make(Table, cols)
	for i := range out {
		out[i] = cells[i*rows : (i+1)*rows : (i+1)*rows]
	}
	for j, row := range t {
		for i := 0; i < cols && i < len(row); i++ {
			out[i][j] = row[i]
		}
	}
	return out
}

// Equal reports whether two tables hold the same fields in the same order.
func (t Table) Equal(other Table) bool {
	if len(t) != len(other) {
		return false
	}
	for i := range t {
		if len(t[i]) != len(other[i]) {
			return false
		}
		for j := range t[i] {
			if t[i][j] != other[i][j] {
				return false
			}
		}
	}
	return true
}

// Chunk is a contiguous slice of at most ChunkSize source rows.
type Chunk struct {
	Index    int   // Zero-based position in the chunk sequence.
	FirstRow int   // Global index of the first row in Table.
	Table    Table // Rows in source order.
}
