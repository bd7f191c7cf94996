package types

// Plan is the chunk layout of one run, computed once from the record count.
type Plan struct {
	TotalRows int `json:"total_rows"`
	ChunkSize int `json:"chunk_size"`
	NumChunks int `json:"num_chunks"`
}

// NewPlan computes NumChunks = ceil(totalRows / chunkSize). An exact multiple
// does not get a trailing empty chunk, and an empty source has no chunks.
func NewPlan(totalRows, chunkSize int) (Plan, error) {
	if chunkSize <= 0 {
		return Plan{}, &ConfigError{Field: "chunksize", Reason: "must be greater than 0"}
	}
	if totalRows < 0 {
		return Plan{}, &ConfigError{Field: "total_rows", Reason: "must not be negative"}
	}
	return Plan{
		TotalRows: totalRows,
		ChunkSize: chunkSize,
		NumChunks: (totalRows + chunkSize - 1) / chunkSize,
	}, nil
}

// ChunkRows returns the number of rows chunk i is expected to hold, or 0 when
// i is out of range.
func (p Plan) ChunkRows(i int) int {
	if i < 0 || i >= p.NumChunks {
		return 0
	}
	if i == p.NumChunks-1 {
		if rem := p.TotalRows - i*p.ChunkSize; rem > 0 {
			return rem
		}
	}
	return p.ChunkSize
}
