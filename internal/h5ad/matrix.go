package h5ad

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jlehrer1/big-csv/pkg/types"
)

// CSR is a compressed sparse row matrix with the layout anndata expects:
// row r holds Data[Indptr[r]:Indptr[r+1]] at columns Indices[...].
type CSR struct {
	Data    []float64
	Indices []int32
	Indptr  []int64
}

// builder accumulates numeric chunks into a dense or CSR matrix and
// collects observation and variable names.
type builder struct {
	name     string
	header   bool
	indexCol bool
	sparse   bool

	rows  int
	cols  int
	obs   []string
	vars  []string
	dense []float64
	csr   CSR
}

func newBuilder(name string, opts Options) *builder {
	b := &builder{
		name:     name,
		header:   opts.Header,
		indexCol: opts.IndexCol,
		sparse:   opts.Sparsify,
		cols:     -1,
	}
	if b.sparse {
		b.csr.Indptr = []int64{0}
	}
	return b
}

// add appends the rows of one chunk. Chunks must arrive in order.
func (b *builder) add(c types.Chunk) error {
	for i, rec := range c.Table {
		row := c.FirstRow + i
		if row == 0 && b.header {
			if b.indexCol && len(rec) > 0 {
				rec = rec[1:]
			}
			b.vars = append([]string(nil), rec...)
			b.cols = len(b.vars)
			continue
		}
		if b.indexCol {
			if len(rec) == 0 {
				continue
			}
			b.obs = append(b.obs, rec[0])
			rec = rec[1:]
		}
		if b.cols < 0 {
			b.cols = len(rec)
		}
		if err := b.addRow(rec, row); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) addRow(rec []string, row int) error {
	for j, field := range rec {
		v, err := parseValue(field)
		if err != nil {
			return &types.ParseError{Path: b.name, Row: row, Err: fmt.Errorf("field %d: %w", j, err)}
		}
		if !b.sparse {
			b.dense = append(b.dense, v)
			continue
		}
		if v != 0 {
			b.csr.Data = append(b.csr.Data, v)
			b.csr.Indices = append(b.csr.Indices, int32(j))
		}
	}
	if b.sparse {
		b.csr.Indptr = append(b.csr.Indptr, int64(len(b.csr.Data)))
	}
	b.rows++
	return nil
}

// parseValue reads a numeric field. Empty fields are missing values.
func parseValue(field string) (float64, error) {
	s := strings.TrimSpace(field)
	if s == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not numeric", field)
	}
	return v, nil
}

// shape returns rows and columns, with columns 0 for an empty matrix.
func (b *builder) shape() (int, int) {
	return b.rows, max(b.cols, 0)
}

// nnz returns the number of stored values.
func (b *builder) nnz() int {
	if b.sparse {
		return len(b.csr.Data)
	}
	return len(b.dense)
}
