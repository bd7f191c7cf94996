// Package reassemble joins per-chunk transposes side by side into the final
// transposed table.
package reassemble

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jlehrer1/big-csv/internal/tabular"
	"github.com/jlehrer1/big-csv/pkg/types"
)

// DefaultMaxOpen bounds the number of artifacts read at once.
const DefaultMaxOpen = 256

// ctxCheckInterval is the number of output rows between context checks.
const ctxCheckInterval = 1024

// Options controls a reassembly.
type Options struct {
	Sep     rune // separator of the chunk artifacts
	OutSep  rune // separator of the output file
	MaxOpen int  // fan-in limit; DefaultMaxOpen when zero
	Logger  *slog.Logger
}

// input is one file taking part in a merge. first and last name the range of
// original chunk artifacts it stands for, for error reporting.
type input struct {
	path  string
	first string
	last  string
}

func (in input) label() string {
	if in.first == in.last {
		return in.first
	}
	return in.first + " .. " + in.last
}

// Reassemble concatenates artifacts column-wise into out. Row i of the output
// is row i of every artifact joined in the given order, so artifacts must be
// passed in chunk-index order. All artifacts must have the same row count;
// otherwise a ShapeError naming the offending artifact is returned and no
// output is published. Inputs are never modified.
func Reassemble(ctx context.Context, artifacts []string, out string, opts Options) error {
	if opts.MaxOpen < 2 {
		opts.MaxOpen = DefaultMaxOpen
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	inputs := make([]input, len(artifacts))
	for i, p := range artifacts {
		inputs[i] = input{path: p, first: p, last: p}
	}

	if len(inputs) > opts.MaxOpen {
		scratch, err := os.MkdirTemp(filepath.Dir(out), ".reassemble-*")
		if err != nil {
			return &types.IOError{Op: "mkdir", Path: filepath.Dir(out), Err: err}
		}
		defer os.RemoveAll(scratch)

		for level := 0; len(inputs) > opts.MaxOpen; level++ {
			opts.Logger.Debug("merging artifact groups", "level", level, "inputs", len(inputs), "max_open", opts.MaxOpen)
			next, err := mergeLevel(ctx, inputs, scratch, level, opts)
			if err != nil {
				return err
			}
			inputs = next
		}
	}

	opts.Logger.Debug("joining artifacts", "inputs", len(inputs), "output", out)
	return merge(ctx, inputs, out, opts.Sep, opts.OutSep)
}

// mergeLevel merges contiguous groups of at most MaxOpen inputs into scratch
// files, preserving order.
func mergeLevel(ctx context.Context, inputs []input, scratch string, level int, opts Options) ([]input, error) {
	var next []input
	for start := 0; start < len(inputs); start += opts.MaxOpen {
		group := inputs[start:min(start+opts.MaxOpen, len(inputs))]
		if len(group) == 1 {
			next = append(next, group[0])
			continue
		}
		dst := filepath.Join(scratch, fmt.Sprintf("level%d_%06d.csv", level, start/opts.MaxOpen))
		if err := merge(ctx, group, dst, opts.Sep, opts.Sep); err != nil {
			return nil, err
		}
		next = append(next, input{path: dst, first: group[0].first, last: group[len(group)-1].last})
	}
	return next, nil
}

// merge joins inputs row by row into dst.
func merge(ctx context.Context, inputs []input, dst string, sep, outSep rune) (err error) {
	readers := make([]*tabular.RecordReader, 0, len(inputs))
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()
	for _, in := range inputs {
		r, err := tabular.OpenRecords(in.path, sep)
		if err != nil {
			return err
		}
		readers = append(readers, r)
	}

	w, err := tabular.Create(dst, outSep)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			w.Abort()
		}
	}()

	var row []string
	for n := 0; ; n++ {
		if n%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		row = row[:0]
		ended := 0
		for _, r := range readers {
			rec, err := r.Read()
			if err == io.EOF {
				ended++
				continue
			}
			if err != nil {
				return err
			}
			row = append(row, rec...)
		}

		switch {
		case ended == len(readers):
			return w.Commit()
		case ended > 0:
			return shapeError(inputs, sep)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
}

// shapeError counts the rows of every input and reports the first one that
// disagrees with the most common row count.
func shapeError(inputs []input, sep rune) error {
	counts := make([]int, len(inputs))
	freq := make(map[int]int)
	for i, in := range inputs {
		n, err := tabular.CountRecords(in.path, sep)
		if err != nil {
			return err
		}
		counts[i] = n
		freq[n]++
	}

	want := counts[0]
	for _, n := range counts {
		if freq[n] > freq[want] {
			want = n
		}
	}
	for i, n := range counts {
		if n != want {
			return &types.ShapeError{Artifact: inputs[i].label(), Want: want, Got: n}
		}
	}
	return &types.ShapeError{Artifact: inputs[0].label(), Want: want, Got: want}
}
