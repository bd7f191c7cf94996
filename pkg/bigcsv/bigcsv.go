// Package bigcsv is the public entry point for transposing delimited files
// out of core.
//
// A minimal run:
//
//	res, err := bigcsv.Transpose(ctx, bigcsv.Config{
//		Source:    "counts.csv",
//		Output:    "counts_T.csv",
//		ChunkSize: 1000,
//	})
//
// Transpose keeps at most one chunk of ChunkSize rows per worker in memory.
package bigcsv

import (
	"context"

	"github.com/jlehrer1/big-csv/internal/h5ad"
	"github.com/jlehrer1/big-csv/internal/tabular"
	"github.com/jlehrer1/big-csv/internal/transpose"
	"github.com/jlehrer1/big-csv/pkg/types"
)

// Version is the release version of bigcsv.
const Version = "0.3.0"

// ModulePath is the Go module path.
const ModulePath = "github.com/jlehrer1/big-csv"

type (
	Config  = types.Config
	Plan    = types.Plan
	Run     = types.Run
	Result  = transpose.Result
	Option  = transpose.Option
	Summary = h5ad.Summary
)

var (
	WithLogger       = transpose.WithLogger
	WithLedger       = transpose.WithLedger
	WithMetrics      = transpose.WithMetrics
	WithUploader     = transpose.WithUploader
	WithUploadLimits = transpose.WithUploadLimits
	WithRunID        = transpose.WithRunID
)

// Transpose writes the transpose of cfg.Source to cfg.Output. See
// transpose.Run for the failure contract.
func Transpose(ctx context.Context, cfg Config, opts ...Option) (*Result, error) {
	return transpose.Run(ctx, cfg, opts...)
}

// ConvertH5AD reads source in chunks of chunkSize rows and writes it to out
// as an h5ad matrix.
func ConvertH5AD(ctx context.Context, source, out, sep string, chunkSize int, opts h5ad.Options) (*Summary, error) {
	r, err := types.SepRune(sep)
	if err != nil {
		return nil, &types.ConfigError{Field: "sep", Reason: err.Error()}
	}
	src, err := tabular.OpenChunks(source, r, chunkSize)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return h5ad.Convert(ctx, src, out, opts)
}
