package transpose

import (
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/jlehrer1/big-csv/internal/metrics"
	"github.com/jlehrer1/big-csv/internal/upload"
	"github.com/jlehrer1/big-csv/pkg/types"
)

// Option configures a Run.
type Option func(*runner)

// WithLogger sets the logger for progress and diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithLedger records the run and its chunks in an attached ledger. Ledger
// failures are logged and never fail the transpose.
func WithLedger(l types.Ledger) Option {
	return func(r *runner) { r.ledger = l }
}

// WithMetrics records pipeline metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *runner) { r.metrics = m }
}

// WithUploader copies chunk artifacts and the final output to an object
// store as they become durable. Upload failures are reported in
// Result.UploadErr.
func WithUploader(up upload.Uploader, targets upload.Targets) Option {
	return func(r *runner) {
		r.uploader = up
		r.targets = targets
	}
}

// WithUploadLimits bounds upload concurrency and rate.
func WithUploadLimits(concurrency int, limiter *rate.Limiter) Option {
	return func(r *runner) {
		r.uploadConcurrency = concurrency
		r.uploadLimiter = limiter
	}
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(r *runner) { r.runID = id }
}
