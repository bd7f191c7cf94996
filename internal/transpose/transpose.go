// Package transpose drives a complete out-of-core transpose: count the
// source records, transpose fixed-size row chunks to disk, join the chunk
// transposes column-wise into the output and clean up.
package transpose

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/jlehrer1/big-csv/internal/chunkstore"
	"github.com/jlehrer1/big-csv/internal/metrics"
	"github.com/jlehrer1/big-csv/internal/reassemble"
	"github.com/jlehrer1/big-csv/internal/tabular"
	"github.com/jlehrer1/big-csv/internal/upload"
	"github.com/jlehrer1/big-csv/pkg/types"
)

// Result describes a finished or failed run.
type Result struct {
	Run    *types.Run
	Plan   types.Plan
	Output string

	// Chunks lists the artifact paths in chunk order. It is empty when the
	// chunk directory was purged.
	Chunks []string

	// Uploaded counts objects copied to the object store. UploadErr joins
	// every upload failure; it never affects the transpose itself.
	Uploaded  int
	UploadErr error
}

type runner struct {
	logger  *slog.Logger
	ledger  types.Ledger
	metrics *metrics.Metrics
	runID   string

	uploader          upload.Uploader
	targets           upload.Targets
	uploadConcurrency int
	uploadLimiter     *rate.Limiter
	queue             *upload.Queue

	cfg    types.Config
	run    *types.Run
	store  *chunkstore.Store
	inSep  rune
	outSep rune
}

// Run transposes cfg.Source into cfg.Output.
//
// On failure the run ends in the failed state, the originating error is
// returned together with a Result describing the run, and any chunk
// artifacts already written are left in place for inspection.
func Run(ctx context.Context, cfg types.Config, opts ...Option) (*Result, error) {
	r := &runner{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == "" {
		r.runID = types.NewRunID()
	}
	r.cfg = cfg.WithDefaults()
	r.run = types.NewRun(r.runID, r.cfg)
	r.logger = r.logger.With("run_id", r.runID)

	res := &Result{Run: r.run, Output: r.cfg.Output}
	if r.uploader != nil && r.targets.Enabled() {
		r.queue = upload.NewQueue(ctx, r.uploader, upload.QueueOptions{
			Concurrency: r.uploadConcurrency,
			Limiter:     r.uploadLimiter,
			Metrics:     r.metrics,
			Logger:      r.logger,
		})
	}

	err := r.execute(ctx, res)
	if r.queue != nil {
		res.Uploaded, res.UploadErr = r.queue.Wait()
	}
	res.Plan = r.run.Plan
	if err != nil {
		state := r.run.State
		if ferr := r.run.Fail(err); ferr != nil {
			r.logger.Warn("cannot mark run failed", "error", ferr)
		}
		r.save()
		r.metrics.RecordRun(false)
		r.logger.Error("transpose failed", "state", state, "error", err)
		return res, err
	}
	r.metrics.RecordRun(true)
	return res, nil
}

func (r *runner) execute(ctx context.Context, res *Result) error {
	// init
	if err := r.cfg.Validate(); err != nil {
		return err
	}
	r.inSep, _ = types.SepRune(r.cfg.InSep)
	r.outSep, _ = types.SepRune(r.cfg.OutSep)
	r.store = chunkstore.New(r.cfg.ChunkDir, types.OutputStem(r.cfg.Output))
	if err := r.prepareStore(); err != nil {
		return err
	}
	r.save()

	// counting
	if err := r.advance(types.RunStateCounting); err != nil {
		return err
	}
	start := time.Now()
	total, err := tabular.CountRecords(r.cfg.Source, r.inSep)
	if err != nil {
		return err
	}
	plan, err := types.NewPlan(total, r.cfg.ChunkSize)
	if err != nil {
		return err
	}
	r.run.Plan = plan
	r.metrics.ObservePhase(metrics.PhaseCounting, time.Since(start))
	r.logger.Info("counted records", "source", r.cfg.Source, "rows", plan.TotalRows, "chunks", plan.NumChunks, "chunk_size", plan.ChunkSize)

	// chunking
	if err := r.advance(types.RunStateChunking); err != nil {
		return err
	}
	start = time.Now()
	paths, err := r.chunk(ctx, plan)
	if err != nil {
		return err
	}
	r.metrics.ObservePhase(metrics.PhaseChunking, time.Since(start))

	// reassembling
	if err := r.advance(types.RunStateReassembling); err != nil {
		return err
	}
	start = time.Now()
	err = reassemble.Reassemble(ctx, paths, r.cfg.Output, reassemble.Options{
		Sep:     r.outSep,
		OutSep:  r.outSep,
		MaxOpen: r.cfg.MaxOpen,
		Logger:  r.logger,
	})
	if err != nil {
		return err
	}
	r.metrics.ObservePhase(metrics.PhaseReassembling, time.Since(start))
	r.logger.Info("wrote output", "output", r.cfg.Output, "cols", plan.TotalRows)
	if r.queue != nil && r.targets.OutputKey != "" {
		r.queue.Enqueue(r.cfg.Output, r.targets.OutputKey)
	}

	// cleanup
	if err := r.advance(types.RunStateCleanup); err != nil {
		return err
	}
	start = time.Now()
	if r.queue != nil {
		// Purging must not race in-flight chunk uploads.
		res.Uploaded, res.UploadErr = r.queue.Wait()
	}
	if r.cfg.KeepChunks {
		res.Chunks = paths
	} else {
		if err := r.store.Purge(); err != nil {
			return err
		}
		r.logger.Debug("purged chunk directory", "dir", r.store.Dir())
	}
	r.metrics.ObservePhase(metrics.PhaseCleanup, time.Since(start))

	return r.advance(types.RunStateDone)
}
