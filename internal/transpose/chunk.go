package transpose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jlehrer1/big-csv/internal/tabular"
	"github.com/jlehrer1/big-csv/pkg/types"
)

// prepareStore makes sure the chunk directory exists and holds nothing from
// a previous run.
func (r *runner) prepareStore() error {
	if r.cfg.CleanChunkDir {
		if err := r.store.Purge(); err != nil {
			return err
		}
	} else if err := r.store.CheckEmpty(); err != nil {
		return err
	}
	return r.store.Ensure()
}

// chunk streams the source in chunks of cfg.ChunkSize rows. One goroutine
// reads; cfg.Workers goroutines transpose and persist. The channel is
// unbuffered, so at most Workers+1 chunks are held in memory. It returns the
// artifact paths indexed by chunk.
func (r *runner) chunk(ctx context.Context, plan types.Plan) ([]string, error) {
	cr, err := tabular.OpenChunks(r.cfg.Source, r.inSep, r.cfg.ChunkSize)
	if err != nil {
		return nil, err
	}
	defer cr.Close()

	paths := make([]string, plan.NumChunks)
	chunks := make(chan types.Chunk)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(chunks)
		read := 0
		for {
			if err := gctx.Err(); err != nil {
				return err
			}
			c, err := cr.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			if c.Index >= plan.NumChunks || c.Table.Rows() != plan.ChunkRows(c.Index) {
				return fmt.Errorf("%w: chunk %d has %d rows, plan expects %d of %d chunks",
					types.ErrPlanMismatch, c.Index, c.Table.Rows(), plan.ChunkRows(c.Index), plan.NumChunks)
			}
			select {
			case chunks <- c:
			case <-gctx.Done():
				return gctx.Err()
			}
			read++
		}
		if read != plan.NumChunks {
			return fmt.Errorf("%w: read %d chunks, planned %d", types.ErrPlanMismatch, read, plan.NumChunks)
		}
		return nil
	})

	for range r.cfg.Workers {
		g.Go(func() error {
			for c := range chunks {
				if err := gctx.Err(); err != nil {
					return err
				}
				path, err := r.persist(c, plan)
				if err != nil {
					return err
				}
				// Indices are disjoint across workers.
				paths[c.Index] = path
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

// persist transposes one chunk, writes its artifact and hands it to the
// upload queue once the artifact is durable.
func (r *runner) persist(c types.Chunk, plan types.Plan) (string, error) {
	start := time.Now()
	t := c.Table.Transpose()
	path, err := r.store.Write(c.Index, t, r.outSep)
	if err != nil {
		return "", err
	}
	r.metrics.RecordChunk(c.Table.Rows(), time.Since(start))
	r.logger.Info("transposed chunk", "chunk", c.Index+1, "of", plan.NumChunks, "first_row", c.FirstRow, "rows", c.Table.Rows())

	if r.ledger != nil {
		rec := types.ChunkRecord{
			RunID:     r.run.RunID,
			Index:     c.Index,
			Path:      path,
			Rows:      t.Rows(),
			Cols:      t.Cols(),
			WrittenAt: time.Now(),
		}
		if err := r.ledger.RecordChunk(rec); err != nil {
			r.logger.Warn("ledger: record chunk", "chunk", c.Index, "error", err)
		}
	}
	if r.queue != nil && r.targets.ChunkPrefix != "" {
		r.queue.Enqueue(path, r.targets.ChunkKey(path))
	}
	return path, nil
}

// advance moves the run to its next state and records it.
func (r *runner) advance(state string) error {
	if err := r.run.Advance(state); err != nil {
		return fmt.Errorf("advance to %s: %w", state, err)
	}
	r.logger.Debug("run state", "state", state)
	r.save()
	return nil
}

func (r *runner) save() {
	if r.ledger == nil {
		return
	}
	if err := r.ledger.SaveRun(r.run); err != nil {
		r.logger.Warn("ledger: save run", "state", r.run.State, "error", err)
	}
}
