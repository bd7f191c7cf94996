package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jlehrer1/big-csv/internal/metrics"
	"github.com/jlehrer1/big-csv/pkg/types"
)

// DefaultConcurrency is the number of uploads in flight when a queue is not
// told otherwise.
const DefaultConcurrency = 4

// Targets names the remote objects of a transpose run. Empty fields disable
// the corresponding upload.
type Targets struct {
	OutputKey   string // object key for the transposed output
	ChunkPrefix string // key prefix for chunk artifacts
}

// Enabled reports whether anything is to be uploaded.
func (t Targets) Enabled() bool {
	return t.OutputKey != "" || t.ChunkPrefix != ""
}

// ChunkKey returns the object key of a chunk artifact.
func (t Targets) ChunkKey(localPath string) string {
	return path.Join(t.ChunkPrefix, filepath.Base(localPath))
}

// QueueOptions configures a Queue.
type QueueOptions struct {
	Concurrency int           // uploads in flight; DefaultConcurrency when zero
	Limiter     *rate.Limiter // optional; waited on before every upload
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Queue runs uploads in the background with bounded concurrency. Failures
// are collected rather than cancelling other uploads; Wait returns them
// joined.
type Queue struct {
	ctx  context.Context
	up   Uploader
	g    errgroup.Group
	opts QueueOptions

	mu   sync.Mutex
	errs []error
	done int
}

// NewQueue returns a queue that uploads through up until ctx is cancelled.
func NewQueue(ctx context.Context, up Uploader, opts QueueOptions) *Queue {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	q := &Queue{ctx: ctx, up: up, opts: opts}
	q.g.SetLimit(opts.Concurrency)
	return q
}

// Enqueue schedules localPath for upload to key. The file must be complete
// and must not be removed before Wait returns. Enqueue blocks while the
// queue is at its concurrency limit.
func (q *Queue) Enqueue(localPath, key string) {
	q.g.Go(func() error {
		err := q.upload(localPath, key)
		q.mu.Lock()
		defer q.mu.Unlock()
		if err != nil {
			q.errs = append(q.errs, err)
			q.opts.Logger.Warn("upload failed", "path", localPath, "key", key, "error", err)
		} else {
			q.done++
		}
		return nil
	})
}

func (q *Queue) upload(localPath, key string) error {
	if q.opts.Limiter != nil {
		if err := q.opts.Limiter.Wait(q.ctx); err != nil {
			return fmt.Errorf("upload %s: %w", localPath, err)
		}
	}
	var size int64
	if info, err := os.Stat(localPath); err == nil {
		size = info.Size()
	}
	err := q.up.UploadFile(q.ctx, localPath, key)
	q.opts.Metrics.RecordUpload(size, err)
	return err
}

// Wait blocks until every enqueued upload finished and returns the number
// of successful uploads plus all failures joined.
func (q *Queue) Wait() (int, error) {
	_ = q.g.Wait()
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.done, errors.Join(q.errs...)
}

// UploadDir uploads every regular file in dir under prefix, in name order,
// stopping at the first failure. It returns the number of files uploaded.
func UploadDir(ctx context.Context, up Uploader, dir, prefix string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, &types.IOError{Op: "readdir", Path: dir, Err: err}
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return 0, fmt.Errorf("%w: %s is empty", ErrNoArtifacts, dir)
	}
	sort.Strings(names)

	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := up.UploadFile(ctx, filepath.Join(dir, name), path.Join(prefix, name)); err != nil {
			return i, err
		}
	}
	return len(names), nil
}
