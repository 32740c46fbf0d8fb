package propagation

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Task is one unit of pool work, identified by its index in the batch.
type Task func(ctx context.Context, idx int) error

// WorkerPool bounds how many propagation-heavy tasks run at once.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a pool running at most workers tasks concurrently.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	return &WorkerPool{workers: max(1, workers), logger: logger}
}

// Workers returns the concurrency bound.
func (wp *WorkerPool) Workers() int {
	return wp.workers
}

// Run executes task for indices 0..n-1 and reports how many succeeded and
// failed. A failing task does not stop the batch. Once ctx is cancelled no
// further tasks are started; tasks never started are in neither count.
func (wp *WorkerPool) Run(ctx context.Context, n int, task Task) (succeeded, failed int) {
	var ok, bad atomic.Int64
	sem := make(chan struct{}, wp.workers)
	var wg sync.WaitGroup

dispatch:
	for idx := 0; idx < n; idx++ {
		if ctx.Err() != nil {
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}

		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := task(ctx, idx); err != nil {
				bad.Add(1)
				wp.logger.Warn("pool task failed", "component", "propagation", "task", idx, "error", err)
				return
			}
			ok.Add(1)
		}(idx)
	}

	wg.Wait()
	return int(ok.Load()), int(bad.Load())
}
