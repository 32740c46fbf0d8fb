package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/asride/kessler/internal/conjunction"
	"github.com/asride/kessler/internal/metrics"
)

// DefaultWriteTimeout bounds a single audit write.
const DefaultWriteTimeout = 5 * time.Second

// Recorder writes audit records in the background. Failures are logged and
// counted, never returned to the analysis caller.
type Recorder struct {
	store   Store
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewRecorder returns a Recorder writing to store. A non-positive timeout
// means DefaultWriteTimeout.
func NewRecorder(store Store, timeout time.Duration, logger *slog.Logger) *Recorder {
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	return &Recorder{store: store, timeout: timeout, logger: logger}
}

// Record starts writing an audit record for res and returns immediately.
// The channel yields the write outcome once and is then closed.
func (r *Recorder) Record(ctx context.Context, res conjunction.Result) <-chan error {
	done := make(chan error, 1)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(done)

		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		err := r.store.AppendAudit(ctx, AuditFromResult(res))
		metrics.RecordEventWrite("audit", err)
		if err != nil {
			r.logger.Warn("audit write failed",
				"component", "events",
				"object_a", res.ObjectA.Name,
				"object_b", res.ObjectB.Name,
				"error", err,
			)
		}
		done <- err
	}()
	return done
}

// Wait blocks until every in-flight write has finished.
func (r *Recorder) Wait() {
	r.wg.Wait()
}
