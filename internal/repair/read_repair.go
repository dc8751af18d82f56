package repair

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"lwwdoc/internal/document"
)

// PushFunc sends a snapshot to the replica at addr.
type PushFunc func(ctx context.Context, addr string, doc *document.Document) error

// ReadRepairer performs asynchronous read repair to converge stale replicas.
type ReadRepairer struct {
	push    PushFunc
	timeout time.Duration
	logger  log.Logger
	wg      sync.WaitGroup
}

// NewReadRepairer creates a new read repairer.
func NewReadRepairer(push PushFunc, timeout time.Duration, logger log.Logger) *ReadRepairer {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ReadRepairer{
		push:    push,
		timeout: timeout,
		logger:  log.With(logger, "component", "read-repair"),
	}
}

// Repair asynchronously pushes the merged state to every stale replica.
// It does not block or retry; failures are logged. replicaAddrs maps
// replica identifiers to addresses; replicas without an address are
// skipped.
func (r *ReadRepairer) Repair(res ReconcileResult, replicaAddrs map[string]string) {
	if res.IsConverged() {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		// Detached from the caller so the repair outlives the request.
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		logger := log.With(r.logger, "doc", res.Merged.ID())
		repaired, failed := 0, 0

		for _, replica := range res.StaleReplicas() {
			addr, ok := replicaAddrs[replica]
			if !ok {
				level.Debug(logger).Log("msg", "skipping replica without address", "replica", replica)
				continue
			}

			if err := r.push(ctx, addr, res.Merged); err != nil {
				level.Warn(logger).Log(
					"msg", "read repair failed",
					"replica", replica,
					"fields", len(res.Stale[replica]),
					"err", err,
				)
				failed++
				continue
			}
			repaired++
		}

		level.Debug(logger).Log("msg", "read repair completed", "repaired", repaired, "failed", failed)
	}()
}

// Wait blocks until every pending repair has finished.
func (r *ReadRepairer) Wait() {
	r.wg.Wait()
}
