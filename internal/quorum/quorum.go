package quorum

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultPerReplicaTimeout is the default timeout for each replica call.
	DefaultPerReplicaTimeout = 2 * time.Second
)

// ErrNotMet is returned when fewer replicas than required acknowledged.
var ErrNotMet = errors.New("quorum not met")

// Result represents the outcome of a fan-out.
type Result struct {
	Acks     int
	Required int
	Replicas int
	// Failed maps replica to the error it returned.
	Failed map[string]error
	Err    error
}

// OK reports whether the required number of replicas acknowledged.
func (r Result) OK() bool {
	return r.Err == nil
}

// ReplicaFunc performs the operation against one replica. A nil error is
// an acknowledgement.
type ReplicaFunc func(ctx context.Context, replica string) error

// Options tune a fan-out.
type Options struct {
	// Required is the number of acks needed. Zero means majority.
	Required int
	// PerReplicaTimeout bounds each call. Zero means DefaultPerReplicaTimeout.
	PerReplicaTimeout time.Duration
}

// Fanout calls fn for every replica in parallel and waits for all of them
// or for ctx to end.
func Fanout(ctx context.Context, replicas []string, opts Options, fn ReplicaFunc) Result {
	res := Result{
		Required: opts.Required,
		Replicas: len(replicas),
		Failed:   make(map[string]error),
	}

	if len(replicas) == 0 {
		res.Err = errors.New("no replicas provided")
		return res
	}
	if res.Required <= 0 {
		res.Required = len(replicas)/2 + 1
	}
	if res.Required > len(replicas) {
		res.Err = errors.Errorf("required acks %d exceeds replica count %d", res.Required, len(replicas))
		return res
	}

	timeout := opts.PerReplicaTimeout
	if timeout <= 0 {
		timeout = DefaultPerReplicaTimeout
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, replica := range replicas {
		wg.Add(1)
		go func(replica string) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			err := fn(callCtx, replica)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed[replica] = err
				return
			}
			res.Acks++
		}(replica)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		mu.Lock()
		defer mu.Unlock()
		out := res
		out.Failed = copyFailed(res.Failed)
		out.Err = errors.Wrap(ctx.Err(), "context cancelled")
		return out
	}

	if res.Acks < res.Required {
		res.Err = errors.Wrapf(ErrNotMet, "acks=%d required=%d replicas=%d%s",
			res.Acks, res.Required, res.Replicas, summarize(res.Failed))
	}
	return res
}

func copyFailed(in map[string]error) map[string]error {
	out := make(map[string]error, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func summarize(failed map[string]error) string {
	if len(failed) == 0 {
		return ""
	}
	parts := make([]string, 0, 3)
	for replica, err := range failed {
		if len(parts) == 3 {
			break
		}
		parts = append(parts, fmt.Sprintf("%s: %v", replica, err))
	}
	return " errors=[" + strings.Join(parts, "; ") + "]"
}
