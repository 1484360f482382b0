package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chatmedia/internal/metrics"
	"chatmedia/internal/workers"
)

// ErrTimeout indicates a task exceeded its wall-clock timeout and was
// abandoned. The coordinator never retries.
var ErrTimeout = errors.New("task timed out")

// DefaultTaskTimeout bounds decrypt/copy style work. The encode stage
// carries its own tighter timeout inside the transcoder.
const DefaultTaskTimeout = 2 * time.Minute

type result struct {
	path string
	err  error
}

// inflight is the shared completion handle all concurrent requesters
// of one key wait on.
type inflight struct {
	done chan struct{}
	res  result
}

// Coordinator deduplicates in-flight work per content identifier and
// bounds the number of simultaneous heavy operations. For a given key
// at most one task runs at a time; concurrent callers attach to the
// running task and observe the same outcome.
type Coordinator struct {
	sem chan struct{}

	mu       sync.Mutex
	inflight map[string]*inflight
}

// New creates a coordinator with the given pool size. A size <= 0
// derives the size from available parallelism.
func New(poolSize int) *Coordinator {
	if poolSize <= 0 {
		poolSize = workers.PoolSize()
	}
	return &Coordinator{
		sem:      make(chan struct{}, poolSize),
		inflight: make(map[string]*inflight),
	}
}

// PoolSize returns the worker pool capacity.
func (c *Coordinator) PoolSize() int {
	return cap(c.sem)
}

// Resolve executes work for key, deduplicating against any in-flight
// task for the same key. The returned path is the task's output.
//
// The work function runs detached from the caller's context: a caller
// that gives up does not cancel a task other callers may be attached
// to. The task itself is bounded by timeout; on expiry its context is
// canceled and ErrTimeout is returned to every attached caller.
func (c *Coordinator) Resolve(ctx context.Context, key string, timeout time.Duration, work func(ctx context.Context) (string, error)) (string, error) {
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}

	c.mu.Lock()
	if t, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		metrics.TasksDeduplicated.Inc()
		return c.await(ctx, t)
	}

	t := &inflight{done: make(chan struct{})}
	c.inflight[key] = t
	c.mu.Unlock()

	go c.run(key, t, timeout, work)

	return c.await(ctx, t)
}

// InFlight reports whether a task for key is currently registered.
func (c *Coordinator) InFlight(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[key]
	return ok
}

func (c *Coordinator) await(ctx context.Context, t *inflight) (string, error) {
	select {
	case <-t.done:
		return t.res.path, t.res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Coordinator) run(key string, t *inflight, timeout time.Duration, work func(ctx context.Context) (string, error)) {
	// Admission into the bounded pool happens before the timeout clock
	// starts; queueing delay is not charged against the task.
	c.sem <- struct{}{}
	defer func() { <-c.sem }()

	metrics.TasksInFlight.Inc()
	defer metrics.TasksInFlight.Dec()

	taskCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	outcome := make(chan result, 1)
	go func() {
		path, err := work(taskCtx)
		outcome <- result{path: path, err: err}
	}()

	select {
	case r := <-outcome:
		t.res = r
	case <-taskCtx.Done():
		t.res = result{err: fmt.Errorf("%w: %s exceeded %v", ErrTimeout, key, timeout)}
	}

	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()

	close(t.done)
}
