package apdu

import (
	"context"
	"errors"
	"sync"

	"github.com/mrz1836/warden/internal/metrics"
)

// DefaultQueueSize bounds the jobs waiting for one device.
const DefaultQueueSize = 8

var (
	// ErrQueueFull is returned by Submit when the device backlog is full.
	ErrQueueFull = errors.New("device queue is full")

	// ErrQueueClosed is returned for jobs submitted after Close.
	ErrQueueClosed = errors.New("device queue is closed")
)

type job struct {
	ctx context.Context
	run func(ctx context.Context)
}

// Queue runs device jobs one at a time on a single worker goroutine. A job
// is a whole flow (attest every input then sign, for example), so flows from
// concurrent callers never interleave on the device.
type Queue struct {
	jobs chan job
	done chan struct{}

	mu     sync.Mutex
	closed bool
	depth  int
	wg     sync.WaitGroup
}

// NewQueue starts the worker. size <= 0 selects DefaultQueueSize.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	q := &Queue{
		jobs: make(chan job, size),
		done: make(chan struct{}),
	}
	q.wg.Add(1)
	go q.worker()
	return q
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case j := <-q.jobs:
			j.run(j.ctx)
			q.adjust(-1)
		case <-q.done:
			return
		}
	}
}

func (q *Queue) adjust(delta int) {
	q.mu.Lock()
	q.depth += delta
	d := q.depth
	q.mu.Unlock()
	metrics.SetQueueDepth(d)
}

// Depth returns the number of jobs queued or running.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depth
}

// Close stops the worker after the running job. Queued jobs that never ran
// resolve with ErrQueueClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()

	q.wg.Wait()
	for {
		select {
		case j := <-q.jobs:
			j.run(closedContext{j.ctx})
			q.adjust(-1)
		default:
			return
		}
	}
}

// Future is the pending result of a submitted job.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Await waits for the job to finish or ctx to end. Abandoning a future does
// not cancel the job; cancel the context passed to Submit for that.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Submit enqueues fn. It never blocks: a full queue resolves the future with
// ErrQueueFull immediately.
func Submit[T any](ctx context.Context, q *Queue, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}

	run := func(ctx context.Context) {
		defer close(f.done)
		if err := ctx.Err(); err != nil {
			f.err = err
			return
		}
		f.value, f.err = fn(ctx)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		f.err = ErrQueueClosed
		close(f.done)
		return f
	}

	select {
	case q.jobs <- job{ctx: ctx, run: run}:
		q.depth++
		metrics.SetQueueDepth(q.depth)
	default:
		f.err = ErrQueueFull
		close(f.done)
	}
	return f
}

// closedContext reports ErrQueueClosed for jobs drained on shutdown.
type closedContext struct {
	context.Context //nolint:containedctx // wraps the job context
}

func (closedContext) Err() error { return ErrQueueClosed }
