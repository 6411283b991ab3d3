// Package asyncdispatch provides a bounded-concurrency worker pool used to
// back asynchronous-timed listener dispatch. Each async listener
// registration owns one Pool so a slow listener's backlog cannot starve
// another listener's dispatch.
package asyncdispatch

import (
	"context"
	"sync"
)

// Pool runs handler for every submitted job on a fixed number of worker
// goroutines.
type Pool[T any] struct {
	jobs    chan T
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	once    sync.Once
	handler func(ctx context.Context, job T)
}

// Option configures the pool.
type Option[T any] func(*poolConfig)

type poolConfig struct {
	workers    int
	bufferSize int
}

// WithWorkers sets the number of concurrent workers. Default: 1, since
// listener dispatch order within a single registration is normally
// expected to follow submission order.
func WithWorkers[T any](n int) Option[T] {
	return func(cfg *poolConfig) {
		if n > 0 {
			cfg.workers = n
		}
	}
}

// WithBufferSize sets the job channel buffer size. Default: 64.
func WithBufferSize[T any](n int) Option[T] {
	return func(cfg *poolConfig) {
		if n > 0 {
			cfg.bufferSize = n
		}
	}
}

const defaultBufferSize = 64

// New creates a Pool that runs handler for each submitted job. Workers start
// immediately. The context controls pool lifetime; once cancelled, workers
// stop after their in-flight job completes.
func New[T any](ctx context.Context, handler func(ctx context.Context, job T), opts ...Option[T]) *Pool[T] {
	cfg := &poolConfig{
		workers:    1,
		bufferSize: defaultBufferSize,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	poolCtx, cancel := context.WithCancel(ctx)

	p := &Pool[T]{
		jobs:    make(chan T, cfg.bufferSize),
		cancel:  cancel,
		handler: handler,
	}

	p.wg.Add(cfg.workers)
	for range cfg.workers {
		go p.worker(poolCtx)
	}

	return p
}

// Submit enqueues a job for processing. Blocks if the buffer is full.
func (p *Pool[T]) Submit(job T) {
	p.jobs <- job
}

// Shutdown closes the job channel and waits for in-flight jobs to drain.
// Safe to call more than once.
func (p *Pool[T]) Shutdown() {
	p.once.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
	p.cancel()
}

func (p *Pool[T]) worker(ctx context.Context) {
	defer p.wg.Done()

	for job := range p.jobs {
		select {
		case <-ctx.Done():
			return
		default:
			p.handler(ctx, job)
		}
	}
}
