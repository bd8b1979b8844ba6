// Package async is the bounded worker pool the coordinator dispatches claimed
// jobs into.
package async

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/karelmartinek-a11y/kajovospend/internal/entity"
)

// Handler runs one claimed job to its terminal state.
type Handler func(ctx context.Context, job *entity.Job)

type WorkerPool struct {
	handler Handler
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan *entity.Job
	wg   sync.WaitGroup
	once sync.Once

	mu       sync.Mutex
	closed   bool
	inflight int
}

type Option func(*WorkerPool)

func WithWorkers(n int) Option {
	return func(p *WorkerPool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(p *WorkerPool) {
		if n > 0 {
			p.ch = make(chan *entity.Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(p *WorkerPool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func NewWorkerPool(handler Handler, logger *slog.Logger, opts ...Option) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &WorkerPool{
		handler: handler,
		logger:  logger,
		workers: 2,
		timeout: 5 * time.Minute,
		ch:      make(chan *entity.Job, 64),
	}
	for _, o := range opts {
		o(p)
	}
	p.start()
	return p
}

func (p *WorkerPool) Workers() int { return p.workers }

// Inflight reports how many jobs are currently being processed.
func (p *WorkerPool) Inflight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight
}

func (p *WorkerPool) start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go func(workerID int) {
				defer p.wg.Done()
				p.logger.Info("worker started", "worker_id", workerID)

				for job := range p.ch {
					p.mu.Lock()
					p.inflight++
					p.mu.Unlock()

					ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
					p.invoke(ctx, job)
					cancel()

					p.mu.Lock()
					p.inflight--
					p.mu.Unlock()
				}

				p.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// invoke isolates one handler call so a panic takes down the job, not the
// worker. The handler is expected to settle the job itself; a panicked job
// that never reached its terminal state is swept by the watchdog.
func (p *WorkerPool) invoke(ctx context.Context, job *entity.Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job handler panicked",
				"job_id", job.ID, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	p.handler(ctx, job)
}

// Dispatch hands a claimed job to a worker. Blocks when all workers are busy
// and the buffer is full; that backpressure keeps claims bounded.
func (p *WorkerPool) Dispatch(job *entity.Job) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Warn("cannot dispatch: pool is shutting down", "job_id", job.ID)
		return false
	}
	p.mu.Unlock()

	select {
	case p.ch <- job:
	default:
		p.logger.Debug("pool full, applying backpressure", "job_id", job.ID)
		p.ch <- job
	}
	return true
}

// Shutdown closes the pool. Waiting for in-flight jobs is bounded by the
// caller's context; an already-expired context stops immediately.
func (p *WorkerPool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); p.wg.Wait() }()

	select {
	case <-ctx.Done():
		p.logger.Warn("shutdown interrupted, leaving in-flight jobs to the watchdog")
	case <-done:
		p.logger.Info("pool drained, shutdown complete")
	}
}
