package core

// pool.go runs queued jobs on a fixed set of background workers.
//
// Enqueue never blocks: Submit either places the job id in the buffered queue
// or fails with ErrQueueFull. Workers pull ids in FIFO order, so distinct jobs
// run concurrently up to the worker count while the request path only pays for
// a channel send.

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrPoolClosed is returned by Submit after Stop.
var ErrPoolClosed = errors.New("job pool is shut down")

const (
	DefaultWorkers   = 4
	DefaultQueueSize = 256
)

// RunFunc executes one job. It must not panic; the pool recovers anyway.
type RunFunc func(ctx context.Context, jobID string)

// Pool is a bounded worker pool fed by a buffered queue of job ids.
type Pool struct {
	queue   chan string
	workers int
	run     RunFunc

	// inflight counts submitted jobs that have not finished running.
	inflight atomic.Int64

	mu      sync.RWMutex
	active  int
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewPool creates a pool with the given worker count and queue capacity.
func NewPool(workers, queueSize int, run RunFunc) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Pool{
		queue:   make(chan string, queueSize),
		workers: workers,
		run:     run,
	}
}

// Start launches the workers. Calling Start twice is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for jobID := range p.queue {
		p.execute(ctx, id, jobID)
	}
}

func (p *Pool) execute(ctx context.Context, worker int, jobID string) {
	p.mu.Lock()
	p.active++
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
		p.inflight.Add(-1)
	}()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in job worker",
				"worker", worker,
				"job_id", jobID,
				"panic", r,
			)
		}
	}()

	p.run(ctx, jobID)
}

// Submit queues a job id without blocking.
func (p *Pool) Submit(jobID string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	p.inflight.Add(1)
	select {
	case p.queue <- jobID:
		return nil
	default:
		p.inflight.Add(-1)
		return ErrQueueFull
	}
}

// Stop closes the queue. Workers finish what is already queued and exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.queue)
}

// Wait blocks until every worker has exited or ctx is done.
func (p *Pool) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveCount returns the number of jobs currently executing.
func (p *Pool) ActiveCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

// QueueLength returns the number of jobs waiting for a worker.
func (p *Pool) QueueLength() int {
	return len(p.queue)
}

// WaitForDrain blocks until the queue is empty and no job is executing.
func (p *Pool) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if p.inflight.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PoolStatus is a snapshot of the pool for health checks.
type PoolStatus struct {
	Workers  int  `json:"workers"`
	Active   int  `json:"active"`
	Queued   int  `json:"queued"`
	Capacity int  `json:"capacity"`
	Closed   bool `json:"closed"`
}

// Status returns the current pool state.
func (p *Pool) Status() PoolStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return PoolStatus{
		Workers:  p.workers,
		Active:   p.active,
		Queued:   len(p.queue),
		Capacity: cap(p.queue),
		Closed:   p.closed,
	}
}
