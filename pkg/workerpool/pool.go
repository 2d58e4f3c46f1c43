// Package workerpool provides the bounded goroutine pool used by discovery
// and the probes. Every worker blocks on the shared rate limiter, so the
// pool bounds concurrency while the limiter bounds throughput.
package workerpool

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/waftester/webscan/pkg/defaults"
)

// Pool manages a fixed set of lazily started worker goroutines.
type Pool struct {
	workers int32
	tasks   chan func()

	running atomic.Int32
	panics  atomic.Int64

	// mu guards tasks against a send racing Close.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// WorkersFor sizes a pool for a request rate: one worker per token per
// second, at least one and at most defaults.ConcurrencyMax.
func WorkersFor(rps float64) int {
	if rps <= 0 || math.IsInf(rps, 1) {
		return defaults.ConcurrencyMax
	}
	n := int(math.Ceil(rps))
	return max(defaults.ConcurrencyMinimal, min(n, defaults.ConcurrencyMax))
}

// New creates a pool with the given number of workers. Workers are
// started on demand.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = defaults.ConcurrencyMinimal
	}
	return &Pool{
		workers: int32(workers),
		tasks:   make(chan func(), workers*4),
	}
}

// Submit queues task, blocking while the queue is full. It returns false
// if the pool is closed.
func (p *Pool) Submit(task func()) bool {
	return p.SubmitCtx(context.Background(), task)
}

// SubmitCtx is Submit that gives up when ctx is done.
func (p *Pool) SubmitCtx(ctx context.Context, task func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.spawn()

	select {
	case p.tasks <- task:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Pool) spawn() {
	for {
		n := p.running.Load()
		if n >= p.workers {
			return
		}
		if p.running.CompareAndSwap(n, n+1) {
			p.wg.Add(1)
			go p.worker()
			return
		}
	}
}

func (p *Pool) worker() {
	defer func() {
		p.running.Add(-1)
		p.wg.Done()
	}()
	for task := range p.tasks {
		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
		}
	}()
	if task != nil {
		task()
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
// It is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}

// Running returns the current number of workers.
func (p *Pool) Running() int { return int(p.running.Load()) }

// Cap returns the worker limit.
func (p *Pool) Cap() int { return int(p.workers) }

// Waiting returns the number of queued tasks.
func (p *Pool) Waiting() int { return len(p.tasks) }

// Panics returns how many tasks panicked. A panicking task does not take
// its worker down.
func (p *Pool) Panics() int64 { return p.panics.Load() }

// IsClosed reports whether Close has been called.
func (p *Pool) IsClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// ForEach runs fn for every item on a fresh pool of the given size and
// waits for completion. Items not yet dispatched when ctx is done are
// skipped; fn still receives ctx so it can stop early.
func ForEach[T any](ctx context.Context, workers int, items []T, fn func(context.Context, T)) {
	p := New(workers)
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		if !p.SubmitCtx(ctx, func() { fn(ctx, item) }) {
			break
		}
	}
	p.Close()
}

// Map applies fn to each item in parallel and returns results in order.
func Map[T, R any](ctx context.Context, workers int, items []T, fn func(context.Context, T) R) []R {
	results := make([]R, len(items))
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	ForEach(ctx, workers, idx, func(ctx context.Context, i int) {
		results[i] = fn(ctx, items[i])
	})
	return results
}
