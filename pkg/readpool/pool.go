// Package readpool implements the priority pool allocator: four isolated
// worker pools segregated by read priority, each with its own bounded
// queue, fixed worker set and lock-free in-flight accounting. Pool workers
// carry a per-worker context built by a factory when the worker spawns.
package readpool

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Pool errors.
var (
	ErrPoolStopped = errors.New("readpool: pool is stopped")
	ErrQueueFull   = errors.New("readpool: task queue full")
	ErrNotStarted  = errors.New("readpool: pool not started")
)

// shutdownTimeout bounds the graceful drain before workers are abandoned.
const shutdownTimeout = 30 * time.Second

// PoolConfig sizes one pool.
type PoolConfig struct {
	// Name labels the pool in logs and metrics.
	Name string

	// Workers is the number of worker goroutines.
	Workers int

	// QueueSize bounds the pending-task queue. If 0, defaults to
	// Workers * 2.
	QueueSize int

	// StackSize is carried from configuration for compatibility with
	// fixed-stack thread pools; goroutine stacks are runtime-managed, so
	// it is reported but not applied.
	StackSize int
}

// Pool runs submitted closures on a fixed set of workers. Each worker owns
// a context of type C produced by the pool's factory; a closure runs on
// whichever worker dequeues it and must not assume worker affinity across
// submissions.
type Pool[C any] struct {
	config  PoolConfig
	factory func() C
	tasks   chan func(*C)

	// taskCount is the number of accepted-but-not-yet-completed closures,
	// readable without taking any lock.
	taskCount atomic.Int64

	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	stopped bool
}

// NewPool builds a pool; Start spawns its workers.
func NewPool[C any](config PoolConfig, factory func() C) *Pool[C] {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = config.Workers * 2
	}
	return &Pool[C]{
		config:  config,
		factory: factory,
		tasks:   make(chan func(*C), config.QueueSize),
	}
}

// Start spawns the workers. Starting twice or after Stop is an error.
func (p *Pool[C]) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("readpool: pool already started")
	}
	if p.stopped {
		return ErrPoolStopped
	}
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.started = true
	return nil
}

// Execute submits a closure. The closure receives the worker's context.
// Submission never blocks: a full queue fails fast so the caller can
// reject the task instead of queueing unboundedly.
func (p *Pool[C]) Execute(fn func(ctx *C)) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}
	if p.stopped {
		p.mu.Unlock()
		return ErrPoolStopped
	}
	// Count before handing off so that TaskCount never under-reports an
	// accepted closure.
	p.taskCount.Add(1)
	select {
	case p.tasks <- fn:
		p.mu.Unlock()
		runningTasks.WithLabelValues(p.config.Name).Inc()
		return nil
	default:
		p.taskCount.Add(-1)
		p.mu.Unlock()
		return ErrQueueFull
	}
}

// TaskCount returns the number of accepted-but-not-yet-completed closures.
func (p *Pool[C]) TaskCount() int64 {
	return p.taskCount.Load()
}

// Name returns the pool's label.
func (p *Pool[C]) Name() string { return p.config.Name }

// Workers returns the configured worker count.
func (p *Pool[C]) Workers() int { return p.config.Workers }

// Stop closes the queue and drains it: already-accepted closures still run
// so their callbacks fire, then the workers exit. Stop returns an error
// when the drain exceeds the shutdown timeout.
func (p *Pool[C]) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	wasStarted := p.started
	close(p.tasks)
	p.mu.Unlock()

	if !wasStarted {
		return nil
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(shutdownTimeout):
		return errors.New("readpool: timed out draining pool " + p.config.Name)
	}
}

func (p *Pool[C]) worker() {
	defer p.wg.Done()
	ctx := p.factory()
	for fn := range p.tasks {
		fn(&ctx)
		p.taskCount.Add(-1)
		runningTasks.WithLabelValues(p.config.Name).Dec()
		handledTasks.WithLabelValues(p.config.Name).Inc()
	}
}
