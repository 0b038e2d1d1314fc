package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"authflow-go/internal/metrics"
)

// ErrPoolStopped is returned by Submit once Stop has been called.
var ErrPoolStopped = errors.New("worker pool stopped")

// Task represents a unit of work for the worker pool.
// A returned error makes the pool retry the task.
type Task interface {
	Process(ctx context.Context) error
}

// TaskFunc adapts a function to the Task interface.
type TaskFunc func(ctx context.Context) error

// Process calls f.
func (f TaskFunc) Process(ctx context.Context) error { return f(ctx) }

// WorkerPool manages a pool of worker goroutines
// and a queue of tasks to process
type WorkerPool struct {
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	workers      int
	tasks        chan Task
	stateMu      sync.RWMutex
	started      bool
	stopped      bool
	deadLetter   []Task
	deadLetterMu sync.Mutex
	maxRetries   int
	retryDelay   time.Duration
}

// PoolStats holds monitoring information about the worker pool
type PoolStats struct {
	Workers     int
	QueueLength int
	QueueCap    int
	DeadLetters int
}

// Option configures a WorkerPool.
type Option func(*WorkerPool)

// WithQueueSize sets the capacity of the task queue.
func WithQueueSize(n int) Option {
	return func(p *WorkerPool) {
		if n > 0 {
			p.tasks = make(chan Task, n)
		}
	}
}

// WithMaxRetries sets how many attempts a task gets before it is dead-lettered.
func WithMaxRetries(n int) Option {
	return func(p *WorkerPool) {
		if n > 0 {
			p.maxRetries = n
		}
	}
}

// WithRetryDelay sets the pause between attempts of a failing task.
func WithRetryDelay(d time.Duration) Option {
	return func(p *WorkerPool) { p.retryDelay = d }
}

// NewWorkerPool creates a new WorkerPool with the given number of workers.
func NewWorkerPool(workers int, opts ...Option) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		ctx:        ctx,
		cancel:     cancel,
		workers:    workers,
		tasks:      make(chan Task, 10),
		maxRetries: 3,
		retryDelay: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the worker goroutines. Calling it twice is a no-op.
func (p *WorkerPool) Start() {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.workerLoop()
	}
}

// Stop cancels in-flight tasks, discards queued ones and waits for the
// workers to exit.
func (p *WorkerPool) Stop() {
	p.stateMu.Lock()
	if p.stopped {
		p.stateMu.Unlock()
		return
	}
	p.stopped = true
	p.cancel()
	close(p.tasks)
	p.stateMu.Unlock()
	p.wg.Wait()
}

// Submit adds a task to the queue. It returns false if the queue is full or
// the pool has been stopped.
func (p *WorkerPool) Submit(task Task) bool {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	if p.stopped {
		return false
	}
	select {
	case p.tasks <- task:
		return true
	default:
		return false // backpressure: queue is full
	}
}

// workerLoop is the main loop for each worker goroutine
func (p *WorkerPool) workerLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.processWithRetry(task)
		}
	}
}

// processWithRetry processes a task, retrying up to maxRetries, then moves to dead letter
func (p *WorkerPool) processWithRetry(task Task) {
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		if err := task.Process(p.ctx); err == nil {
			return
		}
		if p.ctx.Err() != nil {
			return
		}
		if attempt < p.maxRetries && p.retryDelay > 0 {
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(p.retryDelay):
			}
		}
	}
	p.deadLetterMu.Lock()
	p.deadLetter = append(p.deadLetter, task)
	p.deadLetterMu.Unlock()
	metrics.TasksDeadLettered.Inc()
}

// DeadLetterCount returns the number of tasks in the dead letter queue
func (p *WorkerPool) DeadLetterCount() int {
	p.deadLetterMu.Lock()
	defer p.deadLetterMu.Unlock()
	return len(p.deadLetter)
}

// Workers returns the number of worker goroutines
func (p *WorkerPool) Workers() int {
	return p.workers
}

// Stats returns current statistics about the worker pool
func (p *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Workers:     p.workers,
		QueueLength: len(p.tasks),
		QueueCap:    cap(p.tasks),
		DeadLetters: p.DeadLetterCount(),
	}
}
