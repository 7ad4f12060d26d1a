package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task represents a unit of fire-and-forget work
type Task struct {
	ID   string
	Kind string
	Fn   func(context.Context) error
}

// Observer receives task outcomes, typically to feed metrics
type Observer func(kind string, err error)

// WorkerPool runs tasks on a bounded set of goroutines. Stop lets queued
// tasks finish so that work accepted before shutdown is not lost.
type WorkerPool struct {
	name      string
	workers   int
	taskQueue chan Task
	logger    *zap.Logger
	observe   Observer

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup

	submitted uint64
	completed uint64
	failed    uint64
	rejected  uint64
}

// Config holds worker pool configuration
type Config struct {
	Name       string
	MaxWorkers int
	QueueSize  int
	Logger     *zap.Logger
	Observer   Observer
}

// NewWorkerPool creates and starts a worker pool
func NewWorkerPool(cfg Config) *WorkerPool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool := &WorkerPool{
		name:      cfg.Name,
		workers:   cfg.MaxWorkers,
		taskQueue: make(chan Task, cfg.QueueSize),
		logger:    cfg.Logger,
		observe:   cfg.Observer,
		ctx:       ctx,
		cancel:    cancel,
	}

	for i := 0; i < pool.workers; i++ {
		pool.wg.Add(1)
		go pool.worker()
	}

	pool.logger.Debug("Worker pool started",
		zap.String("name", pool.name),
		zap.Int("max_workers", pool.workers),
		zap.Int("queue_size", cfg.QueueSize))

	return pool
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for task := range p.taskQueue {
		p.execute(task)
	}
}

func (p *WorkerPool) execute(task Task) {
	err := p.safeExecute(task)
	if err != nil {
		atomic.AddUint64(&p.failed, 1)
		p.logger.Warn("Task failed",
			zap.String("pool", p.name),
			zap.String("kind", task.Kind),
			zap.String("task_id", task.ID),
			zap.Error(err))
	} else {
		atomic.AddUint64(&p.completed, 1)
	}
	if p.observe != nil {
		p.observe(task.Kind, err)
	}
}

// safeExecute executes a task with panic recovery
func (p *WorkerPool) safeExecute(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task.Fn(p.ctx)
}

// TrySubmit enqueues a task without blocking.
// Returns false if the queue is full or the pool is stopped.
func (p *WorkerPool) TrySubmit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		atomic.AddUint64(&p.rejected, 1)
		return false
	}

	select {
	case p.taskQueue <- task:
		atomic.AddUint64(&p.submitted, 1)
		return true
	default:
		atomic.AddUint64(&p.rejected, 1)
		p.logger.Warn("Worker pool queue full, dropping task",
			zap.String("pool", p.name),
			zap.String("kind", task.Kind),
			zap.String("task_id", task.ID))
		return false
	}
}

// Stop refuses new tasks and waits for queued ones to finish. Tasks still
// running when the timeout expires have their context cancelled.
func (p *WorkerPool) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.taskQueue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Debug("Worker pool drained", zap.String("name", p.name))
		return nil
	case <-time.After(timeout):
		p.cancel()
		<-done
		return fmt.Errorf("worker pool '%s' did not drain within %v", p.name, timeout)
	}
}

// Stats returns current worker pool counters
func (p *WorkerPool) Stats() Stats {
	return Stats{
		Name:      p.name,
		Workers:   p.workers,
		Queued:    len(p.taskQueue),
		Submitted: atomic.LoadUint64(&p.submitted),
		Completed: atomic.LoadUint64(&p.completed),
		Failed:    atomic.LoadUint64(&p.failed),
		Rejected:  atomic.LoadUint64(&p.rejected),
	}
}

// Stats represents worker pool counters
type Stats struct {
	Name      string
	Workers   int
	Queued    int
	Submitted uint64
	Completed uint64
	Failed    uint64
	Rejected  uint64
}
