// Package concurrency provides the bounded worker pool discussion rounds
// use to fan out oracle calls across a round's participating agents
// without unbounded goroutine growth (spec.md §5: "oracle calls happen
// outside store locks"). Adapted from the teacher's internal/workers
// package: same Task/Pool/PoolConfig shape and panic-recovery/timeout
// wrapping, trimmed of the throughput-benchmarking machinery (P99
// histograms, 100K-500K deep queues, multi-stage Pipeline) the original
// tuned for million-tick-per-second backtesting — this engine's load is
// "a handful of oracle calls per discussion round", not a tick firehose.
package concurrency

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of work a Pool executes.
type Task interface {
	Execute(ctx context.Context) error
}

// TaskFunc adapts a plain function to Task.
type TaskFunc func(ctx context.Context) error

func (f TaskFunc) Execute(ctx context.Context) error { return f(ctx) }

// PoolConfig configures a Pool.
type PoolConfig struct {
	Name          string
	NumWorkers    int
	QueueSize     int
	TaskTimeout   time.Duration
	PanicRecovery bool
}

// DefaultPoolConfig sizes the pool for oracle fan-out: a handful of
// workers is enough since the oracle's own rate limiter, not goroutine
// scheduling, is the real bottleneck.
func DefaultPoolConfig(name string) PoolConfig {
	return PoolConfig{
		Name:          name,
		NumWorkers:    8,
		QueueSize:     256,
		TaskTimeout:   15 * time.Second,
		PanicRecovery: true,
	}
}

// Pool runs Tasks across a fixed set of worker goroutines.
type Pool struct {
	logger *zap.Logger
	config PoolConfig

	taskQueue chan Task
	wg        sync.WaitGroup

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	tasksSubmitted atomic.Int64
	tasksFailed    atomic.Int64
}

// NewPool constructs and starts a Pool.
func NewPool(config PoolConfig, logger *zap.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		logger:    logger.Named("pool." + config.Name),
		config:    config,
		taskQueue: make(chan Task, config.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
	p.running.Store(true)
	for i := 0; i < config.NumWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.run(task)
		}
	}
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil && p.config.PanicRecovery {
			p.tasksFailed.Add(1)
			p.logger.Error("task panicked", zap.Any("recover", r))
		}
	}()

	ctx := p.ctx
	var cancel context.CancelFunc
	if p.config.TaskTimeout > 0 {
		ctx, cancel = context.WithTimeout(p.ctx, p.config.TaskTimeout)
		defer cancel()
	}

	if err := task.Execute(ctx); err != nil {
		p.tasksFailed.Add(1)
		p.logger.Debug("task failed", zap.Error(err))
	}
}

// Submit enqueues task, blocking if the queue is full, or returns an error
// if the pool has been shut down.
func (p *Pool) Submit(task Task) error {
	if !p.running.Load() {
		return ErrPoolStopped
	}
	p.tasksSubmitted.Add(1)
	select {
	case p.taskQueue <- task:
		return nil
	case <-p.ctx.Done():
		return ErrPoolStopped
	}
}

// Shutdown stops accepting new tasks and waits up to timeout for
// in-flight tasks to finish, cancelling them if the deadline passes.
func (p *Pool) Shutdown(timeout time.Duration) {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.taskQueue)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		p.logger.Warn("pool shutdown timed out, cancelling remaining tasks", zap.String("pool", p.config.Name))
		p.cancel()
		<-done
	}
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Submitted int64
	Failed    int64
}

// Stats returns current submitted/failed counters.
func (p *Pool) Stats() Stats {
	return Stats{Submitted: p.tasksSubmitted.Load(), Failed: p.tasksFailed.Load()}
}

// ErrPoolStopped is returned by Submit once the pool has been shut down.
var ErrPoolStopped = &PoolError{Message: "pool is stopped"}

// PoolError is the concrete error type behind ErrPoolStopped.
type PoolError struct{ Message string }

func (e *PoolError) Error() string { return e.Message }
