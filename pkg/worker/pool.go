package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Task is one unit of work within a batch.
type Task func(context.Context)

// PoolConfig configures bounded batch execution.
type PoolConfig struct {
	Workers int
	Logger  *zap.Logger
}

// Pool runs a fixed batch of tasks with bounded concurrency and waits for
// completion. Tasks report their own outcomes; the pool never retries.
type Pool struct {
	workers int
	logger  *zap.Logger
}

// NewPool builds a pool with the provided configuration.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Pool{workers: cfg.Workers, logger: cfg.Logger}
}

// Run executes every task and blocks until all have finished or the context
// is cancelled. Remaining tasks are skipped once the context is done.
func (p *Pool) Run(ctx context.Context, tasks []Task) {
	if len(tasks) == 0 {
		return
	}

	workers := p.workers
	if workers > len(tasks) {
		workers = len(tasks)
	}

	queue := make(chan Task)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range queue {
				task(ctx)
			}
		}()
	}

	p.logger.Sugar().Debugw("batch started", "tasks", len(tasks), "workers", workers)

dispatch:
	for _, task := range tasks {
		select {
		case <-ctx.Done():
			p.logger.Sugar().Warnw("batch cancelled", "error", ctx.Err())
			break dispatch
		case queue <- task:
		}
	}
	close(queue)
	wg.Wait()
}
