package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolRunsAllTasks(t *testing.T) {
	var ran int64
	tasks := make([]Task, 20)
	for i := range tasks {
		tasks[i] = func(context.Context) { atomic.AddInt64(&ran, 1) }
	}

	pool := NewPool(PoolConfig{Workers: 4})
	pool.Run(context.Background(), tasks)

	assert.Equal(t, int64(20), ran)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	var mu sync.Mutex
	inFlight := 0
	peak := 0

	tasks := make([]Task, 16)
	for i := range tasks {
		tasks[i] = func(context.Context) {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()

			mu.Lock()
			inFlight--
			mu.Unlock()
		}
	}

	pool := NewPool(PoolConfig{Workers: 3})
	pool.Run(context.Background(), tasks)

	assert.LessOrEqual(t, peak, 3)
}

func TestPoolStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran int64
	tasks := make([]Task, 50)
	for i := range tasks {
		tasks[i] = func(context.Context) { atomic.AddInt64(&ran, 1) }
	}

	pool := NewPool(PoolConfig{Workers: 2})
	pool.Run(ctx, tasks)

	// Dispatch raced with cancellation; at most a handful of tasks started.
	assert.Less(t, ran, int64(50))
}
