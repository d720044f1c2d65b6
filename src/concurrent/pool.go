// Package concurrent bounds the parallelism of slow operations, chiefly
// batch embedding during index warm-up.
package concurrent

import (
	"context"
	"sync"
)

// WorkerPool limits how many operations run at once.
type WorkerPool struct {
	maxWorkers int
	sem        chan struct{}
}

// NewWorkerPool creates a pool with the specified max workers.
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &WorkerPool{
		maxWorkers: maxWorkers,
		sem:        make(chan struct{}, maxWorkers),
	}
}

// Do runs fn once a worker slot is free, or returns early if ctx ends first.
func (wp *WorkerPool) Do(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case wp.sem <- struct{}{}:
		defer func() { <-wp.sem }()
		return fn()
	}
}

// ForEach runs fn on every item through the pool's worker slots and returns
// the first error observed after all items finish. A nil pool gets the
// default worker count.
func ForEach[T any](ctx context.Context, wp *WorkerPool, items []T, fn func(T) error) error {
	if len(items) == 0 {
		return nil
	}
	if wp == nil {
		wp = NewWorkerPool(0)
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(items))

	for _, item := range items {
		wg.Add(1)
		go func(val T) {
			defer wg.Done()
			if err := wp.Do(ctx, func() error { return fn(val) }); err != nil {
				errChan <- err
			}
		}(item)
	}

	wg.Wait()
	close(errChan)

	for err := range errChan {
		if err != nil {
			return err
		}
	}
	return nil
}
