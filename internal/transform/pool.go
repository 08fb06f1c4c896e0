// Package transform runs the per-row stage work: category enrichment and
// image verification, each over a fixed-size worker pool.
package transform

import (
	"context"
	"sync"
)

// ForEach processes items with a fixed pool of workers and blocks until all
// work finishes. Items not yet dispatched when ctx is canceled are skipped;
// in-flight calls run to completion.
func ForEach[T any](ctx context.Context, workers int, items []T, fn func(context.Context, T)) {
	if workers < 1 {
		workers = 1
	}
	work := make(chan T)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				fn(ctx, item)
			}
		}()
	}

dispatch:
	for _, item := range items {
		select {
		case work <- item:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(work)
	wg.Wait()
}

// Map applies fn to every item with a fixed pool of workers, preserving
// input order in the result slice. Items skipped by cancellation keep the
// zero value.
func Map[T, R any](ctx context.Context, workers int, items []T, fn func(context.Context, T) R) []R {
	results := make([]R, len(items))
	indexes := make([]int, len(items))
	for i := range items {
		indexes[i] = i
	}
	ForEach(ctx, workers, indexes, func(ctx context.Context, i int) {
		results[i] = fn(ctx, items[i])
	})
	return results
}
