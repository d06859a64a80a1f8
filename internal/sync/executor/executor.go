// Package executor runs independent units of sync work on a bounded pool.
package executor

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

type Options struct {
	Concurrency int
	// FailFast cancels outstanding work after the first failure. Without it
	// every item runs and committed work of siblings is kept.
	FailFast bool
}

// Summary counts the outcome of a Run
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Errors    []error
}

// Run applies fn to every item with at most Concurrency in flight and
// returns the first error observed
func Run[T any](ctx context.Context, items []T, opts Options, fn func(context.Context, T) error) (Summary, error) {
	summary := Summary{Total: len(items)}
	if len(items) == 0 {
		return summary, nil
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var g *errgroup.Group
	runCtx := ctx
	if opts.FailFast {
		g, runCtx = errgroup.WithContext(ctx)
	} else {
		g = &errgroup.Group{}
	}
	g.SetLimit(concurrency)

	var mu sync.Mutex
	var first error
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			summary.Succeeded++
			return
		}
		summary.Failed++
		summary.Errors = append(summary.Errors, err)
		if first == nil {
			first = err
		}
	}

	for _, item := range items {
		item := item
		if runCtx.Err() != nil {
			record(runCtx.Err())
			continue
		}
		g.Go(func() error {
			if err := runCtx.Err(); err != nil {
				record(err)
				return err
			}
			err := fn(runCtx, item)
			record(err)
			return err
		})
	}
	_ = g.Wait()

	return summary, first
}

// Map applies fn to every item and returns results in input order
func Map[T, R any](ctx context.Context, items []T, opts Options, fn func(context.Context, T) (R, error)) ([]R, Summary, error) {
	results := make([]R, len(items))
	indexes := make([]int, len(items))
	for i := range indexes {
		indexes[i] = i
	}
	summary, err := Run(ctx, indexes, opts, func(ctx context.Context, i int) error {
		r, err := fn(ctx, items[i])
		if err != nil {
			return err
		}
		results[i] = r
		return nil
	})
	return results, summary, err
}
