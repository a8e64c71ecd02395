// Package parallel provides a bounded-concurrency fan-out primitive used
// by capability refresh, outbound creation, and selective reload's
// stop/start/restart phases: a finite input sequence runs through a
// per-item handler with at most maxConcurrent in flight, individual
// failures never cancel siblings, and callers can observe per-item and
// per-batch completion.
package parallel

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxConcurrent is used when callers pass maxConcurrent <= 0.
const DefaultMaxConcurrent = 8

// ItemResult pairs an input with the outcome of running it through the
// executor's handler.
type ItemResult[I any, O any] struct {
	Input  I
	Output O
	Err    error
}

// Events, when non-nil, are invoked as items complete. BatchComplete is
// called exactly once, after every item has completed (success or failure).
// All callbacks may be invoked concurrently from different goroutines and
// must not block the caller for long.
type Events[I any, O any] struct {
	ItemStart    func(item I)
	ItemComplete func(result ItemResult[I, O])
	BatchComplete func(results []ItemResult[I, O])
}

// Handler is the per-item async operation the executor fans out to.
type Handler[I any, O any] func(ctx context.Context, item I) (O, error)

// Run executes handler for every item in items, at most maxConcurrent at a
// time, and returns one ItemResult per input in input order. A handler
// error is recorded in the corresponding ItemResult and never aborts the
// batch or cancels sibling work: a "local recovery" policy for aggregation
// fan-out, where one upstream failing must not take down the others.
//
// Run itself always returns len(items) results and a nil error. An item
// that starts after ctx is canceled is not passed to handler: its
// ItemResult carries ctx.Err() and ItemComplete is not called for it.
func Run[I any, O any](ctx context.Context, items []I, maxConcurrent int, handler Handler[I, O], events *Events[I, O]) ([]ItemResult[I, O], error) {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	results := make([]ItemResult[I, O], len(items))

	g, gctx := errgroup.WithContext(context.Background())
	g.SetLimit(maxConcurrent)

	var mu sync.Mutex
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			if events != nil && events.ItemStart != nil {
				events.ItemStart(item)
			}

			select {
			case <-ctx.Done():
				results[i] = ItemResult[I, O]{Input: item, Err: ctx.Err()}
				return nil
			default:
			}

			out, err := handler(gctx, item)
			res := ItemResult[I, O]{Input: item, Output: out, Err: err}

			mu.Lock()
			results[i] = res
			mu.Unlock()

			if events != nil && events.ItemComplete != nil {
				events.ItemComplete(res)
			}
			return nil // individual handler errors never cancel siblings
		})
	}

	// g.Wait() never returns an error here since handler errors are
	// captured in results rather than returned to the group.
	_ = g.Wait()

	if events != nil && events.BatchComplete != nil {
		events.BatchComplete(results)
	}

	return results, nil
}
