// Package parallel implements the bounded-concurrency, fail-fast fan-out
// runner used to prove multiple blocks at once, the Go analogue of the
// original Rust source's crates/base/src/thread.rs (parallel()): a
// dedicated worker pool bounded by a semaphore, the first error
// cancelling every task still in flight. golang.org/x/sync/errgroup
// already provides exactly this shape (SetLimit + the first returned
// error cancels the group's context), so there is no hand-rolled
// semaphore here — a teacher dependency (golang.org/x/sync, already in
// go.mod) replaces the Rust tokio::sync::Semaphore plumbing outright.
package parallel

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Run executes f once per item in tasks, at most limit concurrently,
// returning the results in input order. The first error any call to f
// returns cancels ctx for every still-running call and is returned as
// soon as all in-flight calls unwind — matching thread.rs's parallel():
// a single failure aborts the batch rather than letting partial results
// trickle back.
func Run[T, O any](ctx context.Context, limit int, tasks []T, f func(context.Context, T) (O, error)) ([]O, error) {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	out := make([]O, len(tasks))
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			result, err := f(gctx, task)
			if err != nil {
				return err
			}
			out[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
