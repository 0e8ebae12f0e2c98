package concurrency

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Map runs fn over in with at most limit calls in flight and returns the results in
// input order. The first error cancels the context handed to the remaining calls.
// A limit of zero or less means unbounded.
func Map[T, R any](ctx context.Context, limit int, in []T, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	out := make([]R, len(in))
	if len(in) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, item := range in {
		g.Go(func() error {
			r, err := fn(gctx, item)
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
