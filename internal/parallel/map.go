package parallel

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Map calls mapFunc for every element of in with at most limit calls in
// flight and returns the results in input order. The first error cancels
// the context passed to the remaining calls and is returned.
//
//	versions, err := parallel.Map(ctx, 2, binaries, probe)
func Map[E, D any](ctx context.Context, limit int, in []E, mapFunc func(context.Context, E) (D, error)) ([]D, error) {
	out := make([]D, len(in))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))

	for i, e := range in {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			d, err := mapFunc(gctx, e)
			if err != nil {
				return err
			}
			out[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
