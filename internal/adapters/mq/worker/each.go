package worker

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Each calls fn for every index in [0, n) with at most limit calls in
// flight and waits for all of them. A panic in one call is recovered and
// reported through onPanic; the other calls are unaffected. Indices not yet
// started when ctx ends are skipped.
func Each(ctx context.Context, limit, n int, fn func(ctx context.Context, i int), onPanic func(i int, err error)) {
	if n <= 0 {
		return
	}
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil && onPanic != nil {
					onPanic(i, fmt.Errorf("%w: %v", ErrPanic, r))
				}
			}()
			if ctx.Err() != nil {
				return nil
			}
			fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
}
