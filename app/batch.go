package app

import (
	"context"

	"github.com/artpar/apicore/domain/call"
	"golang.org/x/sync/errgroup"
)

// CallFunc executes one call.
type CallFunc func(ctx context.Context, key string, params map[string]any, opts call.Options) (call.Envelope, error)

// RunBatch executes items with fn. Each item's options are layered over the
// batch options. Item failures are captured in their result and never stop
// other items; results are returned in input order.
func RunBatch(ctx context.Context, items []call.BatchItem, opts call.BatchOptions, fn CallFunc) []call.BatchResult {
	results := make([]call.BatchResult, len(items))

	run := func(i int) {
		item := items[i]
		env, err := fn(ctx, item.Key, item.Params, item.Options.Over(opts.Options))
		results[i] = call.BatchResult{
			Key:     item.Key,
			Success: err == nil && env.Success,
			Data:    env.Data,
			Err:     err,
		}
	}

	if opts.Mode == call.BatchSequential {
		for i := range items {
			run(i)
		}
		return results
	}

	var g errgroup.Group
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}
	for i := range items {
		g.Go(func() error {
			run(i)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
