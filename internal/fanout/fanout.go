// Package fanout implements structured concurrency that awaits every child
// and collects a Result per child — it never cancels siblings on first
// failure, per the "fan-out-with-partial-failure" design note. It is built
// on errgroup.Group without WithContext: each child's error is captured
// into its own Result slot rather than returned to the group, so the
// group's own error propagation (and the context cancellation that would
// come with WithContext) never triggers, in the spirit of the teacher's
// ojo-network-price-feeder oracle.go SetPrices fan-out (per-provider
// goroutine, errors captured rather than propagated).
package fanout

import "golang.org/x/sync/errgroup"

// Result pairs a value with the error its producer returned.
type Result[T any] struct {
	Value T
	Err   error
}

// Collect runs fn(item) for every item concurrently and returns one Result
// per item, in input order. No child's failure aborts another child's work.
func Collect[T, R any](items []T, fn func(T) (R, error)) []Result[R] {
	results := make([]Result[R], len(items))
	var g errgroup.Group
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			value, err := fn(item)
			results[i] = Result[R]{Value: value, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// CollectIndexed is like Collect but also passes each item's index to fn,
// for callers that need positional context (e.g. endpoint ordinal).
func CollectIndexed[T, R any](items []T, fn func(int, T) (R, error)) []Result[R] {
	results := make([]Result[R], len(items))
	var g errgroup.Group
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			value, err := fn(i, item)
			results[i] = Result[R]{Value: value, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// OK returns only the successful values, dropping failed results.
func OK[R any](results []Result[R]) []R {
	out := make([]R, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r.Value)
		}
	}
	return out
}
