// Package dedup coalesces concurrent identical operations.
//
// A Group keyed by operation signature runs one execution per signature at
// a time: callers that arrive while an identical operation is in flight
// wait for and share its result instead of launching their own. The entry
// is dropped when the execution settles, so a later identical call runs
// fresh.
//
// A waiting caller's context cancels only that caller's wait. The shared
// execution keeps running for the remaining callers, which is why
// executions should be given a context detached from any single caller.
package dedup

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Group deduplicates in-flight operations returning T.
// The zero value is ready to use.
type Group[T any] struct {
	sf singleflight.Group
}

// Do returns the result of fn for this signature, executing fn only if no
// identical operation is in flight. shared reports whether the result was
// delivered to more than one caller. If ctx ends before the execution
// settles, Do returns ctx's error and the execution continues for the
// other callers.
func (g *Group[T]) Do(ctx context.Context, sig string, fn func() (T, error)) (value T, shared bool, err error) {
	ch := g.sf.DoChan(sig, func() (any, error) {
		return fn()
	})

	select {
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Shared, res.Err
		}
		// The assertion cannot fail: every execution for this Group is
		// produced by fn above.
		return res.Val.(T), res.Shared, nil
	}
}

// Forget drops any in-flight entry for sig, so the next Do with that
// signature executes fresh rather than joining the old call.
func (g *Group[T]) Forget(sig string) {
	g.sf.Forget(sig)
}
