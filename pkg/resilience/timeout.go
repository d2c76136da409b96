package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Call runs fn under a deadline of timeout and returns its value. A zero
// timeout runs fn with ctx unchanged. fn must honour its context; Call
// reports context.DeadlineExceeded as soon as the deadline passes.
func Call[T any](ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%s: %w (limit: %v)", name, context.DeadlineExceeded, timeout)
		}
		return zero, fmt.Errorf("%s: %w", name, ctx.Err())
	}
}
