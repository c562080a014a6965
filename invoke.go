package executor

import (
	"context"
	"errors"
)

// ErrNoTasks is returned by InvokeAny when given no tasks.
var ErrNoTasks = errors.New("executor: no tasks")

// InvokeAll submits every fn to x, then waits for all of them to complete,
// or for ctx to be done, in which case the incomplete futures are
// cancelled, and tasks that have not started are skipped. The futures are returned in the same order as fns. Calling it
// from x's worker fails with ErrBlockingOperation, as the tasks could never
// run.
func InvokeAll[T any](ctx context.Context, x *Executor, fns []func() (T, error)) ([]Future[T], error) {
	if x.InEventLoop() {
		return nil, ErrBlockingOperation
	}
	futures := make([]Future[T], len(fns))
	for i, fn := range fns {
		futures[i] = Submit(x, fn)
	}
	for _, f := range futures {
		select {
		case <-f.Done():
		case <-ctx.Done():
			for _, f := range futures {
				if p, ok := f.(*Promise[T]); ok {
					p.Cancel()
				}
			}
			return futures, ctx.Err()
		}
	}
	return futures, nil
}

// InvokeAny submits every fn to x, returning the result of the first to
// succeed, or the last error if none did. Tasks that have not yet run when a
// result is available are skipped. Calling it from x's worker fails with
// ErrBlockingOperation.
func InvokeAny[T any](ctx context.Context, x *Executor, fns []func() (T, error)) (T, error) {
	var zero T
	if x.InEventLoop() {
		return zero, ErrBlockingOperation
	}
	if len(fns) == 0 {
		return zero, ErrNoTasks
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	results := make(chan result, len(fns))
	var submitted int
	var lastErr error
	for _, fn := range fns {
		if fn == nil {
			lastErr = ErrNilTask
			continue
		}
		err := x.Execute(func() {
			if ctx.Err() != nil {
				results <- result{err: ctx.Err()}
				return
			}
			var r result
			if perr := x.safeRun(func() { r.value, r.err = fn() }); perr != nil {
				r.err = perr
			}
			results <- r
		})
		if err != nil {
			lastErr = err
			break
		}
		submitted++
	}

	for range submitted {
		select {
		case r := <-results:
			if r.err == nil {
				return r.value, nil
			}
			lastErr = r.err
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, lastErr
}
