package bootstrap

import (
	"errors"

	executor "github.com/joeycumines/go-executor"
)

// RegisterThenRun chains step onto the registration reg, returning a future
// for the result of step. Step always runs on the registered executor's
// worker.
//
// If reg has already completed, its failure is propagated without touching
// any worker, and its success runs step directly, inline if the caller is
// already the worker. Otherwise a listener is attached to reg, and the
// returned future notifies on fallback until the registration succeeds,
// after which it notifies on the registered executor.
//
// Failures of reg are reported as *executor.RegistrationError.
func RegisterThenRun[T any](
	reg executor.Future[*executor.Executor],
	fallback executor.EventExecutor,
	step func(x *executor.Executor) (T, error),
) executor.Future[T] {
	if reg.IsDone() {
		x, err := registeredExecutor(reg)
		if err != nil {
			p := executor.NewPromiseOn[T](fallback)
			p.Reject(registrationError(err))
			return p
		}
		p := executor.NewPromise[T](x)
		runStep(x, p, step)
		return p
	}

	p := executor.NewPendingRegistrationPromise[T](fallback)
	reg.AddListener(func(f executor.Future[*executor.Executor]) {
		x, err := registeredExecutor(f)
		if err != nil {
			p.Reject(registrationError(err))
			return
		}
		p.Bind(x)
		runStep(x, p.Promise, step)
	})
	return p
}

// runStep runs step on the worker of x, completing p. A panicking step
// fails p with executor.PanicError.
func runStep[T any](x *executor.Executor, p *executor.Promise[T], step func(x *executor.Executor) (T, error)) {
	fn := func() {
		var (
			value T
			err   error
		)
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = executor.PanicError{Value: r}
				}
			}()
			value, err = step(x)
		}()
		p.Complete(value, err)
	}
	if x.InEventLoop() {
		fn()
		return
	}
	if err := x.Execute(fn); err != nil {
		p.Reject(err)
	}
}

// registeredExecutor returns the executor of a completed registration,
// failing if it succeeded without one.
func registeredExecutor(reg executor.Future[*executor.Executor]) (*executor.Executor, error) {
	x, err := reg.Result()
	if err == nil && x == nil {
		err = errNilExecutor
	}
	return x, err
}

var errNilExecutor = errors.New("bootstrap: registration completed without an executor")

func registrationError(err error) error {
	var re *executor.RegistrationError
	if errors.As(err, &re) {
		return err
	}
	return &executor.RegistrationError{Cause: err}
}
