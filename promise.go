package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/logiface"
)

// EventExecutor is the minimal view of an executor needed to deliver
// notifications. It is implemented by *Executor and *Group.
type EventExecutor interface {
	// Execute submits fn, to be run asynchronously.
	Execute(fn func()) error
	// InEventLoop reports whether the caller is the goroutine that would run
	// fn.
	InEventLoop() bool
}

// Future is a read-only view of the result of an asynchronous operation.
type Future[T any] interface {
	// Done returns a channel that is closed once the future completes.
	Done() <-chan struct{}

	// IsDone reports whether the future has completed, in any way.
	IsDone() bool

	// IsSuccess reports whether the future completed with a value.
	IsSuccess() bool

	// IsCancelled reports whether the future was cancelled.
	IsCancelled() bool

	// Result returns the outcome, or the zero value and a nil error, if the
	// future has not yet completed.
	Result() (T, error)

	// Err returns the failure cause, nil if pending or successful.
	Err() error

	// Await blocks until the future completes or ctx is done. Awaiting an
	// incomplete future from the goroutine that must complete it fails with
	// ErrBlockingOperation.
	Await(ctx context.Context) (T, error)

	// AddListener registers fn, to be called once the future completes. See
	// Promise for delivery guarantees.
	AddListener(fn func(Future[T]))
}

type promiseState = uint32

const (
	promisePending promiseState = iota
	promiseResolved
	promiseRejected
	promiseCancelled
)

// Promise is a single-assignment Future. It is completed by exactly one of
// Resolve, Reject or Cancel, the first call wins and the rest report false.
//
// Listeners are called in registration order, each at most once, on the
// promise's notification executor: inline if the completing goroutine is
// that executor's worker (or there is none), submitted to it otherwise.
// Listeners added after completion are notified immediately. Listeners are
// never called while the promise's internal lock is held.
type Promise[T any] struct {
	value     T
	err       error
	notifier  func() EventExecutor
	done      chan struct{}
	listeners []func(Future[T])
	mu        sync.Mutex
	state     atomic.Uint32
}

var _ Future[int] = (*Promise[int])(nil)

// NewPromise creates a promise that notifies its listeners on x. Promises
// still pending when x terminates are rejected with ErrTerminated. A nil x
// results in listeners being called by whichever goroutine completes the
// promise.
func NewPromise[T any](x *Executor) *Promise[T] {
	if x == nil {
		return newPromise[T](nil)
	}
	p := newPromise[T](func() EventExecutor { return x })
	add(x.registry, p)
	x.tracked()
	return p
}

// NewPromiseOn creates a promise that notifies its listeners on ex, which
// may be any EventExecutor, e.g. a Group.
func NewPromiseOn[T any](ex EventExecutor) *Promise[T] {
	if ex == nil {
		return newPromise[T](nil)
	}
	return newPromise[T](func() EventExecutor { return ex })
}

func newPromise[T any](notifier func() EventExecutor) *Promise[T] {
	return &Promise[T]{
		notifier: notifier,
		done:     make(chan struct{}),
	}
}

// Resolve completes the promise with value.
func (p *Promise[T]) Resolve(value T) bool {
	return p.complete(promiseResolved, value, nil)
}

// Reject completes the promise with err. A nil err is replaced with
// ErrRejected, so that a rejected promise always reports an error.
func (p *Promise[T]) Reject(err error) bool {
	if err == nil {
		err = ErrRejected
	}
	var zero T
	return p.complete(promiseRejected, zero, err)
}

// Cancel completes the promise with context.Canceled.
func (p *Promise[T]) Cancel() bool {
	var zero T
	return p.complete(promiseCancelled, zero, context.Canceled)
}

// Complete resolves or rejects the promise, depending on err.
func (p *Promise[T]) Complete(value T, err error) bool {
	if err != nil {
		return p.Reject(err)
	}
	return p.Resolve(value)
}

func (p *Promise[T]) complete(state promiseState, value T, err error) bool {
	p.mu.Lock()
	if p.state.Load() != promisePending {
		p.mu.Unlock()
		return false
	}
	p.value = value
	p.err = err
	p.state.Store(state)
	listeners := p.listeners
	p.listeners = nil
	close(p.done)
	p.mu.Unlock()

	p.notify(listeners)
	return true
}

func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

func (p *Promise[T]) IsDone() bool {
	return p.state.Load() != promisePending
}

func (p *Promise[T]) IsSuccess() bool {
	return p.state.Load() == promiseResolved
}

func (p *Promise[T]) IsCancelled() bool {
	return p.state.Load() == promiseCancelled
}

func (p *Promise[T]) Result() (T, error) {
	if !p.IsDone() {
		var zero T
		return zero, nil
	}
	// value and err are immutable once state is observed as non-pending
	return p.value, p.err
}

func (p *Promise[T]) Err() error {
	if !p.IsDone() {
		return nil
	}
	return p.err
}

func (p *Promise[T]) Await(ctx context.Context) (T, error) {
	if p.IsDone() {
		return p.value, p.err
	}
	if ex := p.executor(); ex != nil && ex.InEventLoop() {
		var zero T
		return zero, ErrBlockingOperation
	}
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (p *Promise[T]) AddListener(fn func(Future[T])) {
	if fn == nil {
		return
	}
	p.mu.Lock()
	if p.state.Load() == promisePending {
		p.listeners = append(p.listeners, fn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.notify([]func(Future[T]){fn})
}

func (p *Promise[T]) executor() EventExecutor {
	if p.notifier == nil {
		return nil
	}
	return p.notifier()
}

// notify delivers listeners on the notification executor. If the executor
// refuses the work, e.g. because it terminated, the listeners are called
// inline so that waiters are never stranded.
func (p *Promise[T]) notify(listeners []func(Future[T])) {
	if len(listeners) == 0 {
		return
	}
	ex := p.executor()
	if ex == nil || ex.InEventLoop() {
		p.callListeners(ex, listeners)
		return
	}
	if err := ex.Execute(func() { p.callListeners(ex, listeners) }); err != nil {
		level := logiface.LevelWarning
		if errors.Is(err, ErrTerminated) {
			level = logiface.LevelDebug
		}
		loggerFor(ex).Build(level).
			Err(err).
			Int("listeners", len(listeners)).
			Log("executor: failed to submit listener notification, notifying inline")
		p.callListeners(ex, listeners)
	}
}

func (p *Promise[T]) callListeners(ex EventExecutor, listeners []func(Future[T])) {
	for _, fn := range listeners {
		p.callListener(ex, fn)
	}
}

func (p *Promise[T]) callListener(ex EventExecutor, fn func(Future[T])) {
	defer func() {
		if r := recover(); r != nil {
			loggerFor(ex).Err().
				Err(PanicError{Value: r}).
				Log("executor: promise listener panicked")
		}
	}()
	fn(p)
}

// isPending and rejectPending implement trackedPromise.
func (p *Promise[T]) isPending() bool {
	return !p.IsDone()
}

func (p *Promise[T]) rejectPending(err error) {
	p.Reject(err)
}
