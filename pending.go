package executor

import (
	"sync/atomic"
)

// PendingRegistrationPromise is a Promise created before the executor that
// should deliver its notifications is known. Until Bind is called it is
// UNBOUND, and listeners are notified on the fallback executor given at
// construction. Bind switches it, once and irreversibly, to BOUND, after
// which listeners are notified on the bound executor.
type PendingRegistrationPromise[T any] struct {
	*Promise[T]
	fallback EventExecutor
	bound    atomic.Pointer[Executor]
}

// NewPendingRegistrationPromise creates an UNBOUND promise. A nil fallback
// results in listeners being called inline, while unbound.
func NewPendingRegistrationPromise[T any](fallback EventExecutor) *PendingRegistrationPromise[T] {
	p := &PendingRegistrationPromise[T]{fallback: fallback}
	p.Promise = newPromise[T](p.Executor)
	return p
}

// Bind records x as the notification executor. Only the first call has any
// effect, reporting true.
func (p *PendingRegistrationPromise[T]) Bind(x *Executor) bool {
	if x == nil {
		return false
	}
	return p.bound.CompareAndSwap(nil, x)
}

// Bound reports whether Bind has succeeded.
func (p *PendingRegistrationPromise[T]) Bound() bool {
	return p.bound.Load() != nil
}

// Executor returns the current notification executor: the bound executor,
// or the fallback, if unbound.
func (p *PendingRegistrationPromise[T]) Executor() EventExecutor {
	if x := p.bound.Load(); x != nil {
		return x
	}
	return p.fallback
}
