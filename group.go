package executor

import (
	"fmt"
	"slices"
	"sync/atomic"
	"time"
)

// Registrant is a resource that must be attached to an executor, on that
// executor's worker, before it can be used.
type Registrant interface {
	Register(x *Executor) error
}

// Register attaches r to x, calling r.Register on the worker. The returned
// future completes with x, or fails with a RegistrationError.
func (x *Executor) Register(r Registrant) Future[*Executor] {
	p := NewPromise[*Executor](x)
	if err := x.Execute(func() {
		if err := r.Register(x); err != nil {
			p.Reject(&RegistrationError{Cause: err})
			return
		}
		p.Resolve(x)
	}); err != nil {
		p.Reject(&RegistrationError{Cause: err})
	}
	return p
}

// Group is a fixed set of executors, handed out round-robin.
type Group struct {
	executors         []*Executor
	choose            func() *Executor
	terminationFuture *Promise[struct{}]
	next              atomic.Uint64
}

var _ EventExecutor = (*Group)(nil)

// NewGroup creates n executors, each configured with opts. Executor names
// are suffixed with their index.
func NewGroup(n int, opts ...Option) (*Group, error) {
	if n <= 0 {
		return nil, fmt.Errorf("executor: invalid group size: %d", n)
	}
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	base := cfg.name
	if base == "" {
		base = "group"
	}

	g := &Group{
		executors:         make([]*Executor, n),
		terminationFuture: newPromise[struct{}](func() EventExecutor { return GlobalExecutor() }),
	}
	for i := range g.executors {
		x, err := New(append(slices.Clone(opts), WithName(fmt.Sprintf("%s-%d", base, i)))...)
		if err != nil {
			return nil, err
		}
		g.executors[i] = x
	}

	if n&(n-1) == 0 {
		mask := uint64(n - 1)
		g.choose = func() *Executor { return g.executors[(g.next.Add(1)-1)&mask] }
	} else {
		size := uint64(n)
		g.choose = func() *Executor { return g.executors[(g.next.Add(1)-1)%size] }
	}

	var remaining atomic.Int64
	remaining.Store(int64(n))
	for _, x := range g.executors {
		x.TerminationFuture().AddListener(func(Future[struct{}]) {
			if remaining.Add(-1) == 0 {
				g.terminationFuture.Resolve(struct{}{})
			}
		})
	}

	return g, nil
}

// Next returns the next executor, round-robin.
func (g *Group) Next() *Executor {
	return g.choose()
}

// Executors returns the executors of the group, in index order.
func (g *Group) Executors() []*Executor {
	return slices.Clone(g.executors)
}

// Execute submits fn to the next executor.
func (g *Group) Execute(fn func()) error {
	return g.Next().Execute(fn)
}

// InEventLoop reports whether the caller is the worker of any executor in
// the group.
func (g *Group) InEventLoop() bool {
	return slices.ContainsFunc(g.executors, (*Executor).InEventLoop)
}

// Register attaches r to the next executor. See Executor.Register.
func (g *Group) Register(r Registrant) Future[*Executor] {
	return g.Next().Register(r)
}

// ShutdownGracefully requests a graceful shutdown of every executor,
// returning the group's termination future.
func (g *Group) ShutdownGracefully(quietPeriod, timeout time.Duration) Future[struct{}] {
	for _, x := range g.executors {
		x.ShutdownGracefully(quietPeriod, timeout)
	}
	return g.TerminationFuture()
}

// Shutdown requests an immediate shutdown of every executor.
func (g *Group) Shutdown() {
	for _, x := range g.executors {
		x.Shutdown()
	}
}

// IsShuttingDown reports whether every executor is shutting down.
func (g *Group) IsShuttingDown() bool {
	return g.all((*Executor).IsShuttingDown)
}

// IsShutdown reports whether every executor is shut down.
func (g *Group) IsShutdown() bool {
	return g.all((*Executor).IsShutdown)
}

// IsTerminated reports whether every executor has terminated.
func (g *Group) IsTerminated() bool {
	return g.all((*Executor).IsTerminated)
}

func (g *Group) all(fn func(*Executor) bool) bool {
	for _, x := range g.executors {
		if !fn(x) {
			return false
		}
	}
	return true
}

// TerminationFuture returns a future that completes once every executor
// has terminated.
func (g *Group) TerminationFuture() Future[struct{}] {
	return g.terminationFuture
}

// AwaitTermination waits up to timeout (forever, if negative) for every
// executor to terminate, reporting whether they did. It fails with
// ErrBlockingOperation if called from the worker of a group member.
func (g *Group) AwaitTermination(timeout time.Duration) (bool, error) {
	if g.IsTerminated() {
		return true, nil
	}
	if g.InEventLoop() {
		return false, ErrBlockingOperation
	}
	if timeout < 0 {
		<-g.terminationFuture.Done()
		return true, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-g.terminationFuture.Done():
		return true, nil
	case <-timer.C:
		return g.IsTerminated(), nil
	}
}
