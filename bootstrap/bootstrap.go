package bootstrap

import (
	"errors"
	"fmt"

	executor "github.com/joeycumines/go-executor"
	"github.com/joeycumines/logiface"
)

// Factory creates a new, unregistered resource.
type Factory func() (Resource, error)

// Bootstrap creates resources, registers them with the executors of a
// group, then binds or connects them on the chosen worker.
type Bootstrap struct {
	group       *executor.Group
	factory     Factory
	logger      *logiface.Logger[logiface.Event]
	fallback    executor.EventExecutor
	initializer func(x *executor.Executor, r Resource) error
}

// New returns a Bootstrap that registers resources made by factory with
// group.
func New(group *executor.Group, factory Factory, opts ...Option) (*Bootstrap, error) {
	if group == nil {
		return nil, errors.New("bootstrap: nil group")
	}
	if factory == nil {
		return nil, errors.New("bootstrap: nil factory")
	}
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Bootstrap{
		group:       group,
		factory:     factory,
		logger:      cfg.logger,
		fallback:    cfg.fallback,
		initializer: cfg.initializer,
	}, nil
}

// Register creates a resource and registers it with the next executor of
// the group. The resource is nil if the factory failed. On failure, the
// resource is closed, and the future fails with *executor.RegistrationError.
func (b *Bootstrap) Register() (Resource, executor.Future[*executor.Executor]) {
	r, err := b.factory()
	if err != nil {
		p := executor.NewPromiseOn[*executor.Executor](b.fallback)
		p.Reject(&executor.RegistrationError{Cause: fmt.Errorf("bootstrap: create resource: %w", err)})
		return nil, p
	}

	reg := b.group.Register(&registrant{r: r, init: b.initializer})
	reg.AddListener(func(f executor.Future[*executor.Executor]) {
		if err := f.Err(); err != nil {
			b.logger.Warning().
				Err(err).
				Log("bootstrap: registration failed")
			b.close(r)
		}
	})
	return r, reg
}

// Bind registers a new resource, then binds it to addr on its worker.
func (b *Bootstrap) Bind(addr string) executor.Future[Resource] {
	return b.registerThen("bind", addr, Resource.Bind)
}

// Connect registers a new resource, then connects it to addr on its worker.
func (b *Bootstrap) Connect(addr string) executor.Future[Resource] {
	return b.registerThen("connect", addr, Resource.Connect)
}

func (b *Bootstrap) registerThen(op, addr string, fn func(r Resource, addr string) error) executor.Future[Resource] {
	r, reg := b.Register()
	return RegisterThenRun(reg, b.fallback, func(x *executor.Executor) (Resource, error) {
		if err := fn(r, addr); err != nil {
			b.logger.Debug().
				Str("executor", x.Name()).
				Str("op", op).
				Str("addr", addr).
				Err(err).
				Log("bootstrap: operation failed")
			b.close(r)
			return nil, fmt.Errorf("bootstrap: %s %s: %w", op, addr, err)
		}
		return r, nil
	})
}

func (b *Bootstrap) close(r Resource) {
	if err := r.Close(); err != nil {
		b.logger.Warning().
			Err(err).
			Log("bootstrap: failed to close resource")
	}
}

// registrant attaches a resource and runs the initializer, on the worker.
type registrant struct {
	r    Resource
	init func(x *executor.Executor, r Resource) error
}

func (g *registrant) Register(x *executor.Executor) error {
	if err := g.r.Register(x); err != nil {
		return err
	}
	if g.init != nil {
		return g.init(x, g.r)
	}
	return nil
}
