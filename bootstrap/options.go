package bootstrap

import (
	"errors"

	executor "github.com/joeycumines/go-executor"
	"github.com/joeycumines/logiface"
)

// bootstrapOptions holds configuration for Bootstrap.
type bootstrapOptions struct {
	logger      *logiface.Logger[logiface.Event]
	fallback    executor.EventExecutor
	initializer func(x *executor.Executor, r Resource) error
	loggerSet   bool
}

// Option configures a Bootstrap.
type Option interface {
	applyBootstrap(*bootstrapOptions) error
}

type optionImpl struct {
	applyBootstrapFunc func(*bootstrapOptions) error
}

func (o *optionImpl) applyBootstrap(opts *bootstrapOptions) error {
	return o.applyBootstrapFunc(opts)
}

// WithInitializer sets a function called on the worker, after the resource
// is registered and before it is bound or connected. An error fails the
// registration.
func WithInitializer(fn func(x *executor.Executor, r Resource) error) Option {
	return &optionImpl{func(opts *bootstrapOptions) error {
		opts.initializer = fn
		return nil
	}}
}

// WithFallback sets the executor that delivers notifications until a
// resource is registered. Defaults to executor.GlobalExecutor.
func WithFallback(fallback executor.EventExecutor) Option {
	return &optionImpl{func(opts *bootstrapOptions) error {
		if fallback == nil {
			return errors.New("bootstrap: nil fallback executor")
		}
		opts.fallback = fallback
		return nil
	}}
}

// WithLogger sets the logger. A nil logger disables logging. Defaults to
// executor.DefaultLogger.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *bootstrapOptions) error {
		opts.logger = logger
		opts.loggerSet = true
		return nil
	}}
}

func resolveOptions(opts []Option) (*bootstrapOptions, error) {
	cfg := &bootstrapOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyBootstrap(cfg); err != nil {
			return nil, err
		}
	}
	if !cfg.loggerSet {
		cfg.logger = executor.DefaultLogger()
	}
	if cfg.fallback == nil {
		cfg.fallback = executor.GlobalExecutor()
	}
	return cfg, nil
}
