package executor

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// executorOptions holds configuration options for Executor creation.
type executorOptions struct {
	logger          *logiface.Logger[logiface.Event]
	rejectionPolicy RejectionPolicy
	wakeup          func(x *Executor)
	runLoop         RunLoop
	cleanup         func()
	panicLogRates   map[time.Duration]int
	name            string
	queueCapacity   int
	addTaskWakesUp  bool
	metricsEnabled  bool
	lockOSThread    bool
	loggerSet       bool
}

// Option configures an Executor instance.
type Option interface {
	applyExecutor(*executorOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyExecutorFunc func(*executorOptions) error
}

func (o *optionImpl) applyExecutor(opts *executorOptions) error {
	return o.applyExecutorFunc(opts)
}

// WithName sets the name used to identify the executor in logs.
func WithName(name string) Option {
	return &optionImpl{func(opts *executorOptions) error {
		opts.name = name
		return nil
	}}
}

// WithQueueCapacity sets the maximum number of tasks that may be queued at
// once. Defaults to DefaultQueueCapacity.
func WithQueueCapacity(capacity int) Option {
	return &optionImpl{func(opts *executorOptions) error {
		if capacity <= 0 {
			return fmt.Errorf("executor: invalid queue capacity: %d", capacity)
		}
		opts.queueCapacity = capacity
		return nil
	}}
}

// WithRejectionPolicy sets the policy consulted when the task queue is
// full. Defaults to RejectPolicy.
func WithRejectionPolicy(policy RejectionPolicy) Option {
	return &optionImpl{func(opts *executorOptions) error {
		if policy == nil {
			return errors.New("executor: nil rejection policy")
		}
		opts.rejectionPolicy = policy
		return nil
	}}
}

// WithAddTaskWakesUp declares whether enqueuing a task is itself enough to
// wake a blocked worker. It defaults to true, which holds for the built-in
// queue. Run loops that block on something other than the task queue should
// set it to false, and provide WithWakeup.
func WithAddTaskWakesUp(enabled bool) Option {
	return &optionImpl{func(opts *executorOptions) error {
		opts.addTaskWakesUp = enabled
		return nil
	}}
}

// WithWakeup sets the function used to wake the worker, when submissions
// from other goroutines would not otherwise do so. The default enqueues a
// wakeup sentinel, which TakeTask consumes without running anything.
func WithWakeup(wakeup func(x *Executor)) Option {
	return &optionImpl{func(opts *executorOptions) error {
		if wakeup == nil {
			return errors.New("executor: nil wakeup")
		}
		opts.wakeup = wakeup
		return nil
	}}
}

// WithRunLoop replaces the body of the worker goroutine. See RunLoop.
func WithRunLoop(run RunLoop) Option {
	return &optionImpl{func(opts *executorOptions) error {
		if run == nil {
			return errors.New("executor: nil run loop")
		}
		opts.runLoop = run
		return nil
	}}
}

// WithCleanup sets a function called on the worker, once, after shutdown is
// confirmed and before goroutine-local storage is released.
func WithCleanup(cleanup func()) Option {
	return &optionImpl{func(opts *executorOptions) error {
		opts.cleanup = cleanup
		return nil
	}}
}

// WithLogger sets the logger. A nil logger disables logging. Defaults to
// DefaultLogger, as of the call to New.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *executorOptions) error {
		opts.logger = logger
		opts.loggerSet = true
		return nil
	}}
}

// WithMetrics enables runtime metrics collection, see Executor.Metrics.
func WithMetrics(enabled bool) Option {
	return &optionImpl{func(opts *executorOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// WithLockOSThread pins the worker goroutine to its OS thread, for the
// lifetime of the worker.
func WithLockOSThread(enabled bool) Option {
	return &optionImpl{func(opts *executorOptions) error {
		opts.lockOSThread = enabled
		return nil
	}}
}

// WithPanicLogRates sets the rate limits (events per window) applied to
// logging recovered panics, per category. An empty map disables limiting.
func WithPanicLogRates(rates map[time.Duration]int) Option {
	return &optionImpl{func(opts *executorOptions) (err error) {
		if len(rates) != 0 {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("executor: invalid panic log rates: %v", r)
				}
			}()
			// panics on windows or limits that are not positive and monotonic
			_ = catrate.NewLimiter(rates)
		}
		opts.panicLogRates = rates
		return nil
	}}
}

// resolveOptions applies Option instances to executorOptions.
func resolveOptions(opts []Option) (*executorOptions, error) {
	cfg := &executorOptions{
		queueCapacity:  DefaultQueueCapacity,
		addTaskWakesUp: true,
		panicLogRates:  defaultPanicLogRates,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyExecutor(cfg); err != nil {
			return nil, err
		}
	}
	if !cfg.loggerSet {
		cfg.logger = DefaultLogger()
	}
	if cfg.rejectionPolicy == nil {
		cfg.rejectionPolicy = RejectPolicy()
	}
	if cfg.runLoop == nil {
		cfg.runLoop = DefaultRunLoop
	}
	return cfg, nil
}
