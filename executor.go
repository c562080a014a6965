package executor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-executor/internal/goid"
	"github.com/joeycumines/go-executor/local"
	"github.com/joeycumines/logiface"
)

// runAllTasksCheckInterval is the number of tasks RunAllTasks runs between
// checks of its time budget.
const runAllTasksCheckInterval = 64

// registryScavengeInterval is the number of promise registrations between
// incremental scavenges of the promise registry.
const registryScavengeInterval = 256

// RunLoop is the body of an executor's worker goroutine. It must call
// ConfirmShutdown, typically once per iteration, and return once that
// reports true. The executor completes shutdown after it returns.
//
// Run loops drive the executor through the worker-only methods: TakeTask,
// RunTask, RunAllTasks, NextScheduledDelay, UpdateLastExecutionTime and
// ConfirmShutdown.
type RunLoop func(x *Executor)

// currentExecutor maps each worker goroutine to its Executor.
var currentExecutor = local.New[*Executor](nil, nil)

// CurrentExecutor returns the executor whose worker is the calling
// goroutine, or nil.
func CurrentExecutor() *Executor {
	x, _ := currentExecutor.Lookup()
	return x
}

// Executor runs tasks, in submission order, on a single worker goroutine
// that is started lazily on first use and never replaced. Tasks may be
// submitted from any goroutine. Scheduled tasks share the same worker.
type Executor struct {
	_ [0]func() // not comparable

	// Fields accessed only by the worker.
	scheduled            scheduledQueue
	scheduledSeq         uint64
	lastExecutionTime    time.Time
	gracefulShutdownFrom time.Time

	state             *fastState
	queue             *taskQueue
	registry          *registry
	terminationFuture *Promise[struct{}]
	logger            *logiface.Logger[logiface.Event]
	panics            *panicLogger
	metrics           *Metrics
	rejectionPolicy   RejectionPolicy
	wakeupFunc        func(x *Executor)
	runLoop           RunLoop
	cleanup           func()
	name              string

	shutdownHooks struct {
		m      map[uint64]func()
		nextID uint64
		mu     sync.Mutex
	}

	workerID        atomic.Uint64
	promiseCount    atomic.Uint64
	gracefulQuiet   atomic.Int64
	gracefulTimeout atomic.Int64

	workerStarted  atomic.Bool
	addTaskWakesUp bool
	lockOSThread   bool
	global         bool
}

var _ EventExecutor = (*Executor)(nil)

// New creates an Executor. The worker goroutine is not started until the
// first submission, or shutdown request.
func New(opts ...Option) (*Executor, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	x := &Executor{
		state:           newFastState(),
		queue:           newTaskQueue(cfg.queueCapacity),
		registry:        newRegistry(),
		logger:          cfg.logger,
		rejectionPolicy: cfg.rejectionPolicy,
		wakeupFunc:      cfg.wakeup,
		runLoop:         cfg.runLoop,
		cleanup:         cfg.cleanup,
		name:            cfg.name,
		addTaskWakesUp:  cfg.addTaskWakesUp,
		lockOSThread:    cfg.lockOSThread,
	}
	if x.name == "" {
		x.name = fmt.Sprintf("executor-%p", x)
	}
	x.panics = newPanicLogger(x.logger, x.name, cfg.panicLogRates)
	if cfg.metricsEnabled {
		x.metrics = newMetrics()
	}
	// listeners of the termination future must not run on a worker that is
	// exiting
	x.terminationFuture = newPromise[struct{}](func() EventExecutor { return GlobalExecutor() })
	return x, nil
}

// Name returns the name used to identify the executor in logs.
func (x *Executor) Name() string {
	return x.name
}

// Logger returns the executor's logger, which may be nil.
func (x *Executor) Logger() *logiface.Logger[logiface.Event] {
	if x == nil {
		return nil
	}
	return x.logger
}

// InEventLoop reports whether the calling goroutine is the worker.
func (x *Executor) InEventLoop() bool {
	id := x.workerID.Load()
	return id != 0 && id == goid.Get()
}

// State returns the current lifecycle state.
func (x *Executor) State() State {
	return x.state.Load()
}

// IsShuttingDown reports whether shutdown has been requested, in any form.
func (x *Executor) IsShuttingDown() bool {
	return x.state.Load() >= StateShuttingDown
}

// IsShutdown reports whether new submissions are refused.
func (x *Executor) IsShutdown() bool {
	return x.state.Load() >= StateShutdown
}

// IsTerminated reports whether the worker has exited.
func (x *Executor) IsTerminated() bool {
	return x.state.Load() == StateTerminated
}

// TerminationFuture returns a future that completes once the executor has
// terminated. Its listeners run on GlobalExecutor.
func (x *Executor) TerminationFuture() Future[struct{}] {
	return x.terminationFuture
}

// Done returns a channel that is closed once the executor has terminated.
func (x *Executor) Done() <-chan struct{} {
	return x.terminationFuture.Done()
}

// AwaitTermination waits up to timeout (forever, if negative) for the
// executor to terminate, reporting whether it did. Calling it from the
// worker fails with ErrBlockingOperation.
func (x *Executor) AwaitTermination(timeout time.Duration) (bool, error) {
	if x.IsTerminated() {
		return true, nil
	}
	if x.InEventLoop() {
		return false, ErrBlockingOperation
	}
	if timeout < 0 {
		<-x.Done()
		return true, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-x.Done():
		return true, nil
	case <-timer.C:
		return x.IsTerminated(), nil
	}
}

// Execute submits fn to run on the worker, starting the worker if
// necessary. Tasks run in the order they were accepted. It fails with
// ErrTerminated after shutdown, or with the rejection policy's error if the
// queue is full.
func (x *Executor) Execute(fn func()) error {
	if fn == nil {
		return ErrNilTask
	}
	task := &queuedTask{fn: fn}
	inLoop := x.InEventLoop()
	if err := x.addTask(task, inLoop); err != nil {
		return err
	}
	if !inLoop {
		x.startWorker()
		if x.IsShutdown() && task.revoke() {
			return ErrTerminated
		}
	}
	if !x.addTaskWakesUp {
		x.wakeup()
	}
	return nil
}

func (x *Executor) addTask(task *queuedTask, inLoop bool) error {
	if x.IsShutdown() {
		return ErrTerminated
	}
	item := workItem{kind: itemTask, task: task}
	if x.queue.offer(item) {
		x.recordQueueDepth()
		return nil
	}
	if err := x.rejectionPolicy.Rejected(x, func() bool { return x.queue.offer(item) }); err != nil {
		x.logger.Debug().
			Str("executor", x.name).
			Bool("in_event_loop", inLoop).
			Err(err).
			Log("executor: task rejected")
		return err
	}
	return nil
}

// startWorker transitions out of StateNotStarted, on first submission.
func (x *Executor) startWorker() {
	if x.state.Load() == StateNotStarted && x.state.TryTransition(StateNotStarted, StateStarted) {
		x.ensureWorker()
	}
}

// ensureWorker starts the worker goroutine, at most once.
func (x *Executor) ensureWorker() {
	if x.workerStarted.CompareAndSwap(false, true) {
		go x.runWorker()
	}
}

// wakeup unblocks a worker waiting in TakeTask.
func (x *Executor) wakeup() {
	if x.wakeupFunc != nil {
		x.wakeupFunc(x)
		return
	}
	// a full queue wakes the worker regardless
	x.queue.offer(wakeupItem)
}

// Submit runs fn on x, returning a future for its result. Panics are
// reported as PanicError. If the future is cancelled before the task runs,
// fn is skipped.
func Submit[T any](x *Executor, fn func() (T, error)) Future[T] {
	p := NewPromise[T](x)
	if fn == nil {
		p.Reject(ErrNilTask)
		return p
	}
	if err := x.Execute(func() {
		if p.IsDone() {
			return
		}
		var (
			value T
			err   error
		)
		if perr := x.safeRun(func() { value, err = fn() }); perr != nil {
			err = perr
		}
		p.Complete(value, err)
	}); err != nil {
		p.Reject(err)
	}
	return p
}

// tracked is called after each promise registration, to amortize
// scavenging the registry.
func (x *Executor) tracked() {
	if x.promiseCount.Add(1)%registryScavengeInterval == 0 {
		x.registry.Scavenge(registryScavengeInterval)
	}
}

// safeRun calls fn, recovering and logging any panic.
func (x *Executor) safeRun(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = PanicError{Value: r}
			x.panics.log("task", err)
		}
	}()
	fn()
	return nil
}

func (x *Executor) mustInEventLoop(method string) {
	if !x.InEventLoop() {
		panic(fmt.Sprintf("executor: %s called outside the event loop", method))
	}
}

// TakeTask waits for the next task, returning false if woken up without
// one. Due scheduled tasks are moved into the task queue first. Worker only.
func (x *Executor) TakeTask() (func(), bool) {
	x.mustInEventLoop("TakeTask")
	for {
		x.drainDue(timeNow())
		item, ok := x.queue.poll()
		if !ok {
			timeout := time.Duration(-1)
			if delay, scheduled := x.nextScheduledDelay(timeNow()); scheduled {
				timeout = max(delay, time.Nanosecond)
			}
			item, ok = x.queue.take(context.Background(), timeout)
			if !ok {
				// a scheduled task is due
				continue
			}
		}
		if item.kind != itemTask {
			return nil, false
		}
		if item.task.claim() {
			return item.task.fn, true
		}
		// revoked by a submitter that raced with Shutdown
	}
}

// RunTask runs fn as a task, recovering panics. Worker only.
func (x *Executor) RunTask(fn func()) {
	x.mustInEventLoop("RunTask")
	x.runTask(fn)
}

func (x *Executor) runTask(fn func()) {
	if x.metrics == nil {
		_ = x.safeRun(fn)
		return
	}
	start := time.Now()
	_ = x.safeRun(fn)
	x.metrics.recordTask(time.Since(start))
}

// RunAllTasks runs every queued task, including scheduled tasks that are
// due, until the queue is empty or the budget (if positive) is spent. The
// budget is checked every 64 tasks. It reports whether any task ran, and
// updates the last execution time if so. Worker only.
func (x *Executor) RunAllTasks(budget time.Duration) bool {
	x.mustInEventLoop("RunAllTasks")
	var deadline time.Time
	if budget > 0 {
		deadline = timeNow().Add(budget)
	}
	var ran, count int
	for {
		fetchedAll := x.drainDue(timeNow())
		for {
			item, ok := x.queue.poll()
			if !ok {
				break
			}
			if item.kind != itemTask || !item.task.claim() {
				continue
			}
			x.runTask(item.task.fn)
			ran++
			count++
			if !deadline.IsZero() && count >= runAllTasksCheckInterval {
				count = 0
				if !timeNow().Before(deadline) {
					x.lastExecutionTime = timeNow()
					return true
				}
			}
		}
		if fetchedAll {
			break
		}
	}
	x.recordQueueDepth()
	if ran == 0 {
		return false
	}
	x.lastExecutionTime = timeNow()
	return true
}

// HasTasks reports whether the task queue is non-empty. It may be called
// from any goroutine.
func (x *Executor) HasTasks() bool {
	return x.queue.len() != 0
}

// PendingTasks returns the number of items in the task queue, not counting
// scheduled tasks that are not yet due. It may be called from any
// goroutine.
func (x *Executor) PendingTasks() int {
	return x.queue.len()
}

// NextScheduledDelay returns the time until the next scheduled task is due,
// or false if none is scheduled. Worker only.
func (x *Executor) NextScheduledDelay() (time.Duration, bool) {
	x.mustInEventLoop("NextScheduledDelay")
	return x.nextScheduledDelay(timeNow())
}

// UpdateLastExecutionTime records that work was just done, deferring the end
// of a graceful shutdown's quiet period. Run loops that execute work other
// than tasks should call it. Worker only.
func (x *Executor) UpdateLastExecutionTime() {
	x.mustInEventLoop("UpdateLastExecutionTime")
	x.lastExecutionTime = timeNow()
}

// DefaultRunLoop takes and runs one task at a time, until shutdown is
// confirmed.
func DefaultRunLoop(x *Executor) {
	for {
		if fn, ok := x.TakeTask(); ok {
			x.RunTask(fn)
			x.UpdateLastExecutionTime()
		}
		if x.ConfirmShutdown() {
			return
		}
	}
}

// runWorker is the worker goroutine.
func (x *Executor) runWorker() {
	if x.lockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	x.workerID.Store(goid.Get())
	currentExecutor.Set(x)
	x.lastExecutionTime = timeNow()

	x.logger.Debug().
		Str("executor", x.name).
		Log("executor: worker started")

	returned := x.runRunLoop()

	// the run loop may only exit via shutdown, force it if it did not
	x.state.Advance(StateShuttingDown)
	if returned && x.gracefulShutdownFrom.IsZero() {
		x.logger.Err().
			Str("executor", x.name).
			Err(&InvariantViolationError{Message: "run loop returned without confirming shutdown"}).
			Log("executor: buggy run loop")
	}

	for !x.ConfirmShutdown() {
	}

	// no new tasks from this point, those racing are rolled back by their
	// submitters
	x.state.Advance(StateShutdown)
	x.ConfirmShutdown()

	x.registry.RejectAll(ErrTerminated)

	if x.cleanup != nil {
		if err := x.safeRun(x.cleanup); err != nil {
			x.logger.Err().
				Str("executor", x.name).
				Err(err).
				Log("executor: cleanup failed")
		}
	}

	local.RemoveAll()

	x.state.Advance(StateTerminated)

	if n := x.discardTasks(); n != 0 {
		x.logger.Warning().
			Str("executor", x.name).
			Int("tasks", n).
			Err(&InvariantViolationError{Message: "terminated with non-empty task queue"}).
			Log("executor: terminated with non-empty task queue")
	}

	x.logger.Debug().
		Str("executor", x.name).
		Log("executor: worker terminated")

	x.terminationFuture.Resolve(struct{}{})
}

func (x *Executor) runRunLoop() (returned bool) {
	defer func() {
		if r := recover(); r != nil {
			x.logger.Err().
				Str("executor", x.name).
				Err(PanicError{Value: r}).
				Log("executor: run loop panicked")
		}
	}()
	x.runLoop(x)
	return true
}

// discardTasks empties the queue after termination, returning the number
// of tasks that were neither run nor revoked. Tasks are left unclaimed, so
// a racing submitter still observes its rollback.
func (x *Executor) discardTasks() int {
	var n int
	_, _ = x.queue.drain(-1, func(item workItem) error {
		if item.kind == itemTask && !item.task.claimed.Load() {
			n++
		}
		return nil
	})
	return n
}
