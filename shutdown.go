package executor

import (
	"slices"
	"time"
)

// shutdownSleep is how long ConfirmShutdown sleeps while waiting out a quiet
// period with nothing to run.
const shutdownSleep = 10 * time.Millisecond

// DefaultQuietPeriod and DefaultShutdownTimeout are the values used by
// Group.ShutdownGracefully callers that have no better choice.
const (
	DefaultQuietPeriod     = 2 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
)

// ShutdownGracefully requests a graceful shutdown, returning the termination
// future. Tasks continue to be accepted and run until no task has run for
// quietPeriod, or until timeout has elapsed since the request, whichever
// comes first. A timeout shorter than quietPeriod cuts it short. Scheduled
// tasks due within the quiet period (and the timeout) still run, later ones
// are cancelled.
//
// Called from outside the worker, it only takes effect from StateNotStarted
// or StateStarted. Called from the worker, it always moves the executor into
// StateShuttingDown, unless it is already at or past that state. It cannot
// downgrade a hard Shutdown.
func (x *Executor) ShutdownGracefully(quietPeriod, timeout time.Duration) Future[struct{}] {
	quietPeriod = max(quietPeriod, 0)
	timeout = max(timeout, 0)

	if x.IsShuttingDown() || x.refuseGlobalShutdown() {
		return x.TerminationFuture()
	}

	inLoop := x.InEventLoop()
	for {
		old := x.state.Load()
		if old >= StateShuttingDown {
			return x.TerminationFuture()
		}
		if !inLoop && old != StateNotStarted && old != StateStarted {
			return x.TerminationFuture()
		}
		// record the parameters first, the worker reads them once it observes
		// the new state
		x.gracefulQuiet.Store(int64(quietPeriod))
		x.gracefulTimeout.Store(int64(timeout))
		if x.state.TryTransition(old, StateShuttingDown) {
			x.logger.Debug().
				Str("executor", x.name).
				Dur("quiet_period", quietPeriod).
				Dur("timeout", timeout).
				Log("executor: graceful shutdown requested")
			if old == StateNotStarted {
				x.ensureWorker()
			}
			if !inLoop {
				x.wakeup()
			}
			return x.TerminationFuture()
		}
	}
}

// Shutdown requests an immediate shutdown. Submissions are refused from
// this point, already queued tasks still run, and scheduled tasks are
// cancelled. A later graceful request cannot downgrade it.
func (x *Executor) Shutdown() {
	if x.refuseGlobalShutdown() {
		return
	}
	old, ok := x.state.Advance(StateShutdown)
	if !ok {
		return
	}
	x.logger.Debug().
		Str("executor", x.name).
		Str("from", old.String()).
		Log("executor: shutdown requested")
	if old == StateNotStarted {
		x.ensureWorker()
	}
	if !x.InEventLoop() {
		x.wakeup()
	}
}

// AddShutdownHook registers fn to be called on the worker while shutdown is
// confirmed, returning a function that unregisters it. Hooks run at most
// once, and a panicking hook does not prevent the others from running.
func (x *Executor) AddShutdownHook(fn func()) (remove func()) {
	if fn == nil {
		return func() {}
	}
	h := &x.shutdownHooks
	h.mu.Lock()
	if h.m == nil {
		h.m = make(map[uint64]func())
	}
	h.nextID++
	id := h.nextID
	h.m[id] = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.m, id)
		h.mu.Unlock()
	}
}

// runShutdownHooks runs and clears every registered hook, in registration
// order, repeating until no hooks remain. It reports whether any ran.
func (x *Executor) runShutdownHooks() bool {
	var ran bool
	for {
		h := &x.shutdownHooks
		h.mu.Lock()
		if len(h.m) == 0 {
			h.mu.Unlock()
			break
		}
		ids := make([]uint64, 0, len(h.m))
		for id := range h.m {
			ids = append(ids, id)
		}
		hooks := h.m
		h.m = nil
		h.mu.Unlock()

		slices.Sort(ids)
		for _, id := range ids {
			x.runShutdownHook(hooks[id])
			ran = true
		}
	}
	if ran {
		x.lastExecutionTime = timeNow()
	}
	return ran
}

func (x *Executor) runShutdownHook(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			x.logger.Err().
				Str("executor", x.name).
				Err(&ShutdownHookError{Value: r}).
				Log("executor: shutdown hook panicked")
		}
	}()
	fn()
}

// ConfirmShutdown reports whether the run loop should exit. It returns
// false immediately unless shutdown was requested, otherwise it runs every
// queued task and shutdown hook, then applies the quiet period and timeout
// of a graceful shutdown. While waiting out the quiet period it sleeps
// briefly, after queueing a wakeup so the next TakeTask does not block.
// Worker only.
func (x *Executor) ConfirmShutdown() bool {
	if !x.IsShuttingDown() {
		return false
	}
	x.mustInEventLoop("ConfirmShutdown")

	now := timeNow()
	if x.gracefulShutdownFrom.IsZero() {
		x.gracefulShutdownFrom = now
	}
	quiet := time.Duration(x.gracefulQuiet.Load())
	timeout := time.Duration(x.gracefulTimeout.Load())

	if x.IsShutdown() {
		x.cancelScheduled(time.Time{})
	} else {
		// tasks due within the quiet period are still run
		x.cancelScheduled(x.gracefulShutdownFrom.Add(min(quiet, timeout)))
	}

	if x.RunAllTasks(0) || x.runShutdownHooks() {
		if x.IsShutdown() || quiet == 0 || timeNow().Sub(x.gracefulShutdownFrom) > timeout {
			return true
		}
		x.queue.offer(wakeupItem)
		return false
	}

	now = timeNow()
	if x.IsShutdown() || now.Sub(x.gracefulShutdownFrom) > timeout {
		return true
	}

	// every task still scheduled is due before the cutoff
	if delay, ok := x.nextScheduledDelay(now); ok {
		x.queue.offer(wakeupItem)
		if delay > 0 {
			time.Sleep(min(delay, shutdownSleep))
		}
		return false
	}

	if now.Sub(x.lastExecutionTime) <= quiet {
		x.queue.offer(wakeupItem)
		time.Sleep(shutdownSleep)
		return false
	}

	return true
}
