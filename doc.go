// Package executor provides single-worker event-loop executors: every task
// submitted to an [Executor] runs on its one worker goroutine, in submission
// order, so state confined to that executor needs no locking.
//
// # Architecture
//
// An [Executor] owns a bounded FIFO task queue and a deadline-ordered store
// of [ScheduledTask] values, both drained by a worker goroutine that is
// started lazily on first use. The worker runs a [RunLoop] ([DefaultRunLoop]
// unless replaced with [WithRunLoop]), built from the worker-only methods
// [Executor.TakeTask], [Executor.RunTask], [Executor.RunAllTasks] and
// [Executor.ConfirmShutdown].
//
// Results are reported through [Future] values. A [Promise] notifies its
// listeners on its executor, and a [PendingRegistrationPromise] allows
// listeners to be added before that executor is known, delivering on a
// fallback until [PendingRegistrationPromise.Bind] is called.
//
// # Lifecycle
//
// Executors move forward through [StateNotStarted], [StateStarted],
// [StateShuttingDown], [StateShutdown] and [StateTerminated]:
//   - The first submission starts the worker, exactly once
//   - [Executor.ShutdownGracefully] keeps accepting and running tasks until
//     a quiet period passes without any, or a timeout elapses
//   - [Executor.Shutdown] refuses new tasks immediately, and cannot be
//     downgraded by a later graceful request
//   - After the run loop exits, shutdown hooks and cleanup run, goroutine
//     local storage is released (see package local), and the termination
//     future completes
//
// Promises created with [NewPromise] that are still pending at termination
// are rejected with [ErrTerminated].
//
// # Thread Safety
//
// Submission, scheduling, shutdown and all state queries are safe to call
// from any goroutine. Blocking waits ([Future.Await], [InvokeAll],
// [InvokeAny], [Executor.AwaitTermination]) fail with [ErrBlockingOperation]
// when called from the worker that would have to complete them.
//
// # Usage
//
//	x, err := executor.New(executor.WithName("worker"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer x.ShutdownGracefully(0, time.Second)
//
//	f := executor.Submit(x, func() (int, error) {
//	    return 42, nil
//	})
//	v, err := f.Await(ctx)
package executor
