package executor

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrRejected is the root of every submission refusal. Use errors.Is to
	// test for it, the concrete error is usually one of the errors that wrap
	// it, e.g. ErrQueueFull or ErrTerminated.
	ErrRejected = errors.New("executor: rejected")

	// ErrQueueFull is returned when the task queue is at capacity and the
	// rejection policy did not accept the task.
	ErrQueueFull = fmt.Errorf("%w: task queue full", ErrRejected)

	// ErrTerminated is returned when work is submitted to an executor that
	// has been shut down, and used to reject promises still pending when an
	// executor terminates.
	ErrTerminated = fmt.Errorf("%w: executor shut down", ErrRejected)

	// ErrBlockingOperation is returned when a blocking wait is attempted on
	// the worker goroutine that would have to complete it.
	ErrBlockingOperation = fmt.Errorf("%w: blocking operation on the event loop", ErrRejected)

	// ErrNilTask is returned when a nil function is submitted.
	ErrNilTask = errors.New("executor: nil task")
)

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("executor: task panicked: %v", e.Value)
}

// Unwrap returns the panic value, if it is an error.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// RegistrationError indicates that a resource could not be attached to an
// executor. It is only ever delivered through a promise.
type RegistrationError struct {
	Cause error
}

func (e *RegistrationError) Error() string {
	if e.Cause == nil {
		return "executor: registration failed"
	}
	return "executor: registration failed: " + e.Cause.Error()
}

func (e *RegistrationError) Unwrap() error {
	return e.Cause
}

// ShutdownHookError describes a shutdown hook that panicked. It is logged,
// shutdown continues regardless.
type ShutdownHookError struct {
	Value any
}

func (e *ShutdownHookError) Error() string {
	return fmt.Sprintf("executor: shutdown hook panicked: %v", e.Value)
}

func (e *ShutdownHookError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// InvariantViolationError reports a defect detected at runtime, e.g. tasks
// left in the queue at termination. It is logged, never returned to callers.
type InvariantViolationError struct {
	Message string
}

func (e *InvariantViolationError) Error() string {
	return "executor: invariant violation: " + e.Message
}
