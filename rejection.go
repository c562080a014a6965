package executor

import (
	"time"
)

// RejectionPolicy decides the outcome of a submission that found the task
// queue full. Calling retry attempts the enqueue again, returning true if it
// succeeded. A nil return accepts the task, which is only valid if a retry
// succeeded.
type RejectionPolicy interface {
	Rejected(x *Executor, retry func() bool) error
}

// RejectionPolicyFunc adapts a function to RejectionPolicy.
type RejectionPolicyFunc func(x *Executor, retry func() bool) error

func (f RejectionPolicyFunc) Rejected(x *Executor, retry func() bool) error {
	return f(x, retry)
}

// RejectPolicy returns the default policy, which fails with ErrQueueFull.
func RejectPolicy() RejectionPolicy {
	return RejectionPolicyFunc(func(*Executor, func() bool) error {
		return ErrQueueFull
	})
}

// BackoffPolicy returns a policy that wakes the worker and sleeps for
// backoff, up to retries times, before failing with ErrQueueFull. Submissions
// made by the worker itself fail immediately, as only the worker can make
// room.
func BackoffPolicy(retries int, backoff time.Duration) RejectionPolicy {
	return RejectionPolicyFunc(func(x *Executor, retry func() bool) error {
		if x.InEventLoop() {
			return ErrQueueFull
		}
		for range retries {
			x.wakeup()
			time.Sleep(backoff)
			if retry() {
				return nil
			}
		}
		return ErrQueueFull
	})
}
