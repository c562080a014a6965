package executor

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultQueueCapacity is the task queue capacity used when
// WithQueueCapacity is not provided.
const DefaultQueueCapacity = 1 << 14

type itemKind uint8

const (
	itemTask itemKind = iota
	itemWakeup
)

// workItem is a tagged sum of a submitted task and the wakeup sentinel.
// Wakeups only ever unblock the worker, they are never run.
type workItem struct {
	task *queuedTask
	kind itemKind
}

// queuedTask is a submitted function plus a one-shot claim flag. The worker
// claims the task before running it, a submitter that lost a race with
// Shutdown may revoke it instead. Exactly one of them wins.
type queuedTask struct {
	fn      func()
	claimed atomic.Bool
}

func (t *queuedTask) claim() bool {
	return t.claimed.CompareAndSwap(false, true)
}

// revoke rolls back an enqueue, returning true if the worker had not yet
// claimed the task.
func (t *queuedTask) revoke() bool {
	return t.claimed.CompareAndSwap(false, true)
}

var wakeupItem = workItem{kind: itemWakeup}

// taskQueue is a bounded multi-producer, single-consumer FIFO queue.
type taskQueue struct {
	ch chan workItem
}

func newTaskQueue(capacity int) *taskQueue {
	return &taskQueue{ch: make(chan workItem, capacity)}
}

// offer enqueues without blocking, returning false if the queue is full.
func (q *taskQueue) offer(item workItem) bool {
	select {
	case q.ch <- item:
		return true
	default:
		return false
	}
}

// poll dequeues without blocking.
func (q *taskQueue) poll() (workItem, bool) {
	select {
	case item := <-q.ch:
		return item, true
	default:
		return workItem{}, false
	}
}

// take dequeues a single item, waiting up to timeout for one to arrive. A
// negative timeout waits until an item arrives or ctx is done.
func (q *taskQueue) take(ctx context.Context, timeout time.Duration) (workItem, bool) {
	if timeout == 0 {
		return q.poll()
	}
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case item := <-q.ch:
		return item, true
	case <-expired:
	case <-ctx.Done():
	}
	return workItem{}, false
}

// drain dequeues up to limit items without blocking, passing each to
// handler, and stopping early if handler returns an error. A negative limit
// drains everything. It returns the number of items received.
func (q *taskQueue) drain(limit int, handler func(workItem) error) (n int, err error) {
	for limit < 0 || n < limit {
		item, ok := q.poll()
		if !ok {
			break
		}
		n++
		if err = handler(item); err != nil {
			break
		}
	}
	return n, err
}

func (q *taskQueue) len() int {
	return len(q.ch)
}

func (q *taskQueue) capacity() int {
	return cap(q.ch)
}
