package executor

import (
	"container/heap"
	"errors"
	"time"
)

// timeNow is replaceable for tests.
var timeNow = time.Now

var errNonPositivePeriod = errors.New("executor: non-positive period")

// ScheduledTask is a task that runs at a deadline, optionally repeating. It
// is a Future that completes when a one-shot task has run, when the task is
// cancelled, or when a run panics (which also stops a periodic task).
//
// The deadline, sequence and heap position are only accessed by the worker.
type ScheduledTask struct {
	*Promise[struct{}]
	x        *Executor
	fn       func()
	deadline time.Time
	// period is 0 for one-shot tasks, positive for a fixed rate, and
	// negative for a fixed delay
	period time.Duration
	// seq orders tasks with equal deadlines by insertion
	seq   uint64
	index int
}

func newScheduledTask(x *Executor, fn func(), deadline time.Time, period time.Duration) *ScheduledTask {
	return &ScheduledTask{
		Promise:  NewPromise[struct{}](x),
		x:        x,
		fn:       fn,
		deadline: deadline,
		period:   period,
		index:    -1,
	}
}

// Period returns the repeat interval, 0 for one-shot tasks. Fixed delay
// tasks report a negative period.
func (t *ScheduledTask) Period() time.Duration {
	return t.period
}

// Cancel cancels the task, removing it from the executor's schedule. It
// reports false if the task had already completed.
func (t *ScheduledTask) Cancel() bool {
	if !t.Promise.Cancel() {
		return false
	}
	if t.x.InEventLoop() {
		t.x.removeScheduled(t)
	} else {
		// a rejection means the worker is going away, cancelled tasks are
		// skipped regardless
		_ = t.x.Execute(func() { t.x.removeScheduled(t) })
	}
	return true
}

// run is submitted to the task queue once the deadline passes.
func (t *ScheduledTask) run() {
	if t.IsDone() {
		return
	}
	if t.period == 0 {
		t.Complete(struct{}{}, t.x.safeRun(t.fn))
		return
	}
	if err := t.x.safeRun(t.fn); err != nil {
		t.Reject(err)
		return
	}
	if t.IsDone() {
		return
	}
	if t.x.IsShuttingDown() {
		t.Promise.Cancel()
		return
	}
	if t.period > 0 {
		t.deadline = t.deadline.Add(t.period)
	} else {
		t.deadline = timeNow().Add(-t.period)
	}
	t.x.insertScheduled(t)
}

// scheduledQueue is a min-heap of tasks, by deadline then seq.
type scheduledQueue []*ScheduledTask

func (q scheduledQueue) Len() int { return len(q) }

func (q scheduledQueue) Less(i, j int) bool {
	if q[i].deadline.Equal(q[j].deadline) {
		return q[i].seq < q[j].seq
	}
	return q[i].deadline.Before(q[j].deadline)
}

func (q scheduledQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *scheduledQueue) Push(x any) {
	t := x.(*ScheduledTask)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *scheduledQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}

// Schedule runs fn once, after delay.
func (x *Executor) Schedule(delay time.Duration, fn func()) (*ScheduledTask, error) {
	return x.ScheduleAt(timeNow().Add(delay), fn)
}

// ScheduleAt runs fn once, at deadline. Deadlines in the past run as soon as
// possible. Tasks with equal deadlines run in the order they were scheduled.
func (x *Executor) ScheduleAt(deadline time.Time, fn func()) (*ScheduledTask, error) {
	if fn == nil {
		return nil, ErrNilTask
	}
	return x.schedule(newScheduledTask(x, fn, deadline, 0))
}

// ScheduleAtFixedRate runs fn after initial, then every period, measured
// from the previous deadline.
func (x *Executor) ScheduleAtFixedRate(initial, period time.Duration, fn func()) (*ScheduledTask, error) {
	if fn == nil {
		return nil, ErrNilTask
	}
	if period <= 0 {
		return nil, errNonPositivePeriod
	}
	return x.schedule(newScheduledTask(x, fn, timeNow().Add(initial), period))
}

// ScheduleWithFixedDelay runs fn after initial, then repeatedly, delay after
// each run finishes.
func (x *Executor) ScheduleWithFixedDelay(initial, delay time.Duration, fn func()) (*ScheduledTask, error) {
	if fn == nil {
		return nil, ErrNilTask
	}
	if delay <= 0 {
		return nil, errNonPositivePeriod
	}
	return x.schedule(newScheduledTask(x, fn, timeNow().Add(initial), -delay))
}

func (x *Executor) schedule(t *ScheduledTask) (*ScheduledTask, error) {
	if x.InEventLoop() {
		if x.IsShutdown() {
			t.Reject(ErrTerminated)
			return nil, ErrTerminated
		}
		x.insertScheduled(t)
		return t, nil
	}
	if err := x.Execute(func() { x.insertScheduled(t) }); err != nil {
		t.Reject(err)
		return nil, err
	}
	return t, nil
}

func (x *Executor) insertScheduled(t *ScheduledTask) {
	if t.IsDone() {
		return
	}
	x.scheduledSeq++
	t.seq = x.scheduledSeq
	heap.Push(&x.scheduled, t)
	x.recordScheduledDepth()
}

func (x *Executor) removeScheduled(t *ScheduledTask) {
	if t.index >= 0 && t.index < len(x.scheduled) && x.scheduled[t.index] == t {
		heap.Remove(&x.scheduled, t.index)
		x.recordScheduledDepth()
	}
}

// peekScheduled returns the earliest live task, discarding cancelled ones.
func (x *Executor) peekScheduled() *ScheduledTask {
	for len(x.scheduled) != 0 {
		t := x.scheduled[0]
		if !t.IsDone() {
			return t
		}
		heap.Pop(&x.scheduled)
	}
	return nil
}

// drainDue moves every task due at now into the task queue. It reports false
// if the queue filled up, in which case the first task that did not fit is
// left in place.
func (x *Executor) drainDue(now time.Time) bool {
	for {
		t := x.peekScheduled()
		if t == nil || t.deadline.After(now) {
			return true
		}
		if !x.queue.offer(workItem{kind: itemTask, task: &queuedTask{fn: t.run}}) {
			return false
		}
		heap.Pop(&x.scheduled)
		x.recordScheduledDepth()
	}
}

// nextScheduledDelay returns the time until the earliest deadline, or false
// if nothing is scheduled.
func (x *Executor) nextScheduledDelay(now time.Time) (time.Duration, bool) {
	t := x.peekScheduled()
	if t == nil {
		return 0, false
	}
	return max(t.deadline.Sub(now), 0), true
}

// cancelScheduled cancels every task with a deadline after cutoff, or all
// tasks if cutoff is zero.
func (x *Executor) cancelScheduled(cutoff time.Time) {
	if len(x.scheduled) == 0 {
		return
	}
	kept := x.scheduled[:0]
	var cancelled []*ScheduledTask
	for _, t := range x.scheduled {
		if t.IsDone() || cutoff.IsZero() || t.deadline.After(cutoff) {
			t.index = -1
			cancelled = append(cancelled, t)
			continue
		}
		t.index = len(kept)
		kept = append(kept, t)
	}
	for i := len(kept); i < len(x.scheduled); i++ {
		x.scheduled[i] = nil
	}
	x.scheduled = kept
	heap.Init(&x.scheduled)
	x.recordScheduledDepth()
	// listeners may schedule more work, complete after the heap is consistent
	for _, t := range cancelled {
		t.Promise.Cancel()
	}
}
