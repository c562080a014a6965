package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func taskItem(fn func()) workItem {
	return workItem{kind: itemTask, task: &queuedTask{fn: fn}}
}

func TestTaskQueue_fifoAndCapacity(t *testing.T) {
	q := newTaskQueue(3)
	require.Equal(t, 3, q.capacity())

	var order []int
	for i := range 3 {
		require.True(t, q.offer(taskItem(func() { order = append(order, i) })))
	}
	assert.False(t, q.offer(taskItem(func() {})), "full")
	assert.Equal(t, 3, q.len())

	for range 3 {
		item, ok := q.poll()
		require.True(t, ok)
		require.Equal(t, itemTask, item.kind)
		item.task.fn()
	}
	assert.Equal(t, []int{0, 1, 2}, order)

	_, ok := q.poll()
	assert.False(t, ok)
}

func TestTaskQueue_takeTimeout(t *testing.T) {
	q := newTaskQueue(1)

	start := time.Now()
	_, ok := q.take(context.Background(), 20*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)

	_, ok = q.take(context.Background(), 0)
	assert.False(t, ok)

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.offer(wakeupItem)
	}()
	item, ok := q.take(context.Background(), -1)
	require.True(t, ok)
	assert.Equal(t, itemWakeup, item.kind)
}

func TestTaskQueue_takeContextCancel(t *testing.T) {
	q := newTaskQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := q.take(ctx, -1)
	assert.False(t, ok)
}

func TestTaskQueue_drain(t *testing.T) {
	q := newTaskQueue(8)
	for range 5 {
		require.True(t, q.offer(wakeupItem))
	}

	n, err := q.drain(0, func(workItem) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = q.drain(2, func(workItem) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stop := errors.New("stop")
	n, err = q.drain(-1, func(workItem) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)

	n, err = q.drain(-1, func(workItem) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, q.len())
}

func TestQueuedTask_claimOrRevoke(t *testing.T) {
	task := &queuedTask{fn: func() {}}
	require.True(t, task.claim())
	assert.False(t, task.revoke())

	task = &queuedTask{fn: func() {}}
	require.True(t, task.revoke())
	assert.False(t, task.claim())
}
