package executor

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffPolicy_retriesUntilRoom(t *testing.T) {
	x := newTestExecutor(t,
		WithQueueCapacity(1),
		WithRejectionPolicy(BackoffPolicy(100, time.Millisecond)),
	)
	block := make(chan struct{})
	entered := make(chan struct{})
	require.NoError(t, x.Execute(func() {
		close(entered)
		<-block
	}))
	<-entered
	require.NoError(t, x.Execute(func() {}))

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(block)
	}()
	var ran atomic.Bool
	require.NoError(t, x.Execute(func() { ran.Store(true) }))
	waitFor(t, time.Second, ran.Load)
}

func TestBackoffPolicy_givesUp(t *testing.T) {
	x := newTestExecutor(t,
		WithQueueCapacity(1),
		WithRejectionPolicy(BackoffPolicy(3, time.Millisecond)),
	)
	block := make(chan struct{})
	defer close(block)
	entered := make(chan struct{})
	require.NoError(t, x.Execute(func() {
		close(entered)
		<-block
	}))
	<-entered
	require.NoError(t, x.Execute(func() {}))

	err := x.Execute(func() {})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestBackoffPolicy_failsFastOnWorker(t *testing.T) {
	x := newTestExecutor(t,
		WithQueueCapacity(1),
		WithRejectionPolicy(BackoffPolicy(1000, time.Second)),
	)
	run(t, x, func() {
		assert.NoError(t, x.Execute(func() {}))
		start := time.Now()
		assert.ErrorIs(t, x.Execute(func() {}), ErrQueueFull)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestRejectionPolicyFunc_custom(t *testing.T) {
	custom := errors.New("custom")
	var calls atomic.Int32
	x := newTestExecutor(t,
		WithQueueCapacity(1),
		WithRejectionPolicy(RejectionPolicyFunc(func(x *Executor, retry func() bool) error {
			calls.Add(1)
			return custom
		})),
	)
	block := make(chan struct{})
	defer close(block)
	entered := make(chan struct{})
	require.NoError(t, x.Execute(func() {
		close(entered)
		<-block
	}))
	<-entered
	require.NoError(t, x.Execute(func() {}))
	assert.Same(t, custom, x.Execute(func() {}))
	assert.Equal(t, int32(1), calls.Load())
}
