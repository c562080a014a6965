package executor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingRegistrationPromise_unboundUsesFallback(t *testing.T) {
	fallback := newTestExecutor(t)
	p := NewPendingRegistrationPromise[int](fallback)
	assert.False(t, p.Bound())
	assert.Same(t, fallback, p.Executor())

	done := make(chan *Executor, 1)
	p.AddListener(func(Future[int]) { done <- CurrentExecutor() })
	p.Reject(errors.New("registration failed"))
	assert.Same(t, fallback, <-done)
}

func TestPendingRegistrationPromise_boundUsesBoundExecutor(t *testing.T) {
	fallback := newTestExecutor(t)
	bound := newTestExecutor(t)
	p := NewPendingRegistrationPromise[int](fallback)

	done := make(chan *Executor, 2)
	p.AddListener(func(Future[int]) { done <- CurrentExecutor() })

	require.True(t, p.Bind(bound))
	assert.True(t, p.Bound())
	assert.Same(t, bound, p.Executor())

	p.Resolve(1)
	assert.Same(t, bound, <-done)

	// late listeners also go to the bound executor
	p.AddListener(func(Future[int]) { done <- CurrentExecutor() })
	assert.Same(t, bound, <-done)
}

func TestPendingRegistrationPromise_bindOnce(t *testing.T) {
	a := newTestExecutor(t)
	b := newTestExecutor(t)
	p := NewPendingRegistrationPromise[struct{}](nil)

	assert.False(t, p.Bind(nil))
	assert.Nil(t, p.Executor())
	assert.True(t, p.Bind(a))
	assert.False(t, p.Bind(b))
	assert.Same(t, a, p.Executor())
}

func TestPendingRegistrationPromise_nilFallbackNotifiesInline(t *testing.T) {
	p := NewPendingRegistrationPromise[int](nil)
	var called bool
	p.AddListener(func(Future[int]) { called = true })
	p.Resolve(1)
	assert.True(t, called)
}
