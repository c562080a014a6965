package executor

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RejectAll(t *testing.T) {
	r := newRegistry()
	var promises []*Promise[int]
	for range 10 {
		p := newPromise[int](nil)
		add(r, p)
		promises = append(promises, p)
	}
	promises[3].Resolve(3)
	require.Equal(t, 10, r.Len())

	r.RejectAll(ErrTerminated)
	assert.Zero(t, r.Len())
	for i, p := range promises {
		if i == 3 {
			assert.True(t, p.IsSuccess())
			continue
		}
		assert.ErrorIs(t, p.Err(), ErrTerminated, i)
	}
}

func TestRegistry_Scavenge_removesSettled(t *testing.T) {
	r := newRegistry()
	var promises []*Promise[int]
	for range 100 {
		p := newPromise[int](nil)
		add(r, p)
		promises = append(promises, p)
	}
	for _, p := range promises[:60] {
		p.Resolve(0)
	}

	r.Scavenge(0)
	assert.Equal(t, 100, r.Len())

	// a full cycle, in batches
	for range 4 {
		r.Scavenge(30)
	}
	assert.Equal(t, 40, r.Len())
	runtime.KeepAlive(promises)
}

func TestRegistry_Scavenge_removesCollected(t *testing.T) {
	r := newRegistry()
	func() {
		for range 10 {
			add(r, newPromise[int](nil))
		}
	}()
	kept := newPromise[int](nil)
	add(r, kept)

	runtime.GC()
	runtime.GC()
	r.Scavenge(100)
	assert.Equal(t, 1, r.Len())
	runtime.KeepAlive(kept)
}

func TestRegistry_Scavenge_compacts(t *testing.T) {
	r := newRegistry()
	var promises []*Promise[int]
	for range 1000 {
		p := newPromise[int](nil)
		add(r, p)
		promises = append(promises, p)
	}
	for _, p := range promises[:990] {
		p.Resolve(0)
	}
	r.Scavenge(1000)

	r.mu.Lock()
	assert.Len(t, r.ring, 10)
	assert.Zero(t, r.head)
	r.mu.Unlock()
	assert.Equal(t, 10, r.Len())
	runtime.KeepAlive(promises)
}

func TestExecutor_promisesAreScavenged(t *testing.T) {
	x := newTestExecutor(t)
	submit := func(n int) {
		futures := make([]Future[int], n)
		for i := range futures {
			futures[i] = Submit(x, func() (int, error) { return 0, nil })
		}
		for _, f := range futures {
			_, err := await(t, f)
			require.NoError(t, err)
		}
	}
	submit(registryScavengeInterval * 4)
	// at least one more scavenge, over settled entries
	submit(registryScavengeInterval)
	assert.Less(t, x.registry.Len(), registryScavengeInterval*5)
}
