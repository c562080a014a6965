package goid

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_stableWithinGoroutine(t *testing.T) {
	a := Get()
	b := Get()
	require.NotZero(t, a)
	assert.Equal(t, a, b)
}

func TestGet_distinctAcrossGoroutines(t *testing.T) {
	const n = 32
	ids := make(chan uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- Get()
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[uint64]struct{}{Get(): {}}
	for id := range ids {
		require.NotZero(t, id)
		_, dup := seen[id]
		assert.False(t, dup, "duplicate goroutine id %d", id)
		seen[id] = struct{}{}
	}
}
