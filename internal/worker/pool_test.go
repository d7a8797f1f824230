package worker

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestPool_RunsAllTasks(t *testing.T) {
	pool := NewPool(arbor.NewLogger(), 3)
	pool.Start()
	defer pool.Stop()

	var count int64
	for i := 0; i < 20; i++ {
		require.NoError(t, pool.Submit(func() {
			atomic.AddInt64(&count, 1)
		}))
	}
	pool.Wait()

	assert.Equal(t, int64(20), atomic.LoadInt64(&count))
}

func TestPool_BoundsConcurrency(t *testing.T) {
	const workers = 3
	pool := NewPool(arbor.NewLogger(), workers)
	pool.Start()
	defer pool.Stop()

	var mu sync.Mutex
	var current, peak int

	for i := 0; i < 30; i++ {
		require.NoError(t, pool.Submit(func() {
			mu.Lock()
			current++
			if current > peak {
				peak = current
			}
			mu.Unlock()

			mu.Lock()
			current--
			mu.Unlock()
		}))
	}
	pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, workers)
	assert.Positive(t, peak)
}

func TestPool_IndexAddressedResults(t *testing.T) {
	pool := NewPool(arbor.NewLogger(), 2)
	pool.Start()
	defer pool.Stop()

	results := make([]int, 10)
	for i := 0; i < len(results); i++ {
		i := i
		require.NoError(t, pool.Submit(func() {
			results[i] = i * i
		}))
	}
	pool.Wait()

	for i, got := range results {
		assert.Equal(t, i*i, got)
	}
}

func TestPool_SurvivesPanickingTask(t *testing.T) {
	pool := NewPool(arbor.NewLogger(), 1)
	pool.Start()
	defer pool.Stop()

	var ran bool
	require.NoError(t, pool.Submit(func() { panic("boom") }))
	require.NoError(t, pool.Submit(func() { ran = true }))
	pool.Wait()

	assert.True(t, ran, "pool keeps processing after a panic")
}

func TestPool_SubmitAfterStop(t *testing.T) {
	pool := NewPool(arbor.NewLogger(), 1)
	pool.Start()
	pool.Stop()

	err := pool.Submit(func() {})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestPool_RaisesZeroWorkers(t *testing.T) {
	pool := NewPool(nil, 0)
	pool.Start()
	defer pool.Stop()

	done := make(chan struct{})
	require.NoError(t, pool.Submit(func() { close(done) }))
	pool.Wait()
	<-done
}
