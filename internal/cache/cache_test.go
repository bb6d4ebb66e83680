package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constant(v []string, cacheable bool, calls *atomic.Int32) ComputeFunc[[]string] {
	return func(context.Context) ([]string, bool, error) {
		calls.Add(1)
		return v, cacheable, nil
	}
}

func TestLookupCache_GetOrCompute_StoresAndHits(t *testing.T) {
	// Given: an empty cache
	c := New[[]string](4)
	var calls atomic.Int32

	// When: the same key is looked up twice
	first, err1 := c.GetOrCompute(context.Background(), "t:5:nurse", constant([]string{"31301"}, true, &calls))
	second, err2 := c.GetOrCompute(context.Background(), "t:5:nurse", constant([]string{"other"}, true, &calls))

	// Then: the second call is served from the cache
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, uint64(1), c.Stats().Hits)
	assert.Equal(t, uint64(1), c.Stats().Misses)
}

func TestLookupCache_NeverStoresErrors(t *testing.T) {
	c := New[[]string](4)
	boom := errors.New("retrieval unavailable")

	_, err := c.GetOrCompute(context.Background(), "q:5:x", func(context.Context) ([]string, bool, error) {
		return nil, true, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestLookupCache_NeverStoresUncacheableValues(t *testing.T) {
	// Given: a computation that flags its result as degraded
	c := New[[]string](4)
	var calls atomic.Int32

	// When: it is looked up twice
	v, err := c.GetOrCompute(context.Background(), "q:5:x", constant([]string{"a"}, false, &calls))
	_, _ = c.GetOrCompute(context.Background(), "q:5:x", constant([]string{"a"}, false, &calls))

	// Then: the value is returned but never stored
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, v)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int32(2), calls.Load())
}

func TestLookupCache_CancelledComputationIsNotStored(t *testing.T) {
	c := New[[]string](4)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := c.GetOrCompute(ctx, "t:1:x", func(ctx context.Context) ([]string, bool, error) {
		cancel()
		return []string{"late"}, true, nil
	})

	// Either the caller observed the cancellation or got the value, but
	// nothing was stored.
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, 0, c.Len())
}

func TestLookupCache_Purge_InvalidatesInFlightComputation(t *testing.T) {
	// Given: a computation that is running when the cache is purged
	c := New[[]string](4)
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.GetOrCompute(context.Background(), "t:5:nurse", func(context.Context) ([]string, bool, error) {
			close(started)
			<-release
			return []string{"stale"}, true, nil
		})
	}()
	<-started

	// When: the snapshot swaps and the old computation finishes
	c.Purge()
	close(release)
	<-done

	// Then: the stale result is not visible in the new generation
	_, ok := c.Get("t:5:nurse")
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.Generation())
}

func TestLookupCache_ConcurrentMissesShareOneComputation(t *testing.T) {
	c := New[[]string](4)
	var calls atomic.Int32
	gate := make(chan struct{})

	compute := func(context.Context) ([]string, bool, error) {
		calls.Add(1)
		<-gate
		return []string{"21231"}, true, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrCompute(context.Background(), "t:5:software engineer", compute)
			assert.NoError(t, err)
			assert.Equal(t, []string{"21231"}, v)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestLookupCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int](2)
	ctx := context.Background()
	val := func(n int) ComputeFunc[int] {
		return func(context.Context) (int, bool, error) { return n, true, nil }
	}

	_, _ = c.GetOrCompute(ctx, "a", val(1))
	_, _ = c.GetOrCompute(ctx, "b", val(2))
	_, _ = c.Get("a")
	_, _ = c.GetOrCompute(ctx, "c", val(3))

	_, okA := c.Get("a")
	_, okB := c.Get("b")
	assert.True(t, okA)
	assert.False(t, okB)
	assert.Equal(t, 2, c.Stats().Capacity)
}

func TestKeys_AreNamespaced(t *testing.T) {
	assert.Equal(t, "t:5:nurse", TitleKey("nurse", 5))
	assert.Equal(t, "q:5:nurse", QueryKey("nurse", 5))
	assert.NotEqual(t, TitleKey("nurse", 5), TitleKey("nurse", 3))
}
