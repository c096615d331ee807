package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SlidingWindowPrunes(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	window := time.Minute

	count, err := store.CountAndAdd(ctx, "k", now.Add(-2*time.Minute), window)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = store.CountAndAdd(ctx, "k", now.Add(-30*time.Second), window)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "the two-minute-old entry falls outside the window")

	count, err = store.CountAndAdd(ctx, "k", now, window)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMemoryStore_CountAndAddIsAtomic(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	const workers = 50
	counts := make(chan int, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := store.CountAndAdd(ctx, "k", now, time.Minute)
			require.NoError(t, err)
			counts <- n
		}()
	}
	wg.Wait()
	close(counts)

	// Every request sees a distinct count: none is lost, none double-counted.
	seen := map[int]bool{}
	for n := range counts {
		assert.False(t, seen[n], "count %d returned twice", n)
		seen[n] = true
	}
	assert.Len(t, seen, workers)
}

func TestMemoryStore_BlockLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	until := time.Now().Add(10 * time.Minute)

	blocked, err := store.BlockedUntil(ctx, "k")
	require.NoError(t, err)
	assert.True(t, blocked.IsZero())

	require.NoError(t, store.Block(ctx, "k", until))
	blocked, err = store.BlockedUntil(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, until, blocked)

	require.NoError(t, store.Unblock(ctx, "k"))
	blocked, err = store.BlockedUntil(ctx, "k")
	require.NoError(t, err)
	assert.True(t, blocked.IsZero())
}

func TestMemoryStore_CleanupSkipsBlockedBuckets(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	_, err := store.CountAndAdd(ctx, "idle", old, time.Minute)
	require.NoError(t, err)
	_, err = store.CountAndAdd(ctx, "blocked", old, time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Block(ctx, "blocked", time.Now().Add(time.Hour)))
	_, err = store.CountAndAdd(ctx, "fresh", time.Now(), time.Minute)
	require.NoError(t, err)

	removed, err := store.Cleanup(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	// The blocked bucket survives so the block stays enforced.
	until, err := store.BlockedUntil(ctx, "blocked")
	require.NoError(t, err)
	assert.False(t, until.IsZero())
}
