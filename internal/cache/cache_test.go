package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClient_SetGetDelete(t *testing.T) {
	c := NewMemoryClient(16, time.Minute)
	defer c.Close()
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "key", []byte("value"), 0))

	got, err := c.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)

	require.NoError(t, c.Delete(ctx, "key"))
	_, err = c.Get(ctx, "key")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClient_Stats(t *testing.T) {
	c := NewMemoryClient(16, time.Minute)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))

	_, _ = c.Get(ctx, "a")       // hit
	_, _ = c.Get(ctx, "a")       // hit
	_, _ = c.Get(ctx, "missing") // miss

	stats, err := c.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.Entries)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	// 2 hits / 3 lookups = 0.667
	assert.InDelta(t, 0.667, stats.HitRate, 0.001)
}

func TestMemoryClient_EvictsOldestBeyondCapacity(t *testing.T) {
	c := NewMemoryClient(2, time.Minute)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "first", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "second", []byte("2"), 0))
	require.NoError(t, c.Set(ctx, "third", []byte("3"), 0))

	_, err := c.Get(ctx, "first")
	assert.ErrorIs(t, err, ErrCacheMiss, "least recently used entry is evicted at capacity")

	_, err = c.Get(ctx, "third")
	assert.NoError(t, err)
}

func TestMemoryClient_TTLExpiry(t *testing.T) {
	c := NewMemoryClient(16, 10*time.Millisecond)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "fleeting", []byte("1"), 0))
	time.Sleep(50 * time.Millisecond)

	_, err := c.Get(ctx, "fleeting")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
