package localcache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trpc-group/compliance-rag/localcache"
)

func TestCache_SetGetDelete(t *testing.T) {
	c := localcache.New(4, 0)
	_, ok := c.Get("a")
	require.False(t, ok)

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)

	c.Delete("a")
	_, ok = c.Get("a")
	require.False(t, ok)
}

func TestCache_TTLExpiry(t *testing.T) {
	c := localcache.New(4, 10*time.Millisecond)
	c.Set("a", "v")
	_, ok := c.Get("a")
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, ok = c.Get("a")
	require.False(t, ok)
}

func TestCache_LRUEviction(t *testing.T) {
	c := localcache.New(2, 0)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3) // evicts "a"

	_, ok := c.Get("a")
	require.False(t, ok)
	require.Equal(t, 2, c.Size())
	require.Equal(t, int64(1), c.StatsSnapshot().Evictions)
}

func TestCache_StatsHitRate(t *testing.T) {
	c := localcache.New(4, 0)
	c.Set("a", 1)
	c.Get("a")
	c.Get("missing")
	stats := c.StatsSnapshot()
	require.Equal(t, int64(1), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)
	require.InDelta(t, 0.5, stats.HitRate(), 0.0001)
}

func TestMemoize_CacheHitBypassesFn(t *testing.T) {
	c := localcache.New(8, 0)
	calls := 0
	fn := func(ctx context.Context) (int, error) {
		calls++
		return 7, nil
	}
	wrapped := localcache.Memoize(c, "pfx", "fn", map[string]any{"q": "x"}, fn)

	v1, err := wrapped(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, v1)

	v2, err := wrapped(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, v2)
	require.Equal(t, 1, calls, "second call should be served from cache")
}

func TestMemoize_DifferentArgsDifferentKeys(t *testing.T) {
	c := localcache.New(8, 0)
	calls := 0
	fn := func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}
	w1 := localcache.Memoize(c, "pfx", "fn", map[string]any{"q": "a"}, fn)
	w2 := localcache.Memoize(c, "pfx", "fn", map[string]any{"q": "b"}, fn)

	_, _ = w1(context.Background())
	_, _ = w2(context.Background())
	require.Equal(t, 2, calls)
}

func TestMemoize_KeyOrderIndependent(t *testing.T) {
	c := localcache.New(8, 0)
	calls := 0
	fn := func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}
	w1 := localcache.Memoize(c, "pfx", "fn", map[string]any{"a": 1, "b": 2}, fn)
	w2 := localcache.Memoize(c, "pfx", "fn", map[string]any{"b": 2, "a": 1}, fn)

	_, _ = w1(context.Background())
	_, _ = w2(context.Background())
	require.Equal(t, 1, calls, "map key order must not change the cache key")
}

func TestMemoize_ErrorNotCached(t *testing.T) {
	c := localcache.New(8, 0)
	calls := 0
	fn := func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	}
	wrapped := localcache.Memoize(c, "pfx", "fn", "x", fn)
	_, err := wrapped(context.Background())
	require.Error(t, err)
	_, err = wrapped(context.Background())
	require.Error(t, err)
	require.Equal(t, 2, calls)
}
