package cache_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"schemaregistry/internal/cache"
)

func TestGetLoadsOnceOnMiss(t *testing.T) {
	c := cache.New(10, time.Minute)
	var loads int64
	load := func(ctx context.Context, key cache.Key) (any, error) {
		atomic.AddInt64(&loads, 1)
		return "value", nil
	}

	v, err := c.Get(context.Background(), cache.Key{Name: "a", Version: 1}, load)
	require.NoError(t, err)
	require.Equal(t, "value", v)

	v, err = c.Get(context.Background(), cache.Key{Name: "a", Version: 1}, load)
	require.NoError(t, err)
	require.Equal(t, "value", v)
	require.Equal(t, int64(1), atomic.LoadInt64(&loads))
}

func TestGetSingleFlightsConcurrentMisses(t *testing.T) {
	c := cache.New(10, time.Minute)
	var loads int64
	started := make(chan struct{})
	release := make(chan struct{})

	load := func(ctx context.Context, key cache.Key) (any, error) {
		if atomic.AddInt64(&loads, 1) == 1 {
			close(started)
			<-release
		}
		return "value", nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]any, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(context.Background(), cache.Key{Name: "a", Version: 1}, load)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}

	<-started
	close(release)
	wg.Wait()

	require.Equal(t, int64(1), atomic.LoadInt64(&loads))
	for _, v := range results {
		require.Equal(t, "value", v)
	}
}

func TestGetDoesNotCacheLoaderError(t *testing.T) {
	c := cache.New(10, time.Minute)
	var loads int64
	load := func(ctx context.Context, key cache.Key) (any, error) {
		atomic.AddInt64(&loads, 1)
		return nil, fmt.Errorf("boom")
	}

	_, err := c.Get(context.Background(), cache.Key{Name: "a", Version: 1}, load)
	require.Error(t, err)
	_, err = c.Get(context.Background(), cache.Key{Name: "a", Version: 1}, load)
	require.Error(t, err)
	require.Equal(t, int64(2), atomic.LoadInt64(&loads))
}

func TestExpiryForcesReload(t *testing.T) {
	c := cache.New(10, 10*time.Millisecond)
	var loads int64
	load := func(ctx context.Context, key cache.Key) (any, error) {
		atomic.AddInt64(&loads, 1)
		return "value", nil
	}

	_, err := c.Get(context.Background(), cache.Key{Name: "a", Version: 1}, load)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	_, err = c.Get(context.Background(), cache.Key{Name: "a", Version: 1}, load)
	require.NoError(t, err)
	require.Equal(t, int64(2), atomic.LoadInt64(&loads))
}

func TestCapacityEvictsLeastRecentlyUsed(t *testing.T) {
	c := cache.New(2, time.Minute)
	load := func(v string) cache.Loader {
		return func(ctx context.Context, key cache.Key) (any, error) { return v, nil }
	}

	_, err := c.Get(context.Background(), cache.Key{Name: "a", Version: 1}, load("a"))
	require.NoError(t, err)
	_, err = c.Get(context.Background(), cache.Key{Name: "b", Version: 1}, load("b"))
	require.NoError(t, err)
	// touch "a" so "b" becomes the least recently used entry
	_, err = c.Get(context.Background(), cache.Key{Name: "a", Version: 1}, load("a"))
	require.NoError(t, err)
	_, err = c.Get(context.Background(), cache.Key{Name: "c", Version: 1}, load("c"))
	require.NoError(t, err)

	stats := c.Stats()
	require.Equal(t, 2, stats.Size)
	require.Equal(t, int64(1), stats.Evictions)

	var reloaded int64
	_, err = c.Get(context.Background(), cache.Key{Name: "b", Version: 1}, func(ctx context.Context, key cache.Key) (any, error) {
		atomic.AddInt64(&reloaded, 1)
		return "b", nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), reloaded)
}

func TestInvalidate(t *testing.T) {
	c := cache.New(10, time.Minute)
	load := func(ctx context.Context, key cache.Key) (any, error) { return "value", nil }

	_, err := c.Get(context.Background(), cache.Key{Name: "a", Version: 1}, load)
	require.NoError(t, err)
	require.Equal(t, 1, c.Stats().Size)

	c.Invalidate(cache.Key{Name: "a", Version: 1})
	require.Equal(t, 0, c.Stats().Size)
}
