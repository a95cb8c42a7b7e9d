package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestVersionInitialisesToOne(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	ver, err := c.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)

	// A second read returns the stored value, not a new one.
	ver, err = c.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)
}

func TestBuildKeyCarriesVersion(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	key, err := c.BuildKey(ctx, "billing", "dashboard")
	require.NoError(t, err)
	require.Equal(t, "billing:dashboard:1", key)

	require.NoError(t, c.Bump(ctx))

	key, err = c.BuildKey(ctx, "billing", "dashboard")
	require.NoError(t, err)
	require.Equal(t, "billing:dashboard:2", key)
}

func TestFetchJSONCachesLoaderResult(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]int{"total": 42}, nil
	}

	var first map[string]int
	require.NoError(t, c.FetchJSON(ctx, "k1", &first, loader))
	require.Equal(t, 42, first["total"])
	require.Equal(t, 1, calls)

	var second map[string]int
	require.NoError(t, c.FetchJSON(ctx, "k1", &second, loader))
	require.Equal(t, 42, second["total"])
	require.Equal(t, 1, calls, "second read must be served from cache")
}

func TestFetchJSONPropagatesLoaderError(t *testing.T) {
	c, _ := newTestCache(t)

	wantErr := errors.New("load failed")
	err := c.FetchJSON(context.Background(), "k2", &struct{}{}, func(context.Context) (any, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)
}

func TestBumpOrphansOldKeys(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	loader := func(context.Context) (any, error) { return "stale", nil }
	key, err := c.BuildKey(ctx, "metrics")
	require.NoError(t, err)
	var out string
	require.NoError(t, c.FetchJSON(ctx, key, &out, loader))

	require.NoError(t, c.Bump(ctx))

	fresh := func(context.Context) (any, error) { return "fresh", nil }
	key, err = c.BuildKey(ctx, "metrics")
	require.NoError(t, err)
	require.NoError(t, c.FetchJSON(ctx, key, &out, fresh))
	require.Equal(t, "fresh", out)
}

func TestNilCachePassesThrough(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	key, err := c.BuildKey(ctx, "a", "b")
	require.NoError(t, err)
	require.Equal(t, "a:b", key)

	var out map[string]string
	require.NoError(t, c.FetchJSON(ctx, key, &out, func(context.Context) (any, error) {
		return map[string]string{"k": "v"}, nil
	}))
	require.Equal(t, "v", out["k"])

	require.NoError(t, c.Bump(ctx))
	require.NoError(t, c.ListenForInvalidation(ctx, ""))
}

func TestListenForInvalidationAdoptsPublishedVersion(t *testing.T) {
	c, mr := newTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := c.Version(ctx)
	require.NoError(t, err)
	require.NoError(t, c.ListenForInvalidation(ctx, ""))

	// Republish until the subscriber is registered, then wait for the
	// listener to adopt the published version.
	require.Eventually(t, func() bool {
		return mr.Publish("beopar.cache.bump", "7") > 0
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		ver, err := c.Version(ctx)
		return err == nil && ver == 7
	}, time.Second, 10*time.Millisecond)
}
