package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quote struct {
	Price float64 `json:"price"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	defer c.Close()

	require.NoError(t, c.Set(ctx, "quote:crypto:BTC/USDT", quote{Price: 42}, time.Minute))
	var q quote
	require.NoError(t, c.Get(ctx, "quote:crypto:BTC/USDT", &q))
	assert.Equal(t, 42.0, q.Price)

	require.NoError(t, c.Set(ctx, "plain", "text", 0))
	var s string
	require.NoError(t, c.Get(ctx, "plain", &s))
	assert.Equal(t, "text", s)

	err := c.Get(ctx, "missing", &s)
	assert.True(t, errors.Is(err, ErrCacheMiss))
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	defer c.Close()

	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", quote{Price: 1}, time.Second))
	now = now.Add(2 * time.Second)
	var q quote
	assert.ErrorIs(t, c.Get(ctx, "k", &q), ErrCacheMiss)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(WithMemoryMaxSize(2))
	defer c.Close()

	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { now = now.Add(time.Millisecond); return now }

	require.NoError(t, c.Set(ctx, "a", "1", 0))
	require.NoError(t, c.Set(ctx, "b", "2", 0))
	var s string
	require.NoError(t, c.Get(ctx, "a", &s))
	require.NoError(t, c.Set(ctx, "c", "3", 0))

	assert.Equal(t, 2, c.Len())
	assert.ErrorIs(t, c.Get(ctx, "b", &s), ErrCacheMiss)
	assert.NoError(t, c.Get(ctx, "a", &s))
}

func TestMemoryCachePatternAndMGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	defer c.Close()

	for _, k := range []string{"snapshot:crypto:BTC/USDT:realtime", "snapshot:crypto:BTC/USDT:minute", "snapshot:stock:AAPL:realtime"} {
		require.NoError(t, c.Set(ctx, k, quote{Price: 1}, 0))
	}

	got, err := MGetTyped[quote](ctx, c, "snapshot:stock:AAPL:realtime", "nope")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, c.DeleteByPattern(ctx, BuildPattern("snapshot:crypto:BTC/USDT:")))
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, "snapshot:stock:AAPL:realtime", GenerateKeyWithParams("snapshot", "stock:AAPL", "realtime"))
}

func TestLayeredMemoryTTLIsCapped(t *testing.T) {
	lc := &LayeredCache{l1TTL: time.Second}
	assert.Equal(t, 500*time.Millisecond, lc.memTTL(500*time.Millisecond))
	assert.Equal(t, time.Second, lc.memTTL(time.Minute))
	assert.Equal(t, time.Second, lc.memTTL(0))
}
