package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T) *RedisCache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c, err := NewRedisCache(RedisConfig{Addr: mr.Addr()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRedisCache_SetGet(t *testing.T) {
	c := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)
}

func TestRedisCache_Miss(t *testing.T) {
	c := newTestRedisCache(t)
	_, err := c.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_Expiry(t *testing.T) {
	c := newTestRedisCache(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "v", 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)
	_, err := c.Get(ctx, "k")
	require.ErrorIs(t, err, ErrCacheMiss)
}
