package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aiparsehub/psgateway/internal/cache"
)

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	l := New(cache.NewInMemory(), 2)
	ctx := context.Background()

	r1, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.True(t, r1.Allowed)

	r2, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.True(t, r2.Allowed)

	r3, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.False(t, r3.Allowed, "third request in the same minute must be rejected")
}

func TestLimiter_PerIPIsolation(t *testing.T) {
	l := New(cache.NewInMemory(), 1)
	ctx := context.Background()

	r1, err := l.Allow(ctx, "1.1.1.1")
	require.NoError(t, err)
	require.True(t, r1.Allowed)

	r2, err := l.Allow(ctx, "2.2.2.2")
	require.NoError(t, err)
	require.True(t, r2.Allowed, "a different IP has its own bucket")
}

func TestClientIP_Precedence(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("CF-Connecting-IP", "9.9.9.9")
	r.Header.Set("X-Real-IP", "8.8.8.8")
	r.Header.Set("X-Forwarded-For", "7.7.7.7, 6.6.6.6")
	require.Equal(t, "9.9.9.9", ClientIP(r))

	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("X-Real-IP", "8.8.8.8")
	r2.Header.Set("X-Forwarded-For", "7.7.7.7, 6.6.6.6")
	require.Equal(t, "8.8.8.8", ClientIP(r2))

	r3 := httptest.NewRequest(http.MethodGet, "/", nil)
	r3.Header.Set("X-Forwarded-For", "7.7.7.7, 6.6.6.6")
	require.Equal(t, "7.7.7.7", ClientIP(r3))

	r4 := httptest.NewRequest(http.MethodGet, "/", nil)
	r4.RemoteAddr = "5.5.5.5:1234"
	require.Equal(t, "5.5.5.5", ClientIP(r4))
}
