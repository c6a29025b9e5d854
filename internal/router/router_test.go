package router

import (
	"context"
	"testing"

	"github.com/aiparsehub/psgateway/internal/cache"
	"github.com/aiparsehub/psgateway/internal/gwconfig"
	"github.com/aiparsehub/psgateway/internal/poolstatus"
	"github.com/aiparsehub/psgateway/internal/upstream"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, apiKeys []string) *Router {
	t.Helper()
	cfg := gwconfig.Config{
		APIKeys:   apiKeys,
		ProviderA: gwconfig.ProviderConfig{ID: "provider-a", APIKey: "a-key"},
		ProviderB: gwconfig.ProviderConfig{ID: "provider-b", APIKey: "b-key"},
		Premium:   gwconfig.ProviderConfig{ID: "premium", APIKey: "p-key"},
	}
	store := poolstatus.New(cache.NewInMemory(), cfg)
	return New(cfg, store, nil)
}

func ok(provider string) upstream.Result {
	return upstream.Result{OK: true, Model: provider}
}

func fail(msg string) upstream.Result {
	return upstream.Result{ErrorMessage: msg}
}

func TestContainsCJK(t *testing.T) {
	require.True(t, ContainsCJK("hello 世界"))
	require.False(t, ContainsCJK("hello world"))
}

func TestPreferredFreeProvider(t *testing.T) {
	require.Equal(t, "provider-a", PreferredFreeProvider("你好"))
	require.Equal(t, "provider-b", PreferredFreeProvider("hello"))
}

func TestRoute_PremiumSucceedsWhenAllowListed(t *testing.T) {
	r := newTestRouter(t, []string{"secret-token"})
	sel, res := r.Route(context.Background(), "secret-token", "hello", func(ctx context.Context) upstream.Result {
		return ok("premium")
	}, nil, nil)
	require.Equal(t, Selection{Provider: "premium", Tier: TierPremium}, sel)
	require.True(t, res.OK)
}

func TestRoute_PremiumFailureFallsThroughToFreePool(t *testing.T) {
	r := newTestRouter(t, []string{"secret-token"})
	sel, res := r.Route(context.Background(), "secret-token", "hello", func(ctx context.Context) upstream.Result {
		return fail("premium_down")
	}, func(ctx context.Context) upstream.Result {
		return fail("provider_a_down")
	}, func(ctx context.Context) upstream.Result {
		return ok("provider-b")
	})
	require.Equal(t, Selection{Provider: "provider-b", Tier: TierFree}, sel)
	require.True(t, res.OK)
}

func TestRoute_UnlistedTokenGoesStraightToFreePool(t *testing.T) {
	r := newTestRouter(t, []string{"secret-token"})
	premiumCalled := false
	sel, res := r.Route(context.Background(), "wrong-token", "hello", func(ctx context.Context) upstream.Result {
		premiumCalled = true
		return ok("premium")
	}, nil, func(ctx context.Context) upstream.Result {
		return ok("provider-b")
	})
	require.False(t, premiumCalled)
	require.Equal(t, "provider-b", sel.Provider)
	require.True(t, res.OK)
}

func TestRoute_CJKPrefersProviderA(t *testing.T) {
	r := newTestRouter(t, nil)
	var called []string
	sel, res := r.Route(context.Background(), "", "你好世界", nil, func(ctx context.Context) upstream.Result {
		called = append(called, "provider-a")
		return ok("provider-a")
	}, func(ctx context.Context) upstream.Result {
		called = append(called, "provider-b")
		return ok("provider-b")
	})
	require.Equal(t, []string{"provider-a"}, called)
	require.Equal(t, "provider-a", sel.Provider)
	require.True(t, res.OK)
}

func TestRoute_BothFreeProvidersNotConfigured(t *testing.T) {
	cfg := gwconfig.Config{
		ProviderA: gwconfig.ProviderConfig{ID: "provider-a"},
		ProviderB: gwconfig.ProviderConfig{ID: "provider-b"},
	}
	store := poolstatus.New(cache.NewInMemory(), cfg)
	r := New(cfg, store, nil)

	_, res := r.Route(context.Background(), "", "hello", nil, func(ctx context.Context) upstream.Result {
		t.Fatal("provider-a should not be called when not configured")
		return upstream.Result{}
	}, func(ctx context.Context) upstream.Result {
		t.Fatal("provider-b should not be called when not configured")
		return upstream.Result{}
	})
	require.Equal(t, ErrFreePoolNotConfigured, res.ErrorMessage)
}

func TestRoute_BothFreeProvidersFailReturnsLastError(t *testing.T) {
	r := newTestRouter(t, nil)
	// "hello world" has no CJK, so provider-b is tried first and provider-a
	// last; the last attempt's error is what should surface.
	_, res := r.Route(context.Background(), "", "hello world", nil, func(ctx context.Context) upstream.Result {
		return fail("provider_a_error")
	}, func(ctx context.Context) upstream.Result {
		return fail("provider_b_error")
	})
	require.Equal(t, "provider_a_error", res.ErrorMessage)
}
