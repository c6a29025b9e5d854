// Package router implements provider selection and silent free-pool
// failover for the parse orchestrator. The chat gateway uses only its CJK
// heuristic (ContainsCJK) and does its own readiness-based selection.
package router

import (
	"context"

	"github.com/aiparsehub/psgateway/internal/gwconfig"
	"github.com/aiparsehub/psgateway/internal/poolstatus"
	"github.com/aiparsehub/psgateway/internal/upstream"
	"go.uber.org/zap"
)

// cjkLow and cjkHigh bound the CJK Unified Ideographs block used to decide
// free-pool provider preference.
const (
	cjkLow  = 0x4E00
	cjkHigh = 0x9FFF
)

// Tier labels carried in a Selection for logging and response metadata.
const (
	TierFree    = "free"
	TierPremium = "premium"
)

// Selection describes which provider served a request.
type Selection struct {
	Provider string
	Tier     string
}

// ErrFreePoolNotConfigured is the sentinel surfaced when neither free-pool
// provider is usable.
const ErrFreePoolNotConfigured = "free_pool_not_configured"

// Call is the signature the router uses to invoke a single provider; it is
// satisfied by a closure around upstream.Client.Call bound to one provider's
// endpoint/key/model.
type Call func(ctx context.Context) upstream.Result

// Router selects a provider tier/instance and drives failover across the
// free pool.
type Router struct {
	cfg    gwconfig.Config
	pool   *poolstatus.Store
	logger *zap.Logger
}

// New builds a Router.
func New(cfg gwconfig.Config, pool *poolstatus.Store, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{cfg: cfg, pool: pool, logger: logger.With(zap.String("component", "router"))}
}

// ContainsCJK reports whether s contains any rune in the CJK Unified
// Ideographs block (U+4E00..U+9FFF).
func ContainsCJK(s string) bool {
	for _, r := range s {
		if r >= cjkLow && r <= cjkHigh {
			return true
		}
	}
	return false
}

// PreferredFreeProvider returns "provider-a" or "provider-b" depending on
// whether text contains CJK characters.
func PreferredFreeProvider(text string) string {
	if ContainsCJK(text) {
		return "provider-a"
	}
	return "provider-b"
}

// Route executes the full selection/failover flow.
// callProviderA and callProviderB invoke the free-pool providers;
// callPremium invokes Premium and is only used when authToken is allow-listed.
func (r *Router) Route(ctx context.Context, authToken, text string, callPremium, callProviderA, callProviderB Call) (Selection, upstream.Result) {
	if authToken != "" && r.isAllowListed(authToken) {
		res := callPremium(ctx)
		if res.OK {
			return Selection{Provider: "premium", Tier: TierPremium}, res
		}
		r.logger.Warn("premium call failed, falling through to free pool", zap.String("error_message", res.ErrorMessage))
	}

	snap := r.pool.Get(ctx)
	preferred := PreferredFreeProvider(text)

	order := []string{"provider-a", "provider-b"}
	if preferred == "provider-b" {
		order = []string{"provider-b", "provider-a"}
	}

	var lastRes upstream.Result
	var lastProvider string
	notConfiguredCount := 0

	for _, id := range order {
		ready := snap.ProviderAReady
		call := callProviderA
		if id == "provider-b" {
			ready = snap.ProviderBReady
			call = callProviderB
		}
		if !ready {
			notConfiguredCount++
			lastProvider = id
			lastRes = upstream.Result{ErrorMessage: "provider_not_configured"}
			continue
		}
		res := call(ctx)
		lastRes = res
		lastProvider = id
		if res.OK {
			return Selection{Provider: id, Tier: TierFree}, res
		}
	}

	if notConfiguredCount == len(order) {
		return Selection{Provider: lastProvider, Tier: TierFree}, upstream.Result{ErrorMessage: ErrFreePoolNotConfigured}
	}
	return Selection{Provider: lastProvider, Tier: TierFree}, lastRes
}

func (r *Router) isAllowListed(token string) bool {
	for _, k := range r.cfg.APIKeys {
		if constantTimeEqual(k, token) {
			return true
		}
	}
	return false
}
