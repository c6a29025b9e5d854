// Package poolstatus tracks whether the free-pool providers are configured
// (a non-empty, non-placeholder API key), backed by the shared cache under
// key "pool_status_v2". Reachability is not probed.
package poolstatus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aiparsehub/psgateway/internal/cache"
	"github.com/aiparsehub/psgateway/internal/gwconfig"
)

// CacheKey is the collaborator-cache key for the shared snapshot.
const CacheKey = "pool_status_v2"

// DefaultTTL bounds how long a refreshed snapshot is trusted before the
// next self-check refresh.
const DefaultTTL = 5 * time.Minute

// Snapshot reports free-pool provider readiness.
type Snapshot struct {
	ProviderAReady bool `json:"provider-a.ready"`
	ProviderBReady bool `json:"provider-b.ready"`
}

// Store reads and refreshes the pool-status snapshot.
type Store struct {
	cache cache.Cache
	cfg   gwconfig.Config
}

// New builds a Store backed by c, falling back to cfg when the cache entry
// is missing or falsy.
func New(c cache.Cache, cfg gwconfig.Config) *Store {
	return &Store{cache: c, cfg: cfg}
}

// Get reads the cached snapshot, computing it from live config on a miss.
// A missing entry is never itself cached — only Refresh persists one.
func (s *Store) Get(ctx context.Context) Snapshot {
	raw, err := s.cache.Get(ctx, CacheKey)
	if err != nil || raw == "" {
		return s.fromConfig()
	}
	var snap Snapshot
	if jsonErr := json.Unmarshal([]byte(raw), &snap); jsonErr != nil {
		return s.fromConfig()
	}
	return snap
}

// Refresh recomputes the snapshot from live config and writes it back to the
// cache, used by the self-check endpoint.
func (s *Store) Refresh(ctx context.Context) Snapshot {
	snap := s.fromConfig()
	if encoded, err := json.Marshal(snap); err == nil {
		_ = s.cache.Set(ctx, CacheKey, string(encoded), DefaultTTL)
	}
	return snap
}

func (s *Store) fromConfig() Snapshot {
	return Snapshot{
		ProviderAReady: s.cfg.ProviderA.Configured(),
		ProviderBReady: s.cfg.ProviderB.Configured(),
	}
}
