package service

import (
	"context"
	"time"

	"github.com/managenergy/dashboard-bfa-go/internal/domain"
	"github.com/managenergy/dashboard-bfa-go/internal/infra/cache"
	"github.com/managenergy/dashboard-bfa-go/internal/infra/observability"
	"github.com/managenergy/dashboard-bfa-go/internal/port"

	"go.uber.org/zap"
)

// CacheRegistry holds one DataCache per live session. Entries share the
// session TTL, so an expired session loses its cached data together with
// its login, and a fresh cache is built on the next authenticated request.
type CacheRegistry struct {
	backend     port.ConsumptionBackend
	metrics     *observability.Metrics
	logger      *zap.Logger
	loadTimeout time.Duration

	caches *cache.InMemory[*DataCache]
}

// NewCacheRegistry creates a registry whose caches expire after ttl.
func NewCacheRegistry(backend port.ConsumptionBackend, metrics *observability.Metrics, logger *zap.Logger, loadTimeout, ttl time.Duration) *CacheRegistry {
	return &CacheRegistry{
		backend:     backend,
		metrics:     metrics,
		logger:      logger,
		loadTimeout: loadTimeout,
		caches:      cache.New[*DataCache](ttl),
	}
}

// For returns the session's data cache, creating and binding one if the
// session has none yet (first request, or the previous entry expired).
// The TTL is refreshed on every call so active sessions keep their data.
func (r *CacheRegistry) For(ctx context.Context, sessionID string, user *domain.User) *DataCache {
	if dc, ok := r.caches.Get(sessionID); ok {
		r.caches.Set(sessionID, dc)
		return dc
	}

	dc := NewDataCache(r.backend, r.metrics, r.logger, r.loadTimeout)
	r.caches.Set(sessionID, dc)
	dc.OnAuthChange(ctx, user)
	return dc
}

// Drop unbinds and removes the session's cache on logout.
func (r *CacheRegistry) Drop(ctx context.Context, sessionID string) {
	if dc, ok := r.caches.Get(sessionID); ok {
		dc.OnAuthChange(ctx, nil)
	}
	r.caches.Delete(sessionID)
}

// Range calls fn for every live session cache. fn must not call back into
// the registry.
func (r *CacheRegistry) Range(fn func(sessionID string, dc *DataCache)) {
	r.caches.Range(fn)
}
