// Package service provides the business logic layer of the dashboard BFF:
// the session-scoped data cache, the chart aggregation engine, alerts and
// authentication.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/managenergy/dashboard-bfa-go/internal/domain"
	"github.com/managenergy/dashboard-bfa-go/internal/infra/observability"
	"github.com/managenergy/dashboard-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var dataTracer = otel.Tracer("service/datacache")

// CacheState is the load state of a DataCache.
type CacheState int

const (
	// StateEmpty: nothing loaded (initial, after logout, or after a failed load).
	StateEmpty CacheState = iota
	// StateLoading: a load is in flight; further loads are no-ops.
	StateLoading
	// StateReady: collections reflect the latest successful fetch.
	StateReady
)

// Snapshot is a consistent read of the cache for rendering. A failed load
// keeps the previous collections, so Items/Categories are always renderable
// even when Err is set.
type Snapshot struct {
	Items      []domain.ConsumptionRecord
	Categories []domain.Category
	Loaded     bool
	Loading    bool
	Err        string
}

// DataCache is the session-scoped source of truth for one user's
// consumption records and the category list. Records and categories are
// fetched together once per session and re-fetched after every write.
//
// Only the cache mutates its own state; callers invoke operations and read
// snapshots. All transitions happen under one mutex, and the loading check
// occurs before any network suspension, so two concurrent triggers can
// never both reach the backend.
type DataCache struct {
	backend     port.ConsumptionBackend
	metrics     *observability.Metrics
	logger      *zap.Logger
	loadTimeout time.Duration

	mu         sync.Mutex
	user       *domain.User
	items      []domain.ConsumptionRecord
	categories []domain.Category
	state      CacheState
	lastErr    string
}

// NewDataCache creates an unbound data cache. Bind a user with OnAuthChange.
func NewDataCache(backend port.ConsumptionBackend, metrics *observability.Metrics, logger *zap.Logger, loadTimeout time.Duration) *DataCache {
	return &DataCache{
		backend:     backend,
		metrics:     metrics,
		logger:      logger,
		loadTimeout: loadTimeout,
	}
}

// OnAuthChange binds the cache to a new user (or nil on logout). The old
// collections are dropped either way; a non-nil user triggers the initial
// load immediately, matching the dashboard's load-on-login behavior.
func (dc *DataCache) OnAuthChange(ctx context.Context, user *domain.User) {
	dc.mu.Lock()
	dc.user = user
	dc.items = nil
	dc.categories = nil
	dc.state = StateEmpty
	dc.lastErr = ""
	dc.mu.Unlock()

	if user != nil {
		dc.Load(ctx, false)
	}
}

// User returns the currently bound user, or nil.
func (dc *DataCache) User() *domain.User {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.user
}

// Snapshot returns a copy of the current cache contents and state.
func (dc *DataCache) Snapshot() Snapshot {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	items := make([]domain.ConsumptionRecord, len(dc.items))
	copy(items, dc.items)
	categories := make([]domain.Category, len(dc.categories))
	copy(categories, dc.categories)

	return Snapshot{
		Items:      items,
		Categories: categories,
		Loaded:     dc.state == StateReady,
		Loading:    dc.state == StateLoading,
		Err:        dc.lastErr,
	}
}

// Load populates the cache from the backend. Semantics:
//   - no bound user: clears everything and returns
//   - load already in flight: no-op
//   - loaded and !force: no-op (cache hit)
//   - otherwise: categories and records are fetched concurrently and the
//     collections replaced together, or not at all on failure
//
// Load failures never propagate to the caller; they land in the snapshot's
// Err field so the UI always has a renderable state. Each load runs under
// its own timeout, so a hung backend request cannot pin the cache in the
// loading state forever.
func (dc *DataCache) Load(ctx context.Context, force bool) {
	ctx, span := dataTracer.Start(ctx, "DataCache.Load")
	defer span.End()
	span.SetAttributes(attribute.Bool("force", force))

	dc.mu.Lock()
	if dc.user == nil {
		dc.items = nil
		dc.categories = nil
		dc.state = StateEmpty
		dc.lastErr = ""
		dc.mu.Unlock()
		return
	}
	if dc.state == StateLoading {
		dc.mu.Unlock()
		return
	}
	if dc.state == StateReady && !force {
		dc.metrics.IncrCacheHit("consumptions")
		dc.mu.Unlock()
		return
	}
	userID := dc.user.ID
	dc.state = StateLoading
	dc.mu.Unlock()

	dc.metrics.IncrCacheMiss("consumptions")
	start := time.Now()

	loadCtx, cancel := context.WithTimeout(ctx, dc.loadTimeout)
	defer cancel()

	var (
		categories []domain.Category
		raws       []port.RawConsumption
	)

	g, gCtx := errgroup.WithContext(loadCtx)
	g.Go(func() error {
		c, err := dc.backend.FetchCategories(gCtx)
		if err != nil {
			dc.metrics.IncrExternalError("categories")
			return err
		}
		categories = c
		return nil
	})
	g.Go(func() error {
		r, err := dc.backend.FetchConsumptions(gCtx, userID)
		if err != nil {
			dc.metrics.IncrExternalError("consumptions")
			return err
		}
		raws = r
		return nil
	})
	err := g.Wait()

	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.user == nil || dc.user.ID != userID {
		// Logged out (or rebound) while the fetch was in flight; the result
		// belongs to a dead session.
		return
	}

	if err != nil {
		dc.state = StateEmpty
		dc.lastErr = "failed to load consumption data: " + err.Error()
		dc.metrics.IncrLoad("error")
		dc.logger.Error("data cache load failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return
	}

	items := make([]domain.ConsumptionRecord, 0, len(raws))
	for _, r := range raws {
		items = append(items, domain.ConsumptionRecord{
			ID:         r.ID,
			CategoryID: r.CategoryID,
			Quantity:   r.Quantity,
			UnitPrice:  r.UnitPrice,
			Date:       domain.NormalizeDate(r.Date),
		})
	}

	dc.items = items
	dc.categories = categories
	dc.state = StateReady
	dc.lastErr = ""
	dc.metrics.IncrLoad("ok")
	dc.metrics.RecordRequestDuration("cache_load", time.Since(start))
}

// validateRecordPayload enforces the write constraints the cache can check
// locally. The category reference is backend-owned and validated there.
func validateRecordPayload(p *domain.RecordPayload) error {
	if p.CategoryID == "" {
		return &domain.ErrValidation{Field: "category", Message: "required"}
	}
	if p.Quantity < 0 {
		return &domain.ErrValidation{Field: "quantity", Message: "must be non-negative"}
	}
	if p.UnitPrice < 0 {
		return &domain.ErrValidation{Field: "unit_price", Message: "must be non-negative"}
	}
	normalized := domain.NormalizeDate(p.Date)
	if normalized == "" {
		return &domain.ErrValidation{Field: "date", Message: "must be a calendar date (YYYY-MM-DD)"}
	}
	p.Date = normalized
	return nil
}

// write runs a mutation and forces a reload so the cache reflects
// server-assigned fields. Mutation errors go back to the caller for inline
// display and are mirrored into the ambient error field.
func (dc *DataCache) write(ctx context.Context, op string, fn func(userID string) error) error {
	ctx, span := dataTracer.Start(ctx, op)
	defer span.End()

	dc.mu.Lock()
	if dc.user == nil {
		dc.mu.Unlock()
		return &domain.ErrUnauthorized{}
	}
	userID := dc.user.ID
	dc.mu.Unlock()

	if err := fn(userID); err != nil {
		dc.mu.Lock()
		dc.lastErr = err.Error()
		dc.mu.Unlock()
		return err
	}

	dc.Load(ctx, true)
	return nil
}

// Create logs a new consumption record and reloads the cache.
func (dc *DataCache) Create(ctx context.Context, p domain.RecordPayload) error {
	if err := validateRecordPayload(&p); err != nil {
		return err
	}
	return dc.write(ctx, "DataCache.Create", func(userID string) error {
		return dc.backend.CreateConsumption(ctx, userID, p)
	})
}

// Update replaces an existing record by id and reloads the cache.
func (dc *DataCache) Update(ctx context.Context, id string, p domain.RecordPayload) error {
	if err := validateRecordPayload(&p); err != nil {
		return err
	}
	return dc.write(ctx, "DataCache.Update", func(userID string) error {
		return dc.backend.UpdateConsumption(ctx, userID, id, p)
	})
}

// Delete removes a record by id and reloads the cache.
func (dc *DataCache) Delete(ctx context.Context, id string) error {
	return dc.write(ctx, "DataCache.Delete", func(userID string) error {
		return dc.backend.DeleteConsumption(ctx, userID, id)
	})
}
