package service_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/managenergy/dashboard-bfa-go/internal/domain"
	"github.com/managenergy/dashboard-bfa-go/internal/infra/observability"
	"github.com/managenergy/dashboard-bfa-go/internal/port"
	"github.com/managenergy/dashboard-bfa-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeBackend is a controllable ConsumptionBackend for cache tests.
type fakeBackend struct {
	mu           sync.Mutex
	categories   []domain.Category
	records      []port.RawConsumption
	nextID       int
	failFetch    bool
	failWrite    bool
	fetchStarted chan struct{} // non-nil: signals, then blocks until release
	release      chan struct{}

	fetchCalls int32
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		categories: []domain.Category{{ID: "1", Name: "Electricité", Unit: "kWh"}},
		nextID:     100,
	}
}

func (f *fakeBackend) FetchCategories(ctx context.Context) ([]domain.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFetch {
		return nil, errors.New("backend down")
	}
	return append([]domain.Category(nil), f.categories...), nil
}

func (f *fakeBackend) FetchConsumptions(ctx context.Context, userID string) ([]port.RawConsumption, error) {
	atomic.AddInt32(&f.fetchCalls, 1)
	if f.fetchStarted != nil {
		f.fetchStarted <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFetch {
		return nil, errors.New("backend down")
	}
	return append([]port.RawConsumption(nil), f.records...), nil
}

func (f *fakeBackend) CreateConsumption(ctx context.Context, userID string, p domain.RecordPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite {
		return &domain.ErrValidation{Field: "value", Message: "rejected"}
	}
	f.nextID++
	f.records = append(f.records, port.RawConsumption{
		ID:         "r" + strconv.Itoa(f.nextID),
		CategoryID: p.CategoryID,
		Quantity:   p.Quantity,
		UnitPrice:  p.UnitPrice,
		Date:       p.Date,
	})
	return nil
}

func (f *fakeBackend) UpdateConsumption(ctx context.Context, userID, id string, p domain.RecordPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite {
		return &domain.ErrValidation{Field: "value", Message: "rejected"}
	}
	for i := range f.records {
		if f.records[i].ID == id {
			f.records[i].CategoryID = p.CategoryID
			f.records[i].Quantity = p.Quantity
			f.records[i].UnitPrice = p.UnitPrice
			f.records[i].Date = p.Date
			return nil
		}
	}
	return &domain.ErrNotFound{Resource: "consumption", ID: id}
}

func (f *fakeBackend) DeleteConsumption(ctx context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		if f.records[i].ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return &domain.ErrNotFound{Resource: "consumption", ID: id}
}

func (f *fakeBackend) fetchCount() int {
	return int(atomic.LoadInt32(&f.fetchCalls))
}

func testUser() *domain.User {
	return &domain.User{ID: "u1", Email: "user@example.com", IsActive: true}
}

func newTestCache(backend port.ConsumptionBackend) *service.DataCache {
	return service.NewDataCache(backend, observability.NewMetrics(), zap.NewNop(), 5*time.Second)
}

func TestDataCache_LoadPopulatesAndNormalizes(t *testing.T) {
	backend := newFakeBackend()
	backend.records = []port.RawConsumption{
		{ID: "r1", CategoryID: "1", Quantity: 10, UnitPrice: 0.2, Date: "2024-03-05T23:30:00Z"},
	}
	dc := newTestCache(backend)
	dc.OnAuthChange(context.Background(), testUser())

	snap := dc.Snapshot()
	require.True(t, snap.Loaded)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "2024-03-05", snap.Items[0].Date)
	assert.Len(t, snap.Categories, 1)
	assert.Empty(t, snap.Err)
}

func TestDataCache_CacheHitSkipsFetch(t *testing.T) {
	backend := newFakeBackend()
	dc := newTestCache(backend)
	ctx := context.Background()
	dc.OnAuthChange(ctx, testUser())

	dc.Load(ctx, false)
	dc.Load(ctx, false)

	assert.Equal(t, 1, backend.fetchCount(), "loaded cache must not re-fetch without force")
}

func TestDataCache_ForceReload(t *testing.T) {
	backend := newFakeBackend()
	dc := newTestCache(backend)
	ctx := context.Background()
	dc.OnAuthChange(ctx, testUser())

	backend.mu.Lock()
	backend.records = append(backend.records, port.RawConsumption{ID: "r2", CategoryID: "1", Quantity: 1, Date: "2024-03-06"})
	backend.mu.Unlock()

	dc.Load(ctx, true)

	assert.Equal(t, 2, backend.fetchCount())
	assert.Len(t, dc.Snapshot().Items, 1)
}

func TestDataCache_FailedLoadKeepsPriorCollections(t *testing.T) {
	backend := newFakeBackend()
	backend.records = []port.RawConsumption{
		{ID: "r1", CategoryID: "1", Quantity: 10, Date: "2024-03-05"},
	}
	dc := newTestCache(backend)
	ctx := context.Background()
	dc.OnAuthChange(ctx, testUser())

	backend.mu.Lock()
	backend.failFetch = true
	backend.mu.Unlock()
	dc.Load(ctx, true)

	snap := dc.Snapshot()
	assert.False(t, snap.Loaded, "failed load leaves the cache unloaded")
	assert.False(t, snap.Loading)
	assert.NotEmpty(t, snap.Err)
	require.Len(t, snap.Items, 1, "prior collections survive a failed load")
	assert.Equal(t, "r1", snap.Items[0].ID)
	assert.Len(t, snap.Categories, 1)
}

func TestDataCache_CreateForcesReload(t *testing.T) {
	backend := newFakeBackend()
	dc := newTestCache(backend)
	ctx := context.Background()
	dc.OnAuthChange(ctx, testUser())

	err := dc.Create(ctx, domain.RecordPayload{CategoryID: "1", Date: "2024-03-06", Quantity: 4, UnitPrice: 0.5})
	require.NoError(t, err)

	snap := dc.Snapshot()
	assert.True(t, snap.Loaded)
	require.Len(t, snap.Items, 1, "cache reflects the write after forced reload")
	assert.Equal(t, 4.0, snap.Items[0].Quantity)
}

func TestDataCache_MutationErrorPropagatesAndMirrors(t *testing.T) {
	backend := newFakeBackend()
	backend.failWrite = true
	dc := newTestCache(backend)
	ctx := context.Background()
	dc.OnAuthChange(ctx, testUser())

	err := dc.Create(ctx, domain.RecordPayload{CategoryID: "1", Date: "2024-03-06", Quantity: 4})

	var validation *domain.ErrValidation
	require.ErrorAs(t, err, &validation)
	assert.NotEmpty(t, dc.Snapshot().Err, "mutation error is mirrored into the ambient error")
}

func TestDataCache_ValidationRejectsBadPayloads(t *testing.T) {
	backend := newFakeBackend()
	dc := newTestCache(backend)
	ctx := context.Background()
	dc.OnAuthChange(ctx, testUser())

	tests := []struct {
		name    string
		payload domain.RecordPayload
	}{
		{"negative quantity", domain.RecordPayload{CategoryID: "1", Date: "2024-03-06", Quantity: -1}},
		{"negative price", domain.RecordPayload{CategoryID: "1", Date: "2024-03-06", UnitPrice: -0.1}},
		{"missing category", domain.RecordPayload{Date: "2024-03-06", Quantity: 1}},
		{"bad date", domain.RecordPayload{CategoryID: "1", Date: "06/03/2024", Quantity: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := dc.Create(ctx, tt.payload)
			var validation *domain.ErrValidation
			assert.ErrorAs(t, err, &validation)
		})
	}
}

func TestDataCache_OnAuthChangeNilClears(t *testing.T) {
	backend := newFakeBackend()
	backend.records = []port.RawConsumption{
		{ID: "r1", CategoryID: "1", Quantity: 10, Date: "2024-03-05"},
	}
	dc := newTestCache(backend)
	ctx := context.Background()
	dc.OnAuthChange(ctx, testUser())
	require.True(t, dc.Snapshot().Loaded)

	dc.OnAuthChange(ctx, nil)

	snap := dc.Snapshot()
	assert.False(t, snap.Loaded)
	assert.Empty(t, snap.Items)
	assert.Empty(t, snap.Categories)
	assert.Nil(t, dc.User())
}

func TestDataCache_SingleInFlightLoad(t *testing.T) {
	backend := newFakeBackend()
	backend.fetchStarted = make(chan struct{}, 1)
	backend.release = make(chan struct{})
	dc := newTestCache(backend)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		dc.OnAuthChange(ctx, testUser())
	}()

	<-backend.fetchStarted

	// a second trigger while the first is still in flight must not fetch
	dc.Load(ctx, true)
	assert.Equal(t, 1, backend.fetchCount())
	assert.True(t, dc.Snapshot().Loading)

	close(backend.release)
	wg.Wait()

	assert.True(t, dc.Snapshot().Loaded)
}

func TestDataCache_WriteWithoutUser(t *testing.T) {
	dc := newTestCache(newFakeBackend())

	err := dc.Create(context.Background(), domain.RecordPayload{CategoryID: "1", Date: "2024-03-06", Quantity: 1})

	var unauthorized *domain.ErrUnauthorized
	assert.ErrorAs(t, err, &unauthorized)
}
