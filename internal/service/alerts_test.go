package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/managenergy/dashboard-bfa-go/internal/domain"
	"github.com/managenergy/dashboard-bfa-go/internal/infra/memory"
	"github.com/managenergy/dashboard-bfa-go/internal/infra/observability"
	"github.com/managenergy/dashboard-bfa-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAlertService_ValidatesPayload(t *testing.T) {
	svc := service.NewAlertService(memory.New(), zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		name    string
		payload domain.AlertPayload
	}{
		{"missing category", domain.AlertPayload{Limit: 10, Status: domain.AlertStatusActive}},
		{"zero limit", domain.AlertPayload{CategoryID: "1", Limit: 0, Status: domain.AlertStatusActive}},
		{"negative limit", domain.AlertPayload{CategoryID: "1", Limit: -5, Status: domain.AlertStatusActive}},
		{"bad status", domain.AlertPayload{CategoryID: "1", Limit: 10, Status: "paused"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, "u1", tt.payload)
			var validation *domain.ErrValidation
			assert.ErrorAs(t, err, &validation)
		})
	}
}

func TestAlertService_CRUD(t *testing.T) {
	svc := service.NewAlertService(memory.New(), zap.NewNop())
	ctx := context.Background()

	alert, err := svc.Create(ctx, "u1", domain.AlertPayload{
		CategoryID: "1", Limit: 100, Status: domain.AlertStatusActive, Message: "trop d'électricité",
	})
	require.NoError(t, err)
	require.NotEmpty(t, alert.ID)

	updated, err := svc.Update(ctx, "u1", alert.ID, domain.AlertPayload{
		CategoryID: "1", Limit: 50, Status: domain.AlertStatusInactive,
	})
	require.NoError(t, err)
	assert.Equal(t, 50.0, updated.Limit)
	assert.Equal(t, domain.AlertStatusInactive, updated.Status)

	alerts, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, alerts, 1)

	require.NoError(t, svc.Delete(ctx, "u1", alert.ID))
	alerts, err = svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

// monitorFixture wires a memory backend, a logged-in session cache and an
// alert monitor the way main does.
type monitorFixture struct {
	backend *memory.Backend
	alerts  *service.AlertService
	monitor *service.AlertMonitor
	cache   *service.DataCache
	user    *domain.User
}

func newMonitorFixture(t *testing.T) *monitorFixture {
	t.Helper()

	backend := memory.New()
	user, err := backend.SeedUser("alice@example.com", "password123", true)
	require.NoError(t, err)

	metrics := observability.NewMetrics()
	logger := zap.NewNop()
	registry := service.NewCacheRegistry(backend, metrics, logger, 5*time.Second, time.Hour)
	dc := registry.For(context.Background(), "session-1", user)

	alerts := service.NewAlertService(backend, logger)
	monitor := service.NewAlertMonitor(alerts, registry, metrics, logger, time.Hour)

	return &monitorFixture{backend: backend, alerts: alerts, monitor: monitor, cache: dc, user: user}
}

// logConsumption writes through the session cache, the way a dashboard
// request would, so the monitor sees the record on its next pass.
func (f *monitorFixture) logConsumption(t *testing.T, quantity float64) {
	t.Helper()
	err := f.cache.Create(context.Background(), domain.RecordPayload{
		CategoryID: "1",
		Date:       time.Now().Format("2006-01-02"),
		Quantity:   quantity,
		UnitPrice:  0.2,
	})
	require.NoError(t, err)
}

func (f *monitorFixture) notifications(t *testing.T) []domain.Notification {
	t.Helper()
	notifs, err := f.alerts.Notifications(context.Background(), f.user.ID)
	require.NoError(t, err)
	return notifs
}

func TestAlertMonitor_CreatesNotificationWhenLimitExceeded(t *testing.T) {
	f := newMonitorFixture(t)
	f.logConsumption(t, 150)

	_, err := f.alerts.Create(context.Background(), f.user.ID, domain.AlertPayload{
		CategoryID: "1", Limit: 100, Status: domain.AlertStatusActive,
	})
	require.NoError(t, err)

	f.monitor.Run()

	notifs := f.notifications(t)
	require.Len(t, notifs, 1)
	assert.False(t, notifs[0].Read)
}

func TestAlertMonitor_AtMostOneUnreadPerAlert(t *testing.T) {
	f := newMonitorFixture(t)
	f.logConsumption(t, 150)

	_, err := f.alerts.Create(context.Background(), f.user.ID, domain.AlertPayload{
		CategoryID: "1", Limit: 100, Status: domain.AlertStatusActive,
	})
	require.NoError(t, err)

	f.monitor.Run()
	f.monitor.Run()
	require.Len(t, f.notifications(t), 1, "unread notification suppresses re-firing")

	// once acknowledged, a still-exceeded limit fires again
	require.NoError(t, f.alerts.MarkNotificationRead(context.Background(), f.user.ID, f.notifications(t)[0].ID))
	f.monitor.Run()

	assert.Len(t, f.notifications(t), 2)
}

func TestAlertMonitor_IgnoresInactiveAndUnderLimit(t *testing.T) {
	f := newMonitorFixture(t)
	f.logConsumption(t, 150)

	_, err := f.alerts.Create(context.Background(), f.user.ID, domain.AlertPayload{
		CategoryID: "1", Limit: 100, Status: domain.AlertStatusInactive,
	})
	require.NoError(t, err)
	_, err = f.alerts.Create(context.Background(), f.user.ID, domain.AlertPayload{
		CategoryID: "1", Limit: 1000, Status: domain.AlertStatusActive,
	})
	require.NoError(t, err)

	f.monitor.Run()

	assert.Empty(t, f.notifications(t))
}
