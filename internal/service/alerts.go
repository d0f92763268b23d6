package service

import (
	"context"
	"time"

	"github.com/managenergy/dashboard-bfa-go/internal/domain"
	"github.com/managenergy/dashboard-bfa-go/internal/infra/observability"
	"github.com/managenergy/dashboard-bfa-go/internal/port"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var alertTracer = otel.Tracer("service/alerts")

// AlertService proxies alert and notification operations to the backend,
// enforcing threshold rules locally.
type AlertService struct {
	backend port.AlertBackend
	logger  *zap.Logger
}

func NewAlertService(backend port.AlertBackend, logger *zap.Logger) *AlertService {
	return &AlertService{backend: backend, logger: logger}
}

func validateAlertPayload(p domain.AlertPayload) error {
	if p.CategoryID == "" {
		return &domain.ErrValidation{Field: "category", Message: "required"}
	}
	if p.Limit <= 0 {
		return &domain.ErrValidation{Field: "limit", Message: "must be positive"}
	}
	if p.Status != domain.AlertStatusActive && p.Status != domain.AlertStatusInactive {
		return &domain.ErrValidation{Field: "status", Message: "must be active or inactive"}
	}
	return nil
}

func (s *AlertService) List(ctx context.Context, userID string) ([]domain.Alert, error) {
	ctx, span := alertTracer.Start(ctx, "AlertService.List")
	defer span.End()
	return s.backend.ListAlerts(ctx, userID)
}

func (s *AlertService) Create(ctx context.Context, userID string, p domain.AlertPayload) (*domain.Alert, error) {
	ctx, span := alertTracer.Start(ctx, "AlertService.Create")
	defer span.End()

	if err := validateAlertPayload(p); err != nil {
		return nil, err
	}
	return s.backend.CreateAlert(ctx, userID, p)
}

func (s *AlertService) Update(ctx context.Context, userID, id string, p domain.AlertPayload) (*domain.Alert, error) {
	ctx, span := alertTracer.Start(ctx, "AlertService.Update")
	defer span.End()

	if err := validateAlertPayload(p); err != nil {
		return nil, err
	}
	return s.backend.UpdateAlert(ctx, userID, id, p)
}

func (s *AlertService) Delete(ctx context.Context, userID, id string) error {
	ctx, span := alertTracer.Start(ctx, "AlertService.Delete")
	defer span.End()
	return s.backend.DeleteAlert(ctx, userID, id)
}

func (s *AlertService) Notifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	ctx, span := alertTracer.Start(ctx, "AlertService.Notifications")
	defer span.End()
	return s.backend.ListNotifications(ctx, userID)
}

func (s *AlertService) CreateNotification(ctx context.Context, userID, alertID string) (*domain.Notification, error) {
	ctx, span := alertTracer.Start(ctx, "AlertService.CreateNotification")
	defer span.End()
	return s.backend.CreateNotification(ctx, userID, alertID)
}

func (s *AlertService) MarkNotificationRead(ctx context.Context, userID, notifID string) error {
	ctx, span := alertTracer.Start(ctx, "AlertService.MarkNotificationRead")
	defer span.End()
	return s.backend.MarkNotificationRead(ctx, userID, notifID)
}

// AlertMonitor periodically checks every logged-in user's current-month
// consumption against their active alerts and raises a notification when a
// limit is exceeded. At most one unread notification exists per alert.
type AlertMonitor struct {
	alerts   *AlertService
	registry *CacheRegistry
	metrics  *observability.Metrics
	logger   *zap.Logger
	interval time.Duration
	cron     *cron.Cron
}

func NewAlertMonitor(alerts *AlertService, registry *CacheRegistry, metrics *observability.Metrics, logger *zap.Logger, interval time.Duration) *AlertMonitor {
	return &AlertMonitor{
		alerts:   alerts,
		registry: registry,
		metrics:  metrics,
		logger:   logger,
		interval: interval,
	}
}

// Start schedules the periodic check.
func (m *AlertMonitor) Start() {
	m.cron = cron.New()
	_, err := m.cron.AddFunc("@every "+m.interval.String(), m.Run)
	if err != nil {
		m.logger.Error("failed to schedule alert monitor", zap.Error(err))
		return
	}
	m.cron.Start()
	m.logger.Info("alert monitor started", zap.Duration("interval", m.interval))
}

// Stop halts the schedule and waits for a running check to finish.
func (m *AlertMonitor) Stop() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
}

// Run performs one check pass over all live sessions.
func (m *AlertMonitor) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx, span := alertTracer.Start(ctx, "AlertMonitor.Run")
	defer span.End()

	// One cache per user; a user logged in from several sessions is
	// checked once.
	byUser := make(map[string]*DataCache)
	m.registry.Range(func(_ string, dc *DataCache) {
		if u := dc.User(); u != nil {
			byUser[u.ID] = dc
		}
	})

	now := time.Now()
	for userID, dc := range byUser {
		if err := m.checkUser(ctx, userID, dc, now); err != nil {
			m.logger.Warn("alert check failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}
}

func (m *AlertMonitor) checkUser(ctx context.Context, userID string, dc *DataCache, now time.Time) error {
	dc.Load(ctx, false)
	snap := dc.Snapshot()
	if !snap.Loaded {
		return nil // nothing to check against
	}

	alerts, err := m.alerts.List(ctx, userID)
	if err != nil {
		return err
	}
	notifs, err := m.alerts.Notifications(ctx, userID)
	if err != nil {
		return err
	}

	unread := make(map[string]bool)
	for _, n := range notifs {
		if !n.Read {
			unread[n.AlertID] = true
		}
	}

	totals := CurrentMonthTotals(snap.Items, now)
	for _, a := range alerts {
		if a.Status != domain.AlertStatusActive || unread[a.ID] {
			continue
		}
		if totals[a.CategoryID] <= a.Limit {
			continue
		}
		if _, err := m.alerts.CreateNotification(ctx, userID, a.ID); err != nil {
			m.logger.Warn("failed to create notification",
				zap.String("alert_id", a.ID),
				zap.Error(err),
			)
			continue
		}
		m.metrics.IncrNotificationCreated()
		m.logger.Info("consumption limit exceeded",
			zap.String("user_id", userID),
			zap.String("category_id", a.CategoryID),
			zap.Float64("total", totals[a.CategoryID]),
			zap.Float64("limit", a.Limit),
		)
	}
	return nil
}
