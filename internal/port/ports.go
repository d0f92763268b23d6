// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/managenergy/dashboard-bfa-go/internal/domain"
)

// RawConsumption is the wire shape of a consumption record as the energy
// backend returns it. The date field may be a bare calendar date or a full
// timestamp; the data cache normalizes it before the record becomes visible.
type RawConsumption struct {
	ID         string
	CategoryID string
	Quantity   float64
	UnitPrice  float64
	Date       string
}

// AuthBackend handles account lifecycle against the energy backend.
type AuthBackend interface {
	Register(ctx context.Context, email, password string) (*domain.User, error)
	Activate(ctx context.Context, email string) error
	Login(ctx context.Context, email, password string) (*domain.User, error)
	Logout(ctx context.Context, userID string) error
	CurrentUser(ctx context.Context, userID string) (*domain.User, error)
}

// ConsumptionBackend provides categories and consumption record CRUD.
type ConsumptionBackend interface {
	FetchCategories(ctx context.Context) ([]domain.Category, error)
	FetchConsumptions(ctx context.Context, userID string) ([]RawConsumption, error)
	CreateConsumption(ctx context.Context, userID string, p domain.RecordPayload) error
	UpdateConsumption(ctx context.Context, userID, id string, p domain.RecordPayload) error
	DeleteConsumption(ctx context.Context, userID, id string) error
}

// AlertBackend provides alert and notification CRUD.
type AlertBackend interface {
	ListAlerts(ctx context.Context, userID string) ([]domain.Alert, error)
	CreateAlert(ctx context.Context, userID string, p domain.AlertPayload) (*domain.Alert, error)
	UpdateAlert(ctx context.Context, userID, id string, p domain.AlertPayload) (*domain.Alert, error)
	DeleteAlert(ctx context.Context, userID, id string) error

	ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error)
	CreateNotification(ctx context.Context, userID, alertID string) (*domain.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notifID string) error
}

// EnergyBackend is the full backend collaborator.
type EnergyBackend interface {
	AuthBackend
	ConsumptionBackend
	AlertBackend
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// SessionStore keeps the opaque current-user marker for each browser
// session. Injected so tests can substitute an in-memory stub.
type SessionStore interface {
	Get(sessionID string) (*domain.User, bool)
	Set(sessionID string, user *domain.User)
	Clear(sessionID string)
	Len() int
}
