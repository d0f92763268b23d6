// Package memory implements the energy backend ports in memory. It backs
// the demo mode (no ENERGY_API_URL configured) and the test suites.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/managenergy/dashboard-bfa-go/internal/domain"
	"github.com/managenergy/dashboard-bfa-go/internal/port"

	"golang.org/x/crypto/bcrypt"
)

type userRecord struct {
	user         domain.User
	passwordHash []byte
}

type consumptionRecord struct {
	userID string
	raw    port.RawConsumption
}

type alertRecord struct {
	userID string
	alert  domain.Alert
}

type notificationRecord struct {
	userID string
	notif  domain.Notification
}

// Backend is an in-memory energy backend with server-assigned ids.
type Backend struct {
	mu sync.Mutex

	nextID        int64
	users         map[string]*userRecord // keyed by email
	categories    []domain.Category
	consumptions  map[string]*consumptionRecord
	alerts        map[string]*alertRecord
	notifications map[string]*notificationRecord
}

// New creates an empty in-memory backend with the default category set.
func New() *Backend {
	b := &Backend{
		nextID:        1,
		users:         make(map[string]*userRecord),
		consumptions:  make(map[string]*consumptionRecord),
		alerts:        make(map[string]*alertRecord),
		notifications: make(map[string]*notificationRecord),
	}
	b.categories = []domain.Category{
		{ID: b.allocID(), Name: "Electricité", Unit: "kWh"},
		{ID: b.allocID(), Name: "Gaz", Unit: "m³"},
		{ID: b.allocID(), Name: "Eau", Unit: "m³"},
	}
	return b
}

// NewDemo creates a backend seeded with an activated demo account.
func NewDemo() *Backend {
	b := New()
	_, _ = b.SeedUser("demo@managenergy.local", "demo1234", true)
	return b
}

// SeedUser registers and optionally activates a user directly, bypassing the
// activation flow. Used by demo mode and tests.
func (b *Backend) SeedUser(email, password string, active bool) (*domain.User, error) {
	user, err := b.Register(context.Background(), email, password)
	if err != nil {
		return nil, err
	}
	if active {
		if err := b.Activate(context.Background(), email); err != nil {
			return nil, err
		}
		user.IsActive = true
	}
	return user, nil
}

func (b *Backend) allocID() string {
	id := b.nextID
	b.nextID++
	return strconv.FormatInt(id, 10)
}

// ============================================================
// Auth
// ============================================================

func (b *Backend) Register(ctx context.Context, email, password string) (*domain.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if email == "" || password == "" {
		return nil, &domain.ErrValidation{Field: "email", Message: "email and password are required"}
	}
	if _, exists := b.users[email]; exists {
		return nil, &domain.ErrConflict{Message: fmt.Sprintf("account already exists: %s", email)}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := domain.User{
		ID:        b.allocID(),
		Email:     email,
		Role:      "user",
		IsActive:  false,
		CreatedAt: time.Now().UTC(),
	}
	b.users[email] = &userRecord{user: user, passwordHash: hash}

	out := user
	return &out, nil
}

func (b *Backend) Activate(ctx context.Context, email string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.users[email]
	if !ok {
		return &domain.ErrNotFound{Resource: "user", ID: email}
	}
	rec.user.IsActive = true
	return nil
}

func (b *Backend) Login(ctx context.Context, email, password string) (*domain.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.users[email]
	if !ok {
		return nil, &domain.ErrUnauthorized{Message: "invalid credentials"}
	}
	if err := bcrypt.CompareHashAndPassword(rec.passwordHash, []byte(password)); err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid credentials"}
	}
	if !rec.user.IsActive {
		return nil, &domain.ErrUnauthorized{Message: "account not activated"}
	}

	out := rec.user
	return &out, nil
}

func (b *Backend) Logout(ctx context.Context, userID string) error {
	return nil // sessions live in the BFF, nothing to do backend-side
}

func (b *Backend) CurrentUser(ctx context.Context, userID string) (*domain.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, rec := range b.users {
		if rec.user.ID == userID {
			out := rec.user
			return &out, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "user", ID: userID}
}

// ============================================================
// Categories & consumptions
// ============================================================

func (b *Backend) FetchCategories(ctx context.Context) ([]domain.Category, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]domain.Category, len(b.categories))
	copy(out, b.categories)
	return out, nil
}

func (b *Backend) FetchConsumptions(ctx context.Context, userID string) ([]port.RawConsumption, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]port.RawConsumption, 0)
	for _, rec := range b.consumptions {
		if rec.userID == userID {
			out = append(out, rec.raw)
		}
	}
	return out, nil
}

func (b *Backend) validateConsumption(p domain.RecordPayload) error {
	found := false
	for _, c := range b.categories {
		if c.ID == p.CategoryID {
			found = true
			break
		}
	}
	if !found {
		return &domain.ErrValidation{Field: "category", Message: fmt.Sprintf("unknown category: %s", p.CategoryID)}
	}
	if p.Quantity < 0 {
		return &domain.ErrValidation{Field: "value", Message: "must be non-negative"}
	}
	if p.UnitPrice < 0 {
		return &domain.ErrValidation{Field: "price", Message: "must be non-negative"}
	}
	return nil
}

func (b *Backend) CreateConsumption(ctx context.Context, userID string, p domain.RecordPayload) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.validateConsumption(p); err != nil {
		return err
	}

	id := b.allocID()
	b.consumptions[id] = &consumptionRecord{
		userID: userID,
		raw: port.RawConsumption{
			ID:         id,
			CategoryID: p.CategoryID,
			Quantity:   p.Quantity,
			UnitPrice:  p.UnitPrice,
			Date:       p.Date,
		},
	}
	return nil
}

func (b *Backend) UpdateConsumption(ctx context.Context, userID, id string, p domain.RecordPayload) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.consumptions[id]
	if !ok || rec.userID != userID {
		return &domain.ErrNotFound{Resource: "consumption", ID: id}
	}
	if err := b.validateConsumption(p); err != nil {
		return err
	}

	rec.raw.CategoryID = p.CategoryID
	rec.raw.Quantity = p.Quantity
	rec.raw.UnitPrice = p.UnitPrice
	rec.raw.Date = p.Date
	return nil
}

func (b *Backend) DeleteConsumption(ctx context.Context, userID, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.consumptions[id]
	if !ok || rec.userID != userID {
		return &domain.ErrNotFound{Resource: "consumption", ID: id}
	}
	delete(b.consumptions, id)
	return nil
}

// ============================================================
// Alerts & notifications
// ============================================================

func (b *Backend) ListAlerts(ctx context.Context, userID string) ([]domain.Alert, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]domain.Alert, 0)
	for _, rec := range b.alerts {
		if rec.userID == userID {
			out = append(out, rec.alert)
		}
	}
	return out, nil
}

func (b *Backend) CreateAlert(ctx context.Context, userID string, p domain.AlertPayload) (*domain.Alert, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	alert := domain.Alert{
		ID:         b.allocID(),
		CategoryID: p.CategoryID,
		Limit:      p.Limit,
		Status:     p.Status,
		Message:    p.Message,
	}
	b.alerts[alert.ID] = &alertRecord{userID: userID, alert: alert}

	out := alert
	return &out, nil
}

func (b *Backend) UpdateAlert(ctx context.Context, userID, id string, p domain.AlertPayload) (*domain.Alert, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.alerts[id]
	if !ok || rec.userID != userID {
		return nil, &domain.ErrNotFound{Resource: "alert", ID: id}
	}

	rec.alert.CategoryID = p.CategoryID
	rec.alert.Limit = p.Limit
	rec.alert.Status = p.Status
	rec.alert.Message = p.Message

	out := rec.alert
	return &out, nil
}

func (b *Backend) DeleteAlert(ctx context.Context, userID, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.alerts[id]
	if !ok || rec.userID != userID {
		return &domain.ErrNotFound{Resource: "alert", ID: id}
	}
	delete(b.alerts, id)
	return nil
}

func (b *Backend) ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]domain.Notification, 0)
	for _, rec := range b.notifications {
		if rec.userID == userID {
			out = append(out, rec.notif)
		}
	}
	return out, nil
}

func (b *Backend) CreateNotification(ctx context.Context, userID, alertID string) (*domain.Notification, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.alerts[alertID]; !ok {
		return nil, &domain.ErrNotFound{Resource: "alert", ID: alertID}
	}

	notif := domain.Notification{
		ID:        b.allocID(),
		AlertID:   alertID,
		Read:      false,
		CreatedAt: time.Now().UTC(),
	}
	b.notifications[notif.ID] = &notificationRecord{userID: userID, notif: notif}

	out := notif
	return &out, nil
}

func (b *Backend) MarkNotificationRead(ctx context.Context, userID, notifID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.notifications[notifID]
	if !ok || rec.userID != userID {
		return &domain.ErrNotFound{Resource: "notification", ID: notifID}
	}
	rec.notif.Read = true
	return nil
}
