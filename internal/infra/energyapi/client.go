// Package energyapi provides the client for the energy REST backend that
// owns users, categories, consumption records, alerts and notifications.
// The BFF authenticates with a service key and scopes every call to a user.
package energyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/managenergy/dashboard-bfa-go/internal/domain"
	"github.com/managenergy/dashboard-bfa-go/internal/infra/resilience"
	"github.com/managenergy/dashboard-bfa-go/internal/port"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("energyapi")

// Client wraps HTTP calls to the energy backend API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	serviceKey string
	cb         *gobreaker.CircuitBreaker
	bulkhead   *resilience.Bulkhead
	cfg        resilience.Config
	logger     *zap.Logger
}

// NewClient creates an energy backend client.
func NewClient(httpClient *http.Client, baseURL, serviceKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		serviceKey: serviceKey,
		cb:         cb,
		bulkhead:   resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg:        cfg,
		logger:     logger,
	}
}

// doRequest executes an authenticated request against the backend.
// userID may be empty for unscoped calls (categories, auth).
func (c *Client) doRequest(ctx context.Context, method, path, userID string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(buf)
	}

	url := fmt.Sprintf("%s/api/v1%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		c.logger.Error("energyapi: failed to create request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.serviceKey))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("energyapi: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("energyapi: failed to read response body",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, &domain.ErrNotFound{Resource: "resource", ID: path}
	case resp.StatusCode == http.StatusBadRequest:
		return nil, &domain.ErrValidation{Field: "payload", Message: detailMessage(respBody)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &domain.ErrUnauthorized{Message: detailMessage(respBody)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		c.logger.Warn("energyapi: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)),
		)
		return nil, fmt.Errorf("energy api returned status %d: %s", resp.StatusCode, string(respBody))
	}

	c.logger.Debug("energyapi: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	return respBody, nil
}

// call wraps doRequest in the shared resilience path and maps breaker and
// transport failures to domain errors.
func (c *Client) call(ctx context.Context, service, method, path, userID string, payload any) ([]byte, error) {
	var body []byte
	err := resilience.Do(ctx, c.cb, c.bulkhead, c.cfg, func() error {
		var reqErr error
		body, reqErr = c.doRequest(ctx, method, path, userID, payload)
		return reqErr
	})
	if err == nil {
		return body, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &domain.ErrCircuitOpen{Service: service}
	}

	// Backend-reported errors keep their type; transport errors get wrapped.
	var notFound *domain.ErrNotFound
	var validation *domain.ErrValidation
	var unauthorized *domain.ErrUnauthorized
	if errors.As(err, &notFound) || errors.As(err, &validation) || errors.As(err, &unauthorized) {
		return nil, err
	}
	return nil, &domain.ErrExternalService{Service: service, Err: err}
}

// detailMessage extracts the backend's {"detail": "..."} message, falling
// back to the raw body.
func detailMessage(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return string(body)
}

// flexFloat decodes a JSON number or a numeric string. The backend
// serializes decimal columns as strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	if len(data) > 1 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// parseTimestamp decodes the backend's RFC3339 timestamps; zero time on
// anything else.
func parseTimestamp(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ============================================================
// Auth (implements port.AuthBackend)
// ============================================================

type wireUser struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

func (u wireUser) toDomain() *domain.User {
	user := &domain.User{
		ID:       strconv.FormatInt(u.ID, 10),
		Email:    u.Email,
		Role:     u.Role,
		IsActive: u.IsActive,
	}
	user.CreatedAt = parseTimestamp(u.CreatedAt)
	return user
}

func (c *Client) Register(ctx context.Context, email, password string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "EnergyAPI.Register")
	defer span.End()

	body, err := c.call(ctx, "energyapi/auth", http.MethodPost, "/register/", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	var u wireUser
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	return u.toDomain(), nil
}

func (c *Client) Activate(ctx context.Context, email string) error {
	ctx, span := tracer.Start(ctx, "EnergyAPI.Activate")
	defer span.End()

	_, err := c.call(ctx, "energyapi/auth", http.MethodPost, "/activate/", "", map[string]string{
		"email": email,
	})
	return err
}

func (c *Client) Login(ctx context.Context, email, password string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "EnergyAPI.Login")
	defer span.End()

	body, err := c.call(ctx, "energyapi/auth", http.MethodPost, "/login/", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		User wireUser `json:"user"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}
	return resp.User.toDomain(), nil
}

func (c *Client) Logout(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "EnergyAPI.Logout")
	defer span.End()

	_, err := c.call(ctx, "energyapi/auth", http.MethodPost, "/logout/", userID, nil)
	return err
}

func (c *Client) CurrentUser(ctx context.Context, userID string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "EnergyAPI.CurrentUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	body, err := c.call(ctx, "energyapi/auth", http.MethodGet, "/me/", userID, nil)
	if err != nil {
		return nil, err
	}

	var u wireUser
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	return u.toDomain(), nil
}

// ============================================================
// Categories & consumptions (implements port.ConsumptionBackend)
// ============================================================

type wireCategory struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Unit string `json:"unit"`
}

func (c *Client) FetchCategories(ctx context.Context) ([]domain.Category, error) {
	ctx, span := tracer.Start(ctx, "EnergyAPI.FetchCategories")
	defer span.End()

	body, err := c.call(ctx, "energyapi/categories", http.MethodGet, "/categories/", "", nil)
	if err != nil {
		return nil, err
	}

	var rows []wireCategory
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode categories: %w", err)
	}

	categories := make([]domain.Category, 0, len(rows))
	for _, r := range rows {
		categories = append(categories, domain.Category{
			ID:   strconv.FormatInt(r.ID, 10),
			Name: r.Name,
			Unit: r.Unit,
		})
	}
	return categories, nil
}

// wireConsumption maps the backend's consumption row.
type wireConsumption struct {
	ID       int64     `json:"id"`
	Category int64     `json:"category"`
	Value    flexFloat `json:"value"`
	Price    flexFloat `json:"price"`
	Date     string    `json:"date_consommation"`
}

func (c *Client) FetchConsumptions(ctx context.Context, userID string) ([]port.RawConsumption, error) {
	ctx, span := tracer.Start(ctx, "EnergyAPI.FetchConsumptions")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	body, err := c.call(ctx, "energyapi/consumptions", http.MethodGet, "/consommations/", userID, nil)
	if err != nil {
		return nil, err
	}

	var rows []wireConsumption
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode consumptions: %w", err)
	}

	records := make([]port.RawConsumption, 0, len(rows))
	for _, r := range rows {
		records = append(records, port.RawConsumption{
			ID:         strconv.FormatInt(r.ID, 10),
			CategoryID: strconv.FormatInt(r.Category, 10),
			Quantity:   float64(r.Value),
			UnitPrice:  float64(r.Price),
			Date:       r.Date,
		})
	}
	return records, nil
}

// writeConsumptionBody builds the write payload with the backend's own
// field names.
func writeConsumptionBody(p domain.RecordPayload) map[string]any {
	categoryID, _ := strconv.ParseInt(p.CategoryID, 10, 64)
	return map[string]any{
		"category":          categoryID,
		"value":             p.Quantity,
		"price":             p.UnitPrice,
		"date_consommation": p.Date,
	}
}

func (c *Client) CreateConsumption(ctx context.Context, userID string, p domain.RecordPayload) error {
	ctx, span := tracer.Start(ctx, "EnergyAPI.CreateConsumption")
	defer span.End()

	_, err := c.call(ctx, "energyapi/consumptions", http.MethodPost, "/consommations/", userID, writeConsumptionBody(p))
	return err
}

func (c *Client) UpdateConsumption(ctx context.Context, userID, id string, p domain.RecordPayload) error {
	ctx, span := tracer.Start(ctx, "EnergyAPI.UpdateConsumption")
	defer span.End()

	path := fmt.Sprintf("/consommations/%s/", id)
	_, err := c.call(ctx, "energyapi/consumptions", http.MethodPut, path, userID, writeConsumptionBody(p))
	return err
}

func (c *Client) DeleteConsumption(ctx context.Context, userID, id string) error {
	ctx, span := tracer.Start(ctx, "EnergyAPI.DeleteConsumption")
	defer span.End()

	path := fmt.Sprintf("/consommations/%s/", id)
	_, err := c.call(ctx, "energyapi/consumptions", http.MethodDelete, path, userID, nil)
	return err
}

// ============================================================
// Alerts & notifications (implements port.AlertBackend)
// ============================================================

type wireAlert struct {
	ID       int64     `json:"id"`
	Category int64     `json:"category"`
	Limit    flexFloat `json:"limit"`
	Status   string    `json:"status"`
	Message  string    `json:"message"`
}

func (a wireAlert) toDomain() domain.Alert {
	return domain.Alert{
		ID:         strconv.FormatInt(a.ID, 10),
		CategoryID: strconv.FormatInt(a.Category, 10),
		Limit:      float64(a.Limit),
		Status:     a.Status,
		Message:    a.Message,
	}
}

func writeAlertBody(p domain.AlertPayload) map[string]any {
	categoryID, _ := strconv.ParseInt(p.CategoryID, 10, 64)
	return map[string]any{
		"category": categoryID,
		"limit":    p.Limit,
		"status":   p.Status,
		"message":  p.Message,
	}
}

func (c *Client) ListAlerts(ctx context.Context, userID string) ([]domain.Alert, error) {
	ctx, span := tracer.Start(ctx, "EnergyAPI.ListAlerts")
	defer span.End()

	body, err := c.call(ctx, "energyapi/alerts", http.MethodGet, "/alerts/", userID, nil)
	if err != nil {
		return nil, err
	}

	var rows []wireAlert
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode alerts: %w", err)
	}

	alerts := make([]domain.Alert, 0, len(rows))
	for _, r := range rows {
		alerts = append(alerts, r.toDomain())
	}
	return alerts, nil
}

func (c *Client) CreateAlert(ctx context.Context, userID string, p domain.AlertPayload) (*domain.Alert, error) {
	ctx, span := tracer.Start(ctx, "EnergyAPI.CreateAlert")
	defer span.End()

	body, err := c.call(ctx, "energyapi/alerts", http.MethodPost, "/alerts/", userID, writeAlertBody(p))
	if err != nil {
		return nil, err
	}

	var row wireAlert
	if err := json.Unmarshal(body, &row); err != nil {
		return nil, fmt.Errorf("failed to decode alert: %w", err)
	}
	alert := row.toDomain()
	return &alert, nil
}

func (c *Client) UpdateAlert(ctx context.Context, userID, id string, p domain.AlertPayload) (*domain.Alert, error) {
	ctx, span := tracer.Start(ctx, "EnergyAPI.UpdateAlert")
	defer span.End()

	path := fmt.Sprintf("/alerts/%s/", id)
	body, err := c.call(ctx, "energyapi/alerts", http.MethodPut, path, userID, writeAlertBody(p))
	if err != nil {
		return nil, err
	}

	var row wireAlert
	if err := json.Unmarshal(body, &row); err != nil {
		return nil, fmt.Errorf("failed to decode alert: %w", err)
	}
	alert := row.toDomain()
	return &alert, nil
}

func (c *Client) DeleteAlert(ctx context.Context, userID, id string) error {
	ctx, span := tracer.Start(ctx, "EnergyAPI.DeleteAlert")
	defer span.End()

	path := fmt.Sprintf("/alerts/%s/", id)
	_, err := c.call(ctx, "energyapi/alerts", http.MethodDelete, path, userID, nil)
	return err
}

type wireNotification struct {
	ID        int64  `json:"id"`
	Alert     int64  `json:"alert"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

func (c *Client) ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	ctx, span := tracer.Start(ctx, "EnergyAPI.ListNotifications")
	defer span.End()

	body, err := c.call(ctx, "energyapi/notifications", http.MethodGet, "/notifications/", userID, nil)
	if err != nil {
		return nil, err
	}

	var rows []wireNotification
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}

	notifs := make([]domain.Notification, 0, len(rows))
	for _, r := range rows {
		notifs = append(notifs, domain.Notification{
			ID:        strconv.FormatInt(r.ID, 10),
			AlertID:   strconv.FormatInt(r.Alert, 10),
			Read:      r.Read,
			CreatedAt: parseTimestamp(r.CreatedAt),
		})
	}
	return notifs, nil
}

func (c *Client) CreateNotification(ctx context.Context, userID, alertID string) (*domain.Notification, error) {
	ctx, span := tracer.Start(ctx, "EnergyAPI.CreateNotification")
	defer span.End()

	alert, _ := strconv.ParseInt(alertID, 10, 64)
	body, err := c.call(ctx, "energyapi/notifications", http.MethodPost, "/notifications/", userID, map[string]any{
		"alert": alert,
	})
	if err != nil {
		return nil, err
	}

	var row wireNotification
	if err := json.Unmarshal(body, &row); err != nil {
		return nil, fmt.Errorf("failed to decode notification: %w", err)
	}
	return &domain.Notification{
		ID:        strconv.FormatInt(row.ID, 10),
		AlertID:   strconv.FormatInt(row.Alert, 10),
		Read:      row.Read,
		CreatedAt: parseTimestamp(row.CreatedAt),
	}, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, userID, notifID string) error {
	ctx, span := tracer.Start(ctx, "EnergyAPI.MarkNotificationRead")
	defer span.End()

	path := fmt.Sprintf("/notifications/%s/", notifID)
	_, err := c.call(ctx, "energyapi/notifications", http.MethodPatch, path, userID, map[string]any{
		"read": true,
	})
	return err
}
