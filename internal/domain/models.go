// Package domain contains the core data model of the Managenergy dashboard:
// users, categories, consumption records, alerts and notifications, plus the
// request/response shapes exchanged with the SPA.
package domain

import "time"

// User is the authenticated dashboard user.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Category is a named energy type with a measurement unit (e.g. Electricité/kWh).
// Categories are managed outside the dashboard and are read-only here.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Unit string `json:"unit"`
}

// ConsumptionRecord is one logged measurement of quantity and cost for a
// category on a calendar day. Date is a canonical YYYY-MM-DD string (empty
// when the backend sent something unparseable); it deliberately carries no
// time-of-day or timezone so it can round-trip without shifting days.
type ConsumptionRecord struct {
	ID         string  `json:"id"`
	Date       string  `json:"date"`
	CategoryID string  `json:"category_id"`
	Quantity   float64 `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
}

// Total is the derived cost of the record. Never stored, always recomputed.
func (r ConsumptionRecord) Total() float64 {
	return r.Quantity * r.UnitPrice
}

// RecordPayload is the write shape for creating or updating a consumption
// record. The backend assigns the id and owns validation of the category
// reference.
type RecordPayload struct {
	CategoryID string  `json:"category_id"`
	Date       string  `json:"date"`
	Quantity   float64 `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
}

// Alert statuses.
const (
	AlertStatusActive   = "active"
	AlertStatusInactive = "inactive"
)

// Alert is a configured threshold rule for a category: when the current
// month's consumed quantity crosses Limit, a notification is raised.
type Alert struct {
	ID         string  `json:"id"`
	CategoryID string  `json:"category_id"`
	Limit      float64 `json:"limit"`
	Status     string  `json:"status"`
	Message    string  `json:"message"`
}

// AlertPayload is the write shape for alerts.
type AlertPayload struct {
	CategoryID string  `json:"category_id"`
	Limit      float64 `json:"limit"`
	Status     string  `json:"status"`
	Message    string  `json:"message"`
}

// Notification is one occurrence of an alert surfaced to a user. An Alert is
// the rule; a Notification is an instance of that rule firing.
type Notification struct {
	ID        string    `json:"id"`
	AlertID   string    `json:"alert_id"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// ============================================================
// Auth request/response shapes
// ============================================================

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
	User      *User  `json:"user"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ActivateRequest struct {
	Email string `json:"email"`
}

// ============================================================
// Chart shapes (aggregation engine output)
// ============================================================

// SeriesPoint is one chart point: a sortable period key (YYYY-MM-DD or
// YYYY-MM), a display label and the summed value.
type SeriesPoint struct {
	Key   string  `json:"key"`
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Series is a named sequence of points, keys ascending.
type Series struct {
	CategoryID   string        `json:"category_id,omitempty"`
	CategoryName string        `json:"category_name,omitempty"`
	Unit         string        `json:"unit,omitempty"`
	Points       []SeriesPoint `json:"points"`
}

// ChartData is the chart-ready view of the cached records for one set of
// filters: the period options for the grouping controls, a quantity series,
// a cost series and, when no category filter is applied, one quantity
// series per category.
type ChartData struct {
	Periods        []string `json:"periods"`
	SelectedPeriod string   `json:"selected_period"`
	GroupBy        string   `json:"group_by"`
	Quantity       Series   `json:"quantity"`
	Cost           Series   `json:"cost"`
	ByCategory     []Series `json:"by_category,omitempty"`
}

// CacheMetrics is the snapshot returned by GET /v1/metrics/cache.
type CacheMetrics struct {
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	HitRate      float64 `json:"hit_rate"`
	Loads        int64   `json:"loads"`
	LoadFailures int64   `json:"load_failures"`
}

// HealthStatus is the /healthz response.
type HealthStatus struct {
	Status   string          `json:"status"`
	Services []ServiceHealth `json:"services"`
}

type ServiceHealth struct {
	Name          string  `json:"name"`
	Status        string  `json:"status"`
	LatencyMs     int64   `json:"latency_ms"`
	UptimePercent float64 `json:"uptime_percent"`
	LastChecked   string  `json:"last_checked"`
}
