package handler

import (
	"net/http"
	"time"

	"github.com/managenergy/dashboard-bfa-go/internal/domain"
	"github.com/managenergy/dashboard-bfa-go/internal/infra/observability"
	"github.com/managenergy/dashboard-bfa-go/internal/port"
	"github.com/managenergy/dashboard-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
// Routes follow the API contract of the energy dashboard SPA.
func NewRouter(authSvc *service.AuthService, alertSvc *service.AlertService, registry *service.CacheRegistry, backend port.EnergyBackend, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(backend, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// Public auth endpoints
		r.Post("/auth/register", registerHandler(authSvc, logger))
		r.Post("/auth/activate", activateHandler(authSvc, logger))
		r.Post("/auth/login", loginHandler(authSvc, logger))

		// Everything below requires a live session
		r.Group(func(r chi.Router) {
			r.Use(SessionAuthMiddleware(authSvc, logger))

			r.Post("/auth/logout", logoutHandler(authSvc, logger))
			r.Get("/auth/me", meHandler(authSvc, logger))

			// Cached dashboard data
			r.Get("/categories", categoriesHandler(registry, logger))
			r.Get("/consumptions", listConsumptionsHandler(registry, logger))
			r.Post("/consumptions", createConsumptionHandler(registry, logger))
			r.Put("/consumptions/{id}", updateConsumptionHandler(registry, logger))
			r.Delete("/consumptions/{id}", deleteConsumptionHandler(registry, logger))
			r.Post("/consumptions/refresh", refreshHandler(registry, logger))

			// Chart aggregations
			r.Get("/charts", chartsHandler(registry, logger))

			// Alerts & notifications
			r.Get("/alerts", listAlertsHandler(alertSvc, logger))
			r.Post("/alerts", createAlertHandler(alertSvc, logger))
			r.Put("/alerts/{id}", updateAlertHandler(alertSvc, logger))
			r.Delete("/alerts/{id}", deleteAlertHandler(alertSvc, logger))
			r.Get("/notifications", listNotificationsHandler(alertSvc, logger))
			r.Post("/notifications", createNotificationHandler(alertSvc, logger))
			r.Post("/notifications/{id}/read", markNotificationReadHandler(alertSvc, logger))

			// Cache metrics snapshot
			r.Get("/metrics/cache", cacheMetricsHandler(metrics))
		})
	})

	return r
}

// ============================================================
// Auth
// ============================================================

func registerHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/register")
		defer span.End()

		var req domain.RegisterRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		user, err := authSvc.Register(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, user)
	}
}

func activateHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/activate")
		defer span.End()

		var req domain.ActivateRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if err := authSvc.Activate(ctx, req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "activated"})
	}
}

func loginHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/login")
		defer span.End()

		var req domain.LoginRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		resp, err := authSvc.Login(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func logoutHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/logout")
		defer span.End()

		user := UserFromContext(ctx)
		if err := authSvc.Logout(ctx, SessionIDFromContext(ctx), user.ID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
	}
}

func meHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/auth/me")
		defer span.End()

		user, err := authSvc.CurrentUser(ctx, SessionIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

// ============================================================
// Dashboard data (session cache)
// ============================================================

// sessionCache resolves the request's data cache from the registry.
func sessionCache(r *http.Request, registry *service.CacheRegistry) *service.DataCache {
	ctx := r.Context()
	return registry.For(ctx, SessionIDFromContext(ctx), UserFromContext(ctx))
}

type snapshotResponse struct {
	Items      []domain.ConsumptionRecord `json:"items"`
	Categories []domain.Category          `json:"categories"`
	Loaded     bool                       `json:"loaded"`
	Loading    bool                       `json:"loading"`
	Error      string                     `json:"error,omitempty"`
}

func toSnapshotResponse(snap service.Snapshot) snapshotResponse {
	return snapshotResponse{
		Items:      snap.Items,
		Categories: snap.Categories,
		Loaded:     snap.Loaded,
		Loading:    snap.Loading,
		Error:      snap.Err,
	}
}

func categoriesHandler(registry *service.CacheRegistry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/categories")
		defer span.End()

		dc := sessionCache(r, registry)
		dc.Load(ctx, false)
		writeJSON(w, http.StatusOK, dc.Snapshot().Categories)
	}
}

func listConsumptionsHandler(registry *service.CacheRegistry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/consumptions")
		defer span.End()

		dc := sessionCache(r, registry)
		dc.Load(ctx, false)
		writeJSON(w, http.StatusOK, toSnapshotResponse(dc.Snapshot()))
	}
}

func createConsumptionHandler(registry *service.CacheRegistry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/consumptions")
		defer span.End()

		var payload domain.RecordPayload
		if err := decodeJSON(r, &payload); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		dc := sessionCache(r, registry)
		if err := dc.Create(ctx, payload); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, toSnapshotResponse(dc.Snapshot()))
	}
}

func updateConsumptionHandler(registry *service.CacheRegistry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/consumptions/{id}")
		defer span.End()

		var payload domain.RecordPayload
		if err := decodeJSON(r, &payload); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		dc := sessionCache(r, registry)
		if err := dc.Update(ctx, chi.URLParam(r, "id"), payload); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, toSnapshotResponse(dc.Snapshot()))
	}
}

func deleteConsumptionHandler(registry *service.CacheRegistry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/consumptions/{id}")
		defer span.End()

		dc := sessionCache(r, registry)
		if err := dc.Delete(ctx, chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, toSnapshotResponse(dc.Snapshot()))
	}
}

func refreshHandler(registry *service.CacheRegistry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/consumptions/refresh")
		defer span.End()

		dc := sessionCache(r, registry)
		dc.Load(ctx, true)
		writeJSON(w, http.StatusOK, toSnapshotResponse(dc.Snapshot()))
	}
}

// ============================================================
// Charts
// ============================================================

func chartsHandler(registry *service.CacheRegistry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/charts")
		defer span.End()

		groupBy := r.URL.Query().Get("group_by")
		if groupBy != "" && groupBy != service.GroupByDay && groupBy != service.GroupByMonth {
			handleServiceError(w, &domain.ErrValidation{Field: "group_by", Message: "must be day or month"}, logger)
			return
		}

		dc := sessionCache(r, registry)
		dc.Load(ctx, false)

		data := service.BuildChartData(dc.Snapshot(), service.ChartOptions{
			CategoryFilter: r.URL.Query().Get("category"),
			GroupBy:        groupBy,
			Period:         r.URL.Query().Get("period"),
			Now:            time.Now(),
		})
		writeJSON(w, http.StatusOK, data)
	}
}

// ============================================================
// Alerts & notifications
// ============================================================

func listAlertsHandler(alertSvc *service.AlertService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/alerts")
		defer span.End()

		alerts, err := alertSvc.List(ctx, UserFromContext(ctx).ID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, alerts)
	}
}

func createAlertHandler(alertSvc *service.AlertService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/alerts")
		defer span.End()

		var payload domain.AlertPayload
		if err := decodeJSON(r, &payload); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		alert, err := alertSvc.Create(ctx, UserFromContext(ctx).ID, payload)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, alert)
	}
}

func updateAlertHandler(alertSvc *service.AlertService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/alerts/{id}")
		defer span.End()

		var payload domain.AlertPayload
		if err := decodeJSON(r, &payload); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		alert, err := alertSvc.Update(ctx, UserFromContext(ctx).ID, chi.URLParam(r, "id"), payload)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, alert)
	}
}

func deleteAlertHandler(alertSvc *service.AlertService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/alerts/{id}")
		defer span.End()

		if err := alertSvc.Delete(ctx, UserFromContext(ctx).ID, chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listNotificationsHandler(alertSvc *service.AlertService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/notifications")
		defer span.End()

		notifs, err := alertSvc.Notifications(ctx, UserFromContext(ctx).ID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if r.URL.Query().Get("unread") == "true" {
			unread := make([]domain.Notification, 0, len(notifs))
			for _, n := range notifs {
				if !n.Read {
					unread = append(unread, n)
				}
			}
			notifs = unread
		}
		writeJSON(w, http.StatusOK, notifs)
	}
}

type createNotificationRequest struct {
	AlertID string `json:"alert"`
}

func createNotificationHandler(alertSvc *service.AlertService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/notifications")
		defer span.End()

		var req createNotificationRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if req.AlertID == "" {
			handleServiceError(w, &domain.ErrValidation{Field: "alert", Message: "required"}, logger)
			return
		}

		notif, err := alertSvc.CreateNotification(ctx, UserFromContext(ctx).ID, req.AlertID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, notif)
	}
}

func markNotificationReadHandler(alertSvc *service.AlertService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/notifications/{id}/read")
		defer span.End()

		if err := alertSvc.MarkNotificationRead(ctx, UserFromContext(ctx).ID, chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
	}
}

// ============================================================
// Metrics & health
// ============================================================

func cacheMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetCacheSnapshot())
	}
}

func healthzHandler(backend port.EnergyBackend, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "dashboard-bfa", Status: "healthy", LatencyMs: 0, UptimePercent: 99.99, LastChecked: now},
		}

		if backend != nil {
			start := time.Now()
			_, err := backend.FetchCategories(ctx)
			latency := time.Since(start).Milliseconds()
			status := "healthy"
			if err != nil {
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{
				Name: "energy-backend", Status: status, LatencyMs: latency,
				UptimePercent: 99.9, LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
