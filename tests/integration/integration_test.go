package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/managenergy/dashboard-bfa-go/internal/domain"
	"github.com/managenergy/dashboard-bfa-go/internal/handler"
	"github.com/managenergy/dashboard-bfa-go/internal/infra/energyapi"
	"github.com/managenergy/dashboard-bfa-go/internal/infra/observability"
	"github.com/managenergy/dashboard-bfa-go/internal/infra/resilience"
	"github.com/managenergy/dashboard-bfa-go/internal/infra/sessionstore"
	"github.com/managenergy/dashboard-bfa-go/internal/service"

	"go.uber.org/zap"
)

// mockEnergyAPI emulates the energy REST backend, including its wire
// quirks: decimal columns serialized as strings and full timestamps in the
// consumption date field.
type mockEnergyAPI struct {
	mu           sync.Mutex
	nextID       int
	consumptions []map[string]any
}

func (m *mockEnergyAPI) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/login/", func(w http.ResponseWriter, r *http.Request) {
		var creds struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		json.NewDecoder(r.Body).Decode(&creds)
		if creds.Password != "demo1234" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"detail": "invalid credentials"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"user": map[string]any{
				"id": 7, "email": creds.Email, "role": "user",
				"is_active": true, "created_at": "2024-01-15T09:00:00Z",
			},
		})
	})

	mux.HandleFunc("/api/v1/logout/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/api/v1/me/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id": 7, "email": "demo@managenergy.local", "role": "user",
			"is_active": true, "created_at": "2024-01-15T09:00:00Z",
		})
	})

	mux.HandleFunc("/api/v1/categories/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "name": "Electricité", "unit": "kWh"},
			{"id": 2, "name": "Gaz", "unit": "m³"},
		})
	})

	mux.HandleFunc("/api/v1/consommations/", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(m.consumptions)
		case http.MethodPost:
			var payload struct {
				Category int64   `json:"category"`
				Value    float64 `json:"value"`
				Price    float64 `json:"price"`
				Date     string  `json:"date_consommation"`
			}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"detail": "bad payload"})
				return
			}
			m.nextID++
			// decimals go back out as strings, dates as timestamps
			m.consumptions = append(m.consumptions, map[string]any{
				"id":                m.nextID,
				"category":          payload.Category,
				"value":             fmt.Sprintf("%.2f", payload.Value),
				"price":             fmt.Sprintf("%.2f", payload.Price),
				"date_consommation": payload.Date + "T00:00:00Z",
			})
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(m.consumptions[len(m.consumptions)-1])
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/alerts/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{})
	})

	mux.HandleFunc("/api/v1/notifications/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{})
	})

	return mux
}

// TestIntegration_FullFlow runs the whole stack (router, services, session
// cache, REST client with resilience) against a mock energy backend.
func TestIntegration_FullFlow(t *testing.T) {
	mock := &mockEnergyAPI{}
	backendServer := httptest.NewServer(mock.handler())
	defer backendServer.Close()

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	resilienceCfg := resilience.Config{MaxRetries: 1, InitialBackoff: 10 * time.Millisecond, MaxConcurrency: 10}
	cb := resilience.NewCircuitBreaker("integration-energy-api")

	backend := energyapi.NewClient(
		&http.Client{Timeout: 5 * time.Second},
		backendServer.URL,
		"service-key",
		cb,
		resilienceCfg,
		logger,
	)

	sessions := sessionstore.New(time.Hour)
	registry := service.NewCacheRegistry(backend, metrics, logger, 5*time.Second, time.Hour)
	authSvc := service.NewAuthService(backend, sessions, registry, metrics, logger, "integration-secret", time.Hour)
	alertSvc := service.NewAlertService(backend, logger)

	router := handler.NewRouter(authSvc, alertSvc, registry, backend, metrics, logger)
	server := httptest.NewServer(router)
	defer server.Close()

	client := server.Client()
	today := time.Now().Format("2006-01-02")

	post := func(path, token string, payload any) *http.Response {
		t.Helper()
		buf, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		req, err := http.NewRequest(http.MethodPost, server.URL+path, bytes.NewReader(buf))
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		return resp
	}

	get := func(path, token string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(http.MethodGet, server.URL+path, nil)
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		return resp
	}

	// --- Login ---
	resp := post("/v1/auth/login", "", domain.LoginRequest{Email: "demo@managenergy.local", Password: "demo1234"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	var login domain.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	resp.Body.Close()
	if login.User.ID != "7" {
		t.Errorf("expected backend user id 7, got %s", login.User.ID)
	}
	token := login.Token

	// --- Create a consumption record ---
	resp = post("/v1/consumptions", token, domain.RecordPayload{
		CategoryID: "1", Date: today, Quantity: 42.5, UnitPrice: 0.25,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create consumption: expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// --- Cached snapshot: string decimals and timestamp dates normalized ---
	resp = get("/v1/consumptions", token)
	var snap struct {
		Items  []domain.ConsumptionRecord `json:"items"`
		Loaded bool                       `json:"loaded"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	resp.Body.Close()
	if !snap.Loaded || len(snap.Items) != 1 {
		t.Fatalf("expected 1 loaded item, got loaded=%v items=%d", snap.Loaded, len(snap.Items))
	}
	item := snap.Items[0]
	if item.Quantity != 42.5 || item.UnitPrice != 0.25 {
		t.Errorf("decimal strings not decoded: %+v", item)
	}
	if item.Date != today {
		t.Errorf("expected normalized date %s, got %s", today, item.Date)
	}

	// --- Charts over the cached data ---
	resp = get("/v1/charts?group_by=month", token)
	var chart domain.ChartData
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		t.Fatalf("decode chart: %v", err)
	}
	resp.Body.Close()
	if len(chart.Quantity.Points) != 1 || chart.Quantity.Points[0].Value != 42.5 {
		t.Errorf("unexpected quantity series: %+v", chart.Quantity.Points)
	}
	wantCost := 42.5 * 0.25
	if len(chart.Cost.Points) != 1 || chart.Cost.Points[0].Value != wantCost {
		t.Errorf("unexpected cost series: %+v", chart.Cost.Points)
	}
	if !strings.HasPrefix(chart.SelectedPeriod, today[:7]) {
		t.Errorf("expected current month selected, got %s", chart.SelectedPeriod)
	}

	// --- Logout ends the session ---
	resp = post("/v1/auth/logout", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = get("/v1/consumptions", token)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}
