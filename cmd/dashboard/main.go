package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/managenergy/dashboard-bfa-go/internal/config"
	"github.com/managenergy/dashboard-bfa-go/internal/handler"
	"github.com/managenergy/dashboard-bfa-go/internal/infra/energyapi"
	"github.com/managenergy/dashboard-bfa-go/internal/infra/memory"
	"github.com/managenergy/dashboard-bfa-go/internal/infra/observability"
	"github.com/managenergy/dashboard-bfa-go/internal/infra/resilience"
	"github.com/managenergy/dashboard-bfa-go/internal/infra/sessionstore"
	"github.com/managenergy/dashboard-bfa-go/internal/port"
	"github.com/managenergy/dashboard-bfa-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("use_energy_api", cfg.UseBackend),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("load_timeout", cfg.LoadTimeout),
		zap.Duration("session_ttl", cfg.SessionTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("alert_check_interval", cfg.AlertCheckInterval),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "managenergy-dashboard-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("energy-api")

	// --- Backend ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var backend port.EnergyBackend
	if cfg.UseBackend && cfg.BackendURL != "" {
		logger.Info("using energy REST API as data backend",
			zap.String("backend_url", cfg.BackendURL),
		)
		backend = energyapi.NewClient(
			httpClient,
			cfg.BackendURL,
			cfg.BackendServiceKey,
			cb,
			resilienceCfg,
			logger,
		)
	} else {
		logger.Info("no backend configured, using in-memory demo backend")
		backend = memory.NewDemo()
	}

	// --- Sessions & caches ---
	sessions := sessionstore.New(cfg.SessionTTL)
	registry := service.NewCacheRegistry(backend, metrics, logger, cfg.LoadTimeout, cfg.SessionTTL)

	// --- Services ---
	authSvc := service.NewAuthService(backend, sessions, registry, metrics, logger, cfg.JWTSecret, cfg.JWTAccessTTL)
	alertSvc := service.NewAlertService(backend, logger)

	// --- Alert monitor ---
	monitor := service.NewAlertMonitor(alertSvc, registry, metrics, logger, cfg.AlertCheckInterval)
	monitor.Start()
	defer monitor.Stop()

	// --- Router ---
	router := handler.NewRouter(authSvc, alertSvc, registry, backend, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
