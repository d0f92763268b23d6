package observability

import (
	"time"

	"github.com/managenergy/dashboard-bfa-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the dashboard BFF.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration      *prometheus.HistogramVec
	externalErrors       *prometheus.CounterVec
	cacheHits            *prometheus.CounterVec
	cacheMisses          *prometheus.CounterVec
	loadsTotal           *prometheus.CounterVec
	notificationsCreated prometheus.Counter
	activeSessions       prometheus.Gauge
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dashboard_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_external_errors_total",
				Help: "Total errors from the energy backend.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_cache_hits_total",
				Help: "Total data cache hits (load short-circuits).",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_cache_misses_total",
				Help: "Total data cache misses (loads that hit the backend).",
			},
			[]string{"cache"},
		),
		loadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_cache_loads_total",
				Help: "Total data cache load attempts by result.",
			},
			[]string{"result"},
		),
		notificationsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dashboard_notifications_created_total",
				Help: "Total notifications created by the alert monitor.",
			},
		),
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dashboard_active_sessions",
				Help: "Number of live dashboard sessions.",
			},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrLoad increments the load counter with a result label ("ok"/"error").
func (m *Metrics) IncrLoad(result string) {
	m.loadsTotal.WithLabelValues(result).Inc()
}

// IncrNotificationCreated increments the alert notification counter.
func (m *Metrics) IncrNotificationCreated() {
	m.notificationsCreated.Inc()
}

// SetActiveSessions updates the live session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// GetCacheSnapshot returns a snapshot of data cache metrics suitable for the
// GET /v1/metrics/cache endpoint.
func (m *Metrics) GetCacheSnapshot() *domain.CacheMetrics {
	// Gather current values from Prometheus counters.
	// Note: Prometheus counters expose cumulative values.
	hits := getCounterValue(m.cacheHits, "consumptions")
	misses := getCounterValue(m.cacheMisses, "consumptions")
	loads := getCounterValue(m.loadsTotal, "ok") + getCounterValue(m.loadsTotal, "error")
	failures := getCounterValue(m.loadsTotal, "error")

	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.CacheMetrics{
		Hits:         int64(hits),
		Misses:       int64(misses),
		HitRate:      hitRate,
		Loads:        int64(loads),
		LoadFailures: int64(failures),
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
