package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the access engine. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Resolution metrics
	ResolutionsTotal   *prometheus.CounterVec
	ResolutionDuration prometheus.Histogram

	// Cache metrics
	CacheHitsTotal          prometheus.Counter
	CacheMissesTotal        prometheus.Counter
	CacheErrorsTotal        *prometheus.CounterVec
	CacheInvalidationsTotal *prometheus.CounterVec

	// Decision metrics
	CapabilityChecksTotal *prometheus.CounterVec

	// Expiration workflow metrics
	RenewalsTotal      *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on registry
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "access_resolutions_total",
				Help: "Total number of effective role resolutions by source",
			},
			[]string{"source", "cached"},
		),
		ResolutionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "access_resolution_duration_seconds",
				Help:    "Duration of uncached effective role resolutions",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "access_cache_hits_total",
				Help: "Total number of resolution cache hits",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "access_cache_misses_total",
				Help: "Total number of resolution cache misses",
			},
		),
		CacheErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "access_cache_errors_total",
				Help: "Total number of swallowed cache backend errors",
			},
			[]string{"operation"},
		),
		CacheInvalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "access_cache_invalidations_total",
				Help: "Total number of cache invalidations by breadth",
			},
			[]string{"scope"},
		),
		CapabilityChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "access_capability_checks_total",
				Help: "Total number of capability checks by outcome",
			},
			[]string{"result"},
		),
		RenewalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "access_renewals_total",
				Help: "Total number of renewal workflow transitions",
			},
			[]string{"action"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "access_expiration_notifications_total",
				Help: "Total number of expiration notifications by kind and status",
			},
			[]string{"kind", "status"},
		),
	}

	registry.MustRegister(
		m.ResolutionsTotal,
		m.ResolutionDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheErrorsTotal,
		m.CacheInvalidationsTotal,
		m.CapabilityChecksTotal,
		m.RenewalsTotal,
		m.NotificationsTotal,
	)

	return m
}

// ObserveResolution records a resolution outcome
func (m *Metrics) ObserveResolution(source string, cached bool, duration time.Duration) {
	if m == nil {
		return
	}
	c := "false"
	if cached {
		c = "true"
		m.CacheHitsTotal.Inc()
	} else {
		m.ResolutionDuration.Observe(duration.Seconds())
	}
	m.ResolutionsTotal.WithLabelValues(source, c).Inc()
}

// ObserveCacheMiss records a cache miss
func (m *Metrics) ObserveCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

// ObserveCacheError records a swallowed cache backend error
func (m *Metrics) ObserveCacheError(operation string) {
	if m == nil {
		return
	}
	m.CacheErrorsTotal.WithLabelValues(operation).Inc()
}

// ObserveInvalidation records a cache invalidation; scope is pair, user or organization
func (m *Metrics) ObserveInvalidation(scope string) {
	if m == nil {
		return
	}
	m.CacheInvalidationsTotal.WithLabelValues(scope).Inc()
}

// ObserveCapabilityCheck records an allow or deny decision
func (m *Metrics) ObserveCapabilityCheck(allowed bool) {
	if m == nil {
		return
	}
	result := "deny"
	if allowed {
		result = "allow"
	}
	m.CapabilityChecksTotal.WithLabelValues(result).Inc()
}

// ObserveRenewal records a renewal workflow action
func (m *Metrics) ObserveRenewal(action string) {
	if m == nil {
		return
	}
	m.RenewalsTotal.WithLabelValues(action).Inc()
}

// ObserveNotification records a notification attempt
func (m *Metrics) ObserveNotification(kind, status string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(kind, status).Inc()
}

// Handler returns an HTTP handler exposing the registry
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
