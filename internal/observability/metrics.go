package observability

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avelichko/waterline-monitor/internal/health"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream call rate per endpoint (backend, openmeteo_archive, openmeteo_forecast).
	// Watch for: error vs success ratio per source.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency per endpoint. Watch for: p95 > 2s (source degradation), p99 > 5s (timeout risk).
	UpstreamDuration *prometheus.HistogramVec

	// Bundle serves by data source (backend-archive, open-meteo, synthetic).
	// The synthetic share is the service's main data-quality signal.
	BundleServesTotal *prometheus.CounterVec

	// Fallback transitions: a stage failed and the chain moved on.
	FallbackTotal *prometheus.CounterVec

	// Bundles discarded because their selection was superseded mid-flight.
	StaleBundlesDroppedTotal prometheus.Counter

	// Cache hits for composed bundles.
	CacheHitsTotal *prometheus.CounterVec

	// Cache operation failures by operation and category.
	CacheErrorsTotal *prometheus.CounterVec

	// Cache operation latency.
	CacheOperationDurationSeconds *prometheus.HistogramVec

	// Total cell bundle lookups. rate() gives QPS.
	CellQueriesTotal prometheus.Counter

	// Per-cell query count (allow-list; others go to "other"). Watch for: hot cells.
	CellQueriesByCellTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker transitions per upstream component.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// trackedCells is built from config; used to resolve the cell label.
	trackedCellsMu sync.RWMutex
	trackedCells   map[string]struct{}

	windowGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of upstream API calls by endpoint",
		},
		[]string{"endpoint", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "Upstream API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	BundleServesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bundleServesTotal",
			Help: "Composed bundles served, by data source provenance",
		},
		[]string{"source"},
	)
	FallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallbackTotal",
			Help: "Fallback transitions per failed stage of the data chain",
		},
		[]string{"stage"},
	)
	StaleBundlesDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "staleBundlesDroppedTotal",
			Help: "Bundles discarded because a newer selection superseded the request",
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of bundle cache hits",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache operation failures by operation and error category",
		},
		[]string{"operation", "category"},
	)
	CacheOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheOperationDurationSeconds",
			Help:    "Cache operation latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"operation", "status"},
	)
	CellQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cellQueriesTotal",
			Help: "Total number of cell bundle lookups",
		},
	)
	CellQueriesByCellTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellQueriesByCellTotal",
			Help: "Cell bundle lookups by cell id (allow-list; others use cell=other)",
		},
		[]string{"cell"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions per upstream component",
		},
		[]string{"component", "from", "to"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration,
		BundleServesTotal, FallbackTotal, StaleBundlesDroppedTotal,
		CacheHitsTotal, CacheErrorsTotal, CacheOperationDurationSeconds,
		CellQueriesTotal, CellQueriesByCellTotal,
		RateLimitDeniedTotal, CircuitBreakerTransitionsTotal,
	)
}

// RegisterWindowGauges registers sliding-window gauges for the rate-limited
// path and the synthetic-share data-quality signal. Call from main after
// config load.
func RegisterWindowGauges(window time.Duration) {
	windowGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window; load/capacity planning",
				},
				func() float64 { return float64(health.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting requests",
				},
				func() float64 { return float64(health.DenialCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "syntheticSharePctInWindow",
					Help: "Percentage of bundle serves backed by synthetic data in the sliding window",
				},
				func() float64 { return health.SyntheticSharePct(window) },
			),
		)
	})
}

// RecordCircuitBreakerTransition records a breaker state change for metrics.
func RecordCircuitBreakerTransition(component, from, to string) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
}

// SetTrackedCells sets the allow-list for per-cell metrics. Non-tracked
// cells increment "other".
func SetTrackedCells(cells []string) {
	trackedCellsMu.Lock()
	defer trackedCellsMu.Unlock()
	trackedCells = make(map[string]struct{}, len(cells))
	for _, id := range cells {
		trackedCells[normalizeCellForMetrics(id)] = struct{}{}
	}
}

// RecordCellQuery records a bundle lookup for the given cell.
func RecordCellQuery(cellID string) {
	CellQueriesTotal.Inc()
	id := normalizeCellForMetrics(cellID)
	trackedCellsMu.RLock()
	_, ok := trackedCells[id] // nil map read is safe in Go
	trackedCellsMu.RUnlock()
	if ok {
		CellQueriesByCellTotal.WithLabelValues(id).Inc()
	} else {
		CellQueriesByCellTotal.WithLabelValues("other").Inc()
	}
}

// MetricCellLabel resolves the metric label for a cell id: the id itself
// when tracked, "other" otherwise.
func MetricCellLabel(cellID string) string {
	id := normalizeCellForMetrics(cellID)
	trackedCellsMu.RLock()
	defer trackedCellsMu.RUnlock()
	if _, ok := trackedCells[id]; ok {
		return id
	}
	return "other"
}

func normalizeCellForMetrics(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
