package gerbang

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the fetch lifecycle and
// the mediation layers. It is safe for concurrent use; a nil collector is a
// no-op so every call site can record unconditionally.
type MetricsCollector struct {
	fetchesTotal    *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	fetchesInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec

	rateLimiterOccupancy *prometheus.GaugeVec
	rateLimiterWait      *prometheus.HistogramVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheSize   *prometheus.GaugeVec

	dedupJoins *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		fetchesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gerbang_fetches_total",
				Help: "Total number of fetches resolved",
			},
			[]string{"endpoint", "status_code"},
		),
		fetchDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gerbang_fetch_duration_seconds",
				Help:    "Duration of fetches in seconds, cache hits included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "status_code"},
		),
		fetchesInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gerbang_fetches_in_flight",
				Help: "Number of fetches currently outstanding",
			},
			[]string{"endpoint"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gerbang_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"endpoint", "attempt"},
		),
		circuitBreakerState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gerbang_circuit_breaker_state",
				Help: "Current breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"target"},
		),
		rateLimiterOccupancy: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gerbang_rate_limiter_window_occupancy",
				Help: "Slots charged to the trailing rate-limit window",
			},
			[]string{"target"},
		),
		rateLimiterWait: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gerbang_rate_limiter_wait_seconds",
				Help:    "Time callers spent waiting for a rate-limit slot",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"target"},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gerbang_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"endpoint"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gerbang_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"endpoint"},
		),
		cacheSize: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gerbang_cache_size",
				Help: "Current number of entries in the cache",
			},
			[]string{"name"},
		),
		dedupJoins: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gerbang_dedup_joins_total",
				Help: "Total number of fetches that joined an in-flight call",
			},
			[]string{"endpoint"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gerbang_errors_total",
				Help: "Total number of classified fetch errors",
			},
			[]string{"type", "endpoint"},
		),
	}
}

// RecordFetch records a resolved fetch with its duration.
func (mc *MetricsCollector) RecordFetch(endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}
	code := strconv.Itoa(statusCode)
	mc.fetchesTotal.WithLabelValues(endpoint, code).Inc()
	mc.fetchDuration.WithLabelValues(endpoint, code).Observe(duration.Seconds())
}

// RecordFetchStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordFetchStart(endpoint string) {
	if mc == nil {
		return
	}
	mc.fetchesInFlight.WithLabelValues(endpoint).Inc()
}

// RecordFetchEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordFetchEnd(endpoint string) {
	if mc == nil {
		return
	}
	mc.fetchesInFlight.WithLabelValues(endpoint).Dec()
}

// RecordRetry increments the retry counter for an attempt index.
func (mc *MetricsCollector) RecordRetry(endpoint string, attempt int) {
	if mc == nil {
		return
	}
	mc.retriesTotal.WithLabelValues(endpoint, strconv.Itoa(attempt)).Inc()
}

// RecordCircuitBreakerState sets the breaker state gauge.
func (mc *MetricsCollector) RecordCircuitBreakerState(target string, state CircuitState) {
	if mc == nil {
		return
	}
	mc.circuitBreakerState.WithLabelValues(target).Set(float64(state))
}

// RecordRateLimiterOccupancy sets the window occupancy gauge.
func (mc *MetricsCollector) RecordRateLimiterOccupancy(target string, occupancy int) {
	if mc == nil {
		return
	}
	mc.rateLimiterOccupancy.WithLabelValues(target).Set(float64(occupancy))
}

// RecordRateLimiterWait observes time spent waiting for a slot.
func (mc *MetricsCollector) RecordRateLimiterWait(target string, wait time.Duration) {
	if mc == nil {
		return
	}
	mc.rateLimiterWait.WithLabelValues(target).Observe(wait.Seconds())
}

// RecordCacheHit increments the cache hit counter.
func (mc *MetricsCollector) RecordCacheHit(endpoint string) {
	if mc == nil {
		return
	}
	mc.cacheHits.WithLabelValues(endpoint).Inc()
}

// RecordCacheMiss increments the cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(endpoint string) {
	if mc == nil {
		return
	}
	mc.cacheMisses.WithLabelValues(endpoint).Inc()
}

// RecordCacheSize sets the cache size gauge.
func (mc *MetricsCollector) RecordCacheSize(name string, size int) {
	if mc == nil {
		return
	}
	mc.cacheSize.WithLabelValues(name).Set(float64(size))
}

// RecordDedupJoin increments the de-duplication join counter.
func (mc *MetricsCollector) RecordDedupJoin(endpoint string) {
	if mc == nil {
		return
	}
	mc.dedupJoins.WithLabelValues(endpoint).Inc()
}

// RecordError increments the classified error counter.
func (mc *MetricsCollector) RecordError(errorType, endpoint string) {
	if mc == nil {
		return
	}
	mc.errorsTotal.WithLabelValues(errorType, endpoint).Inc()
}
