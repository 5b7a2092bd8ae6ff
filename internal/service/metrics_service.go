package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsSnapshot is a lightweight view of instrumentation counters for
// API consumption without scraping Prometheus.
type MetricsSnapshot struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	BatchRunsTotal           uint64    `json:"batch_runs_total"`
	BatchEntityFailures      uint64    `json:"batch_entity_failures"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	cacheHitRatio   prometheus.Gauge
	batchRuns       *prometheus.CounterVec
	batchFailures   prometheus.Counter
	batchDuration   prometheus.Histogram

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	batchRunCount        uint64
	batchFailureCount    uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total count of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Cache hits for risk/funnel aggregate reads",
	})
	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Cache misses for risk/funnel aggregate reads",
	})
	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	batchRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batch_runs_total",
		Help: "Batch run invocations by kind and outcome",
	}, []string{"kind", "outcome"})
	batchFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "batch_entity_failures_total",
		Help: "Per-entity failures swallowed into batch summaries",
	})
	batchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "batch_run_duration_seconds",
		Help:    "Duration of full batch runs in seconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses,
		cacheHitRatio, batchRuns, batchFailures, batchDuration)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		cacheHitRatio:   cacheHitRatio,
		batchRuns:       batchRuns,
		batchFailures:   batchFailures,
		batchDuration:   batchDuration,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one completed HTTP request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, fmt.Sprintf("%d", status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
	atomic.AddUint64(&s.requestCount, 1)
	atomic.AddUint64(&s.requestDurationTotal, uint64(duration.Milliseconds()))
}

// RecordCacheOperation tracks a cache lookup result.
func (s *MetricsService) RecordCacheOperation(hit bool, _ time.Duration) {
	if hit {
		s.cacheHits.Inc()
		atomic.AddUint64(&s.cacheHitCount, 1)
	} else {
		s.cacheMisses.Inc()
		atomic.AddUint64(&s.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&s.cacheHitCount)
	total := hits + atomic.LoadUint64(&s.cacheMissCount)
	if total > 0 {
		s.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// RecordBatchRun tracks a completed batch run and its entity failures.
func (s *MetricsService) RecordBatchRun(kind string, failed int, duration time.Duration) {
	outcome := "clean"
	if failed > 0 {
		outcome = "partial"
	}
	s.batchRuns.WithLabelValues(kind, outcome).Inc()
	s.batchDuration.Observe(duration.Seconds())
	atomic.AddUint64(&s.batchRunCount, 1)
	if failed > 0 {
		s.batchFailures.Add(float64(failed))
		atomic.AddUint64(&s.batchFailureCount, uint64(failed))
	}
}

// Snapshot returns current counter values for the system endpoint.
func (s *MetricsService) Snapshot() MetricsSnapshot {
	hits := atomic.LoadUint64(&s.cacheHitCount)
	misses := atomic.LoadUint64(&s.cacheMissCount)
	requests := atomic.LoadUint64(&s.requestCount)
	durationTotal := atomic.LoadUint64(&s.requestDurationTotal)

	snapshot := MetricsSnapshot{
		CacheHits:           hits,
		CacheMisses:         misses,
		RequestsTotal:       requests,
		BatchRunsTotal:      atomic.LoadUint64(&s.batchRunCount),
		BatchEntityFailures: atomic.LoadUint64(&s.batchFailureCount),
		Goroutines:          runtime.NumGoroutine(),
		GeneratedAt:         time.Now().UTC(),
	}
	if total := hits + misses; total > 0 {
		snapshot.CacheHitRatio = float64(hits) / float64(total)
	}
	if requests > 0 {
		snapshot.AverageRequestDurationMs = float64(durationTotal) / float64(requests)
	}
	return snapshot
}
