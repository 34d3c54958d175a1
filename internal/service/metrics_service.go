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

// MetricsService encapsulates Prometheus instrumentation for the API and the
// reconciliation pipeline.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	computeRuns      *prometheus.CounterVec
	computeRecords   prometheus.Counter
	reconcileOutcome *prometheus.CounterVec
	lookupDuration   prometheus.Observer
	cacheHitRatio    prometheus.Gauge
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter

	cacheHitCount  uint64
	cacheMissCount uint64
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
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	computeRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grade_compute_runs_total",
		Help: "Subject-wide grade computation runs",
	}, []string{"subject"})

	computeRecords := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grade_compute_records_total",
		Help: "Grade records recomputed across all runs",
	})

	reconcileOutcome := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_outcomes_total",
		Help: "Reconciliation outcomes by kind",
	}, []string{"outcome"})

	lookupDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lms_lookup_duration_seconds",
		Help:    "Duration of external LMS lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lookup_cache_hit_ratio",
		Help: "Ratio of lookup cache hits to total lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lookup_cache_hits_total",
		Help: "Total lookup cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lookup_cache_misses_total",
		Help: "Total lookup cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, computeRuns, computeRecords, reconcileOutcome, lookupDuration, cacheHitRatio, cacheHits, cacheMisses, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:         registry,
		handler:          handler,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		computeRuns:      computeRuns,
		computeRecords:   computeRecords,
		reconcileOutcome: reconcileOutcome,
		lookupDuration:   lookupDuration,
		cacheHitRatio:    cacheHitRatio,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveComputeRun records one subject-wide computation run.
func (m *MetricsService) ObserveComputeRun(subjectID string, records int) {
	if m == nil {
		return
	}
	m.computeRuns.WithLabelValues(subjectID).Inc()
	m.computeRecords.Add(float64(records))
}

// ObserveReconcileOutcome counts one per-record reconciliation outcome:
// updated, not_found, or error.
func (m *MetricsService) ObserveReconcileOutcome(outcome string) {
	if m == nil {
		return
	}
	m.reconcileOutcome.WithLabelValues(outcome).Inc()
}

// ObserveLookup records the duration of one external LMS lookup.
func (m *MetricsService) ObserveLookup(duration time.Duration) {
	if m == nil {
		return
	}
	m.lookupDuration.Observe(duration.Seconds())
}

// RecordCacheOperation records lookup cache hit/miss metrics and updates the
// hit ratio gauge.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}
