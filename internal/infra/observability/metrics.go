package observability

import (
	"time"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Estimation outcomes used as the "outcome" label.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Metrics holds all Prometheus metrics of the estimator.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	estimations     *prometheus.CounterVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
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
				Name:    "impots_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		estimations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "impots_estimations_total",
				Help: "Per-tax calculations by outcome.",
			},
			[]string{"code", "outcome"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "impots_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "impots_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "impots_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "impots_requests_total",
				Help: "Total estimation requests processed.",
			},
			[]string{"status"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrEstimation counts one per-tax calculation.
func (m *Metrics) IncrEstimation(code domain.TaxCode, outcome string) {
	m.estimations.WithLabelValues(string(code), outcome).Inc()
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

// IncrRequest increments the request counter with a status label.
func (m *Metrics) IncrRequest(status string) {
	m.requestsTotal.WithLabelValues(status).Inc()
}

// GetEstimationSnapshot returns the counters behind
// GET /v1/metrics/estimations.
func (m *Metrics) GetEstimationSnapshot() *domain.EstimationMetrics {
	success := getCounterValue(m.requestsTotal, "success")
	partial := getCounterValue(m.requestsTotal, "partial")
	failed := getCounterValue(m.requestsTotal, "error")
	total := success + partial + failed

	byTax := make(map[domain.TaxCode]int64)
	for _, code := range domain.AllTaxCodes {
		n := getCounterValue(m.estimations, string(code), OutcomeSuccess) +
			getCounterValue(m.estimations, string(code), OutcomeFailure)
		if n > 0 {
			byTax[code] = int64(n)
		}
	}

	hits := getCounterValue(m.cacheHits, "constants")
	misses := getCounterValue(m.cacheMisses, "constants")

	successRate := float64(0)
	if total > 0 {
		successRate = (success + partial) / total
	}
	cacheHitRate := float64(0)
	if hits+misses > 0 {
		cacheHitRate = hits / (hits + misses)
	}

	var external float64
	for _, svc := range []string{"supabase", "postgres", "redis", "summarizer"} {
		external += getCounterValue(m.externalErrors, svc)
	}

	return &domain.EstimationMetrics{
		TotalEstimations: int64(total),
		SuccessRate:      successRate,
		ByTax:            byTax,
		CacheHitRate:     cacheHitRate,
		ExternalErrors:   int64(external),
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for
// the given label values.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
