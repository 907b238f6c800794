// Package metrics provides Prometheus metrics for stamp verification.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"stampgate/internal/verification/providers"
)

// Verification outcomes used as the "result" label.
const (
	ResultValid    = "valid"
	ResultRejected = "rejected" // negative without diagnostics, e.g. threshold not met
	ResultFailed   = "failed"   // negative with diagnostics
)

// Metrics contains all verification metrics.
type Metrics struct {
	// Verification outcomes
	VerificationsTotal          *prometheus.CounterVec   // by condition type and result
	VerificationDurationSeconds *prometheus.HistogramVec // by condition type
	BatchSize                   prometheus.Histogram

	// External calls
	ExternalCallDurationSeconds *prometheus.HistogramVec // by system
	ExternalCallErrorsTotal     *prometheus.CounterVec   // by system and error category

	// Exchange cache
	ExchangeCacheHitsTotal   *prometheus.CounterVec // by system
	ExchangeCacheMissesTotal *prometheus.CounterVec // by system
}

// New creates a Metrics instance registered on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		VerificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stampgate_verifications_total",
			Help: "Total number of verifications by condition type and result",
		}, []string{"type", "result"}),

		VerificationDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stampgate_verification_duration_seconds",
			Help:    "Duration of a single provider verification",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"type"}),

		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stampgate_verification_batch_size",
			Help:    "Number of condition types per verification batch",
			Buckets: []float64{1, 2, 3, 6, 9, 16, 32},
		}),

		ExternalCallDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stampgate_external_call_duration_seconds",
			Help:    "Duration of calls to external systems",
			Buckets: prometheus.DefBuckets,
		}, []string{"system"}),

		ExternalCallErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stampgate_external_call_errors_total",
			Help: "Total number of failed external calls by system and error category",
		}, []string{"system", "category"}),

		ExchangeCacheHitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stampgate_exchange_cache_hits_total",
			Help: "Total number of exchange cache hits by system",
		}, []string{"system"}),

		ExchangeCacheMissesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stampgate_exchange_cache_misses_total",
			Help: "Total number of exchange cache misses by system",
		}, []string{"system"}),
	}
}

// Result classifies a verification outcome for the result label.
func Result(valid bool, errs []string) string {
	switch {
	case valid:
		return ResultValid
	case len(errs) > 0:
		return ResultFailed
	}
	return ResultRejected
}

// ObserveVerification records one provider verification.
func (m *Metrics) ObserveVerification(conditionType, result string, d time.Duration) {
	m.VerificationsTotal.WithLabelValues(conditionType, result).Inc()
	m.VerificationDurationSeconds.WithLabelValues(conditionType).Observe(d.Seconds())
}

// ObserveBatch records the size of a verification batch.
func (m *Metrics) ObserveBatch(size int) {
	m.BatchSize.Observe(float64(size))
}

// ObserveExternalCall implements adapters.Observer.
func (m *Metrics) ObserveExternalCall(system string, d time.Duration, category providers.ErrorCategory) {
	m.ExternalCallDurationSeconds.WithLabelValues(system).Observe(d.Seconds())
	if category != "" {
		m.ExternalCallErrorsTotal.WithLabelValues(system, string(category)).Inc()
	}
}

// CacheHit implements providers.CacheObserver.
func (m *Metrics) CacheHit(system string) {
	m.ExchangeCacheHitsTotal.WithLabelValues(system).Inc()
}

// CacheMiss implements providers.CacheObserver.
func (m *Metrics) CacheMiss(system string) {
	m.ExchangeCacheMissesTotal.WithLabelValues(system).Inc()
}

var _ providers.CacheObserver = (*Metrics)(nil)
