package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the tracker.
type Metrics struct {
	// Tracking metrics
	Redirects      *prometheus.CounterVec
	Clicks         *prometheus.CounterVec
	Impressions    *prometheus.CounterVec
	NonceFailures  prometheus.Counter
	TrackingErrors *prometheus.CounterVec

	// Analytics metrics
	AnalyticsLatency *prometheus.HistogramVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Redirects: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "redirects_total",
				Help:      "Total number of short-path redirects issued",
			},
			[]string{"affiliate_type"},
		),
		Clicks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "clicks_total",
				Help:      "Total number of click events recorded",
			},
			[]string{"affiliate_type", "visit_type"},
		),
		Impressions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "impressions_total",
				Help:      "Total number of impression events recorded",
			},
			[]string{"affiliate_type"},
		),
		NonceFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "nonce_failures_total",
				Help:      "Total number of rejected tracking nonces",
			},
		),
		TrackingErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tracking_errors_total",
				Help:      "Total number of tracking pipeline errors",
			},
			[]string{"stage"},
		),
		AnalyticsLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "analytics_latency_seconds",
				Help:      "Analytics query latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"report"},
		),
		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Total number of rate limited requests",
			},
			[]string{"endpoint"},
		),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Helper methods for common operations

func (m *Metrics) RecordRedirect(affiliateType string) {
	m.Redirects.WithLabelValues(affiliateType).Inc()
}

func (m *Metrics) RecordClick(affiliateType, visitType string) {
	m.Clicks.WithLabelValues(affiliateType, visitType).Inc()
}

func (m *Metrics) RecordImpression(affiliateType string) {
	m.Impressions.WithLabelValues(affiliateType).Inc()
}

func (m *Metrics) RecordNonceFailure() {
	m.NonceFailures.Inc()
}

func (m *Metrics) RecordTrackingError(stage string) {
	m.TrackingErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) RecordAnalyticsQuery(report string, latency time.Duration) {
	m.AnalyticsLatency.WithLabelValues(report).Observe(latency.Seconds())
}

func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.RateLimitHits.WithLabelValues(endpoint).Inc()
}
