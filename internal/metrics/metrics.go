// Package metrics provides Prometheus metrics collection for the polymer
// property predictor. It defines the inference, feature extraction, HTTP
// and persistence metrics exposed via the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the predictor service.
type Metrics struct {
	// Inference metrics
	MLPredictions     prometheus.Counter     // Total number of Predict calls
	MLPlaceholders    *prometheus.CounterVec // Placeholder results by reason
	MLPropertyFailure *prometheus.CounterVec // Per-property inference failures
	MLLatency         prometheus.Histogram   // End-to-end prediction latency
	MLConfidence      *prometheus.HistogramVec
	MLModelLoaded     prometheus.Gauge // 1 when the model store is loaded
	MLModelAge        prometheus.Gauge // Age of the artifact file in seconds
	MLCacheHits       prometheus.Counter
	MLCacheMisses     prometheus.Counter

	// Feature calculation metrics
	FeatureErrors   prometheus.Counter   // Total number of feature extraction errors
	FeatureDuration prometheus.Histogram // Feature extraction duration

	// HTTP and streaming metrics
	HTTPRequests      *prometheus.CounterVec   // Requests by route and status code
	HTTPDuration      *prometheus.HistogramVec // Request duration by route
	BatchSize         prometheus.Histogram     // Molecules per batch request
	StreamConnections prometheus.Gauge         // Open websocket stream connections

	// Persistence metrics
	HistoryWrites prometheus.Counter
	HistoryErrors prometheus.Counter

	gatherer prometheus.Gatherer
}

var fullPlaceholderReasons = map[string]bool{
	"invalid_molecule":    true,
	"feature_computation": true,
	"model_unavailable":   true,
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
// When registerer is also a Gatherer it backs PlaceholderRate.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	m := &Metrics{
		MLPredictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_predictions_total",
			Help: "Total number of property predictions requested",
		}),
		MLPlaceholders: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ml_placeholders_total",
			Help: "Total number of placeholder results by reason",
		}, []string{"reason"}),
		MLPropertyFailure: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ml_property_failures_total",
			Help: "Total number of per-property inference failures",
		}, []string{"property"}),
		MLLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_latency_seconds",
			Help:    "Prediction latency in seconds (end-to-end)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		MLConfidence: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ml_prediction_confidence",
			Help:    "Distribution of ensemble confidence scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{"property"}),
		MLModelLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ml_model_loaded",
			Help: "Whether the model artifact is loaded (1) or not (0)",
		}),
		MLModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ml_model_age_seconds",
			Help: "Age of the loaded model artifact in seconds",
		}),
		MLCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_cache_hits_total",
			Help: "Total number of prediction cache hits",
		}),
		MLCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_cache_misses_total",
			Help: "Total number of prediction cache misses",
		}),
		FeatureErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "feature_errors_total",
			Help: "Total number of feature extraction errors",
		}),
		FeatureDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "feature_extraction_seconds",
			Help:    "Feature extraction duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "batch_size",
			Help:    "Number of molecules per batch prediction request",
			Buckets: prometheus.ExponentialBuckets(1, 2, 11),
		}),
		StreamConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stream_connections",
			Help: "Number of open websocket prediction streams",
		}),
		HistoryWrites: factory.NewCounter(prometheus.CounterOpts{
			Name: "history_writes_total",
			Help: "Total number of prediction records persisted",
		}),
		HistoryErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "history_errors_total",
			Help: "Total number of failed prediction record writes",
		}),
	}
	if g, ok := registerer.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// PlaceholderRate returns the share of predictions that produced a
// placeholder for every property, or 0 if nothing has been predicted yet.
func (m *Metrics) PlaceholderRate() float64 {
	if m.gatherer == nil {
		return 0
	}

	metricFamilies, err := m.gatherer.Gather()
	if err != nil {
		return 0
	}

	var total, placeholders float64
	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "ml_predictions_total":
			for _, metric := range mf.GetMetric() {
				total += metric.GetCounter().GetValue()
			}
		case "ml_placeholders_total":
			for _, metric := range mf.GetMetric() {
				for _, label := range metric.GetLabel() {
					// property_missing and inference_error are partial
					if label.GetName() == "reason" && fullPlaceholderReasons[label.GetValue()] {
						placeholders += metric.GetCounter().GetValue()
					}
				}
			}
		}
	}

	if total == 0 {
		return 0
	}
	return placeholders / total
}
