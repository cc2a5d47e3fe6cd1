package metrics

import (
	"strconv"
	"time"
)

// MetricsWrapper adapts Metrics to the narrow interfaces used by the engine,
// the feature extractor, the HTTP layer and history storage.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

// Metrics returns the underlying collectors.
func (w *MetricsWrapper) Metrics() *Metrics {
	return w.m
}

func (w *MetricsWrapper) MLPredictionsInc() {
	w.m.MLPredictions.Inc()
}

func (w *MetricsWrapper) MLPlaceholderInc(reason string) {
	w.m.MLPlaceholders.WithLabelValues(reason).Inc()
}

func (w *MetricsWrapper) MLPropertyFailuresInc(property string) {
	w.m.MLPropertyFailure.WithLabelValues(property).Inc()
}

func (w *MetricsWrapper) MLLatencyObserve(seconds float64) {
	w.m.MLLatency.Observe(seconds)
}

func (w *MetricsWrapper) MLConfidenceObserve(property string, confidence float64) {
	w.m.MLConfidence.WithLabelValues(property).Observe(confidence)
}

func (w *MetricsWrapper) MLModelLoadedSet(loaded bool) {
	if loaded {
		w.m.MLModelLoaded.Set(1)
		return
	}
	w.m.MLModelLoaded.Set(0)
}

func (w *MetricsWrapper) MLModelAgeSet(seconds float64) {
	w.m.MLModelAge.Set(seconds)
}

func (w *MetricsWrapper) MLCacheHitsInc() {
	w.m.MLCacheHits.Inc()
}

func (w *MetricsWrapper) MLCacheMissesInc() {
	w.m.MLCacheMisses.Inc()
}

func (w *MetricsWrapper) FeatureErrorsInc() {
	w.m.FeatureErrors.Inc()
}

func (w *MetricsWrapper) FeatureCalcDuration(d time.Duration) {
	w.m.FeatureDuration.Observe(d.Seconds())
}

// HTTPRequestObserve records one served request.
func (w *MetricsWrapper) HTTPRequestObserve(route string, status int, d time.Duration) {
	w.m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	w.m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (w *MetricsWrapper) BatchSizeObserve(n int) {
	w.m.BatchSize.Observe(float64(n))
}

func (w *MetricsWrapper) StreamConnectionsAdd(delta float64) {
	w.m.StreamConnections.Add(delta)
}

// HistoryWriteObserve counts a persisted record, or a failed write when err
// is non-nil.
func (w *MetricsWrapper) HistoryWriteObserve(err error) {
	if err != nil {
		w.m.HistoryErrors.Inc()
		return
	}
	w.m.HistoryWrites.Inc()
}
