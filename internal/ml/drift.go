package ml

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"polymer-predictor/internal/features"
)

// DriftConfig configures input drift detection.
type DriftConfig struct {
	// WindowSize is the number of recent feature vectors compared against
	// the training baseline; 0 disables detection.
	WindowSize int
	// Threshold is the standardized mean shift that raises an alert.
	Threshold     float64
	AlertCooldown time.Duration
}

// DriftAlert reports a feature whose recent mean moved away from the
// training distribution.
type DriftAlert struct {
	Timestamp time.Time `json:"timestamp"`
	Feature   string    `json:"feature"`
	Score     float64   `json:"score"`
	Threshold float64   `json:"threshold"`
	Severity  string    `json:"severity"`
}

// DriftStatus is a snapshot of the detector.
type DriftStatus struct {
	Samples    int                `json:"samples"`
	WindowSize int                `json:"window_size"`
	Threshold  float64            `json:"threshold"`
	Scores     map[string]float64 `json:"scores"`
	Alerts     []DriftAlert       `json:"alerts"`
}

// DriftDetector compares the running mean of served feature vectors with
// the mean and scale the artifact's scaler was fitted on. The score of a
// feature is |window mean - training mean| / training scale.
type DriftDetector struct {
	mu        sync.Mutex
	mean      []float64
	scale     []float64
	window    [][]float64
	next      int
	filled    int
	sums      []float64
	observed  int64
	cfg       DriftConfig
	lastAlert []time.Time // per feature
	alerts    []DriftAlert
}

// NewDriftDetector builds a detector from the first property scaler of
// store that carries fitted statistics. It returns nil, a disabled
// detector, when there is no such scaler or the window size is 0.
func NewDriftDetector(store *Store, cfg DriftConfig) *DriftDetector {
	if cfg.WindowSize <= 0 || store == nil || !store.IsLoaded() {
		return nil
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 1.0
	}
	if cfg.AlertCooldown <= 0 {
		cfg.AlertCooldown = time.Hour
	}

	for _, p := range Properties {
		b, ok := store.Bundle(p)
		if !ok {
			continue
		}
		s, ok := b.Scaler.(*StandardScaler)
		if !ok || len(s.Mean) != features.Size {
			continue
		}

		scale := make([]float64, features.Size)
		for i, v := range s.Scale {
			scale[i] = v
			if v == 0 {
				scale[i] = 1
			}
		}
		return &DriftDetector{
			mean:      append([]float64(nil), s.Mean...),
			scale:     scale,
			window:    make([][]float64, cfg.WindowSize),
			sums:      make([]float64, features.Size),
			cfg:       cfg,
			lastAlert: make([]time.Time, features.Size),
		}
	}
	return nil
}

// Observe records one feature vector. Detection runs each time a full
// window of new vectors has been seen.
func (d *DriftDetector) Observe(x []float64) {
	if d == nil || len(x) != len(d.mean) {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if old := d.window[d.next]; old != nil {
		for i, v := range old {
			d.sums[i] -= v
		}
	}
	sample := append([]float64(nil), x...)
	for i, v := range sample {
		d.sums[i] += v
	}
	d.window[d.next] = sample
	d.next = (d.next + 1) % len(d.window)
	if d.filled < len(d.window) {
		d.filled++
	}
	d.observed++

	if d.observed%int64(len(d.window)) == 0 {
		d.detectLocked(time.Now())
	}
}

func (d *DriftDetector) scoresLocked() []float64 {
	scores := make([]float64, len(d.mean))
	if d.filled == 0 {
		return scores
	}
	for i := range scores {
		scores[i] = math.Abs(d.sums[i]/float64(d.filled)-d.mean[i]) / d.scale[i]
	}
	return scores
}

// detectLocked raises an alert for every feature above the threshold
// whose own cooldown has passed. Status keeps the latest alert per feature.
func (d *DriftDetector) detectLocked(now time.Time) []DriftAlert {
	var alerts []DriftAlert
	for i, score := range d.scoresLocked() {
		if score <= d.cfg.Threshold {
			continue
		}
		if !d.lastAlert[i].IsZero() && now.Sub(d.lastAlert[i]) < d.cfg.AlertCooldown {
			continue
		}
		severity := "medium"
		if score > 2*d.cfg.Threshold {
			severity = "high"
		}
		alert := DriftAlert{
			Timestamp: now,
			Feature:   features.Names[i],
			Score:     score,
			Threshold: d.cfg.Threshold,
			Severity:  severity,
		}
		alerts = append(alerts, alert)
		d.lastAlert[i] = now
		d.replaceAlert(alert)
		log.Warn().
			Str("feature", alert.Feature).
			Float64("score", score).
			Str("severity", severity).
			Int("window", d.filled).
			Msg("Input drift detected")
	}
	return alerts
}

func (d *DriftDetector) replaceAlert(alert DriftAlert) {
	for i := range d.alerts {
		if d.alerts[i].Feature == alert.Feature {
			d.alerts[i] = alert
			return
		}
	}
	d.alerts = append(d.alerts, alert)
}

// Detect checks the current window now, honouring each feature's alert
// cooldown.
func (d *DriftDetector) Detect() []DriftAlert {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detectLocked(time.Now())
}

// Status returns per-feature scores over the current window and the most
// recent alert of each feature that has drifted.
func (d *DriftDetector) Status() DriftStatus {
	if d == nil {
		return DriftStatus{Scores: map[string]float64{}}
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	st := DriftStatus{
		Samples:    d.filled,
		WindowSize: len(d.window),
		Threshold:  d.cfg.Threshold,
		Scores:     make(map[string]float64, len(d.mean)),
		Alerts:     append([]DriftAlert(nil), d.alerts...),
	}
	for i, s := range d.scoresLocked() {
		st.Scores[features.Names[i]] = s
	}
	return st
}
