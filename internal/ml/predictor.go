package ml

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"polymer-predictor/internal/chem"
	"polymer-predictor/internal/features"
)

// MetricsInterface defines metrics methods needed by the engine
type MetricsInterface interface {
	MLPredictionsInc()
	MLPlaceholderInc(reason string)
	MLPropertyFailuresInc(property string)
	MLLatencyObserve(float64)
	MLConfidenceObserve(property string, confidence float64)
	MLModelLoadedSet(bool)
	MLModelAgeSet(float64)
	MLCacheHitsInc()
	MLCacheMissesInc()
}

// Prediction is one property's point estimate and ensemble confidence.
// Confidence is a dispersion heuristic, not a calibrated probability; 0
// means the value must not be trusted.
type Prediction struct {
	Value      float64 `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Result always holds every property in Properties.
type Result map[Property]Prediction

// Clone returns a copy that can be modified independently.
func (r Result) Clone() Result {
	out := make(Result, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// EngineConfig configures optional engine behaviour.
type EngineConfig struct {
	// CacheSize is the number of results kept; 0 disables caching.
	CacheSize int
	CacheTTL  time.Duration
	Drift     DriftConfig
}

// Engine turns SMILES into property predictions using an immutable Store.
// Predict never fails; every failure mode produces zero-confidence
// placeholders for the affected properties.
type Engine struct {
	store     *Store
	extractor *features.Extractor
	metrics   MetricsInterface
	cache     *ResultCache
	drift     *DriftDetector
}

// NewEngine builds an engine around store. extractor and metrics may be nil.
func NewEngine(store *Store, extractor *features.Extractor, metrics MetricsInterface, cfg EngineConfig) *Engine {
	if extractor == nil {
		extractor = features.NewExtractor(nil)
	}
	e := &Engine{
		store:     store,
		extractor: extractor,
		metrics:   metrics,
		cache:     NewResultCache(cfg.CacheSize, cfg.CacheTTL),
		drift:     NewDriftDetector(store, cfg.Drift),
	}

	if metrics != nil {
		metrics.MLModelLoadedSet(store.IsLoaded())
		if age := store.ModelAge(); age > 0 {
			metrics.MLModelAgeSet(age.Seconds())
		}
	}
	return e
}

// Store returns the model store the engine reads from.
func (e *Engine) Store() *Store { return e.store }

// Drift returns the input drift detector, nil when disabled.
func (e *Engine) Drift() *DriftDetector { return e.drift }

// IsLoaded reports whether predictions come from a loaded artifact.
func (e *Engine) IsLoaded() bool { return e.store.IsLoaded() }

// Analysis is a prediction together with what the engine learned about the
// input on the way.
type Analysis struct {
	Result Result
	// Features is nil when extraction failed.
	Features *features.Vector
	// Molecule is nil when the SMILES did not parse. It is shared and must
	// not be modified.
	Molecule *chem.Molecule
}

func (a Analysis) clone() Analysis {
	out := Analysis{Result: a.Result.Clone(), Molecule: a.Molecule}
	if a.Features != nil {
		v := *a.Features
		out.Features = &v
	}
	return out
}

// Predict returns predictions for every property.
func (e *Engine) Predict(smiles string) Result {
	return e.Analyze(smiles).Result
}

// Analyze is Predict that also returns the extracted features and parsed
// molecule, so callers that persist them need not parse the input again.
func (e *Engine) Analyze(smiles string) Analysis {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.MLPredictionsInc()
			e.metrics.MLLatencyObserve(time.Since(start).Seconds())
		}
	}()

	if a, ok := e.cache.Get(smiles); ok {
		if e.metrics != nil {
			e.metrics.MLCacheHitsInc()
		}
		return a
	}
	if e.cache.Enabled() && e.metrics != nil {
		e.metrics.MLCacheMissesInc()
	}

	v, mol, err := e.extractor.ExtractMolecule(smiles)
	a := Analysis{Molecule: mol}
	if err != nil {
		reason := ReasonFeatureComputation
		if errors.Is(err, features.ErrInvalidMolecule) {
			reason = ReasonInvalidMolecule
		}
		log.Debug().Err(err).Str("smiles", smiles).Str("reason", string(reason)).Msg("Feature extraction failed, returning placeholders")
		e.placeholderUsed(reason)
		a.Result = Placeholder()
	} else {
		e.drift.Observe(v.Values())
		a.Features = &v
		a.Result = e.PredictVector(v)
	}

	e.cache.Add(smiles, a)
	return a.clone()
}

// PredictVector runs the ensembles on an already extracted vector.
func (e *Engine) PredictVector(v features.Vector) Result {
	if !e.store.IsLoaded() {
		e.placeholderUsed(ReasonModelUnavailable)
		return Placeholder()
	}

	x := v.Values()
	result := make(Result, len(Properties))
	for _, p := range Properties {
		b, ok := e.store.Bundle(p)
		if !ok {
			e.placeholderUsed(ReasonPropertyMissing)
			result[p] = Prediction{}
			continue
		}

		pred, err := predictProperty(p, b, x)
		if err != nil {
			log.Warn().Err(err).Str("property", string(p)).Msg("Property inference failed, returning placeholder")
			if e.metrics != nil {
				e.metrics.MLPropertyFailuresInc(string(p))
			}
			e.placeholderUsed(ReasonInferenceError)
			result[p] = Prediction{}
			continue
		}

		if e.metrics != nil {
			e.metrics.MLConfidenceObserve(string(p), pred.Confidence)
		}
		result[p] = pred
	}
	return result
}

func predictProperty(p Property, b Bundle, x []float64) (Prediction, error) {
	if b.Scaler == nil || len(b.Ensemble) == 0 {
		return Prediction{}, errors.New("bundle has no scaler or no models")
	}
	scaled, err := b.Scaler.Transform(x)
	if err != nil {
		return Prediction{}, fmt.Errorf("scale: %w", err)
	}

	outputs := make([]float64, len(b.Ensemble))
	for i, m := range b.Ensemble {
		y, err := m.Predict(scaled)
		if err != nil {
			return Prediction{}, fmt.Errorf("member %d (%s): %w", i, m.Kind(), err)
		}
		if !finite(y) {
			return Prediction{}, fmt.Errorf("member %d (%s) returned %v", i, m.Kind(), y)
		}
		outputs[i] = y
	}

	mean, confidence := Aggregate(outputs)
	value := PostTransform(p, mean)
	if !finite(value) {
		return Prediction{}, fmt.Errorf("transformed value %v is not finite", value)
	}
	return Prediction{Value: value, Confidence: confidence}, nil
}

// Aggregate returns the mean of outputs and the confidence
// 1/(1+std), using the population standard deviation, clamped to [0,1].
// An empty slice yields zeros.
func Aggregate(outputs []float64) (mean, confidence float64) {
	if len(outputs) == 0 {
		return 0, 0
	}
	n := float64(len(outputs))
	for _, y := range outputs {
		mean += y
	}
	mean /= n

	var ss float64
	for _, y := range outputs {
		d := y - mean
		ss += d * d
	}
	std := math.Sqrt(ss / n)

	confidence = 1 / (1 + std)
	return mean, math.Min(math.Max(confidence, 0), 1)
}

func (e *Engine) placeholderUsed(reason PlaceholderReason) {
	if e.metrics != nil {
		e.metrics.MLPlaceholderInc(string(reason))
	}
}
