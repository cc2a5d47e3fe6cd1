// Package ml loads fitted property-model artifacts and runs ensemble
// inference over molecular feature vectors.
//
// A Store is loaded once and is read-only afterwards. The Engine built on
// it never returns errors: invalid input, a missing artifact and
// per-property evaluation failures all resolve to zero-confidence
// placeholders.
package ml

// PredictorInterface is what the HTTP service and batch runner need from a
// predictor.
type PredictorInterface interface {
	// Predict returns a value and confidence for every property.
	Predict(smiles string) Result

	// IsLoaded reports whether predictions come from a loaded artifact
	// rather than placeholders.
	IsLoaded() bool
}

var _ PredictorInterface = (*Engine)(nil)

// Analyze is optional; the HTTP service uses it when present to persist
// features without parsing the input twice.
var _ interface{ Analyze(string) Analysis } = (*Engine)(nil)
