package ml

// PlaceholderReason labels why a zero-confidence placeholder was returned.
type PlaceholderReason string

const (
	ReasonInvalidMolecule    PlaceholderReason = "invalid_molecule"
	ReasonFeatureComputation PlaceholderReason = "feature_computation"
	ReasonModelUnavailable   PlaceholderReason = "model_unavailable"
	ReasonPropertyMissing    PlaceholderReason = "property_missing"
	ReasonInferenceError     PlaceholderReason = "inference_error"
)

// Placeholder returns the all-zero result used when prediction cannot
// proceed.
func Placeholder() Result {
	r := make(Result, len(Properties))
	for _, p := range Properties {
		r[p] = Prediction{}
	}
	return r
}

// IsPlaceholder reports whether every property has zero confidence.
func (r Result) IsPlaceholder() bool {
	for _, p := range Properties {
		if r[p].Confidence != 0 {
			return false
		}
	}
	return true
}
