package ml

import (
	"fmt"
	"math"
)

// Scaler maps a raw feature vector onto the space a model was fit in.
type Scaler interface {
	Transform(x []float64) ([]float64, error)
}

// StandardScaler subtracts the fitted mean and divides by the fitted scale,
// per feature.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Transform returns a new slice; x is not modified.
func (s *StandardScaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("scaler fitted on %d features, got %d", len(s.Mean), len(x))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (v - s.Mean[i]) / scale
	}
	return out, nil
}

func (s *StandardScaler) validate(nFeatures int) error {
	if len(s.Mean) != nFeatures || len(s.Scale) != nFeatures {
		return fmt.Errorf("scaler has %d means and %d scales, want %d", len(s.Mean), len(s.Scale), nFeatures)
	}
	for i := range s.Mean {
		if !finite(s.Mean[i]) || !finite(s.Scale[i]) {
			return fmt.Errorf("scaler entry %d is not finite", i)
		}
	}
	return nil
}

// IdentityScaler passes features through unchanged. Legacy artifacts carry
// no scaler and use it.
type IdentityScaler struct{}

func (IdentityScaler) Transform(x []float64) ([]float64, error) {
	out := make([]float64, len(x))
	copy(out, x)
	return out, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
