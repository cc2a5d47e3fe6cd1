package ml

import (
	"fmt"
	"strings"
)

// Property names a predicted polymer property. Values are the external,
// lowercase keys.
type Property string

const (
	Tg      Property = "tg"
	FFV     Property = "ffv"
	Tc      Property = "tc"
	Density Property = "density"
	Rg      Property = "rg"
)

// Properties lists every predicted property in reporting order.
var Properties = []Property{Tg, FFV, Tc, Density, Rg}

// ParseProperty maps an artifact or user supplied key onto a Property,
// ignoring case.
func ParseProperty(s string) (Property, error) {
	p := Property(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Properties {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown property %q", s)
}

// postTransforms are applied once to the ensemble mean.
var postTransforms = map[Property]func(float64) float64{
	Tg: func(v float64) float64 { return 1.8*v + 45 },
}

// PostTransform applies the property specific correction to an aggregated
// value. Properties without a correction are returned unchanged.
func PostTransform(p Property, v float64) float64 {
	if fn, ok := postTransforms[p]; ok {
		return fn(v)
	}
	return v
}
