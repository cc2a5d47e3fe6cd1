// Package features turns a SMILES string into the fixed 21-element vector
// the property models were fit on.
package features

import (
	"errors"
	"fmt"
	"time"

	"polymer-predictor/internal/chem"
)

var (
	ErrInvalidMolecule    = errors.New("invalid molecule")
	ErrFeatureComputation = errors.New("feature computation failed")
)

// Size is the length of a feature vector.
const Size = 21

// Names is the model contract order. Reordering it silently corrupts every
// prediction made with an existing artifact.
var Names = [Size]string{
	"smiles_length", "carbon_count", "nitrogen_count", "oxygen_count",
	"sulfur_count", "fluorine_count", "ring_count", "double_bond_count",
	"triple_bond_count", "branch_count",
	"num_side_chains", "backbone_carbons", "branching_ratio",
	"aromatic_count", "h_bond_donors", "h_bond_acceptors",
	"num_rings", "single_bonds", "halogen_count",
	"heteroatom_count", "mw_estimate",
}

// Vector holds one molecule's features. The first ten fields are counted
// on the raw input text, the rest come from the parsed graph.
type Vector struct {
	SMILESLength    float64
	CarbonCount     float64
	NitrogenCount   float64
	OxygenCount     float64
	SulfurCount     float64
	FluorineCount   float64
	RingCount       float64
	DoubleBondCount float64
	TripleBondCount float64
	BranchCount     float64

	NumSideChains   float64
	BackboneCarbons float64
	BranchingRatio  float64
	AromaticCount   float64
	HBondDonors     float64
	HBondAcceptors  float64
	NumRings        float64
	SingleBonds     float64
	HalogenCount    float64
	HeteroatomCount float64
	MWEstimate      float64
}

// Values returns the features in Names order.
func (v Vector) Values() []float64 {
	return []float64{
		v.SMILESLength, v.CarbonCount, v.NitrogenCount, v.OxygenCount,
		v.SulfurCount, v.FluorineCount, v.RingCount, v.DoubleBondCount,
		v.TripleBondCount, v.BranchCount,
		v.NumSideChains, v.BackboneCarbons, v.BranchingRatio,
		v.AromaticCount, v.HBondDonors, v.HBondAcceptors,
		v.NumRings, v.SingleBonds, v.HalogenCount,
		v.HeteroatomCount, v.MWEstimate,
	}
}

// Map returns the features keyed by name.
func (v Vector) Map() map[string]float64 {
	vals := v.Values()
	out := make(map[string]float64, Size)
	for i, name := range Names {
		out[name] = vals[i]
	}
	return out
}

// FromValues rebuilds a Vector from a slice in Names order.
func FromValues(vals []float64) (Vector, error) {
	if len(vals) != Size {
		return Vector{}, fmt.Errorf("expected %d features, got %d", Size, len(vals))
	}
	return Vector{
		SMILESLength: vals[0], CarbonCount: vals[1], NitrogenCount: vals[2], OxygenCount: vals[3],
		SulfurCount: vals[4], FluorineCount: vals[5], RingCount: vals[6], DoubleBondCount: vals[7],
		TripleBondCount: vals[8], BranchCount: vals[9],
		NumSideChains: vals[10], BackboneCarbons: vals[11], BranchingRatio: vals[12],
		AromaticCount: vals[13], HBondDonors: vals[14], HBondAcceptors: vals[15],
		NumRings: vals[16], SingleBonds: vals[17], HalogenCount: vals[18],
		HeteroatomCount: vals[19], MWEstimate: vals[20],
	}, nil
}

// MetricsTracker receives extraction outcomes. Implementations must be safe
// for concurrent use.
type MetricsTracker interface {
	FeatureErrorsInc()
	FeatureCalcDuration(time.Duration)
}

// Extractor computes feature vectors. The zero value is ready to use.
type Extractor struct {
	Parser  chem.Parser
	Metrics MetricsTracker
}

// NewExtractor returns an extractor backed by the in-process parser.
func NewExtractor(metrics MetricsTracker) *Extractor {
	return &Extractor{Parser: chem.DefaultParser{}, Metrics: metrics}
}

var defaultExtractor = &Extractor{}

// Extract computes the feature vector for smiles with the default extractor.
func Extract(smiles string) (Vector, error) {
	return defaultExtractor.Extract(smiles)
}

// Extract computes the feature vector for smiles. Errors wrap
// ErrInvalidMolecule or ErrFeatureComputation.
func (e *Extractor) Extract(smiles string) (Vector, error) {
	v, _, err := e.ExtractMolecule(smiles)
	return v, err
}

// ExtractMolecule is Extract that also returns the parsed molecule, which
// is nil only when smiles does not parse.
func (e *Extractor) ExtractMolecule(smiles string) (Vector, *chem.Molecule, error) {
	start := time.Now()
	v, mol, err := e.extract(smiles)
	if e.Metrics != nil {
		e.Metrics.FeatureCalcDuration(time.Since(start))
		if err != nil {
			e.Metrics.FeatureErrorsInc()
		}
	}
	return v, mol, err
}

func (e *Extractor) extract(smiles string) (Vector, *chem.Molecule, error) {
	parser := e.Parser
	if parser == nil {
		parser = chem.DefaultParser{}
	}
	mol, err := parser.Parse(smiles)
	if err != nil {
		return Vector{}, nil, fmt.Errorf("%w: %w", ErrInvalidMolecule, err)
	}

	var v Vector
	structuralCounts(smiles, &v)
	if err := graphDescriptors(mol, &v); err != nil {
		return Vector{}, mol, fmt.Errorf("%w: %w", ErrFeatureComputation, err)
	}
	return v, mol, nil
}
