package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polymer-predictor/internal/features"
)

func TestFeatureImportance_Linear(t *testing.T) {
	coef := make([]float64, features.Size)
	coef[1] = -3 // carbon_count
	coef[3] = 1  // oxygen_count
	b := Bundle{Scaler: IdentityScaler{}, Ensemble: []Regressor{&LinearModel{Coef: coef}}}

	stats := FeatureImportance(b)
	require.Len(t, stats, features.Size)
	assert.Equal(t, "carbon_count", stats[0].Name)
	assert.InDelta(t, 0.75, stats[0].ImportanceScore, 1e-12)
	assert.Equal(t, "oxygen_count", stats[1].Name)
	assert.InDelta(t, 0.25, stats[1].ImportanceScore, 1e-12)
	assert.Zero(t, stats[2].ImportanceScore)
}

func TestFeatureImportance_MixedMembers(t *testing.T) {
	coef := make([]float64, features.Size)
	coef[0] = 2
	stump := &DecisionTree{
		ChildrenLeft:  []int{1, -1, -1},
		ChildrenRight: []int{2, -1, -1},
		Feature:       []int{aromaticIndex, -2, -2},
		Threshold:     []float64{0.5, -2, -2},
		Value:         []float64{0, 1, 2},
	}
	b := Bundle{Ensemble: []Regressor{
		&LinearModel{Coef: coef},
		NewForest(KindRandomForest, []*DecisionTree{stump, stump}),
	}}

	stats := FeatureImportance(b)
	var sum float64
	for _, s := range stats {
		sum += s.ImportanceScore
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.InDelta(t, 0.5, stats[0].ImportanceScore, 1e-12)
	assert.Equal(t, "aromatic_count", stats[0].Name, "ties break by name")
	assert.Equal(t, "smiles_length", stats[1].Name)

	assert.Equal(t, []string{"aromatic_count", "smiles_length"}, TopFeatures(b, 5))
}

func TestFeatureImportance_NoSignal(t *testing.T) {
	b := Bundle{Ensemble: []Regressor{&LinearModel{Coef: make([]float64, features.Size), Intercept: 3}}}
	for _, s := range FeatureImportance(b) {
		assert.Zero(t, s.ImportanceScore)
	}
	assert.Empty(t, TopFeatures(b, 3))
}

func TestFeatureImportance_DemoArtifact(t *testing.T) {
	store := demoStore(t)
	b, ok := store.Bundle(Tg)
	require.True(t, ok)

	top := TopFeatures(b, 1)
	require.Len(t, top, 1)
	assert.Equal(t, "aromatic_count", top[0])
}
