package ml

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polymer-predictor/internal/features"
)

// stump splits on feature 0 at threshold: left leaf 1, right leaf 2.
func stump(threshold float64) *DecisionTree {
	return &DecisionTree{
		ChildrenLeft:  []int{1, -1, -1},
		ChildrenRight: []int{2, -1, -1},
		Feature:       []int{0, -2, -2},
		Threshold:     []float64{threshold, -2, -2},
		Value:         []float64{0, 1, 2},
	}
}

func TestDecisionTree_Predict(t *testing.T) {
	tree := stump(2.5)
	x := make([]float64, features.Size)

	x[0] = 2
	y, err := tree.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, 1.0, y)

	x[0] = 2.5
	y, err = tree.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, 1.0, y, "equal to threshold goes left")

	x[0] = 3
	y, err = tree.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, 2.0, y)
}

func TestDecisionTree_SplitUsesFloat32(t *testing.T) {
	// float32(0.1) is slightly above 0.1, and above this threshold.
	tree := stump(0.1000000005)
	x := make([]float64, features.Size)
	x[0] = 0.1

	y, err := tree.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, 2.0, y)
}

func TestForestAndBoosting(t *testing.T) {
	x := make([]float64, features.Size)

	forest := NewForest(KindRandomForest, []*DecisionTree{constantTree(1), constantTree(3), constantTree(5)})
	y, err := forest.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, 3.0, y)
	assert.Equal(t, KindRandomForest, forest.Kind())

	gb := &GradientBoosting{Init: 1, LearningRate: 0.5, Trees: []*DecisionTree{constantTree(2), constantTree(4)}}
	y, err = gb.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, 4.0, y)
}

func TestLinearModel_DimensionMismatch(t *testing.T) {
	m := constantLinear(1)
	_, err := m.Predict([]float64{1, 2})
	assert.Error(t, err)
}

func TestDecodeRegressor_RoundTrip(t *testing.T) {
	models := []Regressor{
		constantLinear(3),
		stump(0.5),
		NewForest(KindExtraTrees, []*DecisionTree{stump(1), constantTree(7)}),
		&GradientBoosting{Init: 0.5, LearningRate: 0.1, Trees: []*DecisionTree{stump(2)}},
	}

	x := make([]float64, features.Size)
	x[0] = 1.5
	for _, m := range models {
		t.Run(m.Kind(), func(t *testing.T) {
			raw, err := json.Marshal(m)
			require.NoError(t, err)

			decoded, err := decodeRegressor(raw, features.Size)
			require.NoError(t, err)
			assert.Equal(t, m.Kind(), decoded.Kind())

			want, err := m.Predict(x)
			require.NoError(t, err)
			got, err := decoded.Predict(x)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestDecodeRegressor_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no kind", `{"coef": [1]}`},
		{"unknown kind", `{"kind": "svm"}`},
		{"linear wrong width", `{"kind": "linear", "coef": [1, 2], "intercept": 0}`},
		{"tree empty", `{"kind": "decision_tree", "children_left": [], "children_right": [], "feature": [], "threshold": [], "value": []}`},
		{"tree ragged", `{"kind": "decision_tree", "children_left": [-1], "children_right": [-1], "feature": [0], "threshold": [0], "value": []}`},
		{"tree one child", `{"kind": "decision_tree", "children_left": [1, -1], "children_right": [-1, -1], "feature": [0, -2], "threshold": [0, 0], "value": [0, 1]}`},
		{"tree cycle", `{"kind": "decision_tree", "children_left": [0, -1], "children_right": [1, -1], "feature": [0, -2], "threshold": [0, 0], "value": [0, 1]}`},
		{"tree feature out of range", `{"kind": "decision_tree", "children_left": [1, -1, -1], "children_right": [2, -1, -1], "feature": [99, -2, -2], "threshold": [0, 0, 0], "value": [0, 1, 2]}`},
		{"forest empty", `{"kind": "random_forest", "estimators": []}`},
		{"boosting empty", `{"kind": "gradient_boosting", "init": 0, "learning_rate": 0.1, "estimators": []}`},
		{"not an object", `[1, 2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeRegressor(json.RawMessage(tt.body), features.Size)
			assert.Error(t, err)
		})
	}
}

func TestStandardScaler(t *testing.T) {
	s := &StandardScaler{Mean: []float64{1, 2, 3}, Scale: []float64{2, 0, 1}}
	out, err := s.Transform([]float64{3, 5, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3, 0}, out, "zero scale acts as one")

	_, err = s.Transform([]float64{1})
	assert.Error(t, err)

	assert.Error(t, s.validate(features.Size))
}
