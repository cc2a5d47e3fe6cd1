package ml

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Regressor is one fitted ensemble member. Implementations are read-only
// after decoding and safe for concurrent use.
type Regressor interface {
	Kind() string
	Predict(x []float64) (float64, error)
}

// Model kinds understood in artifacts.
const (
	KindLinear           = "linear"
	KindDecisionTree     = "decision_tree"
	KindRandomForest     = "random_forest"
	KindExtraTrees       = "extra_trees"
	KindGradientBoosting = "gradient_boosting"
)

// LinearModel is y = coef·x + intercept.
type LinearModel struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

func (m *LinearModel) Kind() string { return KindLinear }

func (m *LinearModel) Predict(x []float64) (float64, error) {
	if len(x) != len(m.Coef) {
		return 0, fmt.Errorf("linear model expects %d features, got %d", len(m.Coef), len(x))
	}
	y := m.Intercept
	for i, c := range m.Coef {
		y += c * x[i]
	}
	return y, nil
}

func (m *LinearModel) validate(nFeatures int) error {
	if len(m.Coef) != nFeatures {
		return fmt.Errorf("linear model has %d coefficients, want %d", len(m.Coef), nFeatures)
	}
	return nil
}

// DecisionTree is a fitted regression tree in flat array form. Node 0 is the
// root; a node whose left child is -1 is a leaf.
type DecisionTree struct {
	ChildrenLeft  []int     `json:"children_left"`
	ChildrenRight []int     `json:"children_right"`
	Feature       []int     `json:"feature"`
	Threshold     []float64 `json:"threshold"`
	Value         []float64 `json:"value"`
}

func (t *DecisionTree) Kind() string { return KindDecisionTree }

// Predict walks from the root. Feature values are narrowed to float32 before
// the split comparison to reproduce the fitted split boundaries exactly.
func (t *DecisionTree) Predict(x []float64) (float64, error) {
	node := 0
	for t.ChildrenLeft[node] != -1 {
		f := t.Feature[node]
		if f >= len(x) {
			return 0, fmt.Errorf("tree splits on feature %d, input has %d", f, len(x))
		}
		if float64(float32(x[f])) <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return t.Value[node], nil
}

func (t *DecisionTree) validate(nFeatures int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return errors.New("tree has no nodes")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("tree arrays disagree in length (left=%d right=%d feature=%d threshold=%d value=%d)",
			n, len(t.ChildrenRight), len(t.Feature), len(t.Threshold), len(t.Value))
	}
	for i := 0; i < n; i++ {
		l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
		if l == -1 || r == -1 {
			if l != r {
				return fmt.Errorf("node %d has exactly one child", i)
			}
			if !finite(t.Value[i]) {
				return fmt.Errorf("leaf %d value is not finite", i)
			}
			continue
		}
		// children always follow their parent, which rules out cycles
		if l <= i || r <= i || l >= n || r >= n {
			return fmt.Errorf("node %d has invalid children %d/%d", i, l, r)
		}
		if t.Feature[i] < 0 || t.Feature[i] >= nFeatures {
			return fmt.Errorf("node %d splits on feature %d, want < %d", i, t.Feature[i], nFeatures)
		}
	}
	return nil
}

// Forest averages its trees. It covers both random forests and extra trees.
type Forest struct {
	kind  string
	Trees []*DecisionTree `json:"estimators"`
}

func (f *Forest) Kind() string { return f.kind }

func (f *Forest) Predict(x []float64) (float64, error) {
	var sum float64
	for i, t := range f.Trees {
		y, err := t.Predict(x)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		sum += y
	}
	return sum / float64(len(f.Trees)), nil
}

func (f *Forest) validate(nFeatures int) error {
	if len(f.Trees) == 0 {
		return errors.New("forest has no trees")
	}
	for i, t := range f.Trees {
		if t == nil {
			return fmt.Errorf("tree %d is null", i)
		}
		if err := t.validate(nFeatures); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

// GradientBoosting is init + learning_rate * sum(trees).
type GradientBoosting struct {
	Init         float64         `json:"init"`
	LearningRate float64         `json:"learning_rate"`
	Trees        []*DecisionTree `json:"estimators"`
}

func (g *GradientBoosting) Kind() string { return KindGradientBoosting }

func (g *GradientBoosting) Predict(x []float64) (float64, error) {
	var sum float64
	for i, t := range g.Trees {
		y, err := t.Predict(x)
		if err != nil {
			return 0, fmt.Errorf("stage %d: %w", i, err)
		}
		sum += y
	}
	return g.Init + g.LearningRate*sum, nil
}

func (g *GradientBoosting) validate(nFeatures int) error {
	if len(g.Trees) == 0 {
		return errors.New("gradient boosting model has no stages")
	}
	if !finite(g.Init) || !finite(g.LearningRate) {
		return errors.New("gradient boosting init or learning rate is not finite")
	}
	for i, t := range g.Trees {
		if t == nil {
			return fmt.Errorf("stage %d is null", i)
		}
		if err := t.validate(nFeatures); err != nil {
			return fmt.Errorf("stage %d: %w", i, err)
		}
	}
	return nil
}

type validator interface {
	validate(nFeatures int) error
}

// decodeRegressor reads one model object and checks it against the feature
// count it will be evaluated on.
func decodeRegressor(raw json.RawMessage, nFeatures int) (Regressor, error) {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}

	var m interface {
		Regressor
		validator
	}
	switch head.Kind {
	case KindLinear:
		m = &LinearModel{}
	case KindDecisionTree:
		m = &DecisionTree{}
	case KindRandomForest, KindExtraTrees:
		m = &Forest{kind: head.Kind}
	case KindGradientBoosting:
		m = &GradientBoosting{LearningRate: 1}
	case "":
		return nil, errors.New("model has no kind")
	default:
		return nil, fmt.Errorf("unsupported model kind %q", head.Kind)
	}

	if err := json.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("decode %s model: %w", head.Kind, err)
	}
	if err := m.validate(nFeatures); err != nil {
		return nil, fmt.Errorf("%s model: %w", head.Kind, err)
	}
	return m, nil
}

// NewForest builds a forest of the given kind (random_forest or extra_trees).
func NewForest(kind string, trees []*DecisionTree) *Forest {
	if kind != KindExtraTrees {
		kind = KindRandomForest
	}
	return &Forest{kind: kind, Trees: trees}
}

func (m *LinearModel) MarshalJSON() ([]byte, error) {
	type plain LinearModel
	return json.Marshal(struct {
		Kind string `json:"kind"`
		*plain
	}{KindLinear, (*plain)(m)})
}

func (t *DecisionTree) MarshalJSON() ([]byte, error) {
	type plain DecisionTree
	return json.Marshal(struct {
		Kind string `json:"kind"`
		*plain
	}{KindDecisionTree, (*plain)(t)})
}

func (f *Forest) MarshalJSON() ([]byte, error) {
	type plain Forest
	kind := f.kind
	if kind == "" {
		kind = KindRandomForest
	}
	return json.Marshal(struct {
		Kind string `json:"kind"`
		*plain
	}{kind, (*plain)(f)})
}

func (g *GradientBoosting) MarshalJSON() ([]byte, error) {
	type plain GradientBoosting
	return json.Marshal(struct {
		Kind string `json:"kind"`
		*plain
	}{KindGradientBoosting, (*plain)(g)})
}
