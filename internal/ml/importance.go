package ml

import (
	"math"
	"sort"

	"polymer-predictor/internal/features"
)

// FeatureStats is the importance of one feature within a property ensemble.
type FeatureStats struct {
	Name            string  `json:"name"`
	ImportanceScore float64 `json:"importance_score"`
}

// FeatureImportance estimates how much each feature drives a property
// ensemble, read from the fitted models alone: absolute coefficients for
// linear members and split counts for tree members. Each member's scores
// are normalized to sum to 1 before averaging, so the result sums to 1
// unless no member uses any feature. Results are sorted by descending
// score, ties by name.
func FeatureImportance(b Bundle) []FeatureStats {
	total := make([]float64, features.Size)
	for _, r := range b.Ensemble {
		scores := memberImportance(r)
		var sum float64
		for _, s := range scores {
			sum += s
		}
		if sum == 0 {
			continue
		}
		for i, s := range scores {
			total[i] += s / sum
		}
	}

	var grand float64
	for _, v := range total {
		grand += v
	}

	out := make([]FeatureStats, features.Size)
	for i, name := range features.Names {
		out[i] = FeatureStats{Name: name}
		if grand > 0 {
			out[i].ImportanceScore = total[i] / grand
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ImportanceScore != out[j].ImportanceScore {
			return out[i].ImportanceScore > out[j].ImportanceScore
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// TopFeatures returns the names of the n most important features.
func TopFeatures(b Bundle, n int) []string {
	stats := FeatureImportance(b)
	if n > len(stats) {
		n = len(stats)
	}
	names := make([]string, 0, n)
	for _, s := range stats[:n] {
		if s.ImportanceScore == 0 {
			break
		}
		names = append(names, s.Name)
	}
	return names
}

func memberImportance(r Regressor) []float64 {
	scores := make([]float64, features.Size)
	switch m := r.(type) {
	case *LinearModel:
		for i, c := range m.Coef {
			if i < len(scores) {
				scores[i] = math.Abs(c)
			}
		}
	case *DecisionTree:
		countSplits(m, scores)
	case *Forest:
		for _, t := range m.Trees {
			countSplits(t, scores)
		}
	case *GradientBoosting:
		for _, t := range m.Trees {
			countSplits(t, scores)
		}
	}
	return scores
}

func countSplits(t *DecisionTree, scores []float64) {
	for node, f := range t.Feature {
		if t.ChildrenLeft[node] < 0 || f < 0 || f >= len(scores) {
			continue
		}
		scores[f]++
	}
}
