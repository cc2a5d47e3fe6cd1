package ml

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"polymer-predictor/internal/features"
)

// demoScale is a rough spread of each feature over small polymer repeat
// units, in features.Names order.
var demoScale = [features.Size]float64{
	40, 15, 3, 4, 1, 4, 2, 3, 1, 5,
	4, 10, 1, 6, 2, 4, 2, 25, 4, 6,
	300,
}

// demoTargets holds the untransformed centre and member spread per property.
var demoTargets = map[Property][2]float64{
	Tg:      {90, 8},
	FFV:     {0.37, 0.01},
	Tc:      {0.25, 0.02},
	Density: {1.05, 0.04},
	Rg:      {16, 1.5},
}

// aromaticIndex is the position of aromatic_count in the vector.
const aromaticIndex = 13

// DemoDocument builds a deterministic V1 artifact for local runs and
// tests. Each property gets DefaultEnsembleSize members: three linear
// models, a random forest and a gradient boosting model, all splitting or
// weighting on aromatic content. The same seed yields the same document.
func DemoDocument(seed int64) ArtifactDocument {
	rng := rand.New(rand.NewSource(seed))

	doc := ArtifactDocument{
		Models:       make(map[string][]Regressor, len(Properties)),
		Scalers:      make(map[string]*StandardScaler, len(Properties)),
		NEnsemble:    DefaultEnsembleSize,
		FeatureNames: features.Names[:],
	}

	for _, p := range Properties {
		centre, spread := demoTargets[p][0], demoTargets[p][1]

		scaler := &StandardScaler{Mean: make([]float64, features.Size), Scale: demoScale[:]}

		members := make([]Regressor, 0, DefaultEnsembleSize)
		for i := 0; i < 3; i++ {
			coef := make([]float64, features.Size)
			for j := range coef {
				coef[j] = rng.NormFloat64() * spread / 4
			}
			coef[aromaticIndex] = spread
			members = append(members, &LinearModel{Coef: coef, Intercept: centre + rng.NormFloat64()*spread/2})
		}

		// scaled aromatic_count of one atom is 1/6; split below that
		split := func(low, high float64) *DecisionTree {
			return &DecisionTree{
				ChildrenLeft:  []int{1, -1, -1},
				ChildrenRight: []int{2, -1, -1},
				Feature:       []int{aromaticIndex, -2, -2},
				Threshold:     []float64{0.05, -2, -2},
				Value:         []float64{0, low, high},
			}
		}
		trees := make([]*DecisionTree, 4)
		for i := range trees {
			jitter := rng.NormFloat64() * spread / 4
			trees[i] = split(centre-spread/2+jitter, centre+spread+jitter)
		}
		members = append(members, NewForest(KindRandomForest, trees))
		members = append(members, &GradientBoosting{
			Init:         centre,
			LearningRate: 0.1,
			Trees:        []*DecisionTree{split(-spread*5, spread*10)},
		})

		key := string(p)
		doc.Models[key] = members
		doc.Scalers[key] = scaler
	}
	return doc
}

// SaveArtifact writes doc to path, creating parent directories.
func SaveArtifact(path string, doc ArtifactDocument, compress bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	if err := WriteArtifact(f, doc, compress); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
