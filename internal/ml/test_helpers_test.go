package ml

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"polymer-predictor/internal/features"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu               sync.Mutex
	predictions      int
	placeholders     map[string]int
	propertyFailures map[string]int
	latencySum       float64
	confidences      map[string][]float64
	modelLoaded      bool
	modelAge         float64
	cacheHits        int
	cacheMisses      int
}

func (m *MockMetrics) MLPredictionsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions++
}

func (m *MockMetrics) MLPlaceholderInc(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.placeholders == nil {
		m.placeholders = make(map[string]int)
	}
	m.placeholders[reason]++
}

func (m *MockMetrics) MLPropertyFailuresInc(property string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.propertyFailures == nil {
		m.propertyFailures = make(map[string]int)
	}
	m.propertyFailures[property]++
}

func (m *MockMetrics) MLLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) MLConfidenceObserve(property string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.confidences == nil {
		m.confidences = make(map[string][]float64)
	}
	m.confidences[property] = append(m.confidences[property], v)
}

func (m *MockMetrics) MLModelLoadedSet(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelLoaded = v
}

func (m *MockMetrics) MLModelAgeSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelAge = v
}

func (m *MockMetrics) MLCacheHitsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheHits++
}

func (m *MockMetrics) MLCacheMissesInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheMisses++
}

// constantTree is a single leaf returning v.
func constantTree(v float64) *DecisionTree {
	return &DecisionTree{
		ChildrenLeft:  []int{-1},
		ChildrenRight: []int{-1},
		Feature:       []int{-2},
		Threshold:     []float64{-2},
		Value:         []float64{v},
	}
}

// constantLinear ignores its input and returns v.
func constantLinear(v float64) *LinearModel {
	return &LinearModel{Coef: make([]float64, features.Size), Intercept: v}
}

func identityStandardScaler() *StandardScaler {
	s := &StandardScaler{Mean: make([]float64, features.Size), Scale: make([]float64, features.Size)}
	for i := range s.Scale {
		s.Scale[i] = 1
	}
	return s
}

// sampleDocument builds a V1 document where each property's ensemble
// returns the given constants.
func sampleDocument(outputs map[string][]float64) ArtifactDocument {
	doc := ArtifactDocument{
		Models:       make(map[string][]Regressor),
		Scalers:      make(map[string]*StandardScaler),
		NEnsemble:    DefaultEnsembleSize,
		FeatureNames: features.Names[:],
	}
	for prop, outs := range outputs {
		members := make([]Regressor, 0, len(outs))
		for _, v := range outs {
			members = append(members, constantLinear(v))
		}
		doc.Models[prop] = members
		doc.Scalers[prop] = identityStandardScaler()
	}
	return doc
}

// writeArtifact writes doc into dir and returns the path.
func writeArtifact(t *testing.T, dir, name string, doc ArtifactDocument, compress bool) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create artifact: %v", err)
	}
	defer f.Close()
	if err := WriteArtifact(f, doc, compress); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}
