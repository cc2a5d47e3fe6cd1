package ml

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoDocument_Deterministic(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, WriteArtifact(&a, DemoDocument(7), false))
	require.NoError(t, WriteArtifact(&b, DemoDocument(7), false))
	assert.Equal(t, a.String(), b.String())

	var c bytes.Buffer
	require.NoError(t, WriteArtifact(&c, DemoDocument(8), false))
	assert.NotEqual(t, a.String(), c.String())
}

func TestDemoDocument_LoadsAndPredicts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "demo.json.gz")
	require.NoError(t, SaveArtifact(path, DemoDocument(1), true))

	store := NewStore(path)
	require.True(t, store.IsLoaded(), "load error: %v", store.LoadErr())
	info := store.Info()
	assert.Equal(t, []string{"tg", "ffv", "tc", "density", "rg"}, info.Properties)
	assert.Equal(t, DefaultEnsembleSize, info.EnsembleSize)
	assert.Equal(t, "gradient_boosting,linear,random_forest", info.ModelKinds["tg"])

	engine := NewEngine(store, nil, nil, EngineConfig{})
	aromatic := engine.Predict("c1ccccc1")
	aliphatic := engine.Predict("CCCCCC")
	for _, p := range Properties {
		assert.Greater(t, aromatic[p].Confidence, 0.0, string(p))
		assert.LessOrEqual(t, aromatic[p].Confidence, 1.0, string(p))
		assert.NotEqual(t, aromatic[p].Value, aliphatic[p].Value, string(p))
	}
}
