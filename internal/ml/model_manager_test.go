package ml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
}

func TestModelManager_ResolveArtifact(t *testing.T) {
	dir := t.TempDir()
	mm, err := NewModelManager(dir)
	require.NoError(t, err)

	def := filepath.Join(dir, "default.json")
	assert.Equal(t, def, mm.ResolveArtifact(def), "nothing registered or present")

	touch(t, filepath.Join(dir, "ensemble_v53_best.json"))
	assert.Equal(t, filepath.Join(dir, "ensemble_v53_best.json"), mm.ResolveArtifact(def))

	touch(t, filepath.Join(dir, "ensemble_v85_best.json"))
	assert.Equal(t, filepath.Join(dir, "ensemble_v85_best.json"), mm.ResolveArtifact(def))

	touch(t, filepath.Join(dir, "custom.json"))
	_, err = mm.AddVersion("v90", "custom.json", ModelMetrics{WeightedMAE: 0.07})
	require.NoError(t, err)
	require.NoError(t, mm.ActivateVersion("v90"))
	assert.Equal(t, filepath.Join(dir, "custom.json"), mm.ResolveArtifact(def))

	// active entry whose file vanished falls through to candidates
	require.NoError(t, os.Remove(filepath.Join(dir, "custom.json")))
	assert.Equal(t, filepath.Join(dir, "ensemble_v85_best.json"), mm.ResolveArtifact(def))
}

func TestModelManager_PersistsVersions(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.json"))
	touch(t, filepath.Join(dir, "b.json"))

	mm, err := NewModelManager(dir)
	require.NoError(t, err)
	_, err = mm.AddVersion("a", "a.json", ModelMetrics{TrainingSamples: 100})
	require.NoError(t, err)
	_, err = mm.AddVersion("b", "b.json", ModelMetrics{MAE: map[string]float64{"tg": 12.5}})
	require.NoError(t, err)
	require.NoError(t, mm.ActivateVersion("a"))

	reloaded, err := NewModelManager(dir)
	require.NoError(t, err)
	require.Len(t, reloaded.ListVersions(), 2)
	require.NotNil(t, reloaded.GetCurrentVersion())
	assert.Equal(t, "a", reloaded.GetCurrentVersion().Version)
}

func TestModelManager_Errors(t *testing.T) {
	dir := t.TempDir()
	mm, err := NewModelManager(dir)
	require.NoError(t, err)

	_, err = mm.AddVersion("x", "missing.json", ModelMetrics{})
	assert.Error(t, err)

	assert.Error(t, mm.ActivateVersion("nope"))
	assert.Error(t, mm.Rollback())

	touch(t, filepath.Join(dir, "x.json"))
	_, err = mm.AddVersion("x", "x.json", ModelMetrics{})
	require.NoError(t, err)
	_, err = mm.AddVersion("x", "x.json", ModelMetrics{})
	assert.Error(t, err, "duplicate version")

	_, err = NewModelManager("")
	assert.Error(t, err)
}

func TestModelManager_Rollback(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "old.json"))
	touch(t, filepath.Join(dir, "new.json"))

	mm, err := NewModelManager(dir)
	require.NoError(t, err)
	_, err = mm.AddVersion("old", "old.json", ModelMetrics{})
	require.NoError(t, err)
	_, err = mm.AddVersion("new", "new.json", ModelMetrics{})
	require.NoError(t, err)

	versions := mm.ListVersions()
	require.Len(t, versions, 2)
	newest := versions[0].Version
	older := versions[1].Version

	require.NoError(t, mm.ActivateVersion(newest))
	require.NoError(t, mm.Rollback())
	assert.Equal(t, older, mm.GetCurrentVersion().Version)
}
