package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polymer-predictor/internal/api"
	"polymer-predictor/internal/features"
	"polymer-predictor/internal/ml"
	"polymer-predictor/internal/storage"
)

// execute runs the root command. Flag values persist between runs, so
// tests pass every flag they depend on.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func demoArtifact(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "demo.json")
	require.NoError(t, ml.SaveArtifact(path, ml.DemoDocument(5), false))
	return path
}

func TestFeaturesCommand(t *testing.T) {
	out, err := execute(t, "features", "--json=false", "CCO")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, features.Size)
	assert.Equal(t, []string{"smiles_length", "3"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"carbon_count", "2"}, strings.Fields(lines[1]))

	out, err = execute(t, "features", "--json", "CCO")
	require.NoError(t, err)
	var m map[string]float64
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Equal(t, 1.0, m["oxygen_count"])

	_, err = execute(t, "features", "--json=false", "C1CC")
	assert.ErrorIs(t, err, features.ErrInvalidMolecule)
}

func TestCanonCommand(t *testing.T) {
	out, err := execute(t, "canon", "OCC", "c1ccccc1")
	require.NoError(t, err)
	assert.Equal(t, "OCC\tCCO\nc1ccccc1\tc1ccccc1\n", out)

	out, err = execute(t, "canon", "CC", "XYZ123")
	assert.EqualError(t, err, "1 of 2 molecules are invalid")
	assert.Contains(t, out, "CC\tCC\n")
	assert.Contains(t, out, "XYZ123\tinvalid:")
}

func TestPredictCommand_Local(t *testing.T) {
	model := demoArtifact(t)

	out, err := execute(t, "predict", "--url=", "--model", model, "CCO", "XYZ123")
	require.NoError(t, err)

	var results []api.PredictionResponse
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "CCO", results[0].SMILES)
	assert.False(t, results[0].Predictions.IsPlaceholder())
	assert.True(t, results[1].Predictions.IsPlaceholder())
}

func TestPredictCommand_Remote(t *testing.T) {
	store := ml.NewStore(demoArtifact(t))
	h := api.NewHandler(api.Deps{Engine: ml.NewEngine(store, nil, nil, ml.EngineConfig{}), Models: store}, api.Options{})
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	out, err := execute(t, "predict", "--url", srv.URL, "c1ccccc1")
	require.NoError(t, err)

	var results []api.PredictionResponse
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Len(t, results[0].Predictions, len(ml.Properties))
}

func TestInspectCommand(t *testing.T) {
	model := demoArtifact(t)

	out, err := execute(t, "inspect", "--importance", "0", "--model", model)
	require.NoError(t, err)
	assert.NotContains(t, out, "Importance:")
	assert.Contains(t, out, "Format:     v1")
	assert.Contains(t, out, "Ensemble:   5")
	assert.Contains(t, out, "tg       members=5 kinds=gradient_boosting,linear,random_forest")

	out, err = execute(t, "inspect", "--importance", "99", "--model", model)
	require.NoError(t, err)
	assert.Contains(t, out, "Importance:")
	assert.Contains(t, out, "tg       aromatic_count=")

	_, err = execute(t, "inspect", "--model", filepath.Join(t.TempDir(), "none.json"))
	assert.Error(t, err)
}

func TestExportFeaturesAndHistory(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.New(dir)
	require.NoError(t, err)
	v, err := features.Extract("CCO")
	require.NoError(t, err)
	require.NoError(t, store.SaveFeatures(storage.NewFeatureRecord("CCO", v)))
	_, err = store.SavePrediction(storage.PredictionRecord{SMILES: "CCO", Predictions: ml.Placeholder()})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	csvPath := filepath.Join(t.TempDir(), "features.csv")
	out, err := execute(t, "export-features", "--data", dir, "--out", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 1 feature records")
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "smiles,smiles_length,"))

	out, err = execute(t, "history", "--data", dir, "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "CCO")
	assert.Contains(t, out, "tg=0")
	assert.Contains(t, out, "(placeholder model)")
}

func TestModelsCommands(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.json", "b.json"} {
		require.NoError(t, ml.SaveArtifact(filepath.Join(dir, name), ml.DemoDocument(1), false))
	}

	out, err := execute(t, "models", "list", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No registered versions")

	_, err = execute(t, "models", "add", "--dir", dir, "v1", "a.json")
	require.NoError(t, err)
	_, err = execute(t, "models", "add", "--dir", dir, "v2", "b.json")
	require.NoError(t, err)
	_, err = execute(t, "models", "add", "--dir", dir, "v3", "missing.json")
	assert.Error(t, err)

	_, err = execute(t, "models", "activate", "--dir", dir, "v2")
	require.NoError(t, err)

	out, err = execute(t, "models", "list", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "* v2")

	out, err = execute(t, "models", "rollback", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Active version is now v1")

	_, err = execute(t, "models", "activate", "--dir", dir, "v9")
	assert.Error(t, err)
}
