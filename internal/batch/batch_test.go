package batch

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polymer-predictor/internal/ml"
)

// stubPredictor returns value = len(smiles) for every property, and
// placeholders for SMILES starting with "!".
type stubPredictor struct {
	calls atomic.Int64
}

func (s *stubPredictor) Predict(smiles string) ml.Result {
	s.calls.Add(1)
	if strings.HasPrefix(smiles, "!") {
		return ml.Placeholder()
	}
	r := make(ml.Result, len(ml.Properties))
	for _, p := range ml.Properties {
		r[p] = ml.Prediction{Value: float64(len(smiles)), Confidence: 0.5}
	}
	return r
}

func (s *stubPredictor) IsLoaded() bool { return true }

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadCSV(t *testing.T) {
	input := "id,SMILES,Tg,density,notes\n" +
		"1,CCO,120.5,,x\n" +
		"2, c1ccccc1 ,,1.05,y\n" +
		"3,CC,,,\n"

	samples, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)

	want := []Sample{
		{SMILES: "CCO", Measured: map[ml.Property]float64{ml.Tg: 120.5}},
		{SMILES: "c1ccccc1", Measured: map[ml.Property]float64{ml.Density: 1.05}},
		{SMILES: "CC"},
	}
	if diff := cmp.Diff(want, samples); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"empty", "", "header"},
		{"no smiles column", "name,tg\nx,1\n", "no smiles column"},
		{"bad number", "smiles,tg\nCC,abc\n", "line 2: column tg"},
		{"ragged row", "smiles,tg\nCC\n", "line 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := ReadCSV(strings.NewReader("a,b\n"))
	assert.True(t, errors.Is(err, ErrNoSMILESColumn))
}

func TestLoad_ByExtension(t *testing.T) {
	csvPath := writeFile(t, "in.csv", "smiles,ffv\nCC,0.36\n")
	samples, err := Load(csvPath)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 0.36, samples[0].Measured[ml.FFV])

	jsonPath := writeFile(t, "in.JSON", `[{"smiles":"CCO","measured":{"TG":100,"rg":12}},{"smiles":"N"}]`)
	samples, err = Load(jsonPath)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, map[ml.Property]float64{ml.Tg: 100, ml.Rg: 12}, samples[0].Measured)
	assert.Nil(t, samples[1].Measured)

	_, err = Load(writeFile(t, "in.txt", "CC"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.json", `[{"smiles":"C","measured":{"viscosity":1}}]`))
	assert.ErrorContains(t, err, "unknown property")

	_, err = Load(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestRunner_PreservesOrder(t *testing.T) {
	pred := &stubPredictor{}
	runner := NewRunner(pred, 4)
	runner.ProgressEvery = 10

	var samples []Sample
	for i := 1; i <= 50; i++ {
		samples = append(samples, Sample{SMILES: strings.Repeat("C", i)})
	}

	outcomes, err := runner.Run(context.Background(), samples)
	require.NoError(t, err)
	require.Len(t, outcomes, 50)
	for i, o := range outcomes {
		assert.Equal(t, samples[i].SMILES, o.SMILES)
		assert.Equal(t, float64(i+1), o.Predictions[ml.Tg].Value)
	}
	assert.Equal(t, int64(50), pred.calls.Load())
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(&stubPredictor{}, 0).Run(ctx, []Sample{{SMILES: "C"}, {SMILES: "CC"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegressionScores(t *testing.T) {
	mae, rmse, r2 := regressionScores([]float64{1, 2, 3, 4}, []float64{1, 2, 3, 4})
	assert.Equal(t, 0.0, mae)
	assert.Equal(t, 0.0, rmse)
	assert.Equal(t, 1.0, r2)

	// errors 1, -1, 1, -1; measured mean 2.5, ssTot 5
	mae, rmse, r2 = regressionScores([]float64{2, 1, 4, 3}, []float64{1, 2, 3, 4})
	assert.InDelta(t, 1.0, mae, 1e-12)
	assert.InDelta(t, 1.0, rmse, 1e-12)
	assert.InDelta(t, 1-4.0/5.0, r2, 1e-12)

	_, _, r2 = regressionScores([]float64{1, 2}, []float64{3, 3})
	assert.Equal(t, 0.0, r2, "constant targets")

	mae, rmse, r2 = regressionScores(nil, nil)
	assert.Zero(t, mae+rmse+r2)
}

func sampleOutcomes(t *testing.T) []Outcome {
	t.Helper()
	samples := []Sample{
		{SMILES: "CC", Measured: map[ml.Property]float64{ml.Tg: 3}},
		{SMILES: "CCCC", Measured: map[ml.Property]float64{ml.Tg: 3}},
		{SMILES: "!bad", Measured: map[ml.Property]float64{ml.Tg: 10}},
		{SMILES: "C"},
	}
	outcomes, err := NewRunner(&stubPredictor{}, 2).Run(context.Background(), samples)
	require.NoError(t, err)
	return outcomes
}

func TestSummarize(t *testing.T) {
	rep := Summarize(sampleOutcomes(t), true)

	assert.Equal(t, 4, rep.Total)
	assert.Equal(t, 1, rep.Invalid)
	assert.True(t, rep.ModelLoaded)
	require.Len(t, rep.Properties, len(ml.Properties))

	tg := rep.Properties[0]
	assert.Equal(t, ml.Tg, tg.Property)
	assert.Equal(t, 4, tg.Count)
	assert.Equal(t, 1, tg.Placeholders)
	assert.Equal(t, 0.5, tg.MeanConfidence)
	assert.Equal(t, 2, tg.Evaluated, "placeholders are excluded from accuracy")
	assert.InDelta(t, 1.0, tg.MAE, 1e-12)
	assert.InDelta(t, 1.0, tg.RMSE, 1e-12)
	assert.Equal(t, 0.0, tg.R2)

	ffv := rep.Properties[1]
	assert.Equal(t, 0, ffv.Evaluated)
	assert.Zero(t, ffv.MAE)
}

func TestReporter_GenerateReport(t *testing.T) {
	outcomes := sampleOutcomes(t)
	rep := Summarize(outcomes, true)
	dir := filepath.Join(t.TempDir(), "out")

	require.NoError(t, NewReporter(rep, outcomes, dir).GenerateReport())

	summary, err := os.ReadFile(filepath.Join(dir, "batch_summary.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "BATCH PREDICTION SUMMARY")
	assert.Contains(t, string(summary), "Molecules: 4")
	assert.Contains(t, string(summary), "Invalid: 1")

	data, err := os.ReadFile(filepath.Join(dir, "batch_results.json"))
	require.NoError(t, err)
	var decoded struct {
		Summary     Report    `json:"summary"`
		Predictions []Outcome `json:"predictions"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 4, decoded.Summary.Total)
	require.Len(t, decoded.Predictions, 4)
	assert.Equal(t, "CC", decoded.Predictions[0].SMILES)
	assert.Equal(t, 3.0, decoded.Predictions[0].Measured[ml.Tg])

	f, err := os.Open(filepath.Join(dir, "predictions.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"smiles", "tg", "tg_confidence", "tg_measured"}, rows[0][:4])
	assert.Len(t, rows[0], 1+3*len(ml.Properties))
	assert.Equal(t, []string{"CC", "2", "0.5", "3"}, rows[1][:4])
	assert.Equal(t, []string{"C", "1", "0.5", ""}, rows[4][:4])
}

func TestReporter_WriteSummaryNoMeasurements(t *testing.T) {
	outcomes := []Outcome{{Sample: Sample{SMILES: "C"}, Predictions: ml.Placeholder()}}
	var buf bytes.Buffer
	NewReporter(Summarize(outcomes, false), outcomes, "").WriteSummary(&buf)

	out := buf.String()
	assert.Contains(t, out, "Model Loaded: false")
	assert.Contains(t, out, "tg")
	assert.Contains(t, out, " -")
}
