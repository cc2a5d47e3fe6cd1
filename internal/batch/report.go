package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"polymer-predictor/internal/ml"
)

// PropertyStats summarizes one property over a batch. Accuracy fields are
// computed over samples that have a measured value and a real (non
// placeholder) prediction; they are zero when Evaluated is zero.
type PropertyStats struct {
	Property       ml.Property `json:"property"`
	Count          int         `json:"count"`
	Placeholders   int         `json:"placeholders"`
	MeanConfidence float64     `json:"mean_confidence"`
	Evaluated      int         `json:"evaluated"`
	MAE            float64     `json:"mae"`
	RMSE           float64     `json:"rmse"`
	R2             float64     `json:"r2"`
}

// Report is the result of Summarize.
type Report struct {
	Total       int             `json:"total"`
	Invalid     int             `json:"invalid"`
	ModelLoaded bool            `json:"model_loaded"`
	Properties  []PropertyStats `json:"properties"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// Summarize computes per-property statistics. Invalid counts samples whose
// predictions are placeholders for every property.
func Summarize(outcomes []Outcome, modelLoaded bool) Report {
	rep := Report{
		Total:       len(outcomes),
		ModelLoaded: modelLoaded,
		GeneratedAt: time.Now().UTC(),
	}
	for _, o := range outcomes {
		if o.Predictions.IsPlaceholder() {
			rep.Invalid++
		}
	}

	for _, p := range ml.Properties {
		stats := PropertyStats{Property: p, Count: len(outcomes)}
		var confSum float64
		var pred, meas []float64
		for _, o := range outcomes {
			got := o.Predictions[p]
			if got.Confidence == 0 {
				stats.Placeholders++
				continue
			}
			confSum += got.Confidence
			if want, ok := o.Measured[p]; ok {
				pred = append(pred, got.Value)
				meas = append(meas, want)
			}
		}
		if n := stats.Count - stats.Placeholders; n > 0 {
			stats.MeanConfidence = confSum / float64(n)
		}
		stats.Evaluated = len(pred)
		stats.MAE, stats.RMSE, stats.R2 = regressionScores(pred, meas)
		rep.Properties = append(rep.Properties, stats)
	}
	return rep
}

// regressionScores returns MAE, RMSE and the coefficient of determination.
// R2 is 0 when the measured values have no variance.
func regressionScores(pred, meas []float64) (mae, rmse, r2 float64) {
	n := len(pred)
	if n == 0 {
		return 0, 0, 0
	}

	var mean float64
	for _, y := range meas {
		mean += y
	}
	mean /= float64(n)

	var absSum, ssRes, ssTot float64
	for i := range pred {
		d := pred[i] - meas[i]
		absSum += math.Abs(d)
		ssRes += d * d
		ssTot += (meas[i] - mean) * (meas[i] - mean)
	}

	mae = absSum / float64(n)
	rmse = math.Sqrt(ssRes / float64(n))
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}
	return mae, rmse, r2
}

// Reporter writes batch reports to a directory.
type Reporter struct {
	report     Report
	outcomes   []Outcome
	outputPath string
}

// NewReporter creates a new reporter
func NewReporter(report Report, outcomes []Outcome, outputPath string) *Reporter {
	return &Reporter{report: report, outcomes: outcomes, outputPath: outputPath}
}

// GenerateReport writes batch_summary.txt, batch_results.json and
// predictions.csv.
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.generateSummary(); err != nil {
		return err
	}
	if err := r.generateJSONReport(); err != nil {
		return err
	}
	return r.generatePredictionLog()
}

func (r *Reporter) generateSummary() error {
	summaryPath := filepath.Join(r.outputPath, "batch_summary.txt")
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	r.WriteSummary(file)
	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return nil
}

// WriteSummary writes the human readable summary to w.
func (r *Reporter) WriteSummary(w io.Writer) {
	fmt.Fprintf(w, "BATCH PREDICTION SUMMARY\n")
	fmt.Fprintf(w, "========================\n\n")
	fmt.Fprintf(w, "Generated: %s\n", r.report.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Model Loaded: %t\n", r.report.ModelLoaded)
	fmt.Fprintf(w, "Molecules: %d\n", r.report.Total)
	fmt.Fprintf(w, "Invalid: %d\n\n", r.report.Invalid)

	fmt.Fprintf(w, "%-8s %7s %7s %9s %7s %10s %10s %8s\n",
		"Property", "Count", "Holes", "MeanConf", "Eval", "MAE", "RMSE", "R2")
	for _, s := range r.report.Properties {
		fmt.Fprintf(w, "%-8s %7d %7d %9.4f %7d", s.Property, s.Count, s.Placeholders, s.MeanConfidence, s.Evaluated)
		if s.Evaluated > 0 {
			fmt.Fprintf(w, " %10.4f %10.4f %8.4f\n", s.MAE, s.RMSE, s.R2)
		} else {
			fmt.Fprintf(w, " %10s %10s %8s\n", "-", "-", "-")
		}
	}
}

func (r *Reporter) generateJSONReport() error {
	jsonPath := filepath.Join(r.outputPath, "batch_results.json")

	report := map[string]interface{}{
		"summary":     r.report,
		"predictions": r.outcomes,
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return nil
}

// generatePredictionLog writes one row per molecule: smiles, then value and
// confidence per property, then the measured value when known.
func (r *Reporter) generatePredictionLog() error {
	csvPath := filepath.Join(r.outputPath, "predictions.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create prediction log: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"smiles"}
	for _, p := range ml.Properties {
		header = append(header, string(p), string(p)+"_confidence", string(p)+"_measured")
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, o := range r.outcomes {
		record := []string{o.SMILES}
		for _, p := range ml.Properties {
			got := o.Predictions[p]
			measured := ""
			if v, ok := o.Measured[p]; ok {
				measured = strconv.FormatFloat(v, 'g', -1, 64)
			}
			record = append(record,
				strconv.FormatFloat(got.Value, 'g', -1, 64),
				strconv.FormatFloat(got.Confidence, 'g', -1, 64),
				measured)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write prediction log: %w", err)
	}
	log.Info().Str("file", csvPath).Msg("Prediction log generated")
	return nil
}
