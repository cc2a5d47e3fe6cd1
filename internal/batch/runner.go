package batch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"polymer-predictor/internal/ml"
)

// Outcome pairs a sample with its predictions.
type Outcome struct {
	Sample
	Predictions ml.Result `json:"predictions"`
}

// Runner scores samples in parallel.
type Runner struct {
	predictor   ml.PredictorInterface
	concurrency int
	// ProgressEvery logs progress after this many samples; 0 disables it.
	ProgressEvery int
}

// NewRunner creates a runner using at most concurrency goroutines.
func NewRunner(predictor ml.PredictorInterface, concurrency int) *Runner {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Runner{predictor: predictor, concurrency: concurrency, ProgressEvery: 1000}
}

// Run predicts every sample. Outcomes keep input order. Cancelling ctx
// stops scheduling new work and returns ctx.Err().
func (r *Runner) Run(ctx context.Context, samples []Sample) ([]Outcome, error) {
	start := time.Now()
	log.Info().
		Int("samples", len(samples)).
		Int("concurrency", r.concurrency).
		Bool("model_loaded", r.predictor.IsLoaded()).
		Msg("Starting batch prediction")

	outcomes := make([]Outcome, len(samples))
	var done atomic.Int64

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i := range samples {
		i := i
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			outcomes[i] = Outcome{Sample: samples[i], Predictions: r.predictor.Predict(samples[i].SMILES)}

			n := done.Add(1)
			if r.ProgressEvery > 0 && n%int64(r.ProgressEvery) == 0 {
				log.Info().Int64("done", n).Int("total", len(samples)).Msg("Batch progress")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info().
		Int("samples", len(samples)).
		Dur("elapsed", time.Since(start)).
		Msg("Batch prediction finished")
	return outcomes, nil
}
