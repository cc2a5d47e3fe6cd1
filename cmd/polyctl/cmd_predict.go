package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"polymer-predictor/internal/api"
	"polymer-predictor/internal/client"
	"polymer-predictor/internal/common"
	"polymer-predictor/internal/ml"
)

var predictFlags struct {
	model   string
	url     string
	timeout time.Duration
}

var predictCmd = &cobra.Command{
	Use:   "predict SMILES...",
	Short: "Predict properties locally from an artifact, or remotely with --url",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPredict,
}

var streamFlags struct {
	url string
}

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Send SMILES read line by line from stdin to a server's prediction stream",
	Args:  cobra.NoArgs,
	RunE:  runStream,
}

var inspectFlags struct {
	model      string
	importance int
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Summarize a model artifact",
	Args:  cobra.NoArgs,
	RunE:  runInspect,
}

func init() {
	f := predictCmd.Flags()
	f.StringVar(&predictFlags.model, "model", common.DefaultModelPath, "Model artifact for local prediction")
	f.StringVar(&predictFlags.url, "url", "", "Prediction server base URL (e.g. http://localhost:8080)")
	f.DurationVar(&predictFlags.timeout, "timeout", 30*time.Second, "Request timeout for --url")

	streamCmd.Flags().StringVar(&streamFlags.url, "url", "http://localhost:8080", "Prediction server base URL")

	f = inspectCmd.Flags()
	f.StringVar(&inspectFlags.model, "model", common.DefaultModelPath, "Model artifact to inspect")
	f.IntVar(&inspectFlags.importance, "importance", 0, "Show the N most important features per property")
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runPredict(cmd *cobra.Command, args []string) error {
	if predictFlags.url != "" {
		c := client.New(predictFlags.url, predictFlags.timeout)
		resp, err := c.PredictBatch(cmd.Context(), args)
		if err != nil {
			return err
		}
		if !resp.ModelLoaded {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning: server has no model loaded, values are placeholders")
		}
		return writeJSON(cmd.OutOrStdout(), resp.Results)
	}

	store := ml.NewStore(predictFlags.model)
	if !store.IsLoaded() {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v; values are placeholders\n", store.LoadErr())
	}
	engine := ml.NewEngine(store, nil, nil, ml.EngineConfig{})

	results := make([]api.PredictionResponse, len(args))
	g := new(errgroup.Group)
	g.SetLimit(common.DefaultBatchConcurrency)
	for i, s := range args {
		i, s := i, s
		g.Go(func() error {
			results[i] = api.PredictionResponse{SMILES: s, Predictions: engine.Predict(s)}
			return nil
		})
	}
	g.Wait()

	return writeJSON(cmd.OutOrStdout(), results)
}

func runStream(cmd *cobra.Command, _ []string) error {
	s, err := client.NewStream(streamFlags.url)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	requests := make(chan string)
	results := make(chan client.StreamResult)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(requests)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			select {
			case requests <- line:
			case <-gCtx.Done():
				return nil
			}
		}
		return scanner.Err()
	})
	g.Go(func() error {
		defer close(results)
		return s.Run(gCtx, requests, results)
	})
	g.Go(func() error {
		enc := json.NewEncoder(cmd.OutOrStdout())
		for r := range results {
			if r.Err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", r.SMILES, r.Err)
				continue
			}
			if err := enc.Encode(api.PredictionResponse{SMILES: r.SMILES, Predictions: r.Predictions}); err != nil {
				return err
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func runInspect(cmd *cobra.Command, _ []string) error {
	store := ml.NewStore(inspectFlags.model)
	if !store.IsLoaded() {
		return fmt.Errorf("load %s: %w", inspectFlags.model, store.LoadErr())
	}

	info := store.Info()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Path:       %s\n", info.Path)
	fmt.Fprintf(out, "Format:     %s\n", info.Format)
	fmt.Fprintf(out, "Ensemble:   %d\n", info.EnsembleSize)
	if !info.ModifiedAt.IsZero() {
		fmt.Fprintf(out, "Modified:   %s\n", info.ModifiedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Properties:\n")
	for _, p := range info.Properties {
		fmt.Fprintf(out, "  %-8s members=%d kinds=%s\n", p, info.Members[p], info.ModelKinds[p])
	}
	for p, reason := range info.Skipped {
		fmt.Fprintf(out, "  %-8s skipped: %s\n", p, reason)
	}

	if inspectFlags.importance > 0 {
		fmt.Fprintf(out, "Importance:\n")
		for _, p := range ml.Properties {
			b, ok := store.Bundle(p)
			if !ok {
				continue
			}
			fmt.Fprintf(out, "  %-8s", p)
			stats := ml.FeatureImportance(b)
			for _, s := range stats[:min(inspectFlags.importance, len(stats))] {
				if s.ImportanceScore == 0 {
					break
				}
				fmt.Fprintf(out, " %s=%.3f", s.Name, s.ImportanceScore)
			}
			fmt.Fprintln(out)
		}
	}
	return nil
}
