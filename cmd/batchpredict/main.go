package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"polymer-predictor/internal/batch"
	"polymer-predictor/internal/cfg"
	"polymer-predictor/internal/common"
	"polymer-predictor/internal/ml"
)

func main() {
	var (
		inputPath   = flag.String("input", "", "CSV or JSON file with a smiles column (required)")
		modelPath   = flag.String("model", "", "Path to model artifact (overrides config)")
		outputPath  = flag.String("output", "", "Output directory for reports (default: batch_<timestamp>)")
		concurrency = flag.Int("concurrency", 0, "Parallel predictions (overrides config)")
		logLevel    = flag.String("log-level", "", "Log level: trace, debug, info, warn, error")
	)
	flag.Parse()

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: batchpredict -input molecules.csv [-model artifact.json] [-output dir]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *logLevel != "" {
		config.LogLevel = *logLevel
	}
	common.SetupLogging(config.LogLevel, config.LogFormat)

	if *modelPath != "" {
		config.ModelPath = *modelPath
	} else if config.ModelsDir != "" {
		if mm, err := ml.NewModelManager(config.ModelsDir); err == nil {
			config.ModelPath = mm.ResolveArtifact(config.ModelPath)
		}
	}
	if *concurrency > 0 {
		config.BatchConcurrency = *concurrency
	}
	if *outputPath == "" {
		*outputPath = filepath.Join(".", "batch_"+time.Now().Format("20060102_150405"))
	}

	fmt.Println("=== Batch Prediction Configuration ===")
	fmt.Printf("Input: %s\n", *inputPath)
	fmt.Printf("Model Path: %s\n", config.ModelPath)
	fmt.Printf("Output Directory: %s\n", *outputPath)
	fmt.Printf("Concurrency: %d\n", config.BatchConcurrency)
	fmt.Println("======================================")

	samples, err := batch.Load(*inputPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load input")
	}

	store := ml.NewStore(config.ModelPath)
	if !store.IsLoaded() {
		log.Warn().Err(store.LoadErr()).Msg("Model artifact not loaded, every prediction will be a placeholder")
	}
	engine := ml.NewEngine(store, nil, nil, ml.EngineConfig{CacheSize: config.CacheSize})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcomes, err := batch.NewRunner(engine, config.BatchConcurrency).Run(ctx, samples)
	if err != nil {
		log.Fatal().Err(err).Msg("Batch prediction failed")
	}

	report := batch.Summarize(outcomes, engine.IsLoaded())
	reporter := batch.NewReporter(report, outcomes, *outputPath)
	if err := reporter.GenerateReport(); err != nil {
		log.Fatal().Err(err).Msg("Failed to generate report")
	}

	fmt.Println()
	reporter.WriteSummary(os.Stdout)
	fmt.Printf("\nResults saved to: %s\n", *outputPath)
}
