//go:build ignore

// Writes a deterministic demo model artifact for local runs:
//
//	go run scripts/generate_sample_artifact.go -out models/ensemble_v85_best.json
package main

import (
	"flag"
	"fmt"
	"log"

	"polymer-predictor/internal/ml"
)

func main() {
	var (
		out      = flag.String("out", "models/ensemble_v85_best.json", "Artifact path")
		seed     = flag.Int64("seed", 42, "Random seed")
		compress = flag.Bool("gzip", false, "Gzip the artifact")
		check    = flag.String("check", "c1ccccc1", "SMILES to predict after writing, empty to skip")
	)
	flag.Parse()

	fmt.Printf("Generating demo artifact...\n")
	fmt.Printf("  Seed: %d\n", *seed)
	fmt.Printf("  Output: %s\n", *out)

	if err := ml.SaveArtifact(*out, ml.DemoDocument(*seed), *compress); err != nil {
		log.Fatalf("Failed to write artifact: %v", err)
	}

	store := ml.NewStore(*out)
	if !store.IsLoaded() {
		log.Fatalf("Written artifact does not load: %v", store.LoadErr())
	}
	info := store.Info()
	fmt.Printf("  Format: %s, ensemble size %d, properties %v\n", info.Format, info.EnsembleSize, info.Properties)

	if *check != "" {
		result := ml.NewEngine(store, nil, nil, ml.EngineConfig{}).Predict(*check)
		fmt.Printf("\nPrediction for %s:\n", *check)
		for _, p := range ml.Properties {
			fmt.Printf("  %-8s %10.4f  (confidence %.3f)\n", p, result[p].Value, result[p].Confidence)
		}
	}
}
