package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"polymer-predictor/internal/client"
	"polymer-predictor/internal/ml"
	"polymer-predictor/internal/storage"
)

var exportFlags struct {
	data string
	out  string
}

var exportFeaturesCmd = &cobra.Command{
	Use:   "export-features",
	Short: "Write stored feature vectors to CSV for retraining",
	Args:  cobra.NoArgs,
	RunE:  runExportFeatures,
}

var historyFlags struct {
	data  string
	url   string
	limit int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent predictions from a local database or a server",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var modelsFlags struct {
	dir string
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage registered model artifact versions",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered versions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runModelsList,
}

var modelsAddCmd = &cobra.Command{
	Use:   "add VERSION PATH",
	Short: "Register an artifact (PATH may be relative to the models directory)",
	Args:  cobra.ExactArgs(2),
	RunE:  runModelsAdd,
}

var modelsActivateCmd = &cobra.Command{
	Use:   "activate VERSION",
	Short: "Make VERSION the artifact the server loads",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelsActivate,
}

var modelsRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Activate the version registered before the active one",
	Args:  cobra.NoArgs,
	RunE:  runModelsRollback,
}

func init() {
	f := exportFeaturesCmd.Flags()
	f.StringVar(&exportFlags.data, "data", "", "Data directory holding predictions.db (required)")
	f.StringVar(&exportFlags.out, "out", "features.csv", "Output CSV file")
	_ = exportFeaturesCmd.MarkFlagRequired("data")

	f = historyCmd.Flags()
	f.StringVar(&historyFlags.data, "data", "", "Data directory holding predictions.db")
	f.StringVar(&historyFlags.url, "url", "", "Prediction server base URL")
	f.IntVar(&historyFlags.limit, "limit", 20, "Number of records")
	historyCmd.MarkFlagsMutuallyExclusive("data", "url")

	modelsCmd.PersistentFlags().StringVar(&modelsFlags.dir, "dir", "models", "Models directory")
	modelsCmd.AddCommand(modelsListCmd, modelsAddCmd, modelsActivateCmd, modelsRollbackCmd)
}

func runExportFeatures(cmd *cobra.Command, _ []string) error {
	store, err := storage.New(exportFlags.data)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.ExportFeaturesToCSV(exportFlags.out)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d feature records to %s\n", n, exportFlags.out)
	return nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	var records []storage.PredictionRecord
	switch {
	case historyFlags.url != "":
		var err error
		records, err = client.New(historyFlags.url, 30*time.Second).Predictions(cmd.Context(), historyFlags.limit)
		if err != nil {
			return err
		}
	case historyFlags.data != "":
		store, err := storage.New(historyFlags.data)
		if err != nil {
			return err
		}
		defer store.Close()
		if records, err = store.RecentPredictions(historyFlags.limit); err != nil {
			return err
		}
	default:
		return fmt.Errorf("either --data or --url is required")
	}

	out := cmd.OutOrStdout()
	for _, r := range records {
		fmt.Fprintf(out, "%s  %-30s", r.CreatedAt.Format(time.RFC3339), r.SMILES)
		for _, p := range ml.Properties {
			fmt.Fprintf(out, " %s=%.4g", p, r.Predictions[p].Value)
		}
		if !r.ModelLoaded {
			fmt.Fprint(out, " (placeholder model)")
		}
		fmt.Fprintln(out)
	}
	return nil
}

func openModels() (*ml.ModelManager, error) {
	return ml.NewModelManager(modelsFlags.dir)
}

func runModelsList(cmd *cobra.Command, _ []string) error {
	mm, err := openModels()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	versions := mm.ListVersions()
	if len(versions) == 0 {
		fmt.Fprintf(out, "No registered versions; the server resolves %s\n", mm.ResolveArtifact("(configured MODEL_PATH)"))
		return nil
	}
	for _, v := range versions {
		marker := " "
		if v.IsActive {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %-20s %s  %s\n", marker, v.Version, v.CreatedAt.Format(time.RFC3339), v.Path)
	}
	return nil
}

func runModelsAdd(cmd *cobra.Command, args []string) error {
	mm, err := openModels()
	if err != nil {
		return err
	}
	mv, err := mm.AddVersion(args[0], args[1], ml.ModelMetrics{})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Registered %s -> %s\n", mv.Version, mv.Path)
	return nil
}

func runModelsActivate(cmd *cobra.Command, args []string) error {
	mm, err := openModels()
	if err != nil {
		return err
	}
	if err := mm.ActivateVersion(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Activated %s\n", args[0])
	return nil
}

func runModelsRollback(cmd *cobra.Command, _ []string) error {
	mm, err := openModels()
	if err != nil {
		return err
	}
	if err := mm.Rollback(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Active version is now %s\n", mm.GetCurrentVersion().Version)
	return nil
}
