package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"polymer-predictor/internal/common"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	logLevel string
}

var rootCmd = &cobra.Command{
	Use:   "polyctl",
	Short: "Polymer property prediction toolkit",
	Long: "polyctl computes molecular descriptors, canonicalizes SMILES and predicts\n" +
		"polymer properties (tg, ffv, tc, density, rg) from a local model artifact\n" +
		"or a running prediction server.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		common.SetupLoggingTo(cmd.ErrOrStderr(), rootFlags.logLevel, "console")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.logLevel, "log-level", "warn", "Log level: trace, debug, info, warn, error")

	rootCmd.AddCommand(featuresCmd)
	rootCmd.AddCommand(canonCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(exportFeaturesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
