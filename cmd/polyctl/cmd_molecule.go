package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"polymer-predictor/internal/chem"
	"polymer-predictor/internal/features"
)

var featuresFlags struct {
	json bool
}

var featuresCmd = &cobra.Command{
	Use:   "features SMILES",
	Short: "Print the 21 descriptors computed for a molecule",
	Args:  cobra.ExactArgs(1),
	RunE:  runFeatures,
}

var canonCmd = &cobra.Command{
	Use:   "canon SMILES...",
	Short: "Print the canonical form of each molecule",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCanon,
}

func init() {
	featuresCmd.Flags().BoolVar(&featuresFlags.json, "json", false, "Print as a JSON object")
}

func runFeatures(cmd *cobra.Command, args []string) error {
	v, err := features.NewExtractor(nil).Extract(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if featuresFlags.json {
		return writeJSON(out, v.Map())
	}
	values := v.Values()
	for i, name := range features.Names {
		fmt.Fprintf(out, "%-20s %g\n", name, values[i])
	}
	return nil
}

// runCanon prints one line per input; invalid molecules are reported inline
// and make the command fail after all inputs are processed.
func runCanon(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	failed := 0
	for _, s := range args {
		canonical, err := chem.Canonicalize(s)
		if err != nil {
			fmt.Fprintf(out, "%s\tinvalid: %v\n", s, err)
			failed++
			continue
		}
		fmt.Fprintf(out, "%s\t%s\n", s, canonical)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d molecules are invalid", failed, len(args))
	}
	return nil
}
