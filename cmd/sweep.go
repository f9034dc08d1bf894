package cmd

import (
	"fmt"

	"mcot/experiments"

	"github.com/spf13/cobra"
)

var (
	sweepName       string
	sweepOut        string
	sweepGoroutines int
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Compare selection policies and pruning thresholds",
	RunE: func(cmd *cobra.Command, args []string) error {
		options := []experiments.Option{experiments.WithGoroutines(sweepGoroutines)}
		if cfg.Checkpoint.Enabled {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			options = append(options, experiments.WithCheckpointer(store))
		}

		dir, err := experiments.RunSweep(cmd.Context(), sweepOut, sweepName, cfg, experiments.Comparisons, options...)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "results written to %s\n", dir)
		return nil
	},
}

func init() {
	sweepCmd.Flags().StringVarP(&sweepName, "name", "n", "comparisons", "experiment name")
	sweepCmd.Flags().StringVarP(&sweepOut, "out", "o", "experiments", "output directory")
	sweepCmd.Flags().IntVarP(&sweepGoroutines, "goroutines", "g", 0, "concurrent runs")
	RootCmd.AddCommand(sweepCmd)
}
