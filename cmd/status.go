package cmd

import (
	"mcot/communication/client"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the progress of a run serving stats",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewClient(statusAddr)
		stats, err := c.Stats(cmd.Context())
		if err != nil {
			return err
		}
		rounds, err := c.Rounds(cmd.Context())
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		out := termenv.NewOutput(w)
		if len(rounds) > 0 {
			printRound(w, out, rounds[len(rounds)-1])
		}
		printStats(w, out, stats)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVarP(&statusAddr, "addr", "a", "http://localhost:8080", "stats server URL")
	RootCmd.AddCommand(statusCmd)
}
