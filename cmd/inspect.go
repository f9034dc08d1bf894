package cmd

import (
	"fmt"

	"mcot/tree"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var (
	inspectDepth int
	inspectFile  string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [run-id]",
	Short: "Print a stored tree, or list the stored runs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		var options []tree.Option
		if tiers := cfg.Tree.Tiers(); tiers != nil {
			options = append(options, tiers)
		}

		if inspectFile != "" {
			t, err := readRecord(inspectFile, options...)
			if err != nil {
				return err
			}
			printTree(w, inspectFile, t)
			return nil
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if len(args) == 0 {
			runs, err := store.Runs()
			if err != nil {
				return err
			}
			out := termenv.NewOutput(w)
			for _, run := range runs {
				entries, err := store.List(run)
				if err != nil {
					return err
				}
				depths := make([]int, len(entries))
				for i, e := range entries {
					depths[i] = e.Depth
				}
				fmt.Fprintf(w, "%s depths %v\n", out.String(run).Bold(), depths)
			}
			return nil
		}

		run := args[0]
		var t *tree.Tree
		depth := inspectDepth
		if depth > 0 {
			t, err = store.Load(run, depth, options...)
		} else {
			t, depth, err = store.Latest(run, options...)
		}
		if err != nil {
			return err
		}
		printTree(w, fmt.Sprintf("%s at depth %d", run, depth), t)
		return nil
	},
}

func init() {
	inspectCmd.Flags().IntVarP(&inspectDepth, "depth", "d", 0, "checkpoint depth, the deepest when unset")
	inspectCmd.Flags().StringVarP(&inspectFile, "file", "f", "", "read a record file instead of the checkpoint store")
	RootCmd.AddCommand(inspectCmd)
}
