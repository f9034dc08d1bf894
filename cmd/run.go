package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mcot/checkpoint"
	"mcot/communication/server"
	"mcot/engine"
	"mcot/experiments/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	runRounds int
	runField  string
	runOut    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Refine a tree against a density field",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if runRounds > 0 {
			cfg.Engine.Rounds = runRounds
		}
		if runField != "" {
			cfg.Volume.Field = runField
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		t, err := cfg.NewTree()
		if err != nil {
			return err
		}
		evaluator, err := cfg.NewEvaluator()
		if err != nil {
			return err
		}
		options, err := cfg.EngineOptions()
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		options = append(options, engine.WithMetrics(metrics.NewPrometheusCollector(reg)))

		if cfg.Checkpoint.Enabled {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			options = append(options, engine.WithCheckpointer(store))
		}

		if cfg.Server.Enabled {
			srv := server.NewServer(reg)
			options = append(options, engine.WithReporter(srv))
			go func() {
				if err := srv.Start(ctx, cfg.Server.Addr); err != nil {
					log.Error().Err(err).Msg("stats server stopped")
				}
			}()
		}

		e := engine.New(t, evaluator, options...)
		result, runErr := e.Run(ctx)
		printResult(cmd.OutOrStdout(), result)

		if runOut != "" {
			if err := writeRecord(runOut, e.Tree()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "record written to %s\n", runOut)
		}
		return runErr
	},
}

func openStore() (*checkpoint.Store, error) {
	return checkpoint.Open(checkpoint.Config{
		Dir:        cfg.Checkpoint.Dir,
		InMemory:   cfg.Checkpoint.InMemory,
		SyncWrites: cfg.Checkpoint.SyncWrites,
	})
}

func init() {
	runCmd.Flags().IntVarP(&runRounds, "rounds", "r", 0, "round budget, overrides the configuration")
	runCmd.Flags().StringVarP(&runField, "field", "f", "", "density field: sphere, shell or pair")
	runCmd.Flags().StringVarP(&runOut, "out", "o", "", "write the final tree record to this file")
	RootCmd.AddCommand(runCmd)
}
