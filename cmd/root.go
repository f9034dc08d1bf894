package cmd

import (
	"io"

	"mcot/config"
	"mcot/logging"

	"github.com/spf13/cobra"
)

var (
	configPath string
	cfg        config.Config
	logCloser  io.Closer
)

// RootCmd is the entry point of the mcot CLI.
var RootCmd = &cobra.Command{
	Use:           "mcot",
	Short:         "Adaptive Monte Carlo octree refinement",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logCloser, err = logging.Setup(cfg.Log)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
}

func Execute() error {
	return RootCmd.Execute()
}
