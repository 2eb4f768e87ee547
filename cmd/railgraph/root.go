package main

import (
	"github.com/spf13/cobra"

	"github.com/leofalp/railgraph/internal/config"
)

// app carries the flags shared by every subcommand.
type app struct {
	configPath string
	dotenv     []string
	cfg        *config.Config
}

func newRootCommand() *cobra.Command {
	application := &app{}
	root := &cobra.Command{
		Use:           "railgraph",
		Short:         "Run agent-step graphs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(application.configPath, application.dotenv...)
			if err != nil {
				return err
			}
			application.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&application.configPath, "config", "", "path to a YAML configuration file")
	root.PersistentFlags().StringSliceVar(&application.dotenv, "env-file", []string{".env"}, "dotenv files loaded before the configuration")

	root.AddCommand(
		newRunCommand(application),
		newServeCommand(application),
		newRunsCommand(application),
		newValidateCommand(application),
	)
	return root
}
