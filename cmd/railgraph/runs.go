package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunsCommand(application *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect persisted runs",
	}

	var output string
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored run ids, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runStore, closeStore, err := openStore(cmd.Context(), application.cfg.Store)
			if err != nil {
				return err
			}
			defer closeStore()
			runIDs, err := runStore.ListRuns(cmd.Context())
			if err != nil {
				return err
			}
			for _, runID := range runIDs {
				fmt.Fprintln(cmd.OutOrStdout(), runID)
			}
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a stored run record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runStore, closeStore, err := openStore(cmd.Context(), application.cfg.Store)
			if err != nil {
				return err
			}
			defer closeStore()
			record, err := runStore.LoadRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeValue(cmd.OutOrStdout(), output, record)
		},
	}
	show.Flags().StringVarP(&output, "output", "o", "json", "record format: json or yaml")

	cmd.AddCommand(list, show)
	return cmd
}
