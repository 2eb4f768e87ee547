package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leofalp/railgraph/core/graph"
)

func newValidateCommand(_ *app) *cobra.Command {
	var (
		graphPath  string
		singleRoot bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a graph file without running it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := graph.Load(graphPath)
			if err != nil {
				return err
			}
			var opts []graph.Option
			if singleRoot {
				opts = append(opts, graph.RequireSingleRoot())
			}
			index, err := graph.Validate(g, opts...)
			if err != nil {
				var validationError *graph.ValidationError
				if errors.As(err, &validationError) {
					for _, problem := range validationError.Problems {
						fmt.Fprintf(cmd.ErrOrStderr(), "- %v\n", problem)
					}
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d nodes, roots %v, sinks %v\n", index.Len(), index.Roots(), index.Sinks())
			return nil
		},
	}
	cmd.Flags().StringVar(&graphPath, "graph", "", "graph file (YAML or JSON)")
	cmd.Flags().BoolVar(&singleRoot, "single-root", false, "require exactly one root node")
	_ = cmd.MarkFlagRequired("graph")
	return cmd
}
