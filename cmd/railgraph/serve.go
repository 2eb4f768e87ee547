package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/leofalp/railgraph/core/batch"
	"github.com/leofalp/railgraph/core/graph"
	"github.com/leofalp/railgraph/internal/config"
	"github.com/leofalp/railgraph/internal/server"
	"github.com/leofalp/railgraph/patterns/run"
	"github.com/leofalp/railgraph/providers/executor"
	"github.com/leofalp/railgraph/providers/observability"
)

func newServeCommand(application *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run API and the batch scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			stack, err := application.buildStack(ctx)
			if err != nil {
				return err
			}
			defer stack.close()

			if addr == "" {
				addr = application.cfg.Server.Addr
			}
			runner, err := newBatchRunner(application.cfg.Batch, stack.engine, stack.registry, stack.observer)
			if err != nil {
				return err
			}
			opts := []server.Option{server.WithStore(stack.store), server.WithObserver(stack.observer)}
			if runner != nil {
				opts = append(opts, server.WithBatchRunner(runner))
			}
			api := server.New(stack.engine, opts...)

			group, groupCtx := errgroup.WithContext(ctx)
			group.Go(func() error {
				stack.observer.Info(groupCtx, "listening", observability.String("addr", addr))
				return api.ListenAndServe(groupCtx, addr)
			})
			if runner != nil {
				group.Go(func() error { return runner.Run(groupCtx) })
			}
			return group.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}

// newBatchRunner returns nil when no schedule is configured.
func newBatchRunner(cfg config.BatchConfig, engine *run.Engine, registry *executor.Registry, observer observability.Provider) (*batch.Runner, error) {
	schedules := append([]batch.Schedule(nil), cfg.Schedules...)
	if cfg.SchedulesFile != "" {
		loaded, err := batch.LoadSchedules(cfg.SchedulesFile)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, loaded...)
	}
	if len(schedules) == 0 {
		return nil, nil
	}
	return batch.NewRunner(schedules, scheduledRun(engine),
		batch.WithTick(cfg.Tick),
		batch.WithHistoryCap(cfg.HistoryCap),
		batch.WithProviderCheck(providerAvailable(registry)),
		batch.WithObserver(observer),
	), nil
}

// scheduledRun executes the schedule's graph with its query and waits for
// the outcome.
func scheduledRun(engine *run.Engine) batch.RunFunc {
	return func(ctx context.Context, schedule batch.Schedule, _ batch.Trigger) error {
		g, err := graph.Load(schedule.GraphPath)
		if err != nil {
			return err
		}
		runID, err := engine.Start(ctx, g, schedule.Query)
		if err != nil {
			return err
		}
		record, err := engine.Wait(ctx, runID)
		if err != nil {
			return err
		}
		if record.Status != string(run.StatusCompleted) {
			return fmt.Errorf("run %s ended %s: %s", runID, record.Status, record.FailureReason)
		}
		return nil
	}
}

// providerAvailable accepts executor kinds ("codex", "web_gpt") and web
// provider names ("gpt").
func providerAvailable(registry *executor.Registry) func(provider string) bool {
	return func(provider string) bool {
		if provider == "" {
			return true
		}
		if _, err := registry.Lookup(graph.ExecutorKind(provider)); err == nil {
			return true
		}
		_, err := registry.Lookup(graph.ExecutorKind("web_" + provider))
		return err == nil
	}
}
