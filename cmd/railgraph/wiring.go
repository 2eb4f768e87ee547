package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leofalp/railgraph/core/approval"
	"github.com/leofalp/railgraph/core/graph"
	"github.com/leofalp/railgraph/core/quality"
	"github.com/leofalp/railgraph/internal/config"
	"github.com/leofalp/railgraph/patterns/dag"
	"github.com/leofalp/railgraph/patterns/run"
	"github.com/leofalp/railgraph/providers/ai/ollama"
	"github.com/leofalp/railgraph/providers/ai/openai"
	"github.com/leofalp/railgraph/providers/executor"
	"github.com/leofalp/railgraph/providers/observability"
	"github.com/leofalp/railgraph/providers/observability/slogobs"
	"github.com/leofalp/railgraph/providers/store"
	"github.com/leofalp/railgraph/providers/store/memstore"
	"github.com/leofalp/railgraph/providers/store/pgstore"
	"github.com/leofalp/railgraph/providers/store/sqlitestore"
)

// stack is everything a command needs to execute runs.
type stack struct {
	observer observability.Provider
	store    store.RunStore
	registry *executor.Registry
	engine   *run.Engine
	close    func()
}

func newObserver(cfg *config.Config, output io.Writer) observability.Provider {
	return slogobs.New(
		slogobs.WithFormat(slogobs.ParseFormat(cfg.Log.Format)),
		slogobs.WithLevel(slogobs.ParseLevel(cfg.Log.Level)),
		slogobs.WithOutput(output),
	)
}

// openStore returns the configured run store and a function releasing it.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.RunStore, func(), error) {
	switch cfg.Driver {
	case "", "memory":
		return memstore.New(), func() {}, nil
	case "sqlite":
		sqlite, err := sqlitestore.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return sqlite, func() { _ = sqlite.Close() }, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		postgres := pgstore.New(pool)
		if err := postgres.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return postgres, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// buildRegistry binds every executor kind the configuration can serve.
// Web kinds are always available since they fall back to the human queue.
func buildRegistry(cfg config.ProvidersConfig, observer observability.Provider) (*executor.Registry, error) {
	registry := executor.NewRegistry()

	codex := openai.New().WithModel(cfg.OpenAI.Model).WithName(string(graph.ExecutorCodex))
	if cfg.OpenAI.APIKey != "" {
		codex.WithAPIKey(cfg.OpenAI.APIKey)
	}
	if cfg.OpenAI.BaseURL != "" {
		codex.WithBaseURL(cfg.OpenAI.BaseURL)
	}
	registry.Register(graph.ExecutorCodex, executor.NewLLMExecutor(codex,
		executor.WithRequestsPerMinute(cfg.OpenAI.RequestsPerMinute),
		executor.WithObserver(observer),
	))

	local, err := ollama.New(ollama.Config{ServerURL: cfg.Ollama.ServerURL, Model: cfg.Ollama.Model})
	if err != nil {
		return nil, err
	}
	registry.Register(graph.ExecutorOllama, executor.NewLLMExecutor(local, executor.WithObserver(observer)))

	web := &executor.WebExecutor{}
	if cfg.Bridge.URL != "" {
		web.Bridge = &executor.HTTPBridge{BaseURL: cfg.Bridge.URL}
	}
	registry.RegisterWeb(web)
	return registry, nil
}

func buildEngine(cfg *config.Config, registry *executor.Registry, runStore store.RunStore, observer observability.Provider) (*run.Engine, error) {
	mode, err := dag.ParseMode(cfg.Run.MultiAgentMode)
	if err != nil {
		return nil, err
	}
	evaluator := &quality.Evaluator{
		Runner:          quality.ShellRunner{},
		CommandsEnabled: cfg.Run.QualityCommandsEnabled,
		WorkDir:         cfg.Run.QualityWorkDir,
	}
	return run.NewEngine(registry,
		run.WithStore(runStore),
		run.WithEvaluator(evaluator),
		run.WithApprovals(approval.NewBook(nil)),
		run.WithObserver(observer),
		run.WithMode(mode),
		run.WithMaxSchemaRetry(cfg.Run.MaxSchemaRetry),
		run.WithSchemaCheck(cfg.Run.SchemaCheck),
		run.WithLogCap(cfg.Run.LogCap),
	), nil
}

func (application *app) buildStack(ctx context.Context) (*stack, error) {
	observer := newObserver(application.cfg, os.Stderr)
	runStore, closeStore, err := openStore(ctx, application.cfg.Store)
	if err != nil {
		return nil, err
	}
	registry, err := buildRegistry(application.cfg.Providers, observer)
	if err != nil {
		closeStore()
		return nil, err
	}
	engine, err := buildEngine(application.cfg, registry, runStore, observer)
	if err != nil {
		closeStore()
		return nil, err
	}
	return &stack{observer: observer, store: runStore, registry: registry, engine: engine, close: closeStore}, nil
}
