package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/leofalp/railgraph/core/graph"
	"github.com/leofalp/railgraph/core/humanloop"
	"github.com/leofalp/railgraph/providers/ai"
)

var (
	// ErrCancelled is matched by errors.Is when a call ended because its
	// context was cancelled or the human queue answered with the pause token.
	ErrCancelled = errors.New("executor call cancelled")

	// ErrUnknownKind is returned by Registry.Lookup for unregistered kinds.
	ErrUnknownKind = errors.New("no executor registered for kind")
)

// Request is one turn invocation.
type Request struct {
	RunID  string
	NodeID string
	Config graph.TurnConfig
	// Input is the resolved node input; Prompt is its rendered text.
	Input  any
	Prompt string
	// Humans is the run's human queue. Only web executors use it.
	Humans *humanloop.Queue
	// Waiting, when set, is called right before the call blocks on a human.
	Waiting func(ticketID string)
}

// Result is a successful invocation.
type Result struct {
	Output   any       `json:"output"`
	Usage    *ai.Usage `json:"usage,omitempty"`
	Provider string    `json:"provider"`
}

// Executor runs a turn. Implementations must be safe to retry and must
// return an error matching ErrCancelled when ctx ends first.
type Executor interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

// Func adapts a function to Executor.
type Func func(ctx context.Context, request Request) (Result, error)

func (fn Func) Execute(ctx context.Context, request Request) (Result, error) {
	return fn(ctx, request)
}

// Error is a failed executor call.
type Error struct {
	Kind     graph.ExecutorKind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("executor %s (%s): %v", e.Kind, e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Registry maps executor kinds to executors.
type Registry struct {
	mu        sync.RWMutex
	executors map[graph.ExecutorKind]Executor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[graph.ExecutorKind]Executor)}
}

// Register binds kind to executor, replacing any previous binding.
func (registry *Registry) Register(kind graph.ExecutorKind, executor Executor) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.executors[kind] = executor
}

// RegisterWeb binds every web kind to executor.
func (registry *Registry) RegisterWeb(executor Executor) {
	for _, kind := range graph.ExecutorKinds {
		if kind.IsWeb() {
			registry.Register(kind, executor)
		}
	}
}

// Lookup returns the executor bound to kind.
func (registry *Registry) Lookup(kind graph.ExecutorKind) (Executor, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	executor, ok := registry.executors[kind]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownKind, kind)
	}
	return executor, nil
}

// Kinds lists the registered kinds in graph.ExecutorKinds order.
func (registry *Registry) Kinds() []graph.ExecutorKind {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	kinds := make([]graph.ExecutorKind, 0, len(registry.executors))
	for _, kind := range graph.ExecutorKinds {
		if _, ok := registry.executors[kind]; ok {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// Execute dispatches request to the executor of its configured kind.
// Failures come back as *Error; cancellation additionally matches
// ErrCancelled.
func (registry *Registry) Execute(ctx context.Context, request Request) (Result, error) {
	kind := request.Config.ExecutorOrDefault()
	executor, err := registry.Lookup(kind)
	if err != nil {
		return Result{}, &Error{Kind: kind, Provider: kind.ProviderName(), Err: err}
	}

	result, err := executor.Execute(ctx, request)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, ErrCancelled) {
			err = fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		return Result{}, &Error{Kind: kind, Provider: kind.ProviderName(), Err: err}
	}
	if result.Provider == "" {
		result.Provider = kind.ProviderName()
	}
	return result, nil
}
