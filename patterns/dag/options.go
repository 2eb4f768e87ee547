package dag

import (
	"context"
	"fmt"
	"strings"

	"github.com/leofalp/railgraph/core/graph"
	"github.com/leofalp/railgraph/providers/observability"
)

// Mode is the multi-agent mode that sizes heavy concurrency.
type Mode string

const (
	ModeOff      Mode = "off"
	ModeBalanced Mode = "balanced"
	ModeMax      Mode = "max"
)

// ParseMode accepts off, balanced, and max, case-insensitively.
func ParseMode(value string) (Mode, error) {
	switch mode := Mode(strings.ToLower(strings.TrimSpace(value))); mode {
	case ModeOff, ModeBalanced, ModeMax:
		return mode, nil
	case "":
		return ModeOff, nil
	default:
		return "", fmt.Errorf("unknown multi-agent mode %q", value)
	}
}

// MaxConcurrency is the number of heavy nodes allowed at once.
func (mode Mode) MaxConcurrency() int {
	switch mode {
	case ModeBalanced:
		return 2
	case ModeMax:
		return 4
	default:
		return 1
	}
}

// IsHeavy reports whether node needs a heavy slot: any turn whose executor
// is not a human-operated web provider.
func IsHeavy(node graph.Node) bool {
	if node.Type != graph.NodeTurn {
		return false
	}
	kind, _ := node.Config["executor"].(string)
	return !graph.TurnConfig{Executor: graph.ExecutorKind(kind)}.ExecutorOrDefault().IsWeb()
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMode sizes heavy concurrency from a multi-agent mode.
func WithMode(mode Mode) Option {
	return func(scheduler *Scheduler) {
		scheduler.maxConcurrency = mode.MaxConcurrency()
	}
}

// WithMaxConcurrency sets the heavy slot count directly. Values below one
// are ignored.
func WithMaxConcurrency(maxConcurrency int) Option {
	return func(scheduler *Scheduler) {
		if maxConcurrency > 0 {
			scheduler.maxConcurrency = maxConcurrency
		}
	}
}

// WithHeavyPredicate replaces IsHeavy.
func WithHeavyPredicate(heavy func(graph.Node) bool) Option {
	return func(scheduler *Scheduler) {
		if heavy != nil {
			scheduler.heavy = heavy
		}
	}
}

// WithReadyHook is called from the loop goroutine each time a node joins the
// ready queue, including re-queues.
func WithReadyHook(hook func(nodeID string)) Option {
	return func(scheduler *Scheduler) {
		scheduler.onReady = hook
	}
}

// WithPanicHook is called when a task panics, before its completion is
// processed.
func WithPanicHook(hook func(ctx context.Context, nodeID string, err error)) Option {
	return func(scheduler *Scheduler) {
		scheduler.onPanic = hook
	}
}

// WithObserver enables node spans, scheduler logs, and node metrics.
func WithObserver(provider observability.Provider) Option {
	return func(scheduler *Scheduler) {
		scheduler.observer = provider
	}
}
