package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leofalp/railgraph/core/graph"
	"github.com/leofalp/railgraph/core/humanloop"
	"github.com/leofalp/railgraph/internal/utils"
)

// ErrNoHumanQueue is returned when a web turn needs a human but the request
// carries no queue.
var ErrNoHumanQueue = errors.New("web turn needs a human queue")

// Bridge collects a web chat answer through browser automation.
type Bridge interface {
	Collect(ctx context.Context, provider, prompt string) (string, error)
}

// WebExecutor answers web turns. Manual result modes go straight to the
// human queue; the other modes try the bridge first and fall back to the
// queue when it is missing or fails.
type WebExecutor struct {
	Bridge Bridge
}

func (executor *WebExecutor) Execute(ctx context.Context, request Request) (Result, error) {
	kind := request.Config.ExecutorOrDefault()
	provider := kind.WebProvider()
	mode := request.Config.WebResultMode
	if mode == "" {
		mode = graph.WebResultBridgeAssisted
	}

	if !mode.IsManual() && executor.Bridge != nil {
		raw, err := executor.Bridge.Collect(ctx, provider, request.Prompt)
		if err == nil {
			output, normErr := humanloop.NormalizeWebOutput(provider, mode, raw)
			if normErr == nil {
				return Result{Output: output, Provider: provider}, nil
			}
			err = normErr
		}
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
		slog.Warn("web bridge failed, falling back to human queue", "node", request.NodeID, "provider", provider, "error", err)
		mode = graph.WebResultManualText
	}

	return executor.askHuman(ctx, request, provider, mode)
}

func (executor *WebExecutor) askHuman(ctx context.Context, request Request, provider string, mode graph.WebResultMode) (Result, error) {
	if request.Humans == nil {
		return Result{}, ErrNoHumanQueue
	}

	waiter := request.Humans.Request(humanloop.Turn{
		NodeID:   request.NodeID,
		Provider: provider,
		Prompt:   request.Prompt,
		Mode:     mode,
	})

	if request.Waiting != nil {
		request.Waiting(waiter.TicketID)
	}

	var response humanloop.Response
	select {
	case response = <-waiter.C:
	case <-ctx.Done():
		request.Humans.Detach(waiter.TicketID)
		return Result{}, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}

	if response.Paused() {
		return Result{}, fmt.Errorf("%w: %s", ErrCancelled, humanloop.PauseToken)
	}
	if !response.OK {
		return Result{}, fmt.Errorf("human turn failed: %s", response.Error)
	}

	if structured, ok := response.Output.(map[string]any); ok {
		return Result{Output: structured, Provider: provider}, nil
	}
	output, err := humanloop.NormalizeWebOutput(provider, mode, utils.Stringify(response.Output))
	if err != nil {
		return Result{}, err
	}
	return Result{Output: output, Provider: provider}, nil
}
