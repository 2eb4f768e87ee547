package run

import (
	"context"
	"time"

	"github.com/leofalp/railgraph/providers/observability"
	"github.com/leofalp/railgraph/providers/store"
)

type runSpan struct {
	span    observability.Span
	started time.Time
}

func (engine *Engine) observeRunStart(ctx context.Context, state *runState) (context.Context, runSpan) {
	if engine.observer == nil {
		return ctx, runSpan{}
	}
	ctx, span := engine.observer.StartSpan(ctx, observability.SpanRunExecute,
		observability.String(observability.AttrRunID, state.id),
		observability.Preview(observability.AttrRunQuestion, state.question),
		observability.Int("graph.total_nodes", state.index.Len()),
	)
	ctx = observability.ContextWithSpan(ctx, span)
	engine.observer.Info(ctx, "run started", observability.String(observability.AttrRunID, state.id))
	return ctx, runSpan{span: span, started: time.Now()}
}

func (engine *Engine) observeRunEnd(ctx context.Context, state *runState, observed runSpan) {
	if engine.observer == nil || observed.span == nil {
		return
	}
	state.mu.Lock()
	record := state.record
	state.mu.Unlock()

	duration := time.Since(observed.started)
	attrs := []observability.Attribute{
		observability.String(observability.AttrRunID, record.ID),
		observability.String(observability.AttrRunStatus, record.Status),
	}
	engine.observer.Histogram(observability.MetricRunDuration).Record(ctx, duration.Seconds(), attrs...)

	observed.span.SetAttributes(append(attrs, runUsageAttributes(record)...)...)
	if record.FailureReason != "" && record.Status != string(StatusCancelled) {
		observed.span.SetStatus(observability.StatusError, record.FailureReason)
		engine.observer.Warn(ctx, "run failed", append(attrs, observability.String("run.failure_reason", record.FailureReason))...)
	} else {
		observed.span.SetStatus(observability.StatusOK, record.Status)
		engine.observer.Info(ctx, "run finished", append(attrs, observability.Duration(observability.AttrDuration, duration))...)
	}
	observed.span.End()
}

func runUsageAttributes(record store.RunRecord) []observability.Attribute {
	if record.Usage == nil {
		return nil
	}
	return []observability.Attribute{
		observability.Int(observability.AttrLLMTokensPrompt, record.Usage.PromptTokens),
		observability.Int(observability.AttrLLMTokensCompletion, record.Usage.CompletionTokens),
		observability.Int(observability.AttrLLMTokensTotal, record.Usage.TotalTokens),
	}
}
