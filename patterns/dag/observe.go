package dag

import (
	"context"

	"github.com/leofalp/railgraph/core/graph"
	"github.com/leofalp/railgraph/providers/observability"
)

// observeStart logs the scheduler configuration and makes the observer
// reachable from task contexts.
func (scheduler *Scheduler) observeStart(ctx context.Context) context.Context {
	if scheduler.observer == nil {
		return ctx
	}
	ctx = observability.ContextWithObserver(ctx, scheduler.observer)
	scheduler.observer.Debug(ctx, "scheduler started",
		observability.Int("graph.total_nodes", scheduler.index.Len()),
		observability.Int(observability.AttrSchedulerMax, scheduler.maxConcurrency),
	)
	return ctx
}

func (scheduler *Scheduler) observeDispatch(ctx context.Context, nodeID string, heavy bool, queued, active int) {
	if scheduler.observer == nil {
		return
	}
	scheduler.observer.Debug(ctx, "node dispatched",
		observability.String(observability.AttrNodeID, nodeID),
		observability.Bool("node.heavy", heavy),
		observability.Int(observability.AttrSchedulerQueued, queued),
		observability.Int(observability.AttrSchedulerActive, active),
	)
}

// startNodeSpan opens the per-node span; the node function can enrich it
// through observability.SpanFromContext.
func (scheduler *Scheduler) startNodeSpan(ctx context.Context, node graph.Node, heavy bool) (context.Context, observability.Span) {
	if scheduler.observer == nil {
		return ctx, nil
	}
	ctx, span := scheduler.observer.StartSpan(ctx, observability.SpanNodeExecute,
		observability.String(observability.AttrNodeID, node.ID),
		observability.String(observability.AttrNodeType, string(node.Type)),
		observability.Bool("node.heavy", heavy),
	)
	return observability.ContextWithSpan(ctx, span), span
}

func endNodeSpan(span observability.Span, outcome Outcome) {
	if span == nil {
		return
	}
	span.SetAttributes(observability.String(observability.AttrNodeStatus, outcome.Status))
	switch {
	case outcome.Requeue:
		span.AddEvent("node.requeued")
		span.SetStatus(observability.StatusUnset, "re-queued")
	case outcome.Err != nil:
		span.RecordError(outcome.Err)
		span.SetStatus(observability.StatusError, outcome.Err.Error())
	default:
		span.SetStatus(observability.StatusOK, outcome.Status)
	}
	span.End()
}

func (scheduler *Scheduler) observeCompleted(ctx context.Context, done completion) {
	if scheduler.observer == nil {
		return
	}
	status := done.outcome.Status
	if done.outcome.Requeue {
		status = "requeued"
	}
	attrs := []observability.Attribute{
		observability.String(observability.AttrNodeID, done.nodeID),
		observability.String(observability.AttrNodeStatus, status),
	}
	scheduler.observer.Histogram(observability.MetricNodeDuration).Record(ctx, done.duration.Seconds(), attrs...)
	scheduler.observer.Counter(observability.MetricNodeCount).Add(ctx, 1, attrs...)
	if done.outcome.Err != nil {
		scheduler.observer.Warn(ctx, "node finished with error", append(attrs, observability.Error(done.outcome.Err))...)
	}
}

func (scheduler *Scheduler) observeFinished(ctx context.Context, report Report) {
	if scheduler.observer == nil {
		return
	}
	scheduler.observer.Debug(ctx, "scheduler finished",
		observability.Int("scheduler.completed", len(report.Completed)),
		observability.Int("scheduler.unvisited", len(report.Unvisited)),
		observability.Int("scheduler.peak_heavy", report.PeakHeavy),
		observability.Bool("scheduler.cancelled", report.Cancelled),
	)
}
