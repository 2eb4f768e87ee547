package run

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/leofalp/railgraph/core/evidence"
	"github.com/leofalp/railgraph/core/parse"
	"github.com/leofalp/railgraph/core/quality"
	"github.com/leofalp/railgraph/patterns/dag"
	"github.com/leofalp/railgraph/providers/ai"
	"github.com/leofalp/railgraph/providers/observability"
	"github.com/leofalp/railgraph/providers/store"
)

// finalize settles the run after the scheduler returns: it picks the final
// node, derives the run status, persists the record once, and releases
// anyone still waiting on the human queue.
func (engine *Engine) finalize(ctx context.Context, state *runState, report dag.Report) {
	if state.runStatus() == StatusCancelled || report.Cancelled {
		state.settleRemaining(NodeCancelled, "run cancelled")
		state.setOutcome("", "", "run cancelled")
		if state.runStatus() != StatusCancelled {
			state.setRunStatus(StatusCancelled, "context cancelled")
		}
	} else {
		state.settleRemaining(NodeSkipped, "never scheduled")
		finalID := state.pickFinalNode()
		switch finalStatus := state.nodeStatus(finalID); {
		case finalID == "":
			state.setOutcome("", "", "could not determine final node")
			state.setRunStatus(StatusFailed, "could not determine final node")
		case finalStatus == NodeDone:
			output, _ := state.output(finalID)
			state.setOutcome(finalID, parse.ExtractFinalAnswer(output), "")
			state.setRunStatus(StatusCompleted, "")
		default:
			reason := fmt.Sprintf("final node(%s) status=%s", finalID, finalStatus)
			state.setOutcome(finalID, "", reason)
			state.setRunStatus(StatusFailed, reason)
		}
	}

	record := state.buildRecord()
	var saveErr error
	if engine.store != nil {
		if saveErr = engine.store.SaveRun(ctx, record); saveErr != nil {
			engine.logSaveFailure(ctx, state.id, saveErr)
		}
	}

	state.mu.Lock()
	state.record = record
	state.saveErr = saveErr
	state.mu.Unlock()

	state.humans.Close("run finished")
	close(state.done)
}

func (engine *Engine) logSaveFailure(ctx context.Context, runID string, err error) {
	if engine.observer != nil {
		engine.observer.Error(ctx, "failed to save run",
			observability.String(observability.AttrRunID, runID),
			observability.Error(err),
		)
		return
	}
	slog.Error("failed to save run", "run", runID, "error", err)
}

// settleRemaining moves every node that is not terminal yet to status.
func (state *runState) settleRemaining(status NodeStatus, message string) {
	for _, nodeID := range state.index.TopologicalOrder() {
		if !state.nodeStatus(nodeID).Terminal() {
			state.setNodeStatus(nodeID, status, message)
		}
	}
}

// pickFinalNode returns the single sink, or among several sinks the one
// that reached a terminal status last, whatever that status is.
func (state *runState) pickFinalNode() string {
	sinks := state.index.Sinks()
	if len(sinks) == 1 {
		return sinks[0]
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	for position := len(state.completed) - 1; position >= 0; position-- {
		if nodeID := state.completed[position]; state.index.IsSink(nodeID) {
			return nodeID
		}
	}
	return ""
}

func (state *runState) setOutcome(finalNodeID, finalAnswer, failureReason string) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.finalNodeID = finalNodeID
	state.finalAnswer = finalAnswer
	state.failureReason = failureReason
	state.finishedAt = state.engine.now()
}

func (state *runState) buildRecord() store.RunRecord {
	latest := state.evidence.AllLatest()
	snapshot := state.evidence.Snapshot()
	memory := state.evidence.Memory()

	state.mu.Lock()
	defer state.mu.Unlock()

	reports := make(map[string]quality.Report)
	nodes := make([]store.NodeRecord, 0, len(state.nodes))
	for _, nodeID := range state.index.TopologicalOrder() {
		node := state.nodes[nodeID]
		if node.Quality != nil {
			reports[nodeID] = *node.Quality
		}
		nodes = append(nodes, store.NodeRecord{
			NodeID:     nodeID,
			Type:       node.Type,
			Status:     string(node.Status),
			Logs:       append([]string(nil), node.Logs...),
			Error:      node.Error,
			Output:     state.outputs[nodeID],
			Usage:      node.Usage,
			Quality:    node.Quality,
			Attempts:   node.Attempts,
			StartedAt:  node.StartedAt,
			FinishedAt: node.FinishedAt,
		})
	}

	return store.RunRecord{
		ID:            state.id,
		Question:      state.question,
		Status:        string(state.status),
		Graph:         state.graph,
		Transitions:   append([]store.Transition(nil), state.transitions...),
		Nodes:         nodes,
		Evidence:      snapshot,
		Memory:        memory,
		Conflicts:     evidence.BuildConflictLedger(latest),
		Quality:       quality.Summarize(reports),
		FinalNodeID:   state.finalNodeID,
		FinalAnswer:   state.finalAnswer,
		FailureReason: state.failureReason,
		Usage:         ai.MergeUsage(nil, state.usage),
		StartedAt:     state.startedAt,
		FinishedAt:    state.finishedAt,
	}
}

func sortViews(views []View) {
	sort.SliceStable(views, func(left, right int) bool {
		return views[left].StartedAt.After(views[right].StartedAt)
	})
}
