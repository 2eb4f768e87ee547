package run

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/leofalp/railgraph/core/evidence"
	"github.com/leofalp/railgraph/core/graph"
	"github.com/leofalp/railgraph/core/humanloop"
	"github.com/leofalp/railgraph/core/quality"
	"github.com/leofalp/railgraph/patterns/dag"
	"github.com/leofalp/railgraph/providers/ai"
	"github.com/leofalp/railgraph/providers/store"
)

// NodeState is the run-time state of one node.
type NodeState struct {
	NodeID     string          `json:"nodeId"`
	Type       graph.NodeType  `json:"type"`
	Status     NodeStatus      `json:"status"`
	Logs       []string        `json:"logs"`
	Error      string          `json:"error,omitempty"`
	Usage      *ai.Usage       `json:"usage,omitempty"`
	Quality    *quality.Report `json:"quality,omitempty"`
	Attempts   int             `json:"attempts"`
	TicketID   string          `json:"ticketId,omitempty"`
	StartedAt  *time.Time      `json:"startedAt,omitempty"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
}

// LastLog returns the most recent log line, or "".
func (state NodeState) LastLog() string {
	if len(state.Logs) == 0 {
		return ""
	}
	return state.Logs[len(state.Logs)-1]
}

// View is a point-in-time copy of a run.
type View struct {
	RunID         string             `json:"runId"`
	Question      string             `json:"question"`
	Status        Status             `json:"status"`
	Paused        bool               `json:"isPaused"`
	Running       bool               `json:"isRunning"`
	Nodes         []NodeState        `json:"nodes"`
	FinalNodeID   string             `json:"finalNodeId,omitempty"`
	FinalAnswer   string             `json:"finalAnswer,omitempty"`
	FailureReason string             `json:"failureReason,omitempty"`
	Usage         *ai.Usage          `json:"usage,omitempty"`
	Human         humanloop.Snapshot `json:"human"`
	StartedAt     time.Time          `json:"startedAt"`
	FinishedAt    *time.Time         `json:"finishedAt,omitempty"`
}

// Node returns the state of nodeID.
func (view View) Node(nodeID string) (NodeState, bool) {
	for _, node := range view.Nodes {
		if node.NodeID == nodeID {
			return node, true
		}
	}
	return NodeState{}, false
}

// runState is everything one run owns. Only the engine and the node tasks
// it hands to the scheduler touch it.
type runState struct {
	engine    *Engine
	id        string
	question  string
	graph     graph.Graph
	index     *graph.Index
	scheduler *dag.Scheduler
	evidence  *evidence.Store
	humans    *humanloop.Queue
	cancelRun context.CancelFunc
	done      chan struct{}

	mu            sync.Mutex
	status        Status
	nodes         map[string]*NodeState
	outputs       map[string]any
	skip          map[string]string
	completed     []string
	transitions   []store.Transition
	usage         *ai.Usage
	finalNodeID   string
	finalAnswer   string
	failureReason string
	startedAt     time.Time
	finishedAt    time.Time
	record        store.RunRecord
	saveErr       error
}

func newRunState(engine *Engine, id, question string, g graph.Graph, index *graph.Index) *runState {
	state := &runState{
		engine:   engine,
		id:       id,
		question: question,
		graph:    g.Clone(),
		index:    index,
		evidence: evidence.NewStore(engine.now),
		humans:   humanloop.NewQueue(engine.now),
		done:     make(chan struct{}),
		status:   StatusIdle,
		nodes:    make(map[string]*NodeState, index.Len()),
		outputs:  make(map[string]any, index.Len()),
		skip:     make(map[string]string),
	}
	for _, nodeID := range index.NodeIDs() {
		node, _ := index.Node(nodeID)
		state.nodes[nodeID] = &NodeState{NodeID: nodeID, Type: node.Type, Status: NodeIdle, Logs: make([]string, 0)}
	}
	return state
}

func (state *runState) setRunStatus(status Status, message string) {
	state.mu.Lock()
	from := state.status
	state.status = status
	at := state.engine.now()
	state.transitions = append(state.transitions, store.Transition{At: at, From: string(from), To: string(status), Message: message})
	state.mu.Unlock()

	state.engine.emit(Event{RunID: state.id, At: at, Status: string(status), Message: message})
}

func (state *runState) runStatus() Status {
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.status
}

// setNodeStatus moves nodeID to status and logs message. Terminal nodes are
// never moved again, so late results of cancelled nodes are dropped here.
func (state *runState) setNodeStatus(nodeID string, status NodeStatus, message string) bool {
	state.mu.Lock()
	node := state.nodes[nodeID]
	if node == nil || node.Status.Terminal() {
		state.mu.Unlock()
		return false
	}
	from := node.Status
	if from == status && message == "" {
		state.mu.Unlock()
		return false
	}
	at := state.engine.now()
	node.Status = status
	switch {
	case status == NodeRunning && node.StartedAt == nil:
		node.StartedAt = &at
	case status.Terminal():
		node.FinishedAt = &at
		state.completed = append(state.completed, nodeID)
	}
	if message != "" {
		state.appendLogLocked(node, message)
	}
	state.transitions = append(state.transitions, store.Transition{At: at, NodeID: nodeID, From: string(from), To: string(status), Message: message})
	state.mu.Unlock()

	state.engine.emit(Event{RunID: state.id, At: at, NodeID: nodeID, Status: string(status), Message: message})
	return true
}

func (state *runState) nodeStatus(nodeID string) NodeStatus {
	state.mu.Lock()
	defer state.mu.Unlock()
	if node := state.nodes[nodeID]; node != nil {
		return node.Status
	}
	return ""
}

func (state *runState) logf(nodeID, format string, args ...any) {
	state.mu.Lock()
	defer state.mu.Unlock()
	if node := state.nodes[nodeID]; node != nil {
		state.appendLogLocked(node, fmt.Sprintf(format, args...))
	}
}

func (state *runState) appendLogLocked(node *NodeState, line string) {
	node.Logs = append(node.Logs, line)
	if limit := state.engine.logCap; limit > 0 && len(node.Logs) > limit {
		node.Logs = node.Logs[len(node.Logs)-limit:]
	}
}

func (state *runState) beginAttempt(nodeID string) {
	state.mu.Lock()
	defer state.mu.Unlock()
	if node := state.nodes[nodeID]; node != nil {
		node.Attempts++
		node.Error = ""
		node.TicketID = ""
	}
}

func (state *runState) setTicket(nodeID, ticketID string) {
	state.mu.Lock()
	defer state.mu.Unlock()
	if node := state.nodes[nodeID]; node != nil {
		node.TicketID = ticketID
	}
}

func (state *runState) setNodeError(nodeID string, err error) {
	state.mu.Lock()
	defer state.mu.Unlock()
	if node := state.nodes[nodeID]; node != nil && err != nil {
		node.Error = err.Error()
	}
}

func (state *runState) addUsage(nodeID string, usage *ai.Usage) {
	if usage == nil {
		return
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	if node := state.nodes[nodeID]; node != nil {
		node.Usage = ai.MergeUsage(node.Usage, usage)
	}
	state.usage = ai.MergeUsage(state.usage, usage)
}

func (state *runState) setQuality(nodeID string, report quality.Report) {
	state.mu.Lock()
	defer state.mu.Unlock()
	if node := state.nodes[nodeID]; node != nil {
		node.Quality = &report
	}
}

func (state *runState) setOutput(nodeID string, output any) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.outputs[nodeID] = output
}

func (state *runState) output(nodeID string) (any, bool) {
	state.mu.Lock()
	defer state.mu.Unlock()
	output, ok := state.outputs[nodeID]
	return output, ok
}

func (state *runState) markSkipped(nodeID, reason string) {
	state.mu.Lock()
	defer state.mu.Unlock()
	if _, exists := state.skip[nodeID]; !exists {
		state.skip[nodeID] = reason
	}
}

func (state *runState) skipReason(nodeID string) (string, bool) {
	state.mu.Lock()
	defer state.mu.Unlock()
	reason, ok := state.skip[nodeID]
	return reason, ok
}

func (state *runState) view() View {
	state.mu.Lock()
	defer state.mu.Unlock()

	view := View{
		RunID:         state.id,
		Question:      state.question,
		Status:        state.status,
		Paused:        state.status == StatusPaused,
		Running:       state.status == StatusRunning || state.status == StatusStarting,
		Nodes:         make([]NodeState, 0, len(state.nodes)),
		FinalNodeID:   state.finalNodeID,
		FinalAnswer:   state.finalAnswer,
		FailureReason: state.failureReason,
		Usage:         ai.MergeUsage(nil, state.usage),
		Human:         state.humans.Snapshot(),
		StartedAt:     state.startedAt,
	}
	if !state.finishedAt.IsZero() {
		finished := state.finishedAt
		view.FinishedAt = &finished
	}
	for _, nodeID := range state.index.TopologicalOrder() {
		node := *state.nodes[nodeID]
		node.Logs = append([]string(nil), node.Logs...)
		view.Nodes = append(view.Nodes, node)
	}
	return view
}
