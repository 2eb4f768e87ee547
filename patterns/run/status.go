package run

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the run has ended.
func (status Status) Terminal() bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusCancelled
}

// NodeStatus is the state of one node within a run.
type NodeStatus string

const (
	NodeIdle        NodeStatus = "idle"
	NodeQueued      NodeStatus = "queued"
	NodeRunning     NodeStatus = "running"
	NodeWaitingUser NodeStatus = "waiting_user"
	NodeDone        NodeStatus = "done"
	NodeLowQuality  NodeStatus = "low_quality"
	NodeFailed      NodeStatus = "failed"
	NodeSkipped     NodeStatus = "skipped"
	NodeCancelled   NodeStatus = "cancelled"
)

// Terminal reports whether the node will not change again in this run.
func (status NodeStatus) Terminal() bool {
	switch status {
	case NodeDone, NodeLowQuality, NodeFailed, NodeSkipped, NodeCancelled:
		return true
	}
	return false
}

var (
	// ErrPaused unwinds a node that was interrupted by a pause.
	ErrPaused = errors.New("run paused")

	// ErrCancelled unwinds a node that was interrupted by a cancel.
	ErrCancelled = errors.New("run cancelled")

	ErrRunNotFound = errors.New("run not found")

	// ErrInvalidTransition is returned for lifecycle requests that do not
	// apply to the run's current status, such as resuming a running run.
	ErrInvalidTransition = errors.New("invalid run transition")
)

// Event is one state transition, for subscribers. NodeID is empty for
// run-level events.
type Event struct {
	RunID   string    `json:"runId"`
	At      time.Time `json:"at"`
	NodeID  string    `json:"nodeId,omitempty"`
	Status  string    `json:"status"`
	Message string    `json:"message,omitempty"`
}
