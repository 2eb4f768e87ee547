// Package store defines the persistence capability of the run engine and
// the record it persists. Implementations live in sub-packages: memstore
// (process memory), sqlitestore (embedded file), and pgstore (PostgreSQL).
//
// Records are write-once: a second SaveRun for the same id fails with
// [ErrAlreadyExists] and never replaces the stored record.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/leofalp/railgraph/core/evidence"
	"github.com/leofalp/railgraph/core/graph"
	"github.com/leofalp/railgraph/core/quality"
	"github.com/leofalp/railgraph/providers/ai"
)

var (
	ErrNotFound      = errors.New("run not found")
	ErrAlreadyExists = errors.New("run already saved")
)

// RunStore persists finished runs.
type RunStore interface {
	SaveRun(ctx context.Context, record RunRecord) error
	LoadRun(ctx context.Context, runID string) (RunRecord, error)
	// ListRuns returns stored run ids, most recently started first.
	ListRuns(ctx context.Context) ([]string, error)
}

// Transition is one recorded state change. NodeID is empty for run-level
// transitions.
type Transition struct {
	At      time.Time `json:"at"`
	NodeID  string    `json:"nodeId,omitempty"`
	From    string    `json:"from,omitempty"`
	To      string    `json:"to"`
	Message string    `json:"message,omitempty"`
}

// NodeRecord is the final state of one node.
type NodeRecord struct {
	NodeID     string          `json:"nodeId"`
	Type       graph.NodeType  `json:"type"`
	Status     string          `json:"status"`
	Logs       []string        `json:"logs,omitempty"`
	Error      string          `json:"error,omitempty"`
	Output     any             `json:"output,omitempty"`
	Usage      *ai.Usage       `json:"usage,omitempty"`
	Quality    *quality.Report `json:"quality,omitempty"`
	Attempts   int             `json:"attempts,omitempty"`
	StartedAt  *time.Time      `json:"startedAt,omitempty"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
}

// RunRecord is the audit trail of one run.
type RunRecord struct {
	ID            string                         `json:"id"`
	Question      string                         `json:"question"`
	Status        string                         `json:"status"`
	Graph         graph.Graph                    `json:"graph"`
	Transitions   []Transition                   `json:"transitions"`
	Nodes         []NodeRecord                   `json:"nodes"`
	Evidence      map[string][]evidence.Envelope `json:"evidence,omitempty"`
	Memory        map[string]evidence.Memory     `json:"memory,omitempty"`
	Conflicts     []evidence.ConflictEntry       `json:"conflicts,omitempty"`
	Quality       quality.Summary                `json:"quality"`
	FinalNodeID   string                         `json:"finalNodeId,omitempty"`
	FinalAnswer   string                         `json:"finalAnswer,omitempty"`
	FailureReason string                         `json:"failureReason,omitempty"`
	Usage         *ai.Usage                      `json:"usage,omitempty"`
	StartedAt     time.Time                      `json:"startedAt"`
	FinishedAt    time.Time                      `json:"finishedAt"`
}

// Node returns the record of nodeID.
func (record RunRecord) Node(nodeID string) (NodeRecord, bool) {
	for _, node := range record.Nodes {
		if node.NodeID == nodeID {
			return node, true
		}
	}
	return NodeRecord{}, false
}

// Encode serializes record for storage.
func Encode(record RunRecord) ([]byte, error) {
	if record.ID == "" {
		return nil, errors.New("run record has no id")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode run %s: %w", record.ID, err)
	}
	return data, nil
}

// Decode is the inverse of Encode.
func Decode(data []byte) (RunRecord, error) {
	var record RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return RunRecord{}, fmt.Errorf("decode run record: %w", err)
	}
	return record, nil
}
