package approval

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leofalp/railgraph/internal/utils"
)

// ActionType classifies the gated action.
type ActionType string

const (
	ActionCommandExecution ActionType = "commandExecution"
	ActionFileChange       ActionType = "fileChange"
	ActionExternalCall     ActionType = "externalCall"
	ActionUnknown          ActionType = "unknown"
)

// Status is the lifecycle state of a request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDeclined  Status = "declined"
	StatusCancelled Status = "cancelled"
)

// Decision is what the user answered.
type Decision string

const (
	DecisionAccept           Decision = "accept"
	DecisionAcceptForSession Decision = "acceptForSession"
	DecisionDecline          Decision = "decline"
	DecisionCancel           Decision = "cancel"
)

var (
	// ErrDenied is matched by errors.Is for every *DeniedError.
	ErrDenied = errors.New("approval denied")

	// ErrRequestNotFound is returned when a decision names an unknown request.
	ErrRequestNotFound = errors.New("approval request not found")

	// ErrUnknownDecision is returned for decisions outside the four known values.
	ErrUnknownDecision = errors.New("unknown approval decision")
)

// Request is one approval request.
type Request struct {
	RequestID  string         `json:"requestId"`
	TaskID     string         `json:"taskId"`
	ActionType ActionType     `json:"actionType"`
	Preview    string         `json:"preview"`
	Status     Status         `json:"status"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt,omitempty"`
	Source     string         `json:"source,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Seed is the loose input NewQueue accepts. Empty Status means pending;
// empty ActionType means unknown; empty RequestID gets a generated id.
type Seed struct {
	RequestID  string         `json:"requestId"`
	TaskID     string         `json:"taskId" binding:"required"`
	ActionType ActionType     `json:"actionType"`
	Preview    string         `json:"preview" binding:"required"`
	Status     Status         `json:"status"`
	Source     string         `json:"source"`
	Metadata   map[string]any `json:"metadata"`
}

// GateDecision is the result of EvaluateGate.
type GateDecision struct {
	Allowed          bool   `json:"allowed"`
	Reason           string `json:"reason"`
	MatchedRequestID string `json:"matchedRequestId,omitempty"`
}

// DeniedError carries a not-allowed gate decision. Its message is the gate
// reason verbatim.
type DeniedError struct {
	Decision GateDecision
}

func (deniedError *DeniedError) Error() string {
	return deniedError.Decision.Reason
}

// Is makes errors.Is(err, ErrDenied) true.
func (deniedError *DeniedError) Is(target error) bool {
	return target == ErrDenied
}

// NormalizePreview trims the preview and collapses whitespace runs, so that
// "npm  run\nbuild" and "npm run build" are the same action.
func NormalizePreview(preview string) string {
	return utils.CollapseWhitespace(preview)
}

type requestKey struct {
	taskID     string
	actionType ActionType
	preview    string
}

func keyOf(taskID string, actionType ActionType, preview string) requestKey {
	return requestKey{
		taskID:     strings.TrimSpace(taskID),
		actionType: actionType,
		preview:    NormalizePreview(preview),
	}
}

// NewQueue builds a queue from seeds. Seeds without a task id or preview are
// dropped, and only the first seed per (taskId, actionType, normalizedPreview)
// is kept.
func NewQueue(seeds []Seed, now time.Time) []Request {
	return appendSeeds(nil, seeds, now)
}

func appendSeeds(queue []Request, seeds []Seed, now time.Time) []Request {
	seen := make(map[requestKey]bool, len(queue)+len(seeds))
	for _, existing := range queue {
		seen[keyOf(existing.TaskID, existing.ActionType, existing.Preview)] = true
	}

	for _, seed := range seeds {
		actionType := seed.ActionType
		if actionType == "" {
			actionType = ActionUnknown
		}
		key := keyOf(seed.TaskID, actionType, seed.Preview)
		if key.taskID == "" || key.preview == "" || seen[key] {
			continue
		}
		seen[key] = true

		requestID := strings.TrimSpace(seed.RequestID)
		if requestID == "" {
			requestID = NewRequestID()
		}
		status := seed.Status
		if status == "" {
			status = StatusPending
		}
		source := seed.Source
		if source == "" {
			source = "remote"
		}
		metadata := make(map[string]any, len(seed.Metadata))
		for key, value := range seed.Metadata {
			metadata[key] = value
		}

		queue = append(queue, Request{
			RequestID:  requestID,
			TaskID:     key.taskID,
			ActionType: actionType,
			Preview:    key.preview,
			Status:     status,
			CreatedAt:  now,
			Source:     source,
			Metadata:   metadata,
		})
	}
	return queue
}

// EvaluateGate decides whether the action (taskID, actionType, preview) may
// run. Only an exact key match with status approved allows it; a match in
// any other status names that status in the reason; no match is reported as
// not found.
func EvaluateGate(taskID string, actionType ActionType, preview string, queue []Request) GateDecision {
	want := keyOf(taskID, actionType, preview)
	for _, request := range queue {
		if keyOf(request.TaskID, request.ActionType, request.Preview) != want {
			continue
		}
		if request.Status != StatusApproved {
			return GateDecision{
				Allowed:          false,
				Reason:           fmt.Sprintf("approval is %s", request.Status),
				MatchedRequestID: request.RequestID,
			}
		}
		return GateDecision{Allowed: true, Reason: "approved", MatchedRequestID: request.RequestID}
	}
	return GateDecision{Allowed: false, Reason: "approval request not found"}
}

// StatusForDecision maps a user decision onto the resulting request status.
func StatusForDecision(decision Decision) (Status, error) {
	switch decision {
	case DecisionAccept, DecisionAcceptForSession:
		return StatusApproved, nil
	case DecisionDecline:
		return StatusDeclined, nil
	case DecisionCancel:
		return StatusCancelled, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDecision, decision)
	}
}

// ApplyDecision returns a copy of queue with the decision applied to the
// request with id requestID. The input slice is not modified.
func ApplyDecision(queue []Request, requestID string, decision Decision, now time.Time) ([]Request, error) {
	status, err := StatusForDecision(decision)
	if err != nil {
		return queue, err
	}

	updated := make([]Request, len(queue))
	copy(updated, queue)
	for index := range updated {
		if updated[index].RequestID != requestID {
			continue
		}
		updated[index].Status = status
		updated[index].UpdatedAt = now
		return updated, nil
	}
	return queue, fmt.Errorf("%w: %q", ErrRequestNotFound, requestID)
}

// Summary counts requests per status together with the last gate decision.
type Summary struct {
	Pending  int          `json:"pending"`
	Approved int          `json:"approved"`
	Declined int          `json:"declined"`
	Gate     GateDecision `json:"gate"`
}

// Summarize counts queue entries per status.
func Summarize(queue []Request, gate GateDecision) Summary {
	summary := Summary{Gate: gate}
	for _, request := range queue {
		switch request.Status {
		case StatusPending:
			summary.Pending++
		case StatusApproved:
			summary.Approved++
		case StatusDeclined:
			summary.Declined++
		}
	}
	return summary
}
