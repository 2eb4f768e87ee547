package approval

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seededQueue() []Request {
	return NewQueue([]Seed{
		{RequestID: "r1", TaskID: "task-1", ActionType: ActionCommandExecution, Preview: "npm run build", Status: StatusApproved},
		{RequestID: "r2", TaskID: "task-1", ActionType: ActionCommandExecution, Preview: "npm run test", Status: StatusPending},
	}, fixedNow)
}

// TestEvaluateGate_ExactMatchOnly mirrors the three gate outcomes.
func TestEvaluateGate_ExactMatchOnly(t *testing.T) {
	t.Parallel()
	queue := seededQueue()

	tests := []struct {
		name        string
		preview     string
		actionType  ActionType
		wantAllowed bool
		wantReason  string
		wantMatched string
	}{
		{name: "approved", preview: "npm run build", actionType: ActionCommandExecution, wantAllowed: true, wantReason: "approved", wantMatched: "r1"},
		{name: "whitespace variant", preview: "  npm   run\n build ", actionType: ActionCommandExecution, wantAllowed: true, wantReason: "approved", wantMatched: "r1"},
		{name: "pending", preview: "npm run test", actionType: ActionCommandExecution, wantReason: "approval is pending", wantMatched: "r2"},
		{name: "not found", preview: "npm run lint", actionType: ActionCommandExecution, wantReason: "approval request not found"},
		{name: "different action type", preview: "npm run build", actionType: ActionFileChange, wantReason: "approval request not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateGate("task-1", tt.actionType, tt.preview, queue)
			if got.Allowed != tt.wantAllowed || got.Reason != tt.wantReason || got.MatchedRequestID != tt.wantMatched {
				t.Errorf("EvaluateGate() = %+v, want allowed=%v reason=%q matched=%q", got, tt.wantAllowed, tt.wantReason, tt.wantMatched)
			}
		})
	}
}

// TestNewQueue_DedupesAndSkipsInvalid verifies key dedupe on normalized previews.
func TestNewQueue_DedupesAndSkipsInvalid(t *testing.T) {
	t.Parallel()
	queue := NewQueue([]Seed{
		{RequestID: "a", TaskID: "t", ActionType: ActionFileChange, Preview: "edit  main.go"},
		{RequestID: "b", TaskID: "t", ActionType: ActionFileChange, Preview: "edit main.go"},
		{RequestID: "c", TaskID: "", Preview: "no task"},
		{RequestID: "d", TaskID: "t", Preview: "   "},
		{TaskID: "t", Preview: "generated id"},
	}, fixedNow)

	if len(queue) != 2 {
		t.Fatalf("expected 2 requests, got %d: %+v", len(queue), queue)
	}
	if queue[0].RequestID != "a" || queue[0].Status != StatusPending || queue[0].Preview != "edit main.go" {
		t.Errorf("unexpected first request: %+v", queue[0])
	}
	if queue[1].ActionType != ActionUnknown || !strings.HasPrefix(queue[1].RequestID, "apr-") {
		t.Errorf("defaults not applied: %+v", queue[1])
	}
}

// TestApplyDecision_RoundTrip verifies accept then gate yields allowed.
func TestApplyDecision_RoundTrip(t *testing.T) {
	t.Parallel()
	queue := seededQueue()

	updated, err := ApplyDecision(queue, "r2", DecisionAccept, fixedNow)
	if err != nil {
		t.Fatalf("ApplyDecision() error = %v", err)
	}
	if got := EvaluateGate("task-1", ActionCommandExecution, "npm run test", updated); !got.Allowed {
		t.Errorf("gate after accept = %+v, want allowed", got)
	}
	if queue[1].Status != StatusPending {
		t.Error("ApplyDecision() must not modify its input")
	}
}

func TestStatusForDecision(t *testing.T) {
	t.Parallel()
	tests := map[Decision]Status{
		DecisionAccept:           StatusApproved,
		DecisionAcceptForSession: StatusApproved,
		DecisionDecline:          StatusDeclined,
		DecisionCancel:           StatusCancelled,
	}
	for decision, want := range tests {
		got, err := StatusForDecision(decision)
		if err != nil || got != want {
			t.Errorf("StatusForDecision(%q) = %q, %v; want %q", decision, got, err, want)
		}
	}
	if _, err := StatusForDecision("maybe"); !errors.Is(err, ErrUnknownDecision) {
		t.Errorf("StatusForDecision(maybe) error = %v", err)
	}
}

func TestApplyDecision_Errors(t *testing.T) {
	t.Parallel()
	queue := seededQueue()
	if _, err := ApplyDecision(queue, "missing", DecisionDecline, fixedNow); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("ApplyDecision(missing) error = %v", err)
	}
	declined, err := ApplyDecision(queue, "r1", DecisionDecline, fixedNow)
	if err != nil {
		t.Fatalf("ApplyDecision(decline) error = %v", err)
	}
	gate := EvaluateGate("task-1", ActionCommandExecution, "npm run build", declined)
	if gate.Allowed || gate.Reason != "approval is declined" {
		t.Errorf("gate after decline = %+v", gate)
	}
}

func TestDeniedError(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("node X: %w", &DeniedError{Decision: GateDecision{Reason: "approval is pending"}})
	if !errors.Is(err, ErrDenied) {
		t.Error("DeniedError should match ErrDenied")
	}
	var denied *DeniedError
	if !errors.As(err, &denied) || denied.Error() != "approval is pending" {
		t.Errorf("DeniedError message should be the gate reason verbatim, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	summary := Summarize(seededQueue(), GateDecision{Reason: "approved", Allowed: true})
	if summary.Pending != 1 || summary.Approved != 1 || summary.Declined != 0 || !summary.Gate.Allowed {
		t.Errorf("Summarize() = %+v", summary)
	}
}

// TestBook_ConcurrentUse exercises seeds, decisions, and gate evaluation from
// several goroutines.
func TestBook_ConcurrentUse(t *testing.T) {
	t.Parallel()
	book := NewBook(func() time.Time { return fixedNow })

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			book.Seed(Seed{
				RequestID:  fmt.Sprintf("r%d", worker),
				TaskID:     "task",
				ActionType: ActionExternalCall,
				Preview:    fmt.Sprintf("call %d", worker),
			})
			book.Evaluate("task", ActionExternalCall, fmt.Sprintf("call %d", worker))
		}(worker)
	}
	wg.Wait()

	before := book.Snapshot()
	if len(before) != 8 {
		t.Fatalf("expected 8 requests, got %d", len(before))
	}
	request, err := book.Decide("r3", DecisionAcceptForSession)
	if err != nil || request.Status != StatusApproved {
		t.Fatalf("Decide() = %+v, %v", request, err)
	}
	if !book.Evaluate("task", ActionExternalCall, "call 3").Allowed {
		t.Error("gate should allow after acceptForSession")
	}
	for _, earlier := range before {
		if earlier.Status != StatusPending {
			t.Error("earlier snapshot changed after Decide")
		}
	}
	if _, err := book.Decide("nope", DecisionAccept); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("Decide(nope) error = %v", err)
	}
}
