package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/leofalp/railgraph/core/approval"
	"github.com/leofalp/railgraph/core/batch"
	"github.com/leofalp/railgraph/core/graph"
	"github.com/leofalp/railgraph/core/humanloop"
	"github.com/leofalp/railgraph/patterns/run"
	"github.com/leofalp/railgraph/providers/executor"
	"github.com/leofalp/railgraph/providers/store/memstore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func echoExecutor() executor.Executor {
	return executor.Func(func(_ context.Context, request executor.Request) (executor.Result, error) {
		return executor.Result{Output: map[string]any{"text": "answer from " + request.NodeID}, Provider: "fake"}, nil
	})
}

func singleTurn(config map[string]any) graph.Graph {
	if config == nil {
		config = map[string]any{}
	}
	config["qualityProfile"] = "generic"
	config["qualityThreshold"] = 10
	return graph.Graph{Nodes: []graph.Node{{ID: "answer", Type: graph.NodeTurn, Config: config}}}
}

func do(testingHelper *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	testingHelper.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			testingHelper.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decode[T any](testingHelper *testing.T, recorder *httptest.ResponseRecorder) T {
	testingHelper.Helper()
	var value T
	if err := json.Unmarshal(recorder.Body.Bytes(), &value); err != nil {
		testingHelper.Fatalf("decode %s: %v", recorder.Body.String(), err)
	}
	return value
}

func startRun(testingHelper *testing.T, handler http.Handler, g graph.Graph) string {
	testingHelper.Helper()
	recorder := do(testingHelper, handler, http.MethodPost, "/runs", StartRunRequest{Graph: g, Question: "why?"})
	if recorder.Code != http.StatusCreated {
		testingHelper.Fatalf("start: %d %s", recorder.Code, recorder.Body.String())
	}
	return decode[map[string]string](testingHelper, recorder)["runId"]
}

func waitRun(testingHelper *testing.T, engine *run.Engine, runID string) {
	testingHelper.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := engine.Wait(ctx, runID); err != nil {
		testingHelper.Fatalf("wait: %v", err)
	}
}

// TestStartAndGetRun a started run is visible through GET /runs/:id and
// GET /runs.
func TestStartAndGetRun(t *testing.T) {
	engine := run.NewEngine(echoExecutor())
	handler := New(engine).Handler()

	runID := startRun(t, handler, singleTurn(nil))
	waitRun(t, engine, runID)

	recorder := do(t, handler, http.MethodGet, "/runs/"+runID, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("get: %d", recorder.Code)
	}
	view := decode[run.View](t, recorder)
	if view.Status != run.StatusCompleted || view.FinalAnswer != "answer from answer" {
		t.Errorf("view = %+v", view)
	}

	list := decode[map[string][]run.View](t, do(t, handler, http.MethodGet, "/runs", nil))
	if len(list["runs"]) != 1 || list["runs"][0].RunID != runID {
		t.Errorf("runs = %+v", list)
	}
}

// TestStartRunRejectsInvalidGraph validation problems come back as strings.
func TestStartRunRejectsInvalidGraph(t *testing.T) {
	handler := New(run.NewEngine(echoExecutor())).Handler()

	g := graph.Graph{
		Nodes: []graph.Node{{ID: "a", Type: graph.NodeTurn}, {ID: "b", Type: graph.NodeTurn}},
		Edges: []graph.Edge{graph.Connect("a", "b"), graph.Connect("b", "a")},
	}
	recorder := do(t, handler, http.MethodPost, "/runs", StartRunRequest{Graph: g, Question: "q"})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", recorder.Code)
	}
	body := decode[map[string]any](t, recorder)
	if problems, _ := body["problems"].([]any); len(problems) == 0 {
		t.Errorf("body = %+v", body)
	}

	if code := do(t, handler, http.MethodPost, "/runs", map[string]any{"graph": g}).Code; code != http.StatusBadRequest {
		t.Errorf("missing question code = %d", code)
	}
}

// TestRunLookupFallsBackToStore runs unknown to this engine are served from
// the store; unknown everywhere is 404.
func TestRunLookupFallsBackToStore(t *testing.T) {
	runStore := memstore.New()
	previous := run.NewEngine(echoExecutor(), run.WithStore(runStore))
	runID, err := previous.Start(context.Background(), singleTurn(nil), "q")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitRun(t, previous, runID)

	handler := New(run.NewEngine(echoExecutor()), WithStore(runStore)).Handler()
	recorder := do(t, handler, http.MethodGet, "/runs/"+runID, nil)
	if recorder.Code != http.StatusOK || !strings.Contains(recorder.Body.String(), `"finalAnswer":"answer from answer"`) {
		t.Errorf("stored run: %d %s", recorder.Code, recorder.Body.String())
	}
	if code := do(t, handler, http.MethodGet, "/runs/nope", nil).Code; code != http.StatusNotFound {
		t.Errorf("unknown run code = %d", code)
	}

	history := decode[map[string][]string](t, do(t, handler, http.MethodGet, "/history", nil))
	if len(history["runs"]) != 1 || history["runs"][0] != runID {
		t.Errorf("history = %+v", history)
	}
}

// TestLifecycleConflicts lifecycle calls that do not apply are 409.
func TestLifecycleConflicts(t *testing.T) {
	engine := run.NewEngine(echoExecutor())
	handler := New(engine).Handler()
	runID := startRun(t, handler, singleTurn(nil))
	waitRun(t, engine, runID)

	for _, action := range []string{"pause", "resume", "cancel"} {
		if code := do(t, handler, http.MethodPost, "/runs/"+runID+"/"+action, nil).Code; code != http.StatusConflict {
			t.Errorf("%s on a finished run = %d", action, code)
		}
	}
	if code := do(t, handler, http.MethodPost, "/runs/nope/pause", nil).Code; code != http.StatusNotFound {
		t.Errorf("pause unknown run = %d", code)
	}
}

// TestHumanTicketFlow a web turn's ticket is listed, suspended, and answered
// over HTTP.
func TestHumanTicketFlow(t *testing.T) {
	registry := executor.NewRegistry()
	registry.RegisterWeb(&executor.WebExecutor{})
	engine := run.NewEngine(registry)
	handler := New(engine).Handler()

	runID := startRun(t, handler, singleTurn(map[string]any{"executor": "web_claude", "webResultMode": "manualPasteText"}))

	var ticket *humanloop.Ticket
	deadline := time.Now().Add(2 * time.Second)
	for ticket == nil && time.Now().Before(deadline) {
		snapshot := decode[humanloop.Snapshot](t, do(t, handler, http.MethodGet, "/runs/"+runID+"/human", nil))
		ticket = snapshot.Pending
		time.Sleep(time.Millisecond)
	}
	if ticket == nil {
		t.Fatal("no pending ticket")
	}

	suspended := decode[humanloop.Snapshot](t, do(t, handler, http.MethodPost, "/runs/"+runID+"/human/"+ticket.ID+"/suspend", nil))
	if suspended.Pending != nil || suspended.Suspended == nil {
		t.Errorf("after suspend = %+v", suspended)
	}

	recorder := do(t, handler, http.MethodPost, "/runs/"+runID+"/human/"+ticket.ID, HumanResponseRequest{OK: true, Output: "typed by hand"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", recorder.Code, recorder.Body.String())
	}
	waitRun(t, engine, runID)

	view := decode[run.View](t, do(t, handler, http.MethodGet, "/runs/"+runID, nil))
	if view.FinalAnswer != "typed by hand" {
		t.Errorf("final answer = %q", view.FinalAnswer)
	}
	if code := do(t, handler, http.MethodPost, "/runs/"+runID+"/human/"+ticket.ID, HumanResponseRequest{OK: true}).Code; code != http.StatusNotFound {
		t.Errorf("second submit = %d", code)
	}
}

// TestApprovals seeding, listing, and deciding requests.
func TestApprovals(t *testing.T) {
	engine := run.NewEngine(echoExecutor())
	handler := New(engine).Handler()

	seeded := decode[map[string][]approval.Request](t, do(t, handler, http.MethodPost, "/approvals", approval.Seed{
		TaskID:     "deploy",
		ActionType: approval.ActionCommandExecution,
		Preview:    "make deploy",
	}))
	if len(seeded["requests"]) != 1 || seeded["requests"][0].Status != approval.StatusPending {
		t.Fatalf("seeded = %+v", seeded)
	}
	requestID := seeded["requests"][0].RequestID

	listed := decode[map[string][]approval.Request](t, do(t, handler, http.MethodPost, "/approvals", []approval.Seed{
		{TaskID: "deploy", ActionType: approval.ActionCommandExecution, Preview: "make   deploy"},
		{TaskID: "migrate", ActionType: approval.ActionFileChange, Preview: "schema.sql"},
	}))
	if len(listed["requests"]) != 2 {
		t.Errorf("duplicate seed was not collapsed: %+v", listed)
	}

	recorder := do(t, handler, http.MethodPost, "/approvals/"+requestID+"/decision", DecisionRequest{Decision: approval.DecisionAccept})
	if recorder.Code != http.StatusOK || decode[approval.Request](t, recorder).Status != approval.StatusApproved {
		t.Errorf("decide: %d %s", recorder.Code, recorder.Body.String())
	}
	if !engine.Approvals().Evaluate("deploy", approval.ActionCommandExecution, "make deploy").Allowed {
		t.Error("approved request should open the gate")
	}

	if code := do(t, handler, http.MethodPost, "/approvals/"+requestID+"/decision", DecisionRequest{Decision: "maybe"}).Code; code != http.StatusBadRequest {
		t.Errorf("unknown decision = %d", code)
	}
	if code := do(t, handler, http.MethodPost, "/approvals/nope/decision", DecisionRequest{Decision: approval.DecisionDecline}).Code; code != http.StatusNotFound {
		t.Errorf("unknown request = %d", code)
	}
}

// TestBatchEndpoint the batch view is 404 until a runner is attached.
func TestBatchEndpoint(t *testing.T) {
	engine := run.NewEngine(echoExecutor())
	if code := do(t, New(engine).Handler(), http.MethodGet, "/batch", nil).Code; code != http.StatusNotFound {
		t.Errorf("without runner = %d", code)
	}

	runner := batch.NewRunner([]batch.Schedule{{ID: "s1", PipelineID: "p1", Cron: "0 3"}},
		func(context.Context, batch.Schedule, batch.Trigger) error { return nil })
	body := decode[map[string][]any](t, do(t, New(engine, WithBatchRunner(runner)).Handler(), http.MethodGet, "/batch", nil))
	if len(body["schedules"]) != 1 {
		t.Errorf("body = %+v", body)
	}
}
