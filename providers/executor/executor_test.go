package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/leofalp/railgraph/core/graph"
	"github.com/leofalp/railgraph/core/humanloop"
	"github.com/leofalp/railgraph/providers/ai"
)

// ========== Fakes ==========

type fakeProvider struct {
	mu        sync.Mutex
	calls     int
	errs      []error
	responses []*ai.ChatResponse
	requests  []ai.ChatRequest
}

func (fake *fakeProvider) Name() string { return "fake" }

func (fake *fakeProvider) SendMessage(_ context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	index := fake.calls
	fake.calls++
	fake.requests = append(fake.requests, request)
	if index < len(fake.errs) && fake.errs[index] != nil {
		return nil, fake.errs[index]
	}
	if index < len(fake.responses) {
		return fake.responses[index], nil
	}
	return &ai.ChatResponse{Content: "ok", FinishReason: "stop"}, nil
}

type statusErr int

func (code statusErr) Error() string   { return fmt.Sprintf("status %d", int(code)) }
func (code statusErr) HTTPStatus() int { return int(code) }

type fakeBridge struct {
	text string
	err  error
}

func (bridge fakeBridge) Collect(context.Context, string, string) (string, error) {
	return bridge.text, bridge.err
}

func fastRetry() RetryConfig {
	return RetryConfig{InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func turnRequest(kind graph.ExecutorKind, prompt string) Request {
	return Request{RunID: "run-1", NodeID: "n1", Config: graph.TurnConfig{Executor: kind}, Prompt: prompt}
}

// ========== Registry ==========

// Unregistered kinds fail with ErrUnknownKind wrapped in *Error.
func TestRegistryUnknownKind(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.Execute(context.Background(), turnRequest(graph.ExecutorOllama, "hi"))

	var execErr *Error
	if !errors.As(err, &execErr) || execErr.Kind != graph.ExecutorOllama {
		t.Fatalf("expected *Error for ollama, got %v", err)
	}
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

// The default kind is codex and the provider name falls back to the kind.
func TestRegistryDefaultsProvider(t *testing.T) {
	registry := NewRegistry()
	registry.Register(graph.ExecutorCodex, Func(func(context.Context, Request) (Result, error) {
		return Result{Output: "x"}, nil
	}))

	result, err := registry.Execute(context.Background(), Request{NodeID: "n"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Provider != "codex" {
		t.Errorf("expected provider codex, got %q", result.Provider)
	}
}

// A failure observed after the context ended is reported as cancellation.
func TestRegistryMarksCancellation(t *testing.T) {
	registry := NewRegistry()
	registry.Register(graph.ExecutorCodex, Func(func(ctx context.Context, _ Request) (Result, error) {
		<-ctx.Done()
		return Result{}, errors.New("interrupted")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := registry.Execute(ctx, Request{})
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
}

func TestRegistryRegisterWebAndKinds(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterWeb(&WebExecutor{})
	kinds := registry.Kinds()
	if len(kinds) != 5 {
		t.Fatalf("expected 5 web kinds, got %v", kinds)
	}
	for _, kind := range kinds {
		if !kind.IsWeb() {
			t.Errorf("unexpected non-web kind %s", kind)
		}
	}
}

// ========== LLMExecutor ==========

// Retryable failures are retried and the final answer is parsed.
func TestLLMExecutorRetriesTransientErrors(t *testing.T) {
	provider := &fakeProvider{
		errs: []error{statusErr(503), statusErr(429)},
		responses: []*ai.ChatResponse{nil, nil, {
			Content: "```json\n{\"verdict\": \"PASS\"}\n```",
			Usage:   &ai.Usage{TotalTokens: 9},
		}},
	}
	executor := NewLLMExecutor(provider, WithRetry(fastRetry()), WithSystemPrompt("sys"))

	result, err := executor.Execute(context.Background(), turnRequest(graph.ExecutorCodex, "judge"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.calls != 3 {
		t.Errorf("expected 3 calls, got %d", provider.calls)
	}
	output := result.Output.(map[string]any)
	data, ok := output["data"].(map[string]any)
	if !ok || data["verdict"] != "PASS" {
		t.Errorf("expected parsed data, got %+v", output)
	}
	if result.Usage == nil || result.Usage.TotalTokens != 9 || result.Provider != "fake" {
		t.Errorf("unexpected result %+v", result)
	}
	if provider.requests[0].SystemPrompt != "sys" || provider.requests[0].Messages[0].Content != "judge" {
		t.Errorf("unexpected chat request %+v", provider.requests[0])
	}
}

// Non-retryable failures are returned after one call.
func TestLLMExecutorStopsOnClientError(t *testing.T) {
	provider := &fakeProvider{errs: []error{statusErr(400)}}
	executor := NewLLMExecutor(provider, WithRetry(fastRetry()))

	_, err := executor.Execute(context.Background(), turnRequest(graph.ExecutorCodex, "x"))
	if err == nil || provider.calls != 1 {
		t.Errorf("expected one failing call, got calls=%d err=%v", provider.calls, err)
	}
}

func TestLLMExecutorRetryExhausted(t *testing.T) {
	provider := &fakeProvider{errs: []error{statusErr(500), statusErr(500), statusErr(500)}}
	config := fastRetry()
	config.MaxRetries = 2
	executor := NewLLMExecutor(provider, WithRetry(config))

	_, err := executor.Execute(context.Background(), turnRequest(graph.ExecutorCodex, "x"))
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("expected ErrRetryExhausted, got %v", err)
	}
	if provider.calls != 3 {
		t.Errorf("expected 3 calls, got %d", provider.calls)
	}
}

// An output schema is forwarded to the provider as a response format.
func TestLLMExecutorForwardsSchema(t *testing.T) {
	provider := &fakeProvider{}
	executor := NewLLMExecutor(provider, WithRequestsPerMinute(6000))

	request := turnRequest(graph.ExecutorCodex, "x")
	request.Config.OutputSchema = `{"type":"object","required":["a"]}`
	if _, err := executor.Execute(context.Background(), request); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	format := provider.requests[0].ResponseFormat
	if format == nil || format.OutputSchema == nil || format.OutputSchema.Type != "object" {
		t.Errorf("expected schema response format, got %+v", format)
	}
}

func TestDefaultRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{statusErr(429), true},
		{statusErr(404), false},
		{errors.New("upstream said 502 bad gateway"), true},
		{context.Canceled, false},
		{errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := DefaultRetryable(tc.err); got != tc.want {
			t.Errorf("DefaultRetryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestBackoffIsCapped(t *testing.T) {
	config := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 4 * time.Second, JitterFraction: 0.1}.withDefaults()
	if got := config.backoff(10); got < 4*time.Second || got > 4400*time.Millisecond {
		t.Errorf("expected capped backoff near 4s, got %s", got)
	}
}

// ========== WebExecutor ==========

// A working bridge answers without involving the human queue.
func TestWebExecutorUsesBridge(t *testing.T) {
	queue := humanloop.NewQueue(nil)
	executor := &WebExecutor{Bridge: fakeBridge{text: "<p>Hello <strong>there</strong></p>"}}

	request := turnRequest(graph.ExecutorWebGemini, "ask")
	request.Humans = queue
	result, err := executor.Execute(context.Background(), request)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := result.Output.(map[string]any)
	if output["text"] != "Hello **there**" || result.Provider != "gemini" {
		t.Errorf("unexpected output %+v", output)
	}
	if snapshot := queue.Snapshot(); snapshot.Pending != nil {
		t.Errorf("expected no human ticket, got %+v", snapshot.Pending)
	}
}

// A failing bridge falls back to a human ticket, whose answer is used.
func TestWebExecutorFallsBackToHuman(t *testing.T) {
	queue := humanloop.NewQueue(nil)
	executor := &WebExecutor{Bridge: fakeBridge{err: errors.New("browser closed")}}

	request := turnRequest(graph.ExecutorWebGPT, "ask")
	request.Humans = queue

	done := make(chan Result, 1)
	go func() {
		result, err := executor.Execute(context.Background(), request)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		done <- result
	}()

	ticket := waitForPending(t, queue)
	if ticket.Turn.Mode != graph.WebResultManualText || ticket.Turn.Provider != "gpt" {
		t.Errorf("unexpected ticket %+v", ticket)
	}
	if err := queue.Submit(ticket.ID, humanloop.Response{OK: true, Output: "pasted answer"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	result := <-done
	output := result.Output.(map[string]any)
	if output["text"] != "pasted answer" {
		t.Errorf("unexpected output %+v", output)
	}
}

// The pause token unwinds the call as a cancellation.
func TestWebExecutorPauseToken(t *testing.T) {
	queue := humanloop.NewQueue(nil)
	executor := &WebExecutor{}

	request := turnRequest(graph.ExecutorWebClaude, "ask")
	request.Config.WebResultMode = graph.WebResultManualJSON
	request.Humans = queue

	errs := make(chan error, 1)
	go func() {
		_, err := executor.Execute(context.Background(), request)
		errs <- err
	}()

	waitForPending(t, queue)
	queue.ResolvePending(humanloop.Failure(humanloop.PauseToken))
	if err := <-errs; !errors.Is(err, ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
}

// Cancelling the context detaches the waiter so a later request re-attaches.
func TestWebExecutorContextCancelDetaches(t *testing.T) {
	queue := humanloop.NewQueue(nil)
	executor := &WebExecutor{}
	request := turnRequest(graph.ExecutorWebGrok, "ask")
	request.Humans = queue

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := executor.Execute(ctx, request)
		errs <- err
	}()

	waitForPending(t, queue)
	cancel()
	if err := <-errs; !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	snapshot := queue.Snapshot()
	if snapshot.Pending == nil || snapshot.Pending.Attached {
		t.Errorf("expected a detached pending ticket, got %+v", snapshot.Pending)
	}
}

func TestWebExecutorWithoutQueue(t *testing.T) {
	_, err := (&WebExecutor{}).Execute(context.Background(), turnRequest(graph.ExecutorWebGemini, "x"))
	if !errors.Is(err, ErrNoHumanQueue) {
		t.Errorf("expected ErrNoHumanQueue, got %v", err)
	}
}

// ========== HTTPBridge ==========

func TestHTTPBridgeCollect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bridgeRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if r.URL.Path != "/collect" || body.Provider != "gemini" {
			t.Errorf("unexpected request %s %+v", r.URL.Path, body)
		}
		_ = json.NewEncoder(w).Encode(bridgeResponse{OK: true, Text: "answer for " + body.Prompt})
	}))
	defer server.Close()

	text, err := (&HTTPBridge{BaseURL: server.URL + "/"}).Collect(context.Background(), "gemini", "q")
	if err != nil || text != "answer for q" {
		t.Errorf("unexpected result %q, %v", text, err)
	}
}

func TestHTTPBridgeReportsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(bridgeResponse{Error: "login required"})
	}))
	defer server.Close()

	_, err := (&HTTPBridge{BaseURL: server.URL}).Collect(context.Background(), "gpt", "q")
	if err == nil || err.Error() != "bridge: login required" {
		t.Errorf("expected login error, got %v", err)
	}
}

func waitForPending(testingHelper *testing.T, queue *humanloop.Queue) humanloop.Ticket {
	testingHelper.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snapshot := queue.Snapshot(); snapshot.Pending != nil && snapshot.Pending.Attached {
			return *snapshot.Pending
		}
		time.Sleep(time.Millisecond)
	}
	testingHelper.Fatal("no pending ticket appeared")
	return humanloop.Ticket{}
}
