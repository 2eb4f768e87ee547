package quality

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/leofalp/railgraph/core/graph"
	"github.com/leofalp/railgraph/internal/jsonschema"
	"github.com/leofalp/railgraph/providers/ai"
)

type fakeRunner struct {
	results []CommandResult
	err     error
	calls   int
}

func (f *fakeRunner) Run(_ context.Context, commands []string, _ string) ([]CommandResult, error) {
	f.calls++
	return f.results, f.err
}

const longText = "The change touches the parser module and adds a regression test for the tokenizer. " +
	"Build and lint steps are listed below so the reviewer can reproduce the result locally."

func TestInferProfile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		nodeID string
		config graph.TurnConfig
		want   Profile
	}{
		{name: "explicit wins", nodeID: "impl", config: graph.TurnConfig{QualityProfile: "generic"}, want: ProfileGeneric},
		{name: "web executor", nodeID: "n1", config: graph.TurnConfig{Executor: graph.ExecutorWebGemini}, want: ProfileResearchEvidence},
		{name: "code keyword", nodeID: "implementer", want: ProfileCodeImplementation},
		{name: "design keyword", nodeID: "n1", config: graph.TurnConfig{Role: "Architect", PromptTemplate: "Design the system"}, want: ProfileDesignPlanning},
		{name: "synthesis keyword", nodeID: "reviewer", config: graph.TurnConfig{PromptTemplate: "Summarize findings"}, want: ProfileSynthesisFinal},
		{name: "fallback", nodeID: "n1", config: graph.TurnConfig{Role: "Agent"}, want: ProfileGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := InferProfile(tt.nodeID, tt.config); got != tt.want {
				t.Errorf("InferProfile() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	thresholds := map[int]int{0: 70, 5: 10, 55: 60, 150: 100, 70: 70}
	for input, want := range thresholds {
		if got := NormalizeThreshold(input); got != want {
			t.Errorf("NormalizeThreshold(%d) = %d, want %d", input, got, want)
		}
	}
	scores := map[int]int{-20: 0, 45: 50, 44: 40, 130: 100}
	for input, want := range scores {
		if got := NormalizeScore(input); got != want {
			t.Errorf("NormalizeScore(%d) = %d, want %d", input, got, want)
		}
	}
}

// TestEvaluate_Profiles exercises the rubric of each profile.
func TestEvaluate_Profiles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		nodeID       string
		config       graph.TurnConfig
		output       any
		evaluator    *Evaluator
		wantScore    int
		wantDecision Decision
		wantFailures int
		wantWarnings int
	}{
		{
			name:         "empty output",
			nodeID:       "n1",
			output:       "",
			evaluator:    &Evaluator{},
			wantScore:    50,
			wantDecision: DecisionReject,
			wantFailures: 1,
		},
		{
			name:         "research with sources",
			nodeID:       "n1",
			config:       graph.TurnConfig{Executor: graph.ExecutorWebPerplexity},
			output:       map[string]any{"text": "Source: https://example.org shows growth. The main risk is sampling bias, which limits how far the result generalizes to other regions."},
			evaluator:    &Evaluator{},
			wantScore:    100,
			wantDecision: DecisionPass,
		},
		{
			name:         "synthesis missing structure",
			nodeID:       "final",
			config:       graph.TurnConfig{QualityThreshold: 80},
			output:       "Looks good.",
			evaluator:    &Evaluator{},
			wantScore:    70,
			wantDecision: DecisionReject,
			wantFailures: 1,
		},
		{
			name:   "code with failing command",
			nodeID: "implement",
			config: graph.TurnConfig{QualityCommands: []string{"go test ./..."}},
			output: longText,
			evaluator: &Evaluator{CommandsEnabled: true, Runner: &fakeRunner{results: []CommandResult{
				{Name: "go test ./...", ExitCode: 1, StderrTail: "FAIL parser"},
			}}},
			wantScore:    70,
			wantDecision: DecisionPass,
			wantFailures: 1,
			wantWarnings: 1,
		},
		{
			name:         "code with runner error",
			nodeID:       "implement",
			config:       graph.TurnConfig{QualityCommands: []string{"make"}, QualityThreshold: 80},
			output:       longText,
			evaluator:    &Evaluator{CommandsEnabled: true, Runner: &fakeRunner{err: errors.New("sandbox unavailable")}},
			wantScore:    70,
			wantDecision: DecisionReject,
			wantFailures: 1,
		},
		{
			name:         "code with empty command list",
			nodeID:       "implement",
			output:       longText,
			evaluator:    &Evaluator{CommandsEnabled: true, Runner: &fakeRunner{}},
			wantScore:    100,
			wantDecision: DecisionPass,
			wantWarnings: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			report := tt.evaluator.Evaluate(context.Background(), tt.nodeID, tt.config, tt.output)
			if report.Score != tt.wantScore {
				t.Errorf("score = %d, want %d (checks %+v)", report.Score, tt.wantScore, report.Checks)
			}
			if report.Decision != tt.wantDecision {
				t.Errorf("decision = %s, want %s", report.Decision, tt.wantDecision)
			}
			if len(report.Failures) != tt.wantFailures {
				t.Errorf("failures = %v, want %d", report.Failures, tt.wantFailures)
			}
			if len(report.Warnings) != tt.wantWarnings {
				t.Errorf("warnings = %v, want %d", report.Warnings, tt.wantWarnings)
			}
			if err := report.Err(); (err != nil) != (tt.wantDecision == DecisionReject) {
				t.Errorf("Err() = %v", err)
			} else if err != nil && !errors.Is(err, ErrLowQuality) {
				t.Errorf("Err() does not wrap ErrLowQuality: %v", err)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	if got := Summarize(nil); got != (Summary{}) {
		t.Errorf("Summarize(nil) = %+v", got)
	}
	got := Summarize(map[string]Report{
		"a": {Score: 80, Decision: DecisionPass},
		"b": {Score: 50, Decision: DecisionReject},
		"c": {Score: 70, Decision: DecisionPass},
	})
	want := Summary{AvgScore: 66.67, PassRate: 66.67, TotalNodes: 3, PassNodes: 2}
	if got != want {
		t.Errorf("Summarize() = %+v, want %+v", got, want)
	}
}

func mustSchema(testingHelper *testing.T) *jsonschema.Schema {
	testingHelper.Helper()
	schema, err := jsonschema.Parse(`{"type":"object","required":["verdict"],"properties":{"verdict":{"type":"string","enum":["PASS","REJECT"]}}}`)
	if err != nil {
		testingHelper.Fatalf("parse schema: %v", err)
	}
	return schema
}

// scriptedTurn replays outputs and errors in order and records the inputs.
type scriptedTurn struct {
	outputs []any
	errs    []error
	inputs  []any
}

func (s *scriptedTurn) call(_ context.Context, input any) (any, *ai.Usage, error) {
	index := len(s.inputs)
	s.inputs = append(s.inputs, input)
	var err error
	if index < len(s.errs) {
		err = s.errs[index]
	}
	output := s.outputs[min(index, len(s.outputs)-1)]
	return output, &ai.Usage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10}, err
}

// TestExecuteWithSchemaRetry_Exhausted a schema that never passes fails after
// maxRetry extra attempts and sums the usage of every attempt.
func TestExecuteWithSchemaRetry_Exhausted(t *testing.T) {
	t.Parallel()
	turn := &scriptedTurn{outputs: []any{"not json at all"}}
	var logs []string

	result, err := ExecuteWithSchemaRetry(context.Background(), "question", turn.call, RetryOptions{
		Schema:   mustSchema(t),
		MaxRetry: 2,
		Log:      func(message string) { logs = append(logs, message) },
	})

	if !errors.Is(err, ErrSchemaValidation) {
		t.Fatalf("error = %v, want ErrSchemaValidation", err)
	}
	if !strings.Contains(err.Error(), "$: expected object, got string") {
		t.Errorf("error does not list the final errors: %v", err)
	}
	if result.Attempts != 3 || len(turn.inputs) != 3 {
		t.Errorf("attempts = %d, calls = %d, want 3", result.Attempts, len(turn.inputs))
	}
	if result.Usage == nil || result.Usage.TotalTokens != 30 || result.Usage.PromptTokens != 21 {
		t.Errorf("usage = %+v, want summed over 3 attempts", result.Usage)
	}
	retryInput, _ := turn.inputs[1].(string)
	for _, section := range []string{"[Original input]\n\nquestion", "[Schema errors]\n\n1. $: expected object, got string", "[Retry instruction]"} {
		if !strings.Contains(retryInput, section) {
			t.Errorf("retry input missing %q:\n%s", section, retryInput)
		}
	}
	if len(logs) == 0 {
		t.Error("expected schema log lines")
	}
}

func TestExecuteWithSchemaRetry_Outcomes(t *testing.T) {
	t.Parallel()
	boom := errors.New("executor down")

	tests := []struct {
		name         string
		turn         *scriptedTurn
		schema       bool
		wantAttempts int
		wantErr      string
		wantIs       error
	}{
		{name: "no schema", turn: &scriptedTurn{outputs: []any{"anything"}}, wantAttempts: 1},
		{name: "valid first time", turn: &scriptedTurn{outputs: []any{`{"verdict":"PASS"}`}}, schema: true, wantAttempts: 1},
		{name: "fixed by retry", turn: &scriptedTurn{outputs: []any{`{"verdict":"MAYBE"}`, `{"verdict":"REJECT"}`}}, schema: true, wantAttempts: 2},
		{name: "first call fails", turn: &scriptedTurn{outputs: []any{nil}, errs: []error{boom}}, schema: true, wantAttempts: 1, wantErr: "executor down", wantIs: boom},
		{
			name:         "retry call fails",
			turn:         &scriptedTurn{outputs: []any{"prose"}, errs: []error{nil, boom}},
			schema:       true,
			wantAttempts: 2,
			wantErr:      "output schema retry failed: executor down",
			wantIs:       boom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			options := RetryOptions{MaxRetry: 2}
			if tt.schema {
				options.Schema = mustSchema(t)
			}
			result, err := ExecuteWithSchemaRetry(context.Background(), "q", tt.turn.call, options)
			if result.Attempts != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", result.Attempts, tt.wantAttempts)
			}
			if result.Usage == nil || result.Usage.TotalTokens != 10*tt.wantAttempts {
				t.Errorf("usage = %+v", result.Usage)
			}
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.wantErr {
				t.Fatalf("error = %v, want %q", err, tt.wantErr)
			}
			if !errors.Is(err, tt.wantIs) {
				t.Errorf("error chain lost %v", tt.wantIs)
			}
		})
	}
}

func TestShellRunner(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	results, err := ShellRunner{}.Run(context.Background(), ParseCommands([]string{"true\n  ", "echo boom 1>&2; exit 3"}), t.TempDir())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %+v", results)
	}
	if results[0].ExitCode != 0 {
		t.Errorf("true exit = %d", results[0].ExitCode)
	}
	if results[1].ExitCode != 3 || strings.TrimSpace(results[1].StderrTail) != "boom" {
		t.Errorf("failing command = %+v", results[1])
	}
}
