package parse

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  any
	}{
		{
			name:  "strict object",
			input: `{"name":"John"}`,
			want:  map[string]any{"name": "John"},
		},
		{
			name:  "code fence",
			input: "```json\n{\"name\": \"Bob\", \"age\": 35}\n```",
			want:  map[string]any{"name": "Bob", "age": float64(35)},
		},
		{
			name:  "single line comment",
			input: "{\n // comment\n \"ok\": true\n}",
			want:  map[string]any{"ok": true},
		},
		{
			name:  "prose around object",
			input: "Here is the result:\n{\"DECISION\":\"PASS\"}\nThank you!",
			want:  map[string]any{"DECISION": "PASS"},
		},
		{
			name:  "schema wrapped value",
			input: `{"name": {"type": "string", "value": "John"}}`,
			want:  map[string]any{"name": "John"},
		},
		{
			name:  "array",
			input: `[1, 2]`,
			want:  []any{float64(1), float64(2)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJSON(tt.input)
			if err != nil {
				t.Fatalf("ParseJSON() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseJSON() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

// TestParseJSON_NoJSON verifies that plain prose and scalars are rejected.
func TestParseJSON_NoJSON(t *testing.T) {
	for _, input := range []string{"", "   ", "This is just plain text", `"a string"`, "42"} {
		if _, err := ParseJSON(input); !errors.Is(err, ErrNoJSON) {
			t.Errorf("ParseJSON(%q) error = %v, want ErrNoJSON", input, err)
		}
	}
}

func TestParseAs(t *testing.T) {
	type verdict struct {
		Decision string `json:"DECISION"`
		Score    int    `json:"score"`
	}
	got, err := ParseAs[verdict]("Result: {\"DECISION\": \"REJECT\", \"score\": 40}")
	if err != nil {
		t.Fatalf("ParseAs() error = %v", err)
	}
	if got != (verdict{Decision: "REJECT", Score: 40}) {
		t.Errorf("ParseAs() = %+v", got)
	}
}

func TestExtractJSONCandidates(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "multiple objects", input: `{"first":1} and {"second":2}`, expected: []string{`{"first":1}`, `{"second":2}`}},
		{name: "nested", input: `{"outer":{"inner":"value"}}`, expected: []string{`{"outer":{"inner":"value"}}`, `{"inner":"value"}`}},
		{name: "brace inside string", input: `{"text":"a } b"}`, expected: []string{`{"text":"a } b"}`}},
		{name: "incomplete", input: `Here is incomplete: {"name":`, expected: []string{}},
		{name: "no json", input: "plain", expected: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractJSONCandidates(tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("extractJSONCandidates() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestValidationTarget(t *testing.T) {
	tests := []struct {
		name   string
		output any
		want   any
	}{
		{name: "artifact payload", output: map[string]any{"artifact": map[string]any{"payload": map[string]any{"a": 1}}}, want: map[string]any{"a": 1}},
		{name: "raw", output: map[string]any{"raw": "x", "text": "y"}, want: "x"},
		{name: "json text", output: map[string]any{"text": `{"a": 1}`}, want: map[string]any{"a": float64(1)}},
		{name: "plain text", output: map[string]any{"text": "hello"}, want: map[string]any{"text": "hello"}},
		{name: "bare string json", output: `{"b": true}`, want: map[string]any{"b": true}},
		{name: "bare string prose", output: "hello", want: "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidationTarget(tt.output); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ValidationTarget() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestExtractFinalAnswer(t *testing.T) {
	tests := []struct {
		name   string
		output any
		want   string
	}{
		{name: "text field", output: map[string]any{"text": " answer "}, want: "answer"},
		{name: "completion text", output: map[string]any{"completion": map[string]any{"text": "nested"}}, want: "nested"},
		{name: "final draft", output: map[string]any{"finalDraft": "draft", "result": "other"}, want: "draft"},
		{name: "result", output: map[string]any{"result": "r"}, want: "r"},
		{name: "plain string", output: "just text", want: "just text"},
		{name: "fallback json", output: map[string]any{"n": 1}, want: "{\n  \"n\": 1\n}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractFinalAnswer(tt.output); got != tt.want {
				t.Errorf("ExtractFinalAnswer() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetByPath(t *testing.T) {
	data := map[string]any{
		"report": map[string]any{
			"items": []any{map[string]any{"id": "first"}},
		},
		"DECISION": "PASS",
	}
	if got, ok := GetByPath(data, "DECISION"); !ok || got != "PASS" {
		t.Errorf("GetByPath(DECISION) = %v, %v", got, ok)
	}
	if got, ok := GetByPath(data, "$.report.items[0].id"); !ok || got != "first" {
		t.Errorf("GetByPath(items[0].id) = %v, %v", got, ok)
	}
	if _, ok := GetByPath(data, "report.missing"); ok {
		t.Error("GetByPath(report.missing) should not be found")
	}
	if _, ok := GetByPath(data, ""); ok {
		t.Error("GetByPath(empty) should not be found")
	}
	if err := ValidatePath("a["); err == nil {
		t.Error("ValidatePath() should reject a malformed path")
	}
}
