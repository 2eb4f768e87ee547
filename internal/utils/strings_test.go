package utils

import (
	"strings"
	"testing"
)

// TestJSONToString_Indented verifies that passing indent=true produces
// pretty-printed JSON with newlines.
func TestJSONToString_Indented(t *testing.T) {
	result := JSONToString(map[string]int{"x": 42}, true)
	if !strings.Contains(result, "\n  ") {
		t.Errorf("JSONToString(indent=true) should be indented, got: %q", result)
	}
}

// TestJSONToString_MarshalError verifies that JSONToString returns an error
// sentinel string rather than panicking when the value cannot be marshaled.
func TestJSONToString_MarshalError(t *testing.T) {
	result := JSONToString(make(chan int))
	if !strings.HasPrefix(result, `{"error":`) {
		t.Errorf("JSONToString() on unmarshalable value should return error JSON, got: %q", result)
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{name: "nil", input: nil, want: ""},
		{name: "string passthrough", input: "hello", want: "hello"},
		{name: "bytes", input: []byte("raw"), want: "raw"},
		{name: "map as json", input: map[string]int{"a": 1}, want: "{\n  \"a\": 1\n}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Stringify(tt.input); got != tt.want {
				t.Errorf("Stringify() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestClipText covers the untouched, clipped, and multi-byte cases.
func TestClipText(t *testing.T) {
	if got := ClipText("short", 10); got != "short" {
		t.Errorf("ClipText() = %q, want unchanged", got)
	}
	if got := ClipText("abcdefghij", 4); got != "abcd\n...(clipped)" {
		t.Errorf("ClipText() = %q", got)
	}
	if got := ClipText("가나다라", 2); got != "가나\n...(clipped)" {
		t.Errorf("ClipText() split a rune: %q", got)
	}
}

func TestTruncateString(t *testing.T) {
	got := TruncateString(strings.Repeat("a", 20), 5)
	if got != "aaaaa... (truncated, total: 20 chars)" {
		t.Errorf("TruncateString() = %q", got)
	}
	if got := TruncateString("abc", 5); got != "abc" {
		t.Errorf("TruncateString() = %q, want unchanged", got)
	}
}

func TestCollapseWhitespace(t *testing.T) {
	if got := CollapseWhitespace("  rm   -rf\t/tmp\n\nfoo "); got != "rm -rf /tmp foo" {
		t.Errorf("CollapseWhitespace() = %q", got)
	}
}
