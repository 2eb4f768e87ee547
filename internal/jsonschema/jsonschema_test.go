package jsonschema

import (
	"errors"
	"strings"
	"testing"
)

const reportSchema = `{
  "type": "object",
  "required": ["title", "score", "tags"],
  "properties": {
    "title": {"type": "string"},
    "score": {"type": "integer"},
    "verdict": {"enum": ["PASS", "REJECT"]},
    "tags": {"type": "array", "items": {"type": "string"}}
  }
}`

func mustParse(testingHelper *testing.T, raw any) *Schema {
	testingHelper.Helper()
	schema, err := Parse(raw)
	if err != nil {
		testingHelper.Fatalf("Parse() error = %v", err)
	}
	return schema
}

// TestParse_Inputs verifies the accepted input shapes and the rejection of
// empty or shapeless schemas.
func TestParse_Inputs(t *testing.T) {
	if _, err := Parse("   "); !errors.Is(err, ErrEmptySchema) {
		t.Errorf("Parse(blank) error = %v, want ErrEmptySchema", err)
	}
	if _, err := Parse(nil); !errors.Is(err, ErrEmptySchema) {
		t.Errorf("Parse(nil) error = %v, want ErrEmptySchema", err)
	}
	if _, err := Parse(`{"description": "nothing"}`); err == nil {
		t.Error("Parse() should reject a schema without type, enum, $ref or properties")
	}
	if _, err := Parse(`{not json`); err == nil {
		t.Error("Parse() should reject malformed JSON")
	}

	schema := mustParse(t, map[string]any{"type": "string"})
	if schema.Type != "string" {
		t.Errorf("Parse(map) Type = %q, want string", schema.Type)
	}
}

func TestValidate(t *testing.T) {
	schema := mustParse(t, reportSchema)

	tests := []struct {
		name       string
		value      any
		wantErrors []string
	}{
		{
			name:  "conforming",
			value: map[string]any{"title": "t", "score": float64(3), "tags": []any{"a"}},
		},
		{
			name:       "wrong root type",
			value:      "plain text",
			wantErrors: []string{"$: expected object, got string"},
		},
		{
			name:       "missing required",
			value:      map[string]any{"title": "t", "tags": []any{}},
			wantErrors: []string{"$.score: required field missing"},
		},
		{
			name:       "non integer",
			value:      map[string]any{"title": "t", "score": 2.5, "tags": []any{}},
			wantErrors: []string{"$.score: expected integer, got number"},
		},
		{
			name:       "enum mismatch",
			value:      map[string]any{"title": "t", "score": float64(1), "tags": []any{}, "verdict": "MAYBE"},
			wantErrors: []string{`$.verdict: value "MAYBE" is not one of ["PASS","REJECT"]`},
		},
		{
			name:       "array item",
			value:      map[string]any{"title": "t", "score": float64(1), "tags": []any{"ok", float64(7)}},
			wantErrors: []string{"$.tags[1]: expected string, got number"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Validate(schema, tt.value)
			if strings.Join(got, "|") != strings.Join(tt.wantErrors, "|") {
				t.Errorf("Validate() = %q, want %q", got, tt.wantErrors)
			}
		})
	}
}

// TestValidate_RefAndAdditionalProperties exercises local $defs references
// and the closed-object check.
func TestValidate_RefAndAdditionalProperties(t *testing.T) {
	schema := mustParse(t, `{
	  "type": "object",
	  "additionalProperties": false,
	  "properties": {"source": {"$ref": "#/$defs/Source"}},
	  "$defs": {"Source": {"type": "object", "required": ["url"]}}
	}`)

	got := Validate(schema, map[string]any{"source": map[string]any{}, "extra": true})
	want := []string{"$.source.url: required field missing", "$.extra: additional property not allowed"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Validate() = %q, want %q", got, want)
	}

	broken := mustParse(t, `{"$ref": "#/$defs/Missing"}`)
	if errs := Validate(broken, "x"); len(errs) != 1 || !strings.Contains(errs[0], "unresolved") {
		t.Errorf("Validate() with dangling ref = %q", errs)
	}
}
