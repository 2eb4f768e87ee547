package jsonschema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Schema represents the structure of JSON Schema used to describe the
// expected shape of a node's output.
type Schema struct {
	//  Type Specifies the data type (e.g., "object", "array", "string", "number")
	Type        string   `json:"type,omitempty"`
	Description string   `json:"description,omitempty"`
	Required    []string `json:"required,omitempty"`
	// Properties of the object, each with its own schema
	Properties map[string]*Schema `json:"properties,omitempty"`
	// For array types, defines the schema of items in the array
	Items *Schema `json:"items,omitempty"`
	// AdditionalProperties: Controls whether properties not defined in Properties are allowed
	AdditionalProperties any `json:"additionalProperties,omitempty"`
	// Default value for the field
	Default any `json:"default,omitempty"`
	// Enum contains the list of allowed values
	Enum []any `json:"enum,omitempty"`
	// Ref is a local reference into Defs ("#/$defs/Name")
	Ref string `json:"$ref,omitempty"`
	// Defs contains reusable schema definitions
	Defs map[string]*Schema `json:"$defs,omitempty"`
}

// ErrEmptySchema is returned by Parse when the input carries no schema at all.
var ErrEmptySchema = errors.New("empty schema")

// Parse decodes a schema from a JSON string, raw bytes, a decoded map, or an
// existing *Schema. Whitespace-only strings yield ErrEmptySchema.
func Parse(raw any) (*Schema, error) {
	var data []byte
	switch typed := raw.(type) {
	case nil:
		return nil, ErrEmptySchema
	case *Schema:
		return typed, nil
	case string:
		if strings.TrimSpace(typed) == "" {
			return nil, ErrEmptySchema
		}
		data = []byte(typed)
	case []byte:
		data = typed
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return nil, fmt.Errorf("invalid schema: %w", err)
		}
		data = encoded
	}

	var schema Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	if schema.Type == "" && len(schema.Enum) == 0 && schema.Ref == "" && len(schema.Properties) == 0 {
		return nil, fmt.Errorf("invalid schema: no type, enum, $ref or properties declared")
	}
	return &schema, nil
}

// Validate checks value against schema and returns every violation found.
// An empty result means value conforms. Values are expected in the shape
// produced by encoding/json (map[string]any, []any, float64, ...).
func Validate(schema *Schema, value any) []string {
	if schema == nil {
		return nil
	}
	v := &validator{root: schema}
	v.validate(schema, value, "$")
	return v.errors
}

type validator struct {
	root   *Schema
	errors []string
	depth  int
}

func (v *validator) addf(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) resolve(schema *Schema) (*Schema, error) {
	if schema.Ref == "" {
		return schema, nil
	}
	name, ok := strings.CutPrefix(schema.Ref, "#/$defs/")
	if !ok {
		return nil, fmt.Errorf("unsupported $ref %q", schema.Ref)
	}
	target, ok := v.root.Defs[name]
	if !ok || target == nil {
		return nil, fmt.Errorf("unresolved $ref %q", schema.Ref)
	}
	return target, nil
}

func (v *validator) validate(schema *Schema, value any, path string) {
	// Self-referencing $defs are legal; stop at a sane depth instead of looping.
	if v.depth > 64 {
		return
	}
	v.depth++
	defer func() { v.depth-- }()

	resolved, err := v.resolve(schema)
	if err != nil {
		v.addf("%s: %v", path, err)
		return
	}
	schema = resolved

	if len(schema.Enum) > 0 && !enumContains(schema.Enum, value) {
		v.addf("%s: value %s is not one of %s", path, compact(value), compact(schema.Enum))
		return
	}

	if schema.Type != "" && !matchesType(schema.Type, value) {
		v.addf("%s: expected %s, got %s", path, schema.Type, typeName(value))
		return
	}

	switch typed := value.(type) {
	case map[string]any:
		for _, key := range schema.Required {
			if _, ok := typed[key]; !ok {
				v.addf("%s.%s: required field missing", path, key)
			}
		}
		keys := make([]string, 0, len(schema.Properties))
		for key := range schema.Properties {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			child, ok := typed[key]
			if !ok {
				continue
			}
			v.validate(schema.Properties[key], child, path+"."+key)
		}
		if allowed, ok := schema.AdditionalProperties.(bool); ok && !allowed && len(schema.Properties) > 0 {
			extra := make([]string, 0)
			for key := range typed {
				if _, declared := schema.Properties[key]; !declared {
					extra = append(extra, key)
				}
			}
			sort.Strings(extra)
			for _, key := range extra {
				v.addf("%s.%s: additional property not allowed", path, key)
			}
		}
	case []any:
		if schema.Items != nil {
			for index, item := range typed {
				v.validate(schema.Items, item, fmt.Sprintf("%s[%d]", path, index))
			}
		}
	}
}

func matchesType(schemaType string, value any) bool {
	switch schemaType {
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := asFloat(value)
		return ok
	case "integer":
		number, ok := asFloat(value)
		return ok && number == math.Trunc(number)
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "null":
		return value == nil
	default:
		return true
	}
}

func asFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case json.Number:
		number, err := typed.Float64()
		return number, err == nil
	default:
		return 0, false
	}
}

func typeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	default:
		if _, ok := asFloat(value); ok {
			return "number"
		}
		return fmt.Sprintf("%T", value)
	}
}

func enumContains(options []any, value any) bool {
	want := compact(value)
	for _, option := range options {
		if compact(option) == want {
			return true
		}
	}
	return false
}

func compact(value any) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(encoded)
}
