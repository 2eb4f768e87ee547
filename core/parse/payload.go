package parse

import (
	"fmt"
	"strings"

	"github.com/ohler55/ojg/jp"

	"github.com/leofalp/railgraph/internal/utils"
)

// ValidationTarget picks the part of a node output that an output schema
// applies to: an artifact payload, a raw value, the JSON parsed out of a
// text field, or the output itself.
func ValidationTarget(output any) any {
	switch typed := output.(type) {
	case string:
		if parsed, err := ParseJSON(typed); err == nil {
			return parsed
		}
		return typed
	case map[string]any:
		if artifact, ok := typed["artifact"].(map[string]any); ok {
			if payload, ok := artifact["payload"]; ok {
				return payload
			}
		}
		if raw, ok := typed["raw"]; ok {
			return raw
		}
		if data, ok := typed["data"]; ok {
			return data
		}
		if text, ok := typed["text"].(string); ok {
			if parsed, err := ParseJSON(text); err == nil {
				return parsed
			}
			return map[string]any{"text": text}
		}
		return typed
	default:
		return output
	}
}

// ExtractText returns the human-readable text of a node output: the string
// itself, a "text" field, or an indented JSON rendering.
func ExtractText(output any) string {
	switch typed := output.(type) {
	case nil:
		return ""
	case string:
		return typed
	case map[string]any:
		if text, ok := typed["text"].(string); ok {
			return text
		}
	}
	return utils.Stringify(output)
}

// ExtractFinalAnswer reads the answer of the run's final node. It looks at
// "text", "completion.text", "finalDraft", and "result" in that order and
// falls back to ExtractText.
func ExtractFinalAnswer(output any) string {
	if record, ok := output.(map[string]any); ok {
		for _, path := range []string{"text", "completion.text", "finalDraft", "result"} {
			if value, found := GetByPath(record, path); found {
				if text, ok := value.(string); ok && strings.TrimSpace(text) != "" {
					return strings.TrimSpace(text)
				}
			}
		}
	}
	return strings.TrimSpace(ExtractText(output))
}

// GetByPath evaluates a JSON path against value. Paths may be written in
// JSONPath form ("$.a.b[0]") or as bare dotted keys ("a.b"). Only the first
// match is returned.
func GetByPath(value any, path string) (any, bool) {
	expression, err := compilePath(path)
	if err != nil {
		return nil, false
	}
	results := expression.Get(value)
	if len(results) == 0 {
		return nil, false
	}
	return results[0], true
}

func compilePath(path string) (jp.Expr, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}
	if !strings.HasPrefix(path, "$") {
		path = "$." + path
	}
	expression, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}
	return expression, nil
}

// ValidatePath reports whether path compiles; used when validating
// transform configs.
func ValidatePath(path string) error {
	_, err := compilePath(path)
	return err
}
