package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrNoJSON is returned by ParseJSON when the text holds nothing that can
// be read as a JSON object or array.
var ErrNoJSON = errors.New("no JSON value found")

// ParseJSON decodes text into a generic JSON value (map[string]any or
// []any). It tries, in order: strict decoding of the whole text, jsonrepair
// on the whole text when it looks like JSON (comments, single quotes,
// trailing commas, code fences, truncation), and then each balanced {...}
// or [...] candidate found inside surrounding prose, strict first, then
// repaired. Schema-style {"type":..., "value":...} wrappers are unwrapped in
// every successful result.
func ParseJSON(text string) (any, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrNoJSON
	}

	var value any
	if err := json.Unmarshal([]byte(trimmed), &value); err == nil {
		if isStructured(value) {
			return recursiveUnwrap(value), nil
		}
	}

	if looksLikeJSON(trimmed) {
		if repaired, err := jsonrepair.JSONRepair(trimmed); err == nil {
			if err := json.Unmarshal([]byte(repaired), &value); err == nil && isStructured(value) {
				return recursiveUnwrap(value), nil
			}
		}
	}

	for _, candidate := range extractJSONCandidates(trimmed) {
		if err := json.Unmarshal([]byte(candidate), &value); err == nil && isStructured(value) {
			return recursiveUnwrap(value), nil
		}
		if repaired, err := jsonrepair.JSONRepair(candidate); err == nil {
			if err := json.Unmarshal([]byte(repaired), &value); err == nil && isStructured(value) {
				return recursiveUnwrap(value), nil
			}
		}
	}
	return nil, fmt.Errorf("%w in %q", ErrNoJSON, clip(trimmed, 120))
}

// ParseAs decodes text into T using ParseJSON's recovery strategy.
func ParseAs[T any](text string) (T, error) {
	var result T
	value, err := ParseJSON(text)
	if err != nil {
		return result, err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return result, fmt.Errorf("re-encode parsed value: %w", err)
	}
	if err := json.Unmarshal(encoded, &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal parsed JSON as %T: %w", result, err)
	}
	return result, nil
}

func isStructured(value any) bool {
	switch value.(type) {
	case map[string]any, []any:
		return true
	default:
		return false
	}
}

func looksLikeJSON(text string) bool {
	return strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") || strings.HasPrefix(text, "```")
}

// extractJSONCandidates returns every balanced {...} or [...] substring of
// text in order of their opening bracket, skipping brackets inside strings.
// Unterminated candidates are dropped.
func extractJSONCandidates(text string) []string {
	candidates := make([]string, 0)
	for start := 0; start < len(text); start++ {
		if text[start] != '{' && text[start] != '[' {
			continue
		}
		if end := matchingBracket(text, start); end > start {
			candidates = append(candidates, text[start:end+1])
		}
	}
	return candidates
}

func matchingBracket(text string, start int) int {
	stack := make([]byte, 0, 8)
	inString := false
	escaped := false
	for position := start; position < len(text); position++ {
		char := text[position]
		if inString {
			switch {
			case escaped:
				escaped = false
			case char == '\\':
				escaped = true
			case char == '"':
				inString = false
			}
			continue
		}
		switch char {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != char {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return position
			}
		}
	}
	return -1
}

// recursiveUnwrap replaces {"type": ..., "value": ...} wrappers, which models
// produce when they confuse a schema with data, by their value.
func recursiveUnwrap(data any) any {
	switch typed := data.(type) {
	case map[string]any:
		if _, hasType := typed["type"]; hasType {
			if value, hasValue := typed["value"]; hasValue && len(typed) == 2 {
				return recursiveUnwrap(value)
			}
		}
		result := make(map[string]any, len(typed))
		for key, value := range typed {
			result[key] = recursiveUnwrap(value)
		}
		return result
	case []any:
		result := make([]any, len(typed))
		for index, value := range typed {
			result[index] = recursiveUnwrap(value)
		}
		return result
	default:
		return data
	}
}

func clip(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars]) + "..."
}
