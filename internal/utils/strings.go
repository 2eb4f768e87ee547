package utils

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxStringLength is the default maximum length for clipped strings.
	DefaultMaxStringLength = 500
)

// JSONToString serialises object to its JSON representation. When indent is
// true the output is pretty-printed with two-space indentation. On marshalling
// failure it returns a JSON-formatted error string so the result is always
// safe to embed in logs and prompts.
func JSONToString(object any, indent ...bool) string {
	var encoded []byte
	var err error
	if len(indent) > 0 && indent[0] {
		encoded, err = json.MarshalIndent(object, "", "  ")
	} else {
		encoded, err = json.Marshal(object)
	}
	if err != nil {
		return "{\"error\": \"failed to marshal to JSON: " + err.Error() + "\"}"
	}
	return string(encoded)
}

// Stringify renders a node payload as text. Strings are returned as-is, nil
// becomes the empty string, and everything else is rendered as indented JSON.
func Stringify(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case []byte:
		return string(typed)
	case fmt.Stringer:
		return typed.String()
	default:
		return JSONToString(value, true)
	}
}

// ClipText shortens s to at most maxChars runes and appends a marker when
// anything was cut. It never splits a multi-byte character.
// If maxChars is zero or negative, [DefaultMaxStringLength] is used instead.
func ClipText(s string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxStringLength
	}
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxChars]) + "\n...(clipped)"
}

// TruncateString shortens s to at most maxLen runes, appending a suffix that
// records the original length so readers know data was omitted.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxStringLength
	}
	total := utf8.RuneCountInString(s)
	if total <= maxLen {
		return s
	}
	return fmt.Sprintf("%s... (truncated, total: %d chars)", string([]rune(s)[:maxLen]), total)
}

// CollapseWhitespace trims s and replaces every run of whitespace with a
// single space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
