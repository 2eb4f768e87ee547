package humanloop

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/leofalp/railgraph/core/graph"
	"github.com/leofalp/railgraph/core/parse"
)

// ErrEmptyWebOutput is returned for blank pasted answers.
var ErrEmptyWebOutput = errors.New("web response is empty")

var htmlMarkup = regexp.MustCompile(`(?i)<(p|div|br|ul|ol|li|h[1-6]|table|pre|code|span|a|strong|em|blockquote)[\s>/]`)

// NormalizeWebOutput turns a raw answer collected from a web provider into
// a node output.
//
// In manualPasteJson mode the text must contain JSON, possibly malformed in
// the ways chat UIs produce; it is repaired and returned under "data". In
// every other mode HTML markup is converted to Markdown and the result is
// returned under "text".
func NormalizeWebOutput(provider string, mode graph.WebResultMode, raw string) (map[string]any, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, ErrEmptyWebOutput
	}

	output := map[string]any{
		"provider": provider,
		"mode":     string(mode),
		"meta":     map[string]any{"confidence": confidenceFor(mode)},
	}

	if mode == graph.WebResultManualJSON {
		data, err := parse.ParseJSON(text)
		if err != nil {
			return nil, fmt.Errorf("web response is not valid JSON: %w", err)
		}
		output["data"] = data
		output["text"] = text
		return output, nil
	}

	if htmlMarkup.MatchString(text) {
		markdown, err := htmltomarkdown.ConvertString(text)
		if err == nil && strings.TrimSpace(markdown) != "" {
			text = strings.TrimSpace(markdown)
		}
	}
	output["text"] = text
	return output, nil
}

func confidenceFor(mode graph.WebResultMode) string {
	if mode.IsManual() {
		return "manual"
	}
	return "bridge"
}
