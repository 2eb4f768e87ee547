package graph

import "strings"

// ExecutorKind is the closed set of backends a turn node can use.
type ExecutorKind string

const (
	ExecutorCodex         ExecutorKind = "codex"
	ExecutorOllama        ExecutorKind = "ollama"
	ExecutorWebGemini     ExecutorKind = "web_gemini"
	ExecutorWebGPT        ExecutorKind = "web_gpt"
	ExecutorWebGrok       ExecutorKind = "web_grok"
	ExecutorWebPerplexity ExecutorKind = "web_perplexity"
	ExecutorWebClaude     ExecutorKind = "web_claude"
)

// ExecutorKinds lists every known kind in a stable order.
var ExecutorKinds = []ExecutorKind{
	ExecutorCodex,
	ExecutorOllama,
	ExecutorWebGemini,
	ExecutorWebGPT,
	ExecutorWebGrok,
	ExecutorWebPerplexity,
	ExecutorWebClaude,
}

// Valid reports whether kind is one of ExecutorKinds.
func (kind ExecutorKind) Valid() bool {
	for _, known := range ExecutorKinds {
		if kind == known {
			return true
		}
	}
	return false
}

// IsWeb reports whether the kind is answered through a web chat, either by
// browser automation or by a human pasting the response.
func (kind ExecutorKind) IsWeb() bool {
	return strings.HasPrefix(string(kind), "web_")
}

// WebProvider returns the provider name of a web kind ("gemini", "gpt", ...)
// or "" for API-backed kinds.
func (kind ExecutorKind) WebProvider() string {
	provider, ok := strings.CutPrefix(string(kind), "web_")
	if !ok {
		return ""
	}
	return provider
}

// ProviderName is the provider id recorded in evidence and run records.
func (kind ExecutorKind) ProviderName() string {
	if provider := kind.WebProvider(); provider != "" {
		return provider
	}
	return string(kind)
}

// WebResultMode selects how a web turn obtains its answer.
type WebResultMode string

const (
	WebResultBridgeAssisted WebResultMode = "bridgeAssisted"
	WebResultAuto           WebResultMode = "auto"
	WebResultManualJSON     WebResultMode = "manualPasteJson"
	WebResultManualText     WebResultMode = "manualPasteText"
)

// IsManual reports whether the mode always routes to a human.
func (mode WebResultMode) IsManual() bool {
	return mode == WebResultManualJSON || mode == WebResultManualText
}
