// Package ollama adapts a local Ollama server to [ai.Provider] through the
// langchaingo client.
package ollama

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/leofalp/railgraph/providers/ai"
	"github.com/tmc/langchaingo/llms"
	lcollama "github.com/tmc/langchaingo/llms/ollama"
)

const defaultServerURL = "http://localhost:11434"

// Config selects the server and default model.
type Config struct {
	ServerURL  string
	Model      string
	HTTPClient *http.Client
}

// Provider implements ai.Provider for Ollama.
type Provider struct {
	client *lcollama.LLM
	model  string
}

var _ ai.Provider = (*Provider)(nil)

// New connects a provider. No request is made until SendMessage.
func New(cfg Config) (*Provider, error) {
	serverURL := cfg.ServerURL
	if serverURL == "" {
		serverURL = defaultServerURL
	}

	opts := []lcollama.Option{lcollama.WithServerURL(serverURL)}
	if cfg.Model != "" {
		opts = append(opts, lcollama.WithModel(cfg.Model))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, lcollama.WithHTTPClient(cfg.HTTPClient))
	}

	client, err := lcollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	return &Provider{client: client, model: cfg.Model}, nil
}

func (p *Provider) Name() string { return "ollama" }

// SendMessage implements ai.Provider.
func (p *Provider) SendMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	resp, err := p.client.GenerateContent(ctx, toMessageContent(request), callOptions(request)...)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}

	model := request.Model
	if model == "" {
		model = p.model
	}
	return fromContentResponse(resp, model), nil
}

func toMessageContent(request ai.ChatRequest) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(request.Messages)+1)
	if request.SystemPrompt != "" {
		out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, request.SystemPrompt))
	}
	for _, msg := range request.Messages {
		role := llms.ChatMessageTypeHuman
		switch msg.Role {
		case ai.RoleSystem:
			role = llms.ChatMessageTypeSystem
		case ai.RoleAssistant:
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, msg.Content))
	}
	return out
}

func callOptions(request ai.ChatRequest) []llms.CallOption {
	var opts []llms.CallOption
	if request.Model != "" {
		opts = append(opts, llms.WithModel(request.Model))
	}
	if cfg := request.GenerationConfig; cfg != nil {
		if cfg.MaxTokens > 0 {
			opts = append(opts, llms.WithMaxTokens(cfg.MaxTokens))
		}
		if cfg.Temperature > 0 {
			opts = append(opts, llms.WithTemperature(float64(cfg.Temperature)))
		}
	}
	if request.ResponseFormat != nil && (request.ResponseFormat.OutputSchema != nil || request.ResponseFormat.Type == "json_object") {
		opts = append(opts, llms.WithJSONMode())
	}
	return opts
}

func fromContentResponse(resp *llms.ContentResponse, model string) *ai.ChatResponse {
	out := &ai.ChatResponse{Id: uuid.NewString(), Model: model}
	if resp == nil || len(resp.Choices) == 0 {
		return out
	}

	choice := resp.Choices[0]
	out.Content = choice.Content
	out.FinishReason = choice.StopReason
	if out.FinishReason == "" {
		out.FinishReason = "stop"
	}

	prompt := intInfo(choice.GenerationInfo, "PromptTokens")
	completion := intInfo(choice.GenerationInfo, "CompletionTokens")
	if prompt > 0 || completion > 0 {
		total := intInfo(choice.GenerationInfo, "TotalTokens")
		if total == 0 {
			total = prompt + completion
		}
		out.Usage = &ai.Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: total}
	}
	return out
}

func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
