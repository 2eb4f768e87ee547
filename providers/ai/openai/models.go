package openai

import (
	"github.com/leofalp/railgraph/internal/jsonschema"
	"github.com/leofalp/railgraph/providers/ai"
)

/*
	CHAT COMPLETIONS API - INPUT
*/

type chatCompletionRequest struct {
	Model          string              `json:"model"`
	Messages       []chatMessage       `json:"messages"`
	MaxTokens      int                 `json:"max_tokens,omitempty"`
	Temperature    float32             `json:"temperature,omitempty"`
	ResponseFormat *chatResponseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

type chatResponseFormat struct {
	Type       string          `json:"type"` // "text", "json_object", "json_schema"
	JSONSchema *chatJSONSchema `json:"json_schema,omitempty"`
}

type chatJSONSchema struct {
	Name   string             `json:"name"`
	Schema *jsonschema.Schema `json:"schema"`
}

/*
	CHAT COMPLETIONS API - OUTPUT
*/

type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
}

type chatChoice struct {
	Index        int                 `json:"index"`
	Message      chatResponseMessage `json:"message"`
	FinishReason string              `json:"finish_reason"`
}

type chatResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
	Refusal string `json:"refusal,omitempty"`
}

type chatUsage struct {
	PromptTokens            int `json:"prompt_tokens"`
	CompletionTokens        int `json:"completion_tokens"`
	TotalTokens             int `json:"total_tokens"`
	CompletionTokensDetails *struct {
		ReasoningTokens int `json:"reasoning_tokens,omitempty"`
	} `json:"completion_tokens_details,omitempty"`
	PromptTokensDetails *struct {
		CachedTokens int `json:"cached_tokens,omitempty"`
	} `json:"prompt_tokens_details,omitempty"`
}

// requestFromGeneric maps an ai.ChatRequest onto the wire request. The
// system prompt becomes the leading system message.
func requestFromGeneric(request ai.ChatRequest, defaultModel string) chatCompletionRequest {
	model := request.Model
	if model == "" {
		model = defaultModel
	}

	req := chatCompletionRequest{Model: model}
	if request.SystemPrompt != "" {
		req.Messages = append(req.Messages, chatMessage{Role: string(ai.RoleSystem), Content: request.SystemPrompt})
	}
	for _, msg := range request.Messages {
		req.Messages = append(req.Messages, chatMessage{Role: string(msg.Role), Content: msg.Content})
	}

	if request.GenerationConfig != nil {
		req.MaxTokens = request.GenerationConfig.MaxTokens
		req.Temperature = request.GenerationConfig.Temperature
	}

	if request.ResponseFormat != nil {
		switch {
		case request.ResponseFormat.OutputSchema != nil:
			req.ResponseFormat = &chatResponseFormat{
				Type:       "json_schema",
				JSONSchema: &chatJSONSchema{Name: "node_output", Schema: request.ResponseFormat.OutputSchema},
			}
		case request.ResponseFormat.Type != "":
			req.ResponseFormat = &chatResponseFormat{Type: request.ResponseFormat.Type}
		}
	}

	return req
}

// chatCompletionToGeneric converts the first choice of resp. A refusal is
// surfaced as content so callers see why the model declined.
func chatCompletionToGeneric(resp chatCompletionResponse) *ai.ChatResponse {
	out := &ai.ChatResponse{Id: resp.ID, Model: resp.Model}

	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		out.FinishReason = choice.FinishReason
		out.Content = choice.Message.Content
		if out.Content == "" && choice.Message.Refusal != "" {
			out.Content = choice.Message.Refusal
		}
	}

	if resp.Usage != nil {
		out.Usage = &ai.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
		if resp.Usage.CompletionTokensDetails != nil {
			out.Usage.ReasoningTokens = resp.Usage.CompletionTokensDetails.ReasoningTokens
		}
		if resp.Usage.PromptTokensDetails != nil {
			out.Usage.CachedTokens = resp.Usage.PromptTokensDetails.CachedTokens
		}
	}

	return out
}
