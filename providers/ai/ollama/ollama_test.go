package ollama

import (
	"testing"

	"github.com/leofalp/railgraph/providers/ai"
	"github.com/tmc/langchaingo/llms"
)

func TestToMessageContentRoles(t *testing.T) {
	msgs := toMessageContent(ai.ChatRequest{
		SystemPrompt: "sys",
		Messages: []ai.Message{
			{Role: ai.RoleUser, Content: "q"},
			{Role: ai.RoleAssistant, Content: "a"},
		},
	})

	want := []llms.ChatMessageType{llms.ChatMessageTypeSystem, llms.ChatMessageTypeHuman, llms.ChatMessageTypeAI}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(msgs))
	}
	for i, role := range want {
		if msgs[i].Role != role {
			t.Errorf("message %d: expected role %s, got %s", i, role, msgs[i].Role)
		}
	}
}

func TestFromContentResponseUsage(t *testing.T) {
	resp := fromContentResponse(&llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:        "hello",
			GenerationInfo: map[string]any{"PromptTokens": 7, "CompletionTokens": 3},
		}},
	}, "llama3")

	if resp.Content != "hello" || resp.Model != "llama3" || resp.FinishReason != "stop" {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 10 {
		t.Errorf("expected derived total of 10, got %+v", resp.Usage)
	}
}

func TestFromContentResponseEmpty(t *testing.T) {
	resp := fromContentResponse(nil, "m")
	if resp.Content != "" || resp.Usage != nil || resp.Id == "" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestCallOptionsCount(t *testing.T) {
	opts := callOptions(ai.ChatRequest{
		Model:            "m",
		GenerationConfig: &ai.GenerationConfig{MaxTokens: 10, Temperature: 0.2},
		ResponseFormat:   &ai.ResponseFormat{Type: "json_object"},
	})
	if len(opts) != 4 {
		t.Errorf("expected 4 call options, got %d", len(opts))
	}
}
