package openai

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/leofalp/railgraph/providers/ai"
)

const (
	defaultBaseURL          = "https://api.openai.com/v1"
	defaultModel            = "gpt-4o-mini"
	chatCompletionsEndpoint = "/chat/completions"
)

// ErrMissingAPIKey is returned when SendMessage is called against the public
// endpoint without credentials.
var ErrMissingAPIKey = errors.New("openai: API key is not set")

// ErrNoChoices is returned when the endpoint answers without any choice.
var ErrNoChoices = errors.New("openai: no choices in response")

// Provider talks to an OpenAI-compatible chat completions endpoint.
type Provider struct {
	name    string
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

var _ ai.Provider = (*Provider)(nil)

// New creates a provider configured from OPENAI_API_KEY and OPENAI_API_BASE_URL.
func New() *Provider {
	baseURL := os.Getenv("OPENAI_API_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Provider{
		name:    "openai",
		apiKey:  os.Getenv("OPENAI_API_KEY"),
		baseURL: baseURL,
		model:   defaultModel,
		client:  &http.Client{},
	}
}

// WithAPIKey sets the bearer token.
func (p *Provider) WithAPIKey(apiKey string) *Provider {
	p.apiKey = apiKey
	return p
}

// WithBaseURL sets the API root, e.g. "http://localhost:8080/v1".
func (p *Provider) WithBaseURL(baseURL string) *Provider {
	p.baseURL = strings.TrimRight(baseURL, "/")
	return p
}

// WithModel sets the model used when a request does not name one.
func (p *Provider) WithModel(model string) *Provider {
	if model != "" {
		p.model = model
	}
	return p
}

// WithName overrides the name reported in evidence and run records.
func (p *Provider) WithName(name string) *Provider {
	if name != "" {
		p.name = name
	}
	return p
}

// WithHTTPClient sets a custom HTTP client.
func (p *Provider) WithHTTPClient(client *http.Client) *Provider {
	p.client = client
	return p
}

func (p *Provider) Name() string { return p.name }

// SendMessage implements ai.Provider.
func (p *Provider) SendMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	// Self-hosted gateways commonly run without auth.
	if p.apiKey == "" && strings.HasPrefix(p.baseURL, defaultBaseURL) {
		return nil, ErrMissingAPIKey
	}

	resp, err := doPostSync[chatCompletionResponse](ctx, p.client, p.baseURL+chatCompletionsEndpoint, p.apiKey, requestFromGeneric(request, p.model))
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}
	return chatCompletionToGeneric(*resp), nil
}
