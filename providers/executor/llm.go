package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/leofalp/railgraph/core/parse"
	"github.com/leofalp/railgraph/internal/jsonschema"
	"github.com/leofalp/railgraph/providers/ai"
	"github.com/leofalp/railgraph/providers/observability"
)

// LLMExecutor runs turns against an ai.Provider.
type LLMExecutor struct {
	provider     ai.Provider
	limiter      *rate.Limiter
	retry        RetryConfig
	systemPrompt string
	observer     observability.Provider
}

// LLMOption configures an LLMExecutor.
type LLMOption func(*LLMExecutor)

// WithRequestsPerMinute limits outgoing calls. Zero or less means unlimited.
func WithRequestsPerMinute(perMinute int) LLMOption {
	return func(executor *LLMExecutor) {
		if perMinute <= 0 {
			executor.limiter = nil
			return
		}
		executor.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
}

// WithRetry overrides the retry policy.
func WithRetry(config RetryConfig) LLMOption {
	return func(executor *LLMExecutor) {
		executor.retry = config.withDefaults()
	}
}

// WithSystemPrompt sets the system prompt sent with every turn.
func WithSystemPrompt(prompt string) LLMOption {
	return func(executor *LLMExecutor) {
		executor.systemPrompt = prompt
	}
}

// WithObserver records token usage and call spans.
func WithObserver(provider observability.Provider) LLMOption {
	return func(executor *LLMExecutor) {
		executor.observer = provider
	}
}

// NewLLMExecutor wraps provider.
func NewLLMExecutor(provider ai.Provider, opts ...LLMOption) *LLMExecutor {
	executor := &LLMExecutor{provider: provider, retry: RetryConfig{}.withDefaults()}
	for _, opt := range opts {
		opt(executor)
	}
	return executor
}

// Execute sends the rendered prompt and returns the answer as
// {"text": ...}, plus "data" when the answer holds JSON.
func (executor *LLMExecutor) Execute(ctx context.Context, request Request) (Result, error) {
	chat := ai.ChatRequest{
		Model:        request.Config.Model,
		SystemPrompt: executor.systemPrompt,
		Messages:     []ai.Message{{Role: ai.RoleUser, Content: request.Prompt}},
	}
	if request.Config.OutputSchema != nil {
		if schema, err := jsonschema.Parse(request.Config.OutputSchema); err == nil {
			chat.ResponseFormat = &ai.ResponseFormat{OutputSchema: schema}
		}
	}

	ctx, span := executor.startSpan(ctx, request)
	response, err := withRetry(ctx, executor.retry, func(ctx context.Context) (*ai.ChatResponse, error) {
		if executor.limiter != nil {
			if err := executor.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		return executor.provider.SendMessage(ctx, chat)
	})
	executor.endSpan(ctx, span, response, err)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		return Result{}, err
	}

	output := map[string]any{"text": response.Content}
	if data, parseErr := parse.ParseJSON(response.Content); parseErr == nil {
		output["data"] = data
	}
	return Result{Output: output, Usage: response.Usage, Provider: executor.provider.Name()}, nil
}

func (executor *LLMExecutor) startSpan(ctx context.Context, request Request) (context.Context, observability.Span) {
	if executor.observer == nil {
		return ctx, nil
	}
	return executor.observer.StartSpan(ctx, observability.SpanExecutorInvoke,
		observability.String(observability.AttrRunID, request.RunID),
		observability.String(observability.AttrNodeID, request.NodeID),
		observability.String(observability.AttrLLMProvider, executor.provider.Name()),
		observability.String(observability.AttrLLMModel, request.Config.Model),
	)
}

func (executor *LLMExecutor) endSpan(ctx context.Context, span observability.Span, response *ai.ChatResponse, err error) {
	if span == nil {
		return
	}
	defer span.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(observability.StatusError, err.Error())
		return
	}
	span.SetStatus(observability.StatusOK, "")
	if response.Usage == nil {
		return
	}
	span.SetAttributes(
		observability.Int(observability.AttrLLMTokensPrompt, response.Usage.PromptTokens),
		observability.Int(observability.AttrLLMTokensCompletion, response.Usage.CompletionTokens),
		observability.Int(observability.AttrLLMTokensTotal, response.Usage.TotalTokens),
	)
	executor.observer.Counter(observability.MetricExecutorTokens).Add(ctx, int64(response.Usage.TotalTokens),
		observability.String(observability.AttrLLMProvider, executor.provider.Name()),
	)
}
