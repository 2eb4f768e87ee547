package ai

import (
	"context"
)

// Provider is the interface every LLM backend implementation satisfies.
// Implementations must honour context cancellation and return ctx.Err()
// (possibly wrapped) when the request is abandoned.
type Provider interface {
	// Name identifies the backend in logs, evidence envelopes, and run records.
	Name() string

	// SendMessage sends a chat request to the provider and returns the
	// completed response. Returns an error if the provider call fails,
	// the context is cancelled, or the response cannot be decoded.
	SendMessage(ctx context.Context, request ChatRequest) (*ChatResponse, error)
}
