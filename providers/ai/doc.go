// Package ai defines the shared, provider-agnostic chat types used by the
// LLM-backed executors. Each provider implementation maps [ChatRequest] and
// [ChatResponse] to its own wire format, keeping the orchestration engine
// decoupled from provider-specific details.
//
// [Usage] is the unit of token accounting across the engine: it is merged
// additively across schema retries and across all nodes of a run.
package ai
