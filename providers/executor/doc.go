// Package executor holds the capability turn nodes call out to.
//
// Every [graph.ExecutorKind] maps to one [Executor] in a [Registry]. API
// backed kinds use [LLMExecutor], which wraps an [ai.Provider] with request
// rate limiting and retries on transient failures. Web kinds use
// [WebExecutor], which asks an optional browser [Bridge] first and falls
// back to the run's human queue.
//
// Cancellation surfaces as [ErrCancelled] so the orchestrator can tell a
// paused or cancelled call from a real failure.
package executor
