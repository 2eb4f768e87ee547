// Package observability defines the interfaces and semantic conventions used
// for tracing, metrics, and structured logging throughout railgraph.
//
// The central entry point is [Provider], which composes [Tracer], [Metrics],
// and [Logger] into a single injectable dependency. A nil Provider means
// observability is disabled; every call site checks for nil and returns
// early. The active [Provider] and [Span] travel through a [context.Context]
// via [ContextWithObserver] and [ContextWithSpan].
//
// semconv.go holds the attribute keys, span names, and metric names shared
// by the scheduler, the orchestrator, and the executors.
package observability
