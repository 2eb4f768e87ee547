package observability

// Attribute keys, span names, and metric names shared across railgraph.

// --- Run and node attributes ---

const (
	AttrRunID       = "run.id"
	AttrRunStatus   = "run.status"
	AttrRunQuestion = "run.question"

	AttrNodeID       = "node.id"
	AttrNodeType     = "node.type"
	AttrNodeStatus   = "node.status"
	AttrNodeExecutor = "node.executor"
	AttrNodeAttempt  = "node.attempt"

	AttrSchedulerQueued = "scheduler.queued"
	AttrSchedulerActive = "scheduler.active"
	AttrSchedulerMax    = "scheduler.max_concurrency"

	AttrQualityProfile   = "quality.profile"
	AttrQualityScore     = "quality.score"
	AttrQualityThreshold = "quality.threshold"
	AttrQualityDecision  = "quality.decision"

	AttrBatchScheduleID = "batch.schedule.id"
	AttrBatchPipelineID = "batch.pipeline.id"
	AttrBatchTrigger    = "batch.trigger"
)

// --- LLM attributes ---

const (
	AttrLLMProvider = "llm.provider"
	AttrLLMModel    = "llm.model"

	AttrLLMTokensPrompt     = "llm.tokens.prompt"     // #nosec G101 -- LLM tokens, not credentials
	AttrLLMTokensCompletion = "llm.tokens.completion" // #nosec G101 -- LLM tokens, not credentials
	AttrLLMTokensTotal      = "llm.tokens.total"      // #nosec G101 -- LLM tokens, not credentials
)

// --- HTTP attributes ---

const (
	AttrHTTPMethod           = "http.method"
	AttrHTTPStatusCode       = "http.status_code"
	AttrHTTPURL              = "http.url"
	AttrHTTPRequestBodySize  = "http.request.body.size"
	AttrHTTPResponseBodySize = "http.response.body.size"
)

// --- Common ---

const (
	AttrDuration          = "duration"
	AttrStatus            = "status"
	AttrStatusDescription = "status_description"
)

// --- Span names ---

const (
	SpanRunExecute     = "run.execute"
	SpanNodeExecute    = "run.node.execute"
	SpanExecutorInvoke = "executor.invoke"
)

// --- Metric names ---

const (
	MetricNodeDuration   = "railgraph.node.duration"
	MetricNodeCount      = "railgraph.node.count"
	MetricRunDuration    = "railgraph.run.duration"
	MetricExecutorTokens = "railgraph.executor.tokens"
	MetricBatchRuns      = "railgraph.batch.runs"
)
