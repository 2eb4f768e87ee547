// Package quality scores accepted node outputs and drives the output schema
// retry loop.
//
// A [Report] is produced by an [Evaluator] against a [Profile] rubric. A
// score below the node's threshold is reported as low quality, which the
// orchestrator keeps distinct from failure. [ExecuteWithSchemaRetry] wraps a
// single turn so that schema violations are fed back to the executor a
// bounded number of times before the node fails.
package quality
