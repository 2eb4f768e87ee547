// Package batch decides which recurring pipelines are due and runs them.
//
// [PlanBatchRuns] is pure: given the schedules, the pipelines already
// running, and the current time, it returns the schedules to start and a
// result row for everything it skipped. [Runner] wraps it with a ticker,
// overlap bookkeeping, and a capped history.
package batch
