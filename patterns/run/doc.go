// Package run is the run orchestrator: it takes a validated graph and a
// question, drives the graph through the DAG scheduler, and owns everything
// a run mutates (node states, evidence, the human queue) until the run
// record is saved.
//
// A run moves through idle → starting → running ⇄ paused and ends
// completed, failed, or cancelled. [Engine.Start] validates synchronously
// and returns the run id; execution continues in the background. Callers
// observe progress with [Engine.Status], [Engine.Subscribe], or
// [Engine.Wait].
//
// Node level failures never escape a node: they are recorded on the node,
// its descendants finish as skipped, and the run resolves its final node
// once the scheduler is quiescent.
package run
