// Package dag drives a validated graph to quiescence.
//
// The [Scheduler] keeps the indegree map and a ready queue seeded with the
// root nodes. A single loop goroutine dispatches ready nodes and handles
// their completions:
//
//   - heavy nodes (turns backed by an LLM or local model) must win a slot
//     on a weighted semaphore sized by the multi-agent [Mode]; when no slot
//     is free the node stays queued and the loop tries the next one instead
//     of blocking
//   - light nodes (transforms, gates, and human-operated web turns) are
//     dispatched without a slot and may run alongside heavy work
//   - on completion every child's indegree is decremented and children that
//     reach zero join the queue, so a node never starts before all of its
//     parents finished
//
// Pause stops dispatching and cancels the context of in-flight tasks; a task
// may ask to be re-queued. Cancel stops dispatching for good. A panicking
// task is recovered and reported as a failed node.
package dag
