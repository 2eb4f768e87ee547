// Package graph holds the authoring-side model of a run: nodes, edges, and
// the typed per-node configurations, together with the validation that a
// graph must pass before any run may start.
//
// [Validate] accumulates every structural problem (missing endpoints,
// duplicate or reverse-duplicate edges, self loops, cycles, malformed node
// configs) into a single [ValidationError] and, on success, returns an
// [Index] carrying the indegree, adjacency, and incoming maps the scheduler
// consumes. [Load] and [Parse] read graphs from YAML or JSON documents.
package graph
