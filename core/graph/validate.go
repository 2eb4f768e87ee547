package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ValidationError reports why a graph cannot be run. Problems holds every
// individual finding; Error joins them.
type ValidationError struct {
	Problems []error
}

func (validationError *ValidationError) Error() string {
	return fmt.Sprintf("graph validation failed: %v", errors.Join(validationError.Problems...))
}

// Unwrap exposes the individual problems to errors.Is and errors.As.
func (validationError *ValidationError) Unwrap() []error {
	return validationError.Problems
}

// ErrCycle is matched by errors.Is when validation found a cycle.
var ErrCycle = errors.New("cycle detected")

// Option adjusts validation.
type Option func(*validateOptions)

type validateOptions struct {
	requireSingleRoot bool
}

// RequireSingleRoot fails validation unless exactly one node has no incoming
// edges, which is the node that receives the question.
func RequireSingleRoot() Option {
	return func(options *validateOptions) {
		options.requireSingleRoot = true
	}
}

// Index is the validated, precomputed view of a graph that the scheduler and
// orchestrator work from. It is immutable after Validate returns.
type Index struct {
	nodes     map[string]Node
	order     []string
	position  map[string]int
	indegree  map[string]int
	adjacency map[string][]string
	incoming  map[string][]string
	topo      []string
}

// Validate checks g and builds its Index. Every problem found is reported in
// the returned *ValidationError; the index is nil whenever err is non-nil.
func Validate(g Graph, opts ...Option) (*Index, error) {
	options := validateOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	problems := make([]error, 0)
	index := &Index{
		nodes:     make(map[string]Node, len(g.Nodes)),
		order:     make([]string, 0, len(g.Nodes)),
		position:  make(map[string]int, len(g.Nodes)),
		indegree:  make(map[string]int, len(g.Nodes)),
		adjacency: make(map[string][]string, len(g.Nodes)),
		incoming:  make(map[string][]string, len(g.Nodes)),
	}

	if len(g.Nodes) == 0 {
		problems = append(problems, errors.New("graph must contain at least one node"))
	}

	for _, node := range g.Nodes {
		nodeID := strings.TrimSpace(node.ID)
		if nodeID == "" {
			problems = append(problems, errors.New("node with empty id"))
			continue
		}
		if _, exists := index.nodes[nodeID]; exists {
			problems = append(problems, fmt.Errorf("duplicate node id %q", nodeID))
			continue
		}
		node.ID = nodeID
		index.position[nodeID] = len(index.order)
		index.order = append(index.order, nodeID)
		index.nodes[nodeID] = node
		index.indegree[nodeID] = 0
		index.adjacency[nodeID] = make([]string, 0)
		index.incoming[nodeID] = make([]string, 0)
	}

	edgeSet := make(map[string]bool, len(g.Edges))
	for _, edge := range g.Edges {
		from, to := edge.From.NodeID, edge.To.NodeID
		_, fromExists := index.nodes[from]
		_, toExists := index.nodes[to]
		if !fromExists {
			problems = append(problems, fmt.Errorf("edge references non-existent source node %q", from))
		}
		if !toExists {
			problems = append(problems, fmt.Errorf("edge references non-existent target node %q", to))
		}
		if !fromExists || !toExists {
			continue
		}
		if from == to {
			problems = append(problems, fmt.Errorf("self loop on node %q", from))
			continue
		}
		if edgeSet[from+"->"+to] {
			problems = append(problems, fmt.Errorf("duplicate edge from %q to %q", from, to))
			continue
		}
		if edgeSet[to+"->"+from] {
			problems = append(problems, fmt.Errorf("reverse duplicate edge from %q to %q", from, to))
			continue
		}
		edgeSet[from+"->"+to] = true
		index.adjacency[from] = append(index.adjacency[from], to)
		index.incoming[to] = append(index.incoming[to], from)
		index.indegree[to]++
	}

	if len(problems) == 0 {
		topo, err := kahnTopologicalOrder(index)
		if err != nil {
			problems = append(problems, err)
		}
		index.topo = topo
	}

	for _, nodeID := range index.order {
		if err := validateNodeConfig(index, index.nodes[nodeID]); err != nil {
			problems = append(problems, err)
		}
	}

	if options.requireSingleRoot && len(index.order) > 0 {
		if roots := index.Roots(); len(roots) != 1 {
			problems = append(problems, fmt.Errorf("graph must have exactly one root node, found %d %v", len(roots), roots))
		}
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return index, nil
}

func validateNodeConfig(index *Index, node Node) error {
	switch node.Type {
	case NodeTurn:
		_, err := DecodeTurnConfig(node)
		return err
	case NodeTransform:
		_, err := DecodeTransformConfig(node)
		return err
	case NodeGate:
		config, err := DecodeGateConfig(node)
		if err != nil {
			return err
		}
		for _, target := range []string{config.PassNodeID, config.RejectNodeID} {
			if target != "" && !index.hasChild(node.ID, target) {
				return fmt.Errorf("node %q: gate target %q is not a child", node.ID, target)
			}
		}
		return nil
	default:
		return fmt.Errorf("node %q: unknown node type %q", node.ID, node.Type)
	}
}

// kahnTopologicalOrder runs Kahn's algorithm on a scratch copy of the
// indegree map. Ties are broken by authoring order so the result is
// deterministic.
func kahnTopologicalOrder(index *Index) ([]string, error) {
	remaining := make(map[string]int, len(index.indegree))
	for nodeID, degree := range index.indegree {
		remaining[nodeID] = degree
	}

	frontier := make([]string, 0)
	for _, nodeID := range index.order {
		if remaining[nodeID] == 0 {
			frontier = append(frontier, nodeID)
		}
	}

	order := make([]string, 0, len(index.order))
	for len(frontier) > 0 {
		nodeID := frontier[0]
		frontier = frontier[1:]
		order = append(order, nodeID)

		released := make([]string, 0)
		for _, child := range index.adjacency[nodeID] {
			remaining[child]--
			if remaining[child] == 0 {
				released = append(released, child)
			}
		}
		sort.Slice(released, func(left, right int) bool {
			return index.position[released[left]] < index.position[released[right]]
		})
		frontier = append(frontier, released...)
	}

	if len(order) != len(index.order) {
		cycleNodes := make([]string, 0)
		for nodeID, degree := range remaining {
			if degree > 0 {
				cycleNodes = append(cycleNodes, nodeID)
			}
		}
		sort.Strings(cycleNodes)
		return nil, fmt.Errorf("%w involving nodes: %v", ErrCycle, cycleNodes)
	}
	return order, nil
}

// Node returns the node with the given id.
func (index *Index) Node(nodeID string) (Node, bool) {
	node, ok := index.nodes[nodeID]
	return node, ok
}

// NodeIDs returns all node ids in authoring order.
func (index *Index) NodeIDs() []string {
	return append([]string(nil), index.order...)
}

// Len is the number of nodes.
func (index *Index) Len() int {
	return len(index.order)
}

// Indegree returns a fresh copy of the indegree map; callers may mutate it.
func (index *Index) Indegree() map[string]int {
	copied := make(map[string]int, len(index.indegree))
	for nodeID, degree := range index.indegree {
		copied[nodeID] = degree
	}
	return copied
}

// Children returns the direct successors of nodeID in edge order.
func (index *Index) Children(nodeID string) []string {
	return index.adjacency[nodeID]
}

// Parents returns the direct predecessors of nodeID in edge order.
func (index *Index) Parents(nodeID string) []string {
	return index.incoming[nodeID]
}

// Roots returns nodes without incoming edges in authoring order.
func (index *Index) Roots() []string {
	roots := make([]string, 0)
	for _, nodeID := range index.order {
		if len(index.incoming[nodeID]) == 0 {
			roots = append(roots, nodeID)
		}
	}
	return roots
}

// Sinks returns nodes without outgoing edges in authoring order.
func (index *Index) Sinks() []string {
	sinks := make([]string, 0)
	for _, nodeID := range index.order {
		if len(index.adjacency[nodeID]) == 0 {
			sinks = append(sinks, nodeID)
		}
	}
	return sinks
}

// IsSink reports whether nodeID has no outgoing edges.
func (index *Index) IsSink(nodeID string) bool {
	_, ok := index.nodes[nodeID]
	return ok && len(index.adjacency[nodeID]) == 0
}

// TopologicalOrder returns one valid topological order of the graph.
func (index *Index) TopologicalOrder() []string {
	return append([]string(nil), index.topo...)
}

func (index *Index) hasChild(nodeID, child string) bool {
	for _, candidate := range index.adjacency[nodeID] {
		if candidate == child {
			return true
		}
	}
	return false
}
