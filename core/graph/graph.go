package graph

// NodeType identifies what a node does when dispatched.
type NodeType string

const (
	// NodeTurn invokes an executor: an LLM backend, a local model, or a
	// human operating a web chat.
	NodeTurn NodeType = "turn"

	// NodeTransform reshapes its input without any external call.
	NodeTransform NodeType = "transform"

	// NodeGate inspects its input and decides which children run.
	NodeGate NodeType = "gate"
)

// Label returns the human-readable role label used for non-turn nodes in
// evidence envelopes and run memory.
func (nodeType NodeType) Label() string {
	switch nodeType {
	case NodeTurn:
		return "Agent"
	case NodeTransform:
		return "Transform"
	case NodeGate:
		return "Gate"
	default:
		return string(nodeType)
	}
}

// Node is one step of the graph. Config is the loose, type-specific
// configuration as authored; use [DecodeTurnConfig], [DecodeTransformConfig],
// or [DecodeGateConfig] to obtain the typed view.
type Node struct {
	ID     string         `json:"id" yaml:"id"`
	Type   NodeType       `json:"type" yaml:"type"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Port is one endpoint of an edge. Port names are carried for the authoring
// layer; the engine only looks at NodeID.
type Port struct {
	NodeID string `json:"nodeId" yaml:"nodeId"`
	Port   string `json:"port,omitempty" yaml:"port,omitempty"`
}

// Edge connects the output of From to the input of To.
type Edge struct {
	From Port `json:"from" yaml:"from"`
	To   Port `json:"to" yaml:"to"`
}

// Graph is the unit a run executes.
type Graph struct {
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Edges []Edge `json:"edges" yaml:"edges"`
}

// Connect is a small authoring helper that returns an edge between two node
// ids using the default ports.
func Connect(fromNodeID, toNodeID string) Edge {
	return Edge{
		From: Port{NodeID: fromNodeID, Port: "out"},
		To:   Port{NodeID: toNodeID, Port: "in"},
	}
}

// Clone returns a deep-enough copy of the graph for storing as a run
// snapshot: node and edge slices and the top level of every config map are
// copied.
func (g Graph) Clone() Graph {
	nodes := make([]Node, len(g.Nodes))
	for index, node := range g.Nodes {
		cloned := node
		if node.Config != nil {
			cloned.Config = make(map[string]any, len(node.Config))
			for key, value := range node.Config {
				cloned.Config[key] = value
			}
		}
		nodes[index] = cloned
	}
	edges := make([]Edge, len(g.Edges))
	copy(edges, g.Edges)
	return Graph{Nodes: nodes, Edges: edges}
}
