package graph

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Parse decodes a graph document. YAML is accepted, and since JSON is a
// subset of YAML so are JSON documents.
func Parse(data []byte) (Graph, error) {
	var g Graph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return Graph{}, fmt.Errorf("parse graph: %w", err)
	}
	return g, nil
}

// Load reads and parses the graph document at path.
func Load(path string) (Graph, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator supplied
	if err != nil {
		return Graph{}, fmt.Errorf("read graph %s: %w", path, err)
	}
	return Parse(data)
}
