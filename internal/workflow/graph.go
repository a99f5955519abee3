package workflow

import (
	"encoding/json"
	"fmt"
	"os"
)

// Node is a single node of an API-format workflow graph.
type Node struct {
	ClassType string         `json:"class_type,omitempty"`
	Inputs    map[string]any `json:"inputs,omitempty"`
}

// Graph is a ComfyUI workflow in API export format: a mapping from node id
// to node definition. The UI export format (which carries a top-level
// "nodes" array) is rejected at parse time.
type Graph map[string]*Node

// ParseGraph decodes and validates an API-format workflow document.
func ParseGraph(data []byte) (Graph, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGraphFormat, err)
	}

	// A top-level "nodes" key is the sentinel of a UI-format export, which
	// the backend's /prompt endpoint does not accept.
	if _, ok := raw["nodes"]; ok {
		return nil, fmt.Errorf("%w: document has a top-level %q key; re-export the workflow in API format", ErrGraphFormat, "nodes")
	}

	g := make(Graph, len(raw))
	for id, msg := range raw {
		node := &Node{}
		if err := json.Unmarshal(msg, node); err != nil {
			return nil, fmt.Errorf("%w: node %q is not an object: %v", ErrGraphFormat, id, err)
		}
		g[id] = node
	}
	return g, nil
}

// LoadGraph reads and parses the workflow document at path.
func LoadGraph(path string) (Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow %q: %w", path, err)
	}
	g, err := ParseGraph(data)
	if err != nil {
		return nil, fmt.Errorf("workflow %q: %w", path, err)
	}
	return g, nil
}
