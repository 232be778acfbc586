package flowgraph

import (
	"encoding/json"
	"fmt"
	"strings"
)

// payloadVersion is the current wire version of the flow_data column.
const payloadVersion = 1

// ErrUnsupportedVersion indicates a payload declared a version newer than
// this build understands. Such payloads are rejected rather than silently
// emptied, so a downgrade cannot destroy data authored by a newer client.
var ErrUnsupportedVersion = fmt.Errorf("flowgraph: unsupported payload version")

type payload struct {
	Version int    `json:"version"`
	Nodes   []Node `json:"nodes"`
	Edges   []Edge `json:"edges"`
}

// Encode flattens the graph into the opaque JSON stored on a flow row.
// Every save transmits the full graph; there is no delta form.
func Encode(g Graph) (string, error) {
	wrapped := payload{
		Version: payloadVersion,
		Nodes:   g.Nodes,
		Edges:   g.Edges,
	}
	if wrapped.Nodes == nil {
		wrapped.Nodes = []Node{}
	}
	if wrapped.Edges == nil {
		wrapped.Edges = []Edge{}
	}
	encoded, err := json.Marshal(wrapped)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// Decode parses a stored flow_data payload.
//
// Parsing is permissive: absent, malformed, or stale-versioned payloads
// (including unversioned legacy data, treated as v0) degrade to an empty
// graph instead of blocking the user. The single hard failure is a payload
// that names a version newer than payloadVersion.
func Decode(raw string) (Graph, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Empty(), nil
	}

	var wrapped payload
	if err := json.Unmarshal([]byte(trimmed), &wrapped); err != nil {
		return Empty(), nil
	}
	if wrapped.Version > payloadVersion {
		return Empty(), fmt.Errorf("%w: %d", ErrUnsupportedVersion, wrapped.Version)
	}
	if wrapped.Version < payloadVersion {
		return Empty(), nil
	}

	graph := Graph{Nodes: wrapped.Nodes, Edges: wrapped.Edges}
	if graph.Nodes == nil {
		graph.Nodes = []Node{}
	}
	if graph.Edges == nil {
		graph.Edges = []Edge{}
	}
	return graph, nil
}
