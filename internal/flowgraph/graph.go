package flowgraph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NodeKind enumerates the node flavors a flow canvas supports.
type NodeKind string

const (
	// NodeKindTechnique references a technique from the user's catalog.
	NodeKindTechnique NodeKind = "technique"
	// NodeKindCondition represents a branching condition ("if countered").
	NodeKindCondition NodeKind = "condition"
	// NodeKindNote is a free-form annotation on the canvas.
	NodeKindNote NodeKind = "note"
)

// EdgeKind enumerates transition flavors between nodes.
type EdgeKind string

const (
	EdgeKindDefault EdgeKind = "default"
	EdgeKindSuccess EdgeKind = "success"
	EdgeKindCounter EdgeKind = "counter"
)

var (
	// ErrEmptyLabel indicates a node was requested without a usable label.
	ErrEmptyLabel = errors.New("flowgraph: node label must not be empty")
	// ErrUnknownNode indicates an edge endpoint references a node id absent
	// from the graph.
	ErrUnknownNode = errors.New("flowgraph: edge references unknown node")
)

// Position is a 2-D canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Style carries optional client rendering overrides. Empty fields mean the
// client default applies.
type Style struct {
	Fill   string `json:"fill,omitempty"`
	Stroke string `json:"stroke,omitempty"`
}

// Node is a single vertex on a flow canvas.
type Node struct {
	ID          string   `json:"id"`
	Kind        NodeKind `json:"kind"`
	Label       string   `json:"label"`
	Position    Position `json:"position"`
	Style       *Style   `json:"style,omitempty"`
	TechniqueID string   `json:"technique_id,omitempty"`
}

// Edge connects two nodes with an optional trigger-condition label.
type Edge struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Label  string   `json:"label,omitempty"`
	Kind   EdgeKind `json:"kind"`
}

// Graph holds the node/edge structure backing one flow.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Empty returns a graph with no nodes or edges. Slices are non-nil so the
// serialized form is always {"nodes":[],"edges":[]}.
func Empty() Graph {
	return Graph{Nodes: []Node{}, Edges: []Edge{}}
}

// NewTechniqueNode builds a node referencing a catalog technique. The label
// is the technique's display name at creation time.
func NewTechniqueNode(techniqueID, label string, pos Position) (Node, error) {
	node, err := NewCustomNode(NodeKindTechnique, label, pos)
	if err != nil {
		return Node{}, err
	}
	node.TechniqueID = strings.TrimSpace(techniqueID)
	return node, nil
}

// NewCustomNode builds a condition or note node with a generated id.
func NewCustomNode(kind NodeKind, label string, pos Position) (Node, error) {
	trimmed := strings.TrimSpace(label)
	if trimmed == "" {
		return Node{}, ErrEmptyLabel
	}
	switch kind {
	case NodeKindTechnique, NodeKindCondition, NodeKindNote:
	default:
		kind = NodeKindNote
	}
	return Node{
		ID:       uuid.NewString(),
		Kind:     kind,
		Label:    trimmed,
		Position: pos,
	}, nil
}

// AddNode appends a node to the graph.
func (g *Graph) AddNode(node Node) {
	g.Nodes = append(g.Nodes, node)
}

// FindNode returns the node with the given id, or nil.
func (g *Graph) FindNode(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// AddEdge connects two existing nodes. A missing endpoint is rejected so a
// freshly composed graph cannot contain dangling edges; payloads loaded from
// storage bypass this through Decode and are checked with Validate instead.
func (g *Graph) AddEdge(source, target, label string, kind EdgeKind) (Edge, error) {
	if g.FindNode(source) == nil {
		return Edge{}, fmt.Errorf("%w: source %s", ErrUnknownNode, source)
	}
	if g.FindNode(target) == nil {
		return Edge{}, fmt.Errorf("%w: target %s", ErrUnknownNode, target)
	}
	switch kind {
	case EdgeKindDefault, EdgeKindSuccess, EdgeKindCounter:
	default:
		kind = EdgeKindDefault
	}
	edge := Edge{
		ID:     uuid.NewString(),
		Source: source,
		Target: target,
		Label:  strings.TrimSpace(label),
		Kind:   kind,
	}
	g.Edges = append(g.Edges, edge)
	return edge, nil
}

// SetEdgeLabel applies a label edit to the edge with the given id.
//
// The cancel semantics are deliberately asymmetric: clearing the label on a
// provisional connection (one that never existed before this edit) discards
// the edge entirely, while clearing the label on an established edge keeps
// the edge with an empty label.
func (g *Graph) SetEdgeLabel(edgeID, label string, existed bool) bool {
	trimmed := strings.TrimSpace(label)
	for i := range g.Edges {
		if g.Edges[i].ID != edgeID {
			continue
		}
		if trimmed == "" && !existed {
			g.Edges = append(g.Edges[:i], g.Edges[i+1:]...)
			return false
		}
		g.Edges[i].Label = trimmed
		return true
	}
	return false
}

// RemoveNode deletes a node and every edge touching it.
func (g *Graph) RemoveNode(id string) {
	nodes := g.Nodes[:0]
	for _, node := range g.Nodes {
		if node.ID != id {
			nodes = append(nodes, node)
		}
	}
	g.Nodes = nodes

	edges := g.Edges[:0]
	for _, edge := range g.Edges {
		if edge.Source != id && edge.Target != id {
			edges = append(edges, edge)
		}
	}
	g.Edges = edges
}

// RemoveEdge deletes the edge with the given id.
func (g *Graph) RemoveEdge(id string) {
	edges := g.Edges[:0]
	for _, edge := range g.Edges {
		if edge.ID != id {
			edges = append(edges, edge)
		}
	}
	g.Edges = edges
}

// Validate reports every edge whose endpoints are missing from the node set.
// Stored payloads are accepted as-is; this is a diagnostic for clients that
// want to surface (or prune) dangling edges.
func (g *Graph) Validate() []error {
	ids := make(map[string]struct{}, len(g.Nodes))
	for _, node := range g.Nodes {
		ids[node.ID] = struct{}{}
	}
	var problems []error
	for _, edge := range g.Edges {
		if _, ok := ids[edge.Source]; !ok {
			problems = append(problems, fmt.Errorf("%w: edge %s source %s", ErrUnknownNode, edge.ID, edge.Source))
		}
		if _, ok := ids[edge.Target]; !ok {
			problems = append(problems, fmt.Errorf("%w: edge %s target %s", ErrUnknownNode, edge.ID, edge.Target))
		}
	}
	return problems
}
