package flowgraph

import (
	"errors"
	"strings"
	"testing"
)

func TestEncodeEmptyGraphHasExplicitArrays(t *testing.T) {
	encoded, err := Encode(Graph{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(encoded, `"nodes":[]`) || !strings.Contains(encoded, `"edges":[]`) {
		t.Fatalf("expected explicit empty arrays, got %s", encoded)
	}
}

func TestRoundTripPreservesNodesAndEdgeTriples(t *testing.T) {
	graph := Empty()
	source := mustNode(t, NodeKindTechnique, "Closed Guard")
	target := mustNode(t, NodeKindTechnique, "Scissor Sweep")
	graph.AddNode(source)
	graph.AddNode(target)
	if _, err := graph.AddEdge(source.ID, target.ID, "opponent posts", EdgeKindSuccess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	encoded, err := Encode(graph)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if len(decoded.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(decoded.Nodes))
	}
	ids := map[string]bool{}
	for _, node := range decoded.Nodes {
		ids[node.ID] = true
	}
	if !ids[source.ID] || !ids[target.ID] {
		t.Fatalf("node ids not preserved: %#v", ids)
	}
	if len(decoded.Edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(decoded.Edges))
	}
	edge := decoded.Edges[0]
	if edge.Source != source.ID || edge.Target != target.ID || edge.Label != "opponent posts" {
		t.Fatalf("edge triple not preserved: %#v", edge)
	}
}

func TestDecodePermissiveInputs(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"not json",
		`{"nodes": 5}`,
		`{"unrelated": true}`,
	}
	for _, raw := range inputs {
		graph, err := Decode(raw)
		if err != nil {
			t.Fatalf("decode of %q should not fail: %v", raw, err)
		}
		if graph.Nodes == nil || graph.Edges == nil {
			t.Fatalf("decode of %q returned nil slices", raw)
		}
		if len(graph.Nodes) != 0 || len(graph.Edges) != 0 {
			t.Fatalf("decode of %q should yield empty graph", raw)
		}
	}
}

func TestDecodeLegacyUnversionedPayloadYieldsEmptyGraph(t *testing.T) {
	// Pre-versioning payloads carry no version field and are treated as v0,
	// a recognized-but-stale version that falls back to the empty canvas.
	raw := `{"nodes":[{"id":"n1","kind":"technique","label":"Armbar","position":{"x":0,"y":0}}],"edges":[]}`
	graph, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(graph.Nodes) != 0 || len(graph.Edges) != 0 {
		t.Fatalf("stale-version payload should decode empty: %#v", graph)
	}
	if graph.Nodes == nil || graph.Edges == nil {
		t.Fatalf("decode returned nil slices")
	}
}

func TestDecodeRejectsNewerVersion(t *testing.T) {
	if _, err := Decode(`{"version":2,"nodes":[],"edges":[]}`); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}
