package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openmatlab/rollflow/internal/flowgraph"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Flow{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	svc, err := NewService(ServiceConfig{Database: db, Clock: func() time.Time { return time.Unix(1700000000, 0) }})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return svc
}

func buildGraphPayload(t *testing.T) (flowgraph.Graph, string) {
	t.Helper()
	graph := flowgraph.Empty()
	source, err := flowgraph.NewTechniqueNode("tech-1", "Closed Guard", flowgraph.Position{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	target, err := flowgraph.NewTechniqueNode("tech-2", "Scissor Sweep", flowgraph.Position{X: 120})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	graph.AddNode(source)
	graph.AddNode(target)
	if _, err := graph.AddEdge(source.ID, target.ID, "opponent posts", flowgraph.EdgeKindSuccess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload, err := flowgraph.Encode(graph)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return graph, payload
}

func TestCreateStoresNormalizedGraphPayload(t *testing.T) {
	svc := newTestService(t)
	original, payload := buildGraphPayload(t)

	created, err := svc.Create(context.Background(), "user-1", CreateInput{
		Name:     "Closed Guard Chain",
		FlowData: payload,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	graph, err := svc.Graph(context.Background(), "user-1", created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(graph.Nodes) != len(original.Nodes) || len(graph.Edges) != 1 {
		t.Fatalf("graph not preserved: %#v", graph)
	}
	if graph.Edges[0].Label != "opponent posts" {
		t.Fatalf("edge label lost: %#v", graph.Edges[0])
	}
}

func TestCreateWithMalformedPayloadYieldsEmptyGraph(t *testing.T) {
	svc := newTestService(t)
	created, err := svc.Create(context.Background(), "user-1", CreateInput{
		Name:     "Broken",
		FlowData: "not json at all",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	graph, err := svc.Graph(context.Background(), "user-1", created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(graph.Nodes) != 0 || len(graph.Edges) != 0 {
		t.Fatalf("expected empty graph, got %#v", graph)
	}
}

func TestCreateRejectsNewerPayloadVersion(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Create(context.Background(), "user-1", CreateInput{
		Name:     "Future",
		FlowData: `{"version":9,"nodes":[],"edges":[]}`,
	})
	if !errors.Is(err, flowgraph.ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestUpdateEnforcesBaseVersion(t *testing.T) {
	svc := newTestService(t)
	created, err := svc.Create(context.Background(), "user-1", CreateInput{Name: "Half Guard Plan"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := svc.Update(context.Background(), "user-1", created.ID, UpdateInput{
		Name:        "Half Guard Plan v2",
		BaseVersion: created.Version,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Version != created.Version+1 {
		t.Fatalf("expected version bump, got %d", updated.Version)
	}

	if _, err := svc.Update(context.Background(), "user-1", created.ID, UpdateInput{
		Name:        "Stale Write",
		BaseVersion: created.Version,
	}); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestUpdatePersistsMultipleTags(t *testing.T) {
	svc := newTestService(t)
	created, err := svc.Create(context.Background(), "user-1", CreateInput{Name: "Guard Chain"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := svc.Update(context.Background(), "user-1", created.ID, UpdateInput{
		Name:        "Guard Chain",
		Tags:        []string{"closed-guard", "competition"},
		BaseVersion: created.Version,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updated.Tags) != 2 || updated.Tags[0] != "closed-guard" {
		t.Fatalf("unexpected tags after update: %#v", updated.Tags)
	}

	fetched, err := svc.Get(context.Background(), "user-1", created.ID)
	if err != nil {
		t.Fatalf("tags column must stay decodable: %v", err)
	}
	if len(fetched.Tags) != 2 {
		t.Fatalf("unexpected persisted tags: %#v", fetched.Tags)
	}
}

func TestSetFavoriteAndDelete(t *testing.T) {
	svc := newTestService(t)
	created, err := svc.Create(context.Background(), "user-1", CreateInput{Name: "Passing Chain"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	favorited, err := svc.SetFavorite(context.Background(), "user-1", created.ID, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !favorited.Favorite {
		t.Fatalf("expected favorite flag set")
	}

	if err := svc.Delete(context.Background(), "user-1", created.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Get(context.Background(), "user-1", created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
