package knowledgegraph

import (
	"context"
	"testing"

	"github.com/dan-solli/knowledgestore/pkg/kstore"
)

func TestStatsEmptyGraph(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	stats, err := e.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalNodes != 0 || stats.TotalEdges != 0 {
		t.Errorf("expected an empty graph to report zero counts, got %+v", stats)
	}
	if stats.AverageEdgeCount != 0 {
		t.Errorf("expected zero average edge count on an empty graph, got %v", stats.AverageEdgeCount)
	}
}

func TestStatsCountsNodesEdgesAndHistograms(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t)
	a, _, _, d := buildChainGraph(t, ctx, store)

	stats, err := e.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalNodes != 4 {
		t.Errorf("expected 4 nodes, got %d", stats.TotalNodes)
	}
	if stats.TotalEdges != 3 {
		t.Errorf("expected 3 edges, got %d", stats.TotalEdges)
	}

	var personCount int
	for _, nt := range stats.NodesByType {
		if nt.Type == kstore.EntityPerson {
			personCount = nt.Count
		}
	}
	if personCount != 4 {
		t.Errorf("expected 4 person nodes in the histogram, got %d", personCount)
	}

	var relCount int
	for _, et := range stats.EdgesByType {
		if et.Type == kstore.RelRelatedTo {
			relCount = et.Count
		}
	}
	if relCount != 3 {
		t.Errorf("expected 3 related_to edges in the histogram, got %d", relCount)
	}

	if len(stats.TopConnected) == 0 {
		t.Fatal("expected a non-empty top-connected list")
	}
	// b and c each touch two edges in the chain a-b-c-d; the endpoints touch one.
	top := stats.TopConnected[0]
	if top.EdgeCount < 1 {
		t.Errorf("expected the most-connected node to have at least 1 edge, got %d", top.EdgeCount)
	}

	_ = a
	_ = d
}

func TestStatsCapsTopConnectedAtDefaultCount(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t)

	doc := createTestDocument(t, ctx, store, "doc.pdf")
	count := DefaultTopConnectedCount + 5
	for i := 0; i < count; i++ {
		name := string(rune('A' + i))
		createTestEntity(t, ctx, store, doc, name, name, kstore.EntityPerson)
	}
	if _, err := e.Build(ctx, ModeExact, []string{doc.ID}, false); err != nil {
		t.Fatalf("Build: %v", err)
	}

	nodes, err := store.ListAllKGNodes(ctx)
	if err != nil {
		t.Fatalf("ListAllKGNodes: %v", err)
	}
	if len(nodes) != count {
		t.Fatalf("expected %d distinct nodes, got %d", count, len(nodes))
	}

	stats, err := e.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats.TopConnected) != DefaultTopConnectedCount {
		t.Errorf("expected TopConnected capped at %d, got %d", DefaultTopConnectedCount, len(stats.TopConnected))
	}
}
