package kstore

import (
	"context"
	"testing"
)

func TestNodeEmbeddingUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	doc := createTestDoc(t, ctx, store, "doc.pdf")
	node := createTestNode(t, ctx, store, doc, "Acme Corp")

	if existing, err := store.GetNodeEmbedding(ctx, node.ID); err != nil {
		t.Fatalf("GetNodeEmbedding before upsert: %v", err)
	} else if existing != nil {
		t.Fatalf("expected no embedding before the first upsert, got %+v", existing)
	}

	vec := []float32{0.1, 0.2, 0.3}
	emb, err := store.UpsertNodeEmbedding(ctx, node, vec, "test-model", "search_document", "Acme Corp (organization)")
	if err != nil {
		t.Fatalf("UpsertNodeEmbedding: %v", err)
	}
	if emb.NodeID != node.ID {
		t.Errorf("expected NodeID %q, got %q", node.ID, emb.NodeID)
	}

	got, err := store.GetNodeEmbedding(ctx, node.ID)
	if err != nil {
		t.Fatalf("GetNodeEmbedding: %v", err)
	}
	if len(got.Vector) != len(vec) {
		t.Fatalf("expected vector of length %d, got %d", len(vec), len(got.Vector))
	}
	for i := range vec {
		if got.Vector[i] != vec[i] {
			t.Errorf("vector[%d] = %v, want %v", i, got.Vector[i], vec[i])
		}
	}

	// A second upsert must replace, not duplicate, the row (UNIQUE(node_id)).
	newVec := []float32{0.9, 0.8, 0.7}
	if _, err := store.UpsertNodeEmbedding(ctx, node, newVec, "test-model", "search_document", "Acme Corp (organization), v2"); err != nil {
		t.Fatalf("UpsertNodeEmbedding (second call): %v", err)
	}
	all, err := store.ListAllNodeEmbeddings(ctx)
	if err != nil {
		t.Fatalf("ListAllNodeEmbeddings: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly 1 embedding row for the node, got %d", len(all))
	}
	if all[0].Vector[0] != newVec[0] {
		t.Errorf("expected the replaced vector, got %v", all[0].Vector)
	}
}

func TestGetNodeEmbeddingMissingReturnsNilNil(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	emb, err := store.GetNodeEmbedding(ctx, "no-such-node")
	if err != nil {
		t.Fatalf("expected no error for a missing embedding, got %v", err)
	}
	if emb != nil {
		t.Errorf("expected a nil embedding, got %+v", emb)
	}
}
