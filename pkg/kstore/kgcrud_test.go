package kstore

import (
	"context"
	"database/sql"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store, err := Create(ctx, t.TempDir(), "testdb")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func createTestDoc(t *testing.T, ctx context.Context, store *Store, name string) *Document {
	t.Helper()
	doc, err := store.CreateDocument(ctx, NewDocumentInput{
		FilePath: "/tmp/" + name, FileName: name, FileHash: "hash-" + name, SizeBytes: 10, FileType: "pdf",
	})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	return doc
}

func createTestNode(t *testing.T, ctx context.Context, store *Store, doc *Document, name string) *KGNode {
	t.Helper()
	var node *KGNode
	err := store.WithTx(ctx, func(tx *sql.Tx) error {
		n, err := store.CreateKGNode(ctx, tx, NewKGNodeInput{
			Type: EntityPerson, CanonicalName: name, NormalizedName: name,
			AliasesJSON: "[]", MetadataJSON: "{}", ParentProvID: doc.ProvenanceID, RootDocumentID: doc.ID,
		})
		node = n
		return err
	})
	if err != nil {
		t.Fatalf("CreateKGNode: %v", err)
	}
	return node
}

func TestGetKGNodeRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	doc := createTestDoc(t, ctx, store, "doc.pdf")
	node := createTestNode(t, ctx, store, doc, "Alice")

	got, err := store.GetKGNode(ctx, node.ID)
	if err != nil {
		t.Fatalf("GetKGNode: %v", err)
	}
	if got.CanonicalName != "Alice" {
		t.Errorf("expected CanonicalName Alice, got %q", got.CanonicalName)
	}

	if _, err := store.GetKGNode(ctx, "does-not-exist"); err == nil {
		t.Error("expected an error for a missing node id")
	}
}

func TestFindKGNodesByNormalizedName(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	doc := createTestDoc(t, ctx, store, "doc.pdf")
	createTestNode(t, ctx, store, doc, "alice")

	matches, err := store.FindKGNodesByNormalizedName(ctx, "alice", EntityPerson)
	if err != nil {
		t.Fatalf("FindKGNodesByNormalizedName: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}

	none, err := store.FindKGNodesByNormalizedName(ctx, "bob", EntityPerson)
	if err != nil {
		t.Fatalf("FindKGNodesByNormalizedName: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no matches for an unknown name, got %d", len(none))
	}
}

func TestListKGNodesByType(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	doc := createTestDoc(t, ctx, store, "doc.pdf")
	createTestNode(t, ctx, store, doc, "Alice")
	createTestNode(t, ctx, store, doc, "Bob")

	nodes, err := store.ListKGNodesByType(ctx, EntityPerson)
	if err != nil {
		t.Fatalf("ListKGNodesByType: %v", err)
	}
	if len(nodes) != 2 {
		t.Errorf("expected 2 person nodes, got %d", len(nodes))
	}

	orgs, err := store.ListKGNodesByType(ctx, EntityOrganization)
	if err != nil {
		t.Fatalf("ListKGNodesByType: %v", err)
	}
	if len(orgs) != 0 {
		t.Errorf("expected no organization nodes, got %d", len(orgs))
	}
}

// TestTxReadVariantsWorkInsideAnOpenTransaction exercises every Tx-suffixed
// read added for the single-connection pool: each must run against the
// supplied *sql.Tx rather than s.db, since the pool has only one connection
// and the transaction already holds it.
func TestTxReadVariantsWorkInsideAnOpenTransaction(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	doc := createTestDoc(t, ctx, store, "doc.pdf")
	a := createTestNode(t, ctx, store, doc, "Alice")
	b := createTestNode(t, ctx, store, doc, "Bob")

	ent, err := store.CreateEntity(ctx, NewEntityInput{
		DocumentID: doc.ID, Type: EntityPerson, RawText: "Alice", NormalizedText: "alice",
		Confidence: 0.9, AliasesJSON: "[]", MetadataJSON: "{}", ParentProvID: doc.ProvenanceID,
	})
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	err = store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := store.CreateNodeEntityLinkTx(ctx, tx, a.ID, ent.ID, doc.ID, 1.0, "exact"); err != nil {
			return err
		}
		if _, err := store.GetKGNodeTx(ctx, tx, a.ID); err != nil {
			return err
		}
		if _, err := store.FindKGNodesByNormalizedNameTx(ctx, tx, "alice", EntityPerson); err != nil {
			return err
		}
		if _, err := store.ListKGNodesByTypeTx(ctx, tx, EntityPerson); err != nil {
			return err
		}
		if _, err := store.ListLinksForNodeTx(ctx, tx, a.ID); err != nil {
			return err
		}
		if _, err := store.ListLinksForDocumentTx(ctx, tx, doc.ID); err != nil {
			return err
		}

		source, target := a.ID, b.ID
		if source > target {
			source, target = target, source
		}
		edge, err := store.CreateKGEdgeTx(ctx, tx, NewKGEdgeInput{
			SourceNodeID: source, TargetNodeID: target, RelationshipType: RelRelatedTo,
			Weight: 1.0, NormalizedWeight: 1.0, EvidenceCount: 1,
			DocumentIDsJSON: "[]", MetadataJSON: "{}", ParentProvID: a.ProvenanceID, RootDocumentID: doc.ID,
		})
		if err != nil {
			return err
		}
		if _, err := store.FindKGEdgeTx(ctx, tx, source, target, RelRelatedTo); err != nil {
			return err
		}
		if _, err := store.ListEdgesForNodeTx(ctx, tx, a.ID); err != nil {
			return err
		}
		_ = edge
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx with nested Tx-variant reads: %v", err)
	}
}
