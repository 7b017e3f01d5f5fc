package kstore

import (
	"context"
	"database/sql"
	"testing"
)

type noopVectorRemover struct{ removed []string }

func (n *noopVectorRemover) Remove(ids []string) { n.removed = append(n.removed, ids...) }

func TestDeleteDocumentCascades(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	doc := createTestDoc(t, ctx, store, "doc.pdf")

	ocr, err := store.CreateOCRResult(ctx, NewOCRResultInput{
		DocumentID: doc.ID, ExtractedText: "hello world",
	})
	if err != nil {
		t.Fatalf("CreateOCRResult: %v", err)
	}

	chunks, err := store.BatchCreateChunks(ctx, doc.ID, ocr, []NewChunkInput{
		{Index: 0, CharacterStart: 0, CharacterEnd: 11, Page: 1, Text: "hello world"},
	})
	if err != nil {
		t.Fatalf("BatchCreateChunks: %v", err)
	}

	embeddings, err := store.BatchCreateEmbeddings(ctx, doc.ID, []NewEmbeddingInput{
		{ChunkID: chunks[0].ID, Vector: []float32{0.1, 0.2}, Model: "test", TaskType: "search_document", OriginalText: "hello world"},
	})
	if err != nil {
		t.Fatalf("BatchCreateEmbeddings: %v", err)
	}

	ent, err := store.CreateEntity(ctx, NewEntityInput{
		DocumentID: doc.ID, Type: EntityPerson, RawText: "Alice", NormalizedText: "alice",
		Confidence: 0.9, AliasesJSON: "[]", MetadataJSON: "{}", ParentProvID: ocr.ProvenanceID,
	})
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	if _, err := store.CreateMention(ctx, NewMentionInput{
		EntityID: ent.ID, DocumentID: doc.ID, ChunkID: chunks[0].ID, Page: 1, ContextSnippet: "Alice said hi",
	}); err != nil {
		t.Fatalf("CreateMention: %v", err)
	}

	remover := &noopVectorRemover{}
	result, err := store.DeleteDocument(ctx, remover, doc.ID)
	if err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if result.EmbeddingsRemoved != 1 {
		t.Errorf("expected 1 embedding removed, got %d", result.EmbeddingsRemoved)
	}
	if result.ChunksRemoved != 1 {
		t.Errorf("expected 1 chunk removed, got %d", result.ChunksRemoved)
	}
	if result.EntitiesRemoved != 1 {
		t.Errorf("expected 1 entity removed, got %d", result.EntitiesRemoved)
	}
	if len(remover.removed) != 1 || remover.removed[0] != embeddings[0].ID {
		t.Errorf("expected the vector index to be told to remove %v, got %v", embeddings[0].ID, remover.removed)
	}

	if _, err := store.GetDocument(ctx, doc.ID); err == nil {
		t.Error("expected the document row to be gone after DeleteDocument")
	}
}

func TestDeleteDocumentOrphansSurvivingKGNode(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	docA := createTestDoc(t, ctx, store, "a.pdf")
	docB := createTestDoc(t, ctx, store, "b.pdf")

	node := createTestNode(t, ctx, store, docA, "Acme Corp")

	entA, err := store.CreateEntity(ctx, NewEntityInput{
		DocumentID: docA.ID, Type: EntityPerson, RawText: "Acme Corp", NormalizedText: "acme corp",
		Confidence: 0.9, AliasesJSON: "[]", MetadataJSON: "{}", ParentProvID: docA.ProvenanceID,
	})
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	entB, err := store.CreateEntity(ctx, NewEntityInput{
		DocumentID: docB.ID, Type: EntityPerson, RawText: "Acme Corp", NormalizedText: "acme corp",
		Confidence: 0.9, AliasesJSON: "[]", MetadataJSON: "{}", ParentProvID: docB.ProvenanceID,
	})
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	err = store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := store.CreateNodeEntityLinkTx(ctx, tx, node.ID, entA.ID, docA.ID, 1.0, "exact"); err != nil {
			return err
		}
		_, err := store.CreateNodeEntityLinkTx(ctx, tx, node.ID, entB.ID, docB.ID, 1.0, "exact")
		return err
	})
	if err != nil {
		t.Fatalf("CreateNodeEntityLinkTx: %v", err)
	}

	result, err := store.DeleteDocument(ctx, nil, docA.ID)
	if err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if result.NodesDeleted != 0 {
		t.Errorf("expected the node to survive since docB still links to it, got %d deleted", result.NodesDeleted)
	}

	remaining, err := store.GetKGNode(ctx, node.ID)
	if err != nil {
		t.Fatalf("GetKGNode after partial delete: %v", err)
	}
	if remaining.DocumentCount != 1 {
		t.Errorf("expected document_count to drop to 1, got %d", remaining.DocumentCount)
	}
}
