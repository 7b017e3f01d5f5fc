package knowledgegraph

import (
	"context"
	"testing"

	"github.com/dan-solli/knowledgestore/pkg/kstore"
	"github.com/dan-solli/knowledgestore/pkg/vectorindex"
)

// fakeEmbedder returns a deterministic, low-dimensional vector derived from
// the input text's byte sum, enough to exercise cosine-similarity ordering
// in tests without a real embedding oracle.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := fakeEmbedder{}.EmbedOne(ctx, t)
		out[i] = v
	}
	return out, nil
}

func (fakeEmbedder) EmbedOne(_ context.Context, text string) ([]float32, error) {
	var sum float32
	for _, b := range []byte(text) {
		sum += float32(b)
	}
	// Two dimensions derived differently so near-identical strings end up
	// with near-identical, but not always equal, vectors.
	return []float32{sum, sum / 2}, nil
}

func newTestEngine(t *testing.T) (*Engine, *kstore.Store) {
	t.Helper()
	ctx := context.Background()
	store, err := kstore.Create(ctx, t.TempDir(), "testdb")
	if err != nil {
		t.Fatalf("kstore.Create: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	idx := vectorindex.NewMemoryIndex()
	e := New(store, idx, fakeEmbedder{})
	return e, store
}

func createTestDocument(t *testing.T, ctx context.Context, store *kstore.Store, name string) *kstore.Document {
	t.Helper()
	doc, err := store.CreateDocument(ctx, kstore.NewDocumentInput{
		FilePath: "/tmp/" + name, FileName: name, FileHash: "hash-" + name, SizeBytes: 100, FileType: "pdf",
	})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	return doc
}

func createTestEntity(t *testing.T, ctx context.Context, store *kstore.Store, doc *kstore.Document, rawText, normalized string, entType kstore.EntityType) *kstore.Entity {
	t.Helper()
	ent, err := store.CreateEntity(ctx, kstore.NewEntityInput{
		DocumentID: doc.ID, Type: entType, RawText: rawText, NormalizedText: normalized,
		Confidence: 0.9, AliasesJSON: "[]", MetadataJSON: "{}", ParentProvID: doc.ProvenanceID,
	})
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	return ent
}
