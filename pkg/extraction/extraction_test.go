package extraction

import (
	"context"
	"testing"
	"time"

	"github.com/dan-solli/knowledgestore/pkg/kstore"
)

// fakeLLM returns a canned completion regardless of prompt, mirroring the
// oracle contract extraction.go depends on (Complete only; CompleteWithSchema
// is never called from this package).
type fakeLLM struct {
	response string
	calls    int
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.response, nil
}

func (f *fakeLLM) CompleteWithSchema(ctx context.Context, prompt string, schema any) error {
	return nil
}

func newTestPipeline(t *testing.T, llmResponse string) (*Pipeline, *kstore.Store, *kstore.Document) {
	t.Helper()
	ctx := context.Background()

	store, err := kstore.Create(ctx, t.TempDir(), "testdb")
	if err != nil {
		t.Fatalf("kstore.Create: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	doc, err := store.CreateDocument(ctx, kstore.NewDocumentInput{
		FilePath: "/tmp/doc.pdf", FileName: "doc.pdf", FileHash: "hash-doc", SizeBytes: 100, FileType: "pdf",
	})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	text := "Acme Corp entered an agreement with Globex Inc on March 4, 2021."
	ocr, err := store.CreateOCRResult(ctx, kstore.NewOCRResultInput{
		DocumentID: doc.ID, ExtractedText: text, QualityMode: kstore.QualityBalanced,
	})
	if err != nil {
		t.Fatalf("CreateOCRResult: %v", err)
	}
	if _, err := store.BatchCreateChunks(ctx, doc.ID, ocr, []kstore.NewChunkInput{
		{Index: 0, CharacterStart: 0, CharacterEnd: len(text), Text: text},
	}); err != nil {
		t.Fatalf("BatchCreateChunks: %v", err)
	}

	p := New(store, &fakeLLM{response: llmResponse})
	p.Sleep = func(d time.Duration) {} // segment cooldown would otherwise slow the suite
	return p, store, doc
}

func TestExtractDocumentPersistsEntitiesMentionsAndExtraction(t *testing.T) {
	ctx := context.Background()
	llmResponse := `{"entities":[
		{"id":"e1","canonical_name":"Acme Corp","type":"organization","confidence":0.95},
		{"id":"e2","canonical_name":"Globex Inc","type":"organization","confidence":0.92}
	],"relationships":[
		{"source_id":"e1","target_id":"e2","relationship_type":"party_to","confidence":0.8,"evidence":"entered an agreement"}
	]}`

	p, store, doc := newTestPipeline(t, llmResponse)
	result, err := p.ExtractDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ExtractDocument: %v", err)
	}

	if result.EntitiesCreated < 2 {
		t.Fatalf("expected at least 2 entities created (oracle entities + regex date supplement), got %d", result.EntitiesCreated)
	}
	if result.RelationshipsWritten != 1 {
		t.Fatalf("expected 1 relationship written, got %d", result.RelationshipsWritten)
	}
	if result.MentionsCreated == 0 {
		t.Fatal("expected at least one mention to be created")
	}

	entities, err := store.ListEntitiesForDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ListEntitiesForDocument: %v", err)
	}
	names := map[string]bool{}
	for _, e := range entities {
		names[e.RawText] = true
	}
	if !names["Acme Corp"] || !names["Globex Inc"] {
		t.Fatalf("expected both oracle entities to be persisted, got %+v", names)
	}
}

func TestExtractDocumentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	llmResponse := `{"entities":[{"id":"e1","canonical_name":"Acme Corp","type":"organization","confidence":0.95}],"relationships":[]}`

	p, store, doc := newTestPipeline(t, llmResponse)
	if _, err := p.ExtractDocument(ctx, doc.ID); err != nil {
		t.Fatalf("first ExtractDocument: %v", err)
	}
	firstEntities, err := store.ListEntitiesForDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ListEntitiesForDocument: %v", err)
	}

	if _, err := p.ExtractDocument(ctx, doc.ID); err != nil {
		t.Fatalf("second ExtractDocument: %v", err)
	}
	secondEntities, err := store.ListEntitiesForDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ListEntitiesForDocument: %v", err)
	}

	if len(secondEntities) != len(firstEntities) {
		t.Fatalf("expected re-extraction to leave the same entity count (no stale duplicates), got %d then %d", len(firstEntities), len(secondEntities))
	}
}

func TestExtractDocumentOnEmptyOCRTextIsNoop(t *testing.T) {
	ctx := context.Background()
	p, store, _ := newTestPipeline(t, `{"entities":[],"relationships":[]}`)

	doc, err := store.CreateDocument(ctx, kstore.NewDocumentInput{
		FilePath: "/tmp/empty.pdf", FileName: "empty.pdf", FileHash: "hash-empty", SizeBytes: 0, FileType: "pdf",
	})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if _, err := store.CreateOCRResult(ctx, kstore.NewOCRResultInput{
		DocumentID: doc.ID, ExtractedText: "   ", QualityMode: kstore.QualityBalanced,
	}); err != nil {
		t.Fatalf("CreateOCRResult: %v", err)
	}

	result, err := p.ExtractDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ExtractDocument: %v", err)
	}
	if result.EntitiesCreated != 0 || result.SegmentsProcessed != 0 {
		t.Fatalf("expected a no-op result for blank OCR text, got %+v", result)
	}
}
