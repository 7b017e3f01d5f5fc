package timeline

import (
	"context"
	"testing"

	"github.com/dan-solli/knowledgestore/pkg/knowledgegraph"
	"github.com/dan-solli/knowledgestore/pkg/kstore"
	"github.com/dan-solli/knowledgestore/pkg/vectorindex"
)

func newTestStoreWithDates(t *testing.T) (*kstore.Store, *kstore.Document) {
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
	ocr, err := store.CreateOCRResult(ctx, kstore.NewOCRResultInput{
		DocumentID: doc.ID, ExtractedText: "filed March 4, 2021; amended January 1, 2020; unparseable date Q3",
		QualityMode: kstore.QualityBalanced,
	})
	if err != nil {
		t.Fatalf("CreateOCRResult: %v", err)
	}

	for _, raw := range []string{"March 4, 2021", "January 1, 2020", "Q3"} {
		if _, err := store.CreateEntity(ctx, kstore.NewEntityInput{
			DocumentID: doc.ID, Type: kstore.EntityDate, RawText: raw, NormalizedText: raw,
			Confidence: 0.9, MetadataJSON: "{}", ParentProvID: ocr.ProvenanceID,
		}); err != nil {
			t.Fatalf("CreateEntity(%q): %v", raw, err)
		}
	}

	return store, doc
}

func TestBuildTimelineSortsParseableDatesChronologicallyAndUnparseableByRawText(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStoreWithDates(t)

	tl, err := BuildTimeline(ctx, store, Options{})
	if err != nil {
		t.Fatalf("BuildTimeline: %v", err)
	}
	if len(tl.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %+v", len(tl.Entries), tl.Entries)
	}

	// "Q3" has no ISODate so it sorts by its own raw text ("Q3"), which
	// lexically follows both ISO-formatted dates (digits sort before letters).
	if tl.Entries[0].ISODate != "2020-01-01" || tl.Entries[1].ISODate != "2021-03-04" {
		t.Fatalf("expected ascending ISO date order ahead of the unparseable entry, got %+v", tl.Entries)
	}
	if tl.Entries[2].RawText != "Q3" {
		t.Fatalf("expected the unparseable entry to sort last by raw text, got order %+v", tl.Entries)
	}
}

func TestBuildTimelineWithUnknownPathFilterReturnsDiagnostic(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStoreWithDates(t)

	engine := knowledgegraph.New(store, vectorindex.NewMemoryIndex(), nil)
	tl, err := BuildTimeline(ctx, store, Options{
		Path: &PathFilter{Engine: engine, SourceNodeID: "does-not-exist", TargetNodeID: "also-missing"},
	})
	if err != nil {
		t.Fatalf("BuildTimeline: %v", err)
	}
	if tl.Diagnostic == "" {
		t.Fatal("expected a diagnostic when no path exists between the requested nodes")
	}
	if len(tl.Entries) != 0 {
		t.Fatalf("expected no entries alongside the diagnostic, got %+v", tl.Entries)
	}
}

func TestBuildTimelineFiltersByEntityNameCoOccurrence(t *testing.T) {
	ctx := context.Background()
	store, doc := newTestStoreWithDates(t)

	ocr, err := store.GetOCRResult(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetOCRResult: %v", err)
	}
	person, err := store.CreateEntity(ctx, kstore.NewEntityInput{
		DocumentID: doc.ID, Type: kstore.EntityPerson, RawText: "Jane Roe", NormalizedText: "jane roe",
		Confidence: 0.9, MetadataJSON: "{}", ParentProvID: ocr.ProvenanceID,
	})
	if err != nil {
		t.Fatalf("CreateEntity(person): %v", err)
	}
	if _, err := store.CreateMention(ctx, kstore.NewMentionInput{
		EntityID: person.ID, DocumentID: doc.ID, ContextSnippet: "signed by Jane Roe on March 4, 2021",
	}); err != nil {
		t.Fatalf("CreateMention: %v", err)
	}

	dates, err := store.ListDateEntities(ctx, nil)
	if err != nil {
		t.Fatalf("ListDateEntities: %v", err)
	}
	for _, d := range dates {
		if d.RawText != "March 4, 2021" {
			continue
		}
		if _, err := store.CreateMention(ctx, kstore.NewMentionInput{
			EntityID: d.ID, DocumentID: doc.ID, ContextSnippet: "signed by Jane Roe on March 4, 2021",
		}); err != nil {
			t.Fatalf("CreateMention(date): %v", err)
		}
	}

	tl, err := BuildTimeline(ctx, store, Options{EntityNames: []string{"Jane Roe"}})
	if err != nil {
		t.Fatalf("BuildTimeline: %v", err)
	}
	if len(tl.Entries) != 1 || tl.Entries[0].RawText != "March 4, 2021" {
		t.Fatalf("expected only the co-occurring date entry, got %+v", tl.Entries)
	}
}
