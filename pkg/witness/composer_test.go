package witness

import (
	"context"
	"strings"
	"testing"

	"github.com/dan-solli/knowledgestore/pkg/kstore"
)

func TestBuildPromptOmitsOptionalSectionsWhenEmpty(t *testing.T) {
	prompt := buildPrompt("some text", nil, nil, nil)
	if strings.Contains(prompt, "Prior comparison summaries") {
		t.Fatal("expected no prior-summaries section when there are none")
	}
	if strings.Contains(prompt, "knowledge graph clusters") {
		t.Fatal("expected no cluster section when there are no memberships")
	}
	if strings.Contains(prompt, "Cross-document connections") {
		t.Fatal("expected no cross-document section when there are no connections")
	}
}

func TestBuildPromptIncludesPriorSummariesAndClusters(t *testing.T) {
	prompt := buildPrompt("doc text",
		[]string{"first analysis"},
		[]clusterMembership{{NodeID: "n1", CanonicalName: "Acme Corp", Type: "organization", DocumentCount: 3}},
		[]crossDocConnection{{FromNode: "n1", ToNode: "n2", RelationshipType: "partner_of", OtherDocumentID: "doc-2"}},
	)
	if !strings.Contains(prompt, "first analysis") {
		t.Fatal("expected the prior summary text in the prompt")
	}
	if !strings.Contains(prompt, "Acme Corp (organization), seen in 3 document(s)") {
		t.Fatal("expected the cluster membership line in the prompt")
	}
	if !strings.Contains(prompt, "n1 --partner_of--> n2 (also in document doc-2)") {
		t.Fatal("expected the cross-document connection line in the prompt")
	}
}

type capturingLLM struct {
	responses []string
	prompts   []string
}

func (f *capturingLLM) Complete(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	resp := f.responses[len(f.prompts)-1]
	return resp, nil
}

func (f *capturingLLM) CompleteWithSchema(ctx context.Context, prompt string, schema any) error {
	return nil
}

func newTestComposer(t *testing.T, llm *capturingLLM) (*Composer, *kstore.Store, *kstore.Document) {
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
	if _, err := store.CreateOCRResult(ctx, kstore.NewOCRResultInput{
		DocumentID: doc.ID, ExtractedText: "Acme Corp signed an agreement.", QualityMode: kstore.QualityBalanced,
	}); err != nil {
		t.Fatalf("CreateOCRResult: %v", err)
	}

	return &Composer{Store: store, LLM: llm}, store, doc
}

func TestComposeWitnessAnalysisPersistsComparisonAndCarriesPriorSummaryForward(t *testing.T) {
	ctx := context.Background()
	llm := &capturingLLM{responses: []string{"first witness output", "second witness output"}}
	c, store, doc := newTestComposer(t, llm)

	first, err := c.ComposeWitnessAnalysis(ctx, doc.ID)
	if err != nil {
		t.Fatalf("first ComposeWitnessAnalysis: %v", err)
	}
	if first.Output != "first witness output" || first.ComparisonID == "" {
		t.Fatalf("unexpected first result: %+v", first)
	}

	second, err := c.ComposeWitnessAnalysis(ctx, doc.ID)
	if err != nil {
		t.Fatalf("second ComposeWitnessAnalysis: %v", err)
	}
	if second.Output != "second witness output" {
		t.Fatalf("unexpected second output: %q", second.Output)
	}
	if !strings.Contains(llm.prompts[1], "first witness output") {
		t.Fatal("expected the second prompt to carry the first comparison's output forward as a prior summary")
	}

	comparisons, err := store.ListComparisonsForDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ListComparisonsForDocument: %v", err)
	}
	if len(comparisons) != 2 {
		t.Fatalf("expected 2 persisted comparisons, got %d", len(comparisons))
	}
}
