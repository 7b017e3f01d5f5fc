package extraction

import (
	"testing"

	"github.com/dan-solli/knowledgestore/pkg/kstore"
)

func TestFindMentionsLocatesCanonicalNameAndAliases(t *testing.T) {
	text := "Acme Corp signed with Acme Inc. later. The Firm confirmed it."
	chunks := []*kstore.Chunk{
		{ID: "c1", CharacterStart: 0, CharacterEnd: 39, Page: 1},
		{ID: "c2", CharacterStart: 39, CharacterEnd: len(text), Page: 2},
	}

	mentions := findMentions(text, "Acme Corp", []string{"Acme Inc", "The Firm"}, chunks)
	if len(mentions) != 3 {
		t.Fatalf("expected 3 mentions (canonical + 2 aliases), got %d: %+v", len(mentions), mentions)
	}
	if mentions[0].chunkID != "c1" {
		t.Fatalf("expected the first mention to land in chunk c1, got %q", mentions[0].chunkID)
	}
	if mentions[2].chunkID != "c2" || mentions[2].page != 2 {
		t.Fatalf("expected \"The Firm\" mention in chunk c2/page 2, got chunk=%q page=%d", mentions[2].chunkID, mentions[2].page)
	}
}

func TestFindMentionsIsCaseInsensitiveAndDedupesByStart(t *testing.T) {
	text := "ACME corp and acme corp are the same."
	chunks := []*kstore.Chunk{{ID: "c1", CharacterStart: 0, CharacterEnd: len(text)}}

	mentions := findMentions(text, "Acme Corp", []string{"ACME CORP"}, chunks)
	if len(mentions) != 2 {
		t.Fatalf("expected 2 distinct-position mentions despite case differences and an alias sharing the canonical spelling, got %d: %+v", len(mentions), mentions)
	}
}

func TestLocateChunkReturnsEmptyWhenNoChunkContainsPosition(t *testing.T) {
	chunks := []*kstore.Chunk{{ID: "c1", CharacterStart: 0, CharacterEnd: 10}}
	chunkID, page := locateChunk(chunks, 50)
	if chunkID != "" || page != 0 {
		t.Fatalf("expected zero-value result for an out-of-range position, got %q/%d", chunkID, page)
	}
}

func TestSnippetAroundTrimsToWordBoundaries(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog near the riverbank"
	// "fox" starts at index 16, ends at 19.
	snippet := snippetAround(text, 16, 19)
	if snippet == "" {
		t.Fatal("expected a non-empty snippet")
	}
	if snippet[0] == ' ' || snippet[len(snippet)-1] == ' ' {
		t.Fatalf("expected snippet trimmed of surrounding whitespace, got %q", snippet)
	}
}
