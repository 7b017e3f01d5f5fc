package extraction

import (
	"strings"
	"unicode"

	"github.com/dan-solli/knowledgestore/pkg/kstore"
)

// mentionSnippetRadius is how many characters of context mention mapping
// snapshots on either side of a match, per §4.3 step 6.
const mentionSnippetRadius = 100

type mention struct {
	start, end int
	chunkID    string
	page       int
	snippet    string
}

// findMentions implements §4.3's mention-mapping step: scan text
// case-insensitively for every occurrence of canonicalName and each alias,
// compute [start, end), locate the containing chunk by the start-position
// containment rule, and snapshot a context snippet trimmed to word
// boundaries. Occurrences are deduplicated by character_start.
func findMentions(text, canonicalName string, aliases []string, chunks []*kstore.Chunk) []mention {
	terms := append([]string{canonicalName}, aliases...)
	lowerText := strings.ToLower(text)

	seen := make(map[int]bool)
	var out []mention

	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		lowerTerm := strings.ToLower(term)

		for idx := 0; ; {
			pos := strings.Index(lowerText[idx:], lowerTerm)
			if pos < 0 {
				break
			}
			start := idx + pos
			end := start + len(term)
			idx = end

			if seen[start] {
				continue
			}
			seen[start] = true

			chunkID, page := locateChunk(chunks, start)
			out = append(out, mention{
				start: start, end: end, chunkID: chunkID, page: page,
				snippet: snippetAround(text, start, end),
			})
		}
	}

	return out
}

// locateChunk finds the chunk whose half-open [character_start,
// character_end) range contains start (start-position containment rule).
func locateChunk(chunks []*kstore.Chunk, start int) (chunkID string, page int) {
	for _, c := range chunks {
		if c.CharacterStart <= start && start < c.CharacterEnd {
			return c.ID, c.Page
		}
	}
	return "", 0
}

// snippetAround returns ~mentionSnippetRadius characters of context on each
// side of [start, end), trimmed to word boundaries.
func snippetAround(text string, start, end int) string {
	lo := start - mentionSnippetRadius
	if lo < 0 {
		lo = 0
	}
	hi := end + mentionSnippetRadius
	if hi > len(text) {
		hi = len(text)
	}

	for lo > 0 && !unicode.IsSpace(rune(text[lo-1])) {
		lo--
	}
	for hi < len(text) && !unicode.IsSpace(rune(text[hi])) {
		hi++
	}

	return strings.TrimSpace(text[lo:hi])
}
