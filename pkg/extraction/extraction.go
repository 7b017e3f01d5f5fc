// Package extraction runs the joint entity+relationship extraction pipeline
// between the LLM oracle and durable storage: size-policy chunking of OCR
// text, strict-then-recovered JSON parsing of the oracle response, an
// ordered noise-filter/mention-mapping pipeline, and idempotent re-extraction
// for a single document.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dan-solli/knowledgestore/pkg/kstore"
	"github.com/dan-solli/knowledgestore/pkg/llm"
)

// oracleEntity is one entity in the oracle's strict response schema. ID is a
// local token, valid only within one response, used to link relationships.
type oracleEntity struct {
	ID            string   `json:"id"`
	CanonicalName string   `json:"canonical_name"`
	Type          string   `json:"type"`
	Aliases       []string `json:"aliases,omitempty"`
	Confidence    float64  `json:"confidence"`
}

// oracleRelationship is one relationship in the oracle's strict response
// schema, referencing entities by their local ids.
type oracleRelationship struct {
	SourceID         string  `json:"source_id"`
	TargetID         string  `json:"target_id"`
	RelationshipType string  `json:"relationship_type"`
	Confidence       float64 `json:"confidence"`
	Evidence         string  `json:"evidence,omitempty"`
	Temporal         string  `json:"temporal,omitempty"`
}

// oracleResponse is the strict schema the prompt demands of the LLM oracle.
type oracleResponse struct {
	Entities      []oracleEntity       `json:"entities"`
	Relationships []oracleRelationship `json:"relationships"`
}

// storedRelationship mirrors pkg/knowledgegraph's unexported type of the same
// shape: the wire contract persisted into extractions.extraction_json, with
// local oracle ids already translated to persisted entity ids. Duplicated
// rather than shared because it is a storage contract the two packages agree
// on independently, not a behavioral dependency between them.
type storedRelationship struct {
	SourceEntityID   string  `json:"source_entity_id"`
	TargetEntityID   string  `json:"target_entity_id"`
	RelationshipType string  `json:"relationship_type"`
	Confidence       float64 `json:"confidence"`
	ValidFrom        string  `json:"valid_from,omitempty"`
	ValidUntil       string  `json:"valid_until,omitempty"`
}

type storedExtraction struct {
	Relationships []storedRelationship `json:"relationships"`
}

// sizePolicyLimit is L1 from the size policy: above this many characters,
// OCR text is split into two overlapping halves rather than sent whole.
const sizePolicyLimit = 750_000

// overlapChars is the approximate character overlap between split halves.
const overlapChars = 20_000

// suspiciouslySmallInputChars and suspiciouslySmallOutputTokens gate the
// two-pass fallback: an oracle response this short (in estimated tokens)
// against input this long (in characters)
// signals the model silently truncated rather than genuinely found little.
const suspiciouslySmallInputChars = 50_000
const suspiciouslySmallOutputTokens = 2000

// segmentCooldown is the minimum spacing between LLM oracle calls when
// extraction is chunked, per the concurrency model's provider-throttling
// guard.
const segmentCooldown = 3 * time.Second

// Pipeline runs extraction for one Store, using llmClient as the oracle.
type Pipeline struct {
	Store  *kstore.Store
	LLM    llm.LLMClient
	Logger *slog.Logger

	// Now is overridable for deterministic tests; defaults to time.Now.
	Now func() time.Time
	// Sleep is overridable for tests so the segment cooldown doesn't slow
	// the suite down; defaults to time.Sleep.
	Sleep func(time.Duration)
}

// New builds a Pipeline over store using client as the LLM oracle.
func New(store *kstore.Store, client llm.LLMClient) *Pipeline {
	return &Pipeline{Store: store, LLM: client, Logger: slog.Default(), Now: time.Now, Sleep: time.Sleep}
}

// Result summarizes one ExtractDocument call.
type Result struct {
	EntitiesCreated      int
	RelationshipsWritten int
	MentionsCreated      int
	SegmentsProcessed    int
	RecoveredFromPartialJSON bool
	UsedTwoPassFallback  bool
}

// ExtractDocument runs the full pipeline for documentID: idempotent
// re-extraction, size-policy chunking, oracle invocation, JSON recovery,
// ordered post-processing, mention mapping, and durable write of entities,
// mentions, and the extraction_json contract the knowledge-graph engine
// replays to build edges.
func (p *Pipeline) ExtractDocument(ctx context.Context, documentID string) (*Result, error) {
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.Sleep == nil {
		p.Sleep = time.Sleep
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ocr, err := p.Store.GetOCRResult(ctx, documentID)
	if err != nil {
		return nil, err
	}
	text := ocr.ExtractedText
	if strings.TrimSpace(text) == "" {
		return &Result{}, nil
	}

	// Idempotence (§4.3): re-running extraction never leaves stale mentions
	// behind.
	if err := p.Store.DeleteEntitiesForDocument(ctx, documentID); err != nil {
		return nil, err
	}

	hints, err := buildKGHints(ctx, p.Store)
	if err != nil {
		logger.Warn("kg hint build failed, proceeding without hints", "document_id", documentID, "error", err)
		hints = ""
	}

	segments := splitBySizePolicy(text)
	result := &Result{SegmentsProcessed: len(segments)}

	var mergedEntities []oracleEntity
	var mergedRelationships []oracleRelationship
	occurrences := make(map[string]int) // key: type|normalized_text

	for i, seg := range segments {
		if i > 0 {
			p.Sleep(segmentCooldown)
		}

		resp, recovered, twoPass, err := p.extractSegment(ctx, seg, hints)
		if err != nil {
			logger.Error("extraction segment failed", "document_id", documentID, "segment", i, "error", err)
			return &Result{}, kstore.OracleFailure("extract segment", err)
		}
		result.RecoveredFromPartialJSON = result.RecoveredFromPartialJSON || recovered
		result.UsedTwoPassFallback = result.UsedTwoPassFallback || twoPass

		for _, e := range resp.Entities {
			key := strings.ToLower(e.Type) + "|" + normalize(e.CanonicalName)
			occurrences[key]++
		}
		mergedEntities = append(mergedEntities, resp.Entities...)
		mergedRelationships = append(mergedRelationships, resp.Relationships...)
	}

	entities := dedupeEntities(mergedEntities, occurrences, len(segments) > 1)
	entities = addRegexDateEntities(text, entities)
	entities = applyNoiseFilters(entities)

	validIDs := make(map[string]bool, len(entities))
	for _, e := range entities {
		validIDs[e.ID] = true
	}
	relationships := filterRelationships(mergedRelationships, validIDs)

	chunks, err := p.Store.ListChunks(ctx, documentID)
	if err != nil {
		return nil, err
	}

	localToPersisted := make(map[string]string, len(entities))
	for _, e := range entities {
		normalized := normalize(e.CanonicalName)
		aliasesJSON, _ := json.Marshal(e.Aliases)

		ent, err := p.Store.CreateEntity(ctx, kstore.NewEntityInput{
			DocumentID: documentID, Type: kstore.EntityType(e.Type), RawText: e.CanonicalName,
			NormalizedText: normalized, Confidence: e.Confidence,
			AliasesJSON: string(aliasesJSON), MetadataJSON: "{}", ParentProvID: ocr.ProvenanceID,
		})
		if err != nil {
			return nil, err
		}
		result.EntitiesCreated++
		localToPersisted[e.ID] = ent.ID

		mentions := findMentions(text, e.CanonicalName, e.Aliases, chunks)
		if len(mentions) == 0 {
			if _, err := p.Store.CreateMention(ctx, kstore.NewMentionInput{
				EntityID: ent.ID, DocumentID: documentID, Page: 0, ContextSnippet: "",
			}); err != nil {
				return nil, err
			}
			result.MentionsCreated++
			continue
		}
		for _, m := range mentions {
			start, end := m.start, m.end
			if _, err := p.Store.CreateMention(ctx, kstore.NewMentionInput{
				EntityID: ent.ID, DocumentID: documentID, ChunkID: m.chunkID, Page: m.page,
				CharacterStart: &start, CharacterEnd: &end, ContextSnippet: m.snippet,
			}); err != nil {
				return nil, err
			}
			result.MentionsCreated++
		}
	}

	var stored storedExtraction
	for _, r := range relationships {
		sourceID, okS := localToPersisted[r.SourceID]
		targetID, okT := localToPersisted[r.TargetID]
		if !okS || !okT {
			continue
		}
		validFrom, validUntil := parseTemporal(r.Temporal)
		stored.Relationships = append(stored.Relationships, storedRelationship{
			SourceEntityID: sourceID, TargetEntityID: targetID,
			RelationshipType: strings.ToLower(r.RelationshipType), Confidence: r.Confidence,
			ValidFrom: validFrom, ValidUntil: validUntil,
		})
	}
	result.RelationshipsWritten = len(stored.Relationships)

	blob, err := json.Marshal(stored)
	if err != nil {
		return nil, kstore.IntegrityViolation("extraction_json encode", err)
	}
	if _, err := p.Store.CreateExtraction(ctx, documentID, ocr.ProvenanceID, string(blob)); err != nil {
		return nil, err
	}

	logger.Info("extraction complete", "document_id", documentID, "entities", result.EntitiesCreated,
		"relationships", result.RelationshipsWritten, "segments", result.SegmentsProcessed)
	return result, nil
}

// extractSegment invokes the oracle for one text segment (plus hints),
// applying JSON recovery and the two-pass fallback when the response looks
// suspiciously small.
func (p *Pipeline) extractSegment(ctx context.Context, text, hints string) (*oracleResponse, bool, bool, error) {
	prompt := buildJointPrompt(text, hints)
	raw, err := p.LLM.Complete(ctx, prompt)
	if err != nil {
		return nil, false, false, err
	}

	resp, recovered, err := parseOracleResponse(raw)
	if err != nil {
		return nil, false, false, err
	}

	if len(text) > suspiciouslySmallInputChars && estimateTokens(raw) < suspiciouslySmallOutputTokens {
		twoPassResp, err := p.twoPassExtract(ctx, text, hints)
		if err == nil {
			return twoPassResp, recovered, true, nil
		}
		// fall through to the single-pass result rather than fail outright
	}

	return resp, recovered, false, nil
}

// twoPassExtract runs entities-only then relationships-only, accumulating
// token usage conceptually across both calls (the LLM client tracks actual
// usage; the pipeline only needs the merged result).
func (p *Pipeline) twoPassExtract(ctx context.Context, text, hints string) (*oracleResponse, error) {
	entitiesPrompt := buildEntitiesOnlyPrompt(text, hints)
	raw, err := p.LLM.Complete(ctx, entitiesPrompt)
	if err != nil {
		return nil, err
	}
	var pass1 struct {
		Entities []oracleEntity `json:"entities"`
	}
	if err := json.Unmarshal(recoverOrPassthrough(raw), &pass1); err != nil {
		return nil, err
	}

	relationshipsPrompt := buildRelationshipsOnlyPrompt(text, pass1.Entities)
	raw2, err := p.LLM.Complete(ctx, relationshipsPrompt)
	if err != nil {
		return &oracleResponse{Entities: pass1.Entities}, nil
	}
	var pass2 struct {
		Relationships []oracleRelationship `json:"relationships"`
	}
	_ = json.Unmarshal(recoverOrPassthrough(raw2), &pass2)

	return &oracleResponse{Entities: pass1.Entities, Relationships: pass2.Relationships}, nil
}

func estimateTokens(s string) int {
	// crude chars/4 heuristic, matching the teacher's own token estimation
	// style elsewhere in the pack (no tokenizer dependency for a threshold
	// check this coarse).
	return len(s) / 4
}

// splitBySizePolicy implements §4.3's size policy: one call under L1, else
// two overlapping halves split at the sentence boundary nearest the
// midpoint.
func splitBySizePolicy(text string) []string {
	if len(text) <= sizePolicyLimit {
		return []string{text}
	}

	mid := len(text) / 2
	boundary := nearestSentenceBoundary(text, mid)

	firstEnd := boundary + overlapChars/2
	if firstEnd > len(text) {
		firstEnd = len(text)
	}
	secondStart := boundary - overlapChars/2
	if secondStart < 0 {
		secondStart = 0
	}

	return []string{text[:firstEnd], text[secondStart:]}
}

// nearestSentenceBoundary scans outward from around for the nearest sentence
// terminator (. ! ?) followed by whitespace, falling back to around if none
// is found within a reasonable window.
func nearestSentenceBoundary(text string, around int) int {
	window := 5000
	lo := around - window
	if lo < 0 {
		lo = 0
	}
	hi := around + window
	if hi > len(text) {
		hi = len(text)
	}

	best := around
	bestDist := window + 1
	for i := lo; i < hi-1; i++ {
		c := text[i]
		if (c == '.' || c == '!' || c == '?') && (text[i+1] == ' ' || text[i+1] == '\n' || text[i+1] == '\t') {
			dist := i - around
			if dist < 0 {
				dist = -dist
			}
			if dist < bestDist {
				best, bestDist = i+1, dist
			}
		}
	}
	return best
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// dedupeEntities applies the cross-segment agreement boost (§4.3): when the
// document was chunked, entities seen in more than one segment get a
// confidence boost proportional to their occurrence count, then are deduped
// by (type, normalized_text) keeping the higher-confidence copy.
func dedupeEntities(entities []oracleEntity, occurrences map[string]int, chunked bool) []oracleEntity {
	best := make(map[string]oracleEntity)
	order := make([]string, 0, len(entities))

	for _, e := range entities {
		key := strings.ToLower(e.Type) + "|" + normalize(e.CanonicalName)
		if chunked {
			occ := occurrences[key]
			if occ > 1 {
				e.Confidence += minFloat(0.15, 0.05*float64(occ-1))
				if e.Confidence > 1.0 {
					e.Confidence = 1.0
				}
			}
		}
		existing, ok := best[key]
		if !ok {
			order = append(order, key)
			best[key] = e
			continue
		}
		if e.Confidence > existing.Confidence {
			best[key] = e
		}
	}

	out := make([]oracleEntity, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	return out
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// filterRelationships drops relationships referencing unknown entity ids or
// unrecognized relationship types (§4.3 post-processing step 4).
func filterRelationships(rels []oracleRelationship, validIDs map[string]bool) []oracleRelationship {
	out := make([]oracleRelationship, 0, len(rels))
	seen := make(map[string]bool)
	for _, r := range rels {
		if !validIDs[r.SourceID] || !validIDs[r.TargetID] {
			continue
		}
		if !kstore.IsValidRelationshipType(kstore.RelationshipType(strings.ToLower(r.RelationshipType))) {
			continue
		}
		key := r.SourceID + "|" + strings.ToLower(r.RelationshipType) + "|" + r.TargetID
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// parseTemporal parses the §4.3 temporal string grammar: "YYYY-MM-DD" alone
// sets valid_from only; "YYYY-MM-DD (to|–|—|-) YYYY-MM-DD" sets both bounds.
func parseTemporal(s string) (validFrom, validUntil string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	for _, sep := range []string{" to ", "–", "—", " - "} {
		if idx := strings.Index(s, sep); idx >= 0 {
			from := strings.TrimSpace(s[:idx])
			until := strings.TrimSpace(s[idx+len(sep):])
			if isISODate(from) && isISODate(until) {
				return from, until
			}
		}
	}
	if isISODate(s) {
		return s, ""
	}
	return "", ""
}

func isISODate(s string) bool {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return false
	}
	for i, c := range s {
		if i == 4 || i == 7 {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func buildJointPrompt(text, hints string) string {
	var b strings.Builder
	b.WriteString("You are a legal/medical document knowledge-graph extraction assistant.\n\n")
	b.WriteString("Extract every entity and every relationship between extracted entities from the text below in a single pass.\n")
	b.WriteString("Entity types: person, organization, date, amount, case_number, location, statute, exhibit, medication, diagnosis, medical_device, other.\n")
	b.WriteString("Relationship types: co_located, co_mentioned, works_at, represents, located_in, filed_in, cites, references, party_to, related_to, precedes, occurred_at.\n")
	b.WriteString("Assign each entity a short local id (e1, e2, ...) used only to link relationships in this response.\n")
	if hints != "" {
		b.WriteString("\nKnown entities already in the knowledge graph (reuse their canonical names where the text clearly refers to them):\n")
		b.WriteString(hints)
		b.WriteString("\n")
	}
	b.WriteString("\nText:\n---\n")
	b.WriteString(text)
	b.WriteString("\n---\n\n")
	b.WriteString(`Return ONLY valid JSON: {"entities":[{"id":"e1","canonical_name":"...","type":"...","aliases":["..."],"confidence":0.0}],"relationships":[{"source_id":"e1","target_id":"e2","relationship_type":"...","confidence":0.0,"evidence":"...","temporal":"..."}]}`)
	return b.String()
}

func buildEntitiesOnlyPrompt(text, hints string) string {
	var b strings.Builder
	b.WriteString("Extract only the entities (no relationships) from the text below.\n")
	b.WriteString("Entity types: person, organization, date, amount, case_number, location, statute, exhibit, medication, diagnosis, medical_device, other.\n")
	if hints != "" {
		b.WriteString("Known entities already in the graph:\n")
		b.WriteString(hints)
		b.WriteString("\n")
	}
	b.WriteString("Text:\n---\n")
	b.WriteString(text)
	b.WriteString("\n---\n")
	b.WriteString(`Return ONLY valid JSON: {"entities":[{"id":"e1","canonical_name":"...","type":"...","aliases":["..."],"confidence":0.0}]}`)
	return b.String()
}

func buildRelationshipsOnlyPrompt(text string, entities []oracleEntity) string {
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = fmt.Sprintf("%s: %s (%s)", e.ID, e.CanonicalName, e.Type)
	}
	var b strings.Builder
	b.WriteString("Given this text and these already-extracted entities, identify relationships between them by local id.\n")
	b.WriteString("Relationship types: co_located, co_mentioned, works_at, represents, located_in, filed_in, cites, references, party_to, related_to, precedes, occurred_at.\n")
	b.WriteString("Known entities:\n")
	b.WriteString(strings.Join(names, "\n"))
	b.WriteString("\n\nText:\n---\n")
	b.WriteString(text)
	b.WriteString("\n---\n")
	b.WriteString(`Return ONLY valid JSON: {"relationships":[{"source_id":"e1","target_id":"e2","relationship_type":"...","confidence":0.0,"evidence":"...","temporal":"..."}]}`)
	return b.String()
}

func recoverOrPassthrough(raw string) []byte {
	if json.Valid([]byte(raw)) {
		return []byte(raw)
	}
	if recovered, ok := recoverPartialJSON(raw); ok {
		return recovered
	}
	return []byte(raw)
}
