package knowledgegraph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dan-solli/knowledgestore/pkg/kstore"
)

// BuildResult summarizes what one Build call did.
type BuildResult struct {
	NodesCreated  int
	NodesMatched  int
	EdgesCreated  int
	EntitiesSeen  int
}

// Build resolves the entities of documentIDs against the existing graph and
// creates/updates nodes and edges. full=true clears every node, edge, and
// link first and reconstructs from all entities in the store, ignoring
// documentIDs. Matching never crosses entity types.
func (e *Engine) Build(ctx context.Context, mode BuildMode, documentIDs []string, full bool) (*BuildResult, error) {
	start := time.Now()
	result, err := e.build(ctx, mode, documentIDs, full)

	status := "success"
	if err != nil {
		status = "error"
		e.metrics.RecordError(ctx, "build_graph", "build_failed")
	}
	e.metrics.RecordOperation(ctx, "build_graph", status, time.Since(start).Milliseconds())
	return result, err
}

func (e *Engine) build(ctx context.Context, mode BuildMode, documentIDs []string, full bool) (*BuildResult, error) {
	if full {
		if err := e.clearGraph(ctx); err != nil {
			return nil, err
		}
		docs, err := e.store.ListDocuments(ctx, kstore.ListDocumentsFilter{})
		if err != nil {
			return nil, err
		}
		documentIDs = documentIDs[:0]
		for _, d := range docs {
			documentIDs = append(documentIDs, d.ID)
		}
	}

	result := &BuildResult{}
	// local-id mapping, per document, from entity id -> resolved node id
	entityToNode := make(map[string]string)

	for _, docID := range documentIDs {
		entities, err := e.store.ListEntitiesForDocument(ctx, docID)
		if err != nil {
			return nil, err
		}
		result.EntitiesSeen += len(entities)

		for _, ent := range entities {
			nodeID, created, err := e.resolveNode(ctx, mode, ent, docID)
			if err != nil {
				return nil, err
			}
			entityToNode[ent.ID] = nodeID
			if created {
				result.NodesCreated++
			} else {
				result.NodesMatched++
			}
		}
	}

	created, err := e.buildEdgesFromMentions(ctx, documentIDs, entityToNode)
	if err != nil {
		return nil, err
	}
	result.EdgesCreated = created

	return result, nil
}

// clearGraph deletes every node, link, and edge (full build precondition).
// Provenance rows for cleared nodes/edges are left in place as historical
// record; only the live graph tables are wiped.
func (e *Engine) clearGraph(ctx context.Context) error {
	return e.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kg_edges`); err != nil {
			return kstore.IntegrityViolation("kg_edges clear", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM node_entity_links`); err != nil {
			return kstore.IntegrityViolation("node_entity_links clear", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM kg_nodes`); err != nil {
			return kstore.IntegrityViolation("kg_nodes clear", err)
		}
		return nil
	})
}

// resolveNode matches ent against existing nodes of the same type using
// mode, creating a new node when nothing matches (or creating unconditionally
// outside ModeExact/ModeFuzzy/ModeAI's match, per the "new nodes only when no
// match exists" incremental-build rule).
func (e *Engine) resolveNode(ctx context.Context, mode BuildMode, ent *kstore.Entity, documentID string) (nodeID string, created bool, err error) {
	var match *kstore.KGNode

	switch mode {
	case ModeFuzzy:
		match, err = e.matchFuzzy(ctx, ent)
	case ModeAI:
		match, err = e.matchAI(ctx, ent)
	default:
		match, err = e.matchExact(ctx, ent)
	}
	if err != nil {
		return "", false, err
	}

	if match == nil {
		node, err := e.createNodeTx(ctx, ent, documentID)
		if err != nil {
			return "", false, err
		}
		return node.ID, true, nil
	}

	if err := e.mergeEntityIntoNode(ctx, match, ent, documentID); err != nil {
		return "", false, err
	}
	return match.ID, false, nil
}

func (e *Engine) matchExact(ctx context.Context, ent *kstore.Entity) (*kstore.KGNode, error) {
	candidates, err := e.store.FindKGNodesByNormalizedName(ctx, ent.NormalizedText, ent.Type)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return candidates[0], nil
}

func (e *Engine) matchFuzzy(ctx context.Context, ent *kstore.Entity) (*kstore.KGNode, error) {
	candidates, err := e.store.ListKGNodesByType(ctx, ent.Type)
	if err != nil {
		return nil, err
	}

	var best *kstore.KGNode
	bestScore := 0.0
	for i, c := range candidates {
		if i >= DefaultFuzzyCandidates {
			break
		}
		score := diceCoefficient(ent.NormalizedText, c.NormalizedName)
		if score >= DefaultFuzzyThreshold && score > bestScore {
			best, bestScore = candidates[i], score
		}
	}
	return best, nil
}

func (e *Engine) matchAI(ctx context.Context, ent *kstore.Entity) (*kstore.KGNode, error) {
	if e.llmc == nil {
		return e.matchFuzzy(ctx, ent)
	}

	candidates, err := e.store.ListKGNodesByType(ctx, ent.Type)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	if len(candidates) > DefaultFuzzyCandidates {
		candidates = candidates[:DefaultFuzzyCandidates]
	}

	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = fmt.Sprintf("%d: %s", i, c.CanonicalName)
	}

	prompt := fmt.Sprintf(
		"Entity %q (type %s) was just extracted. Does it refer to the same real-world entity as one of these known nodes?\n%s\nReply with just the candidate number it matches, or -1 if none match.",
		ent.RawText, ent.Type, strings.Join(names, "\n"),
	)

	var verdict struct {
		MatchIndex int `json:"match_index"`
	}
	if err := e.llmc.CompleteWithSchema(ctx, prompt, &verdict); err != nil {
		e.logger.Warn("ai disambiguation failed, falling back to fuzzy match", "error", err)
		return e.matchFuzzy(ctx, ent)
	}
	if verdict.MatchIndex < 0 || verdict.MatchIndex >= len(candidates) {
		return nil, nil
	}
	return candidates[verdict.MatchIndex], nil
}

// createNodeTx creates a brand-new node for ent.
func (e *Engine) createNodeTx(ctx context.Context, ent *kstore.Entity, documentID string) (*kstore.KGNode, error) {
	var node *kstore.KGNode
	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		n, err := e.store.CreateKGNode(ctx, tx, kstore.NewKGNodeInput{
			Type: ent.Type, CanonicalName: ent.RawText, NormalizedName: ent.NormalizedText,
			AliasesJSON: ent.AliasesJSON, MetadataJSON: "{}", ParentProvID: ent.ProvenanceID, RootDocumentID: documentID,
		})
		if err != nil {
			return err
		}
		n.DocumentCount = 1
		n.MentionCount = 1
		n.AvgConfidence = ent.Confidence
		if err := e.store.UpdateKGNodeFieldsTx(ctx, tx, n); err != nil {
			return err
		}
		if _, err := e.store.CreateNodeEntityLinkTx(ctx, tx, n.ID, ent.ID, documentID, 1.0, "gemini_coreference"); err != nil {
			return err
		}
		node = n
		return nil
	})
	return node, err
}

// mergeEntityIntoNode links ent to an existing match, folding in aliases and
// recomputing aggregate stats from the link set.
func (e *Engine) mergeEntityIntoNode(ctx context.Context, node *kstore.KGNode, ent *kstore.Entity, documentID string) error {
	return e.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.store.CreateNodeEntityLinkTx(ctx, tx, node.ID, ent.ID, documentID, 1.0, "gemini_coreference"); err != nil {
			return err
		}

		aliases := unionAliases(node.AliasesJSON, ent.AliasesJSON, ent.RawText)
		aliasesJSON, _ := json.Marshal(aliases)
		node.AliasesJSON = string(aliasesJSON)

		links, err := e.store.ListLinksForNodeTx(ctx, tx, node.ID)
		if err != nil {
			return err
		}
		node.MentionCount = len(links)
		docs := make(map[string]bool)
		for _, l := range links {
			docs[l.DocumentID] = true
		}
		node.DocumentCount = len(docs)

		return e.store.UpdateKGNodeFieldsTx(ctx, tx, node)
	})
}

func unionAliases(existingJSON, incomingJSON, extra string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	var existing []string
	_ = json.Unmarshal([]byte(existingJSON), &existing)
	for _, a := range existing {
		add(a)
	}

	var incoming []string
	_ = json.Unmarshal([]byte(incomingJSON), &incoming)
	for _, a := range incoming {
		add(a)
	}

	add(extra)
	return out
}
