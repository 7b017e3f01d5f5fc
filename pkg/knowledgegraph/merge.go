package knowledgegraph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dan-solli/knowledgestore/pkg/kstore"
)

// Merge folds sourceID into targetID: every link source carries is
// reassigned to target, aliases are unioned, edges are re-pointed or merged,
// and the source node is deleted. Both nodes must exist, be distinct, and
// share an entity type.
func (e *Engine) Merge(ctx context.Context, sourceID, targetID string) error {
	source, err := e.store.GetKGNode(ctx, sourceID)
	if err != nil {
		return err
	}
	target, err := e.store.GetKGNode(ctx, targetID)
	if err != nil {
		return err
	}
	if source.ID == target.ID {
		return kstore.IntegrityViolation("merge", fmt.Errorf("source and target must differ"))
	}
	if source.Type != target.Type {
		return kstore.IntegrityViolation("merge", fmt.Errorf("source type %q does not match target type %q", source.Type, target.Type))
	}

	return e.store.WithTx(ctx, func(tx *sql.Tx) error {
		// 1. Reassign links.
		if err := e.store.ReassignLinksNodeTx(ctx, tx, source.ID, target.ID); err != nil {
			return err
		}

		// 2. Union aliases + source's canonical name; drop target's own
		// canonical name from the alias set (it's now represented by the name field).
		aliases := unionAliases(target.AliasesJSON, source.AliasesJSON, source.CanonicalName)
		aliases = removeValue(aliases, target.CanonicalName)
		aliasesJSON, _ := json.Marshal(aliases)
		target.AliasesJSON = string(aliasesJSON)

		// 3. Recompute document_count/mention_count/avg_confidence from the
		// new link set.
		links, err := e.store.ListLinksForNodeTx(ctx, tx, target.ID)
		if err != nil {
			return err
		}
		target.MentionCount = len(links)
		docs := make(map[string]bool)
		var confidenceSum float64
		for _, l := range links {
			docs[l.DocumentID] = true
			confidenceSum += l.SimilarityScore
		}
		target.DocumentCount = len(docs)
		if len(links) > 0 {
			target.AvgConfidence = confidenceSum / float64(len(links))
		}

		// 4. Re-point or merge edges attached to source.
		sourceEdges, err := e.store.ListEdgesForNodeTx(ctx, tx, source.ID)
		if err != nil {
			return err
		}
		for _, edge := range sourceEdges {
			other := edge.SourceNodeID
			if other == source.ID {
				other = edge.TargetNodeID
			}

			if other == target.ID {
				if err := e.store.DeleteKGEdgeTx(ctx, tx, edge.ID); err != nil {
					return err
				}
				continue
			}

			newSource, newTarget := target.ID, other
			if newSource > newTarget {
				newSource, newTarget = newTarget, newSource
			}

			dupe, err := e.store.FindKGEdgeTx(ctx, tx, newSource, newTarget, edge.RelationshipType)
			if err != nil {
				return err
			}
			if dupe != nil && dupe.ID != edge.ID {
				if edge.Weight > dupe.Weight {
					dupe.Weight = edge.Weight
				}
				dupe.EvidenceCount += edge.EvidenceCount
				dupe.DocumentIDsJSON = unionJSONStringArrays(dupe.DocumentIDsJSON, edge.DocumentIDsJSON)
				dupe.NormalizedWeight = e.NormalizedWeight(dupe.EvidenceCount, dupe.RelationshipType)
				if err := e.store.UpdateKGEdgeTx(ctx, tx, dupe); err != nil {
					return err
				}
				if err := e.store.DeleteKGEdgeTx(ctx, tx, edge.ID); err != nil {
					return err
				}
				continue
			}

			edge.SourceNodeID, edge.TargetNodeID = newSource, newTarget
			if err := e.repointEdgeTx(ctx, tx, edge); err != nil {
				return err
			}
		}

		// 5. Recompute target's edge_count from the actual edge table.
		edgeCount, err := e.store.CountEdgesForNodeTx(ctx, tx, target.ID)
		if err != nil {
			return err
		}
		target.EdgeCount = edgeCount
		if err := e.store.UpdateKGNodeFieldsTx(ctx, tx, target); err != nil {
			return err
		}

		// 6. Delete the source node (and its links, already reassigned).
		if err := e.store.DeleteKGNodeTx(ctx, tx, source.ID); err != nil {
			return err
		}

		return nil
	})
}

// repointEdgeTx rewrites an edge's source_node_id/target_node_id in place
// with a direct UPDATE, since the store layer exposes no endpoint setter.
func (e *Engine) repointEdgeTx(ctx context.Context, tx *sql.Tx, edge *kstore.KGEdge) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE kg_edges SET source_node_id = ?, target_node_id = ? WHERE id = ?`,
		edge.SourceNodeID, edge.TargetNodeID, edge.ID); err != nil {
		return kstore.IntegrityViolation("edge repoint", err)
	}
	return nil
}

func removeValue(values []string, target string) []string {
	out := values[:0]
	for _, v := range values {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

func unionJSONStringArrays(a, b string) string {
	var av, bv []string
	_ = json.Unmarshal([]byte(a), &av)
	_ = json.Unmarshal([]byte(b), &bv)
	seen := make(map[string]bool)
	var out []string
	for _, v := range append(av, bv...) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	merged, _ := json.Marshal(out)
	return string(merged)
}
