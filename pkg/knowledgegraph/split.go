package knowledgegraph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dan-solli/knowledgestore/pkg/kstore"
)

// SplitResult is the outcome of a successful Split.
type SplitResult struct {
	NewNodeID string
}

// Split moves the given entity ids off node onto a newly created node whose
// canonical/normalized name come from the highest-confidence moved entity.
// Preconditions: node exists, every entity id is currently linked to node,
// and at least one link must remain on node afterward.
func (e *Engine) Split(ctx context.Context, nodeID string, entityIDs []string) (*SplitResult, error) {
	if len(entityIDs) == 0 {
		return nil, kstore.IntegrityViolation("split", fmt.Errorf("no entity ids given"))
	}

	node, err := e.store.GetKGNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	links, err := e.store.ListLinksForNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	moveSet := toSet(entityIDs)
	var moving []*kstore.NodeEntityLink
	for _, l := range links {
		if moveSet[l.EntityID] {
			moving = append(moving, l)
		}
	}
	if len(moving) != len(entityIDs) {
		return nil, kstore.IntegrityViolation("split", fmt.Errorf("not every entity id is linked to node %q", nodeID))
	}
	if len(moving) == len(links) {
		return nil, kstore.IntegrityViolation("split", fmt.Errorf("split must leave at least one link on the original node"))
	}

	var bestEntity *kstore.Entity
	for _, l := range moving {
		ent, err := e.getEntity(ctx, l.EntityID)
		if err != nil {
			return nil, err
		}
		if bestEntity == nil || ent.Confidence > bestEntity.Confidence {
			bestEntity = ent
		}
	}

	result := &SplitResult{}
	err = e.store.WithTx(ctx, func(tx *sql.Tx) error {
		meta, _ := json.Marshal(map[string]any{"split_from": node.ID})
		newNode, err := e.store.CreateKGNode(ctx, tx, kstore.NewKGNodeInput{
			Type: node.Type, CanonicalName: bestEntity.RawText, NormalizedName: bestEntity.NormalizedText,
			AliasesJSON: "[]", MetadataJSON: string(meta), ParentProvID: node.ProvenanceID, RootDocumentID: bestEntity.DocumentID,
		})
		if err != nil {
			return err
		}

		linkIDs := make([]string, len(moving))
		for i, l := range moving {
			linkIDs[i] = l.ID
		}
		if err := e.store.MoveLinksTx(ctx, tx, linkIDs, newNode.ID); err != nil {
			return err
		}

		if err := e.recomputeNodeStatsTx(ctx, tx, node); err != nil {
			return err
		}
		if err := e.recomputeNodeStatsTx(ctx, tx, newNode); err != nil {
			return err
		}

		result.NewNodeID = newNode.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) recomputeNodeStatsTx(ctx context.Context, tx *sql.Tx, node *kstore.KGNode) error {
	links, err := e.store.ListLinksForNodeTx(ctx, tx, node.ID)
	if err != nil {
		return err
	}
	node.MentionCount = len(links)
	docs := make(map[string]bool)
	var confidenceSum float64
	for _, l := range links {
		docs[l.DocumentID] = true
		confidenceSum += l.SimilarityScore
	}
	node.DocumentCount = len(docs)
	if len(links) > 0 {
		node.AvgConfidence = confidenceSum / float64(len(links))
	}
	edgeCount, err := e.store.CountEdgesForNodeTx(ctx, tx, node.ID)
	if err != nil {
		return err
	}
	node.EdgeCount = edgeCount
	return e.store.UpdateKGNodeFieldsTx(ctx, tx, node)
}

func (e *Engine) getEntity(ctx context.Context, entityID string) (*kstore.Entity, error) {
	row := e.store.DB().QueryRowContext(ctx, `SELECT id, document_id, provenance_id, type, raw_text, normalized_text, confidence, aliases_json, metadata_json, created_at FROM entities WHERE id = ?`, entityID)
	var ent kstore.Entity
	if err := row.Scan(&ent.ID, &ent.DocumentID, &ent.ProvenanceID, &ent.Type, &ent.RawText, &ent.NormalizedText, &ent.Confidence, &ent.AliasesJSON, &ent.MetadataJSON, &ent.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, kstore.NotFound("entity", err)
		}
		return nil, kstore.IntegrityViolation("entity lookup", err)
	}
	return &ent, nil
}
