package knowledgegraph

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/dan-solli/knowledgestore/pkg/kstore"
)

// storedRelationship is the wire shape pkg/extraction persists into
// extractions.extraction_json for each surviving relationship, already
// translated from the oracle's local entity ids to persisted entity ids.
// Duplicated here (rather than imported from pkg/extraction) because it is
// a storage contract, not a behavioral dependency — knowledgegraph only
// ever reads it back.
type storedRelationship struct {
	SourceEntityID   string `json:"source_entity_id"`
	TargetEntityID   string `json:"target_entity_id"`
	RelationshipType string `json:"relationship_type"`
	Confidence       float64 `json:"confidence"`
	ValidFrom        string `json:"valid_from,omitempty"`
	ValidUntil       string `json:"valid_until,omitempty"`
}

type storedExtraction struct {
	Relationships []storedRelationship `json:"relationships"`
}

// buildEdgesFromMentions replays each document's stored relationships
// against entityToNode, creating/merging edges per the §4.4 edge-creation
// rule: sort endpoints lexicographically, enforce uniqueness on (source,
// target, type), merge evidence when an edge already exists.
func (e *Engine) buildEdgesFromMentions(ctx context.Context, documentIDs []string, entityToNode map[string]string) (int, error) {
	created := 0

	for _, docID := range documentIDs {
		rows, err := e.store.DB().QueryContext(ctx, `SELECT extraction_json FROM extractions WHERE document_id = ?`, docID)
		if err != nil {
			return created, kstore.IntegrityViolation("extractions query", err)
		}

		var blobs []string
		for rows.Next() {
			var blob string
			if err := rows.Scan(&blob); err != nil {
				rows.Close()
				return created, kstore.IntegrityViolation("extractions scan", err)
			}
			blobs = append(blobs, blob)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return created, kstore.IntegrityViolation("extractions iterate", err)
		}

		for _, blob := range blobs {
			var stored storedExtraction
			if err := json.Unmarshal([]byte(blob), &stored); err != nil {
				continue // malformed legacy blob; skip rather than fail the whole build
			}

			for _, rel := range stored.Relationships {
				sourceNode, okS := entityToNode[rel.SourceEntityID]
				targetNode, okT := entityToNode[rel.TargetEntityID]
				if !okS || !okT || sourceNode == targetNode {
					continue
				}
				if !kstore.IsValidRelationshipType(kstore.RelationshipType(rel.RelationshipType)) {
					continue
				}

				didCreate, err := e.upsertEdge(ctx, sourceNode, targetNode, kstore.RelationshipType(rel.RelationshipType), docID, rel)
				if err != nil {
					return created, err
				}
				if didCreate {
					created++
				}
			}
		}
	}

	return created, nil
}

// upsertEdge creates the edge between a and b (any order) or merges into the
// existing one, enforcing the source<target lexicographic invariant.
func (e *Engine) upsertEdge(ctx context.Context, a, b string, relType kstore.RelationshipType, documentID string, rel storedRelationship) (created bool, err error) {
	source, target := a, b
	if source > target {
		source, target = target, source
	}

	existing, err := e.store.FindKGEdge(ctx, source, target, relType)
	if err != nil {
		return false, err
	}

	err = e.store.WithTx(ctx, func(tx *sql.Tx) error {
		if existing == nil {
			weight := rel.Confidence
			validFrom, validUntil := parseTemporal(rel.ValidFrom, rel.ValidUntil)
			docIDs, _ := json.Marshal([]string{documentID})
			_, err := e.store.CreateKGEdgeTx(ctx, tx, kstore.NewKGEdgeInput{
				SourceNodeID: source, TargetNodeID: target, RelationshipType: relType,
				Weight: weight, NormalizedWeight: e.NormalizedWeight(1, relType),
				EvidenceCount: 1, DocumentIDsJSON: string(docIDs),
				ValidFrom: validFrom, ValidUntil: validUntil, MetadataJSON: "{}",
				ParentProvID: "", RootDocumentID: documentID,
			})
			created = err == nil
			return err
		}

		existing.EvidenceCount++
		if rel.Confidence > existing.Weight {
			existing.Weight = rel.Confidence
		}
		existing.NormalizedWeight = e.NormalizedWeight(existing.EvidenceCount, relType)

		var docIDs []string
		_ = json.Unmarshal([]byte(existing.DocumentIDsJSON), &docIDs)
		if !contains(docIDs, documentID) {
			docIDs = append(docIDs, documentID)
			marshaled, _ := json.Marshal(docIDs)
			existing.DocumentIDsJSON = string(marshaled)
		}

		return e.store.UpdateKGEdgeTx(ctx, tx, existing)
	})
	return created, err
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
