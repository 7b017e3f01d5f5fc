package knowledgegraph

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"

	"github.com/dan-solli/knowledgestore/pkg/kstore"
)

// NormalizedWeight computes normalized_weight = ln(1+evidence_count) *
// type_multiplier[relationship_type], with e's own TypeMultipliers override
// taking precedence over kstore.DefaultTypeMultipliers.
func (e *Engine) NormalizedWeight(evidenceCount int, relType kstore.RelationshipType) float64 {
	return math.Log(1+float64(evidenceCount)) * e.typeMultiplier(relType)
}

// RenormalizeEdges recomputes normalized_weight for every edge, optionally
// scoped to edges whose document_ids intersects documentIDs (empty means
// all edges).
func (e *Engine) RenormalizeEdges(ctx context.Context, documentIDs []string) (int, error) {
	edges, err := e.store.ListAllKGEdges(ctx)
	if err != nil {
		return 0, err
	}

	scope := toSet(documentIDs)
	updated := 0

	err = e.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, edge := range edges {
			if len(scope) > 0 {
				var docIDs []string
				if edge.DocumentIDsJSON != "" {
					_ = json.Unmarshal([]byte(edge.DocumentIDsJSON), &docIDs)
				}
				if !intersects(scope, docIDs) {
					continue
				}
			}

			edge.NormalizedWeight = e.NormalizedWeight(edge.EvidenceCount, edge.RelationshipType)
			if err := e.store.UpdateKGEdgeTx(ctx, tx, edge); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func intersects(set map[string]bool, values []string) bool {
	for _, v := range values {
		if set[v] {
			return true
		}
	}
	return false
}
