package knowledgegraph

import (
	"context"
	"database/sql"

	"github.com/dan-solli/knowledgestore/pkg/kstore"
)

// PruneOptions constrains which edges Prune considers.
type PruneOptions struct {
	MinWeight         float64
	MinEvidence       int
	RelationshipTypes []kstore.RelationshipType // empty means all types
	DryRun            bool
}

// PruneTypeBreakdown is the per-type count in a PruneResult.
type PruneTypeBreakdown struct {
	RelationshipType kstore.RelationshipType
	Count            int
}

// PruneResult is the preview or outcome of a Prune call.
type PruneResult struct {
	TotalCount int
	ByType     []PruneTypeBreakdown
	Sample     []*kstore.KGEdge // at most 20 rows
	Applied    bool
}

// Prune removes edges with normalized_weight < opts.MinWeight OR
// evidence_count < opts.MinEvidence, optionally restricted to
// opts.RelationshipTypes. With DryRun set, nothing is deleted; the preview
// (count, per-type breakdown, up to 20 sample rows) is returned instead.
func (e *Engine) Prune(ctx context.Context, opts PruneOptions) (*PruneResult, error) {
	allowedTypes := toRelTypeSet(opts.RelationshipTypes)

	edges, err := e.store.ListAllKGEdges(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []*kstore.KGEdge
	byType := make(map[kstore.RelationshipType]int)
	for _, edge := range edges {
		if len(allowedTypes) > 0 && !allowedTypes[edge.RelationshipType] {
			continue
		}
		if edge.NormalizedWeight < opts.MinWeight || edge.EvidenceCount < opts.MinEvidence {
			candidates = append(candidates, edge)
			byType[edge.RelationshipType]++
		}
	}

	result := &PruneResult{TotalCount: len(candidates)}
	for relType, count := range byType {
		result.ByType = append(result.ByType, PruneTypeBreakdown{RelationshipType: relType, Count: count})
	}
	if len(candidates) > 20 {
		result.Sample = candidates[:20]
	} else {
		result.Sample = candidates
	}

	if opts.DryRun {
		return result, nil
	}

	affectedNodes := make(map[string]bool)
	err = e.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, edge := range candidates {
			affectedNodes[edge.SourceNodeID] = true
			affectedNodes[edge.TargetNodeID] = true
			if err := e.store.DeleteKGEdgeTx(ctx, tx, edge.ID); err != nil {
				return err
			}
		}
		for nodeID := range affectedNodes {
			node, err := e.store.GetKGNodeTx(ctx, tx, nodeID)
			if err != nil {
				if kerr, ok := err.(*kstore.Error); ok && kerr.Kind == kstore.KindNotFound {
					continue
				}
				return err
			}
			count, err := e.store.CountEdgesForNodeTx(ctx, tx, nodeID)
			if err != nil {
				return err
			}
			node.EdgeCount = count
			if err := e.store.UpdateKGNodeFieldsTx(ctx, tx, node); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Applied = true
	return result, nil
}

func toRelTypeSet(types []kstore.RelationshipType) map[kstore.RelationshipType]bool {
	if len(types) == 0 {
		return nil
	}
	set := make(map[kstore.RelationshipType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}
