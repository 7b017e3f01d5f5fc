package kstore

import (
	"context"
	"database/sql"
	"fmt"
)

// VectorIndexRemover is the subset of pkg/vectorindex.Index DeleteDocument
// needs. Accepting the interface here (rather than importing vectorindex)
// keeps kstore free of a dependency on the graph/search layer, matching the
// package-boundary rule that kstore never imports its own consumers.
type VectorIndexRemover interface {
	Remove(ids []string)
}

// DeleteDocumentResult summarizes what a cascade delete removed, useful for
// logging and for the CLI's confirmation output.
type DeleteDocumentResult struct {
	EmbeddingsRemoved int
	ChunksRemoved     int
	MentionsRemoved   int
	EntitiesRemoved   int
	NodesOrphaned     int
	NodesDeleted      int
	EdgesDeleted      int
	ProvenanceDeleted int
}

// DeleteDocument removes a document and every row it roots, in the order
// required by the foreign-key graph:
//
//  1. collect embedding/chunk ids, remove the corresponding vector-index
//     entries, then delete the embeddings rows
//  2. delete entity_mentions (they reference chunks) before chunks
//  3. delete chunks, ocr_results, entities, extractions, form_fills, comparisons
//  4. delete the documents row
//  5. knowledge-graph cleanup: drop this document's node links, recompute
//     the counters of nodes that keep other links, delete nodes left with
//     no links together with their edges, and re-parent a surviving node's
//     provenance to ORPHANED_ROOT when this document was its root
//  6. delete provenance rows rooted at this document, descending chain_depth
//     so no row is removed before its children
//  7. refresh denormalized metadata counters
//
// Mentions go before chunks because entity_mentions.chunk_id references
// chunks(id) and foreign keys are enforced: deleting chunks first would
// fail with a foreign-key error instead of silently orphaning rows.
func (s *Store) DeleteDocument(ctx context.Context, vecIndex VectorIndexRemover, documentID string) (*DeleteDocumentResult, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	result := &DeleteDocumentResult{}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, IntegrityViolation("begin tx", err)
	}
	defer tx.Rollback()

	// Step 1: embeddings + vector index.
	embeddings, err := s.ListEmbeddingsForDocumentTx(ctx, tx, documentID)
	if err != nil {
		return nil, err
	}
	embeddingIDs := make([]string, 0, len(embeddings))
	chunkIDs := make([]string, 0, len(embeddings))
	for _, e := range embeddings {
		embeddingIDs = append(embeddingIDs, e.ID)
		if e.ChunkID != "" {
			chunkIDs = append(chunkIDs, e.ChunkID)
		}
	}
	if vecIndex != nil && len(embeddingIDs) > 0 {
		vecIndex.Remove(embeddingIDs)
	}
	if err := s.DeleteEmbeddingsByChunkIDs(ctx, tx, chunkIDs); err != nil {
		return nil, err
	}
	result.EmbeddingsRemoved = len(embeddingIDs)

	// Step 2: mentions before chunks.
	mentionCount, err := countRowsTx(ctx, tx, `SELECT COUNT(*) FROM entity_mentions WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entity_mentions WHERE document_id = ?`, documentID); err != nil {
		return nil, ForeignKeyViolation("entity_mentions.chunk_id", err)
	}
	result.MentionsRemoved = mentionCount

	// Step 3: chunks, ocr_results, entities, extractions, form_fills, comparisons.
	chunkCount, err := countRowsTx(ctx, tx, `SELECT COUNT(*) FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return nil, ForeignKeyViolation("chunks.document_id", err)
	}
	result.ChunksRemoved = chunkCount

	if _, err := tx.ExecContext(ctx, `DELETE FROM ocr_results WHERE document_id = ?`, documentID); err != nil {
		return nil, IntegrityViolation("ocr_results delete", err)
	}

	entityCount, err := countRowsTx(ctx, tx, `SELECT COUNT(*) FROM entities WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, err
	}

	// Knowledge-graph cleanup (step 5) must run before entities are deleted,
	// since it reads node_entity_links keyed by entity/document.
	nodesOrphaned, nodesDeleted, edgesDeleted, err := s.cleanupKnowledgeGraphForDocumentTx(ctx, tx, documentID)
	if err != nil {
		return nil, err
	}
	result.NodesOrphaned = nodesOrphaned
	result.NodesDeleted = nodesDeleted
	result.EdgesDeleted = edgesDeleted

	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE document_id = ?`, documentID); err != nil {
		return nil, ForeignKeyViolation("entities.document_id", err)
	}
	result.EntitiesRemoved = entityCount

	if _, err := tx.ExecContext(ctx, `DELETE FROM extractions WHERE document_id = ?`, documentID); err != nil {
		return nil, IntegrityViolation("extractions delete", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM form_fills WHERE document_id = ?`, documentID); err != nil {
		return nil, IntegrityViolation("form_fills delete", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM comparisons WHERE document_id = ?`, documentID); err != nil {
		return nil, IntegrityViolation("comparisons delete", err)
	}

	// Step 4: the document row itself.
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, documentID); err != nil {
		return nil, ForeignKeyViolation("documents.id", err)
	}

	// Step 6: provenance rows rooted at this document, deepest first so a
	// child is never removed while a still-referenced parent remains, then
	// the root DOCUMENT row itself.
	provRows, err := s.GetProvenanceByRootDocumentTx(ctx, tx, documentID)
	if err != nil {
		return nil, err
	}
	for i := len(provRows) - 1; i >= 0; i-- {
		if _, err := tx.ExecContext(ctx, `DELETE FROM provenance WHERE id = ?`, provRows[i].ID); err != nil {
			return nil, ForeignKeyViolation("provenance.parent_id", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM provenance WHERE id = ?`, doc.ProvenanceID); err != nil {
		return nil, ForeignKeyViolation("provenance.parent_id", err)
	}
	result.ProvenanceDeleted = len(provRows) + 1

	// Step 7: denormalized counters.
	if err := touchMetadata(ctx, tx); err != nil {
		return nil, IntegrityViolation("metadata touch", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, IntegrityViolation("commit", err)
	}
	return result, nil
}

// cleanupKnowledgeGraphForDocumentTx removes this document's contribution to
// every KGNode it linked into: link rows are dropped, document_count and
// mention_count are recomputed from the remaining links, and a node with
// zero remaining links is deleted outright (its edges go with it). A
// surviving node's provenance is re-parented to ORPHANED_ROOT when this
// document was its root; edge provenance is not re-parented.
func (s *Store) cleanupKnowledgeGraphForDocumentTx(ctx context.Context, tx *sql.Tx, documentID string) (nodesOrphaned, nodesDeleted, edgesDeleted int, err error) {
	rows, err := tx.QueryContext(ctx, `SELECT DISTINCT node_id FROM node_entity_links WHERE document_id = ?`, documentID)
	if err != nil {
		return 0, 0, 0, IntegrityViolation("affected nodes query", err)
	}
	var nodeIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, 0, 0, IntegrityViolation("affected nodes scan", err)
		}
		nodeIDs = append(nodeIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, 0, IntegrityViolation("affected nodes iterate", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM node_entity_links WHERE document_id = ?`, documentID); err != nil {
		return 0, 0, 0, IntegrityViolation("node_entity_links delete", err)
	}

	for _, nodeID := range nodeIDs {
		var remaining int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM node_entity_links WHERE node_id = ?`, nodeID).Scan(&remaining); err != nil {
			return 0, 0, 0, IntegrityViolation("remaining links count", err)
		}

		if remaining > 0 {
			var docCount int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(DISTINCT document_id) FROM node_entity_links WHERE node_id = ?`, nodeID).Scan(&docCount); err != nil {
				return 0, 0, 0, IntegrityViolation("doc count", err)
			}
			if _, err := tx.ExecContext(ctx, `UPDATE kg_nodes SET document_count = ?, mention_count = ? WHERE id = ?`, docCount, remaining, nodeID); err != nil {
				return 0, 0, 0, IntegrityViolation("node counters update", err)
			}

			var prov Provenance
			row := tx.QueryRowContext(ctx, `SELECT provenance_id FROM kg_nodes WHERE id = ?`, nodeID)
			if err := row.Scan(&prov.ID); err != nil {
				return 0, 0, 0, IntegrityViolation("node provenance lookup", err)
			}
			var rootDoc string
			if err := tx.QueryRowContext(ctx, `SELECT root_document_id FROM provenance WHERE id = ?`, prov.ID).Scan(&rootDoc); err != nil {
				return 0, 0, 0, IntegrityViolation("node provenance root lookup", err)
			}
			if rootDoc == documentID {
				if err := reparentToOrphanRootTx(ctx, tx, prov.ID); err != nil {
					return 0, 0, 0, err
				}
				nodesOrphaned++
			}
			continue
		}

		edgeRows, err := tx.QueryContext(ctx, `SELECT id, provenance_id, root_document_id FROM kg_edges e
			JOIN provenance p ON p.id = e.provenance_id
			WHERE e.source_node_id = ? OR e.target_node_id = ?`, nodeID, nodeID)
		if err != nil {
			return 0, 0, 0, IntegrityViolation("node edges query", err)
		}
		var edgeIDs []string
		for edgeRows.Next() {
			var edgeID, edgeProvID, edgeRoot string
			if err := edgeRows.Scan(&edgeID, &edgeProvID, &edgeRoot); err != nil {
				edgeRows.Close()
				return 0, 0, 0, IntegrityViolation("node edges scan", err)
			}
			edgeIDs = append(edgeIDs, edgeID)
		}
		edgeRows.Close()
		if err := edgeRows.Err(); err != nil {
			return 0, 0, 0, IntegrityViolation("node edges iterate", err)
		}

		for _, edgeID := range edgeIDs {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kg_edges WHERE id = ?`, edgeID); err != nil {
				return 0, 0, 0, IntegrityViolation("kg_edge delete", err)
			}
			edgesDeleted++
		}

		var nodeProvID string
		if err := tx.QueryRowContext(ctx, `SELECT provenance_id FROM kg_nodes WHERE id = ?`, nodeID).Scan(&nodeProvID); err != nil {
			return 0, 0, 0, IntegrityViolation("node provenance lookup", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM kg_nodes WHERE id = ?`, nodeID); err != nil {
			return 0, 0, 0, IntegrityViolation("kg_node delete", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM provenance WHERE id = ?`, nodeProvID); err != nil {
			return 0, 0, 0, IntegrityViolation("kg_node provenance delete", err)
		}
		nodesDeleted++
	}

	return nodesOrphaned, nodesDeleted, edgesDeleted, nil
}

func countRowsTx(ctx context.Context, tx *sql.Tx, query string, args ...any) (int, error) {
	var n int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, IntegrityViolation(fmt.Sprintf("count query %q", query), err)
	}
	return n, nil
}
