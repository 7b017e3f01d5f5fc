package kstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// NodeEmbedding is a knowledge-graph node's vector, generated on demand from
// its canonical name and aliases and kept 1:1 with its node.
type NodeEmbedding struct {
	ID           string
	NodeID       string
	ProvenanceID string
	Vector       []float32
	Model        string
	TaskType     string
	SourceText   string
	CreatedAt    time.Time
}

const nodeEmbeddingColumns = `id, node_id, provenance_id, vector, model, task_type, source_text, created_at`

func scanNodeEmbedding(row interface{ Scan(...any) error }) (*NodeEmbedding, error) {
	var e NodeEmbedding
	var vectorBytes []byte
	err := row.Scan(&e.ID, &e.NodeID, &e.ProvenanceID, &vectorBytes, &e.Model, &e.TaskType, &e.SourceText, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, NotFound("node embedding", err)
	}
	if err != nil {
		return nil, IntegrityViolation("node embedding scan", err)
	}
	e.Vector = DeserializeVector(vectorBytes)
	return &e, nil
}

// GetNodeEmbedding returns the node's current embedding, or nil if none has
// been generated yet.
func (s *Store) GetNodeEmbedding(ctx context.Context, nodeID string) (*NodeEmbedding, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+nodeEmbeddingColumns+` FROM kg_node_embeddings WHERE node_id = ?`, nodeID)
	e, err := scanNodeEmbedding(row)
	if kerr, ok := err.(*Error); ok && kerr.Kind == KindNotFound {
		return nil, nil
	}
	return e, err
}

// UpsertNodeEmbedding replaces the node's embedding (at most one row per
// node_id, per the table's UNIQUE constraint).
func (s *Store) UpsertNodeEmbedding(ctx context.Context, node *KGNode, vector []float32, model, taskType, sourceText string) (*NodeEmbedding, error) {
	nodeProv, err := s.GetProvenance(ctx, node.ProvenanceID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, IntegrityViolation("begin tx", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	prov, err := insertProvenanceTx(ctx, tx, NewProvenanceInput{
		Type:           ProvEmbedding,
		ProcessorName:  "node_embed",
		ContentHash:    ContentHashText(sourceText),
		ParentID:       node.ProvenanceID,
		RootDocumentID: nodeProv.RootDocumentID,
	})
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM kg_node_embeddings WHERE node_id = ?`, node.ID); err != nil {
		return nil, IntegrityViolation("node embedding delete", err)
	}

	id := uuid.New().String()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO kg_node_embeddings (id, node_id, provenance_id, vector, model, task_type, source_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, node.ID, prov.ID, SerializeVector(vector), model, taskType, sourceText, now,
	); err != nil {
		return nil, IntegrityViolation("node embedding insert", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, IntegrityViolation("commit", err)
	}

	return &NodeEmbedding{
		ID: id, NodeID: node.ID, ProvenanceID: prov.ID, Vector: vector,
		Model: model, TaskType: taskType, SourceText: sourceText, CreatedAt: now,
	}, nil
}

// ListAllNodeEmbeddings returns every stored node embedding, used to rebuild
// the in-memory vector index for entity search on startup.
func (s *Store) ListAllNodeEmbeddings(ctx context.Context) ([]*NodeEmbedding, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+nodeEmbeddingColumns+` FROM kg_node_embeddings`)
	if err != nil {
		return nil, IntegrityViolation("node embeddings query", err)
	}
	defer rows.Close()

	var out []*NodeEmbedding
	for rows.Next() {
		e, err := scanNodeEmbedding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
