package kstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Comparison is a persisted cross-document comparison summary (e.g. the
// output of an earlier witness-analysis pass), replayed as prior context the
// next time the composer runs for a related document.
type Comparison struct {
	ID             string
	DocumentID     string
	ProvenanceID   string
	ComparisonJSON string
	CreatedAt      time.Time
}

// CreateComparison persists one comparison result with a COMPARISON
// provenance row parented on the document's own provenance.
func (s *Store) CreateComparison(ctx context.Context, documentID, parentProvID, comparisonJSON string) (*Comparison, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, IntegrityViolation("begin tx", err)
	}
	defer tx.Rollback()

	id := uuid.New().String()
	now := time.Now().UTC()

	prov, err := insertProvenanceTx(ctx, tx, NewProvenanceInput{
		Type:           ProvComparison,
		ProcessorName:  "witness_composer",
		ContentHash:    ContentHashText(comparisonJSON),
		ParentID:       parentProvID,
		RootDocumentID: documentID,
	})
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO comparisons (id, document_id, provenance_id, comparison_json, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, documentID, prov.ID, comparisonJSON, now,
	)
	if err != nil {
		return nil, IntegrityViolation("comparisons insert", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, IntegrityViolation("commit", err)
	}

	return &Comparison{ID: id, DocumentID: documentID, ProvenanceID: prov.ID, ComparisonJSON: comparisonJSON, CreatedAt: now}, nil
}

const comparisonColumns = `id, document_id, provenance_id, comparison_json, created_at`

func scanComparison(row interface{ Scan(...any) error }) (*Comparison, error) {
	var c Comparison
	err := row.Scan(&c.ID, &c.DocumentID, &c.ProvenanceID, &c.ComparisonJSON, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, NotFound("comparison", err)
	}
	if err != nil {
		return nil, IntegrityViolation("comparison scan", err)
	}
	return &c, nil
}

// ListComparisonsForDocument returns prior comparison summaries for a
// document, most recent last.
func (s *Store) ListComparisonsForDocument(ctx context.Context, documentID string) ([]*Comparison, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+comparisonColumns+` FROM comparisons WHERE document_id = ? ORDER BY created_at ASC`, documentID)
	if err != nil {
		return nil, IntegrityViolation("comparisons list", err)
	}
	defer rows.Close()

	var out []*Comparison
	for rows.Next() {
		c, err := scanComparison(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
