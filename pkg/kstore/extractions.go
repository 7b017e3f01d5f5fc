package kstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Extraction is one persisted LLM-oracle extraction pass over a document.
// extraction_json holds the wire shape pkg/extraction and pkg/knowledgegraph
// both understand (surviving relationships, already translated from the
// oracle's local entity ids to this document's persisted entity ids); it is
// a storage contract the knowledge-graph engine replays to build edges.
type Extraction struct {
	ID             string
	DocumentID     string
	ProvenanceID   string
	ExtractionJSON string
	CreatedAt      time.Time
}

// CreateExtraction inserts one EXTRACTION provenance row and its extraction
// row. parentProvID is normally the document's OCR-result provenance id,
// matching entities extracted from the same pass.
func (s *Store) CreateExtraction(ctx context.Context, documentID, parentProvID, extractionJSON string) (*Extraction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, IntegrityViolation("begin tx", err)
	}
	defer tx.Rollback()

	id := uuid.New().String()
	now := time.Now().UTC()

	prov, err := insertProvenanceTx(ctx, tx, NewProvenanceInput{
		Type:           ProvExtraction,
		ProcessorName:  "extraction",
		ContentHash:    ContentHashText(extractionJSON),
		ParentID:       parentProvID,
		RootDocumentID: documentID,
	})
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO extractions (id, document_id, provenance_id, extraction_json, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, documentID, prov.ID, extractionJSON, now,
	)
	if err != nil {
		return nil, IntegrityViolation("extractions insert", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, IntegrityViolation("commit", err)
	}

	return &Extraction{ID: id, DocumentID: documentID, ProvenanceID: prov.ID, ExtractionJSON: extractionJSON, CreatedAt: now}, nil
}

const extractionColumns = `id, document_id, provenance_id, extraction_json, created_at`

func scanExtraction(row interface{ Scan(...any) error }) (*Extraction, error) {
	var e Extraction
	err := row.Scan(&e.ID, &e.DocumentID, &e.ProvenanceID, &e.ExtractionJSON, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, NotFound("extraction", err)
	}
	if err != nil {
		return nil, IntegrityViolation("extraction scan", err)
	}
	return &e, nil
}

// ListExtractionsForDocument returns a document's extraction passes, oldest
// first, used by the knowledge-graph builder and the witness composer.
func (s *Store) ListExtractionsForDocument(ctx context.Context, documentID string) ([]*Extraction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+extractionColumns+` FROM extractions WHERE document_id = ? ORDER BY created_at ASC`, documentID)
	if err != nil {
		return nil, IntegrityViolation("extractions list", err)
	}
	defer rows.Close()

	var out []*Extraction
	for rows.Next() {
		e, err := scanExtraction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
