package kstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// NewOCRResultInput is the request shape for CreateOCRResult.
type NewOCRResultInput struct {
	DocumentID    string
	ExtractedText string
	RequestID     string
	QualityMode   QualityMode
	PageCount     int
	QualityScore  float64
	Cost          float64
	BlocksJSON    string
	ExtrasJSON    string
}

// ContentHashText is the canonical content hash over extracted OCR text,
// per testable property 13 (hash determinism).
func ContentHashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// CreateOCRResult inserts the one-per-document OCR result and its
// OCR_RESULT provenance row (parent: the document's own provenance row),
// then marks the document's status "processing".
func (s *Store) CreateOCRResult(ctx context.Context, in NewOCRResultInput) (*OCRResult, error) {
	doc, err := s.GetDocument(ctx, in.DocumentID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, IntegrityViolation("begin tx", err)
	}
	defer tx.Rollback()

	id := uuid.New().String()
	now := time.Now().UTC()
	contentHash := ContentHashText(in.ExtractedText)

	prov, err := insertProvenanceTx(ctx, tx, NewProvenanceInput{
		Type:           ProvOCRResult,
		ProcessorName:  "ocr",
		ContentHash:    contentHash,
		ParentID:       doc.ProvenanceID,
		RootDocumentID: doc.ID,
	})
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ocr_results (
			id, document_id, provenance_id, extracted_text, text_length, request_id,
			quality_mode, page_count, quality_score, cost, content_hash, blocks_json, extras_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.DocumentID, prov.ID, in.ExtractedText, len(in.ExtractedText), in.RequestID,
		in.QualityMode, in.PageCount, in.QualityScore, in.Cost, contentHash, in.BlocksJSON, in.ExtrasJSON, now,
	)
	if err != nil {
		return nil, IntegrityViolation("ocr_results insert", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE documents SET status = ?, page_count = ?, updated_at = ? WHERE id = ?`,
		DocumentProcessing, in.PageCount, now, in.DocumentID); err != nil {
		return nil, IntegrityViolation("document status to processing", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, IntegrityViolation("commit", err)
	}

	return &OCRResult{
		ID: id, DocumentID: in.DocumentID, ProvenanceID: prov.ID, ExtractedText: in.ExtractedText,
		TextLength: len(in.ExtractedText), RequestID: in.RequestID, QualityMode: in.QualityMode,
		PageCount: in.PageCount, QualityScore: in.QualityScore, Cost: in.Cost, ContentHash: contentHash,
		BlocksJSON: in.BlocksJSON, ExtrasJSON: in.ExtrasJSON, CreatedAt: now,
	}, nil
}

const ocrResultColumns = `id, document_id, provenance_id, extracted_text, text_length, request_id,
	quality_mode, page_count, quality_score, cost, content_hash, blocks_json, extras_json, created_at`

func scanOCRResult(row interface{ Scan(...any) error }) (*OCRResult, error) {
	var o OCRResult
	err := row.Scan(&o.ID, &o.DocumentID, &o.ProvenanceID, &o.ExtractedText, &o.TextLength, &o.RequestID,
		&o.QualityMode, &o.PageCount, &o.QualityScore, &o.Cost, &o.ContentHash, &o.BlocksJSON, &o.ExtrasJSON, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, NotFound("ocr_result", err)
	}
	if err != nil {
		return nil, IntegrityViolation("ocr_result scan", err)
	}
	return &o, nil
}

// GetOCRResult fetches the OCR result for a document.
func (s *Store) GetOCRResult(ctx context.Context, documentID string) (*OCRResult, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ocrResultColumns+` FROM ocr_results WHERE document_id = ?`, documentID)
	return scanOCRResult(row)
}
