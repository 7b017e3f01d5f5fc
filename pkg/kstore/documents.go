package kstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// NewDocumentInput is the request shape for CreateDocument.
type NewDocumentInput struct {
	FilePath    string
	FileName    string
	FileHash    string
	SizeBytes   int64
	FileType    string
	Title       string
	Author      string
	Subject     string
	ExternalRef string
}

// CreateDocument inserts a Document plus its root DOCUMENT provenance row,
// in one transaction. Status starts at "pending".
func (s *Store) CreateDocument(ctx context.Context, in NewDocumentInput) (*Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, IntegrityViolation("begin tx", err)
	}
	defer tx.Rollback()

	id := uuid.New().String()
	now := time.Now().UTC()

	prov, err := insertProvenanceTx(ctx, tx, NewProvenanceInput{
		Type:           ProvDocument,
		ProcessorName:  "ingest",
		ContentHash:    in.FileHash,
		RootDocumentID: id,
	})
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (
			id, file_path, file_name, file_hash, size_bytes, file_type, status,
			page_count, provenance_id, title, author, subject, external_ref, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.FilePath, in.FileName, in.FileHash, in.SizeBytes, in.FileType, DocumentPending,
		prov.ID, in.Title, in.Author, in.Subject, in.ExternalRef, now, now,
	)
	if err != nil {
		return nil, IntegrityViolation("documents insert", err)
	}

	if err := touchMetadata(ctx, tx); err != nil {
		return nil, IntegrityViolation("metadata touch", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, IntegrityViolation("commit", err)
	}

	return &Document{
		ID: id, FilePath: in.FilePath, FileName: in.FileName, FileHash: in.FileHash,
		SizeBytes: in.SizeBytes, FileType: in.FileType, Status: DocumentPending,
		ProvenanceID: prov.ID, Title: in.Title, Author: in.Author, Subject: in.Subject,
		ExternalRef: in.ExternalRef, CreatedAt: now, UpdatedAt: now,
	}, nil
}

const documentColumns = `id, file_path, file_name, file_hash, size_bytes, file_type, status,
	page_count, provenance_id, title, author, subject, external_ref, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.FilePath, &d.FileName, &d.FileHash, &d.SizeBytes, &d.FileType, &d.Status,
		&d.PageCount, &d.ProvenanceID, &d.Title, &d.Author, &d.Subject, &d.ExternalRef, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, NotFound("document", err)
	}
	if err != nil {
		return nil, IntegrityViolation("document scan", err)
	}
	return &d, nil
}

// GetDocument fetches a Document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// GetDocumentByHash fetches a Document by its raw-byte content hash, used by
// the ingestion watcher to skip files it has already processed.
func (s *Store) GetDocumentByHash(ctx context.Context, hash string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE file_hash = ? ORDER BY created_at DESC LIMIT 1`, hash)
	return scanDocument(row)
}

// ListDocumentsFilter constrains ListDocuments.
type ListDocumentsFilter struct {
	Status DocumentStatus // "" means any
	Limit  int            // 0 means no limit
}

// ListDocuments lists documents optionally filtered by status.
func (s *Store) ListDocuments(ctx context.Context, filter ListDocumentsFilter) ([]*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, IntegrityViolation("documents list", err)
	}
	defer rows.Close()

	var out []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateDocumentStatus applies one of the two permitted monotone
// transitions out of "processing" (to "complete" or "failed"), or moves
// "pending" to "processing". Any other transition is rejected as
// IntegrityViolation.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id string, next DocumentStatus) error {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return err
	}

	allowed := map[DocumentStatus][]DocumentStatus{
		DocumentPending:    {DocumentProcessing},
		DocumentProcessing: {DocumentComplete, DocumentFailed},
	}
	ok := false
	for _, candidate := range allowed[doc.Status] {
		if candidate == next {
			ok = true
			break
		}
	}
	if !ok {
		return IntegrityViolation("document status transition", nil)
	}

	_, err = s.db.ExecContext(ctx, `UPDATE documents SET status = ?, updated_at = ? WHERE id = ?`, next, time.Now().UTC(), id)
	if err != nil {
		return IntegrityViolation("document status update", err)
	}
	return nil
}

// UpdateDocumentPageCount sets the page count once known (e.g. after OCR).
func (s *Store) UpdateDocumentPageCount(ctx context.Context, id string, pageCount int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE documents SET page_count = ?, updated_at = ? WHERE id = ?`, pageCount, time.Now().UTC(), id)
	if err != nil {
		return IntegrityViolation("document page count update", err)
	}
	return nil
}
