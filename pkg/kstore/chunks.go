package kstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// NewChunkInput is one element of a BatchCreateChunks call.
type NewChunkInput struct {
	Index          int
	CharacterStart int
	CharacterEnd   int
	Page           int
	OverlapBefore  int
	OverlapAfter   int
	Text           string
}

// BatchCreateChunks inserts all chunks for a document's OCR result inside
// one transaction, each with its own CHUNK provenance row parented on the
// OCR result's provenance row. Invariant enforced here: 0 <= start < end <=
// OCRResult.TextLength (testable property 3).
func (s *Store) BatchCreateChunks(ctx context.Context, documentID string, ocr *OCRResult, inputs []NewChunkInput) ([]*Chunk, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, IntegrityViolation("begin tx", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	out := make([]*Chunk, 0, len(inputs))

	for _, in := range inputs {
		if in.CharacterStart < 0 || in.CharacterStart >= in.CharacterEnd || in.CharacterEnd > ocr.TextLength {
			return nil, IntegrityViolation("chunk character range", nil)
		}

		id := uuid.New().String()
		hashBytes := sha256.Sum256([]byte(in.Text))
		textHash := hex.EncodeToString(hashBytes[:])

		prov, err := insertProvenanceTx(ctx, tx, NewProvenanceInput{
			Type:           ProvChunk,
			ProcessorName:  "chunker",
			ContentHash:    textHash,
			ParentID:       ocr.ProvenanceID,
			RootDocumentID: documentID,
		})
		if err != nil {
			return nil, err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO chunks (
				id, document_id, provenance_id, idx, character_start, character_end, page,
				overlap_before, overlap_after, text, text_hash, embedding_status, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, documentID, prov.ID, in.Index, in.CharacterStart, in.CharacterEnd, in.Page,
			in.OverlapBefore, in.OverlapAfter, in.Text, textHash, EmbeddingPending, now,
		)
		if err != nil {
			return nil, IntegrityViolation("chunks insert", err)
		}

		out = append(out, &Chunk{
			ID: id, DocumentID: documentID, ProvenanceID: prov.ID, Index: in.Index,
			CharacterStart: in.CharacterStart, CharacterEnd: in.CharacterEnd, Page: in.Page,
			OverlapBefore: in.OverlapBefore, OverlapAfter: in.OverlapAfter, Text: in.Text,
			TextHash: textHash, EmbeddingStatus: EmbeddingPending, CreatedAt: now,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, IntegrityViolation("commit", err)
	}
	return out, nil
}

const chunkColumns = `id, document_id, provenance_id, idx, character_start, character_end, page,
	overlap_before, overlap_after, text, text_hash, embedding_status, created_at`

func scanChunk(row interface{ Scan(...any) error }) (*Chunk, error) {
	var c Chunk
	err := row.Scan(&c.ID, &c.DocumentID, &c.ProvenanceID, &c.Index, &c.CharacterStart, &c.CharacterEnd, &c.Page,
		&c.OverlapBefore, &c.OverlapAfter, &c.Text, &c.TextHash, &c.EmbeddingStatus, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, NotFound("chunk", err)
	}
	if err != nil {
		return nil, IntegrityViolation("chunk scan", err)
	}
	return &c, nil
}

// ListChunks returns a document's chunks ordered by index.
func (s *Store) ListChunks(ctx context.Context, documentID string) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE document_id = ? ORDER BY idx ASC`, documentID)
	if err != nil {
		return nil, IntegrityViolation("chunks list", err)
	}
	defer rows.Close()

	var out []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetChunk fetches a single chunk by id.
func (s *Store) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)
	return scanChunk(row)
}

// FindChunkByOffset locates the chunk whose half-open range contains start,
// using the start-position containment rule the mention-mapping step relies
// on (§4.3 post-processing step 6).
func (s *Store) FindChunkByOffset(ctx context.Context, documentID string, start int) (*Chunk, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks
		WHERE document_id = ? AND character_start <= ? AND ? < character_end
		ORDER BY idx ASC LIMIT 1`, documentID, start, start)
	c, err := scanChunk(row)
	if err != nil {
		if kerr, ok := err.(*Error); ok && kerr.Kind == KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// ListPendingEmbeddingChunks returns chunks still awaiting an embedding.
func (s *Store) ListPendingEmbeddingChunks(ctx context.Context, documentID string) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks
		WHERE document_id = ? AND embedding_status = ? ORDER BY idx ASC`, documentID, EmbeddingPending)
	if err != nil {
		return nil, IntegrityViolation("pending chunks list", err)
	}
	defer rows.Close()

	var out []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateChunkEmbeddingStatus transitions a chunk's embedding lifecycle.
func (s *Store) UpdateChunkEmbeddingStatus(ctx context.Context, id string, status EmbeddingStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE chunks SET embedding_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return IntegrityViolation("chunk embedding status update", err)
	}
	return nil
}
