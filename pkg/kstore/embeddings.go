package kstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// SerializeVector packs a float32 vector as a little-endian byte blob, the
// same on-disk representation the teacher's graph store used for node
// embeddings, generalized here to back chunk/image/extraction embeddings.
func SerializeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DeserializeVector unpacks SerializeVector's output.
func DeserializeVector(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// NewEmbeddingInput is one element of BatchCreateEmbeddings. Exactly one of
// ChunkID, ImageID, ExtractionID must be set.
type NewEmbeddingInput struct {
	ChunkID      string
	ImageID      string
	ExtractionID string
	Vector       []float32
	Model        string
	TaskType     string
	OriginalText string
}

func (in NewEmbeddingInput) sourceCount() int {
	n := 0
	if in.ChunkID != "" {
		n++
	}
	if in.ImageID != "" {
		n++
	}
	if in.ExtractionID != "" {
		n++
	}
	return n
}

// BatchCreateEmbeddings inserts a batch of embeddings in one transaction.
// Each row gets its own EMBEDDING provenance row; chunk-backed embeddings
// are parented on the chunk's own provenance row and flip the chunk's
// embedding_status to complete in the same transaction.
func (s *Store) BatchCreateEmbeddings(ctx context.Context, documentID string, inputs []NewEmbeddingInput) ([]*Embedding, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, IntegrityViolation("begin tx", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	out := make([]*Embedding, 0, len(inputs))

	for _, in := range inputs {
		if in.sourceCount() != 1 {
			return nil, IntegrityViolation("embedding source", fmt.Errorf("exactly one of chunk_id/image_id/extraction_id must be set"))
		}

		parentProvID := ""
		if in.ChunkID != "" {
			var chunkProvID string
			if err := tx.QueryRowContext(ctx, `SELECT provenance_id FROM chunks WHERE id = ?`, in.ChunkID).Scan(&chunkProvID); err != nil {
				if err == sql.ErrNoRows {
					return nil, ForeignKeyViolation("chunk_id", fmt.Errorf("chunk %q does not exist", in.ChunkID))
				}
				return nil, IntegrityViolation("chunk provenance lookup", err)
			}
			parentProvID = chunkProvID
		}

		id := uuid.New().String()
		prov, err := insertProvenanceTx(ctx, tx, NewProvenanceInput{
			Type:           ProvEmbedding,
			ProcessorName:  "embed",
			ContentHash:    ContentHashText(in.OriginalText),
			ParentID:       parentProvID,
			RootDocumentID: documentID,
		})
		if err != nil {
			return nil, err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO embeddings (
				id, provenance_id, chunk_id, image_id, extraction_id, vector, model, task_type, original_text, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, prov.ID, nullable(in.ChunkID), nullable(in.ImageID), nullable(in.ExtractionID),
			SerializeVector(in.Vector), in.Model, in.TaskType, in.OriginalText, now,
		)
		if err != nil {
			return nil, IntegrityViolation("embeddings insert", err)
		}

		if in.ChunkID != "" {
			if _, err := tx.ExecContext(ctx, `UPDATE chunks SET embedding_status = ? WHERE id = ?`, EmbeddingComplete, in.ChunkID); err != nil {
				return nil, IntegrityViolation("chunk embedding status flip", err)
			}
		}

		out = append(out, &Embedding{
			ID: id, ProvenanceID: prov.ID, ChunkID: in.ChunkID, ImageID: in.ImageID, ExtractionID: in.ExtractionID,
			Vector: in.Vector, Model: in.Model, TaskType: in.TaskType, OriginalText: in.OriginalText, CreatedAt: now,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, IntegrityViolation("commit", err)
	}
	return out, nil
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

const embeddingColumns = `id, provenance_id, chunk_id, image_id, extraction_id, vector, model, task_type, original_text, created_at`

func scanEmbedding(row interface{ Scan(...any) error }) (*Embedding, error) {
	var e Embedding
	var chunkID, imageID, extractionID sql.NullString
	var vectorBytes []byte
	err := row.Scan(&e.ID, &e.ProvenanceID, &chunkID, &imageID, &extractionID, &vectorBytes, &e.Model, &e.TaskType, &e.OriginalText, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, NotFound("embedding", err)
	}
	if err != nil {
		return nil, IntegrityViolation("embedding scan", err)
	}
	e.ChunkID = chunkID.String
	e.ImageID = imageID.String
	e.ExtractionID = extractionID.String
	e.Vector = DeserializeVector(vectorBytes)
	return &e, nil
}

// GetEmbeddingByChunk fetches the embedding for a chunk, if any.
func (s *Store) GetEmbeddingByChunk(ctx context.Context, chunkID string) (*Embedding, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+embeddingColumns+` FROM embeddings WHERE chunk_id = ?`, chunkID)
	return scanEmbedding(row)
}

// ListEmbeddingsForDocument returns every embedding whose chunk belongs to
// the given document (used by cascade delete to collect ids for the vector
// index before the SQL rows are removed).
func (s *Store) ListEmbeddingsForDocument(ctx context.Context, documentID string) ([]*Embedding, error) {
	return listEmbeddingsForDocument(ctx, s.db, documentID)
}

// ListEmbeddingsForDocumentTx is ListEmbeddingsForDocument run inside an
// existing transaction (cascade delete holds its own tx open throughout).
func (s *Store) ListEmbeddingsForDocumentTx(ctx context.Context, tx *sql.Tx, documentID string) ([]*Embedding, error) {
	return listEmbeddingsForDocument(ctx, tx, documentID)
}

func listEmbeddingsForDocument(ctx context.Context, q querier, documentID string) ([]*Embedding, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+embeddingColumnsPrefixed()+` FROM embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		WHERE c.document_id = ?`, documentID)
	if err != nil {
		return nil, IntegrityViolation("embeddings for document query", err)
	}
	defer rows.Close()

	var out []*Embedding
	for rows.Next() {
		e, err := scanEmbedding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func embeddingColumnsPrefixed() string {
	return "e.id, e.provenance_id, e.chunk_id, e.image_id, e.extraction_id, e.vector, e.model, e.task_type, e.original_text, e.created_at"
}

// DeleteEmbeddingsByChunkIDs removes embedding rows for the given chunk ids.
// Callers must remove the matching vector-index entries first/alongside,
// per the 1:1 invariant between embeddings rows and vector index rows.
func (s *Store) DeleteEmbeddingsByChunkIDs(ctx context.Context, tx *sql.Tx, chunkIDs []string) error {
	for _, id := range chunkIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE chunk_id = ?`, id); err != nil {
			return IntegrityViolation("embeddings delete", err)
		}
	}
	return nil
}
