package kstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewEntityInput is the request shape for CreateEntity.
type NewEntityInput struct {
	DocumentID     string
	Type           EntityType
	RawText        string
	NormalizedText string
	Confidence     float64
	AliasesJSON    string
	MetadataJSON   string
	ParentProvID   string // the OCR result's provenance id this extraction descends from
}

// CreateEntity inserts one Entity row plus an ENTITY_EXTRACTION provenance
// row. Unknown entity types are rejected at write time (global invariant 4).
func (s *Store) CreateEntity(ctx context.Context, in NewEntityInput) (*Entity, error) {
	if !IsValidEntityType(in.Type) {
		return nil, IntegrityViolation("entity.type", fmt.Errorf("unknown entity type %q", in.Type))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, IntegrityViolation("begin tx", err)
	}
	defer tx.Rollback()

	e, err := s.createEntityTx(ctx, tx, in)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, IntegrityViolation("commit", err)
	}
	return e, nil
}

func (s *Store) createEntityTx(ctx context.Context, tx *sql.Tx, in NewEntityInput) (*Entity, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	prov, err := insertProvenanceTx(ctx, tx, NewProvenanceInput{
		Type:           ProvEntityExtraction,
		ProcessorName:  "extraction",
		ContentHash:    ContentHashText(in.NormalizedText),
		ParentID:       in.ParentProvID,
		RootDocumentID: in.DocumentID,
	})
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (
			id, document_id, provenance_id, type, raw_text, normalized_text, confidence, aliases_json, metadata_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.DocumentID, prov.ID, in.Type, in.RawText, in.NormalizedText, in.Confidence, in.AliasesJSON, in.MetadataJSON, now,
	)
	if err != nil {
		return nil, IntegrityViolation("entities insert", err)
	}

	return &Entity{
		ID: id, DocumentID: in.DocumentID, ProvenanceID: prov.ID, Type: in.Type, RawText: in.RawText,
		NormalizedText: in.NormalizedText, Confidence: in.Confidence, AliasesJSON: in.AliasesJSON,
		MetadataJSON: in.MetadataJSON, CreatedAt: now,
	}, nil
}

const entityColumns = `id, document_id, provenance_id, type, raw_text, normalized_text, confidence, aliases_json, metadata_json, created_at`

func scanEntity(row interface{ Scan(...any) error }) (*Entity, error) {
	var e Entity
	err := row.Scan(&e.ID, &e.DocumentID, &e.ProvenanceID, &e.Type, &e.RawText, &e.NormalizedText, &e.Confidence, &e.AliasesJSON, &e.MetadataJSON, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, NotFound("entity", err)
	}
	if err != nil {
		return nil, IntegrityViolation("entity scan", err)
	}
	return &e, nil
}

// ListEntitiesForDocument returns every entity extracted from a document.
func (s *Store) ListEntitiesForDocument(ctx context.Context, documentID string) ([]*Entity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE document_id = ? ORDER BY created_at ASC`, documentID)
	if err != nil {
		return nil, IntegrityViolation("entities list", err)
	}
	defer rows.Close()

	var out []*Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteEntitiesForDocument removes all entities and their mentions for a
// document. Extraction idempotence requires this runs before re-extracting
// (§4.3): re-running extraction never leaves stale mentions behind.
func (s *Store) DeleteEntitiesForDocument(ctx context.Context, documentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return IntegrityViolation("begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entity_mentions WHERE document_id = ?`, documentID); err != nil {
		return IntegrityViolation("entity_mentions delete", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE document_id = ?`, documentID); err != nil {
		return IntegrityViolation("entities delete", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM extractions WHERE document_id = ?`, documentID); err != nil {
		return IntegrityViolation("extractions delete", err)
	}

	return tx.Commit()
}

// NewMentionInput is the request shape for CreateMention.
type NewMentionInput struct {
	EntityID       string
	DocumentID     string
	ChunkID        string // "" when position unknown (fallback mention)
	Page           int
	CharacterStart *int
	CharacterEnd   *int
	ContextSnippet string
}

// CreateMention inserts one EntityMention row. Mentions must never be
// inserted before their owning entity and chunk (enforced by FK; see
// testable scenario S4).
func (s *Store) CreateMention(ctx context.Context, in NewMentionInput) (*EntityMention, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	var start, end sql.NullInt64
	if in.CharacterStart != nil {
		start = sql.NullInt64{Int64: int64(*in.CharacterStart), Valid: true}
	}
	if in.CharacterEnd != nil {
		end = sql.NullInt64{Int64: int64(*in.CharacterEnd), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entity_mentions (
			id, entity_id, document_id, chunk_id, page, character_start, character_end, context_snippet, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.EntityID, in.DocumentID, nullable(in.ChunkID), in.Page, start, end, in.ContextSnippet, now,
	)
	if err != nil {
		return nil, IntegrityViolation("entity_mentions insert", err)
	}

	return &EntityMention{
		ID: id, EntityID: in.EntityID, DocumentID: in.DocumentID, ChunkID: in.ChunkID, Page: in.Page,
		ContextSnippet: in.ContextSnippet, CreatedAt: now,
	}, nil
}

const mentionColumns = `id, entity_id, document_id, chunk_id, page, character_start, character_end, context_snippet, created_at`

func scanMention(row interface{ Scan(...any) error }) (*EntityMention, error) {
	var m EntityMention
	var chunkID sql.NullString
	var start, end sql.NullInt64
	err := row.Scan(&m.ID, &m.EntityID, &m.DocumentID, &chunkID, &m.Page, &start, &end, &m.ContextSnippet, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, NotFound("entity_mention", err)
	}
	if err != nil {
		return nil, IntegrityViolation("mention scan", err)
	}
	m.ChunkID = chunkID.String
	if start.Valid {
		m.CharacterStart = int(start.Int64)
	}
	if end.Valid {
		m.CharacterEnd = int(end.Int64)
	}
	return &m, nil
}

// ListMentionsForEntity returns every mention of one entity.
func (s *Store) ListMentionsForEntity(ctx context.Context, entityID string) ([]*EntityMention, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+mentionColumns+` FROM entity_mentions WHERE entity_id = ? ORDER BY character_start ASC`, entityID)
	if err != nil {
		return nil, IntegrityViolation("mentions list", err)
	}
	defer rows.Close()

	var out []*EntityMention
	for rows.Next() {
		m, err := scanMention(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListDateEntities returns all date-typed entities, optionally restricted to
// a set of document ids, for the timeline query surface.
func (s *Store) ListDateEntities(ctx context.Context, documentIDs []string) ([]*Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE type = ?`
	args := []any{EntityDate}
	if len(documentIDs) > 0 {
		placeholders, extra := inClause(documentIDs)
		query += ` AND document_id IN (` + placeholders + `)`
		args = append(args, extra...)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, IntegrityViolation("date entities list", err)
	}
	defer rows.Close()

	var out []*Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SearchEntitiesByText performs a normalized LIKE match across entities,
// optionally filtered by type and document ids (the text half of the
// entity-search query surface; KG enrichment is layered on by the
// knowledgegraph package).
func (s *Store) SearchEntitiesByText(ctx context.Context, query string, entityType EntityType, documentIDs []string) ([]*Entity, error) {
	sqlQuery := `SELECT ` + entityColumns + ` FROM entities WHERE normalized_text LIKE ?`
	args := []any{"%" + query + "%"}
	if entityType != "" {
		sqlQuery += ` AND type = ?`
		args = append(args, entityType)
	}
	if len(documentIDs) > 0 {
		placeholders, extra := inClause(documentIDs)
		sqlQuery += ` AND document_id IN (` + placeholders + `)`
		args = append(args, extra...)
	}
	sqlQuery += ` ORDER BY confidence DESC`

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, IntegrityViolation("entity text search", err)
	}
	defer rows.Close()

	var out []*Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func inClause(values []string) (string, []any) {
	placeholders := ""
	args := make([]any, len(values))
	for i, v := range values {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = v
	}
	return placeholders, args
}
