package kstore

import (
	"database/sql"
	"fmt"
)

// CurrentSchemaVersion is the schema version migrateToLatest converges on.
// Bumping this and appending a migration step is the only way schema
// changes ship; migrateToLatest never re-applies an already-applied step.
const CurrentSchemaVersion = 3

// migration is one forward, idempotent schema step.
type migration struct {
	version int
	name    string
	apply   func(tx *sql.Tx) error
}

var migrations = []migration{
	{version: 1, name: "initial schema", apply: migrateV1},
	{version: 2, name: "fts shadow tables and indexes", apply: migrateV2},
	{version: 3, name: "knowledge graph node embeddings", apply: migrateV3},
}

func migrateV1(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS database_metadata (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			name TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			document_count INTEGER NOT NULL DEFAULT 0,
			node_count INTEGER NOT NULL DEFAULT 0,
			edge_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS provenance (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			processor_name TEXT,
			processor_version TEXT,
			parameters_json TEXT,
			content_hash TEXT,
			input_hash TEXT,
			parent_id TEXT REFERENCES provenance(id),
			parent_ids_json TEXT,
			root_document_id TEXT NOT NULL,
			chain_depth INTEGER NOT NULL DEFAULT 0,
			chain_path TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_provenance_parent_id ON provenance(parent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_provenance_root_document_id ON provenance(root_document_id)`,

		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			file_path TEXT NOT NULL,
			file_name TEXT NOT NULL,
			file_hash TEXT NOT NULL,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			file_type TEXT,
			status TEXT NOT NULL CHECK (status IN ('pending','processing','complete','failed')),
			page_count INTEGER NOT NULL DEFAULT 0,
			provenance_id TEXT NOT NULL REFERENCES provenance(id),
			title TEXT,
			author TEXT,
			subject TEXT,
			external_ref TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_file_hash ON documents(file_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_file_path ON documents(file_path)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_provenance_id ON documents(provenance_id)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status)`,

		`CREATE TABLE IF NOT EXISTS ocr_results (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id),
			provenance_id TEXT NOT NULL REFERENCES provenance(id),
			extracted_text TEXT NOT NULL,
			text_length INTEGER NOT NULL,
			request_id TEXT,
			quality_mode TEXT NOT NULL CHECK (quality_mode IN ('fast','balanced','accurate')),
			page_count INTEGER NOT NULL DEFAULT 0,
			quality_score REAL NOT NULL DEFAULT 0,
			cost REAL NOT NULL DEFAULT 0,
			content_hash TEXT NOT NULL,
			blocks_json TEXT,
			extras_json TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ocr_results_document_id ON ocr_results(document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ocr_results_provenance_id ON ocr_results(provenance_id)`,

		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id),
			provenance_id TEXT NOT NULL REFERENCES provenance(id),
			idx INTEGER NOT NULL,
			character_start INTEGER NOT NULL,
			character_end INTEGER NOT NULL,
			page INTEGER NOT NULL DEFAULT 0,
			overlap_before INTEGER NOT NULL DEFAULT 0,
			overlap_after INTEGER NOT NULL DEFAULT 0,
			text TEXT NOT NULL,
			text_hash TEXT NOT NULL,
			embedding_status TEXT NOT NULL DEFAULT 'pending' CHECK (embedding_status IN ('pending','complete','failed')),
			created_at DATETIME NOT NULL,
			CHECK (character_start >= 0 AND character_start < character_end)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_provenance_id ON chunks(provenance_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_embedding_status ON chunks(embedding_status)`,

		`CREATE TABLE IF NOT EXISTS embeddings (
			id TEXT PRIMARY KEY,
			provenance_id TEXT NOT NULL REFERENCES provenance(id),
			chunk_id TEXT REFERENCES chunks(id),
			image_id TEXT,
			extraction_id TEXT,
			vector BLOB NOT NULL,
			model TEXT NOT NULL,
			task_type TEXT NOT NULL,
			original_text TEXT,
			created_at DATETIME NOT NULL,
			CHECK (
				(chunk_id IS NOT NULL AND image_id IS NULL AND extraction_id IS NULL) OR
				(chunk_id IS NULL AND image_id IS NOT NULL AND extraction_id IS NULL) OR
				(chunk_id IS NULL AND image_id IS NULL AND extraction_id IS NOT NULL)
			)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_embeddings_chunk_id ON embeddings(chunk_id)`,
		`CREATE INDEX IF NOT EXISTS idx_embeddings_provenance_id ON embeddings(provenance_id)`,

		`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id),
			provenance_id TEXT NOT NULL REFERENCES provenance(id),
			type TEXT NOT NULL,
			raw_text TEXT NOT NULL,
			normalized_text TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			aliases_json TEXT,
			metadata_json TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_document_id ON entities(document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_provenance_id ON entities(provenance_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_normalized_text ON entities(normalized_text)`,

		`CREATE TABLE IF NOT EXISTS entity_mentions (
			id TEXT PRIMARY KEY,
			entity_id TEXT NOT NULL REFERENCES entities(id),
			document_id TEXT NOT NULL REFERENCES documents(id),
			chunk_id TEXT REFERENCES chunks(id),
			page INTEGER NOT NULL DEFAULT 0,
			character_start INTEGER,
			character_end INTEGER,
			context_snippet TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entity_mentions_entity_id ON entity_mentions(entity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entity_mentions_document_id ON entity_mentions(document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entity_mentions_chunk_id ON entity_mentions(chunk_id)`,

		`CREATE TABLE IF NOT EXISTS kg_nodes (
			id TEXT PRIMARY KEY,
			provenance_id TEXT NOT NULL REFERENCES provenance(id),
			type TEXT NOT NULL,
			canonical_name TEXT NOT NULL,
			normalized_name TEXT NOT NULL,
			aliases_json TEXT,
			document_count INTEGER NOT NULL DEFAULT 0,
			mention_count INTEGER NOT NULL DEFAULT 0,
			edge_count INTEGER NOT NULL DEFAULT 0,
			avg_confidence REAL NOT NULL DEFAULT 0,
			importance_score REAL NOT NULL DEFAULT 0,
			metadata_json TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			last_accessed_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_kg_nodes_normalized_name ON kg_nodes(normalized_name, type)`,
		`CREATE INDEX IF NOT EXISTS idx_kg_nodes_provenance_id ON kg_nodes(provenance_id)`,

		`CREATE TABLE IF NOT EXISTS node_entity_links (
			id TEXT PRIMARY KEY,
			node_id TEXT NOT NULL REFERENCES kg_nodes(id),
			entity_id TEXT NOT NULL REFERENCES entities(id),
			document_id TEXT NOT NULL REFERENCES documents(id),
			similarity_score REAL NOT NULL DEFAULT 1.0,
			resolution_method TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_node_entity_links_node_id ON node_entity_links(node_id)`,
		`CREATE INDEX IF NOT EXISTS idx_node_entity_links_entity_id ON node_entity_links(entity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_node_entity_links_document_id ON node_entity_links(document_id)`,

		`CREATE TABLE IF NOT EXISTS kg_edges (
			id TEXT PRIMARY KEY,
			provenance_id TEXT NOT NULL REFERENCES provenance(id),
			source_node_id TEXT NOT NULL REFERENCES kg_nodes(id),
			target_node_id TEXT NOT NULL REFERENCES kg_nodes(id),
			relationship_type TEXT NOT NULL,
			weight REAL NOT NULL DEFAULT 0,
			normalized_weight REAL NOT NULL DEFAULT 0,
			evidence_count INTEGER NOT NULL DEFAULT 1,
			contradiction_count INTEGER NOT NULL DEFAULT 0,
			document_ids_json TEXT NOT NULL,
			valid_from DATETIME,
			valid_until DATETIME,
			metadata_json TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE (source_node_id, target_node_id, relationship_type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_kg_edges_source_node_id ON kg_edges(source_node_id)`,
		`CREATE INDEX IF NOT EXISTS idx_kg_edges_target_node_id ON kg_edges(target_node_id)`,
		`CREATE INDEX IF NOT EXISTS idx_kg_edges_contradiction_count ON kg_edges(contradiction_count)`,

		`CREATE TABLE IF NOT EXISTS extractions (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id),
			provenance_id TEXT NOT NULL REFERENCES provenance(id),
			extraction_json TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_extractions_document_id ON extractions(document_id)`,

		`CREATE TABLE IF NOT EXISTS form_fills (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id),
			provenance_id TEXT NOT NULL REFERENCES provenance(id),
			form_json TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_form_fills_document_id ON form_fills(document_id)`,

		`CREATE TABLE IF NOT EXISTS comparisons (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id),
			provenance_id TEXT NOT NULL REFERENCES provenance(id),
			comparison_json TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_comparisons_document_id ON comparisons(document_id)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migration v1: %w (stmt: %s)", err, stmt)
		}
	}
	return nil
}

// migrateV2 adds FTS shadow tables (abbreviated per the schema contract: one
// representative trigger set per shadow table, not the full cross product of
// INSERT/UPDATE/DELETE x every column); it creates no plain indexes.
func migrateV2(tx *sql.Tx) error {
	stmts := []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(text, content='chunks', content_rowid='rowid')`,
		`CREATE TRIGGER IF NOT EXISTS chunks_fts_ai AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunks_fts_ad AFTER DELETE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunks_fts_au AFTER UPDATE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
			INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
		END`,

		`CREATE VIRTUAL TABLE IF NOT EXISTS embeddings_fts USING fts5(original_text, content='embeddings', content_rowid='rowid')`,
		`CREATE TRIGGER IF NOT EXISTS embeddings_fts_ai AFTER INSERT ON embeddings BEGIN
			INSERT INTO embeddings_fts(rowid, original_text) VALUES (new.rowid, new.original_text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS embeddings_fts_ad AFTER DELETE ON embeddings BEGIN
			INSERT INTO embeddings_fts(embeddings_fts, rowid, original_text) VALUES ('delete', old.rowid, old.original_text);
		END`,

		`CREATE VIRTUAL TABLE IF NOT EXISTS extractions_fts USING fts5(extraction_json, content='extractions', content_rowid='rowid')`,
		`CREATE TRIGGER IF NOT EXISTS extractions_fts_ai AFTER INSERT ON extractions BEGIN
			INSERT INTO extractions_fts(rowid, extraction_json) VALUES (new.rowid, new.extraction_json);
		END`,
		`CREATE TRIGGER IF NOT EXISTS extractions_fts_ad AFTER DELETE ON extractions BEGIN
			INSERT INTO extractions_fts(extractions_fts, rowid, extraction_json) VALUES ('delete', old.rowid, old.extraction_json);
		END`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migration v2: %w (stmt: %s)", err, stmt)
		}
	}
	return nil
}

// migrateV3 adds the node-level embedding table backing semantic entity
// search: a kg_nodes row has no chunk/image/extraction of its own, so it
// cannot reuse the embeddings table's one-of-three CHECK constraint.
func migrateV3(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kg_node_embeddings (
			id TEXT PRIMARY KEY,
			node_id TEXT NOT NULL REFERENCES kg_nodes(id),
			provenance_id TEXT NOT NULL REFERENCES provenance(id),
			vector BLOB NOT NULL,
			model TEXT NOT NULL,
			task_type TEXT NOT NULL,
			source_text TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			UNIQUE (node_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_kg_node_embeddings_node_id ON kg_node_embeddings(node_id)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migration v3: %w (stmt: %s)", err, stmt)
		}
	}
	return nil
}

// requiredTables is checked by Open to surface SchemaMismatch if absent.
var requiredTables = []string{
	"database_metadata", "provenance", "documents", "ocr_results", "chunks",
	"embeddings", "entities", "entity_mentions", "kg_nodes", "node_entity_links",
	"kg_edges", "extractions", "form_fills", "comparisons", "kg_node_embeddings",
}

func tableExists(db *sql.DB, name string) bool {
	var count int
	_ = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table','view') AND name = ?", name).Scan(&count)
	return count > 0
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false
		}
		if name == column {
			return true
		}
	}
	return false
}
