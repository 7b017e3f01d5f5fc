package kstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewProvenanceInput is the request shape for inserting one DAG node.
// Every write that produces a durable artifact inserts one of these first.
type NewProvenanceInput struct {
	Type             ProvenanceType
	ProcessorName    string
	ProcessorVersion string
	Parameters       map[string]any
	ContentHash      string
	InputHash        string
	ParentID         string   // "" for a root (DOCUMENT) provenance row
	ExtraParentIDs   []string // additional parents beyond ParentID, for merge-style provenance
	RootDocumentID   string   // required; the root of the chain this row belongs to
}

// insertProvenanceTx inserts one provenance row inside tx, computing
// chain_depth/chain_path/parent_ids from the parent chain. Provenance rows
// are immutable after insert except for the orphan root_document_id
// re-parenting performed by cascade delete / document cleanup.
func insertProvenanceTx(ctx context.Context, tx *sql.Tx, in NewProvenanceInput) (*Provenance, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	depth := 0
	path := []string{id}

	if in.ParentID != "" {
		var parentDepth int
		var parentPathJSON string
		err := tx.QueryRowContext(ctx, `SELECT chain_depth, chain_path FROM provenance WHERE id = ?`, in.ParentID).
			Scan(&parentDepth, &parentPathJSON)
		if err == sql.ErrNoRows {
			return nil, ForeignKeyViolation("parent_id", fmt.Errorf("provenance parent %q does not exist", in.ParentID))
		}
		if err != nil {
			return nil, IntegrityViolation("provenance parent lookup", err)
		}

		var parentPath []string
		if err := json.Unmarshal([]byte(parentPathJSON), &parentPath); err != nil {
			return nil, IntegrityViolation("provenance chain_path decode", err)
		}

		depth = parentDepth + 1
		path = append(append([]string(nil), parentPath...), id)
	}

	allParentIDs := in.ExtraParentIDs
	if in.ParentID != "" {
		allParentIDs = append([]string{in.ParentID}, allParentIDs...)
	}

	paramsJSON, err := canonicalJSON(in.Parameters)
	if err != nil {
		return nil, IntegrityViolation("parameters encode", err)
	}
	parentIDsJSON, err := json.Marshal(allParentIDs)
	if err != nil {
		return nil, IntegrityViolation("parent_ids encode", err)
	}
	pathJSON, err := json.Marshal(path)
	if err != nil {
		return nil, IntegrityViolation("chain_path encode", err)
	}

	rootDocID := in.RootDocumentID
	if rootDocID == "" {
		return nil, InputInvalid("root_document_id", fmt.Errorf("root document id is required"))
	}

	var parentIDCol sql.NullString
	if in.ParentID != "" {
		parentIDCol = sql.NullString{String: in.ParentID, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO provenance (
			id, type, processor_name, processor_version, parameters_json,
			content_hash, input_hash, parent_id, parent_ids_json,
			root_document_id, chain_depth, chain_path, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(in.Type), in.ProcessorName, in.ProcessorVersion, paramsJSON,
		in.ContentHash, in.InputHash, parentIDCol, string(parentIDsJSON),
		rootDocID, depth, string(pathJSON), now,
	)
	if err != nil {
		return nil, IntegrityViolation("provenance insert", err)
	}

	return &Provenance{
		ID: id, Type: in.Type, ProcessorName: in.ProcessorName, ProcessorVersion: in.ProcessorVersion,
		ParametersJSON: string(paramsJSON), ContentHash: in.ContentHash, InputHash: in.InputHash,
		ParentID: in.ParentID, ParentIDsJSON: string(parentIDsJSON), RootDocumentID: rootDocID,
		ChainDepth: depth, ChainPath: string(pathJSON), CreatedAt: now,
	}, nil
}

// InsertProvenance is the public single-statement entry point (runs in its
// own transaction). Components that need the row inside a larger write
// transaction should call insertProvenanceTx directly with their own tx.
func (s *Store) InsertProvenance(ctx context.Context, in NewProvenanceInput) (*Provenance, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, IntegrityViolation("begin tx", err)
	}
	defer tx.Rollback()

	p, err := insertProvenanceTx(ctx, tx, in)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, IntegrityViolation("commit", err)
	}
	return p, nil
}

func scanProvenance(row interface{ Scan(...any) error }) (*Provenance, error) {
	var p Provenance
	var parentID sql.NullString
	err := row.Scan(&p.ID, &p.Type, &p.ProcessorName, &p.ProcessorVersion, &p.ParametersJSON,
		&p.ContentHash, &p.InputHash, &parentID, &p.ParentIDsJSON, &p.RootDocumentID,
		&p.ChainDepth, &p.ChainPath, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, NotFound("provenance", err)
	}
	if err != nil {
		return nil, IntegrityViolation("provenance scan", err)
	}
	if parentID.Valid {
		p.ParentID = parentID.String
	}
	return &p, nil
}

const provenanceColumns = `id, type, processor_name, processor_version, parameters_json,
	content_hash, input_hash, parent_id, parent_ids_json, root_document_id,
	chain_depth, chain_path, created_at`

// GetProvenance returns a single record with parsed JSON fields left opaque
// (callers unmarshal parameters/parent_ids/chain_path as needed).
func (s *Store) GetProvenance(ctx context.Context, id string) (*Provenance, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+provenanceColumns+` FROM provenance WHERE id = ?`, id)
	return scanProvenance(row)
}

// GetProvenanceChain walks parent_id upward until null, returning the list
// current-first, root-last. Bounded at chain_depth+1 iterations: a walk that
// does not terminate within that bound indicates a corrupted DAG and
// surfaces IntegrityViolation rather than looping forever.
func (s *Store) GetProvenanceChain(ctx context.Context, id string) ([]*Provenance, error) {
	start, err := s.GetProvenance(ctx, id)
	if err != nil {
		return nil, err
	}

	chain := []*Provenance{start}
	maxSteps := start.ChainDepth + 1
	current := start

	for i := 0; i < maxSteps && current.ParentID != ""; i++ {
		parent, err := s.GetProvenance(ctx, current.ParentID)
		if err != nil {
			return nil, err
		}
		chain = append(chain, parent)
		current = parent
	}

	if current.ParentID != "" {
		return nil, IntegrityViolation("provenance chain walk", fmt.Errorf("chain for %q did not terminate within bound %d", id, maxSteps))
	}

	return chain, nil
}

// GetProvenanceByRootDocument returns all records sharing that root, ordered
// by chain_depth ascending.
func (s *Store) GetProvenanceByRootDocument(ctx context.Context, rootID string) ([]*Provenance, error) {
	return getProvenanceByRootDocument(ctx, s.db, rootID)
}

// GetProvenanceByRootDocumentTx is GetProvenanceByRootDocument run inside an
// existing transaction (cascade delete holds its own tx open throughout).
func (s *Store) GetProvenanceByRootDocumentTx(ctx context.Context, tx *sql.Tx, rootID string) ([]*Provenance, error) {
	return getProvenanceByRootDocument(ctx, tx, rootID)
}

func getProvenanceByRootDocument(ctx context.Context, q querier, rootID string) ([]*Provenance, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+provenanceColumns+` FROM provenance WHERE root_document_id = ? ORDER BY chain_depth ASC`, rootID)
	if err != nil {
		return nil, IntegrityViolation("provenance by root query", err)
	}
	defer rows.Close()

	var out []*Provenance
	for rows.Next() {
		p, err := scanProvenance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetProvenanceChildren returns direct successors, ordered by creation time.
func (s *Store) GetProvenanceChildren(ctx context.Context, parentID string) ([]*Provenance, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+provenanceColumns+` FROM provenance WHERE parent_id = ? ORDER BY created_at ASC`, parentID)
	if err != nil {
		return nil, IntegrityViolation("provenance children query", err)
	}
	defer rows.Close()

	var out []*Provenance
	for rows.Next() {
		p, err := scanProvenance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// reparentToOrphanRootTx rewrites a provenance row's root_document_id to the
// ORPHANED_ROOT sentinel. This is the one mutation provenance rows are
// allowed after insert.
func reparentToOrphanRootTx(ctx context.Context, tx *sql.Tx, provenanceID string) error {
	_, err := tx.ExecContext(ctx, `UPDATE provenance SET root_document_id = ? WHERE id = ?`, OrphanedRoot, provenanceID)
	if err != nil {
		return IntegrityViolation("orphan reparent", err)
	}
	return nil
}

// canonicalJSON produces sorted-key JSON so content hashes computed over it
// stay stable across writers. encoding/json already sorts map[string]any
// keys on marshal, so this just centralizes the nil-map empty-object case.
func canonicalJSON(v map[string]any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}
