package kstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewKGNodeInput is the request shape for CreateKGNode.
type NewKGNodeInput struct {
	Type           EntityType
	CanonicalName  string
	NormalizedName string
	AliasesJSON    string
	MetadataJSON   string
	ParentProvID   string
	RootDocumentID string
}

// CreateKGNode inserts a new KGNode plus a KNOWLEDGE_GRAPH provenance row.
func (s *Store) CreateKGNode(ctx context.Context, tx *sql.Tx, in NewKGNodeInput) (*KGNode, error) {
	if !IsValidEntityType(in.Type) {
		return nil, IntegrityViolation("kg_node.type", fmt.Errorf("unknown entity type %q", in.Type))
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	prov, err := insertProvenanceTx(ctx, tx, NewProvenanceInput{
		Type:           ProvKnowledgeGraph,
		ProcessorName:  "knowledge_graph",
		ContentHash:    ContentHashText(in.NormalizedName),
		ParentID:       in.ParentProvID,
		RootDocumentID: in.RootDocumentID,
	})
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO kg_nodes (
			id, provenance_id, type, canonical_name, normalized_name, aliases_json,
			document_count, mention_count, edge_count, avg_confidence, importance_score,
			metadata_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 0, 0, 0, 0, 0, ?, ?, ?)`,
		id, prov.ID, in.Type, in.CanonicalName, in.NormalizedName, in.AliasesJSON, in.MetadataJSON, now, now,
	)
	if err != nil {
		return nil, IntegrityViolation("kg_nodes insert", err)
	}

	return &KGNode{
		ID: id, ProvenanceID: prov.ID, Type: in.Type, CanonicalName: in.CanonicalName,
		NormalizedName: in.NormalizedName, AliasesJSON: in.AliasesJSON, MetadataJSON: in.MetadataJSON,
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

const kgNodeColumns = `id, provenance_id, type, canonical_name, normalized_name, aliases_json,
	document_count, mention_count, edge_count, avg_confidence, importance_score,
	metadata_json, created_at, updated_at, last_accessed_at`

func scanKGNode(row interface{ Scan(...any) error }) (*KGNode, error) {
	var n KGNode
	var lastAccessed sql.NullTime
	err := row.Scan(&n.ID, &n.ProvenanceID, &n.Type, &n.CanonicalName, &n.NormalizedName, &n.AliasesJSON,
		&n.DocumentCount, &n.MentionCount, &n.EdgeCount, &n.AvgConfidence, &n.ImportanceScore,
		&n.MetadataJSON, &n.CreatedAt, &n.UpdatedAt, &lastAccessed)
	if err == sql.ErrNoRows {
		return nil, NotFound("kg_node", err)
	}
	if err != nil {
		return nil, IntegrityViolation("kg_node scan", err)
	}
	if lastAccessed.Valid {
		n.LastAccessedAt = &lastAccessed.Time
	}
	return &n, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx, letting the read helpers
// below run either as a standalone query or inside a caller-supplied
// transaction. Every read a WithTx callback needs must go through the Tx
// variant: the store's connection pool is capped at one (single-writer
// model), so issuing a plain s.db query while a transaction is open on that
// same connection would block forever waiting for a second connection.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetKGNode fetches a KGNode by id.
func (s *Store) GetKGNode(ctx context.Context, id string) (*KGNode, error) {
	return getKGNode(ctx, s.db, id)
}

// GetKGNodeTx is GetKGNode run inside an existing transaction.
func (s *Store) GetKGNodeTx(ctx context.Context, tx *sql.Tx, id string) (*KGNode, error) {
	return getKGNode(ctx, tx, id)
}

func getKGNode(ctx context.Context, q querier, id string) (*KGNode, error) {
	row := q.QueryRowContext(ctx, `SELECT `+kgNodeColumns+` FROM kg_nodes WHERE id = ?`, id)
	return scanKGNode(row)
}

// FindKGNodesByNormalizedName supports exact-mode resolution: same
// normalized name, same type.
func (s *Store) FindKGNodesByNormalizedName(ctx context.Context, normalizedName string, entityType EntityType) ([]*KGNode, error) {
	return findKGNodesByNormalizedName(ctx, s.db, normalizedName, entityType)
}

// FindKGNodesByNormalizedNameTx is FindKGNodesByNormalizedName run inside an
// existing transaction.
func (s *Store) FindKGNodesByNormalizedNameTx(ctx context.Context, tx *sql.Tx, normalizedName string, entityType EntityType) ([]*KGNode, error) {
	return findKGNodesByNormalizedName(ctx, tx, normalizedName, entityType)
}

func findKGNodesByNormalizedName(ctx context.Context, q querier, normalizedName string, entityType EntityType) ([]*KGNode, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+kgNodeColumns+` FROM kg_nodes WHERE normalized_name = ? AND type = ?`, normalizedName, entityType)
	if err != nil {
		return nil, IntegrityViolation("kg_nodes by name query", err)
	}
	defer rows.Close()

	var out []*KGNode
	for rows.Next() {
		n, err := scanKGNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ListKGNodesByType supports fuzzy/ai-mode resolution candidate gathering.
func (s *Store) ListKGNodesByType(ctx context.Context, entityType EntityType) ([]*KGNode, error) {
	return listKGNodesByType(ctx, s.db, entityType)
}

// ListKGNodesByTypeTx is ListKGNodesByType run inside an existing transaction.
func (s *Store) ListKGNodesByTypeTx(ctx context.Context, tx *sql.Tx, entityType EntityType) ([]*KGNode, error) {
	return listKGNodesByType(ctx, tx, entityType)
}

func listKGNodesByType(ctx context.Context, q querier, entityType EntityType) ([]*KGNode, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+kgNodeColumns+` FROM kg_nodes WHERE type = ? ORDER BY mention_count DESC`, entityType)
	if err != nil {
		return nil, IntegrityViolation("kg_nodes by type query", err)
	}
	defer rows.Close()

	var out []*KGNode
	for rows.Next() {
		n, err := scanKGNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ListAllKGNodes returns every node, ordered for determinism (full build /
// hint priming / pruning consumers).
func (s *Store) ListAllKGNodes(ctx context.Context) ([]*KGNode, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+kgNodeColumns+` FROM kg_nodes ORDER BY mention_count DESC, id ASC`)
	if err != nil {
		return nil, IntegrityViolation("kg_nodes list", err)
	}
	defer rows.Close()

	var out []*KGNode
	for rows.Next() {
		n, err := scanKGNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// UpdateKGNodeFieldsTx updates the mutable/aggregate fields of a node inside
// an existing transaction (used heavily by merge/split/prune/cascade, where
// several node updates must share one transaction).
func (s *Store) UpdateKGNodeFieldsTx(ctx context.Context, tx *sql.Tx, n *KGNode) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE kg_nodes SET
			canonical_name = ?, normalized_name = ?, aliases_json = ?,
			document_count = ?, mention_count = ?, edge_count = ?,
			avg_confidence = ?, importance_score = ?, metadata_json = ?, updated_at = ?
		WHERE id = ?`,
		n.CanonicalName, n.NormalizedName, n.AliasesJSON, n.DocumentCount, n.MentionCount,
		n.EdgeCount, n.AvgConfidence, n.ImportanceScore, n.MetadataJSON, time.Now().UTC(), n.ID,
	)
	if err != nil {
		return IntegrityViolation("kg_node update", err)
	}
	return nil
}

// DeleteKGNodeTx removes a node row. Callers must have already removed its
// links and edges.
func (s *Store) DeleteKGNodeTx(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM kg_nodes WHERE id = ?`, id); err != nil {
		return IntegrityViolation("kg_node delete", err)
	}
	return nil
}

// --- NodeEntityLink ---

// CreateNodeEntityLinkTx inserts a link row inside tx.
func (s *Store) CreateNodeEntityLinkTx(ctx context.Context, tx *sql.Tx, nodeID, entityID, documentID string, similarity float64, method string) (*NodeEntityLink, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := tx.ExecContext(ctx, `
		INSERT INTO node_entity_links (id, node_id, entity_id, document_id, similarity_score, resolution_method, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, nodeID, entityID, documentID, similarity, method, now,
	)
	if err != nil {
		return nil, IntegrityViolation("node_entity_links insert", err)
	}

	return &NodeEntityLink{ID: id, NodeID: nodeID, EntityID: entityID, DocumentID: documentID, SimilarityScore: similarity, ResolutionMethod: method, CreatedAt: now}, nil
}

const linkColumns = `id, node_id, entity_id, document_id, similarity_score, resolution_method, created_at`

func scanLink(row interface{ Scan(...any) error }) (*NodeEntityLink, error) {
	var l NodeEntityLink
	err := row.Scan(&l.ID, &l.NodeID, &l.EntityID, &l.DocumentID, &l.SimilarityScore, &l.ResolutionMethod, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, NotFound("node_entity_link", err)
	}
	if err != nil {
		return nil, IntegrityViolation("link scan", err)
	}
	return &l, nil
}

// ListLinksForNode returns every entity link a node carries.
func (s *Store) ListLinksForNode(ctx context.Context, nodeID string) ([]*NodeEntityLink, error) {
	return listLinksForNode(ctx, s.db, nodeID)
}

// ListLinksForNodeTx is ListLinksForNode run inside an existing transaction.
func (s *Store) ListLinksForNodeTx(ctx context.Context, tx *sql.Tx, nodeID string) ([]*NodeEntityLink, error) {
	return listLinksForNode(ctx, tx, nodeID)
}

func listLinksForNode(ctx context.Context, q querier, nodeID string) ([]*NodeEntityLink, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+linkColumns+` FROM node_entity_links WHERE node_id = ?`, nodeID)
	if err != nil {
		return nil, IntegrityViolation("links for node query", err)
	}
	defer rows.Close()

	var out []*NodeEntityLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListLinksForDocument returns every link created by a document's entities,
// used by document cleanup to compute per-node contribution.
func (s *Store) ListLinksForDocument(ctx context.Context, documentID string) ([]*NodeEntityLink, error) {
	return listLinksForDocument(ctx, s.db, documentID)
}

// ListLinksForDocumentTx is ListLinksForDocument run inside an existing
// transaction.
func (s *Store) ListLinksForDocumentTx(ctx context.Context, tx *sql.Tx, documentID string) ([]*NodeEntityLink, error) {
	return listLinksForDocument(ctx, tx, documentID)
}

func listLinksForDocument(ctx context.Context, q querier, documentID string) ([]*NodeEntityLink, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+linkColumns+` FROM node_entity_links WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, IntegrityViolation("links for document query", err)
	}
	defer rows.Close()

	var out []*NodeEntityLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ReassignLinksNodeTx points every link row currently on fromNode to toNode
// (merge step 1).
func (s *Store) ReassignLinksNodeTx(ctx context.Context, tx *sql.Tx, fromNode, toNode string) error {
	_, err := tx.ExecContext(ctx, `UPDATE node_entity_links SET node_id = ? WHERE node_id = ?`, toNode, fromNode)
	if err != nil {
		return IntegrityViolation("links reassign", err)
	}
	return nil
}

// DeleteLinksForNodeTx removes every link a node carries (used when a node
// is deleted outright, e.g. document cleanup dropping a now-orphaned node).
func (s *Store) DeleteLinksForNodeTx(ctx context.Context, tx *sql.Tx, nodeID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM node_entity_links WHERE node_id = ?`, nodeID); err != nil {
		return IntegrityViolation("links delete", err)
	}
	return nil
}

// MoveLinksTx repoints the given link ids to a new node (split step).
func (s *Store) MoveLinksTx(ctx context.Context, tx *sql.Tx, linkIDs []string, toNode string) error {
	for _, id := range linkIDs {
		if _, err := tx.ExecContext(ctx, `UPDATE node_entity_links SET node_id = ? WHERE id = ?`, toNode, id); err != nil {
			return IntegrityViolation("link move", err)
		}
	}
	return nil
}

// --- KGEdge ---

// NewKGEdgeInput is the request shape for CreateKGEdgeTx. Source/target must
// already be in lexicographic order (source < target); upsertEdge in the
// knowledgegraph package is responsible for establishing that invariant
// before calling down to storage.
type NewKGEdgeInput struct {
	SourceNodeID     string
	TargetNodeID     string
	RelationshipType RelationshipType
	Weight           float64
	NormalizedWeight float64
	EvidenceCount    int
	DocumentIDsJSON  string
	ValidFrom        *time.Time
	ValidUntil       *time.Time
	MetadataJSON     string
	ParentProvID     string
	RootDocumentID   string
}

// CreateKGEdgeTx inserts a new edge row plus its provenance row.
func (s *Store) CreateKGEdgeTx(ctx context.Context, tx *sql.Tx, in NewKGEdgeInput) (*KGEdge, error) {
	if !IsValidRelationshipType(in.RelationshipType) {
		return nil, IntegrityViolation("kg_edge.relationship_type", fmt.Errorf("unknown relationship type %q", in.RelationshipType))
	}
	if in.SourceNodeID >= in.TargetNodeID {
		return nil, IntegrityViolation("kg_edge direction invariant", fmt.Errorf("source_node_id must be < target_node_id lexicographically"))
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	prov, err := insertProvenanceTx(ctx, tx, NewProvenanceInput{
		Type:           ProvKnowledgeGraph,
		ProcessorName:  "knowledge_graph",
		ContentHash:    ContentHashText(string(in.RelationshipType) + ":" + in.SourceNodeID + ":" + in.TargetNodeID),
		ParentID:       in.ParentProvID,
		RootDocumentID: in.RootDocumentID,
	})
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO kg_edges (
			id, provenance_id, source_node_id, target_node_id, relationship_type,
			weight, normalized_weight, evidence_count, contradiction_count,
			document_ids_json, valid_from, valid_until, metadata_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?)`,
		id, prov.ID, in.SourceNodeID, in.TargetNodeID, in.RelationshipType,
		in.Weight, in.NormalizedWeight, in.EvidenceCount, in.DocumentIDsJSON, in.ValidFrom, in.ValidUntil, in.MetadataJSON, now, now,
	)
	if err != nil {
		return nil, IntegrityViolation("kg_edges insert", err)
	}

	return &KGEdge{
		ID: id, ProvenanceID: prov.ID, SourceNodeID: in.SourceNodeID, TargetNodeID: in.TargetNodeID,
		RelationshipType: in.RelationshipType, Weight: in.Weight, NormalizedWeight: in.NormalizedWeight,
		EvidenceCount: in.EvidenceCount, DocumentIDsJSON: in.DocumentIDsJSON, ValidFrom: in.ValidFrom,
		ValidUntil: in.ValidUntil, MetadataJSON: in.MetadataJSON, CreatedAt: now, UpdatedAt: now,
	}, nil
}

const kgEdgeColumns = `id, provenance_id, source_node_id, target_node_id, relationship_type,
	weight, normalized_weight, evidence_count, contradiction_count,
	document_ids_json, valid_from, valid_until, metadata_json, created_at, updated_at`

func scanKGEdge(row interface{ Scan(...any) error }) (*KGEdge, error) {
	var e KGEdge
	var validFrom, validUntil sql.NullTime
	err := row.Scan(&e.ID, &e.ProvenanceID, &e.SourceNodeID, &e.TargetNodeID, &e.RelationshipType,
		&e.Weight, &e.NormalizedWeight, &e.EvidenceCount, &e.ContradictionCount,
		&e.DocumentIDsJSON, &validFrom, &validUntil, &e.MetadataJSON, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, NotFound("kg_edge", err)
	}
	if err != nil {
		return nil, IntegrityViolation("kg_edge scan", err)
	}
	if validFrom.Valid {
		e.ValidFrom = &validFrom.Time
	}
	if validUntil.Valid {
		e.ValidUntil = &validUntil.Time
	}
	return &e, nil
}

// FindKGEdge looks up the at-most-one edge row for (source, target, type).
func (s *Store) FindKGEdge(ctx context.Context, sourceNodeID, targetNodeID string, relType RelationshipType) (*KGEdge, error) {
	return findKGEdge(ctx, s.db, sourceNodeID, targetNodeID, relType)
}

// FindKGEdgeTx is FindKGEdge run inside an existing transaction.
func (s *Store) FindKGEdgeTx(ctx context.Context, tx *sql.Tx, sourceNodeID, targetNodeID string, relType RelationshipType) (*KGEdge, error) {
	return findKGEdge(ctx, tx, sourceNodeID, targetNodeID, relType)
}

func findKGEdge(ctx context.Context, q querier, sourceNodeID, targetNodeID string, relType RelationshipType) (*KGEdge, error) {
	row := q.QueryRowContext(ctx, `SELECT `+kgEdgeColumns+` FROM kg_edges WHERE source_node_id = ? AND target_node_id = ? AND relationship_type = ?`,
		sourceNodeID, targetNodeID, relType)
	e, err := scanKGEdge(row)
	if err != nil {
		if kerr, ok := err.(*Error); ok && kerr.Kind == KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// ListEdgesForNode returns every edge incident to a node, ordered by
// normalized_weight descending (the order path-finding explores neighbors).
func (s *Store) ListEdgesForNode(ctx context.Context, nodeID string) ([]*KGEdge, error) {
	return listEdgesForNode(ctx, s.db, nodeID)
}

// ListEdgesForNodeTx is ListEdgesForNode run inside an existing transaction.
func (s *Store) ListEdgesForNodeTx(ctx context.Context, tx *sql.Tx, nodeID string) ([]*KGEdge, error) {
	return listEdgesForNode(ctx, tx, nodeID)
}

func listEdgesForNode(ctx context.Context, q querier, nodeID string) ([]*KGEdge, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+kgEdgeColumns+` FROM kg_edges
		WHERE source_node_id = ? OR target_node_id = ? ORDER BY normalized_weight DESC`, nodeID, nodeID)
	if err != nil {
		return nil, IntegrityViolation("edges for node query", err)
	}
	defer rows.Close()

	var out []*KGEdge
	for rows.Next() {
		e, err := scanKGEdge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListAllKGEdges returns every edge (weight normalization / pruning / stats).
func (s *Store) ListAllKGEdges(ctx context.Context) ([]*KGEdge, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+kgEdgeColumns+` FROM kg_edges`)
	if err != nil {
		return nil, IntegrityViolation("all edges query", err)
	}
	defer rows.Close()

	var out []*KGEdge
	for rows.Next() {
		e, err := scanKGEdge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateKGEdgeTx updates the mutable fields of an edge.
func (s *Store) UpdateKGEdgeTx(ctx context.Context, tx *sql.Tx, e *KGEdge) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE kg_edges SET
			weight = ?, normalized_weight = ?, evidence_count = ?, contradiction_count = ?,
			document_ids_json = ?, valid_from = ?, valid_until = ?, metadata_json = ?, updated_at = ?
		WHERE id = ?`,
		e.Weight, e.NormalizedWeight, e.EvidenceCount, e.ContradictionCount,
		e.DocumentIDsJSON, e.ValidFrom, e.ValidUntil, e.MetadataJSON, time.Now().UTC(), e.ID,
	)
	if err != nil {
		return IntegrityViolation("kg_edge update", err)
	}
	return nil
}

// DeleteKGEdgeTx removes one edge row.
func (s *Store) DeleteKGEdgeTx(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM kg_edges WHERE id = ?`, id); err != nil {
		return IntegrityViolation("kg_edge delete", err)
	}
	return nil
}

// CountEdgesForNodeTx recomputes edge_count from the actual edge table
// (merge step 5 / prune rebuild step).
func (s *Store) CountEdgesForNodeTx(ctx context.Context, tx *sql.Tx, nodeID string) (int, error) {
	var count int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM kg_edges WHERE source_node_id = ? OR target_node_id = ?`, nodeID, nodeID).Scan(&count)
	if err != nil {
		return 0, IntegrityViolation("edge count", err)
	}
	return count, nil
}

// GetNeighbors returns every node within depth hops of nodeID, traversing
// kg_edges bidirectionally via a recursive CTE (one query regardless of
// depth, rather than depth round trips). The starting node itself is
// excluded from the result.
func (s *Store) GetNeighbors(ctx context.Context, nodeID string, depth int) ([]*KGNode, error) {
	if depth < 1 {
		return nil, InputInvalid("depth", fmt.Errorf("depth must be at least 1"))
	}

	query := `
	WITH RECURSIVE graph_traversal(node_id, depth_level) AS (
		SELECT ? AS node_id, 0 AS depth_level
		UNION
		SELECT
			CASE WHEN e.source_node_id = graph_traversal.node_id THEN e.target_node_id ELSE e.source_node_id END,
			graph_traversal.depth_level + 1
		FROM graph_traversal
		JOIN kg_edges e ON (e.source_node_id = graph_traversal.node_id OR e.target_node_id = graph_traversal.node_id)
		WHERE graph_traversal.depth_level < ?
	)
	SELECT DISTINCT n.id, n.provenance_id, n.type, n.canonical_name, n.normalized_name, n.aliases_json,
		n.document_count, n.mention_count, n.edge_count, n.avg_confidence, n.importance_score,
		n.metadata_json, n.created_at, n.updated_at, n.last_accessed_at
	FROM graph_traversal gt
	JOIN kg_nodes n ON gt.node_id = n.id
	WHERE gt.node_id != ?`

	rows, err := s.db.QueryContext(ctx, query, nodeID, depth, nodeID)
	if err != nil {
		return nil, IntegrityViolation("neighbors cte query", err)
	}
	defer rows.Close()

	var out []*KGNode
	for rows.Next() {
		n, err := scanKGNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic. Exposed so collaborating packages (knowledgegraph,
// extraction) can compose several kstore calls into one atomic write, per
// the concurrency model's "transactions used unconditionally" list.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return IntegrityViolation("begin tx", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := touchMetadata(ctx, tx); err != nil {
		return IntegrityViolation("metadata touch", err)
	}

	if err := tx.Commit(); err != nil {
		return IntegrityViolation("commit", err)
	}
	return nil
}
