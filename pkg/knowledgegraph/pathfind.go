package knowledgegraph

import (
	"context"
	"sort"

	"github.com/dan-solli/knowledgestore/pkg/kstore"
)

// MaxHops bounds Path-finding depth, per §4.4.
const MaxHops = 6

// DefaultEvidenceChunksPerEdge is how many supporting chunks PathFind
// attaches to each edge when requested.
const DefaultEvidenceChunksPerEdge = 3

// PathStep is one edge traversed in a Path, oriented in the direction of
// travel (From -> To), which may be the reverse of the edge's own
// source/target lexicographic storage order.
type PathStep struct {
	Edge           *kstore.KGEdge
	From           *kstore.KGNode
	To             *kstore.KGNode
	EvidenceChunks []*kstore.Chunk
}

// Path is an ordered node/edge walk from a source to a target node.
type Path struct {
	Nodes []*kstore.KGNode
	Steps []PathStep
}

// PathFindOptions configures FindPaths.
type PathFindOptions struct {
	MaxHops               int // 1..MaxHops, default MaxHops
	RelationshipTypes     []kstore.RelationshipType
	IncludeEvidenceChunks bool
	IncludeContradictions bool
}

// FindPaths performs BFS over the undirected projection of the graph from
// source to target, exploring neighbors in decreasing normalized_weight
// order, and returns every shortest path found (not all paths).
func (e *Engine) FindPaths(ctx context.Context, sourceNodeID, targetNodeID string, opts PathFindOptions) ([]*Path, error) {
	maxHops := opts.MaxHops
	if maxHops <= 0 || maxHops > MaxHops {
		maxHops = MaxHops
	}
	allowedTypes := toRelTypeSet(opts.RelationshipTypes)

	if sourceNodeID == targetNodeID {
		node, err := e.store.GetKGNode(ctx, sourceNodeID)
		if err != nil {
			return nil, err
		}
		return []*Path{{Nodes: []*kstore.KGNode{node}}}, nil
	}

	type backEdge struct {
		from string
		edge *kstore.KGEdge
	}

	visited := map[string]int{sourceNodeID: 0}
	cameFrom := map[string][]backEdge{} // node -> edges that reach it at its discovered depth
	frontier := []string{sourceNodeID}
	found := false

	for depth := 0; depth < maxHops && len(frontier) > 0 && !found; depth++ {
		var next []string
		for _, current := range frontier {
			edges, err := e.store.ListEdgesForNode(ctx, current)
			if err != nil {
				return nil, err
			}
			sort.Slice(edges, func(i, j int) bool { return edges[i].NormalizedWeight > edges[j].NormalizedWeight })

			for _, edge := range edges {
				if len(allowedTypes) > 0 && !allowedTypes[edge.RelationshipType] {
					continue
				}
				neighbor := edge.SourceNodeID
				if neighbor == current {
					neighbor = edge.TargetNodeID
				}

				if d, seen := visited[neighbor]; seen && d <= depth+1 {
					if d == depth+1 {
						cameFrom[neighbor] = append(cameFrom[neighbor], backEdge{from: current, edge: edge})
					}
					continue
				}

				visited[neighbor] = depth + 1
				cameFrom[neighbor] = append(cameFrom[neighbor], backEdge{from: current, edge: edge})
				next = append(next, neighbor)

				if neighbor == targetNodeID {
					found = true
				}
			}
		}
		frontier = next
	}

	if _, ok := visited[targetNodeID]; !ok {
		return nil, nil
	}

	// Reconstruct every shortest path by walking cameFrom backward from target.
	var walk func(node string) [][]backEdge
	memo := map[string][][]backEdge{}
	walk = func(node string) [][]backEdge {
		if node == sourceNodeID {
			return [][]backEdge{{}}
		}
		if cached, ok := memo[node]; ok {
			return cached
		}
		var paths [][]backEdge
		for _, be := range cameFrom[node] {
			if visited[be.from] != visited[node]-1 {
				continue
			}
			for _, prefix := range walk(be.from) {
				path := append(append([]backEdge{}, prefix...), be)
				paths = append(paths, path)
			}
		}
		memo[node] = paths
		return paths
	}

	rawPaths := walk(targetNodeID)

	var out []*Path
	for _, raw := range rawPaths {
		p := &Path{}
		cur := sourceNodeID
		startNode, err := e.store.GetKGNode(ctx, cur)
		if err != nil {
			return nil, err
		}
		p.Nodes = append(p.Nodes, startNode)

		for _, be := range raw {
			toID := be.edge.SourceNodeID
			if toID == cur {
				toID = be.edge.TargetNodeID
			}
			toNode, err := e.store.GetKGNode(ctx, toID)
			if err != nil {
				return nil, err
			}
			fromNode := p.Nodes[len(p.Nodes)-1]

			step := PathStep{Edge: be.edge, From: fromNode, To: toNode}
			if opts.IncludeEvidenceChunks {
				chunks, err := e.evidenceChunks(ctx, fromNode, toNode)
				if err != nil {
					return nil, err
				}
				step.EvidenceChunks = chunks
			}

			p.Steps = append(p.Steps, step)
			p.Nodes = append(p.Nodes, toNode)
			cur = toID
		}
		out = append(out, p)
	}

	return out, nil
}

// evidenceChunks fetches up to DefaultEvidenceChunksPerEdge chunks whose
// text mentions either endpoint's canonical name.
func (e *Engine) evidenceChunks(ctx context.Context, a, b *kstore.KGNode) ([]*kstore.Chunk, error) {
	rows, err := e.store.DB().QueryContext(ctx, `
		SELECT id, document_id, provenance_id, idx, character_start, character_end, page,
			overlap_before, overlap_after, text, text_hash, embedding_status, created_at
		FROM chunks WHERE text LIKE ? OR text LIKE ? LIMIT ?`,
		"%"+a.CanonicalName+"%", "%"+b.CanonicalName+"%", DefaultEvidenceChunksPerEdge)
	if err != nil {
		return nil, kstore.IntegrityViolation("evidence chunks query", err)
	}
	defer rows.Close()

	var out []*kstore.Chunk
	for rows.Next() {
		var c kstore.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ProvenanceID, &c.Index, &c.CharacterStart, &c.CharacterEnd,
			&c.Page, &c.OverlapBefore, &c.OverlapAfter, &c.Text, &c.TextHash, &c.EmbeddingStatus, &c.CreatedAt); err != nil {
			return nil, kstore.IntegrityViolation("evidence chunk scan", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
