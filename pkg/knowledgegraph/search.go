package knowledgegraph

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/dan-solli/knowledgestore/pkg/kstore"
)

// DefaultSimilarityThreshold is the minimum (1 - distance) score SearchEntities
// accepts as a match when the caller does not supply one.
const DefaultSimilarityThreshold = 0.7

// TaskSearchDocument/TaskSearchQuery name the task types of the embedding
// oracle calls entity search makes, mirroring the chunk/query distinction
// embeddings already use.
const (
	TaskSearchDocument = "search_document"
	TaskSearchQuery    = "search_query"
)

// EntityMatch is one SearchEntities result: a node plus its up-to-5
// highest-weight neighbors, per the composer's witness-analysis needs.
type EntityMatch struct {
	Node       *kstore.KGNode
	Similarity float64
	Neighbors  []*kstore.KGEdge
}

// SearchOptions configures SearchEntities.
type SearchOptions struct {
	SimilarityThreshold float64 // default DefaultSimilarityThreshold
	EntityType          kstore.EntityType
	Limit               int // default 10
}

// SearchEntities embeds query (task = search_query), runs a k-NN query
// against the node-embedding vector index, filters by
// 1 - distance >= similarity_threshold, optionally restricts to one entity
// type, and returns results ordered by similarity descending.
func (e *Engine) SearchEntities(ctx context.Context, query string, opts SearchOptions) ([]*EntityMatch, error) {
	threshold := opts.SimilarityThreshold
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	queryVec, err := e.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, kstore.OracleFailure("embed search query", err)
	}

	// k is widened beyond limit since post-filtering by type/threshold may
	// discard some of the nearest neighbors.
	k := limit * 4
	if k < 50 {
		k = 50
	}
	hits, err := e.vecIndex.Match(ctx, queryVec, k)
	if err != nil {
		return nil, kstore.IntegrityViolation("vector index match", err)
	}

	var out []*EntityMatch
	for _, hit := range hits {
		if hit.Score < threshold {
			continue
		}
		node, err := e.store.GetKGNode(ctx, hit.ID)
		if err != nil {
			if kerr, ok := err.(*kstore.Error); ok && kerr.Kind == kstore.KindNotFound {
				continue
			}
			return nil, err
		}
		if opts.EntityType != "" && node.Type != opts.EntityType {
			continue
		}

		neighbors, err := e.store.ListEdgesForNode(ctx, node.ID)
		if err != nil {
			return nil, err
		}
		sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].NormalizedWeight > neighbors[j].NormalizedWeight })
		if len(neighbors) > 5 {
			neighbors = neighbors[:5]
		}

		out = append(out, &EntityMatch{Node: node, Similarity: hit.Score, Neighbors: neighbors})
		if len(out) >= limit {
			break
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out, nil
}

// EnsureNodeEmbedding returns the node's current embedding, generating and
// persisting one on demand (both relationally and in the vector index) if
// none exists yet. Source text is
// "canonical_name (type). Also known as: alias1, alias2".
func (e *Engine) EnsureNodeEmbedding(ctx context.Context, node *kstore.KGNode) (*kstore.NodeEmbedding, error) {
	existing, err := e.store.GetNodeEmbedding(ctx, node.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	sourceText := nodeEmbeddingSourceText(node)
	vec, err := e.embedder.EmbedOne(ctx, sourceText)
	if err != nil {
		return nil, kstore.OracleFailure("embed entity node", err)
	}

	model := ""
	if modeler, ok := e.embedder.(interface{ ModelName() string }); ok {
		model = modeler.ModelName()
	}

	emb, err := e.store.UpsertNodeEmbedding(ctx, node, vec, model, TaskSearchDocument, sourceText)
	if err != nil {
		return nil, err
	}
	if err := e.vecIndex.Insert(ctx, node.ID, vec); err != nil {
		return nil, kstore.IntegrityViolation("vector index insert", err)
	}
	return emb, nil
}

func nodeEmbeddingSourceText(node *kstore.KGNode) string {
	var aliases []string
	_ = json.Unmarshal([]byte(node.AliasesJSON), &aliases)

	var b strings.Builder
	b.WriteString(node.CanonicalName)
	b.WriteString(" (")
	b.WriteString(string(node.Type))
	b.WriteString(")")
	if len(aliases) > 0 {
		b.WriteString(". Also known as: ")
		b.WriteString(strings.Join(aliases, ", "))
	}
	return b.String()
}
