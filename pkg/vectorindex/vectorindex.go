// Package vectorindex provides the k-nearest-neighbor search surface over
// embeddings, replacing the cgo sqlite-vec extension with a pure-Go
// linear-scan cosine index loaded from (and kept consistent with) the
// persistence layer's embeddings table.
package vectorindex

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Result is one match: the embedding id and its cosine similarity to the
// query vector (from -1 to 1, higher is more similar).
type Result struct {
	ID    string
	Score float64
}

// Index is the contract the knowledge graph and query-api packages depend
// on for semantic search. Implementations must be safe for concurrent use.
type Index interface {
	// Insert adds or replaces the vector for id.
	Insert(ctx context.Context, id string, vector []float32) error

	// Match returns up to k results sorted by descending similarity.
	Match(ctx context.Context, query []float32, k int) ([]Result, error)

	// Remove deletes the vectors for the given ids, if present. Unknown ids
	// are ignored, matching cascade delete's best-effort cleanup semantics.
	Remove(ids []string)
}

// CosineSimilarity computes cosine similarity between two equal-length
// vectors. Mismatched lengths or zero vectors score 0, never NaN.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// MemoryIndex is a thread-safe in-memory linear-scan Index. It is the sole
// implementation: the sqlite-vec cgo extension the corpus also offers
// needs a vendored C amalgamation this workspace does not have, so every
// corpus of this size searches the embeddings table's vectors by scanning
// them in memory instead (see DESIGN.md for the dropped-dependency note).
type MemoryIndex struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

// NewMemoryIndex builds an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{vectors: make(map[string][]float32)}
}

// Insert implements Index.
func (m *MemoryIndex) Insert(_ context.Context, id string, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]float32, len(vector))
	copy(cp, vector)
	m.vectors[id] = cp
	return nil
}

// Match implements Index.
func (m *MemoryIndex) Match(_ context.Context, query []float32, k int) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.vectors) == 0 {
		return []Result{}, nil
	}

	results := make([]Result, 0, len(m.vectors))
	for id, v := range m.vectors {
		results = append(results, Result{ID: id, Score: CosineSimilarity(query, v)})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Remove implements Index.
func (m *MemoryIndex) Remove(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		delete(m.vectors, id)
	}
}

// Len reports how many vectors the index currently holds, used by
// diagnostics and by load-time consistency checks against the embeddings
// table row count.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}
