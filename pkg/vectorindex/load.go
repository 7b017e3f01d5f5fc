package vectorindex

import (
	"context"

	"github.com/dan-solli/knowledgestore/pkg/kstore"
)

// LoadFromStore rebuilds a MemoryIndex from every embedding row in store,
// keyed by embedding id. Called once after Store.Open/Create, since the
// index itself holds no on-disk state of its own.
func LoadFromStore(ctx context.Context, store *kstore.Store) (*MemoryIndex, error) {
	idx := NewMemoryIndex()

	docs, err := store.ListDocuments(ctx, kstore.ListDocumentsFilter{})
	if err != nil {
		return nil, err
	}

	for _, doc := range docs {
		embeddings, err := store.ListEmbeddingsForDocument(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		for _, e := range embeddings {
			if err := idx.Insert(ctx, e.ID, e.Vector); err != nil {
				return nil, err
			}
		}
	}

	return idx, nil
}

// LoadNodeIndexFromStore rebuilds a MemoryIndex from every stored knowledge-
// graph node embedding, keyed by node id. This is the index the knowledge
// graph engine's semantic entity search runs against — distinct from
// LoadFromStore's chunk-embedding index used for document search.
func LoadNodeIndexFromStore(ctx context.Context, store *kstore.Store) (*MemoryIndex, error) {
	idx := NewMemoryIndex()

	embeddings, err := store.ListAllNodeEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range embeddings {
		if err := idx.Insert(ctx, e.NodeID, e.Vector); err != nil {
			return nil, err
		}
	}

	return idx, nil
}
