// Package knowledgegraph resolves per-document entities into a canonical
// cross-document graph: node matching, edge weighting, merge/split/prune
// maintenance, path-finding, and semantic entity search. It builds entirely
// on pkg/kstore's exported CRUD surface and never reaches into its internal
// tables directly, keeping the dependency edge one-directional.
package knowledgegraph

import (
	"log/slog"

	"github.com/dan-solli/knowledgestore/pkg/embeddings"
	"github.com/dan-solli/knowledgestore/pkg/kstore"
	"github.com/dan-solli/knowledgestore/pkg/llm"
	"github.com/dan-solli/knowledgestore/pkg/metrics"
	"github.com/dan-solli/knowledgestore/pkg/vectorindex"
)

// BuildMode selects how new entities are matched against existing KGNodes.
type BuildMode string

const (
	// ModeExact matches on identical normalized name and entity type.
	ModeExact BuildMode = "exact"
	// ModeFuzzy matches via Sørensen–Dice bigram similarity above a threshold.
	ModeFuzzy BuildMode = "fuzzy"
	// ModeAI asks the LLM oracle to disambiguate against top-K same-type candidates.
	ModeAI BuildMode = "ai"
)

// DefaultFuzzyThreshold is the minimum Dice coefficient ModeFuzzy accepts as
// a match.
const DefaultFuzzyThreshold = 0.8

// DefaultFuzzyCandidates bounds how many same-type nodes ModeFuzzy/ModeAI
// compare a new entity against.
const DefaultFuzzyCandidates = 25

// Engine is the knowledge-graph maintenance surface for one Store.
type Engine struct {
	store *kstore.Store
	// vecIndex holds node-level embeddings (see pkg/vectorindex.LoadNodeIndexFromStore),
	// distinct from the chunk-embedding index document search runs against.
	vecIndex vectorindex.Index
	embedder embeddings.EmbeddingClient
	llmc     llm.LLMClient
	logger   *slog.Logger
	metrics  metrics.Collector

	// TypeMultipliers overrides DefaultTypeMultipliers when set; missing
	// types still default to 1.0.
	TypeMultipliers map[kstore.RelationshipType]float64
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLLM sets the oracle used by ModeAI disambiguation.
func WithLLM(c llm.LLMClient) Option { return func(e *Engine) { e.llmc = c } }

// WithLogger overrides the default slog.Logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithMetrics attaches a collector that records Build/Prune operation
// timings and counts. Omitting it leaves the engine on a no-op collector.
func WithMetrics(c metrics.Collector) Option { return func(e *Engine) { e.metrics = c } }

// New builds an Engine over store, using vecIndex for semantic search and
// embedder to embed entity text and search queries on demand.
func New(store *kstore.Store, vecIndex vectorindex.Index, embedder embeddings.EmbeddingClient, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		vecIndex: vecIndex,
		embedder: embedder,
		logger:   slog.Default(),
		metrics:  metrics.NewNoopCollector(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) typeMultiplier(rt kstore.RelationshipType) float64 {
	if e.TypeMultipliers != nil {
		if m, ok := e.TypeMultipliers[rt]; ok {
			return m
		}
	}
	if m, ok := kstore.DefaultTypeMultipliers[rt]; ok {
		return m
	}
	return 1.0
}
