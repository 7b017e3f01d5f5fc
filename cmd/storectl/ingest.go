package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dan-solli/knowledgestore/pkg/chunker"
	"github.com/dan-solli/knowledgestore/pkg/config"
	"github.com/dan-solli/knowledgestore/pkg/extraction"
	"github.com/dan-solli/knowledgestore/pkg/ingest"
	"github.com/dan-solli/knowledgestore/pkg/knowledgegraph"
	"github.com/dan-solli/knowledgestore/pkg/kstore"
	"github.com/dan-solli/knowledgestore/pkg/metrics"
	"github.com/dan-solli/knowledgestore/pkg/trace"
	"github.com/dan-solli/knowledgestore/pkg/vectorindex"
)

func newIngestCommand(dbRoot *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <db-name> <file>...",
		Short: "Ingest one or more already-OCR'd text files into a database",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			dbName := args[0]
			paths := args[1:]

			cfg, err := loadEnvConfig(*dbRoot)
			if err != nil {
				return err
			}

			store, err := kstore.Open(c.Context(), cfg.DBRoot, dbName)
			if err != nil {
				return err
			}
			defer store.Close()

			pipeline, err := buildIngestPipeline(c.Context(), store, cfg)
			if err != nil {
				return err
			}
			defer pipeline.Tracer.Close()

			return ingestPaths(c.Context(), pipeline, paths, cfg.IngestConcurrency)
		},
	}
	return cmd
}

// buildIngestPipeline wires one ingest.Pipeline from cfg: the provider-
// selected LLM and embedding clients, the sentence-aware chunker, the
// extraction pipeline, and a knowledge-graph engine backed by an in-memory
// vector index rebuilt from whatever node embeddings the database already
// holds.
func buildIngestPipeline(ctx context.Context, store *kstore.Store, cfg config.Config) (*ingest.Pipeline, error) {
	llmClient, err := newLLMClient(cfg)
	if err != nil {
		return nil, err
	}

	embedClient, err := newEmbeddingClient(cfg)
	if err != nil {
		return nil, err
	}

	vecIndex, err := vectorindex.LoadNodeIndexFromStore(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("load vector index: %w", err)
	}

	collector := metrics.NewNoopCollector()
	graph := knowledgegraph.New(store, vecIndex, embedClient, knowledgegraph.WithMetrics(collector))
	extractionPipeline := extraction.New(store, llmClient)

	tracePath := filepath.Join(cfg.DBRoot, "ingest.trace.jsonl")
	exporter, err := trace.NewFileExporter(tracePath)
	if err != nil {
		return nil, fmt.Errorf("open trace exporter: %w", err)
	}

	return &ingest.Pipeline{
		Store:            store,
		Chunker:          &chunker.Chunker{},
		Embedder:         embedClient,
		Extraction:       extractionPipeline,
		Graph:            graph,
		EmbedConcurrency: cfg.IngestConcurrency,
		Metrics:          collector,
		Tracer:           exporter,
	}, nil
}

func ingestPaths(ctx context.Context, p *ingest.Pipeline, paths []string, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 4
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, path := range paths {
		path := path
		g.Go(func() error {
			text, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			result, err := p.IngestFile(gctx, path, string(text))
			if err != nil {
				return fmt.Errorf("ingest %s: %w", path, err)
			}
			fmt.Printf("%s -> document %s (chunks=%d embeddings=%d)\n", path, result.DocumentID, result.ChunksCreated, result.EmbeddingsCreated)
			return nil
		})
	}
	return g.Wait()
}
