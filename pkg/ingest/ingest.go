// Package ingest orchestrates one document's trip from raw OCR text through
// chunking, embedding, entity/relationship extraction, and knowledge-graph
// assembly — the single entry point storectl and the ingest watcher both
// call.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dan-solli/knowledgestore/pkg/chunker"
	"github.com/dan-solli/knowledgestore/pkg/embeddings"
	"github.com/dan-solli/knowledgestore/pkg/extraction"
	"github.com/dan-solli/knowledgestore/pkg/knowledgegraph"
	"github.com/dan-solli/knowledgestore/pkg/kstore"
	"github.com/dan-solli/knowledgestore/pkg/metrics"
	"github.com/dan-solli/knowledgestore/pkg/trace"
)

// Pipeline ties together every stage a document passes through on ingest.
type Pipeline struct {
	Store      *kstore.Store
	Chunker    *chunker.Chunker
	Embedder   embeddings.EmbeddingClient
	Extraction *extraction.Pipeline
	Graph      *knowledgegraph.Engine
	Logger     *slog.Logger

	// EmbedConcurrency bounds how many embedding calls run at once.
	EmbedConcurrency int

	// Metrics records operation/stage timings and error counts. Nil is
	// treated as metrics.NewNoopCollector().
	Metrics metrics.Collector

	// Tracer exports a per-run TraceRecord once IngestFile finishes. Nil
	// skips export.
	Tracer trace.Exporter
}

// Result summarizes one document's ingest run.
type Result struct {
	DocumentID        string
	ChunksCreated     int
	EmbeddingsCreated int
	Extraction        *extraction.Result
	KGBuild           *knowledgegraph.BuildResult
}

// IngestFile reads path, registers it as a Document, and runs the full
// pipeline over its text. extractedText is the already-OCR'd text: this
// package's concern starts after OCR, not before, matching §4.3's scope.
func (p *Pipeline) IngestFile(ctx context.Context, path string, extractedText string) (*Result, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := p.Metrics
	if collector == nil {
		collector = metrics.NewNoopCollector()
	}

	operationID := uuid.New().String()
	opStart := time.Now()
	opTrace := newTrace()

	result, err := p.ingestFile(ctx, path, extractedText, opTrace)

	durationMs := time.Since(opStart).Milliseconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	collector.RecordOperation(ctx, "ingest", status, durationMs)
	for _, span := range opTrace.Spans {
		collector.RecordStage(ctx, "ingest", span.Name, span.DurationMs)
		if !span.OK {
			collector.RecordError(ctx, "ingest", span.Name)
		}
	}

	if p.Tracer != nil {
		record := &trace.TraceRecord{
			Timestamp: opStart, OperationID: operationID, Operation: "ingest",
			DurationMs: durationMs, Status: status,
			IDs: map[string]interface{}{"path": path},
		}
		if err != nil {
			record.ErrorType = "pipeline"
		}
		for _, span := range opTrace.Spans {
			record.Spans = append(record.Spans, trace.SpanRecord{
				Name: span.Name, DurationMs: span.DurationMs, OK: span.OK, ErrorType: span.Error, Counters: span.Counters,
			})
		}
		if exportErr := p.Tracer.Export(ctx, record); exportErr != nil {
			logger.Warn("ingest: trace export failed", "error", exportErr)
		}
	}

	return result, err
}

func (p *Pipeline) ingestFile(ctx context.Context, path string, extractedText string, opTrace *OperationTrace) (*Result, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	hash := sha256.Sum256([]byte(extractedText))
	fileHash := "sha256:" + hex.EncodeToString(hash[:])

	if existing, err := p.Store.GetDocumentByHash(ctx, fileHash); err == nil && existing != nil {
		logger.Info("ingest: document already known, skipping", "path", path, "document_id", existing.ID)
		return &Result{DocumentID: existing.ID}, nil
	}

	doc, err := p.Store.CreateDocument(ctx, kstore.NewDocumentInput{
		FilePath: path, FileName: filepath.Base(path), FileHash: fileHash,
		SizeBytes: info.Size(), FileType: filepath.Ext(path),
	})
	if err != nil {
		return nil, err
	}

	ocr, err := p.Store.CreateOCRResult(ctx, kstore.NewOCRResultInput{
		DocumentID: doc.ID, ExtractedText: extractedText, QualityMode: kstore.QualityBalanced,
	})
	if err != nil {
		return nil, err
	}

	chunkTimer := newSpanTimer("chunk", opTrace)
	chunks := p.Chunker.Chunk(extractedText)
	inputs := make([]kstore.NewChunkInput, len(chunks))
	for i, c := range chunks {
		inputs[i] = kstore.NewChunkInput{
			Index: c.Index, CharacterStart: c.CharacterStart, CharacterEnd: c.CharacterEnd,
			OverlapBefore: c.OverlapBefore, OverlapAfter: c.OverlapAfter, Text: c.Text,
		}
	}
	storedChunks, err := p.Store.BatchCreateChunks(ctx, doc.ID, ocr, inputs)
	chunkTimer.finish(err == nil, err, map[string]int64{"chunkCount": int64(len(chunks))})
	if err != nil {
		return nil, err
	}

	embedTimer := newSpanTimer("embed", opTrace)
	embeddingsCreated, err := p.embedChunks(ctx, doc.ID, storedChunks)
	embedTimer.finish(err == nil, err, map[string]int64{"embeddingCount": int64(embeddingsCreated)})
	if err != nil {
		return nil, err
	}

	extractTimer := newSpanTimer("extract", opTrace)
	extractionResult, err := p.Extraction.ExtractDocument(ctx, doc.ID)
	var extractCounters map[string]int64
	if extractionResult != nil {
		extractCounters = map[string]int64{"entitiesCreated": int64(extractionResult.EntitiesCreated)}
	}
	extractTimer.finish(err == nil, err, extractCounters)
	if err != nil {
		return nil, err
	}

	graphTimer := newSpanTimer("build-graph", opTrace)
	buildResult, err := p.Graph.Build(ctx, knowledgegraph.ModeFuzzy, []string{doc.ID}, false)
	graphTimer.finish(err == nil, err, nil)
	if err != nil {
		return nil, err
	}

	if err := p.Store.UpdateDocumentStatus(ctx, doc.ID, kstore.DocumentComplete); err != nil {
		return nil, err
	}

	return &Result{
		DocumentID: doc.ID, ChunksCreated: len(storedChunks), EmbeddingsCreated: embeddingsCreated,
		Extraction: extractionResult, KGBuild: buildResult,
	}, nil
}

// embedChunks computes and stores embeddings for every chunk pending one,
// fanning calls to the embedding client out across a bounded worker group so
// a large document doesn't serialize one HTTP round trip per chunk.
func (p *Pipeline) embedChunks(ctx context.Context, documentID string, chunks []*kstore.Chunk) (int, error) {
	concurrency := p.EmbedConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	type vectorResult struct {
		chunk  *kstore.Chunk
		vector []float32
	}
	results := make([]vectorResult, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			vec, err := p.Embedder.EmbedOne(gctx, c.Text)
			if err != nil {
				return fmt.Errorf("embed chunk %s: %w", c.ID, err)
			}
			results[i] = vectorResult{chunk: c, vector: vec}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, kstore.OracleFailure("embed chunks", err)
	}

	inputs := make([]kstore.NewEmbeddingInput, len(results))
	for i, r := range results {
		inputs[i] = kstore.NewEmbeddingInput{
			ChunkID: r.chunk.ID, Vector: r.vector, Model: "", TaskType: "chunk", OriginalText: r.chunk.Text,
		}
	}

	created, err := p.Store.BatchCreateEmbeddings(ctx, documentID, inputs)
	if err != nil {
		return 0, err
	}
	return len(created), nil
}
