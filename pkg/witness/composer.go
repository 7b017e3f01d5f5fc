// Package witness composes the oracle prompt for witness analysis: a
// document's OCR text plus whatever the knowledge graph already knows about
// it, submitted as one structured request and persisted as a comparison.
package witness

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dan-solli/knowledgestore/pkg/kstore"
	"github.com/dan-solli/knowledgestore/pkg/llm"
)

// maxOCRChars bounds how much of a document's OCR text is fed to the
// oracle per call, per §4.5's "truncated to a fixed per-document budget".
const maxOCRChars = 20_000

// maxPriorComparisons caps how many previous comparisons are replayed into
// the prompt; older ones are dropped rather than let the prompt grow
// unbounded across repeated witness analyses of the same document.
const maxPriorComparisons = 5

// Composer runs witness analysis for one Store.
type Composer struct {
	Store  *kstore.Store
	LLM    llm.LLMClient
	Logger *slog.Logger
}

// Result is the outcome of one ComposeWitnessAnalysis call.
type Result struct {
	Output             string
	EstimatedPromptTokens int
	ComparisonID       string
}

// clusterMembership is one KG node a document's entities resolved into.
type clusterMembership struct {
	NodeID        string `json:"node_id"`
	CanonicalName string `json:"canonical_name"`
	Type          string `json:"type"`
	DocumentCount int    `json:"document_count"`
}

// crossDocConnection is one edge from a node in this document's clusters to
// a node that also appears in some other document.
type crossDocConnection struct {
	FromNode         string `json:"from_node"`
	ToNode           string `json:"to_node"`
	RelationshipType string `json:"relationship_type"`
	OtherDocumentID  string `json:"other_document_id"`
}

// ComposeWitnessAnalysis implements §4.5's witness analysis composer:
// gather truncated OCR text, prior comparison summaries, this document's KG
// cluster memberships, and cross-document connections from those clusters,
// into one oracle prompt; persist the response as a comparison.
func (c *Composer) ComposeWitnessAnalysis(ctx context.Context, documentID string) (*Result, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ocr, err := c.Store.GetOCRResult(ctx, documentID)
	if err != nil {
		return nil, err
	}
	ocrText := ocr.ExtractedText
	if len(ocrText) > maxOCRChars {
		ocrText = ocrText[:maxOCRChars]
	}

	priorSummaries, err := c.priorComparisonSummaries(ctx, documentID)
	if err != nil {
		return nil, err
	}

	memberships, err := c.clusterMemberships(ctx, documentID)
	if err != nil {
		return nil, err
	}

	connections, err := c.crossDocumentConnections(ctx, documentID, memberships)
	if err != nil {
		logger.Warn("witness composer: cross-document connections unavailable", "document_id", documentID, "error", err)
	}

	prompt := buildPrompt(ocrText, priorSummaries, memberships, connections)

	raw, err := c.LLM.Complete(ctx, prompt)
	if err != nil {
		return nil, kstore.OracleFailure("witness analysis", err)
	}

	payload := struct {
		Output               string `json:"output"`
		EstimatedPromptTokens int   `json:"estimated_prompt_tokens"`
	}{Output: raw, EstimatedPromptTokens: len(prompt) / 4}

	blob, err := json.Marshal(payload)
	if err != nil {
		return nil, kstore.IntegrityViolation("comparison_json encode", err)
	}

	comparison, err := c.Store.CreateComparison(ctx, documentID, ocr.ProvenanceID, string(blob))
	if err != nil {
		return nil, err
	}

	return &Result{Output: raw, EstimatedPromptTokens: payload.EstimatedPromptTokens, ComparisonID: comparison.ID}, nil
}

// priorComparisonSummaries returns the output field of up to
// maxPriorComparisons earlier comparisons for this document, most recent
// first is irrelevant here since CreateComparison/ListComparisonsForDocument
// already orders by creation time ascending; we keep the tail.
func (c *Composer) priorComparisonSummaries(ctx context.Context, documentID string) ([]string, error) {
	comparisons, err := c.Store.ListComparisonsForDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if len(comparisons) > maxPriorComparisons {
		comparisons = comparisons[len(comparisons)-maxPriorComparisons:]
	}

	summaries := make([]string, 0, len(comparisons))
	for _, cmp := range comparisons {
		var payload struct {
			Output string `json:"output"`
		}
		if err := json.Unmarshal([]byte(cmp.ComparisonJSON), &payload); err != nil || payload.Output == "" {
			continue
		}
		summaries = append(summaries, payload.Output)
	}
	return summaries, nil
}

// clusterMemberships resolves which KG nodes this document's entities
// belong to, via the node/entity links the knowledge-graph build step wrote.
func (c *Composer) clusterMemberships(ctx context.Context, documentID string) ([]clusterMembership, error) {
	links, err := c.Store.ListLinksForDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []clusterMembership
	for _, link := range links {
		if seen[link.NodeID] {
			continue
		}
		seen[link.NodeID] = true

		node, err := c.Store.GetKGNode(ctx, link.NodeID)
		if err != nil {
			continue // node may have been merged away since the link was written
		}
		out = append(out, clusterMembership{
			NodeID: node.ID, CanonicalName: node.CanonicalName,
			Type: string(node.Type), DocumentCount: node.DocumentCount,
		})
	}
	return out, nil
}

// crossDocumentConnections walks the edges out of each of this document's
// cluster nodes and keeps the ones reaching a node linked to some other
// document.
func (c *Composer) crossDocumentConnections(ctx context.Context, documentID string, memberships []clusterMembership) ([]crossDocConnection, error) {
	var out []crossDocConnection
	for _, m := range memberships {
		edges, err := c.Store.ListEdgesForNode(ctx, m.NodeID)
		if err != nil {
			return out, err
		}
		for _, edge := range edges {
			other := edge.TargetNodeID
			if other == m.NodeID {
				other = edge.SourceNodeID
			}
			otherLinks, err := c.Store.ListLinksForNode(ctx, other)
			if err != nil {
				continue
			}
			for _, l := range otherLinks {
				if l.DocumentID != documentID {
					out = append(out, crossDocConnection{
						FromNode: m.NodeID, ToNode: other,
						RelationshipType: string(edge.RelationshipType), OtherDocumentID: l.DocumentID,
					})
					break
				}
			}
		}
	}
	return out, nil
}

func buildPrompt(ocrText string, priorSummaries []string, memberships []clusterMembership, connections []crossDocConnection) string {
	var b strings.Builder
	b.WriteString("You are composing a witness analysis for the document below.\n\n")

	b.WriteString("Document text:\n---\n")
	b.WriteString(ocrText)
	b.WriteString("\n---\n\n")

	if len(priorSummaries) > 0 {
		b.WriteString("Prior comparison summaries for this document:\n")
		for i, s := range priorSummaries {
			fmt.Fprintf(&b, "%d. %s\n", i+1, s)
		}
		b.WriteString("\n")
	}

	if len(memberships) > 0 {
		b.WriteString("This document's entities belong to these knowledge graph clusters:\n")
		for _, m := range memberships {
			fmt.Fprintf(&b, "- %s (%s), seen in %d document(s)\n", m.CanonicalName, m.Type, m.DocumentCount)
		}
		b.WriteString("\n")
	}

	if len(connections) > 0 {
		b.WriteString("Cross-document connections from those clusters:\n")
		for _, c := range connections {
			fmt.Fprintf(&b, "- %s --%s--> %s (also in document %s)\n", c.FromNode, c.RelationshipType, c.ToNode, c.OtherDocumentID)
		}
		b.WriteString("\n")
	}

	b.WriteString("Produce a witness analysis covering corroborating evidence, contradictions, and open questions raised by the connections above.")
	return b.String()
}
