// Package timeline builds chronological views over a document set's
// date-typed entities, optionally restricted to the documents a knowledge
// graph path touches.
package timeline

import (
	"context"
	"sort"
	"strings"

	"github.com/dan-solli/knowledgestore/pkg/extraction"
	"github.com/dan-solli/knowledgestore/pkg/knowledgegraph"
	"github.com/dan-solli/knowledgestore/pkg/kstore"
)

// Entry is one date-typed entity placed on a timeline.
type Entry struct {
	EntityID   string
	DocumentID string
	RawText    string
	ISODate    string // "" when RawText could not be parsed
	Confidence float64
}

// sortKey is what BuildTimeline orders by: the ISO date when parseable,
// otherwise the raw text itself, per §4.5's "unparseable dates sort by raw
// text" rule.
func (e Entry) sortKey() string {
	if e.ISODate != "" {
		return e.ISODate
	}
	return e.RawText
}

// Timeline is the result of BuildTimeline.
type Timeline struct {
	Entries    []Entry
	Diagnostic string // set when a requested path filter found no path
}

// PathFilter restricts the timeline to documents reachable by a knowledge
// graph path between two nodes, per §4.5's "KG path-derived document ids".
type PathFilter struct {
	Engine         *knowledgegraph.Engine
	SourceNodeID   string
	TargetNodeID   string
	FindPathsOpts  knowledgegraph.PathFindOptions
}

// Options configures BuildTimeline.
type Options struct {
	// DocumentIDs restricts the timeline to these documents. Empty means
	// all documents.
	DocumentIDs []string

	// Path, if non-nil, additionally restricts DocumentIDs to whatever
	// documents the resolved path's nodes are linked to.
	Path *PathFilter

	// EntityNames, if non-empty, keeps only dates that co-occur with a
	// named entity: either in the same chunk, or (fallback) whose mention
	// context snippet contains the name.
	EntityNames []string
}

// BuildTimeline implements §4.5's timeline build: select date-typed
// entities (restricted by document ids and/or a KG path), parse each to
// ISO, optionally filter by named-entity co-occurrence, and sort.
func BuildTimeline(ctx context.Context, store *kstore.Store, opts Options) (*Timeline, error) {
	documentIDs := opts.DocumentIDs

	if opts.Path != nil {
		pathDocIDs, found, err := resolvePathDocumentIDs(ctx, store, opts.Path)
		if err != nil {
			return nil, err
		}
		if !found {
			return &Timeline{Diagnostic: "no path exists between the requested nodes"}, nil
		}
		documentIDs = intersectOrReplace(documentIDs, pathDocIDs)
		if len(documentIDs) == 0 {
			return &Timeline{Diagnostic: "path-derived document set is empty"}, nil
		}
	}

	dateEntities, err := store.ListDateEntities(ctx, documentIDs)
	if err != nil {
		return nil, err
	}

	var namedChunkIDs map[string]bool
	if len(opts.EntityNames) > 0 {
		namedChunkIDs, err = chunksMentioningNames(ctx, store, documentIDs, opts.EntityNames)
		if err != nil {
			return nil, err
		}
	}

	entries := make([]Entry, 0, len(dateEntities))
	for _, ent := range dateEntities {
		if namedChunkIDs != nil {
			ok, err := coOccursWithNamedEntity(ctx, store, ent, namedChunkIDs, opts.EntityNames)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}

		iso, _ := extraction.NormalizeDateToISO(ent.RawText)
		entries = append(entries, Entry{
			EntityID: ent.ID, DocumentID: ent.DocumentID, RawText: ent.RawText,
			ISODate: iso, Confidence: ent.Confidence,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].sortKey() < entries[j].sortKey() })
	return &Timeline{Entries: entries}, nil
}

// resolvePathDocumentIDs finds the shortest path between the filter's nodes
// and returns the set of document ids any node on that path is linked to.
func resolvePathDocumentIDs(ctx context.Context, store *kstore.Store, pf *PathFilter) ([]string, bool, error) {
	paths, err := pf.Engine.FindPaths(ctx, pf.SourceNodeID, pf.TargetNodeID, pf.FindPathsOpts)
	if err != nil {
		return nil, false, err
	}
	if len(paths) == 0 {
		return nil, false, nil
	}

	seen := make(map[string]bool)
	var docIDs []string
	for _, node := range paths[0].Nodes {
		links, err := store.ListLinksForNode(ctx, node.ID)
		if err != nil {
			return nil, false, err
		}
		for _, l := range links {
			if !seen[l.DocumentID] {
				seen[l.DocumentID] = true
				docIDs = append(docIDs, l.DocumentID)
			}
		}
	}
	return docIDs, true, nil
}

// intersectOrReplace intersects existing with restrict when existing is
// non-empty, otherwise returns restrict as-is.
func intersectOrReplace(existing, restrict []string) []string {
	if len(existing) == 0 {
		return restrict
	}
	allowed := make(map[string]bool, len(restrict))
	for _, id := range restrict {
		allowed[id] = true
	}
	out := make([]string, 0, len(existing))
	for _, id := range existing {
		if allowed[id] {
			out = append(out, id)
		}
	}
	return out
}

// chunksMentioningNames finds the chunk ids any mention of any of names
// appears in, across documentIDs (or all documents when empty).
func chunksMentioningNames(ctx context.Context, store *kstore.Store, documentIDs []string, names []string) (map[string]bool, error) {
	chunkIDs := make(map[string]bool)
	for _, name := range names {
		matches, err := store.SearchEntitiesByText(ctx, name, "", documentIDs)
		if err != nil {
			return nil, err
		}
		for _, ent := range matches {
			mentions, err := store.ListMentionsForEntity(ctx, ent.ID)
			if err != nil {
				return nil, err
			}
			for _, m := range mentions {
				if m.ChunkID != "" {
					chunkIDs[m.ChunkID] = true
				}
			}
		}
	}
	return chunkIDs, nil
}

// coOccursWithNamedEntity applies the chunk-equality rule first, falling
// back to a substring check against the mention's context snippet.
func coOccursWithNamedEntity(ctx context.Context, store *kstore.Store, dateEntity *kstore.Entity, namedChunkIDs map[string]bool, names []string) (bool, error) {
	mentions, err := store.ListMentionsForEntity(ctx, dateEntity.ID)
	if err != nil {
		return false, err
	}
	for _, m := range mentions {
		if m.ChunkID != "" && namedChunkIDs[m.ChunkID] {
			return true, nil
		}
		snippet := strings.ToLower(m.ContextSnippet)
		for _, name := range names {
			if snippet != "" && strings.Contains(snippet, strings.ToLower(name)) {
				return true, nil
			}
		}
	}
	return false, nil
}
