package knowledgegraph

import (
	"context"
	"sort"

	"github.com/dan-solli/knowledgestore/pkg/kstore"
)

// NodeTypeCount is one entity-type bucket in a Statistics histogram.
type NodeTypeCount struct {
	Type  kstore.EntityType
	Count int
}

// EdgeTypeCount is one relationship-type bucket in a Statistics histogram.
type EdgeTypeCount struct {
	Type  kstore.RelationshipType
	Count int
}

// TopNode is one entry in a Statistics top-connected list.
type TopNode struct {
	Node      *kstore.KGNode
	EdgeCount int
}

// Statistics summarizes the current state of the knowledge graph.
type Statistics struct {
	TotalNodes       int
	TotalEdges       int
	NodesByType      []NodeTypeCount
	EdgesByType      []EdgeTypeCount
	TopConnected     []TopNode // top 10 by edge_count, descending
	AverageEdgeCount float64
}

// DefaultTopConnectedCount bounds how many nodes Statistics.TopConnected holds.
const DefaultTopConnectedCount = 10

// Stats computes total node/edge counts, per-type histograms, the top
// connected nodes, and the average edge_count per node.
func (e *Engine) Stats(ctx context.Context) (*Statistics, error) {
	nodes, err := e.store.ListAllKGNodes(ctx)
	if err != nil {
		return nil, err
	}
	edges, err := e.store.ListAllKGEdges(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{TotalNodes: len(nodes), TotalEdges: len(edges)}

	byNodeType := make(map[kstore.EntityType]int)
	var edgeCountSum int
	for _, n := range nodes {
		byNodeType[n.Type]++
		edgeCountSum += n.EdgeCount
	}
	for t, count := range byNodeType {
		stats.NodesByType = append(stats.NodesByType, NodeTypeCount{Type: t, Count: count})
	}
	sort.Slice(stats.NodesByType, func(i, j int) bool { return stats.NodesByType[i].Count > stats.NodesByType[j].Count })

	byEdgeType := make(map[kstore.RelationshipType]int)
	for _, edge := range edges {
		byEdgeType[edge.RelationshipType]++
	}
	for t, count := range byEdgeType {
		stats.EdgesByType = append(stats.EdgesByType, EdgeTypeCount{Type: t, Count: count})
	}
	sort.Slice(stats.EdgesByType, func(i, j int) bool { return stats.EdgesByType[i].Count > stats.EdgesByType[j].Count })

	if len(nodes) > 0 {
		stats.AverageEdgeCount = float64(edgeCountSum) / float64(len(nodes))
	}

	sorted := append([]*kstore.KGNode{}, nodes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].EdgeCount > sorted[j].EdgeCount })
	top := DefaultTopConnectedCount
	if top > len(sorted) {
		top = len(sorted)
	}
	for _, n := range sorted[:top] {
		stats.TopConnected = append(stats.TopConnected, TopNode{Node: n, EdgeCount: n.EdgeCount})
	}

	return stats, nil
}
