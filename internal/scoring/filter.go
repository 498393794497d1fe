package scoring

import "graphscore/internal/dag"

// FilterPinned reduces g to the pinned subset.
//
// With no pinned ids the graph passes through unchanged. Otherwise pinned
// Transcoder nodes are kept, ErrorResidual nodes are kept only when an edge
// in either direction connects them to a kept Transcoder, and every other
// kind is kept. Links are passed through untouched; ones whose endpoints
// were removed are dropped later during matrix construction.
//
// The returned count is the number of Transcoder nodes that survived.
func FilterPinned(g *dag.Graph, pinnedIDs []string) (*dag.Graph, int) {
	if len(pinnedIDs) == 0 {
		return g, countType(g.Nodes, dag.FeatureTranscoder)
	}

	pinned := make(map[string]struct{}, len(pinnedIDs))
	for _, id := range pinnedIDs {
		pinned[id] = struct{}{}
	}

	kept := make(map[string]struct{})
	for _, n := range g.Nodes {
		if n.FeatureType != dag.FeatureTranscoder {
			continue
		}
		if _, ok := pinned[n.ID]; ok {
			kept[n.ID] = struct{}{}
		}
	}

	// error nodes adjacent to a kept transcoder
	connected := make(map[string]struct{})
	for _, e := range g.Links {
		if _, ok := kept[e.Source]; ok {
			connected[e.Target] = struct{}{}
		}
		if _, ok := kept[e.Target]; ok {
			connected[e.Source] = struct{}{}
		}
	}

	out := &dag.Graph{
		Nodes:    make([]dag.Node, 0, len(g.Nodes)),
		Links:    g.Links,
		Metadata: g.Metadata,
	}
	for _, n := range g.Nodes {
		switch n.FeatureType {
		case dag.FeatureTranscoder:
			if _, ok := kept[n.ID]; !ok {
				continue
			}
		case dag.FeatureErrorResidual:
			if _, ok := connected[n.ID]; !ok {
				continue
			}
		}
		out.Nodes = append(out.Nodes, n)
	}

	return out, len(kept)
}

func countType(nodes []dag.Node, ft dag.FeatureType) int {
	count := 0
	for _, n := range nodes {
		if n.FeatureType == ft {
			count++
		}
	}
	return count
}
