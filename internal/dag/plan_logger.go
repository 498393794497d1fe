package dag

import (
	"context"

	"graphscore/internal/logger"
)

// LogGraphSummary records the structure of a graph that is about to be scored.
func LogGraphSummary(ctx context.Context, requestID string, g *Graph, s Summary) {
	if g == nil {
		logger.LogWarn(ctx, requestID, "scoring", "graph_summary_failed", map[string]string{
			"error": "graph is nil",
		})
		return
	}

	payload := map[string]interface{}{
		"nodes":           len(g.Nodes),
		"links":           len(g.Links),
		"node_counts":     summarizeCounts(s.NodeCounts),
		"dropped_edges":   s.DroppedEdges,
		"acyclic":         s.Acyclic,
		"longest_path":    s.LongestPath,
		"distinct_layers": s.DistinctLayers,
	}

	if !s.Acyclic {
		logger.LogWarn(ctx, requestID, "scoring", "graph_has_cycle", payload)
		return
	}
	logger.LogEvent(ctx, requestID, "scoring", "graph_summary", payload)
}

func summarizeCounts(counts map[FeatureType]int) map[string]int {
	out := make(map[string]int, len(counts))
	for ft, n := range counts {
		out[ft.String()] = n
	}
	return out
}
