package dag

import (
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Summary describes the structure of an attribution graph before scoring.
type Summary struct {
	NodeCounts     map[FeatureType]int `json:"node_counts"`
	EdgeCount      int                 `json:"edge_count"`
	DroppedEdges   int                 `json:"dropped_edges"`
	SelfLoops      int                 `json:"self_loops"`
	Acyclic        bool                `json:"acyclic"`
	LongestPath    int                 `json:"longest_path"`
	DistinctLayers int                 `json:"distinct_layers"`
}

// Analyze computes a structural summary of g.
// Edges with a missing endpoint are counted as dropped and ignored.
// LongestPath counts edges and is only meaningful when Acyclic is true.
func Analyze(g *Graph) Summary {
	s := Summary{NodeCounts: make(map[FeatureType]int)}
	if g == nil {
		s.Acyclic = true
		return s
	}

	ids := make(map[string]int64, len(g.Nodes))
	layers := make(map[string]struct{})
	dg := simple.NewDirectedGraph()
	for i, n := range g.Nodes {
		if _, dup := ids[n.ID]; dup {
			continue
		}
		ids[n.ID] = int64(i)
		dg.AddNode(simple.Node(i))
		s.NodeCounts[n.FeatureType]++
		layers[n.Layer] = struct{}{}
	}
	s.DistinctLayers = len(layers)

	for _, e := range g.Links {
		from, okFrom := ids[e.Source]
		to, okTo := ids[e.Target]
		if !okFrom || !okTo {
			s.DroppedEdges++
			continue
		}
		s.EdgeCount++
		if from == to {
			s.SelfLoops++
			continue
		}
		dg.SetEdge(dg.NewEdge(simple.Node(from), simple.Node(to)))
	}

	order, err := topo.Sort(dg)
	if err != nil {
		// topo.Unorderable: at least one cycle
		return s
	}
	s.Acyclic = s.SelfLoops == 0

	// longest path by relaxation in topological order
	depth := make(map[int64]int, len(order))
	for _, n := range order {
		d := 0
		preds := dg.To(n.ID())
		for preds.Next() {
			if pd := depth[preds.Node().ID()] + 1; pd > d {
				d = pd
			}
		}
		depth[n.ID()] = d
		if d > s.LongestPath {
			s.LongestPath = d
		}
	}

	return s
}
