package scoring

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"gonum.org/v1/gonum/mat"

	"graphscore/internal/dag"
)

// DuplicateEdgePolicy decides how repeated (source, target) pairs combine.
type DuplicateEdgePolicy int

const (
	// DuplicateOverwrite keeps the weight of the last occurrence.
	DuplicateOverwrite DuplicateEdgePolicy = iota
	// DuplicateSum adds the weights of all occurrences.
	DuplicateSum
)

// ParseDuplicateEdgePolicy accepts "overwrite" or "sum".
func ParseDuplicateEdgePolicy(s string) (DuplicateEdgePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "overwrite":
		return DuplicateOverwrite, nil
	case "sum":
		return DuplicateSum, nil
	default:
		return DuplicateOverwrite, fmt.Errorf("unknown duplicate edge policy %q", s)
	}
}

func (p DuplicateEdgePolicy) String() string {
	if p == DuplicateSum {
		return "sum"
	}
	return "overwrite"
}

// Adjacency is the dense weighted adjacency of a graph in canonical order.
// Matrix.At(dst, src) holds the weight of the edge src -> dst.
type Adjacency struct {
	Nodes        []dag.Node
	Index        map[string]int
	Matrix       *mat.Dense
	DroppedEdges int
}

// Size is the number of nodes (rows and columns).
func (a *Adjacency) Size() int {
	return len(a.Nodes)
}

// compareNodes orders by (type priority, layer number, ctx_idx, feature index),
// then by id so that the order is total.
func compareNodes(a, b dag.Node) int {
	return cmp.Or(
		cmp.Compare(a.FeatureType.Priority(), b.FeatureType.Priority()),
		cmp.Compare(a.LayerNumber(), b.LayerNumber()),
		cmp.Compare(a.CtxIdx, b.CtxIdx),
		cmp.Compare(a.FeatureIndex, b.FeatureIndex),
		strings.Compare(a.ID, b.ID),
	)
}

// CanonicalOrder returns a sorted copy of nodes. The input is not modified.
func CanonicalOrder(nodes []dag.Node) []dag.Node {
	sorted := slices.Clone(nodes)
	slices.SortStableFunc(sorted, compareNodes)
	return sorted
}

// BuildAdjacency assigns canonical indices and fills the N x N matrix.
// Edges naming an unknown node are skipped and counted in DroppedEdges.
// An empty node list yields an Adjacency with a nil Matrix.
func BuildAdjacency(g *dag.Graph, policy DuplicateEdgePolicy) *Adjacency {
	nodes := CanonicalOrder(g.Nodes)
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
	}

	adj := &Adjacency{Nodes: nodes, Index: index}
	if len(nodes) == 0 {
		adj.DroppedEdges = len(g.Links)
		return adj
	}

	m := mat.NewDense(len(nodes), len(nodes), nil)
	for _, e := range g.Links {
		src, ok := index[e.Source]
		if !ok {
			adj.DroppedEdges++
			continue
		}
		dst, ok := index[e.Target]
		if !ok {
			adj.DroppedEdges++
			continue
		}
		if policy == DuplicateSum {
			m.Set(dst, src, m.At(dst, src)+e.Weight)
		} else {
			m.Set(dst, src, e.Weight)
		}
	}
	adj.Matrix = m
	return adj
}

// LogitWeights returns the vector holding each Logit node's token
// probability at its canonical index and zero elsewhere.
func (a *Adjacency) LogitWeights() *mat.VecDense {
	if a.Size() == 0 {
		return nil
	}
	w := mat.NewVecDense(a.Size(), nil)
	for i, n := range a.Nodes {
		if n.FeatureType == dag.FeatureLogit {
			w.SetVec(i, n.TokenProbability)
		}
	}
	return w
}
