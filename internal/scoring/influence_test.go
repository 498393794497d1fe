package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"graphscore/internal/dag"
)

func propagateGraph(t *testing.T, g *dag.Graph, maxIter int) (*Adjacency, *mat.Dense, *Propagation, error) {
	t.Helper()
	adj := BuildAdjacency(g, DuplicateOverwrite)
	a := NormalizeRows(adj.Matrix, DefaultNormalizationEpsilon)
	prop, err := Propagate(context.Background(), a, adj.LogitWeights(), maxIter, DefaultConvergenceThreshold)
	return adj, a, prop, err
}

func TestPropagateScenarioOne(t *testing.T) {
	adj, _, prop, err := propagateGraph(t, scenarioOne(), DefaultMaxIterations)
	require.NoError(t, err)

	assert.Equal(t, 0.8, prop.Total.AtVec(adj.Index["f"]))
	assert.Equal(t, 0.0, prop.Total.AtVec(adj.Index["L"]))
	assert.Equal(t, 1, prop.Iterations)
}

func TestPropagateScenarioTwo(t *testing.T) {
	adj, _, prop, err := propagateGraph(t, scenarioTwo(), DefaultMaxIterations)
	require.NoError(t, err)

	assert.InDelta(t, 0.9, prop.Total.AtVec(adj.Index["f"]), 1e-12)
	assert.InDelta(t, 0.675, prop.Total.AtVec(adj.Index["E"]), 1e-12)
	assert.InDelta(t, 0.225, prop.Total.AtVec(adj.Index["Err"]), 1e-12)
	assert.Equal(t, 2, prop.Iterations)
}

func TestPropagateTerminatesWithinDepth(t *testing.T) {
	g := layeredGraph()
	_, _, prop, err := propagateGraph(t, g, DefaultMaxIterations)
	require.NoError(t, err)

	s := dag.Analyze(g)
	require.True(t, s.Acyclic)
	assert.LessOrEqual(t, prop.Iterations, s.DistinctLayers+2)
}

func TestPropagateCycleFails(t *testing.T) {
	g := &dag.Graph{
		Nodes: []dag.Node{
			transcoder("a", "1", 0, 0),
			transcoder("b", "2", 0, 0),
			logit("L", "3", 0, 1.0),
		},
		Links: []dag.Edge{
			link("a", "b", 1),
			link("b", "a", 1),
			link("b", "L", 1),
		},
	}

	_, _, prop, err := propagateGraph(t, g, 50)
	require.Error(t, err)
	assert.Nil(t, prop)
	assert.True(t, errors.Is(err, ErrNonConvergence))
	assert.Contains(t, err.Error(), "after 50 iterations")
}

func TestPropagateCancelled(t *testing.T) {
	adj := BuildAdjacency(scenarioTwo(), DuplicateOverwrite)
	a := NormalizeRows(adj.Matrix, DefaultNormalizationEpsilon)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Propagate(ctx, a, adj.LogitWeights(), 0, 0)
	assert.True(t, errors.Is(err, ErrWorkerTerminated))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPropagateNilInput(t *testing.T) {
	prop, err := Propagate(context.Background(), nil, nil, 0, 0)
	require.NoError(t, err)
	assert.Nil(t, prop.Total)
	assert.Zero(t, prop.Iterations)
}
