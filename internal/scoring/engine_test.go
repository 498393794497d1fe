package scoring

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphscore/internal/dag"
)

func TestEngineComputeScenarios(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	ctx := context.Background()

	t.Run("feature only", func(t *testing.T) {
		res, err := engine.Compute(ctx, "1", scenarioOne(), nil)
		require.NoError(t, err)
		assert.Equal(t, Scores{Replacement: 0, Completeness: 1}, res.Scores)
		assert.Equal(t, 2, res.NodeCount)
		assert.False(t, res.ShortCircuited)
	})

	t.Run("embedding and error", func(t *testing.T) {
		res, err := engine.Compute(ctx, "2", scenarioTwo(), nil)
		require.NoError(t, err)
		assert.InDelta(t, 0.75, res.Scores.Replacement, 1e-12)
		assert.Equal(t, 2, res.Iterations)
	})

	t.Run("pins exclude every feature", func(t *testing.T) {
		res, err := engine.Compute(ctx, "3", scenarioTwo(), []string{"E", "not-a-node"})
		require.NoError(t, err)
		assert.True(t, res.ShortCircuited)
		assert.Equal(t, Scores{}, res.Scores)
	})
}

func TestEngineComputePinnedSubset(t *testing.T) {
	engine := NewEngine(DefaultOptions())

	res, err := engine.Compute(context.Background(), "4", layeredGraph(), []string{"f1a", "f2a", "f3a"})
	require.NoError(t, err)
	assert.Equal(t, 8, res.NodeCount, "f1b and err1 are filtered out")
	assert.Equal(t, 3, res.DroppedEdges)
	assertScoreBounds(t, res.Scores)
}

func TestEngineComputeDeterministic(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	g := layeredGraph()

	first, err := engine.Compute(context.Background(), "5", g, nil)
	require.NoError(t, err)
	assertScoreBounds(t, first.Scores)

	for i := 0; i < 3; i++ {
		again, err := engine.Compute(context.Background(), "5", g, nil)
		require.NoError(t, err)
		assert.Equal(t, first.Scores, again.Scores)
	}

	reversed := &dag.Graph{Links: g.Links}
	for i := len(g.Nodes) - 1; i >= 0; i-- {
		reversed.Nodes = append(reversed.Nodes, g.Nodes[i])
	}
	again, err := engine.Compute(context.Background(), "5", reversed, nil)
	require.NoError(t, err)
	assert.Equal(t, first.Scores, again.Scores)
}

func TestEngineComputeEmptyGraph(t *testing.T) {
	res, err := NewEngine(DefaultOptions()).Compute(context.Background(), "6", &dag.Graph{}, nil)
	require.NoError(t, err)
	assert.Equal(t, Scores{}, res.Scores)
	assert.Zero(t, res.NodeCount)
}

func TestEngineComputeErrors(t *testing.T) {
	engine := NewEngine(Options{MaxIterations: 20})

	cyclic := &dag.Graph{
		Nodes: []dag.Node{transcoder("a", "1", 0, 0), transcoder("b", "2", 0, 0), logit("L", "3", 0, 1)},
		Links: []dag.Edge{link("a", "b", 1), link("b", "a", 1), link("b", "L", 1)},
	}
	invalid := scenarioOne()
	invalid.Links[0].Weight = math.NaN()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		g    *dag.Graph
		want error
	}{
		{"nil graph", context.Background(), nil, ErrInputMalformed},
		{"non-finite weight", context.Background(), invalid, ErrInputMalformed},
		{"cycle", context.Background(), cyclic, ErrNonConvergence},
		{"cancelled", cancelled, scenarioOne(), ErrWorkerTerminated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := engine.Compute(tt.ctx, "7", tt.g, nil)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestNewEngineDefaults(t *testing.T) {
	opts := NewEngine(Options{DuplicateEdges: DuplicateSum}).Options()
	assert.Equal(t, DefaultMaxIterations, opts.MaxIterations)
	assert.Equal(t, DefaultConvergenceThreshold, opts.ConvergenceThreshold)
	assert.Equal(t, DefaultNormalizationEpsilon, opts.NormalizationEpsilon)
	assert.Equal(t, DuplicateSum, opts.DuplicateEdges)
}

func TestEngineErrorFormatting(t *testing.T) {
	err := NewError(CodeNonConvergence, "stuck after %d", 3).WithRequestID(9)
	assert.Equal(t, "NON_CONVERGENCE: stuck after 3", err.Error())
	require.NotNil(t, err.RequestID)
	assert.Equal(t, 9, *err.RequestID)
	assert.Equal(t, CodeNonConvergence, CodeOf(err))
	assert.Equal(t, CodeInputMalformed, CodeOf(errors.New("plain")))
	assert.False(t, errors.Is(err, ErrWorkerTerminated))
}

func assertScoreBounds(t *testing.T, s Scores) {
	t.Helper()
	for _, v := range []float64{s.Replacement, s.Completeness} {
		assert.False(t, math.IsNaN(v))
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}
