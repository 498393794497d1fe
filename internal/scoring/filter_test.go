package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphscore/internal/dag"
)

func nodeIDs(nodes []dag.Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

func TestFilterPinnedPassthrough(t *testing.T) {
	g := layeredGraph()

	out, transcoders := FilterPinned(g, nil)
	assert.Same(t, g, out)
	assert.Equal(t, 4, transcoders)
}

func TestFilterPinnedKeepsConnectedErrors(t *testing.T) {
	g := layeredGraph()

	out, transcoders := FilterPinned(g, []string{"f1b", "missing"})
	require.Equal(t, 1, transcoders)

	ids := nodeIDs(out.Nodes)
	assert.Contains(t, ids, "f1b")
	assert.Contains(t, ids, "err1", "err1 feeds f1b")
	assert.NotContains(t, ids, "err2", "err2 only feeds the unpinned f2a")
	assert.NotContains(t, ids, "f1a")
	assert.NotContains(t, ids, "f2a")
	for _, keep := range []string{"emb0", "emb1", "L0", "L1"} {
		assert.Contains(t, ids, keep)
	}
	assert.Equal(t, g.Links, out.Links)
	assert.Len(t, g.Nodes, 10, "input must not be modified")
}

func TestFilterPinnedErrorConnectedInEitherDirection(t *testing.T) {
	g := &dag.Graph{
		Nodes: []dag.Node{
			transcoder("f", "1", 0, 0),
			errorNode("downstream", "2", 0),
		},
		Links: []dag.Edge{link("f", "downstream", 1)},
	}

	out, transcoders := FilterPinned(g, []string{"f"})
	assert.Equal(t, 1, transcoders)
	assert.ElementsMatch(t, []string{"f", "downstream"}, nodeIDs(out.Nodes))
}

func TestFilterPinnedIgnoresNonTranscoderPins(t *testing.T) {
	g := scenarioTwo()

	out, transcoders := FilterPinned(g, []string{"E", "L"})
	assert.Zero(t, transcoders)
	assert.ElementsMatch(t, []string{"E", "L"}, nodeIDs(out.Nodes))
}
