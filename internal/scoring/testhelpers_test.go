package scoring

import "graphscore/internal/dag"

func transcoder(id, layer string, ctx, feature int) dag.Node {
	return dag.Node{ID: id, FeatureType: dag.FeatureTranscoder, Layer: layer, CtxIdx: ctx, FeatureIndex: feature}
}

func errorNode(id, layer string, ctx int) dag.Node {
	return dag.Node{ID: id, FeatureType: dag.FeatureErrorResidual, Layer: layer, CtxIdx: ctx}
}

func embedding(id string, ctx int) dag.Node {
	return dag.Node{ID: id, FeatureType: dag.FeatureEmbedding, Layer: dag.EmbeddingLayer, CtxIdx: ctx}
}

func logit(id, layer string, ctx int, prob float64) dag.Node {
	return dag.Node{ID: id, FeatureType: dag.FeatureLogit, Layer: layer, CtxIdx: ctx, TokenProbability: prob}
}

func link(src, dst string, w float64) dag.Edge {
	return dag.Edge{Source: src, Target: dst, Weight: w}
}

// scenarioOne is a single feature feeding a single logit.
func scenarioOne() *dag.Graph {
	return &dag.Graph{
		Nodes: []dag.Node{
			transcoder("f", "0", 0, 0),
			logit("L", "1", 0, 0.8),
		},
		Links: []dag.Edge{link("f", "L", 2.0)},
	}
}

// scenarioTwo mixes embedding and error contributions into one feature.
func scenarioTwo() *dag.Graph {
	return &dag.Graph{
		Nodes: []dag.Node{
			embedding("E", 0),
			errorNode("Err", "0", 0),
			transcoder("f", "1", 0, 0),
			logit("L", "2", 0, 0.9),
		},
		Links: []dag.Edge{
			link("E", "f", 3),
			link("Err", "f", 1),
			link("f", "L", 1),
		},
	}
}

// layeredGraph builds a deeper graph with several features per layer.
func layeredGraph() *dag.Graph {
	return &dag.Graph{
		Nodes: []dag.Node{
			embedding("emb0", 0),
			embedding("emb1", 1),
			errorNode("err1", "1", 1),
			errorNode("err2", "2", 1),
			transcoder("f1a", "1", 0, 3),
			transcoder("f1b", "1", 1, 7),
			transcoder("f2a", "2", 1, 1),
			transcoder("f3a", "3", 1, 2),
			logit("L0", "4", 1, 0.6),
			logit("L1", "4", 1, 0.3),
		},
		Links: []dag.Edge{
			link("emb0", "f1a", 1.5),
			link("emb1", "f1b", -2.0),
			link("err1", "f1b", 0.5),
			link("f1a", "f2a", 0.7),
			link("f1b", "f2a", -0.4),
			link("err2", "f2a", 0.2),
			link("emb1", "f2a", 0.1),
			link("f2a", "f3a", 1.1),
			link("f1a", "f3a", 0.3),
			link("f3a", "L0", 2.0),
			link("f2a", "L1", 0.9),
			link("emb0", "L1", 0.05),
		},
	}
}
