package scoring

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"graphscore/internal/dag"
)

// Scores holds the two faithfulness diagnostics.
type Scores struct {
	Replacement  float64 `json:"replacementScore"`
	Completeness float64 `json:"completenessScore"`
}

// Ranges are the contiguous index ranges of the canonical order:
// [0,Features) Transcoder, [Features,ErrorEnd) ErrorResidual,
// [ErrorEnd,TokenEnd) Embedding, the remainder Logit and Other.
type Ranges struct {
	Features int
	ErrorEnd int
	TokenEnd int
}

// ComputeRanges derives the ranges from canonically ordered nodes.
// ErrorEnd is the index of the first Embedding node, or Features when the
// graph has none.
func ComputeRanges(nodes []dag.Node) Ranges {
	r := Ranges{Features: countType(nodes, dag.FeatureTranscoder)}

	r.ErrorEnd = r.Features
	for i, n := range nodes {
		if n.FeatureType == dag.FeatureEmbedding {
			r.ErrorEnd = i
			break
		}
	}
	r.TokenEnd = r.ErrorEnd + countType(nodes, dag.FeatureEmbedding)
	return r
}

// CalculateScores decomposes the total influence into the replacement and
// completeness scores. a is the normalized adjacency. Division by zero
// yields zero. Scores are not clamped here.
func CalculateScores(a *mat.Dense, total, logitWeights *mat.VecDense, r Ranges) Scores {
	if a == nil || total == nil || logitWeights == nil {
		return Scores{}
	}
	n := total.Len()

	tokenInfluence := sumRange(total, r.ErrorEnd, r.TokenEnd)
	errorInfluence := sumRange(total, r.Features, r.ErrorEnd)

	var weighted, output float64
	for k := 0; k < n; k++ {
		row := a.RawRowView(k)
		nonError := 1.0
		for j := r.Features; j < r.ErrorEnd && j < len(row); j++ {
			nonError -= row[j]
		}
		influence := total.AtVec(k) + logitWeights.AtVec(k)
		weighted += nonError * influence
		output += influence
	}

	return Scores{
		Replacement:  safeDiv(tokenInfluence, tokenInfluence+errorInfluence),
		Completeness: safeDiv(weighted, output),
	}
}

func sumRange(v *mat.VecDense, from, to int) float64 {
	sum := 0.0
	for i := from; i < to && i < v.Len(); i++ {
		sum += v.AtVec(i)
	}
	return sum
}

// safeDiv returns zero instead of NaN or an infinity.
func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	v := num / den
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// clamp01 limits v to [0,1] and reports whether it changed.
func clamp01(v float64) (float64, bool) {
	switch {
	case v < 0:
		return 0, true
	case v > 1:
		return 1, true
	default:
		return v, false
	}
}
