package scoring

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultNormalizationEpsilon floors row sums during normalization.
const DefaultNormalizationEpsilon = 1e-10

// NormalizeRows returns a new matrix whose rows are the absolute values of
// m's rows divided by their sum. Row sums are floored at epsilon, so rows
// that are all zero stay all zero. m is not modified.
func NormalizeRows(m *mat.Dense, epsilon float64) *mat.Dense {
	if m == nil {
		return nil
	}
	if epsilon <= 0 {
		epsilon = DefaultNormalizationEpsilon
	}

	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, _ int, v float64) float64 { return math.Abs(v) }, m)

	for i := 0; i < r; i++ {
		row := out.RawRowView(i)
		sum := 0.0
		for _, v := range row {
			sum += v
		}
		sum = math.Max(sum, epsilon)
		for j := range row {
			row[j] /= sum
		}
	}
	return out
}
