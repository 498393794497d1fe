package scoring

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	DefaultMaxIterations        = 1000
	DefaultConvergenceThreshold = 1e-10
)

// Propagation is the accumulated backward influence of the logit weights.
type Propagation struct {
	Total      *mat.VecDense
	Iterations int
}

// Propagate sums the finite Neumann series
//
//	total = Aᵀw + (Aᵀ)²w + ...
//
// stopping once every entry of the latest step is below threshold in
// magnitude. On an acyclic graph the series reaches an exactly zero step
// after at most depth+1 products. When maxIterations further products do
// not reach that point a NON_CONVERGENCE error is returned and no partial
// result is produced.
//
// ctx is checked between iterations.
func Propagate(ctx context.Context, a *mat.Dense, logitWeights *mat.VecDense, maxIterations int, threshold float64) (*Propagation, error) {
	if a == nil || logitWeights == nil {
		return &Propagation{}, nil
	}
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	if threshold <= 0 {
		threshold = DefaultConvergenceThreshold
	}

	n, _ := a.Dims()
	at := a.T()

	step := mat.NewVecDense(n, nil)
	step.MulVec(at, logitWeights)
	total := mat.VecDenseCopyOf(step)

	// next and step swap each round; MulVec must not alias its receiver.
	next := mat.NewVecDense(n, nil)
	iterations := 0
	for !belowThreshold(step, threshold) {
		if iterations >= maxIterations {
			return nil, NewError(CodeNonConvergence,
				"influence computation failed to converge after %d iterations", iterations)
		}
		if err := ctx.Err(); err != nil {
			return nil, Wrap(CodeWorkerTerminated, err, "propagation cancelled")
		}

		next.MulVec(at, step)
		step, next = next, step
		total.AddVec(total, step)
		iterations++
	}

	return &Propagation{Total: total, Iterations: iterations}, nil
}

func belowThreshold(v *mat.VecDense, threshold float64) bool {
	for i := 0; i < v.Len(); i++ {
		if math.Abs(v.AtVec(i)) >= threshold {
			return false
		}
	}
	return true
}
