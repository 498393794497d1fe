package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestNormalizeRows(t *testing.T) {
	m := mat.NewDense(3, 3, []float64{
		0, 3, -1,
		0, 0, 0,
		-2, 0, 0,
	})

	a := NormalizeRows(m, DefaultNormalizationEpsilon)

	assert.Equal(t, []float64{0, 0.75, 0.25}, a.RawRowView(0))
	assert.Equal(t, []float64{0, 0, 0}, a.RawRowView(1))
	assert.Equal(t, []float64{1, 0, 0}, a.RawRowView(2))
	assert.Equal(t, -1.0, m.At(0, 2), "input must not be modified")
}

func TestNormalizeRowsStochastic(t *testing.T) {
	adj := BuildAdjacency(layeredGraph(), DuplicateOverwrite)
	a := NormalizeRows(adj.Matrix, DefaultNormalizationEpsilon)

	r, _ := a.Dims()
	for i := 0; i < r; i++ {
		sum := 0.0
		for _, v := range a.RawRowView(i) {
			assert.GreaterOrEqual(t, v, 0.0)
			sum += v
		}
		if sum != 0 {
			assert.InDelta(t, 1.0, sum, 1e-12, "row %d", i)
		}
	}
}

func TestNormalizeRowsTinyRowIsFloored(t *testing.T) {
	m := mat.NewDense(1, 2, []float64{1e-12, 1e-12})
	a := NormalizeRows(m, DefaultNormalizationEpsilon)

	assert.InDelta(t, 0.01, a.At(0, 0), 1e-15)
	assert.Nil(t, NormalizeRows(nil, 0))
}
