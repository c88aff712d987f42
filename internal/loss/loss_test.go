// Package loss provides unit tests for the classification loss.
package loss

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestCrossEntropyForward tests -log(p[label]).
func TestCrossEntropyForward(t *testing.T) {
	ce := CrossEntropy{}

	tests := []struct {
		name  string
		pred  []float64
		label int
		want  float64
	}{
		{"confident correct", []float64{0.9, 0.05, 0.05}, 0, -math.Log(0.9)},
		{"uniform", []float64{0.25, 0.25, 0.25, 0.25}, 2, math.Log(4)},
		{"certain", []float64{0, 1}, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ce.Forward(tt.pred, tt.label), 1e-12)
		})
	}
}

// TestCrossEntropyProbabilityClipping tests zero probability stays finite.
func TestCrossEntropyProbabilityClipping(t *testing.T) {
	l := CrossEntropy{}.Forward([]float64{1, 0}, 1)

	assert.False(t, math.IsInf(l, 0))
	assert.Less(t, MaxLoss, -math.Log(ProbEpsilon))
	assert.Equal(t, MaxLoss, l)

	l = CrossEntropy{}.Forward([]float64{1 - 1e-6, 1e-6}, 1)
	assert.InDelta(t, -math.Log(1e-6), l, 1e-6)
}

func TestCrossEntropyNaNPropagates(t *testing.T) {
	l := CrossEntropy{}.Forward([]float64{math.NaN(), 0.5}, 0)
	assert.True(t, math.IsNaN(l))
	assert.False(t, Finite(l, MaxLoss))
}

// TestCrossEntropyBackward tests the softmax-combined gradient.
func TestCrossEntropyBackward(t *testing.T) {
	pred := []float64{0.7, 0.2, 0.1}
	grad := CrossEntropy{}.Backward(pred, 1)

	assert.InDeltaSlice(t, []float64{0.7, -0.8, 0.1}, grad, 1e-12)

	sum := 0.0
	for _, g := range grad {
		sum += g
	}
	assert.InDelta(t, 0, sum, 1e-12, "gradient over a distribution sums to zero")
}

func TestCrossEntropyLabelOutOfRange(t *testing.T) {
	assert.Panics(t, func() { CrossEntropy{}.Forward([]float64{0.5, 0.5}, 2) })
	assert.Panics(t, func() { CrossEntropy{}.BackwardInPlace([]float64{0.5, 0.5}, -1, make([]float64, 2)) })
}

func TestOneHot(t *testing.T) {
	assert.Equal(t, []float64{0, 0, 1}, OneHot(2, 3))
	assert.Equal(t, []float64{0, 0}, OneHot(5, 2))
}

func TestFinite(t *testing.T) {
	assert.True(t, Finite(1.5, 10))
	assert.False(t, Finite(math.Inf(1), 10))
	assert.False(t, Finite(11, 10))
}
