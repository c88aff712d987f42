// Package activations provides unit tests for activation functions.
package activations

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestReLU tests ReLU activation.
func TestReLU(t *testing.T) {
	relu := ReLU{}

	tests := []struct {
		input    float64
		expected float64
	}{
		{-1.0, 0.0}, // Negative -> 0
		{0.0, 0.0},  // Zero -> 0
		{1.0, 1.0},  // Positive -> identity
		{2.5, 2.5},
		{-0.1, 0.0},
	}

	for _, tt := range tests {
		x := []float64{tt.input}
		assert.Equal(t, tt.expected, relu.Forward(x)[0], "ReLU(%v)", tt.input)
	}

	x := []float64{-1, 0, 1, 2.5, -0.1}
	out := relu.Forward(x)
	assert.Equal(t, []float64{0, 0, 1, 2.5, 0}, out)
}

// TestReLUBackwardMasksByOutput checks the gradient is zero exactly where the
// forward output was zero and passes through unchanged elsewhere.
func TestReLUBackwardMasksByOutput(t *testing.T) {
	relu := ReLU{}
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 20; trial++ {
		x := make([]float64, 32)
		upstream := make([]float64, 32)
		for i := range x {
			x[i] = rng.NormFloat64()
			upstream[i] = rng.NormFloat64()
		}
		out := relu.Forward(append([]float64(nil), x...))
		grad := relu.Backward(out, append([]float64(nil), upstream...))

		for i := range grad {
			if out[i] == 0 {
				assert.Equal(t, 0.0, grad[i], "position %d", i)
			} else {
				assert.Equal(t, upstream[i], grad[i], "position %d", i)
			}
		}
	}
}

// TestSoftmaxSumsToOne tests softmax normalization on assorted finite inputs.
func TestSoftmaxSumsToOne(t *testing.T) {
	inputs := [][]float64{
		{1, 2, 3},
		{0, 0, 0, 0},
		{-1000, 0, 1000},
		{1e6, 1e6 + 1},
		{-3.5},
		{42, -42, 7, 0.001, -0.5},
	}

	for _, in := range inputs {
		out := Softmax{}.Forward(append([]float64(nil), in...))
		sum := 0.0
		for _, p := range out {
			require.False(t, math.IsNaN(p) || math.IsInf(p, 0), "softmax(%v) produced %v", in, out)
			assert.GreaterOrEqual(t, p, 0.0)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-5, "softmax(%v)", in)
	}
}

// TestSoftmaxShiftInvariant tests that adding a constant leaves softmax unchanged.
func TestSoftmaxShiftInvariant(t *testing.T) {
	base := []float64{0.3, -1.2, 2.7, 0.0, 1.1}
	want := Softmax{}.Forward(append([]float64(nil), base...))

	for _, c := range []float64{-50, -1, 0.5, 10, 300} {
		shifted := make([]float64, len(base))
		for i, v := range base {
			shifted[i] = v + c
		}
		got := Softmax{}.Forward(shifted)
		assert.InDeltaSlice(t, want, got, 1e-9, "shift %v", c)
	}
}

// TestSoftmaxKnownValues checks softmax against a hand computed case.
func TestSoftmaxKnownValues(t *testing.T) {
	got := Softmax{}.Forward([]float64{1, 2, 3})
	e1, e2, e3 := math.Exp(-2), math.Exp(-1), 1.0
	s := e1 + e2 + e3
	assert.InDeltaSlice(t, []float64{e1 / s, e2 / s, e3 / s}, got, 1e-12)
}

func TestArgmax(t *testing.T) {
	assert.Equal(t, -1, Argmax(nil))
	assert.Equal(t, 2, Argmax([]float64{0.1, 0.2, 0.7}))
	assert.Equal(t, 0, Argmax([]float64{5}))
}
