// Package activations provides the elementwise and softmax math shared by every layer.
//
// All numeric-stability guards used by the activations live here as named
// constants so they are tuned in one place.
package activations

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// MaxExpArg bounds the argument passed to math.Exp inside Softmax.
	// exp(80) is ~5.5e34, far from float64 overflow.
	MaxExpArg = 80.0

	// SumEpsilon floors the softmax normalizer so it never divides by zero.
	SumEpsilon = 1e-7
)

// ReLU activation function.
type ReLU struct{}

// Forward computes max(0, x) elementwise, in place.
func (r ReLU) Forward(x []float64) []float64 {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
	return x
}

// Backward zeroes grad wherever the forward output was not positive.
func (r ReLU) Backward(out, grad []float64) []float64 {
	if len(out) != len(grad) {
		panic("ReLU: output and gradient must have same length")
	}
	for i := range grad {
		if !(out[i] > 0) {
			grad[i] = 0
		}
	}
	return grad
}

// Softmax activation function for the output layer.
type Softmax struct{}

// Forward computes the numerically stabilized softmax of x in place.
// The row max is subtracted first, each exponent argument is clamped to
// [-MaxExpArg, MaxExpArg] and the normalizer is floored at SumEpsilon.
func (s Softmax) Forward(x []float64) []float64 {
	if len(x) == 0 {
		return x
	}

	maxVal := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > maxVal {
			maxVal = x[i]
		}
	}

	sum := 0.0
	for i := range x {
		arg := x[i] - maxVal
		if arg > MaxExpArg {
			arg = MaxExpArg
		} else if arg < -MaxExpArg {
			arg = -MaxExpArg
		}
		x[i] = math.Exp(arg)
		sum += x[i]
	}

	if sum < SumEpsilon {
		sum = SumEpsilon
	}
	for i := range x {
		x[i] /= sum
	}

	return x
}

// Backward is the identity: the softmax Jacobian is folded into the
// cross-entropy gradient (output - oneHot), which is what callers pass in.
func (s Softmax) Backward(out, grad []float64) []float64 {
	return grad
}

// Argmax returns the index of the largest element of x, or -1 for an empty slice.
func Argmax(x []float64) int {
	if len(x) == 0 {
		return -1
	}
	return floats.MaxIdx(x)
}
