// Package layer provides benchmarks for neural network layer implementations.
package layer

import (
	"math/rand"
	"testing"
)

// BenchmarkDenseFull benchmarks a complete forward and backward pass.
func BenchmarkDenseFull(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	layer := NewDense(406, 64, HeNormal, rng)
	input := randVec(rng, 406)
	grad := randVec(rng, 64)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		layer.Forward(input)
		layer.Backward(grad)
	}
}

// BenchmarkConv1DFull benchmarks the default classifier convolution.
func BenchmarkConv1DFull(b *testing.B) {
	rng := rand.New(rand.NewSource(2))
	layer := NewConv1D(1, 16, 5, 2, 2, 406, HeNormal, rng)
	input := randVec(rng, layer.InputDim())
	grad := randVec(rng, layer.OutputDim())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		layer.Forward(input)
		layer.Backward(grad)
	}
}
