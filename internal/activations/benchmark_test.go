// Package activations provides benchmarks for activation functions.
package activations

import (
	"math/rand"
	"testing"
)

// fillRandom fills a slice with random values.
func fillRandom(slice []float64) {
	for i := range slice {
		slice[i] = rand.Float64()*2 - 1
	}
}

// BenchmarkReLUForward benchmarks the in-place ReLU forward pass.
func BenchmarkReLUForward(b *testing.B) {
	relu := ReLU{}
	inputs := make([]float64, 1000)
	buf := make([]float64, 1000)
	fillRandom(inputs)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		copy(buf, inputs)
		relu.Forward(buf)
	}
}

// BenchmarkSoftmax benchmarks softmax over a classifier-sized output.
func BenchmarkSoftmax(b *testing.B) {
	inputs := make([]float64, 64)
	buf := make([]float64, 64)
	fillRandom(inputs)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		copy(buf, inputs)
		Softmax{}.Forward(buf)
	}
}
