// Package loss provides benchmarks for loss functions.
package loss

import (
	"math/rand"
	"testing"
)

// BenchmarkCrossEntropy benchmarks loss plus gradient for one sample.
func BenchmarkCrossEntropy(b *testing.B) {
	ce := CrossEntropy{}
	yPred := make([]float64, 50)
	for i := range yPred {
		yPred[i] = rand.Float64() / 50
	}
	grad := make([]float64, len(yPred))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ce.Forward(yPred, i%len(yPred))
		ce.BackwardInPlace(yPred, i%len(yPred), grad)
	}
}
