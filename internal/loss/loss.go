// Package loss provides the classification loss used by the network.
package loss

import "math"

const (
	// ProbEpsilon floors the predicted probability of the true class before
	// taking its log.
	ProbEpsilon = 1e-7

	// MaxLoss caps the loss a single sample can report. It sits below
	// -log(ProbEpsilon) so a fully wrong prediction reports exactly MaxLoss.
	MaxLoss = 15.0
)

// Loss is a classification loss over a probability vector and a class label.
type Loss interface {
	// Forward computes the loss of the predicted distribution for label.
	Forward(yPred []float64, label int) float64

	// BackwardInPlace writes the gradient w.r.t. the pre-softmax logits into grad.
	BackwardInPlace(yPred []float64, label int, grad []float64)
}

// CrossEntropy is categorical cross entropy over softmax outputs.
type CrossEntropy struct{}

// Forward computes -log(max(yPred[label], ProbEpsilon)), clamped to MaxLoss.
// A NaN probability yields NaN so callers can detect a diverged sample.
func (c CrossEntropy) Forward(yPred []float64, label int) float64 {
	if label < 0 || label >= len(yPred) {
		panic("CrossEntropy: label out of range")
	}

	p := yPred[label]
	if math.IsNaN(p) {
		return math.NaN()
	}
	if p < ProbEpsilon {
		p = ProbEpsilon
	}

	l := -math.Log(p)
	if l > MaxLoss {
		l = MaxLoss
	}
	return l
}

// Backward computes gradient for cross entropy with softmax.
// For cross entropy + softmax, gradient simplifies to (y_pred - oneHot(label)).
func (c CrossEntropy) Backward(yPred []float64, label int) []float64 {
	grad := make([]float64, len(yPred))
	c.BackwardInPlace(yPred, label, grad)
	return grad
}

// BackwardInPlace computes gradient and stores it in the grad slice.
func (c CrossEntropy) BackwardInPlace(yPred []float64, label int, grad []float64) {
	n := len(yPred)
	if n != len(grad) {
		panic("CrossEntropy: slices must have same length")
	}
	if label < 0 || label >= n {
		panic("CrossEntropy: label out of range")
	}

	copy(grad, yPred)
	grad[label] -= 1
}

// OneHot returns a vector of length n with 1 at label and 0 elsewhere.
func OneHot(label, n int) []float64 {
	v := make([]float64, n)
	if label >= 0 && label < n {
		v[label] = 1
	}
	return v
}

// Finite reports whether l is usable as a training loss: not NaN, not
// infinite and not above ceiling.
func Finite(l, ceiling float64) bool {
	return !math.IsNaN(l) && !math.IsInf(l, 0) && l <= ceiling
}
