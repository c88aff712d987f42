// Package opt provides the optimizer, gradient clipping and learning rate schedule.
package opt

import "gonum.org/v1/gonum/floats"

// Optimizer updates network parameters based on gradients.
type Optimizer interface {
	// StepInPlace updates params in-place: params = params - lr * gradients
	StepInPlace(params, gradients []float64)

	LearningRate() float64
	SetLearningRate(lr float64)
}

// SGD (Stochastic Gradient Descent) optimizer without momentum.
type SGD struct {
	lr float64
}

// NewSGD creates a plain SGD optimizer.
func NewSGD(learningRate float64) *SGD {
	return &SGD{lr: learningRate}
}

// StepInPlace updates params in-place: params = params - lr * gradients
func (s *SGD) StepInPlace(params, gradients []float64) {
	floats.AddScaled(params, -s.lr, gradients)
}

// LearningRate returns the current learning rate.
func (s *SGD) LearningRate() float64 {
	return s.lr
}

// SetLearningRate replaces the learning rate.
func (s *SGD) SetLearningRate(lr float64) {
	s.lr = lr
}

// ClipNorm rescales grad in place so its L2 norm is at most maxNorm, keeping
// its direction. It returns the norm before clipping. A non-positive maxNorm
// disables clipping.
func ClipNorm(grad []float64, maxNorm float64) float64 {
	norm := floats.Norm(grad, 2)
	if maxNorm > 0 && norm > maxNorm {
		floats.Scale(maxNorm/norm, grad)
	}
	return norm
}
