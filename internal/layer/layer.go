// Package layer provides the differentiable linear transforms of the network.
package layer

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Layer is a parameterized, differentiable linear transform.
//
// Forward returns a buffer owned by the layer that stays valid until the next
// Forward call. Backward stores the parameter gradients of the last forward
// input and returns the gradient w.r.t. that input.
type Layer interface {
	Forward(x []float64) []float64
	Backward(grad []float64) []float64

	// Params returns the live parameter slice laid out as [weights | biases].
	Params() []float64
	SetParams([]float64)
	// Gradients returns the live gradient slice, same layout as Params.
	Gradients() []float64

	// InSize and OutSize are the weight matrix columns and rows as stored
	// in a checkpoint.
	InSize() int
	OutSize() int

	// InputDim and OutputDim are the flattened vector lengths of Forward.
	InputDim() int
	OutputDim() int
}

// Dense is a fully connected layer: out = W·in + b.
// Uses contiguous memory layout with pre-allocated buffers for minimal allocations.
type Dense struct {
	// params holds weights then biases. Weight for output i, input j is at
	// params[i*inSize + j].
	params  []float64
	weights []float64
	biases  []float64
	outSize int
	inSize  int

	// grads mirrors params.
	grads []float64
	gradW []float64
	gradB []float64

	inputBuf  []float64
	outputBuf []float64
	gradInBuf []float64
}

// NewDense creates a dense layer initialized with policy.
func NewDense(in, out int, policy InitPolicy, rng *rand.Rand) *Dense {
	if in <= 0 || out <= 0 {
		panic(fmt.Sprintf("Dense: invalid shape %dx%d", out, in))
	}

	params := make([]float64, out*in+out)
	grads := make([]float64, len(params))
	d := &Dense{
		params:    params,
		weights:   params[:out*in],
		biases:    params[out*in:],
		outSize:   out,
		inSize:    in,
		grads:     grads,
		gradW:     grads[:out*in],
		gradB:     grads[out*in:],
		inputBuf:  make([]float64, in),
		outputBuf: make([]float64, out),
		gradInBuf: make([]float64, in),
	}
	policy.Fill(d.weights, in, out, rng)
	return d
}

// Forward performs a forward pass through the dense layer.
func (d *Dense) Forward(x []float64) []float64 {
	if len(x) != d.inSize {
		panic(fmt.Sprintf("Dense: input length %d, want %d", len(x), d.inSize))
	}
	copy(d.inputBuf, x)

	inSize := d.inSize
	weights := d.weights
	input := d.inputBuf
	for o := 0; o < d.outSize; o++ {
		wBase := o * inSize
		d.outputBuf[o] = d.biases[o] + floats.Dot(weights[wBase:wBase+inSize], input)
	}

	return d.outputBuf
}

// Backward computes dW = grad ⊗ in, db = grad and returns dIn = Wᵀ·grad,
// using the weights as they were during Forward.
func (d *Dense) Backward(grad []float64) []float64 {
	if len(grad) != d.outSize {
		panic(fmt.Sprintf("Dense: gradient length %d, want %d", len(grad), d.outSize))
	}

	inSize := d.inSize
	input := d.inputBuf
	gradIn := d.gradInBuf
	for i := range gradIn {
		gradIn[i] = 0
	}

	for o := 0; o < d.outSize; o++ {
		g := grad[o]
		d.gradB[o] = g
		wBase := o * inSize
		floats.ScaleTo(d.gradW[wBase:wBase+inSize], g, input)
		floats.AddScaled(gradIn, g, d.weights[wBase:wBase+inSize])
	}

	return gradIn
}

// Params returns the live [weights | biases] slice.
func (d *Dense) Params() []float64 {
	return d.params
}

// SetParams updates weights and biases from a flattened slice (in-place).
func (d *Dense) SetParams(params []float64) {
	if len(params) != len(d.params) {
		panic(fmt.Sprintf("Dense: %d params, want %d", len(params), len(d.params)))
	}
	copy(d.params, params)
}

// Gradients returns the live gradient slice.
func (d *Dense) Gradients() []float64 {
	return d.grads
}

// Weights returns the weights slice directly.
func (d *Dense) Weights() []float64 {
	return d.weights
}

// Biases returns the biases slice directly.
func (d *Dense) Biases() []float64 {
	return d.biases
}

// SetWeight sets a single weight at (row, col).
func (d *Dense) SetWeight(row, col int, val float64) {
	d.weights[row*d.inSize+col] = val
}

// SetBias sets a single bias.
func (d *Dense) SetBias(idx int, val float64) {
	d.biases[idx] = val
}

// InSize returns the input size of the layer.
func (d *Dense) InSize() int {
	return d.inSize
}

// OutSize returns the output size of the layer.
func (d *Dense) OutSize() int {
	return d.outSize
}

func (d *Dense) InputDim() int  { return d.inSize }
func (d *Dense) OutputDim() int { return d.outSize }
