package layer

import (
	"fmt"
	"math/rand"
)

// Conv1D implements a 1D convolutional layer over a fixed-width input.
// Uses direct convolution computation for correctness.
type Conv1D struct {
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     int

	inputWidth  int
	outputWidth int

	// params holds weights [outChannels, inChannels, kernelSize] then biases [outChannels].
	params  []float64
	weights []float64
	biases  []float64

	grads       []float64
	gradWeights []float64
	gradBiases  []float64

	// Saved input for backward pass
	savedInput []float64
	outputBuf  []float64
	gradInBuf  []float64
}

// NewConv1D creates a new 1D convolutional layer.
// inChannels: number of input channels
// outChannels: number of output feature maps
// kernelSize: taps per kernel
// stride: stride for convolution
// padding: zero padding on each side
// inputWidth: positions per input channel
func NewConv1D(inChannels, outChannels, kernelSize, stride, padding, inputWidth int,
	policy InitPolicy, rng *rand.Rand) *Conv1D {

	if inChannels <= 0 || outChannels <= 0 || kernelSize <= 0 || stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("Conv1D: invalid geometry in=%d out=%d k=%d s=%d p=%d",
			inChannels, outChannels, kernelSize, stride, padding))
	}
	outW := ConvOutputWidth(inputWidth, kernelSize, stride, padding)
	if outW <= 0 {
		panic(fmt.Sprintf("Conv1D: input width %d too small for kernel %d", inputWidth, kernelSize))
	}

	nw := outChannels * inChannels * kernelSize
	params := make([]float64, nw+outChannels)
	grads := make([]float64, len(params))
	c := &Conv1D{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		padding:     padding,
		inputWidth:  inputWidth,
		outputWidth: outW,
		params:      params,
		weights:     params[:nw],
		biases:      params[nw:],
		grads:       grads,
		gradWeights: grads[:nw],
		gradBiases:  grads[nw:],
		savedInput:  make([]float64, inChannels*inputWidth),
		outputBuf:   make([]float64, outChannels*outW),
		gradInBuf:   make([]float64, inChannels*inputWidth),
	}
	policy.Fill(c.weights, inChannels*kernelSize, outChannels*kernelSize, rng)
	return c
}

// ConvOutputWidth returns (width + 2*padding - kernel)/stride + 1.
func ConvOutputWidth(width, kernel, stride, padding int) int {
	if stride <= 0 {
		return 0
	}
	span := width + 2*padding - kernel
	if span < 0 {
		return 0
	}
	return span/stride + 1
}

// Forward performs a forward pass through the convolutional layer.
// input: flattened [inChannels, inputWidth]
// Returns: flattened [outChannels, outputWidth]
func (c *Conv1D) Forward(input []float64) []float64 {
	if len(input) != c.inChannels*c.inputWidth {
		panic(fmt.Sprintf("Conv1D: input length %d, want %d", len(input), c.inChannels*c.inputWidth))
	}
	copy(c.savedInput, input)

	kernelSize := c.kernelSize
	inW := c.inputWidth
	outW := c.outputWidth
	ocWeightStride := c.inChannels * kernelSize

	for oc := 0; oc < c.outChannels; oc++ {
		ocWeightBase := oc * ocWeightStride
		for ow := 0; ow < outW; ow++ {
			sum := c.biases[oc]
			start := ow*c.stride - c.padding
			for ic := 0; ic < c.inChannels; ic++ {
				icWeightBase := ocWeightBase + ic*kernelSize
				icInBase := ic * inW
				for k := 0; k < kernelSize; k++ {
					w := start + k
					// Zero padding outside the input
					if w >= 0 && w < inW {
						sum += input[icInBase+w] * c.weights[icWeightBase+k]
					}
				}
			}
			c.outputBuf[oc*outW+ow] = sum
		}
	}

	return c.outputBuf
}

// Backward performs backpropagation through the convolutional layer.
// grad: gradient of loss w.r.t. output (shape: [outChannels, outputWidth] flattened)
// Returns: gradient of loss w.r.t. input
func (c *Conv1D) Backward(grad []float64) []float64 {
	outW := c.outputWidth
	inW := c.inputWidth
	kernelSize := c.kernelSize
	stride := c.stride
	padding := c.padding
	if len(grad) != c.outChannels*outW {
		panic(fmt.Sprintf("Conv1D: gradient length %d, want %d", len(grad), c.outChannels*outW))
	}
	ocWeightStride := c.inChannels * kernelSize

	// Weight gradient: correlate grad with the input window at the same alignment.
	for oc := 0; oc < c.outChannels; oc++ {
		ocWeightBase := oc * ocWeightStride
		gradRow := grad[oc*outW : (oc+1)*outW]

		biasGrad := 0.0
		for _, g := range gradRow {
			biasGrad += g
		}
		c.gradBiases[oc] = biasGrad

		for ic := 0; ic < c.inChannels; ic++ {
			icWeightBase := ocWeightBase + ic*kernelSize
			icInBase := ic * inW
			for k := 0; k < kernelSize; k++ {
				wg := 0.0
				for ow, g := range gradRow {
					w := ow*stride - padding + k
					if w >= 0 && w < inW {
						wg += g * c.savedInput[icInBase+w]
					}
				}
				c.gradWeights[icWeightBase+k] = wg
			}
		}
	}

	// Input gradient: position p receives grad[oc, ow] * W[oc, ic, k] for
	// every (ow, k) with ow*stride - padding + k == p.
	gradIn := c.gradInBuf
	for ic := 0; ic < c.inChannels; ic++ {
		for p := 0; p < inW; p++ {
			g := 0.0
			for oc := 0; oc < c.outChannels; oc++ {
				wBase := oc*ocWeightStride + ic*kernelSize
				for k := 0; k < kernelSize; k++ {
					num := p + padding - k
					if num < 0 || num%stride != 0 {
						continue
					}
					ow := num / stride
					if ow >= outW {
						continue
					}
					g += grad[oc*outW+ow] * c.weights[wBase+k]
				}
			}
			gradIn[ic*inW+p] = g
		}
	}

	return gradIn
}

// Params returns the live [weights | biases] slice.
func (c *Conv1D) Params() []float64 {
	return c.params
}

// SetParams updates weights and biases from a flattened slice.
func (c *Conv1D) SetParams(params []float64) {
	if len(params) != len(c.params) {
		panic(fmt.Sprintf("Conv1D: %d params, want %d", len(params), len(c.params)))
	}
	copy(c.params, params)
}

// Gradients returns the live gradient slice.
func (c *Conv1D) Gradients() []float64 {
	return c.grads
}

// InSize returns the weight columns per output channel: inChannels*kernelSize.
func (c *Conv1D) InSize() int {
	return c.inChannels * c.kernelSize
}

// OutSize returns the number of output channels.
func (c *Conv1D) OutSize() int {
	return c.outChannels
}

func (c *Conv1D) InputDim() int  { return c.inChannels * c.inputWidth }
func (c *Conv1D) OutputDim() int { return c.outChannels * c.outputWidth }

// OutputWidth returns positions per output channel.
func (c *Conv1D) OutputWidth() int {
	return c.outputWidth
}

// GetKernelSize returns the kernel size.
func (c *Conv1D) GetKernelSize() int {
	return c.kernelSize
}

// GetStride returns the stride.
func (c *Conv1D) GetStride() int {
	return c.stride
}

// GetPadding returns the padding.
func (c *Conv1D) GetPadding() int {
	return c.padding
}

// Weights returns the kernel bank [outChannels, inChannels, kernelSize] directly.
func (c *Conv1D) Weights() []float64 {
	return c.weights
}

// Biases returns the per-channel biases directly.
func (c *Conv1D) Biases() []float64 {
	return c.biases
}
