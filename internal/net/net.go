// Package net provides the classifier network, its checkpoint format and
// the training callbacks.
package net

import (
	"fmt"
	"io"
	"math/rand"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/FlavioCFOliveira/TrafficNet/internal/activations"
	"github.com/FlavioCFOliveira/TrafficNet/internal/features"
	"github.com/FlavioCFOliveira/TrafficNet/internal/layer"
	"github.com/FlavioCFOliveira/TrafficNet/internal/loss"
	"github.com/FlavioCFOliveira/TrafficNet/internal/opt"
)

// Topologies.
const (
	KindCNN = "cnn"
	KindMLP = "mlp"
)

// Parameter update modes.
const (
	// UpdateSample applies an SGD step after every sample.
	UpdateSample = "sample"
	// UpdateBatch averages gradients over a mini-batch and applies one step.
	UpdateBatch = "batch"
)

// Architecture selects and sizes the fixed topology.
type Architecture struct {
	Kind         string
	Hidden       int
	ConvChannels int
	Kernel       int
	Stride       int
	Init         layer.InitPolicy
	// ClipNorm caps the L2 norm of the gradient entering each layer.
	// Zero or less disables clipping.
	ClipNorm   float64
	UpdateMode string
}

// DefaultArchitecture returns the convolutional topology used by the commands.
func DefaultArchitecture() Architecture {
	return Architecture{
		Kind:         KindCNN,
		Hidden:       64,
		ConvChannels: 16,
		Kernel:       5,
		Stride:       2,
		Init:         layer.HeNormal,
		ClipNorm:     1.0,
		UpdateMode:   UpdateSample,
	}
}

// Validate reports an error for an architecture NewNetwork cannot build.
func (a Architecture) Validate() error {
	switch a.Kind {
	case KindCNN:
		if a.ConvChannels <= 0 || a.Kernel <= 0 || a.Stride <= 0 {
			return fmt.Errorf("cnn needs positive conv_channels, kernel and stride (got %d, %d, %d)",
				a.ConvChannels, a.Kernel, a.Stride)
		}
	case KindMLP:
	default:
		return fmt.Errorf("unknown architecture %q", a.Kind)
	}
	if a.Hidden <= 0 {
		return fmt.Errorf("hidden size must be positive, got %d", a.Hidden)
	}
	switch a.UpdateMode {
	case UpdateSample, UpdateBatch, "":
	default:
		return fmt.Errorf("unknown update mode %q", a.UpdateMode)
	}
	return nil
}

// Network is the ordered layer stack with ReLU between hidden layers and
// softmax on the output. It caches each layer's activated output for one
// forward/backward cycle.
type Network struct {
	arch      Architecture
	layers    []layer.Layer
	inputDim  int
	numLabels int

	relu    activations.ReLU
	softmax activations.Softmax
	loss    loss.CrossEntropy

	// acts[i] is the output of layer i after its activation.
	acts    [][]float64
	gradBuf []float64
	// accum mirrors each layer's gradients for batch updates.
	accum [][]float64
}

// NewNetwork builds a freshly initialized network for inputDim features and
// numLabels classes.
//
// cnn: Conv1D(1, ConvChannels, Kernel, Stride, padding Kernel/2) -> ReLU ->
// Dense(convOut, Hidden) -> ReLU -> Dense(Hidden, numLabels).
// mlp: Dense(inputDim, Hidden) -> ReLU -> Dense(Hidden, numLabels).
func NewNetwork(arch Architecture, inputDim, numLabels int, rng *rand.Rand) (*Network, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	if inputDim <= 0 || numLabels <= 0 {
		return nil, fmt.Errorf("invalid network size: inputDim=%d numLabels=%d", inputDim, numLabels)
	}
	if arch.UpdateMode == "" {
		arch.UpdateMode = UpdateSample
	}
	if arch.Init == "" {
		arch.Init = layer.HeNormal
	}

	var layers []layer.Layer
	switch arch.Kind {
	case KindCNN:
		padding := arch.Kernel / 2
		if layer.ConvOutputWidth(inputDim, arch.Kernel, arch.Stride, padding) <= 0 {
			return nil, fmt.Errorf("input dimension %d too small for kernel %d", inputDim, arch.Kernel)
		}
		conv := layer.NewConv1D(1, arch.ConvChannels, arch.Kernel, arch.Stride, padding, inputDim, arch.Init, rng)
		layers = []layer.Layer{
			conv,
			layer.NewDense(conv.OutputDim(), arch.Hidden, arch.Init, rng),
			layer.NewDense(arch.Hidden, numLabels, arch.Init, rng),
		}
	case KindMLP:
		layers = []layer.Layer{
			layer.NewDense(inputDim, arch.Hidden, arch.Init, rng),
			layer.NewDense(arch.Hidden, numLabels, arch.Init, rng),
		}
	}

	n := &Network{
		arch:      arch,
		layers:    layers,
		inputDim:  inputDim,
		numLabels: numLabels,
		gradBuf:   make([]float64, numLabels),
	}
	n.acts = make([][]float64, len(layers))
	n.accum = make([][]float64, len(layers))
	for i, l := range layers {
		n.acts[i] = make([]float64, l.OutputDim())
		n.accum[i] = make([]float64, len(l.Gradients()))
	}
	return n, nil
}

// Forward runs x through every layer and returns the class probabilities.
// The returned slice is owned by the network and valid until the next Forward.
func (n *Network) Forward(x []float64) []float64 {
	if len(x) != n.inputDim {
		panic(fmt.Sprintf("Network: input length %d, want %d", len(x), n.inputDim))
	}
	curr := x
	last := len(n.layers) - 1
	for i, l := range n.layers {
		out := n.acts[i]
		copy(out, l.Forward(curr))
		if i < last {
			n.relu.Forward(out)
		} else {
			n.softmax.Forward(out)
		}
		curr = out
	}
	return curr
}

// Loss returns the clamped cross-entropy of output for label.
func (n *Network) Loss(output []float64, label int) float64 {
	return n.loss.Forward(output, label)
}

// Backward propagates output - oneHot(label) through the layers, leaving
// each layer's parameter gradients ready for Step. The gradient entering
// every layer is clipped to the architecture's ClipNorm. output must be the
// result of the last Forward call.
func (n *Network) Backward(output []float64, label int) {
	grad := n.gradBuf
	n.loss.BackwardInPlace(output, label, grad)
	n.softmax.Backward(output, grad)

	for i := len(n.layers) - 1; i >= 0; i-- {
		opt.ClipNorm(grad, n.arch.ClipNorm)
		dIn := n.layers[i].Backward(grad)
		if i > 0 {
			grad = n.relu.Backward(n.acts[i-1], dIn)
		}
	}
}

// Step applies the current layer gradients through o.
func (n *Network) Step(o opt.Optimizer) {
	for _, l := range n.layers {
		o.StepInPlace(l.Params(), l.Gradients())
	}
}

// Accumulate adds the current layer gradients to the batch accumulator.
func (n *Network) Accumulate() {
	for i, l := range n.layers {
		floats.Add(n.accum[i], l.Gradients())
	}
}

// StepAccumulated applies the accumulated gradients averaged over count
// samples and clears the accumulator. A zero count only clears it.
func (n *Network) StepAccumulated(o opt.Optimizer, count int) {
	for i, l := range n.layers {
		acc := n.accum[i]
		if count > 0 {
			floats.Scale(1/float64(count), acc)
			o.StepInPlace(l.Params(), acc)
		}
		for j := range acc {
			acc[j] = 0
		}
	}
}

// Predict returns the most likely label and a copy of the class probabilities.
func (n *Network) Predict(x []float64) (int, []float64) {
	probs := n.Forward(x)
	out := make([]float64, len(probs))
	copy(out, probs)
	return activations.Argmax(out), out
}

// Accuracy returns the fraction of samples whose argmax matches the label.
// An empty set has accuracy 0.
func (n *Network) Accuracy(samples []features.Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	correct := 0
	for _, s := range samples {
		if activations.Argmax(n.Forward(s.Features)) == s.Label {
			correct++
		}
	}
	return float64(correct) / float64(len(samples))
}

// Architecture returns the topology the network was built with.
func (n *Network) Architecture() Architecture {
	return n.arch
}

// Layers returns the network's layers.
func (n *Network) Layers() []layer.Layer {
	return n.layers
}

// InputDim returns the expected feature vector length.
func (n *Network) InputDim() int {
	return n.inputDim
}

// NumLabels returns the number of output classes.
func (n *Network) NumLabels() int {
	return n.numLabels
}

// Params returns all network parameters flattened (copy).
func (n *Network) Params() []float64 {
	var params []float64
	for _, l := range n.layers {
		params = append(params, l.Params()...)
	}
	return params
}

// Gradients returns all network gradients flattened (copy).
func (n *Network) Gradients() []float64 {
	var gradients []float64
	for _, l := range n.layers {
		gradients = append(gradients, l.Gradients()...)
	}
	return gradients
}

// Summary writes a table of the layers, their output shapes and parameter counts.
func (n *Network) Summary(w io.Writer) {
	rule := strings.Repeat("_", 65)
	fmt.Fprintf(w, "Model: %s (input %d, labels %d)\n", n.arch.Kind, n.inputDim, n.numLabels)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%-25s %-20s %-10s\n", "Layer (type)", "Output Shape", "Param #")
	fmt.Fprintln(w, strings.Repeat("=", 65))

	totalParams := 0
	for i, l := range n.layers {
		lType := fmt.Sprintf("%T", l)
		if j := strings.LastIndexByte(lType, '.'); j >= 0 {
			lType = lType[j+1:]
		}

		outShape := fmt.Sprintf("(%d)", l.OutputDim())
		conv, isConv := l.(*layer.Conv1D)
		if isConv {
			outShape = fmt.Sprintf("(%d, %d)", conv.OutSize(), conv.OutputWidth())
		}
		params := len(l.Params())
		totalParams += params

		fmt.Fprintf(w, "%-25s %-20s %-10d\n", fmt.Sprintf("%s_%d", lType, i), outShape, params)
		if isConv {
			fmt.Fprintf(w, "  kernel %d, stride %d, padding %d\n", conv.GetKernelSize(), conv.GetStride(), conv.GetPadding())
		}
	}
	fmt.Fprintln(w, strings.Repeat("=", 65))
	fmt.Fprintf(w, "Total params: %d\n", totalParams)
	fmt.Fprintln(w, rule)
}
