package net

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/FlavioCFOliveira/TrafficNet/internal/layer"
)

// Checkpoint layout, all little-endian:
//
//	int32 inputDim
//	int32 numLabels
//	per layer:
//	  int32 outputSize
//	  int32 inputSize
//	  float64 weights[outputSize*inputSize] (row-major)
//	  float64 biases[outputSize]
//
// There is no version field; readers validate shapes against the topology
// they expect.
var byteOrder = binary.LittleEndian

// LoadWarning explains why Load returned a fresh network instead of the
// checkpoint contents.
type LoadWarning struct {
	Path   string
	Reason string
	Err    error
}

func (w *LoadWarning) Error() string {
	if w.Err != nil {
		return fmt.Sprintf("checkpoint %s: %s: %v", w.Path, w.Reason, w.Err)
	}
	return fmt.Sprintf("checkpoint %s: %s", w.Path, w.Reason)
}

func (w *LoadWarning) Unwrap() error {
	return w.Err
}

// LayerShape is the stored (outputSize, inputSize) of one layer.
type LayerShape struct {
	OutputSize int
	InputSize  int
}

// Header describes a checkpoint without loading its parameters.
type Header struct {
	InputDim  int
	NumLabels int
	Layers    []LayerShape
}

// Save writes n to path. The data goes to a temporary file in the same
// directory which is synced and renamed over path, so readers never see a
// partial checkpoint.
func Save(path string, n *Network) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	if err = Encode(w, n); err != nil {
		return err
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return nil
}

// Encode writes the checkpoint representation of n to w.
func Encode(w io.Writer, n *Network) error {
	if err := writeInt32s(w, n.inputDim, n.numLabels); err != nil {
		return fmt.Errorf("failed to encode header: %w", err)
	}
	for i, l := range n.layers {
		if err := writeInt32s(w, l.OutSize(), l.InSize()); err != nil {
			return fmt.Errorf("failed to encode layer %d: %w", i, err)
		}
		// Params is laid out [weights | biases], matching the file order.
		if err := binary.Write(w, byteOrder, l.Params()); err != nil {
			return fmt.Errorf("failed to encode layer %d params: %w", i, err)
		}
	}
	return nil
}

// Load reads the checkpoint at path into a network of the given architecture
// and size. When the file is missing, truncated or shaped for a different
// topology it returns a freshly initialized network and a warning saying why;
// training can then start over. The error is only non-nil when no network
// can be built at all.
func Load(path string, arch Architecture, inputDim, numLabels int, rng *rand.Rand) (*Network, *LoadWarning, error) {
	fresh, err := NewNetwork(arch, inputDim, numLabels, rng)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return fresh, &LoadWarning{Path: path, Reason: "cannot open", Err: err}, nil
	}
	defer file.Close()

	// Decode into a second network so a failure halfway leaves fresh intact.
	loaded, err := NewNetwork(arch, inputDim, numLabels, rng)
	if err != nil {
		return nil, nil, err
	}
	if warn := Decode(bufio.NewReader(file), loaded); warn != nil {
		warn.Path = path
		return fresh, warn, nil
	}
	return loaded, nil, nil
}

// Decode fills n from a checkpoint stream, validating every dimension
// against n. It returns a warning describing the first mismatch.
func Decode(r io.Reader, n *Network) *LoadWarning {
	header, err := readInt32s(r, 2)
	if err != nil {
		return &LoadWarning{Reason: "truncated header", Err: err}
	}
	if header[0] != n.inputDim || header[1] != n.numLabels {
		return &LoadWarning{Reason: fmt.Sprintf("dimension mismatch: file has inputDim=%d numLabels=%d, want %d and %d",
			header[0], header[1], n.inputDim, n.numLabels)}
	}

	for i, l := range n.layers {
		shape, err := readInt32s(r, 2)
		if err != nil {
			return &LoadWarning{Reason: fmt.Sprintf("truncated layer %d header", i), Err: err}
		}
		if shape[0] != l.OutSize() || shape[1] != l.InSize() {
			return &LoadWarning{Reason: fmt.Sprintf("layer %d shape mismatch: file has %dx%d, want %dx%d",
				i, shape[0], shape[1], l.OutSize(), l.InSize())}
		}
		params := make([]float64, len(l.Params()))
		if err := binary.Read(r, byteOrder, params); err != nil {
			return &LoadWarning{Reason: fmt.Sprintf("truncated layer %d params", i), Err: err}
		}
		l.SetParams(params)
	}

	var extra [1]byte
	if _, err := io.ReadFull(r, extra[:]); err == nil {
		return &LoadWarning{Reason: "trailing data after last layer"}
	}
	return nil
}

// ReadHeader returns the stored dimensions and layer shapes of the
// checkpoint at path without materializing a network.
func ReadHeader(path string) (Header, error) {
	file, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("failed to open checkpoint: %w", err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	dims, err := readInt32s(r, 2)
	if err != nil {
		return Header{}, fmt.Errorf("failed to read checkpoint header: %w", err)
	}
	h := Header{InputDim: dims[0], NumLabels: dims[1]}
	for {
		shape, err := readInt32s(r, 2)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Header{}, fmt.Errorf("failed to read layer %d header: %w", len(h.Layers), err)
		}
		if shape[0] <= 0 || shape[1] <= 0 {
			return Header{}, fmt.Errorf("layer %d has invalid shape %dx%d", len(h.Layers), shape[0], shape[1])
		}
		skip := int64(shape[0]*shape[1]+shape[0]) * 8
		if _, err := io.CopyN(io.Discard, r, skip); err != nil {
			return Header{}, fmt.Errorf("failed to skip layer %d params: %w", len(h.Layers), err)
		}
		h.Layers = append(h.Layers, LayerShape{OutputSize: shape[0], InputSize: shape[1]})
	}
	return h, nil
}

// InferArchitecture adapts base to the topology recorded in h: two layers
// whose first consumes the whole input is an mlp, three layers a cnn whose
// first layer stores channels x kernel. Stride is not recorded: base.Stride
// is kept when it reproduces the stored dense input width, otherwise the
// smallest stride that does is used.
func InferArchitecture(h Header, base Architecture) (Architecture, error) {
	arch := base
	switch {
	case len(h.Layers) == 2 && h.Layers[0].InputSize == h.InputDim:
		arch.Kind = KindMLP
		arch.Hidden = h.Layers[0].OutputSize
	case len(h.Layers) == 3:
		arch.Kind = KindCNN
		arch.ConvChannels = h.Layers[0].OutputSize
		arch.Kernel = h.Layers[0].InputSize
		arch.Hidden = h.Layers[1].OutputSize
		stride, ok := inferStride(h, arch)
		if !ok {
			return base, fmt.Errorf("no stride maps input %d to dense input %d", h.InputDim, h.Layers[1].InputSize)
		}
		arch.Stride = stride
	default:
		return base, fmt.Errorf("unrecognized checkpoint topology with %d layers", len(h.Layers))
	}
	if last := h.Layers[len(h.Layers)-1]; last.OutputSize != h.NumLabels {
		return base, fmt.Errorf("output layer has %d rows, header says %d labels", last.OutputSize, h.NumLabels)
	}
	return arch, nil
}

func inferStride(h Header, arch Architecture) (int, bool) {
	fits := func(stride int) bool {
		w := layer.ConvOutputWidth(h.InputDim, arch.Kernel, stride, arch.Kernel/2)
		return w > 0 && w*arch.ConvChannels == h.Layers[1].InputSize
	}
	if arch.Stride > 0 && fits(arch.Stride) {
		return arch.Stride, true
	}
	for s := 1; s <= h.InputDim; s++ {
		if fits(s) {
			return s, true
		}
	}
	return 0, false
}

func writeInt32s(w io.Writer, vals ...int) error {
	buf := make([]int32, len(vals))
	for i, v := range vals {
		buf[i] = int32(v)
	}
	return binary.Write(w, byteOrder, buf)
}

func readInt32s(r io.Reader, n int) ([]int, error) {
	buf := make([]int32, n)
	if err := binary.Read(r, byteOrder, buf); err != nil {
		return nil, err
	}
	out := make([]int, n)
	for i, v := range buf {
		out[i] = int(v)
	}
	return out, nil
}
