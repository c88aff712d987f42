// Package trafficnet exposes the website fingerprinting classifier:
// feature pipeline, network construction, training and checkpoint-based
// prediction.
package trafficnet

import (
	"fmt"
	"math/rand"

	"github.com/FlavioCFOliveira/TrafficNet/internal/features"
	"github.com/FlavioCFOliveira/TrafficNet/internal/layer"
	"github.com/FlavioCFOliveira/TrafficNet/internal/net"
	"github.com/FlavioCFOliveira/TrafficNet/internal/train"
)

// Re-export common types for easier access
type (
	Network        = net.Network
	Architecture   = net.Architecture
	Dataset        = features.Dataset
	Sample         = features.Sample
	Record         = features.Record
	Row            = features.Row
	LabelMap       = features.LabelMap
	PipelineConfig = features.Config
	TrainConfig    = train.Config
	Result         = train.Result
	Callback       = net.Callback
	EpochMetrics   = net.EpochMetrics
	LoadWarning    = net.LoadWarning
)

// Architectures
const (
	CNN = net.KindCNN
	MLP = net.KindMLP
)

// Weight initialization
const (
	HeNormal      = layer.HeNormal
	XavierUniform = layer.XavierUniform
)

func DefaultArchitecture() Architecture {
	return net.DefaultArchitecture()
}

func DefaultPipelineConfig() PipelineConfig {
	return features.DefaultConfig()
}

func DefaultTrainConfig() TrainConfig {
	return train.DefaultConfig()
}

// LoadDataset reads, encodes, balances and splits the feature CSV at path.
func LoadDataset(path string, cfg PipelineConfig) (*Dataset, error) {
	return features.NewPipeline(cfg).LoadFile(path)
}

// NewNetwork builds a network sized for ds.
func NewNetwork(arch Architecture, ds *Dataset, seed int64) (*Network, error) {
	return net.NewNetwork(arch, ds.FeatureDim(), ds.NumLabels, features.NewRand(seed))
}

// Train runs the training loop on ds.
func Train(n *Network, ds *Dataset, cfg TrainConfig, callbacks ...Callback) (Result, error) {
	t, err := train.New(n, cfg, callbacks...)
	if err != nil {
		return Result{}, err
	}
	return t.Run(ds)
}

// Callbacks
func Logger(interval int) *net.Logger {
	return &net.Logger{Interval: interval}
}

func CSVLogger(filename string, appendRows bool) *net.CSVLogger {
	return net.NewCSVLogger(filename, appendRows)
}

// Model Persistence
func Save(filename string, n *Network) error {
	return net.Save(filename, n)
}

// Model is a trained network together with the sequence length its
// input vectors are encoded with.
type Model struct {
	Network           *Network
	MaxSequenceLength int
}

// Prediction is the classification of one session.
type Prediction struct {
	Label         int
	Probabilities []float64
}

// LoadModel rebuilds the network stored at filename. The topology is read
// from the checkpoint itself. A checkpoint that does not decode is an error.
func LoadModel(filename string) (*Model, error) {
	h, err := net.ReadHeader(filename)
	if err != nil {
		return nil, err
	}
	arch, err := net.InferArchitecture(h, net.DefaultArchitecture())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	maxLen := (h.InputDim - features.StatsSize) / 2
	if maxLen <= 0 || features.FeatureDim(maxLen) != h.InputDim {
		return nil, fmt.Errorf("%s: input dimension %d is not a feature vector size", filename, h.InputDim)
	}

	n, warn, err := net.Load(filename, arch, h.InputDim, h.NumLabels, rand.New(rand.NewSource(1)))
	if err != nil {
		return nil, err
	}
	if warn != nil {
		return nil, warn
	}
	return &Model{Network: n, MaxSequenceLength: maxLen}, nil
}

// Predict classifies the session recorded in a single-session feature file.
func (m *Model) Predict(featureFile string) (Prediction, error) {
	x, err := features.LoadFeatureFile(featureFile, m.MaxSequenceLength)
	if err != nil {
		return Prediction{}, err
	}
	return m.PredictVector(x), nil
}

// PredictRecords classifies a session given as raw records.
func (m *Model) PredictRecords(records []Record) Prediction {
	x, _ := features.Vectorize(records, m.MaxSequenceLength)
	return m.PredictVector(x)
}

// PredictVector classifies an already encoded feature vector.
func (m *Model) PredictVector(x []float64) Prediction {
	label, probs := m.Network.Predict(x)
	return Prediction{Label: label, Probabilities: probs}
}
