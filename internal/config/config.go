// Package config loads the training configuration file.
//
// The file is YAML with three sections mirroring the pipeline, model and
// trainer settings. Keys absent from the file keep their default values:
//
//	pipeline:
//	  max_sequence_length: 0
//	  test_ratio: 0.2
//	  balance: true
//	model:
//	  kind: cnn
//	  hidden: 64
//	  init: he
//	trainer:
//	  epochs: 50
//	  learning_rate: 0.01
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/FlavioCFOliveira/TrafficNet/internal/features"
	"github.com/FlavioCFOliveira/TrafficNet/internal/layer"
	"github.com/FlavioCFOliveira/TrafficNet/internal/net"
	"github.com/FlavioCFOliveira/TrafficNet/internal/train"
)

// Pipeline holds the feature pipeline settings.
type Pipeline struct {
	MaxSequenceLength int     `yaml:"max_sequence_length"`
	TestRatio         float64 `yaml:"test_ratio"`
	Balance           bool    `yaml:"balance"`
	NoiseStdDev       float64 `yaml:"noise_stddev"`
}

// Model holds the network topology.
type Model struct {
	Kind         string  `yaml:"kind"`
	Hidden       int     `yaml:"hidden"`
	ConvChannels int     `yaml:"conv_channels"`
	Kernel       int     `yaml:"kernel"`
	Stride       int     `yaml:"stride"`
	Init         string  `yaml:"init"`
	ClipNorm     float64 `yaml:"clip_norm"`
	UpdateMode   string  `yaml:"update_mode"`
}

// Trainer holds the training loop hyperparameters.
type Trainer struct {
	Epochs              int     `yaml:"epochs"`
	BatchSize           int     `yaml:"batch_size"`
	LearningRate        float64 `yaml:"learning_rate"`
	DecayEvery          int     `yaml:"decay_every"`
	DecayFactor         float64 `yaml:"decay_factor"`
	MinLearningRate     float64 `yaml:"min_learning_rate"`
	EvalEvery           int     `yaml:"eval_every"`
	MaxPatience         int     `yaml:"max_patience"`
	TargetTrainAccuracy float64 `yaml:"target_train_accuracy"`
	TargetTestAccuracy  float64 `yaml:"target_test_accuracy"`
	LossCeiling         float64 `yaml:"loss_ceiling"`
	LogEvery            int     `yaml:"log_every"`
}

// Config is the whole configuration file.
type Config struct {
	// Seed drives every random generator. Zero reseeds from the clock.
	Seed     int64    `yaml:"seed"`
	Pipeline Pipeline `yaml:"pipeline"`
	Model    Model    `yaml:"model"`
	Trainer  Trainer  `yaml:"trainer"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	p := features.DefaultConfig()
	a := net.DefaultArchitecture()
	t := train.DefaultConfig()
	return Config{
		Pipeline: Pipeline{
			MaxSequenceLength: p.MaxSequenceLength,
			TestRatio:         p.TestRatio,
			Balance:           p.Balance,
			NoiseStdDev:       p.NoiseStdDev,
		},
		Model: Model{
			Kind:         a.Kind,
			Hidden:       a.Hidden,
			ConvChannels: a.ConvChannels,
			Kernel:       a.Kernel,
			Stride:       a.Stride,
			Init:         string(a.Init),
			ClipNorm:     a.ClipNorm,
			UpdateMode:   a.UpdateMode,
		},
		Trainer: Trainer{
			Epochs:              t.Epochs,
			BatchSize:           t.BatchSize,
			LearningRate:        t.LearningRate,
			DecayEvery:          t.DecayEvery,
			DecayFactor:         t.DecayFactor,
			MinLearningRate:     t.MinLearningRate,
			EvalEvery:           t.EvalEvery,
			MaxPatience:         t.MaxPatience,
			TargetTrainAccuracy: t.TargetTrainAccuracy,
			TargetTestAccuracy:  t.TargetTestAccuracy,
			LossCeiling:         t.LossCeiling,
			LogEvery:            1,
		},
	}
}

// Load reads the YAML file at path over the defaults and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	if c.Pipeline.MaxSequenceLength < 0 {
		return fmt.Errorf("pipeline: max_sequence_length must not be negative, got %d", c.Pipeline.MaxSequenceLength)
	}
	if c.Pipeline.TestRatio < 0 || c.Pipeline.TestRatio >= 1 {
		return fmt.Errorf("pipeline: test_ratio must be in [0, 1), got %g", c.Pipeline.TestRatio)
	}
	if c.Pipeline.NoiseStdDev < 0 {
		return fmt.Errorf("pipeline: noise_stddev must not be negative, got %g", c.Pipeline.NoiseStdDev)
	}
	arch, err := c.Architecture()
	if err != nil {
		return err
	}
	if err := arch.Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	if c.Trainer.LogEvery < 0 {
		return fmt.Errorf("trainer: log_every must not be negative, got %d", c.Trainer.LogEvery)
	}
	if err := c.TrainConfig(nil).Validate(); err != nil {
		return fmt.Errorf("trainer: %w", err)
	}
	return nil
}

// PipelineConfig returns the feature pipeline settings.
func (c Config) PipelineConfig(logger *log.Logger) features.Config {
	return features.Config{
		MaxSequenceLength: c.Pipeline.MaxSequenceLength,
		TestRatio:         c.Pipeline.TestRatio,
		Balance:           c.Pipeline.Balance,
		NoiseStdDev:       c.Pipeline.NoiseStdDev,
		Seed:              c.Seed,
		Logger:            logger,
	}
}

// Architecture returns the network topology.
func (c Config) Architecture() (net.Architecture, error) {
	policy, err := layer.ParseInitPolicy(c.Model.Init)
	if err != nil {
		return net.Architecture{}, fmt.Errorf("model: %w", err)
	}
	return net.Architecture{
		Kind:         c.Model.Kind,
		Hidden:       c.Model.Hidden,
		ConvChannels: c.Model.ConvChannels,
		Kernel:       c.Model.Kernel,
		Stride:       c.Model.Stride,
		Init:         policy,
		ClipNorm:     c.Model.ClipNorm,
		UpdateMode:   c.Model.UpdateMode,
	}, nil
}

// TrainConfig returns the trainer settings. The checkpoint path is left
// for the caller.
func (c Config) TrainConfig(logger *log.Logger) train.Config {
	t := c.Trainer
	return train.Config{
		Epochs:              t.Epochs,
		BatchSize:           t.BatchSize,
		LearningRate:        t.LearningRate,
		DecayEvery:          t.DecayEvery,
		DecayFactor:         t.DecayFactor,
		MinLearningRate:     t.MinLearningRate,
		EvalEvery:           t.EvalEvery,
		MaxPatience:         t.MaxPatience,
		TargetTrainAccuracy: t.TargetTrainAccuracy,
		TargetTestAccuracy:  t.TargetTestAccuracy,
		LossCeiling:         t.LossCeiling,
		Seed:                c.Seed,
		Logger:              logger,
	}
}
