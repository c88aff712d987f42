// Package train runs the epoch loop: shuffled mini-batches of per-sample
// SGD, periodic evaluation, checkpointing, learning rate decay and the
// stopping rules.
package train

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/FlavioCFOliveira/TrafficNet/internal/features"
	"github.com/FlavioCFOliveira/TrafficNet/internal/loss"
	"github.com/FlavioCFOliveira/TrafficNet/internal/net"
	"github.com/FlavioCFOliveira/TrafficNet/internal/opt"
)

// DefaultLossCeiling is the loss above which a sample is treated as an
// outlier and left out of the update.
const DefaultLossCeiling = 10.0

// ErrEmptyTrainSet is returned by Run when there is nothing to train on.
var ErrEmptyTrainSet = errors.New("training set is empty")

// Config holds the trainer hyperparameters.
type Config struct {
	Epochs       int
	BatchSize    int
	LearningRate float64

	// DecayEvery epochs the learning rate is multiplied by DecayFactor,
	// never going below MinLearningRate. Zero disables decay.
	DecayEvery      int
	DecayFactor     float64
	MinLearningRate float64

	// EvalEvery epochs train and test accuracy are measured. The last
	// epoch is always evaluated.
	EvalEvery int
	// MaxPatience is the number of evaluations without test accuracy
	// improvement tolerated before stopping. Negative disables it.
	MaxPatience int
	// Training stops once both accuracies reach their targets.
	// A zero target disables the rule.
	TargetTrainAccuracy float64
	TargetTestAccuracy  float64

	// Samples whose loss is NaN, infinite or above LossCeiling are skipped.
	LossCeiling float64

	// CheckpointPath receives the best model. Empty disables checkpointing.
	CheckpointPath string
	// Resume marks a network loaded from CheckpointPath. Its test accuracy
	// before the first epoch becomes the best to beat, so the checkpoint is
	// only replaced by a better model.
	Resume bool

	// Seed drives shuffling. Zero reseeds from the clock.
	Seed   int64
	Logger *log.Logger
}

// DefaultConfig returns the hyperparameters used by the training command.
func DefaultConfig() Config {
	return Config{
		Epochs:              50,
		BatchSize:           32,
		LearningRate:        0.01,
		DecayEvery:          10,
		DecayFactor:         0.5,
		MinLearningRate:     1e-4,
		EvalEvery:           5,
		MaxPatience:         5,
		TargetTrainAccuracy: 0.99,
		TargetTestAccuracy:  0.95,
		LossCeiling:         DefaultLossCeiling,
	}
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	switch {
	case c.Epochs <= 0:
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	case c.BatchSize <= 0:
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	case c.LearningRate < 0:
		return fmt.Errorf("learning rate must not be negative, got %g", c.LearningRate)
	case c.DecayEvery < 0:
		return fmt.Errorf("decay interval must not be negative, got %d", c.DecayEvery)
	case c.DecayEvery > 0 && (c.DecayFactor <= 0 || c.DecayFactor > 1):
		return fmt.Errorf("decay factor must be in (0, 1], got %g", c.DecayFactor)
	case c.MinLearningRate < 0:
		return fmt.Errorf("minimum learning rate must not be negative, got %g", c.MinLearningRate)
	case c.EvalEvery <= 0:
		return fmt.Errorf("evaluation interval must be positive, got %d", c.EvalEvery)
	case c.LossCeiling <= 0:
		return fmt.Errorf("loss ceiling must be positive, got %g", c.LossCeiling)
	}
	return nil
}

// TrainingState is the mutable state of one Run.
type TrainingState struct {
	Epoch            int
	LearningRate     float64
	BestTestAccuracy float64
	Patience         int
}

// Result summarizes a finished Run.
type Result struct {
	Reason           net.StopReason
	Epochs           int
	BestTestAccuracy float64
	FinalTrain       float64
	FinalTest        float64
	Checkpoints      int
}

// Trainer drives a network over a dataset.
type Trainer struct {
	cfg       Config
	network   *net.Network
	sgd       *opt.SGD
	rng       *rand.Rand
	log       *log.Logger
	callbacks []net.Callback
	state     TrainingState
}

// New creates a trainer for network. The extra callbacks run after each
// epoch, before checkpointing and the stopping rules.
func New(network *net.Network, cfg Config, callbacks ...net.Callback) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := cfg.Logger
	if l == nil {
		l = log.Default()
	}
	return &Trainer{
		cfg:       cfg,
		network:   network,
		sgd:       opt.NewSGD(cfg.LearningRate),
		rng:       features.NewRand(cfg.Seed),
		log:       l,
		callbacks: callbacks,
	}, nil
}

// State returns a snapshot of the training state.
func (t *Trainer) State() TrainingState {
	return t.state
}

// Run trains until a stopping rule fires or the epoch budget is spent.
func (t *Trainer) Run(ds *features.Dataset) (Result, error) {
	if len(ds.Train) == 0 {
		return Result{}, ErrEmptyTrainSet
	}
	if ds.FeatureDim() != t.network.InputDim() {
		return Result{}, fmt.Errorf("dataset has %d features, network expects %d", ds.FeatureDim(), t.network.InputDim())
	}
	if ds.NumLabels > t.network.NumLabels() {
		return Result{}, fmt.Errorf("dataset has %d labels, network has %d outputs", ds.NumLabels, t.network.NumLabels())
	}

	early := net.NewEarlyStopping(t.cfg.MaxPatience, t.cfg.TargetTrainAccuracy, t.cfg.TargetTestAccuracy)
	callbacks := append([]net.Callback(nil), t.callbacks...)
	var checkpoint *net.ModelCheckpoint
	if t.cfg.CheckpointPath != "" {
		checkpoint = net.NewModelCheckpoint(t.cfg.CheckpointPath, t.log)
		callbacks = append(callbacks, checkpoint)
	}
	callbacks = append(callbacks, early)
	if t.cfg.DecayEvery > 0 {
		sched := opt.NewStepLR(t.sgd, t.cfg.DecayEvery, t.cfg.DecayFactor, t.cfg.MinLearningRate)
		callbacks = append(callbacks, net.NewSchedulerCallback(sched))
	}

	t.state = TrainingState{LearningRate: t.sgd.LearningRate(), BestTestAccuracy: -1}
	if t.cfg.Resume && len(ds.Test) > 0 {
		baseline := t.network.Accuracy(ds.Test)
		early.SetBest(baseline)
		if checkpoint != nil {
			checkpoint.SetBest(baseline)
		}
		t.state.BestTestAccuracy = baseline
		t.log.Printf("resumed network scores %.2f%% test accuracy", baseline*100)
	}
	t.log.Printf("training on %d samples, testing on %d, %d labels, update mode %s",
		len(ds.Train), len(ds.Test), ds.NumLabels, t.network.Architecture().UpdateMode)

	for _, c := range callbacks {
		c.OnTrainBegin(t.network)
	}

	start := time.Now()
	res := Result{Reason: net.StopBudget}
	order := make([]int, len(ds.Train))
	for i := range order {
		order[i] = i
	}

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		t.state.Epoch = epoch
		t.state.LearningRate = t.sgd.LearningRate()
		for _, c := range callbacks {
			c.OnEpochBegin(epoch, t.network)
		}

		m := t.runEpoch(ds.Train, order, callbacks)
		m.Epoch = epoch
		m.LearningRate = t.state.LearningRate

		if epoch%t.cfg.EvalEvery == 0 || epoch == t.cfg.Epochs {
			m.Evaluated = true
			m.TrainAccuracy = t.network.Accuracy(ds.Train)
			m.TestAccuracy = t.network.Accuracy(ds.Test)
			res.FinalTrain = m.TrainAccuracy
			res.FinalTest = m.TestAccuracy
		}

		for _, c := range callbacks {
			c.OnEpochEnd(epoch, m, t.network)
		}
		t.state.BestTestAccuracy = early.Best()
		t.state.Patience = early.Wait()
		res.Epochs = epoch

		if early.Stopped {
			res.Reason = early.Reason
			break
		}
	}

	for _, c := range callbacks {
		c.OnTrainEnd(t.network)
	}

	res.BestTestAccuracy = max(early.Best(), 0)
	if checkpoint != nil {
		res.Checkpoints = checkpoint.Saves()
	}
	t.log.Printf("training stopped (%s) after %d epochs in %v: train acc %.2f%%, test acc %.2f%%, best test acc %.2f%%",
		res.Reason, res.Epochs, time.Since(start).Round(time.Millisecond),
		res.FinalTrain*100, res.FinalTest*100, res.BestTestAccuracy*100)
	return res, nil
}

// runEpoch shuffles order and makes one pass over the training samples.
func (t *Trainer) runEpoch(samples []features.Sample, order []int, callbacks []net.Callback) net.EpochMetrics {
	t.rng.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})

	batchMode := t.network.Architecture().UpdateMode == net.UpdateBatch
	var m net.EpochMetrics
	totalLoss := 0.0

	for batch, lo := 0, 0; lo < len(order); batch, lo = batch+1, lo+t.cfg.BatchSize {
		hi := min(lo+t.cfg.BatchSize, len(order))
		for _, c := range callbacks {
			c.OnBatchBegin(batch, t.network)
		}

		used := 0
		batchLoss := 0.0
		for _, idx := range order[lo:hi] {
			s := samples[idx]
			out := t.network.Forward(s.Features)
			l := t.network.Loss(out, s.Label)
			if !loss.Finite(l, t.cfg.LossCeiling) {
				m.Skipped++
				continue
			}

			t.network.Backward(out, s.Label)
			if batchMode {
				t.network.Accumulate()
			} else {
				t.network.Step(t.sgd)
			}
			used++
			batchLoss += l
		}
		if batchMode {
			t.network.StepAccumulated(t.sgd, used)
		}

		m.Samples += used
		totalLoss += batchLoss
		meanBatch := 0.0
		if used > 0 {
			meanBatch = batchLoss / float64(used)
		}
		for _, c := range callbacks {
			c.OnBatchEnd(batch, meanBatch, t.network)
		}
	}

	if m.Samples > 0 {
		m.Loss = totalLoss / float64(m.Samples)
	}
	return m
}
