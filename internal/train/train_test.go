package train

import (
	"io"
	"log"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlavioCFOliveira/TrafficNet/internal/features"
	"github.com/FlavioCFOliveira/TrafficNet/internal/layer"
	"github.com/FlavioCFOliveira/TrafficNet/internal/net"
)

// separableDataset builds two classes: short outgoing records of ~10 bytes
// and long incoming records of ~1200 bytes.
func separableDataset(t *testing.T, perClass int) *features.Dataset {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	var rows []features.Row
	for i := 0; i < perClass; i++ {
		var small, large []features.Record
		for j := 0; j < 10; j++ {
			small = append(small, features.Record{Size: 5 + rng.Intn(10), Direction: features.ClientToServer})
			large = append(large, features.Record{Size: 1000 + rng.Intn(400), Direction: features.ServerToClient})
		}
		rows = append(rows, features.Row{Label: 0, Records: small}, features.Row{Label: 1, Records: large})
	}

	cfg := features.DefaultConfig()
	cfg.Seed = 7
	cfg.Logger = quietLogger()
	ds, err := features.NewPipeline(cfg).Build(rows)
	require.NoError(t, err)
	return ds
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newNetwork(t *testing.T, arch net.Architecture, ds *features.Dataset) *net.Network {
	t.Helper()
	n, err := net.NewNetwork(arch, ds.FeatureDim(), ds.NumLabels, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	return n
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Seed = 11
	cfg.Logger = quietLogger()
	return cfg
}

// recorder keeps every epoch's metrics.
type recorder struct {
	net.BaseCallback
	epochs  []net.EpochMetrics
	batches int
	began   bool
	ended   bool
}

func (r *recorder) OnTrainBegin(n *net.Network) { r.began = true }
func (r *recorder) OnTrainEnd(n *net.Network)   { r.ended = true }
func (r *recorder) OnEpochEnd(epoch int, m net.EpochMetrics, n *net.Network) {
	r.epochs = append(r.epochs, m)
}
func (r *recorder) OnBatchEnd(batch int, loss float64, n *net.Network) { r.batches++ }

func mlp() net.Architecture {
	arch := net.DefaultArchitecture()
	arch.Kind = net.KindMLP
	arch.Hidden = 16
	return arch
}

func TestSeparableDatasetReachesFullAccuracy(t *testing.T) {
	for _, arch := range []net.Architecture{net.DefaultArchitecture(), mlp()} {
		t.Run(arch.Kind, func(t *testing.T) {
			ds := separableDataset(t, 100)
			n := newNetwork(t, arch, ds)

			cfg := testConfig()
			cfg.LearningRate = 0.05
			cfg.EvalEvery = 1
			cfg.TargetTrainAccuracy = 1
			cfg.TargetTestAccuracy = 1
			cfg.CheckpointPath = filepath.Join(t.TempDir(), "model.bin")

			tr, err := New(n, cfg)
			require.NoError(t, err)
			res, err := tr.Run(ds)
			require.NoError(t, err)

			assert.Equal(t, net.StopTarget, res.Reason)
			assert.Less(t, res.Epochs, cfg.Epochs)
			assert.Equal(t, 1.0, res.FinalTest)
			assert.Equal(t, 1.0, res.FinalTrain)
			assert.Equal(t, 1.0, res.BestTestAccuracy)
			assert.GreaterOrEqual(t, res.Checkpoints, 1)

			loaded, warn, err := net.Load(cfg.CheckpointPath, arch, ds.FeatureDim(), ds.NumLabels, rand.New(rand.NewSource(5)))
			require.NoError(t, err)
			require.Nil(t, warn)
			assert.Equal(t, 1.0, loaded.Accuracy(ds.Test))
		})
	}
}

func TestBatchModeReachesFullAccuracy(t *testing.T) {
	ds := separableDataset(t, 80)
	arch := mlp()
	arch.UpdateMode = net.UpdateBatch
	n := newNetwork(t, arch, ds)

	cfg := testConfig()
	cfg.LearningRate = 0.1
	cfg.BatchSize = 8
	cfg.Epochs = 100
	cfg.EvalEvery = 1
	cfg.TargetTrainAccuracy = 1
	cfg.TargetTestAccuracy = 1

	tr, err := New(n, cfg)
	require.NoError(t, err)
	res, err := tr.Run(ds)
	require.NoError(t, err)
	assert.Equal(t, net.StopTarget, res.Reason)
	assert.Equal(t, 1.0, res.FinalTest)
}

func TestBudgetEvaluatesLastEpoch(t *testing.T) {
	ds := separableDataset(t, 20)
	n := newNetwork(t, mlp(), ds)

	cfg := testConfig()
	cfg.Epochs = 3
	cfg.EvalEvery = 10
	cfg.TargetTrainAccuracy = 0
	cfg.TargetTestAccuracy = 0

	rec := &recorder{}
	tr, err := New(n, cfg, rec)
	require.NoError(t, err)
	res, err := tr.Run(ds)
	require.NoError(t, err)

	assert.Equal(t, net.StopBudget, res.Reason)
	assert.Equal(t, 3, res.Epochs)
	require.Len(t, rec.epochs, 3)
	assert.False(t, rec.epochs[0].Evaluated)
	assert.False(t, rec.epochs[1].Evaluated)
	assert.True(t, rec.epochs[2].Evaluated)
	assert.True(t, rec.began)
	assert.True(t, rec.ended)

	// 32 training samples in batches of 32 per epoch.
	assert.Equal(t, len(ds.Train), rec.epochs[0].Samples)
	assert.Equal(t, 3*((len(ds.Train)+cfg.BatchSize-1)/cfg.BatchSize), rec.batches)
	assert.Equal(t, 3, tr.State().Epoch)
}

func TestPatienceStopsWithoutImprovement(t *testing.T) {
	ds := separableDataset(t, 20)
	n := newNetwork(t, mlp(), ds)

	cfg := testConfig()
	cfg.LearningRate = 0 // accuracy never changes
	cfg.DecayEvery = 0
	cfg.EvalEvery = 1
	cfg.MaxPatience = 1
	cfg.TargetTrainAccuracy = 0
	cfg.TargetTestAccuracy = 0
	cfg.CheckpointPath = filepath.Join(t.TempDir(), "model.bin")

	tr, err := New(n, cfg)
	require.NoError(t, err)
	res, err := tr.Run(ds)
	require.NoError(t, err)

	assert.Equal(t, net.StopPatience, res.Reason)
	assert.Equal(t, 3, res.Epochs)
	assert.Equal(t, 1, res.Checkpoints)
	assert.Equal(t, 2, tr.State().Patience)
	assert.Equal(t, res.FinalTest, res.BestTestAccuracy)
}

func TestSamplesAboveCeilingAreSkipped(t *testing.T) {
	ds := separableDataset(t, 10)
	n := newNetwork(t, mlp(), ds)
	before := n.Params()

	cfg := testConfig()
	cfg.Epochs = 2
	cfg.LossCeiling = 1e-12

	rec := &recorder{}
	tr, err := New(n, cfg, rec)
	require.NoError(t, err)
	_, err = tr.Run(ds)
	require.NoError(t, err)

	require.Len(t, rec.epochs, 2)
	for _, m := range rec.epochs {
		assert.Equal(t, len(ds.Train), m.Skipped)
		assert.Zero(t, m.Samples)
		assert.Zero(t, m.Loss)
	}
	assert.Equal(t, before, n.Params())
}

func TestResumeKeepsBetterCheckpoint(t *testing.T) {
	ds := separableDataset(t, 10)
	n := newNetwork(t, mlp(), ds)
	baseline := n.Accuracy(ds.Test)

	cfg := testConfig()
	cfg.Epochs = 2
	cfg.EvalEvery = 1
	cfg.LearningRate = 0
	cfg.TargetTrainAccuracy = 0
	cfg.TargetTestAccuracy = 0
	cfg.CheckpointPath = filepath.Join(t.TempDir(), "model.bin")
	cfg.Resume = true

	tr, err := New(n, cfg)
	require.NoError(t, err)
	res, err := tr.Run(ds)
	require.NoError(t, err)

	// A frozen network never beats its own starting accuracy.
	assert.Zero(t, res.Checkpoints)
	assert.NoFileExists(t, cfg.CheckpointPath)
	assert.Equal(t, baseline, res.BestTestAccuracy)
	assert.Equal(t, 2, tr.State().Patience)

	cfg.Resume = false
	tr, err = New(n, cfg)
	require.NoError(t, err)
	res, err = tr.Run(ds)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Checkpoints)
}

func TestConfidentlyWrongSampleSkippedByDefault(t *testing.T) {
	ds := separableDataset(t, 4)
	n := newNetwork(t, mlp(), ds)

	// Zero weights and a wide bias gap make the network answer 0 for any input.
	out := n.Layers()[1].Params()
	for i := range out {
		out[i] = 0
	}
	out[len(out)-2], out[len(out)-1] = 30, -30
	before := n.Params()

	wrong := features.Sample{Label: 1, Features: ds.Train[0].Features}
	single := &features.Dataset{
		Train:             []features.Sample{wrong},
		Test:              []features.Sample{wrong},
		NumLabels:         2,
		MaxSequenceLength: ds.MaxSequenceLength,
	}

	cfg := DefaultConfig()
	cfg.Epochs = 1
	cfg.Seed = 1
	cfg.Logger = quietLogger()
	rec := &recorder{}
	tr, err := New(n, cfg, rec)
	require.NoError(t, err)
	_, err = tr.Run(single)
	require.NoError(t, err)

	require.Len(t, rec.epochs, 1)
	assert.Equal(t, 1, rec.epochs[0].Skipped)
	assert.Zero(t, rec.epochs[0].Samples)
	assert.Equal(t, before, n.Params())
}

func TestLearningRateDecaysToFloor(t *testing.T) {
	ds := separableDataset(t, 10)
	n := newNetwork(t, mlp(), ds)

	cfg := testConfig()
	cfg.Epochs = 6
	cfg.LearningRate = 0.01
	cfg.DecayEvery = 2
	cfg.DecayFactor = 0.5
	cfg.MinLearningRate = 0.003
	cfg.TargetTrainAccuracy = 0
	cfg.TargetTestAccuracy = 0
	cfg.MaxPatience = -1

	rec := &recorder{}
	tr, err := New(n, cfg, rec)
	require.NoError(t, err)
	_, err = tr.Run(ds)
	require.NoError(t, err)

	var lrs []float64
	for _, m := range rec.epochs {
		lrs = append(lrs, m.LearningRate)
	}
	assert.InDeltaSlice(t, []float64{0.01, 0.01, 0.005, 0.005, 0.003, 0.003}, lrs, 1e-15)
}

func TestRunRejectsMismatchedDataset(t *testing.T) {
	ds := separableDataset(t, 10)
	n, err := net.NewNetwork(mlp(), ds.FeatureDim()+2, ds.NumLabels, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	tr, err := New(n, testConfig())
	require.NoError(t, err)
	_, err = tr.Run(ds)
	assert.Error(t, err)

	_, err = tr.Run(&features.Dataset{MaxSequenceLength: 10, NumLabels: 2})
	assert.ErrorIs(t, err, ErrEmptyTrainSet)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"epochs", func(c *Config) { c.Epochs = 0 }},
		{"batch", func(c *Config) { c.BatchSize = 0 }},
		{"lr", func(c *Config) { c.LearningRate = -1 }},
		{"decay factor", func(c *Config) { c.DecayFactor = 1.5 }},
		{"eval", func(c *Config) { c.EvalEvery = 0 }},
		{"ceiling", func(c *Config) { c.LossCeiling = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
			_, err := New(nil, cfg)
			assert.Error(t, err)
		})
	}
}

func TestInitPolicyIsConfigurable(t *testing.T) {
	ds := separableDataset(t, 10)
	arch := mlp()
	arch.Init = layer.XavierUniform
	n := newNetwork(t, arch, ds)
	assert.Equal(t, layer.XavierUniform, n.Architecture().Init)
}
