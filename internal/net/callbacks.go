package net

import (
	"log"

	"github.com/FlavioCFOliveira/TrafficNet/internal/opt"
)

// StopReason says why training ended.
type StopReason string

const (
	// StopPatience: test accuracy stopped improving.
	StopPatience StopReason = "patience"
	// StopTarget: train and test accuracy both reached their targets.
	StopTarget StopReason = "target"
	// StopBudget: the epoch budget ran out.
	StopBudget StopReason = "budget"
)

// EpochMetrics summarizes one finished epoch.
type EpochMetrics struct {
	Epoch        int
	LearningRate float64
	// Loss is the mean loss over the samples that were not skipped.
	Loss    float64
	Samples int
	Skipped int

	// Evaluated is set on epochs where accuracy was measured.
	Evaluated     bool
	TrainAccuracy float64
	TestAccuracy  float64
}

// Callback defines the interface for training callbacks.
type Callback interface {
	OnTrainBegin(n *Network)
	OnTrainEnd(n *Network)
	OnEpochBegin(epoch int, n *Network)
	OnEpochEnd(epoch int, m EpochMetrics, n *Network)
	OnBatchBegin(batch int, n *Network)
	OnBatchEnd(batch int, loss float64, n *Network)
}

// SchedulerCallback advances a learning rate scheduler once per epoch.
type SchedulerCallback struct {
	BaseCallback
	scheduler opt.Scheduler
}

func NewSchedulerCallback(scheduler opt.Scheduler) *SchedulerCallback {
	return &SchedulerCallback{scheduler: scheduler}
}

func (c *SchedulerCallback) OnEpochEnd(epoch int, m EpochMetrics, n *Network) {
	c.scheduler.Step()
}

// BaseCallback provides default empty implementations for Callback.
type BaseCallback struct{}

func (c BaseCallback) OnTrainBegin(n *Network)                          {}
func (c BaseCallback) OnTrainEnd(n *Network)                            {}
func (c BaseCallback) OnEpochBegin(epoch int, n *Network)               {}
func (c BaseCallback) OnEpochEnd(epoch int, m EpochMetrics, n *Network) {}
func (c BaseCallback) OnBatchBegin(batch int, n *Network)               {}
func (c BaseCallback) OnBatchEnd(batch int, loss float64, n *Network)   {}

// EarlyStopping stops training when test accuracy has not strictly improved
// for more than Patience evaluations, or when both accuracy targets are met.
// Epochs without an evaluation are ignored.
type EarlyStopping struct {
	BaseCallback
	// Patience is the number of non-improving evaluations tolerated.
	// Negative disables the rule.
	Patience int
	// TargetTrain and TargetTest must both be positive to enable the
	// goal-reached rule.
	TargetTrain float64
	TargetTest  float64

	best    float64
	wait    int
	Stopped bool
	Reason  StopReason
}

// NewEarlyStopping creates an EarlyStopping with no best accuracy yet.
func NewEarlyStopping(patience int, targetTrain, targetTest float64) *EarlyStopping {
	return &EarlyStopping{
		Patience:    patience,
		TargetTrain: targetTrain,
		TargetTest:  targetTest,
		best:        -1,
	}
}

func (c *EarlyStopping) OnEpochEnd(epoch int, m EpochMetrics, n *Network) {
	if !m.Evaluated {
		return
	}
	if m.TestAccuracy > c.best {
		c.best = m.TestAccuracy
		c.wait = 0
	} else {
		c.wait++
	}

	switch {
	case c.TargetTrain > 0 && c.TargetTest > 0 &&
		m.TrainAccuracy >= c.TargetTrain && m.TestAccuracy >= c.TargetTest:
		c.Stopped = true
		c.Reason = StopTarget
	case c.Patience >= 0 && c.wait > c.Patience:
		c.Stopped = true
		c.Reason = StopPatience
	}
}

// SetBest makes acc the accuracy later evaluations must beat.
func (c *EarlyStopping) SetBest(acc float64) {
	c.best = acc
}

// Best returns the best test accuracy seen, or -1 before the first evaluation.
func (c *EarlyStopping) Best() float64 {
	return c.best
}

// Wait returns the number of evaluations since the last improvement.
func (c *EarlyStopping) Wait() int {
	return c.wait
}

// ModelCheckpoint saves the network whenever test accuracy strictly improves.
type ModelCheckpoint struct {
	BaseCallback
	Filename string
	Logger   *log.Logger

	best  float64
	saves int
	// Err holds the last save failure, if any.
	Err error
}

// NewModelCheckpoint creates a checkpoint callback writing to filename.
func NewModelCheckpoint(filename string, logger *log.Logger) *ModelCheckpoint {
	return &ModelCheckpoint{
		Filename: filename,
		Logger:   logger,
		best:     -1,
	}
}

func (c *ModelCheckpoint) OnEpochEnd(epoch int, m EpochMetrics, n *Network) {
	if !m.Evaluated || m.TestAccuracy <= c.best {
		return
	}
	c.best = m.TestAccuracy
	l := loggerOrDefault(c.Logger)
	if err := Save(c.Filename, n); err != nil {
		c.Err = err
		l.Printf("error saving checkpoint: %v", err)
		return
	}
	c.saves++
	l.Printf("checkpoint saved: test accuracy %.2f%% is new best", m.TestAccuracy*100)
}

// SetBest makes acc the accuracy a checkpoint must beat.
func (c *ModelCheckpoint) SetBest(acc float64) {
	c.best = acc
}

// Saves returns the number of checkpoints written.
func (c *ModelCheckpoint) Saves() int {
	return c.saves
}

// Logger logs training progress.
type Logger struct {
	BaseCallback
	// Interval logs every Interval-th epoch. Evaluated epochs are always logged.
	Interval int
	Out      *log.Logger
}

func (c Logger) OnEpochEnd(epoch int, m EpochMetrics, n *Network) {
	l := loggerOrDefault(c.Out)
	if m.Evaluated {
		l.Printf("epoch %d: loss = %.6f, lr = %.6g, skipped = %d, train acc = %.2f%%, test acc = %.2f%%",
			epoch, m.Loss, m.LearningRate, m.Skipped, m.TrainAccuracy*100, m.TestAccuracy*100)
		return
	}
	if c.Interval > 0 && epoch%c.Interval == 0 {
		l.Printf("epoch %d: loss = %.6f, lr = %.6g, skipped = %d", epoch, m.Loss, m.LearningRate, m.Skipped)
	}
}

func loggerOrDefault(l *log.Logger) *log.Logger {
	if l == nil {
		return log.Default()
	}
	return l
}
