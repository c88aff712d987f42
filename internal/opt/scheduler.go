package opt

// Scheduler defines the interface for learning rate schedulers.
type Scheduler interface {
	// Step advances the schedule by one epoch.
	Step()
}

// StepLR multiplies the learning rate by gamma every stepSize epochs and
// never lets it fall below minLR.
type StepLR struct {
	optimizer Optimizer
	stepSize  int
	gamma     float64
	minLR     float64
	lastEpoch int
}

// NewStepLR creates a step decay schedule bound to optimizer.
func NewStepLR(optimizer Optimizer, stepSize int, gamma, minLR float64) *StepLR {
	return &StepLR{
		optimizer: optimizer,
		stepSize:  stepSize,
		gamma:     gamma,
		minLR:     minLR,
	}
}

func (s *StepLR) Step() {
	s.lastEpoch++
	if s.stepSize <= 0 || s.lastEpoch%s.stepSize != 0 {
		return
	}
	lr := s.optimizer.LearningRate() * s.gamma
	if lr < s.minLR {
		lr = s.minLR
	}
	s.optimizer.SetLearningRate(lr)
}
