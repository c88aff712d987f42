package layer

import (
	"fmt"
	"math"
	"math/rand"
)

// InitPolicy selects how weights are drawn at construction. Biases always start at zero.
type InitPolicy string

const (
	// HeNormal draws N(0, 1) scaled by sqrt(2/fanIn). Suited to ReLU stacks.
	HeNormal InitPolicy = "he"
	// XavierUniform draws U(-a, a) with a = sqrt(6/(fanIn+fanOut)).
	XavierUniform InitPolicy = "xavier"
)

// ParseInitPolicy maps a config string to a policy.
func ParseInitPolicy(s string) (InitPolicy, error) {
	switch InitPolicy(s) {
	case HeNormal, XavierUniform:
		return InitPolicy(s), nil
	case "":
		return HeNormal, nil
	}
	return "", fmt.Errorf("unknown init policy %q", s)
}

// Fill initializes w in place for a transform with the given fan-in and fan-out.
func (p InitPolicy) Fill(w []float64, fanIn, fanOut int, rng *rand.Rand) {
	switch p {
	case XavierUniform:
		a := math.Sqrt(6.0 / float64(fanIn+fanOut))
		for i := range w {
			w[i] = rng.Float64()*2*a - a
		}
	default:
		scale := math.Sqrt(2.0 / float64(fanIn))
		for i := range w {
			w[i] = rng.NormFloat64() * scale
		}
	}
}
