package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// StatsSize is the length of the statistics block appended to every sample:
// avgSize, maxSize, minSize, stdDevSize, outgoingRatio, logPacketCount.
const StatsSize = 6

// Normalization bounds. Sizes are log-compressed against a 1500 byte MTU
// and counts against 100 records; both are fixed so encoding never depends
// on the dataset.
var (
	logSizeBound  = math.Log(1501)
	logCountBound = math.Log(101)
)

// NormalizeSize maps a record size to clamp(log(size+1)/log(1501), 0, 1).
func NormalizeSize(size int) float64 {
	return clamp01(math.Log(float64(size)+1) / logSizeBound)
}

// NormalizeCount maps a record count to clamp(log(count+1)/log(101), 0, 1).
func NormalizeCount(count int) float64 {
	return clamp01(math.Log(float64(count)+1) / logCountBound)
}

// FeatureDim returns the vector length for a given maximum sequence length.
func FeatureDim(maxSequenceLength int) int {
	return maxSequenceLength*2 + StatsSize
}

// Vectorize encodes records as maxSequenceLength (size, direction) pairs,
// zero-padded or truncated, followed by the statistics block computed from
// every record. It returns the vector and the number of encoded records.
func Vectorize(records []Record, maxSequenceLength int) ([]float64, int) {
	sizes, dirs := normalize(records)
	return encode(sizes, dirs, maxSequenceLength)
}

// NewSample encodes one labeled session. The sample keeps the normalized
// values of every record, including those truncated away, so its
// statistics can be recomputed after perturbation.
func NewSample(label int, records []Record, maxSequenceLength int) Sample {
	sizes, dirs := normalize(records)
	out, n := encode(sizes, dirs, maxSequenceLength)
	return Sample{Label: label, Features: out, Records: n, Sizes: sizes, Directions: dirs}
}

func normalize(records []Record) (sizes, dirs []float64) {
	sizes = make([]float64, len(records))
	dirs = make([]float64, len(records))
	for i, r := range records {
		sizes[i] = NormalizeSize(r.Size)
		dirs[i] = float64(r.Direction)
	}
	return sizes, dirs
}

func encode(sizes, dirs []float64, maxSequenceLength int) ([]float64, int) {
	out := make([]float64, FeatureDim(maxSequenceLength))
	n := min(len(sizes), maxSequenceLength)
	for i := 0; i < n; i++ {
		out[2*i] = sizes[i]
		out[2*i+1] = dirs[i]
	}
	writeStats(out[2*maxSequenceLength:], sizes, dirs)
	return out, n
}

// writeStats fills dst (StatsSize long) from unpadded normalized sizes and directions.
func writeStats(dst, sizes, dirs []float64) {
	for i := range dst {
		dst[i] = 0
	}
	if len(sizes) == 0 {
		return
	}

	mean, variance := stat.PopMeanVariance(sizes, nil)
	outgoing := 0
	for _, d := range dirs {
		if d == ClientToServer {
			outgoing++
		}
	}

	dst[0] = mean
	dst[1] = floats.Max(sizes)
	dst[2] = floats.Min(sizes)
	dst[3] = math.Sqrt(variance)
	dst[4] = float64(outgoing) / float64(len(dirs))
	dst[5] = NormalizeCount(len(sizes))
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
