package features

import (
	"math/rand"
	"sort"
)

// Balance equalizes class sizes. For every label with fewer samples than the
// largest class it appends copies of randomly chosen members with Gaussian
// noise (stddev sigma) added to the size of each real record, clamped to
// [0, 1]. Direction bits and padding are untouched and the statistics block
// is recomputed from the perturbed values of the whole session, truncated
// records included. It returns the grown slice and the
// number of samples added.
func Balance(samples []Sample, sigma float64, rng *rand.Rand) ([]Sample, int) {
	groups := make(map[int][]int)
	largest := 0
	for i, s := range samples {
		groups[s.Label] = append(groups[s.Label], i)
		largest = max(largest, len(groups[s.Label]))
	}

	// Iterate labels in order so a seeded rng reproduces the same output.
	labels := make([]int, 0, len(groups))
	for label := range groups {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	added := 0
	for _, label := range labels {
		members := groups[label]
		for need := largest - len(members); need > 0; need-- {
			src := samples[members[rng.Intn(len(members))]]
			samples = append(samples, perturb(src, sigma, rng))
			added++
		}
	}
	return samples, added
}

func perturb(src Sample, sigma float64, rng *rand.Rand) Sample {
	sizes, dirs := src.Sizes, src.Directions
	if sizes == nil {
		sizes = make([]float64, src.Records)
		dirs = make([]float64, src.Records)
		for i := range sizes {
			sizes[i] = src.Features[2*i]
			dirs[i] = src.Features[2*i+1]
		}
	}

	noisy := make([]float64, len(sizes))
	for i, v := range sizes {
		noisy[i] = clamp01(v + rng.NormFloat64()*sigma)
	}

	features := make([]float64, len(src.Features))
	copy(features, src.Features)
	for i := 0; i < src.Records; i++ {
		features[2*i] = noisy[i]
	}
	maxLen := (len(features) - StatsSize) / 2
	writeStats(features[2*maxLen:], noisy, dirs)
	return Sample{Label: src.Label, Features: features, Records: src.Records, Sizes: noisy, Directions: dirs}
}

// Split shuffles samples in place and returns the first len-floor(len*testRatio)
// as train and the remainder as test.
func Split(samples []Sample, testRatio float64, rng *rand.Rand) (train, test []Sample) {
	rng.Shuffle(len(samples), func(i, j int) {
		samples[i], samples[j] = samples[j], samples[i]
	})

	testSize := int(float64(len(samples)) * testRatio)
	testSize = max(0, min(testSize, len(samples)))
	trainSize := len(samples) - testSize
	return samples[:trainSize:trainSize], samples[trainSize:]
}

// CountByLabel returns the number of samples per label.
func CountByLabel(samples []Sample) map[int]int {
	counts := make(map[int]int)
	for _, s := range samples {
		counts[s.Label]++
	}
	return counts
}
