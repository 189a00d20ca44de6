package sim

import "math/rand"

// LatencyModel produces fill latencies in seconds. With Samples set, each
// placement draws uniformly from the empirical distribution; otherwise the
// constant applies. The RNG is seeded by the caller for reproducibility.
type LatencyModel struct {
	Constant float64
	Samples  []float64
}

// Sample returns the latency for one order placement.
func (m LatencyModel) Sample(rng *rand.Rand) float64 {
	if len(m.Samples) > 0 {
		return m.Samples[rng.Intn(len(m.Samples))]
	}
	return m.Constant
}
