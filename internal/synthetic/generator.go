package synthetic

// NewGenerator returns a closure producing an infinite sequence of uniform
// floats in [0,1), fully determined by seed and call order. The mixing is
// mulberry32: fast 32-bit multiply-xor-shift, not cryptographic, which is
// all the synthetic path needs.
func NewGenerator(seed uint32) func() float64 {
	state := seed
	return func() float64 {
		state += 0x6D2B79F5
		z := state
		z = (z ^ (z >> 15)) * (z | 1)
		z ^= z + (z^(z>>7))*(z|61)
		return float64(z^(z>>14)) / 4294967296.0
	}
}

// uniform scales a generator draw into [low, high).
func uniform(next func() float64, low, high float64) float64 {
	return low + next()*(high-low)
}

// clamp bounds v to [low, high].
func clamp(v, low, high float64) float64 {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
