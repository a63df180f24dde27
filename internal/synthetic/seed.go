package synthetic

// DeriveSeed maps an arbitrary string key to a 32-bit seed. Pure function:
// the same key yields the same seed on every platform and in every process
// run, which is what makes round-trip tests on the generators possible.
func DeriveSeed(key string) uint32 {
	h := uint32(2166136261)
	for _, r := range key {
		h ^= uint32(r)
		h *= 16777619
		h ^= h >> 13
	}
	return h
}
