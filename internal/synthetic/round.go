package synthetic

import "math"

// Exported reports must be byte-for-byte reproducible, so every synthesized
// value is rounded at the source: 2 decimals for scores, 1 for physical
// quantities, 3 for ratios.

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
