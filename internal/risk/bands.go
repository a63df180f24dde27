// Package risk maps numeric risk scores onto the ordered severity bands used
// for map coloring and exported reports.
package risk

import "math"

// Band is one tier of the severity scale. Bands are static reference data,
// immutable for the process lifetime.
type Band struct {
	Level  string  `json:"level"`
	Label  string  `json:"label"`
	Action string  `json:"action"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Level names, ordered most severe first.
const (
	LevelCritical = "critical"
	LevelAlert    = "alert"
	LevelWatch    = "watch"
	LevelStable   = "stable"
)

// Band boundaries. Lower bounds are inclusive for the higher band: a score
// of exactly 110 is "alert", not "watch". The UI color scale and CSV exports
// both key off these exact cutoffs.
const (
	criticalAbove = 130.0
	alertFrom     = 110.0
	watchFrom     = 95.0
)

var bands = []Band{
	{Level: LevelCritical, Label: "Critical overload", Action: "Dispatch an emergency crew immediately", Min: criticalAbove, Max: math.Inf(1)},
	{Level: LevelAlert, Label: "Elevated risk", Action: "Schedule an inspection within 24 hours", Min: alertFrom, Max: criticalAbove},
	{Level: LevelWatch, Label: "Under observation", Action: "Re-check meters on the next shift", Min: watchFrom, Max: alertFrom},
	{Level: LevelStable, Label: "Stable", Action: "Routine monitoring", Min: math.Inf(-1), Max: watchFrom},
}

// Bands returns the ordered severity scale, most severe first.
func Bands() []Band {
	out := make([]Band, len(bands))
	copy(out, bands)
	return out
}

// Classify returns the band for a score, or nil for NaN/Inf input ("no
// classification" rather than an error).
func Classify(score float64) *Band {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return nil
	}
	var b Band
	switch {
	case score > criticalAbove:
		b = bands[0]
	case score >= alertFrom:
		b = bands[1]
	case score >= watchFrom:
		b = bands[2]
	default:
		b = bands[3]
	}
	return &b
}
