package risk

import (
	"math"
	"testing"
)

func TestClassify_BoundaryPartition(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{-50, LevelStable},
		{94.9, LevelStable},
		{95, LevelWatch},
		{109.9, LevelWatch},
		{110, LevelAlert},
		{130, LevelAlert},
		{130.1, LevelCritical},
		{500, LevelCritical},
	}
	for _, tt := range tests {
		band := Classify(tt.score)
		if band == nil {
			t.Fatalf("Classify(%v) = nil, want %q", tt.score, tt.want)
		}
		if band.Level != tt.want {
			t.Errorf("Classify(%v).Level = %q, want %q", tt.score, band.Level, tt.want)
		}
	}
}

func TestClassify_NonFiniteInput(t *testing.T) {
	for _, score := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if band := Classify(score); band != nil {
			t.Errorf("Classify(%v) = %+v, want nil", score, band)
		}
	}
}

func TestBands_OrderedMostSevereFirst(t *testing.T) {
	bands := Bands()
	if len(bands) != 4 {
		t.Fatalf("Bands() returned %d bands, want 4", len(bands))
	}
	want := []string{LevelCritical, LevelAlert, LevelWatch, LevelStable}
	for i, b := range bands {
		if b.Level != want[i] {
			t.Errorf("bands[%d].Level = %q, want %q", i, b.Level, want[i])
		}
	}
}

func TestBands_ReturnsCopy(t *testing.T) {
	a := Bands()
	a[0].Label = "mutated"
	b := Bands()
	if b[0].Label == "mutated" {
		t.Error("Bands() returned shared backing array; caller mutation leaked")
	}
}

func TestBands_ContiguousCoverage(t *testing.T) {
	bands := Bands()
	for i := 0; i < len(bands)-1; i++ {
		if bands[i].Min != bands[i+1].Max {
			t.Errorf("gap between band %q (min %v) and %q (max %v)",
				bands[i].Level, bands[i].Min, bands[i+1].Level, bands[i+1].Max)
		}
	}
}
