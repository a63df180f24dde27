package synthetic

import (
	"reflect"
	"sort"
	"testing"
)

var testCatalog = []string{
	"PS000101", "PS000102", "PS000103", "PS000104", "PS000105",
	"PS000106", "PS000107", "PS000108", "PS000109", "PS000110",
	"PS000111", "PS000112", "PS000113", "PS000114", "PS000115",
	"PS000116", "PS000117", "PS000118",
}

func TestSynthesizeForecasts_Deterministic(t *testing.T) {
	a := SynthesizeForecasts("8611aa7afffffff", 2025, testCatalog)
	b := SynthesizeForecasts("8611aa7afffffff", 2025, testCatalog)
	if !reflect.DeepEqual(a, b) {
		t.Error("same selection produced different forecast sets")
	}
}

func TestSynthesizeForecasts_CapsAtMaxNodes(t *testing.T) {
	got := SynthesizeForecasts("8611aa7afffffff", 2025, testCatalog)
	if len(got) != MaxForecastNodes {
		t.Errorf("len = %d, want %d for a catalog of %d", len(got), MaxForecastNodes, len(testCatalog))
	}
}

func TestSynthesizeForecasts_SmallCatalogUsesAll(t *testing.T) {
	small := testCatalog[:5]
	got := SynthesizeForecasts("8611aa7afffffff", 2025, small)
	if len(got) != len(small) {
		t.Errorf("len = %d, want %d for a small catalog", len(got), len(small))
	}
}

func TestSynthesizeForecasts_EmptyCatalog(t *testing.T) {
	got := SynthesizeForecasts("8611aa7afffffff", 2025, nil)
	if got == nil || len(got) != 0 {
		t.Errorf("empty catalog: got %v, want empty non-nil slice", got)
	}
}

func TestSynthesizeForecasts_SortedDescending(t *testing.T) {
	got := SynthesizeForecasts("8611aa7afffffff", 2025, testCatalog)
	if !sort.SliceIsSorted(got, func(i, j int) bool { return got[i].RiskScore > got[j].RiskScore }) {
		t.Errorf("forecasts not sorted by descending score: %+v", got)
	}
}

func TestSynthesizeForecasts_NodesFromCatalog(t *testing.T) {
	known := make(map[string]bool, len(testCatalog))
	for _, id := range testCatalog {
		known[id] = true
	}
	seen := make(map[string]bool)
	for _, f := range SynthesizeForecasts("8611aa7afffffff", 2025, testCatalog) {
		if !known[f.NodeID] {
			t.Errorf("forecast node %q not in catalog", f.NodeID)
		}
		if seen[f.NodeID] {
			t.Errorf("node %q appears twice", f.NodeID)
		}
		seen[f.NodeID] = true
	}
}

func TestSynthesizeForecasts_RotationVariesByCell(t *testing.T) {
	a := SynthesizeForecasts("8611aa7afffffff", 2025, testCatalog)
	b := SynthesizeForecasts("8611aa797ffffff", 2025, testCatalog)

	same := true
	for i := range a {
		if a[i].NodeID != b[i].NodeID || a[i].RiskScore != b[i].RiskScore {
			same = false
			break
		}
	}
	if same {
		t.Error("two different cells produced identical forecast sets")
	}
}
