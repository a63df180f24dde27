package synthetic

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/avelichko/waterline-monitor/internal/models"
)

func TestFinalize_ForecastsOverrideHeadlineRisk(t *testing.T) {
	// Arrange
	summary := models.CellSummary{CellID: "8611aa7afffffff", RiskIndex: 100, MaxRisk: 105}
	forecasts := []models.NodeForecast{
		{NodeID: "PS000103", RiskScore: 130},
		{NodeID: "PS000101", RiskScore: 120},
		{NodeID: "PS000102", RiskScore: 110},
	}

	// Act
	bundle := Finalize(2025, summary, models.TelemetrySeries{}, forecasts)

	// Assert: riskIndex is the forecast mean, maxRisk the top score.
	if bundle.Summary.RiskIndex != 120 {
		t.Errorf("RiskIndex = %v, want 120 (forecast mean)", bundle.Summary.RiskIndex)
	}
	if bundle.Summary.MaxRisk != 130 {
		t.Errorf("MaxRisk = %v, want 130 (top forecast)", bundle.Summary.MaxRisk)
	}
	if bundle.Year != 2025 {
		t.Errorf("Year = %d, want 2025", bundle.Year)
	}
}

func TestFinalize_NoForecastsKeepsSummaryRisk(t *testing.T) {
	summary := models.CellSummary{CellID: "8611aa7afffffff", RiskIndex: 100, MaxRisk: 105}

	bundle := Finalize(2025, summary, models.TelemetrySeries{}, nil)

	if bundle.Summary.RiskIndex != 100 || bundle.Summary.MaxRisk != 105 {
		t.Errorf("risk = %v/%v, want untouched 100/105 with no forecasts",
			bundle.Summary.RiskIndex, bundle.Summary.MaxRisk)
	}
}

func TestFinalize_AnalyticsFromForecastSpread(t *testing.T) {
	summary := models.CellSummary{
		CellID: "8611aa7afffffff", BalanceIndex: 90, PeakBalance: 80,
		LeakProbability: 45, SupplyRatio: 0.95,
	}
	forecasts := []models.NodeForecast{
		{NodeID: "a", RiskScore: 130},
		{NodeID: "b", RiskScore: 120},
		{NodeID: "c", RiskScore: 110},
	}

	bundle := Finalize(2025, summary, models.TelemetrySeries{}, forecasts)

	a := bundle.Analytics
	if a.AnomalyCount != 5 {
		t.Errorf("AnomalyCount = %d, want round(45/9) = 5", a.AnomalyCount)
	}
	if a.AvgDeviation != 10 {
		t.Errorf("AvgDeviation = %v, want 100-90 = 10", a.AvgDeviation)
	}
	if a.MaxDeviation != 20 {
		t.Errorf("MaxDeviation = %v, want 100-80 = 20", a.MaxDeviation)
	}
	if a.MedianDeviation != 28 {
		t.Errorf("MedianDeviation = %v, want median(scores)-92 = 28", a.MedianDeviation)
	}
	if a.SupplyRatio != 0.95 {
		t.Errorf("SupplyRatio = %v, want summary passthrough 0.95", a.SupplyRatio)
	}
}

func TestFinalize_AnalyticsWithoutForecasts(t *testing.T) {
	summary := models.CellSummary{BalanceIndex: 90, PeakBalance: 80}

	bundle := Finalize(2025, summary, models.TelemetrySeries{}, nil)

	if bundle.Analytics.MedianDeviation != 15 {
		t.Errorf("MedianDeviation = %v, want midpoint of avg and max = 15", bundle.Analytics.MedianDeviation)
	}
}

func TestComposeBundle_Deterministic(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	catalog := []string{"PS000101", "PS000102", "PS000103", "PS000104"}

	a := ComposeBundle("8611aa7afffffff", 2025, start, catalog, now)
	b := ComposeBundle("8611aa7afffffff", 2025, start, catalog, now)

	if !reflect.DeepEqual(a, b) {
		t.Error("same selection produced different bundles")
	}
}

func TestComposeBundle_RiskEnvelopeHolds(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	catalog := []string{"PS000101", "PS000102", "PS000103"}

	for _, cell := range summaryCells {
		bundle := ComposeBundle(cell, 2025, start, catalog, time.Now())
		if bundle.Summary.RiskIndex > bundle.Summary.MaxRisk {
			t.Errorf("%s: RiskIndex %v exceeds MaxRisk %v", cell, bundle.Summary.RiskIndex, bundle.Summary.MaxRisk)
		}
		if math.IsNaN(bundle.Summary.RiskIndex) {
			t.Errorf("%s: RiskIndex is NaN", cell)
		}
	}
}
