package synthetic

import (
	"fmt"
	"time"

	"github.com/avelichko/waterline-monitor/internal/models"
)

// Status thresholds applied to the base risk value. These differ from the
// presentation-side classifier bands on purpose: the synthesizer mirrors the
// operational thresholds used by the dispatching backend.
const (
	statusCriticalAbove = 135.0
	statusAlertFrom     = 115.0
	statusWatchFrom     = 100.0
)

var advisoryCatalog = map[string][]string{
	"critical": {
		"Dispatch an emergency crew and schedule an on-site inspection immediately.",
		"Coordinate supply shutoff windows with the dispatch shift before intervening.",
	},
	"alert": {
		"Cross-check the latest substation meter readings and verify the telemetry link.",
		"Prepare consumption-limiting orders for the affected risers.",
	},
	"watch": {
		"Keep observing on a six-hour cadence and record the trend.",
	},
	"stable": {
		"Load is within norms. Maintain routine monitoring.",
	},
}

// StatusFromRisk maps a base risk value onto an operational status.
func StatusFromRisk(riskIndex float64) string {
	switch {
	case riskIndex > statusCriticalAbove:
		return "critical"
	case riskIndex >= statusAlertFrom:
		return "alert"
	case riskIndex >= statusWatchFrom:
		return "watch"
	default:
		return "stable"
	}
}

// Advisories returns the fixed advisory list for a status, ordered by
// descending urgency. Selection is a function of status alone; it never
// consumes generator draws, so adding advisories cannot shift the sequence.
func Advisories(status string) []string {
	list, ok := advisoryCatalog[status]
	if !ok {
		list = advisoryCatalog["stable"]
	}
	out := make([]string, len(list))
	copy(out, list)
	return out
}

// SynthesizeSummary produces the complete risk/operations summary for a cell
// and reporting year. Pure function of (cellID, year) except for updatedAt,
// which is stamped from now. Draw order is fixed; reordering the draws below
// changes every downstream value.
func SynthesizeSummary(cellID string, year int, now time.Time) models.CellSummary {
	next := NewGenerator(DeriveSeed(fmt.Sprintf("%s-%d", cellID, year)))

	leakProbability := clamp(12.0+uniform(next, 0, 55), 7.0, 82.0)
	flowRate := round1(40 + uniform(next, 0, 160))
	pressure := round2(4.1 + uniform(next, 0, 1.6))
	maintenanceScore := round2(65 + uniform(next, 0, 30))
	supplyRatio := round3(0.88 + uniform(next, 0, 0.22))

	baseRisk := 92 + uniform(next, 0, 42) + leakProbability*0.35
	maxRisk := baseRisk + uniform(next, 0, 18)
	balanceIndex := clamp(100-(baseRisk-90)*0.35, 32.0, 100.0)
	peakBalance := clamp(100-(maxRisk-90)*0.4, 28.0, 100.0)

	status := StatusFromRisk(baseRisk)

	return models.CellSummary{
		CellID:           cellID,
		RiskIndex:        round2(baseRisk),
		MaxRisk:          round2(maxRisk),
		BalanceIndex:     round2(balanceIndex),
		PeakBalance:      round2(peakBalance),
		MaintenanceScore: maintenanceScore,
		LeakProbability:  round1(leakProbability),
		FlowRate:         flowRate,
		Pressure:         pressure,
		SupplyRatio:      supplyRatio,
		Status:           status,
		Advisories:       Advisories(status),
		Dataset:          models.DatasetSynthetic,
		UpdatedAt:        now.UTC(),
	}
}
