package synthetic

import (
	"math"
	"sort"
	"time"

	"github.com/avelichko/waterline-monitor/internal/models"
)

// Finalize assembles a bundle from its parts and recomputes the aggregate
// fields. Whenever the forecast set is non-empty it is the authoritative
// source for riskIndex (mean of scores) and maxRisk (top score); otherwise
// the summary keeps the synthesizer's own values. The map view and the node
// ranking must never disagree on the headline numbers.
func Finalize(year int, summary models.CellSummary, series models.TelemetrySeries, forecasts []models.NodeForecast) models.Bundle {
	if len(forecasts) > 0 {
		sum := 0.0
		top := forecasts[0].RiskScore
		for _, f := range forecasts {
			sum += f.RiskScore
			if f.RiskScore > top {
				top = f.RiskScore
			}
		}
		summary.RiskIndex = round2(sum / float64(len(forecasts)))
		summary.MaxRisk = round2(top)
	}

	return models.Bundle{
		CellID:    summary.CellID,
		Year:      year,
		Summary:   summary,
		Telemetry: series,
		Forecasts: forecasts,
		Analytics: deriveAnalytics(summary, forecasts),
		Dataset:   summary.Dataset,
	}
}

// ComposeBundle is the pure synthetic path: every part derived from
// (cellID, year, start) alone, aggregates recomputed from the forecast set.
func ComposeBundle(cellID string, year int, start time.Time, catalog []string, now time.Time) models.Bundle {
	summary := SynthesizeSummary(cellID, year, now)
	series := SynthesizeTelemetry(cellID, year, start)
	forecasts := SynthesizeForecasts(cellID, year, catalog)
	return Finalize(year, summary, series, forecasts)
}

// deriveAnalytics computes the dashboard's aggregate row. Anomaly count is
// proportional to leak probability; deviation statistics come from the
// balance indices (deviation = distance from the nominal 100 balance), with
// the median read from the forecast score spread when one exists.
func deriveAnalytics(summary models.CellSummary, forecasts []models.NodeForecast) models.Analytics {
	avgDeviation := round2(math.Max(0, 100-summary.BalanceIndex))
	maxDeviation := round2(math.Max(0, 100-summary.PeakBalance))

	medianDeviation := round2((avgDeviation + maxDeviation) / 2)
	if len(forecasts) > 0 {
		scores := make([]float64, len(forecasts))
		for i, f := range forecasts {
			scores[i] = f.RiskScore
		}
		sort.Float64s(scores)
		mid := len(scores) / 2
		median := scores[mid]
		if len(scores)%2 == 0 {
			median = (scores[mid-1] + scores[mid]) / 2
		}
		medianDeviation = round2(math.Max(0, median-92))
	}

	return models.Analytics{
		AnomalyCount:    int(math.Round(summary.LeakProbability / 9)),
		AvgDeviation:    avgDeviation,
		MedianDeviation: medianDeviation,
		MaxDeviation:    maxDeviation,
		SupplyRatio:     summary.SupplyRatio,
	}
}
