package synthetic

import (
	"fmt"
	"sort"

	"github.com/avelichko/waterline-monitor/internal/models"
)

// MaxForecastNodes bounds the ranked set size per request.
const MaxForecastNodes = 14

// SynthesizeForecasts produces a ranked subset of per-node risk scores for
// the cell. The catalog is expected to be sorted; a deterministic rotation
// offset picks which contiguous (wrapping) slice of it gets scored. An empty
// catalog yields an empty list, not an error.
func SynthesizeForecasts(cellID string, year int, catalog []string) []models.NodeForecast {
	if len(catalog) == 0 {
		return []models.NodeForecast{}
	}

	next := NewGenerator(DeriveSeed(fmt.Sprintf("forecast-%s-%d", cellID, year)))

	count := MaxForecastNodes
	if len(catalog) < count {
		count = len(catalog)
	}
	offset := int(next() * float64(len(catalog)))

	forecasts := make([]models.NodeForecast, 0, count)
	for i := 0; i < count; i++ {
		node := catalog[(offset+i)%len(catalog)]
		score := 92 + uniform(next, 0, 45) + (next()-0.5)*6
		forecasts = append(forecasts, models.NodeForecast{
			NodeID:    node,
			RiskScore: round2(score),
		})
	}

	sort.SliceStable(forecasts, func(i, j int) bool {
		return forecasts[i].RiskScore > forecasts[j].RiskScore
	})
	return forecasts
}
