// Package reconcile merges partial live cell records with the synthetic
// summary so the dashboard always receives a complete, internally consistent
// record. The merge is field-level: live data wins per field when present
// and well-typed, everything else is backfilled from synthesis.
package reconcile

import (
	"math"
	"time"

	"github.com/avelichko/waterline-monitor/internal/geo"
	"github.com/avelichko/waterline-monitor/internal/models"
	"github.com/avelichko/waterline-monitor/internal/synthetic"
)

var knownStatuses = map[string]struct{}{
	"stable":   {},
	"watch":    {},
	"alert":    {},
	"critical": {},
}

// Summary reconciles a possibly-nil live record against the synthetic
// summary for (cellID, year). A nil or empty record yields the pure
// synthetic summary. Geometry and district metadata degrade in order:
// live record, then H3 derivation from the cell id, then the district
// lookup table.
func Summary(live *models.LiveCellRecord, cellID string, year int, now time.Time) models.CellSummary {
	out := synthetic.SynthesizeSummary(cellID, year, now)

	// Provenance is decided by the caller, which knows which source actually
	// answered; the merge itself only honors an explicit dataset field.
	if !live.IsEmpty() {
		mergeFloat(&out.RiskIndex, live.RiskIndex)
		mergeFloat(&out.MaxRisk, live.MaxRisk)
		mergeFloat(&out.BalanceIndex, live.BalanceIndex)
		mergeFloat(&out.PeakBalance, live.PeakBalance)
		mergeFloat(&out.MaintenanceScore, live.MaintenanceScore)
		mergeFloat(&out.LeakProbability, live.LeakProbability)
		mergeFloat(&out.FlowRate, live.FlowRate)
		mergeFloat(&out.Pressure, live.Pressure)
		mergeFloat(&out.SupplyRatio, live.SupplyRatio)

		if live.Status != nil {
			if _, ok := knownStatuses[*live.Status]; ok {
				out.Status = *live.Status
				out.Advisories = synthetic.Advisories(*live.Status)
			}
		}
		if len(live.Advisories) > 0 {
			out.Advisories = live.Advisories
		}
		if live.Dataset != nil && *live.Dataset != "" {
			out.Dataset = *live.Dataset
		}
		if live.UpdatedAt != nil && !live.UpdatedAt.IsZero() {
			out.UpdatedAt = live.UpdatedAt.UTC()
		}
		if live.Center != nil {
			out.Center = live.Center
		}
		if len(live.Boundary) >= 3 {
			out.Boundary = live.Boundary
		}
		if live.DistrictKey != nil && *live.DistrictKey != "" {
			out.DistrictKey = *live.DistrictKey
		}
		if live.DistrictLabel != nil && *live.DistrictLabel != "" {
			out.DistrictLabel = *live.DistrictLabel
		}
	}

	// maxRisk stays the envelope of riskIndex even when only one of the two
	// arrived from the live source.
	if out.MaxRisk < out.RiskIndex {
		out.MaxRisk = out.RiskIndex
	}

	if out.Center == nil || len(out.Boundary) == 0 {
		if center, boundary, ok := geo.Resolve(cellID); ok {
			if out.Center == nil {
				c := center
				out.Center = &c
			}
			if len(out.Boundary) == 0 {
				out.Boundary = boundary
			}
		}
	}
	if out.DistrictKey == "" || out.DistrictLabel == "" {
		if district, ok := geo.LookupDistrict(cellID); ok {
			if out.DistrictKey == "" {
				out.DistrictKey = district.Key
			}
			if out.DistrictLabel == "" {
				out.DistrictLabel = district.Label
			}
		}
	}

	return out
}

// mergeFloat overwrites dst when src is present and finite. NaN and Inf are
// treated as absent: a malformed live number must not poison the summary.
func mergeFloat(dst *float64, src *float64) {
	if src == nil {
		return
	}
	if math.IsNaN(*src) || math.IsInf(*src, 0) {
		return
	}
	*dst = *src
}
