// Package export renders CSV downloads: the per-cell telemetry report and
// the network-wide anomaly register. Both are deterministic for a given
// selection, so repeated downloads diff clean.
package export

import (
	"bytes"
	"crypto/sha1"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"

	"github.com/avelichko/waterline-monitor/internal/feedback"
	"github.com/avelichko/waterline-monitor/internal/geo"
	"github.com/avelichko/waterline-monitor/internal/models"
	"github.com/avelichko/waterline-monitor/internal/risk"
)

// AnomalyID derives a stable identifier for one (cell, year, node) anomaly.
// Stability matters: operator feedback is keyed by this id across exports.
func AnomalyID(cellID string, year int, nodeID string) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s-%d-%s", cellID, year, nodeID)))
	return hex.EncodeToString(sum[:])[:12]
}

// TelemetryReport renders a bundle's hourly series as CSV. One row per hour,
// values already rounded by the synthesis/reconciliation path.
func TelemetryReport(bundle models.Bundle) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"timestamp", "temperature", "humidity", "cloud_cover", "soil_temperature", "soil_moisture", "precipitation"}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("export: write header: %w", err)
	}

	t := bundle.Telemetry
	for i := 0; i < t.Len(); i++ {
		row := []string{
			t.Labels[i],
			formatMetric(t.Temperature, i),
			formatMetric(t.Humidity, i),
			formatMetric(t.Cloudiness, i),
			formatMetric(t.SoilTemperature, i),
			formatMetric(t.SoilMoisture, i),
			formatMetric(t.Precipitation, i),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("export: write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("export: flush: %w", err)
	}
	return buf.Bytes(), nil
}

// formatMetric renders one series value, tolerating short slices from
// malformed live payloads.
func formatMetric(vals []float64, i int) string {
	if i >= len(vals) {
		return ""
	}
	return strconv.FormatFloat(vals[i], 'f', -1, 64)
}

// ReportFilename names a telemetry report download.
func ReportFilename(cellID string, year int) string {
	return fmt.Sprintf("report-%s-%d.csv", cellID, year)
}

// AnomalyRow is one line of the anomaly register before CSV encoding.
type AnomalyRow struct {
	AnomalyID string
	CellID    string
	District  string
	NodeID    string
	RiskScore float64
	RiskLevel string
}

// AnomalyRegister renders the anomaly register as CSV. bundles maps cell id
// to the composed bundle for the requested year; rows carry the operator
// verdict from the feedback registry, defaulting to unreviewed. Cells are
// walked in sorted order and nodes in bundle order (descending score), so
// output is deterministic.
func AnomalyRegister(bundles map[string]models.Bundle, year int, reviews *feedback.Registry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"anomaly_id", "cell_id", "district", "node_id", "risk_score", "risk_level", "status", "comment", "updated_at"}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("export: write header: %w", err)
	}

	for _, row := range CollectAnomalies(bundles, year) {
		entry := feedback.Entry{Status: feedback.StatusUnreviewed}
		if reviews != nil {
			entry = reviews.Get(row.AnomalyID)
		}
		updated := ""
		if !entry.UpdatedAt.IsZero() {
			updated = entry.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z")
		}
		record := []string{
			row.AnomalyID,
			row.CellID,
			row.District,
			row.NodeID,
			strconv.FormatFloat(row.RiskScore, 'f', 2, 64),
			row.RiskLevel,
			entry.Status,
			entry.Comment,
			updated,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("export: write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("export: flush: %w", err)
	}
	return buf.Bytes(), nil
}

// CollectAnomalies extracts register rows from composed bundles. A node
// forecast qualifies as an anomaly when its score classifies at alert or
// above.
func CollectAnomalies(bundles map[string]models.Bundle, year int) []AnomalyRow {
	cellIDs := make([]string, 0, len(bundles))
	for id := range bundles {
		cellIDs = append(cellIDs, id)
	}
	sort.Strings(cellIDs)

	var rows []AnomalyRow
	for _, cellID := range cellIDs {
		bundle := bundles[cellID]
		district := ""
		if d, ok := geo.LookupDistrict(cellID); ok {
			district = d.Label
		}
		for _, fc := range bundle.Forecasts {
			band := risk.Classify(fc.RiskScore)
			if band == nil || (band.Level != risk.LevelAlert && band.Level != risk.LevelCritical) {
				continue
			}
			rows = append(rows, AnomalyRow{
				AnomalyID: AnomalyID(cellID, year, fc.NodeID),
				CellID:    cellID,
				District:  district,
				NodeID:    fc.NodeID,
				RiskScore: fc.RiskScore,
				RiskLevel: band.Level,
			})
		}
	}
	return rows
}

// AnomalyFilename names an anomaly register download, mirroring the applied
// filters.
func AnomalyFilename(cellID string, year int) string {
	name := "anomalies"
	if cellID != "" {
		name += "-" + cellID
	}
	if year != 0 {
		name += "-" + strconv.Itoa(year)
	}
	return name + ".csv"
}
