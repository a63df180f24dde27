package models

import "time"

// Dataset provenance tags. The presentation layer shows these whenever a
// bundle was served from anything other than the live backend.
const (
	DatasetSynthetic      = "synthetic"
	DatasetOpenMeteo      = "open-meteo"
	DatasetBackendArchive = "backend-archive"
)

// LatLng is a geographic coordinate in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// CellSummary is the per-(cell, year) risk and operations summary.
// Scores carry 2 decimals, physical quantities 1 decimal; exported reports
// depend on that precision being stable.
type CellSummary struct {
	CellID           string    `json:"cellId"`
	Center           *LatLng   `json:"center,omitempty"`
	Boundary         []LatLng  `json:"boundary,omitempty"`
	RiskIndex        float64   `json:"riskIndex"`
	MaxRisk          float64   `json:"maxRisk"`
	BalanceIndex     float64   `json:"balanceIndex"`
	PeakBalance      float64   `json:"peakBalance"`
	MaintenanceScore float64   `json:"maintenanceScore"`
	LeakProbability  float64   `json:"leakProbability"`
	FlowRate         float64   `json:"flowRate"`
	Pressure         float64   `json:"pressure"`
	SupplyRatio      float64   `json:"supplyRatio"`
	Status           string    `json:"status"`
	Advisories       []string  `json:"advisories"`
	Dataset          string    `json:"dataset"`
	DistrictKey      string    `json:"districtKey,omitempty"`
	DistrictLabel    string    `json:"districtLabel,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// TelemetrySeries holds one week of hourly weather and soil observations.
// All slices share the same length and index alignment with Labels.
type TelemetrySeries struct {
	Labels          []string  `json:"time"`
	Temperature     []float64 `json:"temperature"`
	Precipitation   []float64 `json:"precipitation"`
	Humidity        []float64 `json:"humidity"`
	Cloudiness      []float64 `json:"cloudiness"`
	SoilMoisture    []float64 `json:"soilMoisture"`
	SoilTemperature []float64 `json:"soilTemperature"`
}

// Len returns the number of points in the series.
func (s TelemetrySeries) Len() int { return len(s.Labels) }

// NodeForecast is a per-node risk score within a ranked forecast set.
type NodeForecast struct {
	NodeID    string  `json:"nodeId"`
	RiskScore float64 `json:"riskScore"`
}

// Analytics are the derived aggregate fields recomputed per bundle.
type Analytics struct {
	AnomalyCount    int     `json:"anomalyCount"`
	AvgDeviation    float64 `json:"avgDeviation"`
	MedianDeviation float64 `json:"medianDeviation"`
	MaxDeviation    float64 `json:"maxDeviation"`
	SupplyRatio     float64 `json:"supplyRatio"`
}

// Bundle is the composed, ready-to-render dataset for one cell/year/date
// selection. It is never persisted beyond the cache TTL; a new selection
// replaces it wholesale.
type Bundle struct {
	CellID    string          `json:"cellId"`
	Year      int             `json:"year"`
	Summary   CellSummary     `json:"summary"`
	Telemetry TelemetrySeries `json:"telemetry"`
	Forecasts []NodeForecast  `json:"forecasts"`
	Analytics Analytics       `json:"analytics"`
	Dataset   string          `json:"dataset"`
}

// LiveCellRecord is a partial cell summary as returned by the backend data
// endpoint. Pointer fields distinguish "absent" from zero values so the
// reconciliation layer can merge field by field.
type LiveCellRecord struct {
	CellID           string         `json:"cellId"`
	RiskIndex        *float64       `json:"riskIndex,omitempty"`
	MaxRisk          *float64       `json:"maxRisk,omitempty"`
	BalanceIndex     *float64       `json:"balanceIndex,omitempty"`
	PeakBalance      *float64       `json:"peakBalance,omitempty"`
	MaintenanceScore *float64       `json:"maintenanceScore,omitempty"`
	LeakProbability  *float64       `json:"leakProbability,omitempty"`
	FlowRate         *float64       `json:"flowRate,omitempty"`
	Pressure         *float64       `json:"pressure,omitempty"`
	SupplyRatio      *float64       `json:"supplyRatio,omitempty"`
	Status           *string        `json:"status,omitempty"`
	Advisories       []string       `json:"advisories,omitempty"`
	Dataset          *string        `json:"dataset,omitempty"`
	Center           *LatLng        `json:"center,omitempty"`
	Boundary         []LatLng       `json:"boundary,omitempty"`
	DistrictKey      *string        `json:"districtKey,omitempty"`
	DistrictLabel    *string        `json:"districtLabel,omitempty"`
	UpdatedAt        *time.Time     `json:"updatedAt,omitempty"`
	Forecasts        []NodeForecast `json:"forecasts,omitempty"`
}

// IsEmpty reports whether the record carries no usable fields at all, in
// which case reconciliation degenerates to the pure synthetic summary.
func (r *LiveCellRecord) IsEmpty() bool {
	if r == nil {
		return true
	}
	return r.RiskIndex == nil && r.MaxRisk == nil && r.BalanceIndex == nil &&
		r.PeakBalance == nil && r.MaintenanceScore == nil && r.LeakProbability == nil &&
		r.FlowRate == nil && r.Pressure == nil && r.SupplyRatio == nil &&
		r.Status == nil && len(r.Advisories) == 0 && r.Dataset == nil &&
		r.Center == nil && len(r.Boundary) == 0 &&
		r.DistrictKey == nil && r.DistrictLabel == nil &&
		r.UpdatedAt == nil && len(r.Forecasts) == 0
}
