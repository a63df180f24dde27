package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/avelichko/waterline-monitor/internal/export"
	"github.com/avelichko/waterline-monitor/internal/feedback"
	"github.com/avelichko/waterline-monitor/internal/geo"
	"github.com/avelichko/waterline-monitor/internal/health"
	"github.com/avelichko/waterline-monitor/internal/lifecycle"
	"github.com/avelichko/waterline-monitor/internal/models"
	"github.com/avelichko/waterline-monitor/internal/risk"
	"github.com/avelichko/waterline-monitor/internal/service"
	"github.com/avelichko/waterline-monitor/internal/validation"
)

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	Window               time.Duration
	RateLimitRPS         int
	OverloadThresholdPct int
	// SyntheticSharePct above which the service reports degraded data
	// quality. Still HTTP 200: every request is answered, just from
	// synthesis.
	SyntheticShareThresholdPct float64
	StartTime                  time.Time
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	bundles      *service.BundleService
	reviews      *feedback.Registry
	healthConfig *HealthConfig
	logger       *zap.Logger
	yearFrom     int
	yearTo       int

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. yearFrom/yearTo bound the selectable
// dataset years.
func NewHandler(bundles *service.BundleService, reviews *feedback.Registry, healthConfig *HealthConfig, logger *zap.Logger, yearFrom, yearTo int) *Handler {
	return &Handler{
		bundles:      bundles,
		reviews:      reviews,
		healthConfig: healthConfig,
		logger:       logger,
		yearFrom:     yearFrom,
		yearTo:       yearTo,
	}
}

// GetYears handles GET /api/years. The latest year is the default selection.
func (h *Handler) GetYears(w http.ResponseWriter, r *http.Request) {
	years := make([]int, 0, h.yearTo-h.yearFrom+1)
	for y := h.yearFrom; y <= h.yearTo; y++ {
		years = append(years, y)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"years":   years,
		"default": h.yearTo,
	})
}

// GetDistricts handles GET /api/districts.
func (h *Handler) GetDistricts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"districts": geo.Districts(),
	})
}

// GetRiskBands handles GET /api/risk-bands. Static reference data for the
// map legend.
func (h *Handler) GetRiskBands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"bands": risk.Bands(),
	})
}

// PostPolygons handles POST /api/polygons: batch descriptors for map paint.
func (h *Handler) PostPolygons(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CellIDs []string `json:"cellIds"`
		Year    int      `json:"year"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON with cellIds and year")
		return
	}
	ids, err := validation.ValidateCellBatch(body.CellIDs)
	if err != nil {
		writeValidationError(w, r, err)
		return
	}
	year := body.Year
	if year == 0 {
		year = h.yearTo
	}
	if err := validation.ValidateYear(year); err != nil {
		writeValidationError(w, r, err)
		return
	}

	summaries := h.bundles.DescribeCells(ids, year)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"polygons": summaries,
		"year":     year,
	})
}

// GetPolygon handles GET /api/polygons/{cellId}?year=&now=.
func (h *Handler) GetPolygon(w http.ResponseWriter, r *http.Request) {
	cellID, year, now, ok := h.parseSelection(w, r)
	if !ok {
		return
	}

	bundle, err := h.bundles.GetBundle(r.Context(), cellID, year, now)
	if err != nil {
		// The chain bottoms out in synthesis; an error here is a programming
		// bug, not an upstream condition.
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "failed to compose dataset")
		if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
			logger.Error("bundle composition failed", zap.Error(err))
		}
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

// GetReport handles GET /api/polygons/{cellId}/report?year=. Streams the
// telemetry report CSV as an attachment.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	cellID, year, now, ok := h.parseSelection(w, r)
	if !ok {
		return
	}

	bundle, err := h.bundles.GetBundle(r.Context(), cellID, year, now)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "failed to compose dataset")
		return
	}
	content, err := export.TelemetryReport(bundle)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "failed to render report")
		return
	}
	writeCSV(w, export.ReportFilename(cellID, year), content)
}

// GetAnomaliesExport handles GET /api/anomalies/export?year=&cellId=.
func (h *Handler) GetAnomaliesExport(w http.ResponseWriter, r *http.Request) {
	year := h.yearTo
	if s := r.URL.Query().Get("year"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_YEAR", "year must be an integer")
			return
		}
		year = v
	}
	if err := validation.ValidateYear(year); err != nil {
		writeValidationError(w, r, err)
		return
	}

	cells := geo.KnownCells()
	filterCell := ""
	if s := r.URL.Query().Get("cellId"); s != "" {
		id, err := validation.ValidateCellID(s)
		if err != nil {
			writeValidationError(w, r, err)
			return
		}
		cells = []string{id}
		filterCell = id
	}

	now, err := validation.ParseNowOverride(r.URL.Query().Get("now"), time.Now())
	if err != nil {
		writeValidationError(w, r, err)
		return
	}

	bundles := make(map[string]models.Bundle, len(cells))
	for _, id := range cells {
		bundle, err := h.bundles.GetBundle(r.Context(), id, year, now)
		if err != nil {
			continue
		}
		bundles[id] = bundle
	}

	content, err := export.AnomalyRegister(bundles, year, h.reviews)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "failed to render anomaly register")
		return
	}
	writeCSV(w, export.AnomalyFilename(filterCell, year), content)
}

// PostFeedback handles POST /api/anomalies/{anomalyId}/feedback.
func (h *Handler) PostFeedback(w http.ResponseWriter, r *http.Request) {
	anomalyID := mux.Vars(r)["anomalyId"]
	if anomalyID == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_ANOMALY", "anomaly id is required")
		return
	}
	var body struct {
		Status  string `json:"status"`
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON with status")
		return
	}
	if !feedback.ValidStatus(body.Status) {
		writeError(w, r, http.StatusBadRequest, "INVALID_STATUS", "status must be one of confirmed, dismissed, unreviewed")
		return
	}
	if !h.bundles.KnownAnomaly(anomalyID, h.yearFrom, h.yearTo) {
		writeError(w, r, http.StatusBadRequest, "UNKNOWN_ANOMALY", "anomaly id does not match any known anomaly")
		return
	}

	entry, err := h.reviews.Record(anomalyID, body.Status, body.Comment)
	if err != nil {
		if errors.Is(err, feedback.ErrInvalidStatus) {
			writeError(w, r, http.StatusBadRequest, "INVALID_STATUS", err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "failed to record feedback")
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// parseSelection extracts and validates {cellId}, ?year= and ?now= from a
// single-cell request. Writes the error response itself on failure.
func (h *Handler) parseSelection(w http.ResponseWriter, r *http.Request) (string, int, time.Time, bool) {
	cellID, err := validation.ValidateCellID(mux.Vars(r)["cellId"])
	if err != nil {
		writeValidationError(w, r, err)
		return "", 0, time.Time{}, false
	}

	year := h.yearTo
	if s := r.URL.Query().Get("year"); s != "" {
		v, convErr := strconv.Atoi(s)
		if convErr != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_YEAR", "year must be an integer")
			return "", 0, time.Time{}, false
		}
		year = v
	}
	if err := validation.ValidateYear(year); err != nil {
		writeValidationError(w, r, err)
		return "", 0, time.Time{}, false
	}

	now, err := validation.ParseNowOverride(r.URL.Query().Get("now"), time.Now())
	if err != nil {
		writeValidationError(w, r, err)
		return "", 0, time.Time{}, false
	}
	return cellID, year, now, true
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.status == "degraded" {
		checks["liveData"] = "unhealthy"
	} else {
		checks["liveData"] = "healthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "waterline-monitor",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > overloaded > degraded > healthy. "Degraded" means most
// serves are falling back to synthesis; the service still answers every
// request, so it stays HTTP 200.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if h.healthConfig.RateLimitRPS > 0 && h.healthConfig.Window > 0 {
		threshold := float64(h.healthConfig.RateLimitRPS) * h.healthConfig.Window.Seconds() * float64(h.healthConfig.OverloadThresholdPct) / 100
		if float64(health.RequestCount(h.healthConfig.Window)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if h.healthConfig.SyntheticShareThresholdPct > 0 && h.healthConfig.Window > 0 {
		if health.SyntheticSharePct(h.healthConfig.Window) >= h.healthConfig.SyntheticShareThresholdPct {
			return healthResult{"degraded", http.StatusOK, "synthetic_share_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeCSV writes a CSV attachment response.
func writeCSV(w http.ResponseWriter, filename string, content []byte) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

// writeError writes an error response in the standard error format with code,
// message, and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeValidationError maps validation sentinels onto 400 responses with
// stable codes.
func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	code := "INVALID_REQUEST"
	switch {
	case errors.Is(err, validation.ErrCellIDEmpty), errors.Is(err, validation.ErrCellIDInvalid):
		code = "INVALID_CELL"
	case errors.Is(err, validation.ErrYearOutOfRange):
		code = "INVALID_YEAR"
	case errors.Is(err, validation.ErrTooManyCells):
		code = "TOO_MANY_CELLS"
	case errors.Is(err, validation.ErrBadTimestamp):
		code = "INVALID_TIMESTAMP"
	}
	writeError(w, r, http.StatusBadRequest, code, err.Error())
}
