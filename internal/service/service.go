// Package service orchestrates the data chain behind every cell selection:
// live backend record → Open-Meteo archive → Open-Meteo forecast → pure
// synthesis. Each stage gets one attempt; the first success wins and
// anything missing is backfilled deterministically, so a complete bundle is
// always producible and no failure ever propagates to the caller.
package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/avelichko/waterline-monitor/internal/cache"
	"github.com/avelichko/waterline-monitor/internal/circuitbreaker"
	"github.com/avelichko/waterline-monitor/internal/client"
	"github.com/avelichko/waterline-monitor/internal/export"
	"github.com/avelichko/waterline-monitor/internal/geo"
	"github.com/avelichko/waterline-monitor/internal/health"
	"github.com/avelichko/waterline-monitor/internal/models"
	"github.com/avelichko/waterline-monitor/internal/observability"
	"github.com/avelichko/waterline-monitor/internal/reconcile"
	"github.com/avelichko/waterline-monitor/internal/risk"
	"github.com/avelichko/waterline-monitor/internal/synthetic"
)

// BundleService composes ready-to-render bundles with cache-aside over the
// source fallback chain.
type BundleService struct {
	backend   client.BackendClient
	weather   []client.WeatherClient // ordered: archive first, then forecast
	cache     cache.Cache
	ttl       time.Duration
	catalog   []string
	clock     clockwork.Clock
	guard     *selectionGuard
	backendCB *circuitbreaker.CircuitBreaker
	weatherCB *circuitbreaker.CircuitBreaker
}

// Options configures optional collaborators of a BundleService.
type Options struct {
	Clock     clockwork.Clock
	BackendCB *circuitbreaker.CircuitBreaker
	WeatherCB *circuitbreaker.CircuitBreaker
}

// NewBundleService creates a BundleService. weather clients are tried in
// order after the backend archive; catalog is the sorted node catalog used
// for synthetic forecasts.
func NewBundleService(backend client.BackendClient, weather []client.WeatherClient, bundleCache cache.Cache, ttl time.Duration, catalog []string, opts Options) *BundleService {
	clk := opts.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &BundleService{
		backend:   backend,
		weather:   weather,
		cache:     bundleCache,
		ttl:       ttl,
		catalog:   catalog,
		clock:     clk,
		guard:     newSelectionGuard(),
		backendCB: opts.BackendCB,
		weatherCB: opts.WeatherCB,
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// selectionKey identifies one (cell, year, date) selection for caching and
// generation tracking. Only the calendar date of start matters, matching the
// telemetry synthesizer's seed.
func selectionKey(cellID string, year int, start time.Time) string {
	return fmt.Sprintf("%s|%d|%s", strings.ToLower(strings.TrimSpace(cellID)), year, start.UTC().Format("2006-01-02"))
}

// GetBundle returns the composed bundle for a selection. It never fails on
// upstream errors: the synthetic path always completes. The returned bundle
// carries the provenance tag of the source that actually answered.
func (s *BundleService) GetBundle(ctx context.Context, cellID string, year int, start time.Time) (models.Bundle, error) {
	key := selectionKey(cellID, year, start)
	gen := s.guard.Begin(key)
	logger := loggerFromContext(ctx)
	observability.RecordCellQuery(cellID)

	getStart := time.Now()
	cached, ok, err := s.cache.Get(ctx, key)
	getDuration := time.Since(getStart).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", string(client.CategorizeError(err))).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
	} else if ok {
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
		observability.CacheHitsTotal.WithLabelValues("bundle").Inc()
		if logger != nil {
			logger.Debug("bundle cache hit", zap.String("selection", key))
		}
		return cached, nil
	}

	bundle := s.compose(ctx, cellID, year, start)

	health.RecordServe(bundle.Dataset)
	observability.BundleServesTotal.WithLabelValues(bundle.Dataset).Inc()

	// Last request wins: a superseded selection must not touch the shared
	// cache, its caller still receives the result it asked for.
	if !s.guard.IsCurrent(key, gen) {
		observability.StaleBundlesDroppedTotal.Inc()
		if logger != nil {
			logger.Debug("stale bundle dropped", zap.String("selection", key))
		}
		return bundle, nil
	}

	setStart := time.Now()
	if setErr := s.cache.Set(ctx, key, bundle, s.ttl); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", string(client.CategorizeError(setErr))).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(setStart).Seconds())
		if logger != nil {
			logger.Warn("bundle cache set failed", zap.String("selection", key), zap.Error(setErr))
		}
	} else {
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(setStart).Seconds())
	}

	if logger != nil {
		logger.Debug("bundle served",
			zap.String("selection", key),
			zap.String("dataset", bundle.Dataset),
			zap.Int("forecasts", len(bundle.Forecasts)))
	}
	return bundle, nil
}

// compose runs the fallback chain and assembles the bundle.
func (s *BundleService) compose(ctx context.Context, cellID string, year int, start time.Time) models.Bundle {
	logger := loggerFromContext(ctx)
	now := s.clock.Now()

	live := s.fetchLiveRecord(ctx, cellID, year)
	summary := reconcile.Summary(live, cellID, year, now)

	series, weatherSource := s.fetchTelemetry(ctx, summary, cellID, year, start)

	forecasts := synthetic.SynthesizeForecasts(cellID, year, s.catalog)
	forecastsLive := false
	if live != nil && len(live.Forecasts) > 0 {
		forecasts = rankForecasts(live.Forecasts)
		forecastsLive = true
	}

	summary.Dataset = provenance(live != nil, weatherSource, forecastsLive)
	bundle := synthetic.Finalize(year, summary, series, forecasts)

	if logger != nil && bundle.Dataset == models.DatasetSynthetic {
		logger.Info("bundle served from synthetic fallback", zap.String("cell", cellID), zap.Int("year", year))
	}
	return bundle
}

// fetchLiveRecord attempts the backend once; any error means "no live data".
func (s *BundleService) fetchLiveRecord(ctx context.Context, cellID string, year int) *models.LiveCellRecord {
	if s.backend == nil {
		return nil
	}
	var record *models.LiveCellRecord
	call := func() error {
		var err error
		record, err = s.backend.FetchCellRecord(ctx, cellID, year)
		return err
	}
	var err error
	if s.backendCB != nil {
		err = s.backendCB.Call(ctx, call)
	} else {
		err = call()
	}
	if err != nil {
		observability.FallbackTotal.WithLabelValues("backend").Inc()
		if logger := loggerFromContext(ctx); logger != nil {
			logger.Debug("backend record unavailable", zap.String("cell", cellID), zap.Error(err))
		}
		return nil
	}
	if record.IsEmpty() {
		return nil
	}
	return record
}

// fetchTelemetry walks the weather fallback pair, then synthesizes. The
// synthetic stage cannot fail, so a series always comes back. Returns the
// series and the source tag of the stage that produced it.
func (s *BundleService) fetchTelemetry(ctx context.Context, summary models.CellSummary, cellID string, year int, start time.Time) (models.TelemetrySeries, string) {
	if summary.Center != nil {
		lat, lng := summary.Center.Lat, summary.Center.Lng
		end := start.UTC().Add(7 * 24 * time.Hour)
		for i, wc := range s.weather {
			var series models.TelemetrySeries
			call := func() error {
				var err error
				series, err = wc.FetchHourly(ctx, lat, lng, start, end)
				return err
			}
			var err error
			if s.weatherCB != nil {
				err = s.weatherCB.Call(ctx, call)
			} else {
				err = call()
			}
			if err == nil {
				return series, wc.Source()
			}
			observability.FallbackTotal.WithLabelValues(fmt.Sprintf("weather_%d", i)).Inc()
			if logger := loggerFromContext(ctx); logger != nil {
				logger.Debug("weather source unavailable", zap.String("cell", cellID), zap.Error(err))
			}
		}
	}
	return synthetic.SynthesizeTelemetry(cellID, year, start), models.DatasetSynthetic
}

// provenance resolves the bundle-level dataset tag: live backend data wins,
// then live weather, then pure synthesis.
func provenance(liveRecord bool, weatherSource string, liveForecasts bool) string {
	if liveRecord || liveForecasts {
		return models.DatasetBackendArchive
	}
	if weatherSource != models.DatasetSynthetic {
		return weatherSource
	}
	return models.DatasetSynthetic
}

// rankForecasts sorts a live forecast list descending by score without
// mutating the input.
func rankForecasts(in []models.NodeForecast) []models.NodeForecast {
	out := make([]models.NodeForecast, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].RiskScore > out[j].RiskScore })
	return out
}

// KnownAnomaly reports whether id identifies an anomaly in the current
// dataset: an alert-or-worse node forecast for a known cell within the year
// range. Review verdicts are only accepted for ids that match something.
func (s *BundleService) KnownAnomaly(id string, yearFrom, yearTo int) bool {
	if id == "" {
		return false
	}
	for year := yearFrom; year <= yearTo; year++ {
		for _, cellID := range geo.KnownCells() {
			for _, f := range synthetic.SynthesizeForecasts(cellID, year, s.catalog) {
				band := risk.Classify(f.RiskScore)
				if band == nil || (band.Level != risk.LevelAlert && band.Level != risk.LevelCritical) {
					continue
				}
				if export.AnomalyID(cellID, year, f.NodeID) == id {
					return true
				}
			}
		}
	}
	return false
}

// DescribeCells returns minimal synthetic descriptors for a list of cells,
// geometry included, with no upstream calls. Used by the map layer to paint
// many polygons at once.
func (s *BundleService) DescribeCells(cellIDs []string, year int) []models.CellSummary {
	now := s.clock.Now()
	out := make([]models.CellSummary, 0, len(cellIDs))
	for _, id := range cellIDs {
		summary := synthetic.SynthesizeSummary(id, year, now)
		if center, boundary, ok := geo.Resolve(id); ok {
			c := center
			summary.Center = &c
			summary.Boundary = boundary
		}
		if district, ok := geo.LookupDistrict(id); ok {
			summary.DistrictKey = district.Key
			summary.DistrictLabel = district.Label
		}
		out = append(out, summary)
	}
	return out
}
