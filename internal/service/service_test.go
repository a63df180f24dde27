package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/avelichko/waterline-monitor/internal/circuitbreaker"
	"github.com/avelichko/waterline-monitor/internal/client"
	"github.com/avelichko/waterline-monitor/internal/export"
	"github.com/avelichko/waterline-monitor/internal/geo"
	"github.com/avelichko/waterline-monitor/internal/models"
	"github.com/avelichko/waterline-monitor/internal/risk"
	"github.com/avelichko/waterline-monitor/internal/synthetic"
)

const testCell = "8611aa7afffffff"

var errDown = errors.New("source down")

func fptr(v float64) *float64 { return &v }

type fakeBackend struct {
	record *models.LiveCellRecord
	err    error
	calls  int
	onCall func() // runs before each fetch
}

func (f *fakeBackend) FetchCellRecord(ctx context.Context, cellID string, year int) (*models.LiveCellRecord, error) {
	f.calls++
	if f.onCall != nil {
		f.onCall()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.record, nil
}

type fakeWeather struct {
	series models.TelemetrySeries
	err    error
	source string
	calls  int
}

func (f *fakeWeather) FetchHourly(ctx context.Context, lat, lng float64, start, end time.Time) (models.TelemetrySeries, error) {
	f.calls++
	if f.err != nil {
		return models.TelemetrySeries{}, f.err
	}
	return f.series, nil
}

func (f *fakeWeather) Source() string { return f.source }

type recordingCache struct {
	store  map[string]models.Bundle
	sets   int
	getErr error
	setErr error
}

func newRecordingCache() *recordingCache {
	return &recordingCache{store: make(map[string]models.Bundle)}
}

func (c *recordingCache) Get(ctx context.Context, key string) (models.Bundle, bool, error) {
	if c.getErr != nil {
		return models.Bundle{}, false, c.getErr
	}
	b, ok := c.store[key]
	return b, ok, nil
}

func (c *recordingCache) Set(ctx context.Context, key string, value models.Bundle, ttl time.Duration) error {
	c.sets++
	if c.setErr != nil {
		return c.setErr
	}
	c.store[key] = value
	return nil
}

func liveSeries() models.TelemetrySeries {
	return synthetic.SynthesizeTelemetry(testCell, 2025, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
}

func newTestService(backend *fakeBackend, weather []*fakeWeather, bundleCache *recordingCache, opts Options) *BundleService {
	var b client.BackendClient
	if backend != nil {
		b = backend
	}
	ws := make([]client.WeatherClient, 0, len(weather))
	for _, w := range weather {
		ws = append(ws, w)
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	}
	return NewBundleService(b, ws, bundleCache, time.Minute, []string{"PS000112", "PS000147", "PS000203"}, opts)
}

func TestGetBundle_BackendRecordWins(t *testing.T) {
	backend := &fakeBackend{record: &models.LiveCellRecord{CellID: testCell, RiskIndex: fptr(118.4)}}
	archive := &fakeWeather{series: liveSeries(), source: models.DatasetOpenMeteo}
	c := newRecordingCache()
	svc := newTestService(backend, []*fakeWeather{archive}, c, Options{})

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	bundle, err := svc.GetBundle(context.Background(), testCell, 2025, start)
	if err != nil {
		t.Fatalf("GetBundle() error = %v", err)
	}
	if bundle.Dataset != models.DatasetBackendArchive {
		t.Errorf("Dataset = %q, want backend-archive when a live record answered", bundle.Dataset)
	}
	if backend.calls != 1 {
		t.Errorf("backend called %d times, want 1", backend.calls)
	}
	if c.sets != 1 {
		t.Errorf("cache sets = %d, want the composed bundle stored once", c.sets)
	}
}

func TestGetBundle_WeatherFallback(t *testing.T) {
	backend := &fakeBackend{err: errDown}
	archive := &fakeWeather{series: liveSeries(), source: models.DatasetOpenMeteo}
	svc := newTestService(backend, []*fakeWeather{archive}, newRecordingCache(), Options{})

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	bundle, err := svc.GetBundle(context.Background(), testCell, 2025, start)
	if err != nil {
		t.Fatalf("GetBundle() error = %v", err)
	}
	if bundle.Dataset != models.DatasetOpenMeteo {
		t.Errorf("Dataset = %q, want open-meteo when only weather answered", bundle.Dataset)
	}
	if archive.calls != 1 {
		t.Errorf("weather called %d times, want 1", archive.calls)
	}
}

func TestGetBundle_WeatherChainOrder(t *testing.T) {
	backend := &fakeBackend{err: errDown}
	archive := &fakeWeather{err: errDown, source: models.DatasetOpenMeteo}
	forecast := &fakeWeather{series: liveSeries(), source: models.DatasetOpenMeteo}
	svc := newTestService(backend, []*fakeWeather{archive, forecast}, newRecordingCache(), Options{})

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	bundle, _ := svc.GetBundle(context.Background(), testCell, 2025, start)

	if archive.calls != 1 || forecast.calls != 1 {
		t.Errorf("calls = archive %d, forecast %d, want one each in order", archive.calls, forecast.calls)
	}
	if bundle.Dataset != models.DatasetOpenMeteo {
		t.Errorf("Dataset = %q, want open-meteo from the second stage", bundle.Dataset)
	}
}

func TestGetBundle_AllSourcesFailStillServes(t *testing.T) {
	backend := &fakeBackend{err: errDown}
	archive := &fakeWeather{err: errDown, source: models.DatasetOpenMeteo}
	forecast := &fakeWeather{err: errDown, source: models.DatasetOpenMeteo}
	svc := newTestService(backend, []*fakeWeather{archive, forecast}, newRecordingCache(), Options{})

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	bundle, err := svc.GetBundle(context.Background(), testCell, 2025, start)
	if err != nil {
		t.Fatalf("GetBundle() error = %v, full outage must still serve", err)
	}
	if bundle.Dataset != models.DatasetSynthetic {
		t.Errorf("Dataset = %q, want synthetic", bundle.Dataset)
	}
	if bundle.Telemetry.Len() != synthetic.SeriesHours {
		t.Errorf("telemetry has %d points, want %d", bundle.Telemetry.Len(), synthetic.SeriesHours)
	}
	if len(bundle.Forecasts) == 0 {
		t.Error("synthetic bundle has no forecasts")
	}
	if backend.calls != 1 || archive.calls != 1 || forecast.calls != 1 {
		t.Errorf("calls = %d/%d/%d, want exactly one attempt per source",
			backend.calls, archive.calls, forecast.calls)
	}
}

func TestGetBundle_NoBackendConfigured(t *testing.T) {
	svc := newTestService(nil, nil, newRecordingCache(), Options{})

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	bundle, err := svc.GetBundle(context.Background(), testCell, 2025, start)
	if err != nil {
		t.Fatalf("GetBundle() error = %v", err)
	}
	if bundle.Dataset != models.DatasetSynthetic {
		t.Errorf("Dataset = %q, want synthetic in standalone mode", bundle.Dataset)
	}
}

func TestGetBundle_EmptyRecordFallsThrough(t *testing.T) {
	backend := &fakeBackend{record: &models.LiveCellRecord{CellID: testCell}}
	svc := newTestService(backend, nil, newRecordingCache(), Options{})

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	bundle, _ := svc.GetBundle(context.Background(), testCell, 2025, start)
	if bundle.Dataset != models.DatasetSynthetic {
		t.Errorf("Dataset = %q, want synthetic when the record carries no fields", bundle.Dataset)
	}
}

func TestGetBundle_CacheHitSkipsSources(t *testing.T) {
	backend := &fakeBackend{record: &models.LiveCellRecord{CellID: testCell, RiskIndex: fptr(110)}}
	c := newRecordingCache()
	svc := newTestService(backend, nil, c, Options{})

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	first, _ := svc.GetBundle(context.Background(), testCell, 2025, start)
	second, _ := svc.GetBundle(context.Background(), testCell, 2025, start)

	if backend.calls != 1 {
		t.Errorf("backend called %d times, want the second request served from cache", backend.calls)
	}
	if second.Summary.RiskIndex != first.Summary.RiskIndex {
		t.Errorf("cached bundle differs from composed: %v vs %v", second.Summary.RiskIndex, first.Summary.RiskIndex)
	}
}

func TestGetBundle_CacheErrorsAreSoft(t *testing.T) {
	c := newRecordingCache()
	c.getErr = errDown
	c.setErr = errDown
	svc := newTestService(nil, nil, c, Options{})

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if _, err := svc.GetBundle(context.Background(), testCell, 2025, start); err != nil {
		t.Errorf("GetBundle() error = %v, cache failures must not surface", err)
	}
}

func TestGetBundle_SupersededRequestNotCached(t *testing.T) {
	c := newRecordingCache()
	backend := &fakeBackend{err: errDown}
	svc := newTestService(backend, nil, c, Options{})

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	key := selectionKey(testCell, 2025, start)
	// A newer request for the same selection begins while this one is in
	// flight; the older result must not land in the shared cache.
	backend.onCall = func() { svc.guard.Begin(key) }

	bundle, err := svc.GetBundle(context.Background(), testCell, 2025, start)
	if err != nil {
		t.Fatalf("GetBundle() error = %v", err)
	}
	if bundle.CellID != testCell {
		t.Errorf("superseded request still returns its own bundle, got cell %q", bundle.CellID)
	}
	if c.sets != 0 {
		t.Errorf("cache sets = %d, want 0 for a superseded request", c.sets)
	}
}

func TestGetBundle_OpenBreakerSkipsBackend(t *testing.T) {
	backend := &fakeBackend{err: errDown}
	cb := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour})
	svc := newTestService(backend, nil, newRecordingCache(), Options{BackendCB: cb})

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	_, _ = svc.GetBundle(context.Background(), testCell, 2025, start)
	// Different selection so the cache does not absorb the second request.
	_, _ = svc.GetBundle(context.Background(), testCell, 2024, start)

	if backend.calls != 1 {
		t.Errorf("backend called %d times, want the open breaker to skip the second attempt", backend.calls)
	}
}

func TestGetBundle_LiveForecastsRanked(t *testing.T) {
	backend := &fakeBackend{record: &models.LiveCellRecord{
		CellID: testCell,
		Forecasts: []models.NodeForecast{
			{NodeID: "low", RiskScore: 96.1},
			{NodeID: "high", RiskScore: 131.5},
			{NodeID: "mid", RiskScore: 104.2},
		},
	}}
	svc := newTestService(backend, nil, newRecordingCache(), Options{})

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	bundle, _ := svc.GetBundle(context.Background(), testCell, 2025, start)

	if len(bundle.Forecasts) != 3 {
		t.Fatalf("forecasts = %d, want the live set", len(bundle.Forecasts))
	}
	if bundle.Forecasts[0].NodeID != "high" || bundle.Forecasts[2].NodeID != "low" {
		t.Errorf("forecasts not ranked descending: %+v", bundle.Forecasts)
	}
	if bundle.Dataset != models.DatasetBackendArchive {
		t.Errorf("Dataset = %q, want backend-archive for live forecasts", bundle.Dataset)
	}
	// Finalize derives the headline risk pair from the ranked set.
	if bundle.Summary.MaxRisk != 131.5 {
		t.Errorf("Summary.MaxRisk = %v, want the top forecast score", bundle.Summary.MaxRisk)
	}
}

func TestSelectionKey_Normalization(t *testing.T) {
	base := selectionKey("8611AA7AFFFFFFF", 2025, time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC))
	same := selectionKey("  8611aa7afffffff ", 2025, time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC))
	if base != same {
		t.Errorf("keys differ for the same selection: %q vs %q", base, same)
	}
	if selectionKey(testCell, 2024, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) == base {
		t.Error("different years share a key")
	}
	if selectionKey(testCell, 2025, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)) == base {
		t.Error("different dates share a key")
	}
}

func TestProvenance(t *testing.T) {
	tests := []struct {
		name          string
		liveRecord    bool
		weatherSource string
		liveForecasts bool
		want          string
	}{
		{"record wins", true, models.DatasetOpenMeteo, false, models.DatasetBackendArchive},
		{"forecasts win", false, models.DatasetSynthetic, true, models.DatasetBackendArchive},
		{"weather only", false, models.DatasetOpenMeteo, false, models.DatasetOpenMeteo},
		{"nothing live", false, models.DatasetSynthetic, false, models.DatasetSynthetic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := provenance(tt.liveRecord, tt.weatherSource, tt.liveForecasts); got != tt.want {
				t.Errorf("provenance() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKnownAnomaly(t *testing.T) {
	svc := newTestService(nil, nil, newRecordingCache(), Options{})

	var id string
	for _, cellID := range geo.KnownCells() {
		for _, f := range synthetic.SynthesizeForecasts(cellID, 2025, svc.catalog) {
			band := risk.Classify(f.RiskScore)
			if band != nil && (band.Level == risk.LevelAlert || band.Level == risk.LevelCritical) {
				id = export.AnomalyID(cellID, 2025, f.NodeID)
				break
			}
		}
		if id != "" {
			break
		}
	}
	if id == "" {
		t.Fatal("no anomaly in the synthetic dataset")
	}

	if !svc.KnownAnomaly(id, 2021, 2025) {
		t.Errorf("KnownAnomaly(%q) = false for an exported anomaly", id)
	}
	if svc.KnownAnomaly(id, 2021, 2024) {
		t.Error("KnownAnomaly matched an anomaly outside the year range")
	}
	if svc.KnownAnomaly("ffffffffffff", 2021, 2025) {
		t.Error("KnownAnomaly matched a fabricated id")
	}
	if svc.KnownAnomaly("", 2021, 2025) {
		t.Error("KnownAnomaly matched an empty id")
	}
}

func TestDescribeCells(t *testing.T) {
	svc := newTestService(nil, nil, newRecordingCache(), Options{})

	summaries := svc.DescribeCells([]string{testCell}, 2025)
	if len(summaries) != 1 {
		t.Fatalf("DescribeCells() returned %d summaries, want 1", len(summaries))
	}
	s := summaries[0]
	if s.CellID != testCell {
		t.Errorf("CellID = %q", s.CellID)
	}
	if s.Center == nil || len(s.Boundary) < 6 {
		t.Errorf("geometry missing: center=%v boundary=%d points", s.Center, len(s.Boundary))
	}
	if s.DistrictKey == "" || s.DistrictLabel == "" {
		t.Errorf("district missing for a preset cell: %q/%q", s.DistrictKey, s.DistrictLabel)
	}
	if s.RiskIndex <= 0 {
		t.Errorf("RiskIndex = %v, want a synthesized score", s.RiskIndex)
	}
}

func TestDescribeCells_Deterministic(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(nil, nil, newRecordingCache(), Options{Clock: clock})

	a := svc.DescribeCells([]string{testCell}, 2025)
	b := svc.DescribeCells([]string{testCell}, 2025)
	if a[0].RiskIndex != b[0].RiskIndex || a[0].Status != b[0].Status {
		t.Errorf("repeated DescribeCells differ: %+v vs %+v", a[0], b[0])
	}
}
