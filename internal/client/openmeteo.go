package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avelichko/waterline-monitor/internal/models"
	"github.com/avelichko/waterline-monitor/internal/observability"
	"github.com/avelichko/waterline-monitor/internal/synthetic"
)

// hourlyVariables is the fixed request set, in the order the series expects.
var hourlyVariables = []string{
	"temperature_2m",
	"relative_humidity_2m",
	"rain",
	"cloud_cover_high",
	"soil_moisture_100_to_255cm",
	"soil_temperature_100_to_255cm",
}

// OpenMeteoClient fetches hourly arrays from one Open-Meteo endpoint. Two
// instances make up the weather fallback pair: the archive API (historical)
// and the forecast API (recent window) share a payload shape.
type OpenMeteoClient struct {
	baseURL  string
	endpoint string // metric label: "openmeteo_archive" or "openmeteo_forecast"
	timeout  time.Duration
	client   *http.Client
}

// NewOpenMeteoClient returns a client for one Open-Meteo endpoint. The
// endpoint name labels metrics and must be stable.
func NewOpenMeteoClient(baseURL, endpoint string, timeout time.Duration) (*OpenMeteoClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("open-meteo base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid open-meteo URL: %w", err)
	}
	return &OpenMeteoClient{
		baseURL:  baseURL,
		endpoint: endpoint,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Source returns the provenance tag for bundles served from this client.
func (c *OpenMeteoClient) Source() string { return models.DatasetOpenMeteo }

type openMeteoResponse struct {
	Hourly struct {
		Time            []string  `json:"time"`
		Temperature     []float64 `json:"temperature_2m"`
		Humidity        []float64 `json:"relative_humidity_2m"`
		Rain            []float64 `json:"rain"`
		CloudCover      []float64 `json:"cloud_cover_high"`
		SoilMoisture    []float64 `json:"soil_moisture_100_to_255cm"`
		SoilTemperature []float64 `json:"soil_temperature_100_to_255cm"`
	} `json:"hourly"`
}

// FetchHourly requests the hourly window for the coordinates and maps it to
// a telemetry series. Payloads with misaligned arrays or fewer than a full
// week of points are rejected as malformed so the chain can fall through.
func (c *OpenMeteoClient) FetchHourly(ctx context.Context, lat, lng float64, start, end time.Time) (models.TelemetrySeries, error) {
	callStart := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return models.TelemetrySeries{}, fmt.Errorf("invalid open-meteo URL: %w", err)
	}
	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%.4f", lat))
	params.Set("longitude", fmt.Sprintf("%.4f", lng))
	params.Set("start_date", start.UTC().Format("2006-01-02"))
	params.Set("end_date", end.UTC().Format("2006-01-02"))
	params.Set("hourly", strings.Join(hourlyVariables, ","))
	params.Set("timezone", "UTC")
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(c.endpoint, "error").Inc()
		return models.TelemetrySeries{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(callStart).Seconds()
		observability.UpstreamCallsTotal.WithLabelValues(c.endpoint, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(c.endpoint, "error").Observe(duration)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.TelemetrySeries{}, fmt.Errorf("request timeout: %w", err)
		}
		return models.TelemetrySeries{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(callStart).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(c.endpoint, status).Inc()
	observability.UpstreamDuration.WithLabelValues(c.endpoint, status).Observe(duration)

	if err := handleErrorStatus(resp.StatusCode); err != nil {
		return models.TelemetrySeries{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.TelemetrySeries{}, fmt.Errorf("read response body: %w", err)
	}

	var payload openMeteoResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.TelemetrySeries{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return mapHourly(payload)
}

// mapHourly converts the raw arrays into an aligned, week-long series with
// the contract's 1-decimal precision. Values are truncated to exactly one
// week so live and synthetic series are interchangeable downstream.
func mapHourly(payload openMeteoResponse) (models.TelemetrySeries, error) {
	h := payload.Hourly
	n := len(h.Time)
	if n < synthetic.SeriesHours {
		return models.TelemetrySeries{}, fmt.Errorf("%w: %d hourly points, want %d", ErrMalformedPayload, n, synthetic.SeriesHours)
	}
	for name, arr := range map[string][]float64{
		"temperature_2m":                h.Temperature,
		"relative_humidity_2m":          h.Humidity,
		"rain":                          h.Rain,
		"cloud_cover_high":              h.CloudCover,
		"soil_moisture_100_to_255cm":    h.SoilMoisture,
		"soil_temperature_100_to_255cm": h.SoilTemperature,
	} {
		if len(arr) != n {
			return models.TelemetrySeries{}, fmt.Errorf("%w: %s has %d points, time has %d", ErrMalformedPayload, name, len(arr), n)
		}
	}

	n = synthetic.SeriesHours
	series := models.TelemetrySeries{
		Labels:          append([]string(nil), h.Time[:n]...),
		Temperature:     roundSlice(h.Temperature[:n]),
		Precipitation:   roundSlice(h.Rain[:n]),
		Humidity:        roundSlice(h.Humidity[:n]),
		Cloudiness:      roundSlice(h.CloudCover[:n]),
		SoilMoisture:    roundSlice(h.SoilMoisture[:n]),
		SoilTemperature: roundSlice(h.SoilTemperature[:n]),
	}
	return series, nil
}

func roundSlice(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Round(v*10) / 10
	}
	return out
}
