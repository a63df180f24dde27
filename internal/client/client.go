// Package client implements the upstream data sources: the backend archive
// endpoint and the Open-Meteo weather endpoints. Every call is a single
// attempt with a transport timeout: the fallback chain in the service layer
// moves on to the next source on the first failure, so retrying here would
// only delay the fallback.
package client

import (
	"context"
	"errors"
	"time"

	"github.com/avelichko/waterline-monitor/internal/models"
)

var (
	ErrCellNotFound     = errors.New("cell not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
	ErrMalformedPayload = errors.New("malformed payload")
)

// BackendClient fetches partial cell records from the primary data endpoint.
type BackendClient interface {
	FetchCellRecord(ctx context.Context, cellID string, year int) (*models.LiveCellRecord, error)
}

// WeatherClient fetches hourly weather arrays for a coordinate window.
// Source identifies the provenance tag for bundles served from this client.
type WeatherClient interface {
	FetchHourly(ctx context.Context, lat, lng float64, start, end time.Time) (models.TelemetrySeries, error)
	Source() string
}

func extractCorrelationID(ctx context.Context) string {
	if v := ctx.Value("correlation_id"); v != nil {
		if corrID, ok := v.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
