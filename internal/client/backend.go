package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/avelichko/waterline-monitor/internal/models"
	"github.com/avelichko/waterline-monitor/internal/observability"
)

// BackendHTTPClient talks to the model-serving backend. The backend is an
// opaque HTTP endpoint: it may answer with a full record, a partial one, or
// nothing at all, and all three are normal.
type BackendHTTPClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// NewBackendClient validates the base URL and returns a client with the
// given per-call timeout.
func NewBackendClient(baseURL string, timeout time.Duration) (*BackendHTTPClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	return &BackendHTTPClient{
		baseURL: baseURL,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// FetchCellRecord requests the (possibly partial) cell record for a
// reporting year. A 404 maps to ErrCellNotFound, 5xx to ErrUpstreamFailure;
// the caller treats any error as "fall through to the next source".
func (c *BackendHTTPClient) FetchCellRecord(ctx context.Context, cellID string, year int) (*models.LiveCellRecord, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint, err := url.Parse(c.baseURL + "/api/cells/" + url.PathEscape(cellID))
	if err != nil {
		return nil, fmt.Errorf("build backend URL: %w", err)
	}
	params := url.Values{}
	params.Set("year", strconv.Itoa(year))
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues("backend", "error").Inc()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.UpstreamCallsTotal.WithLabelValues("backend", "error").Inc()
		observability.UpstreamDuration.WithLabelValues("backend", "error").Observe(duration)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues("backend", status).Inc()
	observability.UpstreamDuration.WithLabelValues("backend", status).Observe(duration)

	if err := handleErrorStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var record models.LiveCellRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if record.CellID == "" {
		record.CellID = cellID
	}
	return &record, nil
}

func handleErrorStatus(statusCode int) error {
	switch statusCode {
	case http.StatusNotFound:
		return ErrCellNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, statusCode)
	}
	if statusCode < 200 || statusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, statusCode)
	}
	return nil
}
