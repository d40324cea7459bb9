package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-history-api/internal/models"
	"github.com/kjstillabower/weather-history-api/internal/observability"
)

// Provider endpoints, relative to the configured base URL.
const (
	EndpointWeather  = "weather"
	EndpointForecast = "forecast"
)

// DefaultBaseURL is the OpenWeatherMap 2.5 API root.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

// WeatherClient fetches raw provider payloads. Payloads are returned unmodified.
type WeatherClient interface {
	GetCurrentWeather(ctx context.Context, q models.Query) (json.RawMessage, error)
	GetForecast(ctx context.Context, q models.Query) (json.RawMessage, error)
}

var (
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrInvalidResponse = errors.New("invalid response")
)

type OpenWeatherClient struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// NewOpenWeatherClient returns a client for baseURL (e.g. DefaultBaseURL). Each call is
// bounded by timeout; there is no retry.
func NewOpenWeatherClient(apiKey, baseURL string, timeout time.Duration, logger *zap.Logger) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &OpenWeatherClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client: &http.Client{
			Timeout:   timeout,
			Transport: observability.NewRoundTripper(logger),
		},
	}, nil
}

// GetCurrentWeather fetches the current-conditions document.
func (c *OpenWeatherClient) GetCurrentWeather(ctx context.Context, q models.Query) (json.RawMessage, error) {
	return c.callAPI(ctx, EndpointWeather, q)
}

// GetForecast fetches the 5-day / 3-hour forecast document.
func (c *OpenWeatherClient) GetForecast(ctx context.Context, q models.Query) (json.RawMessage, error) {
	return c.callAPI(ctx, EndpointForecast, q)
}

// callAPI issues one GET and returns the body if it is valid JSON. Non-2xx responses with
// a JSON body are returned as-is; the provider's error document is what the caller passes
// through.
func (c *OpenWeatherClient) callAPI(ctx context.Context, endpoint string, q models.Query) (json.RawMessage, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, endpoint, q)
	if err != nil {
		c.recordFailure(endpoint, start, err)
		return nil, fmt.Errorf("build request: %w", err)
	}

	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		err = redact(err)
		c.recordFailure(endpoint, start, err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%s request timeout: %w", endpoint, err)
		}
		return nil, fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordFailure(endpoint, start, err)
		return nil, fmt.Errorf("read %s response body: %w", endpoint, err)
	}

	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	if !json.Valid(body) {
		err := fmt.Errorf("%w: parse %s response (HTTP %d): not valid JSON", ErrInvalidResponse, endpoint, resp.StatusCode)
		observability.WeatherAPIErrorsTotal.WithLabelValues(endpoint, string(CategorizeError(err))).Inc()
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.LoggerFromContext(ctx).Warn("provider returned non-success status",
			zap.String("endpoint", endpoint),
			zap.Int("status_code", resp.StatusCode))
	}

	return json.RawMessage(body), nil
}

func (c *OpenWeatherClient) recordFailure(endpoint string, start time.Time, err error) {
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
	observability.WeatherAPIErrorsTotal.WithLabelValues(endpoint, string(CategorizeError(err))).Inc()
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, endpoint string, q models.Query) (*http.Request, error) {
	baseURL, err := url.Parse(c.baseURL + "/" + endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	if q.ByCoordinates() {
		params.Set("lat", q.Lat)
		params.Set("lon", q.Lon)
	} else {
		params.Set("q", q.City)
	}
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

// redact masks the API key in *url.Error messages, which embed the full request URL.
func redact(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	if u, perr := url.Parse(urlErr.URL); perr == nil {
		urlErr.URL = observability.RedactURL(u)
	}
	return err
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
