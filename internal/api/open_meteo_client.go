package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pm25cast/internal/metrics"
	"pm25cast/internal/models"

	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://air-quality-api.open-meteo.com/v1/air-quality"

// OpenMeteoClient is a client for the Open-Meteo Air Quality API
type OpenMeteoClient struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
}

type AirQualityParams struct {
	Latitude     float64
	Longitude    float64
	HourlyFields []string
	Timezone     string
	PastDays     int // how many days in the past you want to get
	ForecastDays int // how many days in the future, 0 for observations only
}

type Option func(*OpenMeteoClient)

func WithBaseURL(u string) Option {
	return func(c *OpenMeteoClient) {
		if u != "" {
			c.baseURL = u
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *OpenMeteoClient) { c.client = hc }
}

// WithRateLimit caps requests per second; rps <= 0 disables the limiter.
func WithRateLimit(rps float64) Option {
	return func(c *OpenMeteoClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewOpenMeteoClient creates a new Open-Meteo API client
func NewOpenMeteoClient(opts ...Option) *OpenMeteoClient {
	c := &OpenMeteoClient{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetAirQuality fetches hourly air quality data for the given coordinates
func (c *OpenMeteoClient) GetAirQuality(ctx context.Context, params AirQualityParams) (aq *models.AirQuality, err error) {
	defer func() { metrics.RecordUpstream(err) }()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BuildURL(params), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch air quality: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var out models.AirQuality
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &out, nil
}

// Builds URL for OpenMeteoClient request
func (c *OpenMeteoClient) BuildURL(params AirQualityParams) string {
	if params.Timezone == "" {
		params.Timezone = "auto"
	}
	if len(params.HourlyFields) == 0 {
		params.HourlyFields = []string{"pm2_5"}
	}

	url := fmt.Sprintf("%s?latitude=%.4f&longitude=%.4f&timezone=%s",
		c.baseURL, params.Latitude, params.Longitude, params.Timezone)

	if params.PastDays > 0 {
		url += fmt.Sprintf("&past_days=%d", params.PastDays)
	}

	if params.ForecastDays >= 0 {
		url += fmt.Sprintf("&forecast_days=%d", params.ForecastDays)
	}

	url += "&hourly=" + strings.Join(params.HourlyFields, ",")

	return url
}

// GetHourlyPM25 returns observed hourly pm2_5 for the last pastDays days.
// Times are requested in GMT since measurements are stored as UTC.
func (c *OpenMeteoClient) GetHourlyPM25(ctx context.Context, lat, long float64, pastDays int) (*models.AirQuality, error) {
	if pastDays <= 0 {
		return nil, fmt.Errorf("GetHourlyPM25: pastDays must be positive, got %d", pastDays)
	}

	return c.GetAirQuality(ctx, AirQualityParams{
		Latitude:     lat,
		Longitude:    long,
		HourlyFields: []string{"pm2_5"},
		Timezone:     "GMT",
		PastDays:     pastDays,
		ForecastDays: 0,
	})
}
