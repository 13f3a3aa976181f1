// Package client fetches current and forecast weather from the OpenWeather
// data endpoints and normalizes the heterogeneous payloads into canonical
// observations. Responses are cached in the shared response cache with
// per-class TTLs (current 10m, forecast 30m by default).
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"weatherhub/internal/cache"
	"weatherhub/internal/models"
	"weatherhub/internal/observability"
	"weatherhub/internal/svcerr"
)

// WeatherClient is implemented by the OpenWeather client. The service layer
// depends on this interface so tests can substitute a fake.
type WeatherClient interface {
	FetchCurrent(ctx context.Context, q Query) (models.WeatherObservation, error)
	FetchForecast(ctx context.Context, q Query) (models.Forecast, error)
	FetchHourly(ctx context.Context, q Query) (models.Forecast, error)
}

// Query selects the target location for a fetch. Exactly one of Place or the
// Lat/Lon pair must be set; anything else is InvalidInput.
type Query struct {
	Place string
	Lat   *float64
	Lon   *float64
}

// Validate checks the exactly-one rule, including the half-set coordinate case.
func (q Query) Validate() error {
	hasPlace := q.Place != ""
	hasLat := q.Lat != nil
	hasLon := q.Lon != nil
	if hasLat != hasLon {
		return fmt.Errorf("%w: lat and lon must be provided together", svcerr.ErrInvalidInput)
	}
	hasCoords := hasLat && hasLon
	if hasPlace == hasCoords {
		return fmt.Errorf("%w: provide either a place name or lat/lon coordinates", svcerr.ErrInvalidInput)
	}
	return nil
}

// Params returns the normalized upstream query parameters for this target.
// Also used by the service layer to build coalescing keys.
func (q Query) Params() map[string]string {
	if q.Place != "" {
		return map[string]string{"q": q.Place, "units": "metric"}
	}
	return map[string]string{
		"lat":   strconv.FormatFloat(*q.Lat, 'f', -1, 64),
		"lon":   strconv.FormatFloat(*q.Lon, 'f', -1, 64),
		"units": "metric",
	}
}

// Config holds the upstream endpoints, icon template base, and cache TTLs.
type Config struct {
	APIKey      string
	CurrentURL  string
	ForecastURL string
	IconBaseURL string
	Timeout     time.Duration
	CurrentTTL  time.Duration
	ForecastTTL time.Duration
}

// OpenWeatherClient implements WeatherClient against the OpenWeather API.
type OpenWeatherClient struct {
	cfg        Config
	httpClient *http.Client
	cache      cache.Cache
	breaker    *gobreaker.CircuitBreaker
}

// NewOpenWeatherClient creates a weather client. responseCache may be nil,
// which disables caching (used by tests).
func NewOpenWeatherClient(cfg Config, responseCache cache.Cache) (*OpenWeatherClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: weather API key is required", svcerr.ErrInvalidInput)
	}
	if len(cfg.APIKey) < 10 {
		return nil, fmt.Errorf("%w: weather API key appears invalid (too short)", svcerr.ErrInvalidInput)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.CurrentTTL <= 0 {
		cfg.CurrentTTL = 10 * time.Minute
	}
	if cfg.ForecastTTL <= 0 {
		cfg.ForecastTTL = 30 * time.Minute
	}
	if cfg.IconBaseURL == "" {
		cfg.IconBaseURL = "https://openweathermap.org/img/w"
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &OpenWeatherClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      responseCache,
		breaker:    breaker,
	}, nil
}

// FetchCurrent returns the normalized current observation for the target.
func (c *OpenWeatherClient) FetchCurrent(ctx context.Context, q Query) (models.WeatherObservation, error) {
	if err := q.Validate(); err != nil {
		return models.WeatherObservation{}, err
	}

	key := cache.Key("current", q.Params())
	if c.cache != nil {
		if raw, ok, _ := c.cache.Get(ctx, key); ok {
			var obs models.WeatherObservation
			if err := json.Unmarshal(raw, &obs); err == nil {
				observability.CacheHitsTotal.WithLabelValues("current").Inc()
				return obs, nil
			}
		} else {
			observability.CacheMissesTotal.WithLabelValues("current").Inc()
		}
	}

	body, err := c.call(ctx, "current", c.cfg.CurrentURL, q)
	if err != nil {
		return models.WeatherObservation{}, err
	}

	obs, err := normalizeCurrent(body, c.cfg.IconBaseURL)
	if err != nil {
		return models.WeatherObservation{}, err
	}

	if c.cache != nil {
		if raw, err := json.Marshal(obs); err == nil {
			_ = c.cache.Set(ctx, key, raw, c.cfg.CurrentTTL)
		}
	}
	return obs, nil
}

// FetchForecast returns the normalized 5-day/3-hour forecast, typically 40
// entries ordered by time.
func (c *OpenWeatherClient) FetchForecast(ctx context.Context, q Query) (models.Forecast, error) {
	if err := q.Validate(); err != nil {
		return models.Forecast{}, err
	}

	key := cache.Key("forecast", q.Params())
	if c.cache != nil {
		if raw, ok, _ := c.cache.Get(ctx, key); ok {
			var fc models.Forecast
			if err := json.Unmarshal(raw, &fc); err == nil {
				observability.CacheHitsTotal.WithLabelValues("forecast").Inc()
				return fc, nil
			}
		} else {
			observability.CacheMissesTotal.WithLabelValues("forecast").Inc()
		}
	}

	body, err := c.call(ctx, "forecast", c.cfg.ForecastURL, q)
	if err != nil {
		return models.Forecast{}, err
	}

	fc, err := normalizeForecast(body, c.cfg.IconBaseURL)
	if err != nil {
		return models.Forecast{}, err
	}

	if c.cache != nil {
		if raw, err := json.Marshal(fc); err == nil {
			_ = c.cache.Set(ctx, key, raw, c.cfg.ForecastTTL)
		}
	}
	return fc, nil
}

// FetchHourly returns the first 24 entries of the forecast sequence. It
// shares the forecast cache entry, so an hourly call after a forecast call
// within the TTL makes no upstream request.
func (c *OpenWeatherClient) FetchHourly(ctx context.Context, q Query) (models.Forecast, error) {
	fc, err := c.FetchForecast(ctx, q)
	if err != nil {
		return models.Forecast{}, err
	}
	if len(fc.Entries) > 24 {
		fc.Entries = fc.Entries[:24]
	}
	return fc, nil
}

// call issues one upstream GET through the circuit breaker.
func (c *OpenWeatherClient) call(ctx context.Context, endpoint, baseURL string, q Query) ([]byte, error) {
	start := time.Now()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doRequest(ctx, baseURL, q)
	})

	duration := time.Since(start).Seconds()
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.UpstreamDurationSeconds.WithLabelValues(endpoint).Observe(duration)
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("%w: weather circuit open", svcerr.ErrUpstreamUnavailable)
		}
		return nil, err
	}
	observability.UpstreamCallsTotal.WithLabelValues(endpoint, "success").Inc()
	observability.UpstreamDurationSeconds.WithLabelValues(endpoint).Observe(duration)
	return result.([]byte), nil
}

func (c *OpenWeatherClient) doRequest(ctx context.Context, baseURL string, q Query) ([]byte, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid weather API URL: %v", svcerr.ErrUpstreamUnavailable, err)
	}

	params := url.Values{}
	for k, v := range q.Params() {
		params.Set(k, v)
	}
	params.Set("appid", c.cfg.APIKey)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", svcerr.ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: weather request failed: %v", svcerr.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: location not found upstream", svcerr.ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: weather API rejected credentials", svcerr.ErrUpstreamUnavailable)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: weather API HTTP %d", svcerr.ErrUpstreamUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read weather response: %v", svcerr.ErrUpstreamUnavailable, err)
	}
	return body, nil
}
