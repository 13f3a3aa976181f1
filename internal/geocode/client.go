// Package geocode resolves free-text place names, postal codes, and raw
// coordinates against the OpenWeather geocoding endpoints. Results are cached
// in the shared response cache; upstream failures are translated into the
// service error taxonomy and raw upstream bodies never leak to callers.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"weatherhub/internal/cache"
	"weatherhub/internal/models"
	"weatherhub/internal/observability"
	"weatherhub/internal/svcerr"
)

const (
	// DefaultLimit is the candidate count when the caller does not specify one.
	DefaultLimit = 5
	// MaxLimit caps the candidate count regardless of what the caller asks for.
	MaxLimit = 10
)

// Config holds the upstream endpoints and cache TTLs for the geocoder.
type Config struct {
	APIKey     string
	DirectURL  string
	ZipURL     string
	ReverseURL string
	Timeout    time.Duration

	// DirectTTL covers city and postal lookups; those rarely change, so a long
	// horizon is fine. ReverseTTL covers current-location lookups.
	DirectTTL  time.Duration
	ReverseTTL time.Duration
}

// Client is a cache-aware OpenWeather geocoding client.
type Client struct {
	cfg        Config
	httpClient *http.Client
	cache      cache.Cache
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a geocoding client. responseCache may be nil, which
// disables caching (used by tests).
func NewClient(cfg Config, responseCache cache.Cache) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: geocoding API key is required", svcerr.ErrInvalidInput)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.DirectTTL <= 0 {
		cfg.DirectTTL = 24 * time.Hour
	}
	if cfg.ReverseTTL <= 0 {
		cfg.ReverseTTL = 10 * time.Minute
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "geocoding",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      responseCache,
		breaker:    breaker,
	}, nil
}

// upstreamPlace is the shape shared by the direct, zip, and reverse endpoint
// responses (the zip endpoint returns a single object, the others arrays).
type upstreamPlace struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
	State   string  `json:"state"`
	Zip     string  `json:"zip"`
}

// Search returns up to limit candidates for a free-text query. limit is
// clamped to [1, MaxLimit]; 0 means DefaultLimit. Empty upstream result maps
// to ErrNotFound.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]models.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", svcerr.ErrInvalidInput)
	}
	limit = clampLimit(limit)

	params := map[string]string{"q": query, "limit": strconv.Itoa(limit)}
	key := cache.Key("geo:direct", params)
	if cached, ok := c.cachedCandidates(ctx, key); ok {
		return cached, nil
	}

	body, err := c.call(ctx, "geo_direct", c.cfg.DirectURL, url.Values{
		"q":     {query},
		"limit": {strconv.Itoa(limit)},
		"appid": {c.cfg.APIKey},
	})
	if err != nil {
		return nil, err
	}

	var places []upstreamPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, fmt.Errorf("%w: parse geocoding response: %v", svcerr.ErrUpstreamUnavailable, err)
	}
	if len(places) == 0 {
		return nil, fmt.Errorf("%w: no locations match %q", svcerr.ErrNotFound, query)
	}

	candidates := make([]models.Candidate, 0, len(places))
	for _, p := range places {
		candidates = append(candidates, toCandidate(p))
	}
	c.storeCandidates(ctx, key, candidates, c.cfg.DirectTTL)
	return candidates, nil
}

// Geocode resolves a place name to its best (first) candidate.
func (c *Client) Geocode(ctx context.Context, place string) (models.Candidate, error) {
	candidates, err := c.Search(ctx, place, 1)
	if err != nil {
		return models.Candidate{}, err
	}
	return candidates[0], nil
}

// ResolvePostal resolves a postal code via the zip endpoint. The country code
// is required unless the code already carries one ("12345,US"); a bare code
// with no country fails closed with ErrInvalidInput rather than silently
// assuming a default.
func (c *Client) ResolvePostal(ctx context.Context, code, country string) (models.Candidate, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return models.Candidate{}, fmt.Errorf("%w: postal code is required", svcerr.ErrInvalidInput)
	}
	zip := code
	if !strings.Contains(code, ",") {
		country = strings.TrimSpace(country)
		if country == "" {
			return models.Candidate{}, fmt.Errorf("%w: postal code %q needs an explicit country code", svcerr.ErrInvalidInput, code)
		}
		zip = code + "," + strings.ToUpper(country)
	}

	key := cache.Key("geo:zip", map[string]string{"zip": zip})
	if cached, ok := c.cachedCandidate(ctx, key); ok {
		return cached, nil
	}

	body, err := c.call(ctx, "geo_zip", c.cfg.ZipURL, url.Values{
		"zip":   {zip},
		"appid": {c.cfg.APIKey},
	})
	if err != nil {
		return models.Candidate{}, err
	}

	var place upstreamPlace
	if err := json.Unmarshal(body, &place); err != nil {
		return models.Candidate{}, fmt.Errorf("%w: parse zip response: %v", svcerr.ErrUpstreamUnavailable, err)
	}
	if place.Lat == 0 && place.Lon == 0 && place.Name == "" {
		return models.Candidate{}, fmt.Errorf("%w: no location for postal code %q", svcerr.ErrNotFound, code)
	}

	candidate := toCandidate(place)
	if candidate.PostalCode == "" {
		candidate.PostalCode = code
	}
	c.storeCandidate(ctx, key, candidate, c.cfg.DirectTTL)
	return candidate, nil
}

// Reverse resolves coordinates to the nearest named place.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (models.Candidate, error) {
	params := map[string]string{
		"lat": strconv.FormatFloat(lat, 'f', -1, 64),
		"lon": strconv.FormatFloat(lon, 'f', -1, 64),
	}
	key := cache.Key("geo:reverse", params)
	if cached, ok := c.cachedCandidate(ctx, key); ok {
		return cached, nil
	}

	body, err := c.call(ctx, "geo_reverse", c.cfg.ReverseURL, url.Values{
		"lat":   {params["lat"]},
		"lon":   {params["lon"]},
		"limit": {"1"},
		"appid": {c.cfg.APIKey},
	})
	if err != nil {
		return models.Candidate{}, err
	}

	var places []upstreamPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return models.Candidate{}, fmt.Errorf("%w: parse reverse response: %v", svcerr.ErrUpstreamUnavailable, err)
	}
	if len(places) == 0 {
		return models.Candidate{}, fmt.Errorf("%w: no place at (%v, %v)", svcerr.ErrNotFound, lat, lon)
	}

	candidate := toCandidate(places[0])
	c.storeCandidate(ctx, key, candidate, c.cfg.ReverseTTL)
	return candidate, nil
}

// call issues one upstream GET through the circuit breaker and returns the
// response body. 404 maps to ErrNotFound; other non-2xx, transport failures,
// and an open breaker map to ErrUpstreamUnavailable.
func (c *Client) call(ctx context.Context, endpoint, baseURL string, params url.Values) ([]byte, error) {
	start := time.Now()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doRequest(ctx, baseURL, params)
	})

	duration := time.Since(start).Seconds()
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.UpstreamDurationSeconds.WithLabelValues(endpoint).Observe(duration)
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("%w: geocoding circuit open", svcerr.ErrUpstreamUnavailable)
		}
		return nil, err
	}
	observability.UpstreamCallsTotal.WithLabelValues(endpoint, "success").Inc()
	observability.UpstreamDurationSeconds.WithLabelValues(endpoint).Observe(duration)
	return result.([]byte), nil
}

func (c *Client) doRequest(ctx context.Context, baseURL string, params url.Values) ([]byte, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid geocoding URL: %v", svcerr.ErrUpstreamUnavailable, err)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", svcerr.ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: geocoding request failed: %v", svcerr.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: geocoding returned 404", svcerr.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: geocoding HTTP %d", svcerr.ErrUpstreamUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read geocoding response: %v", svcerr.ErrUpstreamUnavailable, err)
	}
	return body, nil
}

func (c *Client) cachedCandidates(ctx context.Context, key string) ([]models.Candidate, bool) {
	if c.cache == nil {
		return nil, false
	}
	raw, ok, err := c.cache.Get(ctx, key)
	if err != nil || !ok {
		if !ok {
			observability.CacheMissesTotal.WithLabelValues("geocode").Inc()
		}
		return nil, false
	}
	var candidates []models.Candidate
	if err := json.Unmarshal(raw, &candidates); err != nil {
		return nil, false
	}
	observability.CacheHitsTotal.WithLabelValues("geocode").Inc()
	return candidates, true
}

func (c *Client) cachedCandidate(ctx context.Context, key string) (models.Candidate, bool) {
	if c.cache == nil {
		return models.Candidate{}, false
	}
	raw, ok, err := c.cache.Get(ctx, key)
	if err != nil || !ok {
		if !ok {
			observability.CacheMissesTotal.WithLabelValues("geocode").Inc()
		}
		return models.Candidate{}, false
	}
	var candidate models.Candidate
	if err := json.Unmarshal(raw, &candidate); err != nil {
		return models.Candidate{}, false
	}
	observability.CacheHitsTotal.WithLabelValues("geocode").Inc()
	return candidate, true
}

func (c *Client) storeCandidates(ctx context.Context, key string, candidates []models.Candidate, ttl time.Duration) {
	if c.cache == nil {
		return
	}
	if raw, err := json.Marshal(candidates); err == nil {
		_ = c.cache.Set(ctx, key, raw, ttl)
	}
}

func (c *Client) storeCandidate(ctx context.Context, key string, candidate models.Candidate, ttl time.Duration) {
	if c.cache == nil {
		return
	}
	if raw, err := json.Marshal(candidate); err == nil {
		_ = c.cache.Set(ctx, key, raw, ttl)
	}
}

func toCandidate(p upstreamPlace) models.Candidate {
	return models.Candidate{
		Name:       p.Name,
		State:      p.State,
		Country:    p.Country,
		PostalCode: p.Zip,
		Lat:        p.Lat,
		Lon:        p.Lon,
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
