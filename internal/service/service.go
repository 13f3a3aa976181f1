// Package service orchestrates the resolution pipeline: raw input is
// classified, geocoded when needed, fetched from upstream through the shared
// cache, and optionally persisted with dedup guarantees.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"weatherhub/internal/cache"
	"weatherhub/internal/classify"
	"weatherhub/internal/client"
	"weatherhub/internal/models"
	"weatherhub/internal/observability"
	"weatherhub/internal/store"
	"weatherhub/internal/svcerr"
)

// Geocoder resolves place descriptions to coordinates. Implemented by
// geocode.Client; tests substitute a fake.
type Geocoder interface {
	Search(ctx context.Context, query string, limit int) ([]models.Candidate, error)
	Geocode(ctx context.Context, place string) (models.Candidate, error)
	ResolvePostal(ctx context.Context, code, country string) (models.Candidate, error)
	Reverse(ctx context.Context, lat, lon float64) (models.Candidate, error)
}

// Repository is the slice of the store the service needs for the save flows.
type Repository interface {
	FindOrCreateLocation(ctx context.Context, loc store.Location) (store.Location, bool, error)
	CreateWeatherRecord(ctx context.Context, record store.WeatherRecord) (store.WeatherRecord, error)
}

// WeatherService is the service-layer entry point for weather lookups.
type WeatherService struct {
	client   client.WeatherClient
	geocoder Geocoder
	repo     Repository

	currentCoalescer  *requestCoalescer[models.WeatherObservation]
	forecastCoalescer *requestCoalescer[models.Forecast]
	stampede          *stampedeTracker
}

// NewWeatherService creates a WeatherService. coalesceTimeout bounds how long
// a request waits on an identical in-flight upstream call; zero disables
// coalescing.
func NewWeatherService(weatherClient client.WeatherClient, geocoder Geocoder, repo Repository, coalesceTimeout time.Duration) *WeatherService {
	s := &WeatherService{
		client:   weatherClient,
		geocoder: geocoder,
		repo:     repo,
		stampede: newStampedeTracker(),
	}
	if coalesceTimeout > 0 {
		s.currentCoalescer = newRequestCoalescer[models.WeatherObservation](coalesceTimeout)
		s.forecastCoalescer = newRequestCoalescer[models.Forecast](coalesceTimeout)
	}
	return s
}

// loggerFromContext extracts a zap.Logger from request context if present.
// Returns nil if logger is not found or context is invalid.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// ResolveQuery turns raw user input into an upstream query. Coordinates pass
// through directly, postal codes go through the zip geocoder (country is
// required when the code carries none), and place names are forwarded as-is
// since the weather provider accepts them directly.
func (s *WeatherService) ResolveQuery(ctx context.Context, rawInput, country string) (client.Query, error) {
	input := classify.Classify(rawInput)
	switch input.Kind {
	case classify.KindCoordinates:
		lat, lon := input.Lat, input.Lon
		return client.Query{Lat: &lat, Lon: &lon}, nil
	case classify.KindPostalCode:
		candidate, err := s.geocoder.ResolvePostal(ctx, input.Code, country)
		if err != nil {
			return client.Query{}, err
		}
		return client.Query{Lat: &candidate.Lat, Lon: &candidate.Lon}, nil
	default:
		if strings.TrimSpace(input.Name) == "" {
			return client.Query{}, fmt.Errorf("%w: input is required", svcerr.ErrInvalidInput)
		}
		return client.Query{Place: input.Name}, nil
	}
}

// GetCurrent resolves rawInput and returns current weather with an advisory
// tip. When save is true the resolved location is upserted and the
// observation persisted; the store write is idempotent on retry.
func (s *WeatherService) GetCurrent(ctx context.Context, rawInput, country string, save bool) (models.CurrentWeather, error) {
	logger := loggerFromContext(ctx)
	start := time.Now()

	q, err := s.ResolveQuery(ctx, rawInput, country)
	if err != nil {
		return models.CurrentWeather{}, err
	}

	key := cache.Key("svc:current", q.Params())
	concurrent := s.stampede.RecordMiss(key)
	defer s.stampede.RecordDone(key)
	if concurrent > 1 && s.currentCoalescer == nil {
		observability.CoalescedRequestsTotal.Inc()
	}

	var obs models.WeatherObservation
	if s.currentCoalescer != nil {
		var coalesced bool
		obs, coalesced, err = s.currentCoalescer.GetOrDo(ctx, key, func() (models.WeatherObservation, error) {
			return s.client.FetchCurrent(ctx, q)
		})
		if coalesced {
			observability.CoalescedRequestsTotal.Inc()
		}
	} else {
		obs, err = s.client.FetchCurrent(ctx, q)
	}
	if err != nil {
		return models.CurrentWeather{}, fmt.Errorf("fetch current weather for %q: %w", rawInput, err)
	}

	current := models.CurrentWeather{
		WeatherObservation: obs,
		Tip:                Tip(obs.Condition),
	}

	if save {
		if _, err := s.persistObservation(ctx, obs, current.Tip); err != nil {
			return models.CurrentWeather{}, err
		}
	}

	if logger != nil {
		logger.Debug("current weather served",
			zap.String("input", rawInput),
			zap.Bool("saved", save),
			zap.Duration("duration", time.Since(start)))
	}
	return current, nil
}

// GetForecast resolves rawInput and returns the 5-day/3-hour forecast.
func (s *WeatherService) GetForecast(ctx context.Context, rawInput, country string) (models.Forecast, error) {
	return s.fetchForecast(ctx, rawInput, country, false)
}

// GetHourly resolves rawInput and returns the first 24 forecast entries.
func (s *WeatherService) GetHourly(ctx context.Context, rawInput, country string) (models.Forecast, error) {
	return s.fetchForecast(ctx, rawInput, country, true)
}

func (s *WeatherService) fetchForecast(ctx context.Context, rawInput, country string, hourly bool) (models.Forecast, error) {
	q, err := s.ResolveQuery(ctx, rawInput, country)
	if err != nil {
		return models.Forecast{}, err
	}

	key := cache.Key("svc:forecast", q.Params())
	s.stampede.RecordMiss(key)
	defer s.stampede.RecordDone(key)

	fetch := func() (models.Forecast, error) {
		return s.client.FetchForecast(ctx, q)
	}

	var fc models.Forecast
	if s.forecastCoalescer != nil {
		var coalesced bool
		fc, coalesced, err = s.forecastCoalescer.GetOrDo(ctx, key, fetch)
		if coalesced {
			observability.CoalescedRequestsTotal.Inc()
		}
	} else {
		fc, err = fetch()
	}
	if err != nil {
		return models.Forecast{}, fmt.Errorf("fetch forecast for %q: %w", rawInput, err)
	}

	if hourly && len(fc.Entries) > 24 {
		fc.Entries = fc.Entries[:24]
	}
	return fc, nil
}

// SearchLocations geocodes a free-text query and persists every candidate
// through the dedup-aware upsert, returning the stored rows. This is the
// search/save flow; plain Geocode has no persistence side effect.
func (s *WeatherService) SearchLocations(ctx context.Context, query string, limit int) ([]store.Location, error) {
	logger := loggerFromContext(ctx)

	candidates, err := s.geocoder.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	locations := make([]store.Location, 0, len(candidates))
	for _, c := range candidates {
		loc, created, err := s.repo.FindOrCreateLocation(ctx, candidateToLocation(c))
		if err != nil {
			return nil, err
		}
		if created && logger != nil {
			logger.Debug("location created",
				zap.String("city", loc.City),
				zap.Float64("lat", loc.Latitude),
				zap.Float64("lon", loc.Longitude))
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

// ReverseLookup resolves coordinates to the nearest named place.
func (s *WeatherService) ReverseLookup(ctx context.Context, lat, lon float64) (models.Candidate, error) {
	return s.geocoder.Reverse(ctx, lat, lon)
}

// persistObservation upserts the observation's location and stores the
// observation as a weather record. Observations fetched by bare coordinates
// can miss the place name; those are reverse geocoded first.
func (s *WeatherService) persistObservation(ctx context.Context, obs models.WeatherObservation, tip string) (store.WeatherRecord, error) {
	city, country := obs.City, obs.Country
	if city == "" {
		candidate, err := s.geocoder.Reverse(ctx, obs.Latitude, obs.Longitude)
		if err != nil {
			return store.WeatherRecord{}, err
		}
		city, country = candidate.Name, candidate.Country
	}

	loc, _, err := s.repo.FindOrCreateLocation(ctx, store.Location{
		City:      city,
		Country:   country,
		Latitude:  obs.Latitude,
		Longitude: obs.Longitude,
	})
	if err != nil {
		return store.WeatherRecord{}, err
	}

	return s.repo.CreateWeatherRecord(ctx, store.WeatherRecord{
		LocationID:        loc.ID,
		WeatherDate:       obs.WeatherDate,
		TempC:             obs.TempC,
		TempF:             obs.TempF,
		Humidity:          obs.Humidity,
		WindSpeed:         obs.WindSpeed,
		WindDeg:           obs.WindDeg,
		WindGust:          obs.WindGust,
		Condition:         obs.Condition,
		ConditionDesc:     obs.ConditionDesc,
		Icon:              obs.Icon,
		Pressure:          obs.Pressure,
		Visibility:        obs.Visibility,
		Precipitation:     obs.Precipitation,
		PrecipitationType: obs.PrecipitationType,
		UVI:               obs.UVI,
		Sunrise:           obs.Sunrise,
		Sunset:            obs.Sunset,
		APISource:         obs.APISource,
		RawResponse:       string(obs.Raw),
		Tip:               tip,
	})
}

func candidateToLocation(c models.Candidate) store.Location {
	loc := store.Location{
		City:      c.Name,
		State:     c.State,
		Country:   c.Country,
		Latitude:  c.Lat,
		Longitude: c.Lon,
	}
	if c.PostalCode != "" {
		postal := c.PostalCode
		loc.PostalCode = &postal
	}
	return loc
}
