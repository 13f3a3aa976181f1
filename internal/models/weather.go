package models

import (
	"encoding/json"
	"time"
)

// WeatherObservation is the canonical, unit-consistent representation of an
// upstream weather payload. Both temperature units are populated at the
// normalization boundary (rounded to 1 decimal) and never re-derived
// downstream. Optional upstream fields are pointers, nil when absent.
type WeatherObservation struct {
	WeatherDate time.Time `json:"weatherDate"`

	TempC float64 `json:"tempC"`
	TempF float64 `json:"tempF"`

	Humidity  *int     `json:"humidity,omitempty"`
	WindSpeed *float64 `json:"windSpeed,omitempty"`
	WindDeg   *int     `json:"windDeg,omitempty"`
	WindGust  *float64 `json:"windGust,omitempty"`

	Condition     string `json:"condition"`
	ConditionDesc string `json:"conditionDesc"`
	Icon          string `json:"icon"`
	IconURL       string `json:"iconUrl"`

	Pressure   *int `json:"pressure,omitempty"`
	Visibility *int `json:"visibility,omitempty"`

	// Precipitation is 0 when the upstream payload carried no rain/snow volume;
	// PrecipitationType stays nil in that case to distinguish "no data" from
	// "zero recorded".
	Precipitation     float64  `json:"precipitation"`
	PrecipitationType *string  `json:"precipitationType,omitempty"`
	UVI               *float64 `json:"uvi,omitempty"`

	// Sunrise and Sunset are present only in current-weather payloads.
	Sunrise *time.Time `json:"sunrise,omitempty"`
	Sunset  *time.Time `json:"sunset,omitempty"`

	City      string  `json:"city,omitempty"`
	Country   string  `json:"country,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	APISource string `json:"apiSource"`

	// Raw preserves the upstream payload this observation was normalized
	// from, for persistence alongside the canonical fields.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Candidate is a single geocoding result.
type Candidate struct {
	Name       string  `json:"name"`
	State      string  `json:"state,omitempty"`
	Country    string  `json:"country"`
	PostalCode string  `json:"postalCode,omitempty"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
}

// CurrentWeather is the summary served by the current-weather endpoint:
// the observation plus a derived advisory tip.
type CurrentWeather struct {
	WeatherObservation
	Tip string `json:"tip"`
}

// Forecast is a normalized forecast response: the resolved location and the
// ordered sequence of forecast points (3-hour granularity, up to 5 days).
type Forecast struct {
	City      string               `json:"city"`
	Country   string               `json:"country"`
	Latitude  float64              `json:"latitude"`
	Longitude float64              `json:"longitude"`
	Entries   []WeatherObservation `json:"entries"`
}
