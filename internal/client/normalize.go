package client

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"weatherhub/internal/models"
	"weatherhub/internal/svcerr"
)

const apiSource = "openweathermap"

// currentPayload mirrors the current-weather endpoint response. Optional
// substructures are pointers so a missing key is distinguishable from zero.
type currentPayload struct {
	Coord *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Main *struct {
		Temp     float64 `json:"temp"`
		Pressure *int    `json:"pressure"`
		Humidity *int    `json:"humidity"`
	} `json:"main"`
	Visibility *int `json:"visibility"`
	Wind       *struct {
		Speed *float64 `json:"speed"`
		Deg   *int     `json:"deg"`
		Gust  *float64 `json:"gust"`
	} `json:"wind"`
	Rain map[string]float64 `json:"rain"`
	Snow map[string]float64 `json:"snow"`
	Dt   int64              `json:"dt"`
	Sys  *struct {
		Country string `json:"country"`
		Sunrise *int64 `json:"sunrise"`
		Sunset  *int64 `json:"sunset"`
	} `json:"sys"`
	Name string `json:"name"`
}

// forecastPayload mirrors the 5-day forecast endpoint response.
type forecastPayload struct {
	List []forecastItem `json:"list"`
	City *struct {
		Name    string `json:"name"`
		Country string `json:"country"`
		Coord   struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"coord"`
	} `json:"city"`
}

type forecastItem struct {
	Dt   int64 `json:"dt"`
	Main *struct {
		Temp     float64 `json:"temp"`
		Pressure *int    `json:"pressure"`
		Humidity *int    `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Wind *struct {
		Speed *float64 `json:"speed"`
		Deg   *int     `json:"deg"`
		Gust  *float64 `json:"gust"`
	} `json:"wind"`
	Visibility *int               `json:"visibility"`
	Rain       map[string]float64 `json:"rain"`
	Snow       map[string]float64 `json:"snow"`
}

// normalizeCurrent converts a current-weather payload into the canonical
// observation. A payload missing its main block or carrying an empty weather
// array is treated as an unreliable upstream, not a caller error.
func normalizeCurrent(body []byte, iconBase string) (models.WeatherObservation, error) {
	var p currentPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return models.WeatherObservation{}, fmt.Errorf("%w: parse weather response: %v", svcerr.ErrUpstreamUnavailable, err)
	}
	if p.Main == nil || len(p.Weather) == 0 {
		return models.WeatherObservation{}, fmt.Errorf("%w: weather response missing required fields", svcerr.ErrUpstreamUnavailable)
	}

	w := p.Weather[0]
	obs := models.WeatherObservation{
		WeatherDate:   time.Unix(p.Dt, 0).UTC(),
		TempC:         round1(p.Main.Temp),
		TempF:         CToF(p.Main.Temp),
		Humidity:      p.Main.Humidity,
		Condition:     w.Main,
		ConditionDesc: w.Description,
		Icon:          w.Icon,
		IconURL:       IconURL(iconBase, w.Icon),
		Pressure:      p.Main.Pressure,
		Visibility:    p.Visibility,
		City:          p.Name,
		APISource:     apiSource,
		Raw:           json.RawMessage(body),
	}
	if p.Wind != nil {
		obs.WindSpeed = p.Wind.Speed
		obs.WindDeg = p.Wind.Deg
		obs.WindGust = p.Wind.Gust
	}
	if p.Coord != nil {
		obs.Latitude = p.Coord.Lat
		obs.Longitude = p.Coord.Lon
	}
	if p.Sys != nil {
		obs.Country = p.Sys.Country
		if p.Sys.Sunrise != nil {
			t := time.Unix(*p.Sys.Sunrise, 0).UTC()
			obs.Sunrise = &t
		}
		if p.Sys.Sunset != nil {
			t := time.Unix(*p.Sys.Sunset, 0).UTC()
			obs.Sunset = &t
		}
	}
	obs.Precipitation, obs.PrecipitationType = precipitation(p.Rain, p.Snow)
	return obs, nil
}

// normalizeForecast converts a forecast payload into the canonical sequence.
// An empty list means the location resolved to nothing: NotFound.
func normalizeForecast(body []byte, iconBase string) (models.Forecast, error) {
	var p forecastPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return models.Forecast{}, fmt.Errorf("%w: parse forecast response: %v", svcerr.ErrUpstreamUnavailable, err)
	}
	if len(p.List) == 0 {
		return models.Forecast{}, fmt.Errorf("%w: forecast returned no entries", svcerr.ErrNotFound)
	}

	fc := models.Forecast{Entries: make([]models.WeatherObservation, 0, len(p.List))}
	if p.City != nil {
		fc.City = p.City.Name
		fc.Country = p.City.Country
		fc.Latitude = p.City.Coord.Lat
		fc.Longitude = p.City.Coord.Lon
	}

	for _, item := range p.List {
		if item.Main == nil || len(item.Weather) == 0 {
			return models.Forecast{}, fmt.Errorf("%w: forecast entry missing required fields", svcerr.ErrUpstreamUnavailable)
		}
		w := item.Weather[0]
		obs := models.WeatherObservation{
			WeatherDate:   time.Unix(item.Dt, 0).UTC(),
			TempC:         round1(item.Main.Temp),
			TempF:         CToF(item.Main.Temp),
			Humidity:      item.Main.Humidity,
			Condition:     w.Main,
			ConditionDesc: w.Description,
			Icon:          w.Icon,
			IconURL:       IconURL(iconBase, w.Icon),
			Pressure:      item.Main.Pressure,
			Visibility:    item.Visibility,
			City:          fc.City,
			Country:       fc.Country,
			Latitude:      fc.Latitude,
			Longitude:     fc.Longitude,
			APISource:     apiSource,
		}
		if item.Wind != nil {
			obs.WindSpeed = item.Wind.Speed
			obs.WindDeg = item.Wind.Deg
			obs.WindGust = item.Wind.Gust
		}
		obs.Precipitation, obs.PrecipitationType = precipitation(item.Rain, item.Snow)
		fc.Entries = append(fc.Entries, obs)
	}
	return fc, nil
}

// precipitation extracts the rain or snow volume for the payload window.
// Absent blocks mean no precipitation data: volume 0 with type unset, which
// is distinct from an explicit zero recording.
func precipitation(rain, snow map[string]float64) (float64, *string) {
	if v, ok := volume(rain); ok {
		t := "rain"
		return v, &t
	}
	if v, ok := volume(snow); ok {
		t := "snow"
		return v, &t
	}
	return 0, nil
}

// volume prefers the 1-hour window, falling back to the 3-hour window used by
// forecast entries.
func volume(m map[string]float64) (float64, bool) {
	if m == nil {
		return 0, false
	}
	if v, ok := m["1h"]; ok {
		return v, true
	}
	if v, ok := m["3h"]; ok {
		return v, true
	}
	return 0, false
}

// CToF converts Celsius to Fahrenheit, rounded to 1 decimal.
func CToF(c float64) float64 {
	return round1(c*9/5 + 32)
}

// FToC converts Fahrenheit to Celsius, rounded to 1 decimal.
func FToC(f float64) float64 {
	return round1((f - 32) * 5 / 9)
}

// IconURL derives the icon URL by template; icons are never fetched.
func IconURL(base, code string) string {
	if code == "" {
		return ""
	}
	return base + "/" + code + ".png"
}

// round1 rounds to 1 decimal place. Applied once at the normalization
// boundary for both temperature units; downstream code never re-rounds.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
