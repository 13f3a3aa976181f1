package store

import "time"

// Location is a geocoded place. Two uniqueness constraints guard dedup: the
// coordinate pair and the (city, state, country) triple. State uses the empty
// string for "no state" so the triple index stays meaningful under SQLite's
// distinct-NULL semantics.
type Location struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	Label      *string `json:"label,omitempty"`
	City       string  `gorm:"not null;uniqueIndex:idx_locations_city_state_country" json:"city"`
	State      string  `gorm:"uniqueIndex:idx_locations_city_state_country" json:"state,omitempty"`
	Country    string  `gorm:"not null;uniqueIndex:idx_locations_city_state_country" json:"country"`
	PostalCode *string `json:"postalCode,omitempty"`
	Latitude   float64 `gorm:"not null;uniqueIndex:idx_locations_lat_lon" json:"latitude"`
	Longitude  float64 `gorm:"not null;uniqueIndex:idx_locations_lat_lon" json:"longitude"`
	ExternalID *string `json:"externalId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// WeatherRecord is a single persisted observation or forecast point owned by
// a Location. Optional meteorological fields are pointers; nil means the
// upstream payload did not carry them.
type WeatherRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	LocationID  uint      `gorm:"not null;index:idx_weather_records_location_date" json:"locationId"`
	WeatherDate time.Time `gorm:"not null;index:idx_weather_records_location_date" json:"weatherDate"`

	TempC float64 `json:"tempC"`
	TempF float64 `json:"tempF"`

	Humidity  *int     `json:"humidity,omitempty"`
	WindSpeed *float64 `json:"windSpeed,omitempty"`
	WindDeg   *int     `json:"windDeg,omitempty"`
	WindGust  *float64 `json:"windGust,omitempty"`

	Condition     string `json:"condition"`
	ConditionDesc string `json:"conditionDesc"`
	Icon          string `json:"icon"`

	Pressure   *int `json:"pressure,omitempty"`
	Visibility *int `json:"visibility,omitempty"`

	Precipitation     float64  `json:"precipitation"`
	PrecipitationType *string  `json:"precipitationType,omitempty"`
	UVI               *float64 `json:"uvi,omitempty"`

	Sunrise *time.Time `json:"sunrise,omitempty"`
	Sunset  *time.Time `json:"sunset,omitempty"`

	APISource   string `json:"apiSource"`
	RawResponse string `json:"-"`
	Tip         string `json:"tip,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
