package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"weatherhub/internal/observability"
	"weatherhub/internal/svcerr"
)

// Record invariants. Past data is bounded to guard against garbage
// timestamps; the future bound exists because forecasts beyond a week are
// unreliable.
const (
	MinTempC      = -100.0
	MaxTempC      = 100.0
	MaxRecordAge  = 365 * 24 * time.Hour
	MaxRecordLead = 7 * 24 * time.Hour
)

// WeatherRecordPatch carries a partial update: only non-nil fields mutate the
// record. The merged state is re-validated before commit.
type WeatherRecordPatch struct {
	WeatherDate       *time.Time `json:"weatherDate,omitempty"`
	TempC             *float64   `json:"tempC,omitempty"`
	TempF             *float64   `json:"tempF,omitempty"`
	Humidity          *int       `json:"humidity,omitempty"`
	WindSpeed         *float64   `json:"windSpeed,omitempty"`
	WindDeg           *int       `json:"windDeg,omitempty"`
	WindGust          *float64   `json:"windGust,omitempty"`
	Condition         *string    `json:"condition,omitempty"`
	ConditionDesc     *string    `json:"conditionDesc,omitempty"`
	Icon              *string    `json:"icon,omitempty"`
	Pressure          *int       `json:"pressure,omitempty"`
	Visibility        *int       `json:"visibility,omitempty"`
	Precipitation     *float64   `json:"precipitation,omitempty"`
	PrecipitationType *string    `json:"precipitationType,omitempty"`
	UVI               *float64   `json:"uvi,omitempty"`
	Tip               *string    `json:"tip,omitempty"`
}

// CreateWeatherRecord validates and persists a record, returning it with the
// generated id. The owning Location must exist.
func (s *Store) CreateWeatherRecord(ctx context.Context, record WeatherRecord) (WeatherRecord, error) {
	if err := validateRecord(&record); err != nil {
		observability.RecordWritesTotal.WithLabelValues("create", "invalid").Inc()
		return WeatherRecord{}, err
	}
	if _, err := s.LocationByID(ctx, record.LocationID); err != nil {
		observability.RecordWritesTotal.WithLabelValues("create", "error").Inc()
		return WeatherRecord{}, err
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		observability.RecordWritesTotal.WithLabelValues("create", "error").Inc()
		return WeatherRecord{}, storageErr("create weather record", err)
	}
	observability.RecordWritesTotal.WithLabelValues("create", "success").Inc()
	return record, nil
}

// WeatherRecordByID returns the record with the given id.
func (s *Store) WeatherRecordByID(ctx context.Context, id uint) (WeatherRecord, error) {
	var record WeatherRecord
	err := s.db.WithContext(ctx).First(&record, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return WeatherRecord{}, fmt.Errorf("%w: weather record %d", svcerr.ErrNotFound, id)
		}
		return WeatherRecord{}, storageErr("lookup weather record", err)
	}
	return record, nil
}

// WeatherRecordsByLocation returns a location's records ordered by
// weather_date ascending. from and to bound the range inclusively when
// non-nil.
func (s *Store) WeatherRecordsByLocation(ctx context.Context, locationID uint, from, to *time.Time) ([]WeatherRecord, error) {
	if _, err := s.LocationByID(ctx, locationID); err != nil {
		return nil, err
	}
	if from != nil && to != nil && from.After(*to) {
		return nil, fmt.Errorf("%w: start date after end date", svcerr.ErrInvalidInput)
	}

	q := s.db.WithContext(ctx).Where("location_id = ?", locationID)
	if from != nil {
		q = q.Where("weather_date >= ?", *from)
	}
	if to != nil {
		q = q.Where("weather_date <= ?", *to)
	}

	var records []WeatherRecord
	if err := q.Order("weather_date asc").Find(&records).Error; err != nil {
		return nil, storageErr("query weather records", err)
	}
	return records, nil
}

// UpdateWeatherRecord applies the patch's non-nil fields and re-validates the
// merged state before commit. An invalid merge fails with InvalidInput
// without persisting.
func (s *Store) UpdateWeatherRecord(ctx context.Context, id uint, patch WeatherRecordPatch) (WeatherRecord, error) {
	record, err := s.WeatherRecordByID(ctx, id)
	if err != nil {
		return WeatherRecord{}, err
	}

	applyPatch(&record, patch)

	if err := validateRecord(&record); err != nil {
		observability.RecordWritesTotal.WithLabelValues("update", "invalid").Inc()
		return WeatherRecord{}, err
	}

	if err := s.db.WithContext(ctx).Save(&record).Error; err != nil {
		observability.RecordWritesTotal.WithLabelValues("update", "error").Inc()
		return WeatherRecord{}, storageErr("update weather record", err)
	}
	observability.RecordWritesTotal.WithLabelValues("update", "success").Inc()
	return record, nil
}

// DeleteWeatherRecord removes a record. Returns false when no record with the
// given id exists.
func (s *Store) DeleteWeatherRecord(ctx context.Context, id uint) (bool, error) {
	result := s.db.WithContext(ctx).Delete(&WeatherRecord{}, id)
	if result.Error != nil {
		observability.RecordWritesTotal.WithLabelValues("delete", "error").Inc()
		return false, storageErr("delete weather record", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	observability.RecordWritesTotal.WithLabelValues("delete", "success").Inc()
	return true, nil
}

func applyPatch(record *WeatherRecord, patch WeatherRecordPatch) {
	if patch.WeatherDate != nil {
		record.WeatherDate = *patch.WeatherDate
	}
	if patch.TempC != nil {
		record.TempC = *patch.TempC
	}
	if patch.TempF != nil {
		record.TempF = *patch.TempF
	}
	if patch.Humidity != nil {
		record.Humidity = patch.Humidity
	}
	if patch.WindSpeed != nil {
		record.WindSpeed = patch.WindSpeed
	}
	if patch.WindDeg != nil {
		record.WindDeg = patch.WindDeg
	}
	if patch.WindGust != nil {
		record.WindGust = patch.WindGust
	}
	if patch.Condition != nil {
		record.Condition = *patch.Condition
	}
	if patch.ConditionDesc != nil {
		record.ConditionDesc = *patch.ConditionDesc
	}
	if patch.Icon != nil {
		record.Icon = *patch.Icon
	}
	if patch.Pressure != nil {
		record.Pressure = patch.Pressure
	}
	if patch.Visibility != nil {
		record.Visibility = patch.Visibility
	}
	if patch.Precipitation != nil {
		record.Precipitation = *patch.Precipitation
	}
	if patch.PrecipitationType != nil {
		record.PrecipitationType = patch.PrecipitationType
	}
	if patch.UVI != nil {
		record.UVI = patch.UVI
	}
	if patch.Tip != nil {
		record.Tip = *patch.Tip
	}
}

// validateRecord enforces the record invariants: temperature bounds, humidity
// and wind ranges, and the bounded weather_date window around now.
func validateRecord(record *WeatherRecord) error {
	if record.LocationID == 0 {
		return fmt.Errorf("%w: location id is required", svcerr.ErrInvalidInput)
	}
	if record.TempC < MinTempC || record.TempC > MaxTempC {
		return fmt.Errorf("%w: temp_c %.2f outside [%.0f, %.0f]", svcerr.ErrInvalidInput, record.TempC, MinTempC, MaxTempC)
	}
	if record.Humidity != nil && (*record.Humidity < 0 || *record.Humidity > 100) {
		return fmt.Errorf("%w: humidity %d outside [0, 100]", svcerr.ErrInvalidInput, *record.Humidity)
	}
	if record.WindSpeed != nil && *record.WindSpeed < 0 {
		return fmt.Errorf("%w: wind speed %.2f is negative", svcerr.ErrInvalidInput, *record.WindSpeed)
	}
	if record.WeatherDate.IsZero() {
		return fmt.Errorf("%w: weather date is required", svcerr.ErrInvalidInput)
	}
	now := time.Now()
	if record.WeatherDate.Before(now.Add(-MaxRecordAge)) {
		return fmt.Errorf("%w: weather date older than %d days", svcerr.ErrInvalidInput, int(MaxRecordAge.Hours()/24))
	}
	if record.WeatherDate.After(now.Add(MaxRecordLead)) {
		return fmt.Errorf("%w: weather date more than %d days ahead", svcerr.ErrInvalidInput, int(MaxRecordLead.Hours()/24))
	}
	return nil
}
