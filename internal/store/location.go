package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"weatherhub/internal/observability"
	"weatherhub/internal/svcerr"
)

// Search limits, per the location search contract.
const (
	DefaultSearchLimit = 5
	MaxSearchLimit     = 10
)

// FindOrCreateLocation returns the Location matching loc's coordinates,
// creating it when absent. The returned bool is true when a new row was
// created. A plain check-then-insert has a race window under concurrent
// identical callers, so the insert uses ON CONFLICT DO NOTHING and falls back
// to lookup when another writer got there first.
func (s *Store) FindOrCreateLocation(ctx context.Context, loc Location) (Location, bool, error) {
	existing, err := s.LocationByCoords(ctx, loc.Latitude, loc.Longitude)
	if err == nil {
		observability.LocationUpsertsTotal.WithLabelValues("existing").Inc()
		return existing, false, nil
	}
	if !errors.Is(err, svcerr.ErrNotFound) {
		return Location{}, false, err
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&loc)
	if result.Error != nil {
		return Location{}, false, storageErr("insert location", result.Error)
	}
	if result.RowsAffected > 0 {
		observability.LocationUpsertsTotal.WithLabelValues("created").Inc()
		return loc, true, nil
	}

	// Another writer inserted a conflicting row between our lookup and the
	// insert. Either unique key may have collided; re-query both.
	existing, err = s.LocationByCoords(ctx, loc.Latitude, loc.Longitude)
	if err == nil {
		observability.LocationUpsertsTotal.WithLabelValues("existing").Inc()
		return existing, false, nil
	}
	if !errors.Is(err, svcerr.ErrNotFound) {
		return Location{}, false, err
	}

	var byTriple Location
	tripleErr := s.db.WithContext(ctx).
		Where("city = ? AND state = ? AND country = ?", loc.City, loc.State, loc.Country).
		First(&byTriple).Error
	if tripleErr == nil {
		observability.LocationUpsertsTotal.WithLabelValues("existing").Inc()
		return byTriple, false, nil
	}
	if !errors.Is(tripleErr, gorm.ErrRecordNotFound) {
		return Location{}, false, storageErr("lookup location by name", tripleErr)
	}

	return Location{}, false, fmt.Errorf("%w: location insert conflicted but no matching row found", svcerr.ErrConflict)
}

// LocationByCoords returns the Location with exactly these coordinates.
func (s *Store) LocationByCoords(ctx context.Context, lat, lon float64) (Location, error) {
	var loc Location
	err := s.db.WithContext(ctx).
		Where("latitude = ? AND longitude = ?", lat, lon).
		First(&loc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Location{}, fmt.Errorf("%w: no location at (%v, %v)", svcerr.ErrNotFound, lat, lon)
		}
		return Location{}, storageErr("lookup location by coords", err)
	}
	return loc, nil
}

// LocationByID returns the Location with the given id.
func (s *Store) LocationByID(ctx context.Context, id uint) (Location, error) {
	var loc Location
	err := s.db.WithContext(ctx).First(&loc, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Location{}, fmt.Errorf("%w: location %d", svcerr.ErrNotFound, id)
		}
		return Location{}, storageErr("lookup location", err)
	}
	return loc, nil
}

// SearchLocations performs case-insensitive substring matching across city,
// state, and postal_code. limit 0 means DefaultSearchLimit; values above
// MaxSearchLimit are clamped.
func (s *Store) SearchLocations(ctx context.Context, query string, limit int) ([]Location, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query is required", svcerr.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	pattern := "%" + strings.ToLower(query) + "%"
	var locations []Location
	err := s.db.WithContext(ctx).
		Where("lower(city) LIKE ? OR lower(state) LIKE ? OR lower(COALESCE(postal_code, '')) LIKE ?",
			pattern, pattern, pattern).
		Order("city asc").
		Limit(limit).
		Find(&locations).Error
	if err != nil {
		return nil, storageErr("search locations", err)
	}
	return locations, nil
}

// ListLocations returns stored locations ordered by city. limit <= 0 uses a
// page of 100.
func (s *Store) ListLocations(ctx context.Context, limit int) ([]Location, error) {
	if limit <= 0 {
		limit = 100
	}
	var locations []Location
	err := s.db.WithContext(ctx).
		Order("city asc").
		Limit(limit).
		Find(&locations).Error
	if err != nil {
		return nil, storageErr("list locations", err)
	}
	return locations, nil
}

// UpdateLocationLabel sets the optional display label. Labels are the only
// mutable Location attribute.
func (s *Store) UpdateLocationLabel(ctx context.Context, id uint, label string) (Location, error) {
	loc, err := s.LocationByID(ctx, id)
	if err != nil {
		return Location{}, err
	}
	loc.Label = &label
	if err := s.db.WithContext(ctx).Save(&loc).Error; err != nil {
		return Location{}, storageErr("update location label", err)
	}
	return loc, nil
}

// DeleteLocation removes a Location unless weather records still reference it,
// in which case it fails with Conflict (referential guard).
func (s *Store) DeleteLocation(ctx context.Context, id uint) error {
	if _, err := s.LocationByID(ctx, id); err != nil {
		return err
	}

	var dependents int64
	if err := s.db.WithContext(ctx).
		Model(&WeatherRecord{}).
		Where("location_id = ?", id).
		Count(&dependents).Error; err != nil {
		return storageErr("count dependent records", err)
	}
	if dependents > 0 {
		return fmt.Errorf("%w: location %d has %d weather records", svcerr.ErrConflict, id, dependents)
	}

	if err := s.db.WithContext(ctx).Delete(&Location{}, id).Error; err != nil {
		return storageErr("delete location", err)
	}
	return nil
}
