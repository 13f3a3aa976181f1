package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"weatherhub/internal/client"
	"weatherhub/internal/models"
	"weatherhub/internal/store"
	"weatherhub/internal/svcerr"
)

type fakeWeatherClient struct {
	mu            sync.Mutex
	currentCalls  int32
	forecastCalls int32
	obs           models.WeatherObservation
	forecast      models.Forecast
	err           error
	block         chan struct{}
	lastQuery     client.Query
}

func (f *fakeWeatherClient) FetchCurrent(ctx context.Context, q client.Query) (models.WeatherObservation, error) {
	atomic.AddInt32(&f.currentCalls, 1)
	f.mu.Lock()
	f.lastQuery = q
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return models.WeatherObservation{}, f.err
	}
	return f.obs, nil
}

func (f *fakeWeatherClient) FetchForecast(ctx context.Context, q client.Query) (models.Forecast, error) {
	atomic.AddInt32(&f.forecastCalls, 1)
	if f.err != nil {
		return models.Forecast{}, f.err
	}
	return f.forecast, nil
}

func (f *fakeWeatherClient) FetchHourly(ctx context.Context, q client.Query) (models.Forecast, error) {
	return f.FetchForecast(ctx, q)
}

type fakeGeocoder struct {
	candidates   []models.Candidate
	postal       models.Candidate
	reverse      models.Candidate
	err          error
	reverseCalls int
}

func (f *fakeGeocoder) Search(ctx context.Context, query string, limit int) ([]models.Candidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && len(f.candidates) > limit {
		return f.candidates[:limit], nil
	}
	return f.candidates, nil
}

func (f *fakeGeocoder) Geocode(ctx context.Context, place string) (models.Candidate, error) {
	if f.err != nil {
		return models.Candidate{}, f.err
	}
	if len(f.candidates) == 0 {
		return models.Candidate{}, svcerr.ErrNotFound
	}
	return f.candidates[0], nil
}

func (f *fakeGeocoder) ResolvePostal(ctx context.Context, code, country string) (models.Candidate, error) {
	if f.err != nil {
		return models.Candidate{}, f.err
	}
	return f.postal, nil
}

func (f *fakeGeocoder) Reverse(ctx context.Context, lat, lon float64) (models.Candidate, error) {
	f.reverseCalls++
	if f.err != nil {
		return models.Candidate{}, f.err
	}
	return f.reverse, nil
}

type fakeRepo struct {
	mu        sync.Mutex
	locations []store.Location
	records   []store.WeatherRecord
	nextID    uint
	err       error
}

func (f *fakeRepo) FindOrCreateLocation(ctx context.Context, loc store.Location) (store.Location, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return store.Location{}, false, f.err
	}
	for _, existing := range f.locations {
		if existing.Latitude == loc.Latitude && existing.Longitude == loc.Longitude {
			return existing, false, nil
		}
	}
	f.nextID++
	loc.ID = f.nextID
	f.locations = append(f.locations, loc)
	return loc, true, nil
}

func (f *fakeRepo) CreateWeatherRecord(ctx context.Context, record store.WeatherRecord) (store.WeatherRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return store.WeatherRecord{}, f.err
	}
	record.ID = uint(len(f.records) + 1)
	f.records = append(f.records, record)
	return record, nil
}

func seoulObservation() models.WeatherObservation {
	return models.WeatherObservation{
		WeatherDate: time.Now().UTC(),
		TempC:       21.5,
		TempF:       70.7,
		Condition:   "Rain",
		City:        "Seoul",
		Country:     "KR",
		Latitude:    37.5665,
		Longitude:   126.978,
		APISource:   "openweather",
	}
}

func TestResolveQueryCoordinates(t *testing.T) {
	svc := NewWeatherService(&fakeWeatherClient{}, &fakeGeocoder{}, &fakeRepo{}, 0)

	q, err := svc.ResolveQuery(context.Background(), "37.5665, 126.9780", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Lat == nil || q.Lon == nil {
		t.Fatal("expected coordinate query")
	}
	if *q.Lat != 37.5665 || *q.Lon != 126.978 {
		t.Errorf("got lat=%v lon=%v", *q.Lat, *q.Lon)
	}
	if q.Place != "" {
		t.Errorf("place should be empty, got %q", q.Place)
	}
}

func TestResolveQueryPostalCode(t *testing.T) {
	geo := &fakeGeocoder{postal: models.Candidate{Name: "Beverly Hills", Country: "US", Lat: 34.09, Lon: -118.41}}
	svc := NewWeatherService(&fakeWeatherClient{}, geo, &fakeRepo{}, 0)

	q, err := svc.ResolveQuery(context.Background(), "90210", "US")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Lat == nil || *q.Lat != 34.09 {
		t.Errorf("expected postal resolution to coordinates, got %+v", q)
	}
}

func TestResolveQueryPostalGeocoderError(t *testing.T) {
	geo := &fakeGeocoder{err: svcerr.ErrInvalidInput}
	svc := NewWeatherService(&fakeWeatherClient{}, geo, &fakeRepo{}, 0)

	_, err := svc.ResolveQuery(context.Background(), "90210", "")
	if !errors.Is(err, svcerr.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestResolveQueryPlaceName(t *testing.T) {
	svc := NewWeatherService(&fakeWeatherClient{}, &fakeGeocoder{}, &fakeRepo{}, 0)

	q, err := svc.ResolveQuery(context.Background(), "Seoul", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Place != "Seoul" {
		t.Errorf("expected place passthrough, got %+v", q)
	}
}

func TestResolveQueryEmptyInput(t *testing.T) {
	svc := NewWeatherService(&fakeWeatherClient{}, &fakeGeocoder{}, &fakeRepo{}, 0)

	for _, raw := range []string{"", "   "} {
		if _, err := svc.ResolveQuery(context.Background(), raw, ""); !errors.Is(err, svcerr.ErrInvalidInput) {
			t.Errorf("input %q: expected ErrInvalidInput, got %v", raw, err)
		}
	}
}

func TestGetCurrentAttachesTip(t *testing.T) {
	wc := &fakeWeatherClient{obs: seoulObservation()}
	svc := NewWeatherService(wc, &fakeGeocoder{}, &fakeRepo{}, 0)

	current, err := svc.GetCurrent(context.Background(), "Seoul", "", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(current.Tip, "umbrella") {
		t.Errorf("expected rain tip, got %q", current.Tip)
	}
	if current.City != "Seoul" {
		t.Errorf("expected city Seoul, got %q", current.City)
	}
}

func TestGetCurrentSavePersistsRecord(t *testing.T) {
	wc := &fakeWeatherClient{obs: seoulObservation()}
	repo := &fakeRepo{}
	svc := NewWeatherService(wc, &fakeGeocoder{}, repo, 0)

	_, err := svc.GetCurrent(context.Background(), "Seoul", "", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.locations) != 1 {
		t.Fatalf("expected 1 location, got %d", len(repo.locations))
	}
	if repo.locations[0].City != "Seoul" {
		t.Errorf("expected Seoul, got %q", repo.locations[0].City)
	}
	if len(repo.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(repo.records))
	}
	if repo.records[0].LocationID != repo.locations[0].ID {
		t.Error("record not linked to upserted location")
	}
	if repo.records[0].Tip == "" {
		t.Error("expected tip persisted with record")
	}
}

func TestGetCurrentSaveReverseGeocodesWhenCityMissing(t *testing.T) {
	obs := seoulObservation()
	obs.City = ""
	obs.Country = ""
	wc := &fakeWeatherClient{obs: obs}
	geo := &fakeGeocoder{reverse: models.Candidate{Name: "Seoul", Country: "KR", Lat: obs.Latitude, Lon: obs.Longitude}}
	repo := &fakeRepo{}
	svc := NewWeatherService(wc, geo, repo, 0)

	_, err := svc.GetCurrent(context.Background(), "37.5665,126.9780", "", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if geo.reverseCalls != 1 {
		t.Errorf("expected 1 reverse lookup, got %d", geo.reverseCalls)
	}
	if len(repo.locations) != 1 || repo.locations[0].City != "Seoul" {
		t.Fatalf("expected Seoul location from reverse lookup, got %+v", repo.locations)
	}
}

func TestGetCurrentSaveIdempotentLocation(t *testing.T) {
	wc := &fakeWeatherClient{obs: seoulObservation()}
	repo := &fakeRepo{}
	svc := NewWeatherService(wc, &fakeGeocoder{}, repo, 0)

	for i := 0; i < 3; i++ {
		if _, err := svc.GetCurrent(context.Background(), "Seoul", "", true); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if len(repo.locations) != 1 {
		t.Errorf("expected single deduplicated location, got %d", len(repo.locations))
	}
	if len(repo.records) != 3 {
		t.Errorf("expected 3 records, got %d", len(repo.records))
	}
}

func TestGetCurrentUpstreamError(t *testing.T) {
	wc := &fakeWeatherClient{err: svcerr.ErrUpstreamUnavailable}
	svc := NewWeatherService(wc, &fakeGeocoder{}, &fakeRepo{}, 0)

	_, err := svc.GetCurrent(context.Background(), "Seoul", "", false)
	if !errors.Is(err, svcerr.ErrUpstreamUnavailable) {
		t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestGetCurrentCoalescesConcurrentRequests(t *testing.T) {
	wc := &fakeWeatherClient{obs: seoulObservation(), block: make(chan struct{})}
	svc := NewWeatherService(wc, &fakeGeocoder{}, &fakeRepo{}, 5*time.Second)

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.GetCurrent(context.Background(), "Seoul", "", false)
		}(i)
	}

	// Let all goroutines reach the coalescer before releasing the fetch.
	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&wc.currentCalls) == 0 {
		select {
		case <-deadline:
			t.Fatal("upstream fetch never started")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	time.Sleep(50 * time.Millisecond)
	close(wc.block)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("request %d failed: %v", i, err)
		}
	}
	if calls := atomic.LoadInt32(&wc.currentCalls); calls != 1 {
		t.Errorf("expected 1 upstream call for %d concurrent requests, got %d", n, calls)
	}
}

func TestGetHourlyTruncatesEntries(t *testing.T) {
	entries := make([]models.WeatherObservation, 40)
	for i := range entries {
		entries[i] = seoulObservation()
	}
	wc := &fakeWeatherClient{forecast: models.Forecast{City: "Seoul", Entries: entries}}
	svc := NewWeatherService(wc, &fakeGeocoder{}, &fakeRepo{}, 0)

	fc, err := svc.GetHourly(context.Background(), "Seoul", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fc.Entries) != 24 {
		t.Errorf("expected 24 hourly entries, got %d", len(fc.Entries))
	}

	full, err := svc.GetForecast(context.Background(), "Seoul", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(full.Entries) != 40 {
		t.Errorf("forecast should keep all entries, got %d", len(full.Entries))
	}
}

func TestSearchLocationsPersistsCandidates(t *testing.T) {
	geo := &fakeGeocoder{candidates: []models.Candidate{
		{Name: "Springfield", State: "IL", Country: "US", Lat: 39.78, Lon: -89.65},
		{Name: "Springfield", State: "MA", Country: "US", Lat: 42.10, Lon: -72.59},
	}}
	repo := &fakeRepo{}
	svc := NewWeatherService(&fakeWeatherClient{}, geo, repo, 0)

	locations, err := svc.SearchLocations(context.Background(), "Springfield", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(locations) != 2 {
		t.Fatalf("expected 2 locations, got %d", len(locations))
	}
	if locations[0].ID == 0 || locations[1].ID == 0 {
		t.Error("expected persisted locations with IDs")
	}

	// A second identical search must not create duplicates.
	again, err := svc.SearchLocations(context.Background(), "Springfield", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.locations) != 2 {
		t.Errorf("expected dedup on repeat search, store has %d locations", len(repo.locations))
	}
	if again[0].ID != locations[0].ID {
		t.Error("repeat search should return existing rows")
	}
}

func TestSearchLocationsGeocoderNotFound(t *testing.T) {
	geo := &fakeGeocoder{err: svcerr.ErrNotFound}
	svc := NewWeatherService(&fakeWeatherClient{}, geo, &fakeRepo{}, 0)

	_, err := svc.SearchLocations(context.Background(), "Xyzzyville", 5)
	if !errors.Is(err, svcerr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTipFallback(t *testing.T) {
	if tip := Tip("Tornado"); tip != defaultTip {
		t.Errorf("unknown condition should fall back, got %q", tip)
	}
	if tip := Tip("Clear"); tip == defaultTip {
		t.Error("known condition should have a specific tip")
	}
}
