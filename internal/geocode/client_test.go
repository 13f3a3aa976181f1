package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"weatherhub/internal/cache"
	"weatherhub/internal/svcerr"
)

const testAPIKey = "test-api-key-0123456789"

const seoulPlaces = `[
	{"name": "Seoul", "lat": 37.5665, "lon": 126.978, "country": "KR"},
	{"name": "Seoul", "lat": 37.56, "lon": 126.99, "country": "KR", "state": "Seoul"}
]`

func newTestClient(t *testing.T, handler http.HandlerFunc, responseCache cache.Cache) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		APIKey:     testAPIKey,
		DirectURL:  srv.URL + "/direct",
		ZipURL:     srv.URL + "/zip",
		ReverseURL: srv.URL + "/reverse",
		Timeout:    2 * time.Second,
	}, responseCache)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestSearch(t *testing.T) {
	var gotQuery atomic.Value
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		w.Write([]byte(seoulPlaces))
	}, nil)

	candidates, err := c.Search(context.Background(), "Seoul", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("candidates = %d, want 2", len(candidates))
	}
	if candidates[0].Name != "Seoul" || candidates[0].Country != "KR" || candidates[0].Lat != 37.5665 {
		t.Errorf("first candidate = %+v", candidates[0])
	}

	q := gotQuery.Load().(url.Values)
	if q.Get("limit") != "5" {
		t.Errorf("zero limit sent as %q, want default 5", q.Get("limit"))
	}
	if q.Get("appid") != testAPIKey {
		t.Error("appid not forwarded")
	}
}

func TestSearchLimitClamp(t *testing.T) {
	var gotQuery atomic.Value
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		w.Write([]byte(seoulPlaces))
	}, nil)

	if _, err := c.Search(context.Background(), "Seoul", 50); err != nil {
		t.Fatalf("search: %v", err)
	}
	q := gotQuery.Load().(url.Values)
	if q.Get("limit") != "10" {
		t.Errorf("limit 50 sent as %q, want clamped 10", q.Get("limit"))
	}
}

func TestSearchBlankQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called for a blank query")
	}, nil)

	if _, err := c.Search(context.Background(), "   ", 5); !errors.Is(err, svcerr.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestSearchNoMatches(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}, nil)

	if _, err := c.Search(context.Background(), "xyzzy", 5); !errors.Is(err, svcerr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGeocodeReturnsFirstCandidate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(seoulPlaces))
	}, nil)

	candidate, err := c.Geocode(context.Background(), "Seoul")
	if err != nil {
		t.Fatalf("geocode: %v", err)
	}
	if candidate.Lat != 37.5665 {
		t.Errorf("candidate = %+v, want first result", candidate)
	}
}

func TestResolvePostal(t *testing.T) {
	var gotQuery atomic.Value
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		w.Write([]byte(`{"zip": "90210", "name": "Beverly Hills", "lat": 34.0901, "lon": -118.4065, "country": "US"}`))
	}, nil)

	candidate, err := c.ResolvePostal(context.Background(), "90210", "us")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if candidate.Name != "Beverly Hills" || candidate.PostalCode != "90210" {
		t.Errorf("candidate = %+v", candidate)
	}

	q := gotQuery.Load().(url.Values)
	if q.Get("zip") != "90210,US" {
		t.Errorf("zip param = %q, want country appended and uppercased", q.Get("zip"))
	}
}

func TestResolvePostalFailsClosedWithoutCountry(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called without a country")
	}, nil)

	if _, err := c.ResolvePostal(context.Background(), "90210", ""); !errors.Is(err, svcerr.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestResolvePostalInlineCountry(t *testing.T) {
	var gotQuery atomic.Value
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		w.Write([]byte(`{"zip": "SW1A", "name": "London", "lat": 51.5, "lon": -0.12, "country": "GB"}`))
	}, nil)

	// A code that already carries its country needs no separate country arg.
	if _, err := c.ResolvePostal(context.Background(), "SW1A,GB", ""); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	q := gotQuery.Load().(url.Values)
	if q.Get("zip") != "SW1A,GB" {
		t.Errorf("zip param = %q", q.Get("zip"))
	}
}

func TestResolvePostalNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, nil)

	if _, err := c.ResolvePostal(context.Background(), "00000", "US"); !errors.Is(err, svcerr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestReverse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"name": "Seoul", "lat": 37.5665, "lon": 126.978, "country": "KR"}]`))
	}, nil)

	candidate, err := c.Reverse(context.Background(), 37.5665, 126.978)
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if candidate.Name != "Seoul" || candidate.Country != "KR" {
		t.Errorf("candidate = %+v", candidate)
	}
}

func TestReverseNoPlace(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}, nil)

	if _, err := c.Reverse(context.Background(), 0, 0); !errors.Is(err, svcerr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpstreamFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, nil)

	if _, err := c.Search(context.Background(), "Seoul", 5); !errors.Is(err, svcerr.ErrUpstreamUnavailable) {
		t.Errorf("err = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestSearchUsesCache(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(seoulPlaces))
	}, cache.NewLRUCache(16))

	ctx := context.Background()
	if _, err := c.Search(ctx, "Seoul", 5); err != nil {
		t.Fatalf("first search: %v", err)
	}
	if _, err := c.Search(ctx, "Seoul", 5); err != nil {
		t.Fatalf("second search: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}

	// A different limit is a different cache key.
	if _, err := c.Search(ctx, "Seoul", 2); err != nil {
		t.Fatalf("third search: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("upstream calls after new limit = %d, want 2", n)
	}
}

func TestReverseUsesCache(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`[{"name": "Seoul", "lat": 37.5665, "lon": 126.978, "country": "KR"}]`))
	}, cache.NewLRUCache(16))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.Reverse(ctx, 37.5665, 126.978); err != nil {
			t.Fatalf("reverse %d: %v", i, err)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}
}
