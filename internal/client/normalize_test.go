package client

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"weatherhub/internal/svcerr"
)

func TestTemperatureConversions(t *testing.T) {
	tests := []struct {
		c, f float64
	}{
		{0, 32},
		{100, 212},
		{-40, -40},
		{21.5, 70.7},
		{18.2, 64.8},
	}
	for _, tc := range tests {
		if got := CToF(tc.c); got != tc.f {
			t.Errorf("CToF(%v) = %v, want %v", tc.c, got, tc.f)
		}
		if got := FToC(tc.f); got != tc.c {
			t.Errorf("FToC(%v) = %v, want %v", tc.f, got, tc.c)
		}
	}
}

func TestIconURL(t *testing.T) {
	if got := IconURL("https://icons.test/img", "10d"); got != "https://icons.test/img/10d.png" {
		t.Errorf("IconURL = %q", got)
	}
	if got := IconURL("https://icons.test/img", ""); got != "" {
		t.Errorf("empty code: IconURL = %q, want empty", got)
	}
}

func TestPrecipitationWindowPreference(t *testing.T) {
	// 1h volume wins over 3h when both are present; rain wins over snow.
	v, typ := precipitation(map[string]float64{"1h": 0.5, "3h": 2.0}, map[string]float64{"1h": 9.9})
	if v != 0.5 || typ == nil || *typ != "rain" {
		t.Errorf("got %v/%v, want 0.5/rain", v, typ)
	}

	v, typ = precipitation(nil, map[string]float64{"3h": 1.2})
	if v != 1.2 || typ == nil || *typ != "snow" {
		t.Errorf("got %v/%v, want 1.2/snow", v, typ)
	}

	v, typ = precipitation(nil, nil)
	if v != 0 || typ != nil {
		t.Errorf("no data: got %v/%v, want 0/nil", v, typ)
	}

	// An explicit zero recording is distinct from missing data.
	v, typ = precipitation(map[string]float64{"1h": 0}, nil)
	if v != 0 || typ == nil || *typ != "rain" {
		t.Errorf("explicit zero: got %v/%v, want 0/rain", v, typ)
	}
}

func TestNormalizeCurrentMalformedJSON(t *testing.T) {
	if _, err := normalizeCurrent([]byte(`{not json`), "base"); !errors.Is(err, svcerr.ErrUpstreamUnavailable) {
		t.Errorf("err = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCategory
	}{
		{nil, ""},
		{context.DeadlineExceeded, ErrorCategoryTimeout},
		{fmt.Errorf("wrap: %w", svcerr.ErrInvalidInput), ErrorCategoryInvalidInput},
		{fmt.Errorf("wrap: %w", svcerr.ErrNotFound), ErrorCategoryNotFound},
		{fmt.Errorf("wrap: %w", svcerr.ErrConflict), ErrorCategoryConflict},
		{fmt.Errorf("wrap: %w", svcerr.ErrStorageFailure), ErrorCategoryStorage},
		{fmt.Errorf("wrap: %w", svcerr.ErrUpstreamUnavailable), ErrorCategoryUpstream},
		{errors.New("connection refused"), ErrorCategoryNetwork},
		{errors.New("failed to parse body"), ErrorCategoryParsing},
		{errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tc := range tests {
		if got := CategorizeError(tc.err); got != tc.want {
			t.Errorf("CategorizeError(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
