// Package classify detects whether raw user text is a coordinate pair, a
// postal code, or a free-text place name. Pure functions, no upstream calls.
package classify

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies the detected input variant.
type Kind int

const (
	KindCoordinates Kind = iota
	KindPostalCode
	KindPlaceName
)

func (k Kind) String() string {
	switch k {
	case KindCoordinates:
		return "coordinates"
	case KindPostalCode:
		return "postal_code"
	case KindPlaceName:
		return "place_name"
	default:
		return "unknown"
	}
}

// Input is the classification result. Exactly one variant is populated:
// Lat/Lon for KindCoordinates, Code for KindPostalCode, Name for KindPlaceName.
type Input struct {
	Kind Kind
	Lat  float64
	Lon  float64
	Code string
	Name string
}

var (
	coordsRe = regexp.MustCompile(`^-?\d+(\.\d+)?\s*,\s*-?\d+(\.\d+)?$`)
	postalRe = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
)

// Classify maps raw input to exactly one variant. Coordinates are parsed on
// the first comma; no range validation happens here (out-of-range values fail
// at the upstream call). Anything that is neither coordinates nor a 5-digit
// postal code passes through untouched as a place name.
func Classify(raw string) Input {
	s := strings.TrimSpace(raw)

	if coordsRe.MatchString(s) {
		lat, lon, ok := ParseCoordinates(s)
		if ok {
			return Input{Kind: KindCoordinates, Lat: lat, Lon: lon}
		}
	}
	if postalRe.MatchString(s) {
		return Input{Kind: KindPostalCode, Code: s}
	}
	return Input{Kind: KindPlaceName, Name: raw}
}

// ParseCoordinates splits s on the first comma and parses both halves as
// floats, trimming surrounding whitespace. Returns false when either half is
// not a number.
func ParseCoordinates(s string) (lat, lon float64, ok bool) {
	latStr, lonStr, found := strings.Cut(s, ",")
	if !found {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}
