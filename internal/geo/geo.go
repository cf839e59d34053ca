// Package geo holds the coordinate helpers shared by the resolver, the route
// materializer and the render adapter.
//
// All points are orb.Point values in (longitude, latitude) order, which is the
// order GeoJSON and the render surface expect.
package geo

import (
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// MaxLatitude and MaxLongitude bound the magnitudes accepted when deciding the
// orientation of a literal "a,b" token.
const (
	MaxLatitude  = 90.0
	MaxLongitude = 180.0
)

// ParseLiteral interprets token as a literal coordinate pair.
//
// The token must be exactly two comma-separated, non-empty, finite numbers.
// If the first magnitude is a valid latitude and the second a valid longitude
// the pair is read as (lat, lon) and returned swapped; otherwise it is assumed
// to already be (lon, lat) and is passed through unchanged.
//
//	ParseLiteral("40,-74")  // orb.Point{-74, 40}, true
//	ParseLiteral("200,10")  // orb.Point{200, 10}, true
//	ParseLiteral("Berlin")  // orb.Point{}, false
func ParseLiteral(token string) (orb.Point, bool) {
	parts := strings.Split(strings.TrimSpace(token), ",")
	if len(parts) != 2 {
		return orb.Point{}, false
	}
	a, ok := parseFinite(parts[0])
	if !ok {
		return orb.Point{}, false
	}
	b, ok := parseFinite(parts[1])
	if !ok {
		return orb.Point{}, false
	}
	if math.Abs(a) <= MaxLatitude && math.Abs(b) <= MaxLongitude {
		return orb.Point{b, a}, true
	}
	return orb.Point{a, b}, true
}

func parseFinite(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !Finite(v) {
		return 0, false
	}
	return v, true
}

// Finite reports whether every value is neither NaN nor infinite.
func Finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// ValidPoint reports whether p has finite components.
func ValidPoint(p orb.Point) bool {
	return Finite(p[0], p[1])
}

// Bounds returns the bounding box of the given points and false when there are
// none.
func Bounds(points []orb.Point) (orb.Bound, bool) {
	if len(points) == 0 {
		return orb.Bound{}, false
	}
	return orb.MultiPoint(points).Bound(), true
}
