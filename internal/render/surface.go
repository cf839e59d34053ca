// Package render adapts reconciliation diffs and route features to a map
// rendering surface.
//
// The surface is an external collaborator: it can place a marker with a
// detail popup, draw the routes layer, highlight one route and fit the
// viewport to bounds. Memory is an in-process surface used by the HTTP
// status endpoints and by tests.
package render

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Detail is the popup content attached to a marker.
type Detail struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Severity string `json:"severity"`
	Color    string `json:"color"`
}

// Marker describes a marker to place on the surface.
type Marker struct {
	ID     string
	Point  orb.Point
	Detail Detail
}

// Handle is a live marker on the surface.
type Handle interface {
	Move(p orb.Point)
	SetDetail(d Detail)
	Remove()
}

// Surface is the map the engine renders onto.
type Surface interface {
	AddMarker(m Marker) Handle
	// DrawRoutes replaces the routes layer.
	DrawRoutes(fc *geojson.FeatureCollection)
	// Highlight filters the routes layer to one asset; empty clears.
	Highlight(assetID string)
	FitBounds(b orb.Bound)
}
