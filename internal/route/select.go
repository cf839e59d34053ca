package route

import (
	"github.com/paulmach/orb"

	"github.com/roach88/atlas/internal/render"
)

// Summary is the selection payload shown for one route.
type Summary struct {
	AssetID     string         `json:"assetId"`
	Type        string         `json:"type"`
	NodeCount   int            `json:"nodeCount"`
	Coordinates orb.LineString `json:"coordinates"`
	From        string         `json:"from"`
	To          string         `json:"to"`
	Bounds      orb.Bound      `json:"bounds"`
}

// Summarize builds the selection payload for f.
func Summarize(f Feature) Summary {
	return Summary{
		AssetID:     f.AssetID,
		Type:        f.Type,
		NodeCount:   f.NodeCount,
		Coordinates: f.Line,
		From:        f.StartLabel(),
		To:          f.EndLabel(),
		Bounds:      f.Bounds(),
	}
}

// Find returns the feature with the given asset ID.
func Find(features []Feature, assetID string) (Feature, bool) {
	for _, f := range features {
		if f.AssetID == assetID {
			return f, true
		}
	}
	return Feature{}, false
}

// Select highlights the route with assetID and fits the viewport to it.
func Select(surface render.Surface, features []Feature, assetID string) (Summary, bool) {
	f, ok := Find(features, assetID)
	if !ok {
		return Summary{}, false
	}
	surface.Highlight(f.AssetID)
	surface.FitBounds(f.Bounds())
	return Summarize(f), true
}

// ClearSelection removes the route highlight.
func ClearSelection(surface render.Surface) {
	surface.Highlight("")
}
