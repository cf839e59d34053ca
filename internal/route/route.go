// Package route materializes symbolic route records into line features.
package route

import (
	"context"
	"log/slog"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/roach88/atlas/internal/metrics"
	"github.com/roach88/atlas/internal/resolver"
)

// DefaultType is used for records without a type.
const DefaultType = "route"

// Record is a route as delivered by the backend.
type Record struct {
	AssetID string   `json:"assetId"`
	Type    string   `json:"type"`
	Nodes   []string `json:"nodes"`
}

// Label pairs a waypoint token with its resolved display label. Label is
// empty when the waypoint did not resolve.
type Label struct {
	Original string `json:"original"`
	Label    string `json:"label,omitempty"`
}

// Display returns the resolved label, else the original token.
func (l Label) Display() string {
	if l.Label != "" {
		return l.Label
	}
	return l.Original
}

// Feature is a renderable route.
type Feature struct {
	AssetID   string
	Type      string
	NodeCount int
	Labels    []Label
	Line      orb.LineString
}

// StartLabel returns the display label of the first waypoint.
func (f Feature) StartLabel() string {
	if len(f.Labels) == 0 {
		return ""
	}
	return f.Labels[0].Display()
}

// EndLabel returns the display label of the last waypoint.
func (f Feature) EndLabel() string {
	if len(f.Labels) == 0 {
		return ""
	}
	return f.Labels[len(f.Labels)-1].Display()
}

// Bounds returns the bounding box of the resolved coordinates.
func (f Feature) Bounds() orb.Bound {
	return f.Line.Bound()
}

// GeoJSON converts the feature for the routes layer.
func (f Feature) GeoJSON() *geojson.Feature {
	g := geojson.NewFeature(f.Line)
	g.Properties["assetId"] = f.AssetID
	g.Properties["type"] = f.Type
	g.Properties["nodeCount"] = f.NodeCount
	g.Properties["nodeLabels"] = f.Labels
	return g
}

// Collection builds the routes layer.
func Collection(features []Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		fc.Append(f.GeoJSON())
	}
	return fc
}

// Resolver resolves one waypoint token.
type Resolver interface {
	Resolve(ctx context.Context, token string) (resolver.Resolution, bool)
}

// Materializer turns records into features.
type Materializer struct {
	resolver Resolver
	logger   *slog.Logger
}

// NewMaterializer creates a materializer over r.
func NewMaterializer(r Resolver, logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{resolver: r, logger: logger}
}

// Materialize resolves each record's waypoints in order and returns the
// routes with at least two resolved coordinates. Waypoints are resolved one
// at a time. A cancelled context stops the pass and returns what was built.
func (m *Materializer) Materialize(ctx context.Context, records []Record) []Feature {
	var out []Feature
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		if len(rec.Nodes) < 2 {
			m.logger.Debug("route skipped", "asset", rec.AssetID, "nodes", len(rec.Nodes))
			continue
		}

		f := Feature{
			AssetID:   rec.AssetID,
			Type:      rec.Type,
			NodeCount: len(rec.Nodes),
			Labels:    make([]Label, 0, len(rec.Nodes)),
		}
		if f.Type == "" {
			f.Type = DefaultType
		}
		for _, node := range rec.Nodes {
			l := Label{Original: node}
			if res, ok := m.resolver.Resolve(ctx, node); ok {
				f.Line = append(f.Line, res.Point)
				l.Label = res.Label
			}
			f.Labels = append(f.Labels, l)
		}

		if len(f.Line) < 2 {
			metrics.RoutesDropped.Inc()
			m.logger.Debug("route dropped", "asset", rec.AssetID, "resolved", len(f.Line), "nodes", len(rec.Nodes))
			continue
		}
		out = append(out, f)
	}
	return out
}
