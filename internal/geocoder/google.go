package geocoder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"googlemaps.github.io/maps"

	"github.com/roach88/atlas/internal/metrics"
)

// Google queries the Google Geocoding API.
type Google struct {
	client *maps.Client
	logger *slog.Logger
}

// NewGoogle creates a Google client authenticated with apiKey. Extra
// maps.ClientOption values (base URL, HTTP client) are passed through.
func NewGoogle(apiKey string, opts ...maps.ClientOption) (*Google, error) {
	all := append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)
	client, err := maps.NewClient(all...)
	if err != nil {
		return nil, fmt.Errorf("error creating Google Maps client: %w", err)
	}
	return &Google{client: client, logger: slog.Default()}, nil
}

// Provider returns "google".
func (g *Google) Provider() string { return "google" }

// Lookup requests candidates for query and returns the first.
func (g *Google) Lookup(ctx context.Context, query string) (Match, bool, error) {
	t0 := time.Now()
	g.logger.Debug("geocode request", "provider", "google", "query", query)
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: query})
	metrics.GeocodeDurationMs.WithLabelValues("google").Observe(float64(time.Since(t0).Milliseconds()))
	if err != nil {
		if strings.Contains(err.Error(), "ZERO_RESULTS") {
			metrics.GeocodeRequests.WithLabelValues("google", "empty").Inc()
			return Match{}, false, nil
		}
		metrics.GeocodeRequests.WithLabelValues("google", "error").Inc()
		return Match{}, false, fmt.Errorf("error requesting geocode from google: %w", err)
	}
	if len(results) == 0 {
		metrics.GeocodeRequests.WithLabelValues("google", "empty").Inc()
		return Match{}, false, nil
	}

	r := results[0]
	m := Match{
		Point:     orb.Point{r.Geometry.Location.Lng, r.Geometry.Location.Lat},
		PlaceName: r.FormattedAddress,
	}
	if len(r.AddressComponents) > 0 {
		m.Text = r.AddressComponents[0].LongName
	}
	metrics.GeocodeRequests.WithLabelValues("google", "ok").Inc()
	return m, true, nil
}
