package geocoder

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/paulmach/orb"

	"github.com/roach88/atlas/internal/geo"
	"github.com/roach88/atlas/internal/metrics"
)

// DefaultMapboxURL is the Mapbox API root.
const DefaultMapboxURL = "https://api.mapbox.com"

// Mapbox queries the Mapbox places geocoding endpoint.
type Mapbox struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// MapboxOption configures a Mapbox client.
type MapboxOption func(*Mapbox)

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) MapboxOption {
	return func(m *Mapbox) { m.baseURL = u }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) MapboxOption {
	return func(m *Mapbox) { m.client = c }
}

// WithMapboxLogger sets the logger.
func WithMapboxLogger(l *slog.Logger) MapboxOption {
	return func(m *Mapbox) { m.logger = l }
}

// NewMapbox creates a Mapbox client authenticated with token.
func NewMapbox(token string, opts ...MapboxOption) *Mapbox {
	m := &Mapbox{
		baseURL: DefaultMapboxURL,
		token:   token,
		client:  &http.Client{Timeout: 5 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Provider returns "mapbox".
func (m *Mapbox) Provider() string { return "mapbox" }

type mapboxResponse struct {
	Features []struct {
		Center    []float64 `json:"center"`
		PlaceName string    `json:"place_name"`
		Text      string    `json:"text"`
	} `json:"features"`
}

// Lookup requests one candidate for query.
func (m *Mapbox) Lookup(ctx context.Context, query string) (Match, bool, error) {
	if m.token == "" {
		return Match{}, false, errors.New("geocoder: missing mapbox token")
	}
	q := url.Values{}
	q.Set("access_token", m.token)
	q.Set("limit", "1")
	u := m.baseURL + "/geocoding/v5/mapbox.places/" + url.PathEscape(query) + ".json?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Match{}, false, err
	}

	t0 := time.Now()
	m.logger.Debug("geocode request", "provider", "mapbox", "query", query)
	resp, err := m.client.Do(req)
	metrics.GeocodeDurationMs.WithLabelValues("mapbox").Observe(float64(time.Since(t0).Milliseconds()))
	if err != nil {
		metrics.GeocodeRequests.WithLabelValues("mapbox", "error").Inc()
		return Match{}, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.GeocodeRequests.WithLabelValues("mapbox", "status").Inc()
		return Match{}, false, &StatusError{Provider: "mapbox", Status: strconv.Itoa(resp.StatusCode)}
	}

	var r mapboxResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		metrics.GeocodeRequests.WithLabelValues("mapbox", "error").Inc()
		return Match{}, false, err
	}
	if len(r.Features) == 0 {
		metrics.GeocodeRequests.WithLabelValues("mapbox", "empty").Inc()
		return Match{}, false, nil
	}

	f := r.Features[0]
	if len(f.Center) != 2 || !geo.Finite(f.Center...) {
		metrics.GeocodeRequests.WithLabelValues("mapbox", "empty").Inc()
		return Match{}, false, nil
	}
	metrics.GeocodeRequests.WithLabelValues("mapbox", "ok").Inc()
	m.logger.Debug("geocode response", "provider", "mapbox", "query", query, "place", f.PlaceName)
	return Match{
		Point:     orb.Point{f.Center[0], f.Center[1]},
		PlaceName: f.PlaceName,
		Text:      f.Text,
	}, true, nil
}
