// Package incident defines the incident record delivered by the backend, its
// normalized in-memory form, severity classification and list ordering.
package incident

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/paulmach/orb"

	"github.com/roach88/atlas/internal/geo"
)

// DefaultLocation is used when a record carries no location label.
const DefaultLocation = "Unknown"

// Incident is the normalized incident held in the authoritative set.
//
// Latitude and Longitude are always set: missing values become 0 and
// unparseable values become NaN, which the render layer treats as
// non-renderable. Timestamp is nil when the backend did not provide one.
type Incident struct {
	ID        string     `json:"incidentId"`
	Location  string     `json:"location"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Summary   string     `json:"summary"`
	Severity  string     `json:"severity"`
	Timestamp *time.Time `json:"timestamp"`
}

// Point returns the incident position in (lon, lat) order.
func (i Incident) Point() orb.Point {
	return orb.Point{i.Longitude, i.Latitude}
}

// Renderable reports whether the incident has finite coordinates.
func (i Incident) Renderable() bool {
	return geo.Finite(i.Latitude, i.Longitude)
}

// Class returns the severity class of the incident.
func (i Incident) Class() Severity {
	return Classify(i.Severity)
}

// MarshalJSON writes non-finite coordinates as null, which encoding/json
// would otherwise reject.
func (i Incident) MarshalJSON() ([]byte, error) {
	type wire struct {
		ID        string     `json:"incidentId"`
		Location  string     `json:"location"`
		Latitude  *float64   `json:"latitude"`
		Longitude *float64   `json:"longitude"`
		Summary   string     `json:"summary"`
		Severity  string     `json:"severity"`
		Timestamp *time.Time `json:"timestamp"`
	}
	w := wire{
		ID:        i.ID,
		Location:  i.Location,
		Summary:   i.Summary,
		Severity:  i.Severity,
		Timestamp: i.Timestamp,
	}
	if geo.Finite(i.Latitude) {
		w.Latitude = &i.Latitude
	}
	if geo.Finite(i.Longitude) {
		w.Longitude = &i.Longitude
	}
	return json.Marshal(w)
}

// Normalize converts a wire record into an Incident.
// Returns false for records without an identifier.
func Normalize(r Record) (Incident, bool) {
	if r.ID == "" {
		return Incident{}, false
	}
	loc := DefaultLocation
	if r.Location != nil {
		loc = *r.Location
	}
	inc := Incident{
		ID:        r.ID,
		Location:  loc,
		Latitude:  r.Latitude.Float(),
		Longitude: r.Longitude.Float(),
		Timestamp: r.Timestamp.Time(),
	}
	if r.Summary != nil {
		inc.Summary = *r.Summary
	}
	if r.Severity != nil {
		inc.Severity = *r.Severity
	}
	return inc, true
}

// NormalizeAll normalizes a batch, dropping records without identifiers.
func NormalizeAll(records []Record) []Incident {
	out := make([]Incident, 0, len(records))
	for _, r := range records {
		if inc, ok := Normalize(r); ok {
			out = append(out, inc)
		}
	}
	return out
}

// SortRecentFirst orders incidents by timestamp descending. Incidents without
// a timestamp sort as the oldest; ties are broken by identifier so output is
// stable across runs.
func SortRecentFirst(list []Incident) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].Timestamp, list[j].Timestamp
		switch {
		case a == nil && b == nil:
			return list[i].ID < list[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return list[i].ID < list[j].ID
		default:
			return a.After(*b)
		}
	})
}
