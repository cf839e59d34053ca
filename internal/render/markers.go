package render

import (
	"github.com/roach88/atlas/internal/incident"
	"github.com/roach88/atlas/internal/metrics"
	"github.com/roach88/atlas/internal/reconcile"
)

// Markers keeps exactly one surface handle per rendered incident.
//
// Not safe for concurrent use; the engine loop is its only caller.
type Markers struct {
	surface Surface
	handles map[string]Handle
}

// NewMarkers creates an adapter over surface.
func NewMarkers(surface Surface) *Markers {
	return &Markers{
		surface: surface,
		handles: make(map[string]Handle),
	}
}

// Apply translates d into surface calls: removals first, then in-place
// updates, then additions.
func (m *Markers) Apply(d reconcile.Diff) {
	for _, id := range d.Removed {
		if h, ok := m.handles[id]; ok {
			h.Remove()
			delete(m.handles, id)
			metrics.MarkerOps.WithLabelValues("remove").Inc()
		}
	}

	for _, inc := range d.Updated {
		h, ok := m.handles[inc.ID]
		if !ok {
			// Diff and handles disagree; recover by adding.
			m.add(inc)
			continue
		}
		h.Move(inc.Point())
		h.SetDetail(DetailFor(inc))
		metrics.MarkerOps.WithLabelValues("update").Inc()
	}

	for _, inc := range d.Added {
		if h, ok := m.handles[inc.ID]; ok {
			h.Move(inc.Point())
			h.SetDetail(DetailFor(inc))
			metrics.MarkerOps.WithLabelValues("update").Inc()
			continue
		}
		m.add(inc)
	}

	metrics.MarkersRendered.Set(float64(len(m.handles)))
}

func (m *Markers) add(inc incident.Incident) {
	m.handles[inc.ID] = m.surface.AddMarker(Marker{
		ID:     inc.ID,
		Point:  inc.Point(),
		Detail: DetailFor(inc),
	})
	metrics.MarkerOps.WithLabelValues("add").Inc()
}

// Len returns the number of live handles.
func (m *Markers) Len() int {
	return len(m.handles)
}

// Has reports whether id has a live handle.
func (m *Markers) Has(id string) bool {
	_, ok := m.handles[id]
	return ok
}

// DetailFor builds the popup content for inc.
func DetailFor(inc incident.Incident) Detail {
	return Detail{
		Title:    inc.Location,
		Body:     inc.Summary,
		Severity: string(inc.Class()),
		Color:    incident.Color(inc.Severity),
	}
}
