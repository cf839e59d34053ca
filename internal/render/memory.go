package render

import (
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Memory is a Surface held in process memory. Every call is appended to a
// textual trace, and the current marker and route layers can be exported as
// GeoJSON.
//
// Thread-safety: all methods are safe for concurrent use.
type Memory struct {
	mu          sync.Mutex
	markers     map[string]*memoryHandle
	routes      *geojson.FeatureCollection
	highlighted string
	bounds      *orb.Bound
	trace       []string
	traceLimit  int
}

// MemoryOption configures a Memory surface.
type MemoryOption func(*Memory)

// WithTraceLimit keeps only the most recent n trace lines. Zero keeps all.
func WithTraceLimit(n int) MemoryOption {
	return func(m *Memory) {
		if n >= 0 {
			m.traceLimit = n
		}
	}
}

var _ Surface = (*Memory)(nil)

// NewMemory creates an empty surface.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		markers: make(map[string]*memoryHandle),
		routes:  geojson.NewFeatureCollection(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type memoryHandle struct {
	m       *Memory
	id      string
	point   orb.Point
	detail  Detail
	removed bool
}

// AddMarker places a marker. Adding an ID that is already present replaces
// the previous marker.
func (m *Memory) AddMarker(mk Marker) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := &memoryHandle{m: m, id: mk.ID, point: mk.Point, detail: mk.Detail}
	if old, ok := m.markers[mk.ID]; ok {
		old.removed = true
	}
	m.markers[mk.ID] = h
	m.record("add %s %s %s", mk.ID, formatPoint(mk.Point), mk.Detail.Color)
	return h
}

func (h *memoryHandle) Move(p orb.Point) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	if h.removed {
		return
	}
	h.point = p
	h.m.record("move %s %s", h.id, formatPoint(p))
}

func (h *memoryHandle) SetDetail(d Detail) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	if h.removed {
		return
	}
	h.detail = d
	h.m.record("detail %s %s %q", h.id, d.Color, d.Title)
}

func (h *memoryHandle) Remove() {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	if h.removed {
		return
	}
	h.removed = true
	if cur, ok := h.m.markers[h.id]; ok && cur == h {
		delete(h.m.markers, h.id)
	}
	h.m.record("remove %s", h.id)
}

// DrawRoutes replaces the routes layer.
func (m *Memory) DrawRoutes(fc *geojson.FeatureCollection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fc == nil {
		fc = geojson.NewFeatureCollection()
	}
	m.routes = fc
	m.record("routes %d", len(fc.Features))
}

// Highlight filters the routes layer to assetID.
func (m *Memory) Highlight(assetID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.highlighted = assetID
	if assetID == "" {
		m.record("highlight none")
		return
	}
	m.record("highlight %s", assetID)
}

// FitBounds records the viewport.
func (m *Memory) FitBounds(b orb.Bound) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bounds = &b
	m.record("fit %s %s", formatPoint(b.Min), formatPoint(b.Max))
}

// Trace returns a copy of the recorded calls.
func (m *Memory) Trace() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.trace...)
}

// ResetTrace clears the recorded calls.
func (m *Memory) ResetTrace() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trace = nil
}

// Highlighted returns the highlighted asset ID, or "" when none.
func (m *Memory) Highlighted() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.highlighted
}

// Viewport returns the last fitted bounds.
func (m *Memory) Viewport() (orb.Bound, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bounds == nil {
		return orb.Bound{}, false
	}
	return *m.bounds, true
}

// MarkerCount returns the number of markers on the surface.
func (m *Memory) MarkerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.markers)
}

// MarkersGeoJSON exports markers as Point features ordered by ID.
func (m *Memory) MarkersGeoJSON() *geojson.FeatureCollection {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.markers))
	for id := range m.markers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fc := geojson.NewFeatureCollection()
	for _, id := range ids {
		h := m.markers[id]
		f := geojson.NewFeature(h.point)
		f.ID = id
		f.Properties["incidentId"] = id
		f.Properties["title"] = h.detail.Title
		f.Properties["body"] = h.detail.Body
		f.Properties["severity"] = h.detail.Severity
		f.Properties["color"] = h.detail.Color
		fc.Append(f)
	}
	return fc
}

// RoutesGeoJSON returns the routes layer.
func (m *Memory) RoutesGeoJSON() *geojson.FeatureCollection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.routes
}

// record appends to the trace. Caller must hold m.mu.
func (m *Memory) record(format string, args ...any) {
	m.trace = append(m.trace, fmt.Sprintf(format, args...))
	if m.traceLimit > 0 && len(m.trace) > m.traceLimit {
		m.trace = append(m.trace[:0], m.trace[len(m.trace)-m.traceLimit:]...)
	}
}

func formatPoint(p orb.Point) string {
	return fmt.Sprintf("(%g,%g)", p[0], p[1])
}
