// Package reconcile owns the authoritative incident set.
//
// The reconciler is the pure half of marker synchronization: every change to
// the set returns a Diff describing which renderable incidents were added,
// updated or removed since the previous change. Translating a Diff into
// render-surface calls is the job of render.Markers.
//
// INVARIANTS:
//   - At most one incident per identifier (last write wins).
//   - A rendered identifier is removed only when it leaves the set.
//   - Only incidents with finite coordinates are added or updated; one that
//     was never drawn with finite coordinates is never rendered.
//   - New-incident listeners fire for deltas only, never for snapshots.
package reconcile

import (
	"sort"
	"sync"

	"github.com/roach88/atlas/internal/incident"
)

// Diff is the minimal set of render changes produced by one set change.
type Diff struct {
	Added   []incident.Incident
	Updated []incident.Incident
	Removed []string
}

// Empty reports whether the diff carries no changes.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}

// Listener receives incidents delivered as deltas.
type Listener func(incident.Incident)

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithKeepMissing makes snapshots merge into the set instead of replacing it,
// so incidents omitted by a later snapshot are kept.
func WithKeepMissing(keep bool) Option {
	return func(r *Reconciler) {
		r.keepMissing = keep
	}
}

// Reconciler is the authoritative incident set.
//
// Thread-safety: mutations are expected from the engine loop goroutine only,
// but reads (CurrentSet, Get, Len) are safe from any goroutine.
type Reconciler struct {
	mu          sync.RWMutex
	incidents   map[string]incident.Incident
	rendered    map[string]struct{}
	keepMissing bool

	listenersMu sync.Mutex
	listeners   []Listener
}

// New creates an empty reconciler.
func New(opts ...Option) *Reconciler {
	r := &Reconciler{
		incidents: make(map[string]incident.Incident),
		rendered:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnNewIncident registers a listener for delta-delivered incidents.
func (r *Reconciler) OnNewIncident(l Listener) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.listeners = append(r.listeners, l)
}

// ApplySnapshot replaces the set with list. Duplicate identifiers in list
// resolve to the last occurrence.
func (r *Reconciler) ApplySnapshot(list []incident.Incident) Diff {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.keepMissing {
		r.incidents = make(map[string]incident.Incident, len(list))
	}
	for _, inc := range list {
		r.incidents[inc.ID] = inc
	}
	return r.diffLocked()
}

// ApplyDelta upserts inc (full replace) and notifies new-incident listeners,
// whether or not the identifier was already known.
func (r *Reconciler) ApplyDelta(inc incident.Incident) Diff {
	r.mu.Lock()
	r.incidents[inc.ID] = inc
	d := r.diffLocked()
	r.mu.Unlock()

	r.listenersMu.Lock()
	ls := append([]Listener(nil), r.listeners...)
	r.listenersMu.Unlock()
	for _, l := range ls {
		l(inc)
	}
	return d
}

// CurrentSet returns a copy of the set ordered most-recent-first.
func (r *Reconciler) CurrentSet() []incident.Incident {
	r.mu.RLock()
	out := make([]incident.Incident, 0, len(r.incidents))
	for _, inc := range r.incidents {
		out = append(out, inc)
	}
	r.mu.RUnlock()

	incident.SortRecentFirst(out)
	return out
}

// Get returns the incident with the given identifier.
func (r *Reconciler) Get(id string) (incident.Incident, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inc, ok := r.incidents[id]
	return inc, ok
}

// Len returns the number of incidents in the set.
func (r *Reconciler) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.incidents)
}

// Rendered returns the number of incidents that currently have markers.
func (r *Reconciler) Rendered() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rendered)
}

// diffLocked compares the current set with the previously rendered
// identifiers and records the new rendered set. Only identifiers that left
// the set are removed; finiteness gates creation and update, so a rendered
// incident whose coordinates turn non-finite keeps its marker unchanged.
// Caller must hold r.mu.
func (r *Reconciler) diffLocked() Diff {
	var d Diff
	next := make(map[string]struct{}, len(r.incidents))

	for id, inc := range r.incidents {
		_, wasRendered := r.rendered[id]
		if !inc.Renderable() {
			if wasRendered {
				next[id] = struct{}{}
			}
			continue
		}
		next[id] = struct{}{}
		if wasRendered {
			d.Updated = append(d.Updated, inc)
		} else {
			d.Added = append(d.Added, inc)
		}
	}
	for id := range r.rendered {
		if _, ok := r.incidents[id]; !ok {
			d.Removed = append(d.Removed, id)
		}
	}
	r.rendered = next

	sortByID(d.Added)
	sortByID(d.Updated)
	sort.Strings(d.Removed)
	return d
}

func sortByID(list []incident.Incident) {
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
}
