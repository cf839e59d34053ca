package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/paulmach/orb"

	"github.com/roach88/atlas/internal/geocache"
	"github.com/roach88/atlas/internal/geocoder"
	"github.com/roach88/atlas/internal/incident"
	"github.com/roach88/atlas/internal/reconcile"
	"github.com/roach88/atlas/internal/render"
	"github.com/roach88/atlas/internal/resolver"
	"github.com/roach88/atlas/internal/route"
	"github.com/roach88/atlas/internal/testutil"
)

// Harness holds the components for one scenario run.
type Harness struct {
	clock      *testutil.DeterministicClock
	result     *Result
	step       int
	surface    *render.Memory
	markers    *render.Markers
	reconciler *reconcile.Reconciler
	cache      *geocache.Cache
	routes     *route.Materializer
	features   []route.Feature
}

// Run executes a scenario and returns the result. Each run starts from an
// empty surface and an empty in-memory cache.
func Run(scenario *Scenario) (*Result, error) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewDeterministicClock()

	h := &Harness{
		clock:      clock,
		result:     NewResult(),
		surface:    render.NewMemory(),
		reconciler: reconcile.New(reconcile.WithKeepMissing(scenario.KeepMissing)),
		cache: geocache.New(nil,
			geocache.WithNegativeTTL(scenario.NegativeTTL),
			geocache.WithNow(clock.Now),
			geocache.WithLogger(quiet),
		),
	}
	h.markers = render.NewMarkers(h.surface)
	h.reconciler.OnNewIncident(func(inc incident.Incident) {
		h.result.State.Alerts++
		h.record("alert " + inc.ID)
	})

	script := make(map[string]testutil.LookupResult, len(scenario.Geocoder))
	for token, p := range scenario.Geocoder {
		script[token] = testutil.LookupResult{
			Match: geocoder.Match{Point: orb.Point{p.Lon, p.Lat}, PlaceName: p.Label},
			Found: true,
		}
	}
	lookup := &tracingLookup{inner: testutil.NewCountingLookup(script), h: h}
	h.routes = route.NewMaterializer(resolver.New(h.cache, lookup, resolver.WithLogger(quiet)), quiet)

	ctx := context.Background()
	for i, step := range scenario.Steps {
		h.step = i + 1
		if err := h.execute(ctx, step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", h.step, step.Kind(), err)
		}
		h.drainSurface()
	}

	h.captureState()

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

// execute applies one step.
func (h *Harness) execute(ctx context.Context, step Step) error {
	switch step.Kind() {
	case StepSnapshot:
		list, err := decodeIncidents(*step.Snapshot)
		if err != nil {
			return err
		}
		h.markers.Apply(h.reconciler.ApplySnapshot(list))

	case StepDelta:
		list, err := decodeIncidents([]map[string]any{step.Delta})
		if err != nil {
			return err
		}
		if len(list) == 0 {
			h.record("drop delta")
			return nil
		}
		h.markers.Apply(h.reconciler.ApplyDelta(list[0]))

	case StepRoutes:
		records := make([]route.Record, 0, len(*step.Routes))
		for _, r := range *step.Routes {
			records = append(records, route.Record{AssetID: r.AssetID, Type: r.Type, Nodes: r.Nodes})
		}
		h.features = h.routes.Materialize(ctx, records)
		h.surface.DrawRoutes(route.Collection(h.features))

	case StepSelect:
		if _, ok := route.Select(h.surface, h.features, step.Select); !ok {
			h.record("select miss " + step.Select)
		}

	case StepClear:
		route.ClearSelection(h.surface)

	case StepAdvance:
		h.clock.Advance(step.Advance)
		h.record("advance " + step.Advance.String())

	case StepPurgeNegative:
		purged := h.cache.PurgeNegative()
		h.record(fmt.Sprintf("purge %d", len(purged)))

	default:
		return fmt.Errorf("unknown step")
	}
	return nil
}

// record appends an effect with the next sequence number.
func (h *Harness) record(op string) {
	h.result.AddTrace(h.clock.Next(), h.step, op)
}

// drainSurface moves the surface's call log into the trace.
func (h *Harness) drainSurface() {
	for _, op := range h.surface.Trace() {
		h.record(op)
	}
	h.surface.ResetTrace()
}

func (h *Harness) captureState() {
	st := &h.result.State
	for _, inc := range h.reconciler.CurrentSet() {
		st.Incidents = append(st.Incidents, inc.ID)
	}
	st.Markers = h.surface.MarkerCount()
	for _, f := range h.features {
		st.Routes = append(st.Routes, f.AssetID)
	}
	st.Highlighted = h.surface.Highlighted()
	st.CacheEntries = h.cache.Len()
}

// decodeIncidents runs scenario payloads through the wire decoder.
func decodeIncidents(raw []map[string]any) ([]incident.Incident, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode incidents: %w", err)
	}
	var records []incident.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode incidents: %w", err)
	}
	return incident.NormalizeAll(records), nil
}

// tracingLookup records every external lookup in the trace.
type tracingLookup struct {
	inner geocoder.Lookup
	h     *Harness
}

func (l *tracingLookup) Provider() string { return l.inner.Provider() }

func (l *tracingLookup) Lookup(ctx context.Context, query string) (geocoder.Match, bool, error) {
	l.h.result.State.Lookups[query]++
	l.h.record("lookup " + query)
	return l.inner.Lookup(ctx, query)
}
