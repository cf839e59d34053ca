package engine

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/atlas/internal/geocache"
	"github.com/roach88/atlas/internal/geocoder"
	"github.com/roach88/atlas/internal/incident"
	"github.com/roach88/atlas/internal/render"
	"github.com/roach88/atlas/internal/resolver"
	"github.com/roach88/atlas/internal/route"
	"github.com/roach88/atlas/internal/testutil"
	"github.com/roach88/atlas/internal/transport"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

// fastTransport polls quickly and never resubscribes within a test.
var fastTransport = transport.Config{
	PollInterval:       20 * time.Millisecond,
	FetchTimeout:       time.Second,
	SubscribeTimeout:   time.Second,
	ResubscribeInitial: time.Hour,
	ResubscribeMax:     time.Hour,
}

func inc(id string, lat, lon float64) incident.Incident {
	return incident.Incident{
		ID:        id,
		Location:  "Main St & " + id,
		Latitude:  lat,
		Longitude: lon,
		Summary:   "Crash",
		Severity:  "High",
	}
}

// runEngine runs e on its own goroutine. The returned function cancels the
// run and returns Run's error.
func runEngine(t *testing.T, e *Engine) func() error {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- e.Run(ctx)
	}()

	var once sync.Once
	var runErr error
	stop := func() error {
		once.Do(func() {
			cancel()
			select {
			case runErr = <-done:
			case <-time.After(waitFor):
				t.Error("engine did not stop")
			}
		})
		return runErr
	}
	t.Cleanup(func() { _ = stop() })
	return stop
}

func newTestEngine(surface render.Surface, src *testutil.FakeSource, opts ...EngineOption) *Engine {
	base := []EngineOption{
		WithSessionGenerator(NewFixedGenerator("session-test")),
		WithTransportConfig(fastTransport),
	}
	return New(surface, src, src, append(base, opts...)...)
}

func TestEngine_SnapshotThenPush(t *testing.T) {
	src := testutil.NewFakeSource(
		inc("A", 40.7, -74.0),
		inc("B", math.NaN(), -73.9),
	)
	surface := render.NewMemory()

	var mu sync.Mutex
	var alerts []string
	e := newTestEngine(surface, src, WithAlertHandler(func(a Alert) {
		mu.Lock()
		defer mu.Unlock()
		alerts = append(alerts, a.Incident.ID)
	}))
	runEngine(t, e)

	require.Eventually(t, func() bool {
		return e.Status().Transport == "pushing"
	}, waitFor, tick)

	st := e.Status()
	assert.Equal(t, "session-test", st.Session)
	assert.Equal(t, 2, st.Incidents)
	assert.Equal(t, 1, st.Markers, "non-finite incident is kept but not drawn")
	assert.Equal(t, 1, surface.MarkerCount())
	assert.Nil(t, st.LastAlert, "snapshots raise no alerts")

	require.Equal(t, 1, src.Push(inc("C", 40.8, -73.95)))

	require.Eventually(t, func() bool {
		return e.Status().Incidents == 3
	}, waitFor, tick)
	assert.Equal(t, 2, surface.MarkerCount())

	st = e.Status()
	require.NotNil(t, st.LastAlert)
	assert.Equal(t, "C", st.LastAlert.Incident.ID)

	mu.Lock()
	assert.Equal(t, []string{"C"}, alerts)
	mu.Unlock()
}

func TestEngine_SubscribeFailureFallsBackToPolling(t *testing.T) {
	src := testutil.NewFakeSource(inc("A", 40.7, -74.0))
	src.FailSubscribe(testutil.ErrScripted)
	surface := render.NewMemory()

	e := newTestEngine(surface, src)
	runEngine(t, e)

	require.Eventually(t, func() bool {
		return e.Status().Transport == "polling"
	}, waitFor, tick)

	src.SetSnapshot(inc("A", 40.7, -74.0), inc("D", 40.6, -73.8))

	require.Eventually(t, func() bool {
		return e.Status().Incidents == 2
	}, waitFor, tick)
	assert.Equal(t, 2, surface.MarkerCount())
	assert.Nil(t, e.Status().LastAlert, "polled snapshots raise no alerts")
	assert.Zero(t, src.ActiveSubscriptions())
}

func TestEngine_PushFailureKeepsIncidents(t *testing.T) {
	src := testutil.NewFakeSource(inc("A", 40.7, -74.0))
	surface := render.NewMemory()

	e := newTestEngine(surface, src)
	runEngine(t, e)

	require.Eventually(t, func() bool {
		return e.Status().Transport == "pushing"
	}, waitFor, tick)

	src.FailFetch(testutil.ErrScripted)
	src.BreakPush(errors.New("socket closed"))

	require.Eventually(t, func() bool {
		return e.Status().Transport == "polling"
	}, waitFor, tick)

	// Failed polls leave the prior set and its markers alone.
	time.Sleep(3 * fastTransport.PollInterval)
	assert.Equal(t, 1, e.Status().Incidents)
	assert.Equal(t, 1, surface.MarkerCount())
}

func TestEngine_RoutesDrawnAndCached(t *testing.T) {
	src := testutil.NewFakeSource()
	src.SetRoutes(
		route.Record{AssetID: "bus-1", Type: "bus", Nodes: []string{"Albany", "41,-73"}},
		route.Record{AssetID: "bus-2", Nodes: []string{"Nowhereville", "41,-73"}},
	)
	lookup := testutil.NewCountingLookup(map[string]testutil.LookupResult{
		"Albany": {Match: geocoder.Match{Point: orb.Point{-73.75, 42.65}, PlaceName: "Albany, NY"}, Found: true},
	})

	path := filepath.Join(t.TempDir(), "geocode.json")
	cache := geocache.New(geocache.NewFileBackend(path))
	m := route.NewMaterializer(resolver.New(cache, lookup), nil)
	surface := render.NewMemory()

	e := newTestEngine(surface, src, WithRoutes(src, m, time.Hour), WithCache(cache))
	runEngine(t, e)

	require.Eventually(t, func() bool {
		return len(e.Routes()) == 1
	}, waitFor, tick)

	features := surface.RoutesGeoJSON()
	require.NotNil(t, features)
	assert.Len(t, features.Features, 1)

	summary, ok := e.Route("bus-1")
	require.True(t, ok)
	assert.Equal(t, "bus", summary.Type)
	assert.Equal(t, 2, summary.NodeCount)
	assert.Equal(t, "Albany, NY", summary.From)

	_, ok = e.Route("bus-2")
	assert.False(t, ok, "route with one resolvable waypoint is dropped")
	assert.Equal(t, 1, e.Status().Routes)

	// The refresh flushes the cache, negative entry included.
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, waitFor, tick)
	entries, err := geocache.NewFileBackend(path).Load(context.Background())
	require.NoError(t, err)
	assert.Contains(t, entries, "Albany")
	require.Contains(t, entries, "Nowhereville")
	assert.True(t, entries["Nowhereville"].Negative)
}

func TestEngine_SelectRoute(t *testing.T) {
	src := testutil.NewFakeSource()
	src.SetRoutes(route.Record{AssetID: "bus-1", Nodes: []string{"40,-74", "41,-73"}})
	cache := geocache.New(geocache.NewFileBackend(filepath.Join(t.TempDir(), "geocode.json")))
	m := route.NewMaterializer(resolver.New(cache, nil), nil)
	surface := render.NewMemory()

	e := newTestEngine(surface, src, WithRoutes(src, m, time.Hour))
	runEngine(t, e)

	require.Eventually(t, func() bool {
		return len(e.Routes()) == 1
	}, waitFor, tick)

	require.True(t, e.Select("bus-1"))
	require.Eventually(t, func() bool {
		return surface.Highlighted() == "bus-1"
	}, waitFor, tick)
	_, fitted := surface.Viewport()
	assert.True(t, fitted)

	// Unknown assets leave the selection alone.
	require.True(t, e.Select("tram-9"))
	require.True(t, e.ClearSelection())
	require.Eventually(t, func() bool {
		return surface.Highlighted() == ""
	}, waitFor, tick)
}

func TestEngine_StopReleasesSubscription(t *testing.T) {
	src := testutil.NewFakeSource(inc("A", 40.7, -74.0))
	e := newTestEngine(render.NewMemory(), src)

	done := make(chan error, 1)
	go func() {
		done <- e.Run(context.Background())
	}()

	require.Eventually(t, func() bool {
		return e.Status().Transport == "pushing"
	}, waitFor, tick)
	require.Equal(t, 1, src.ActiveSubscriptions())

	e.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("engine did not stop")
	}

	assert.Equal(t, "stopped", e.Status().Transport)
	assert.Zero(t, src.ActiveSubscriptions())
	assert.False(t, e.Select("bus-1"), "stopped engine rejects events")
	assert.Equal(t, 0, src.Push(inc("B", 1, 1)))
}

func TestEngine_ContextCancelFlushesCache(t *testing.T) {
	src := testutil.NewFakeSource()
	path := filepath.Join(t.TempDir(), "geocode.json")
	cache := geocache.New(geocache.NewFileBackend(path))
	cache.Put("Albany", geocache.Positive(orb.Point{-73.75, 42.65}, "Albany, NY"))

	e := newTestEngine(render.NewMemory(), src, WithCache(cache))
	stop := runEngine(t, e)

	require.Eventually(t, func() bool {
		return e.Status().Transport == "pushing"
	}, waitFor, tick)

	err := stop()
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := geocache.NewFileBackend(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Albany, NY", entries["Albany"].Label)
}

func TestEngine_RunTwice(t *testing.T) {
	src := testutil.NewFakeSource()
	e := newTestEngine(render.NewMemory(), src)
	stop := runEngine(t, e)
	require.Eventually(t, func() bool {
		return e.Status().Transport == "pushing"
	}, waitFor, tick)
	_ = stop()

	err := e.Run(context.Background())
	assert.ErrorIs(t, err, transport.ErrStopped)
}

func TestEngine_UnknownEventLogged(t *testing.T) {
	e := newTestEngine(render.NewMemory(), testutil.NewFakeSource())

	assert.Error(t, e.processEvent(Event{Type: EventType(42)}))
	assert.Error(t, e.processEvent(Event{Type: EventTypeTransport}))
	assert.ErrorIs(t, e.processEvent(Event{Type: EventTypeSelect, AssetID: "nope"}), ErrUnknownRoute)
}
