package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/atlas/internal/geocache"
	"github.com/roach88/atlas/internal/incident"
	"github.com/roach88/atlas/internal/metrics"
	"github.com/roach88/atlas/internal/reconcile"
	"github.com/roach88/atlas/internal/render"
	"github.com/roach88/atlas/internal/route"
	"github.com/roach88/atlas/internal/transport"
)

// DefaultRouteInterval is how often routes are refetched and redrawn.
const DefaultRouteInterval = 5 * time.Minute

const flushTimeout = 5 * time.Second

// Alert is the most recent new-incident event.
type Alert struct {
	Incident incident.Incident `json:"incident"`
	At       time.Time         `json:"at"`
}

// AlertHandler is called on the loop goroutine for every new-incident event.
type AlertHandler func(Alert)

// Status is a point-in-time view of the engine, safe to build from any
// goroutine.
type Status struct {
	Session      string `json:"session"`
	Transport    string `json:"transport"`
	Incidents    int    `json:"incidents"`
	Markers      int    `json:"markers"`
	Routes       int    `json:"routes"`
	CacheEntries int    `json:"cacheEntries"`
	LastAlert    *Alert `json:"lastAlert,omitempty"`
}

// Engine is the single-writer event loop of the sync engine.
//
// The loop owns the reconciler's write side, the marker handles and the
// transport supervisor. Supervisor goroutines, the route refresher and
// callers of Select/ClearSelection only enqueue events.
//
// Thread-safety model:
//   - Enqueue, Select, ClearSelection, Stop: safe from any goroutine
//   - Incidents, Routes, Route, Status: safe from any goroutine
//   - Run: must be called from exactly one goroutine, once
type Engine struct {
	clock      *Clock
	queue      *eventQueue
	session    string
	surface    render.Surface
	reconciler *reconcile.Reconciler
	markers    *render.Markers
	supervisor *transport.Supervisor
	logger     *slog.Logger
	now        func() time.Time

	fetcher     transport.Fetcher
	subscriber  transport.Subscriber
	transport   transport.Config
	keepMissing bool
	sessionGen  SessionGenerator

	routeFetcher  transport.RouteFetcher
	materializer  *route.Materializer
	routeInterval time.Duration
	cache         *geocache.Cache

	handlers []AlertHandler

	mu        sync.RWMutex // guards features and lastAlert
	features  []route.Feature
	lastAlert *Alert
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithSessionGenerator sets the session ID source. Default: UUIDv7Generator.
func WithSessionGenerator(g SessionGenerator) EngineOption {
	return func(e *Engine) {
		e.sessionGen = g
	}
}

// WithKeepMissing makes snapshots merge instead of replacing the set.
func WithKeepMissing(keep bool) EngineOption {
	return func(e *Engine) {
		e.keepMissing = keep
	}
}

// WithTransportConfig sets supervisor timings. Zero fields keep defaults.
func WithTransportConfig(cfg transport.Config) EngineOption {
	return func(e *Engine) {
		e.transport = cfg
	}
}

// WithRoutes enables the route refresher. interval <= 0 uses
// DefaultRouteInterval.
func WithRoutes(fetcher transport.RouteFetcher, m *route.Materializer, interval time.Duration) EngineOption {
	return func(e *Engine) {
		e.routeFetcher = fetcher
		e.materializer = m
		if interval > 0 {
			e.routeInterval = interval
		}
	}
}

// WithCache flushes c after every route refresh and on shutdown.
func WithCache(c *geocache.Cache) EngineOption {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithAlertHandler registers a handler for new-incident events.
func WithAlertHandler(h AlertHandler) EngineOption {
	return func(e *Engine) {
		e.handlers = append(e.handlers, h)
	}
}

// WithNow sets the wall clock used to stamp alerts.
func WithNow(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine drawing on surface. subscriber may be nil, in which
// case the engine only polls.
func New(surface render.Surface, fetcher transport.Fetcher, subscriber transport.Subscriber, opts ...EngineOption) *Engine {
	e := &Engine{
		clock:         NewClock(),
		queue:         newEventQueue(),
		surface:       surface,
		fetcher:       fetcher,
		subscriber:    subscriber,
		transport:     transport.DefaultConfig(),
		sessionGen:    UUIDv7Generator{},
		routeInterval: DefaultRouteInterval,
		logger:        slog.Default(),
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.transport.FetchTimeout <= 0 {
		e.transport.FetchTimeout = transport.DefaultConfig().FetchTimeout
	}
	e.session = e.sessionGen.Generate()
	e.logger = e.logger.With("session", e.session)
	e.reconciler = reconcile.New(reconcile.WithKeepMissing(e.keepMissing))
	e.reconciler.OnNewIncident(e.alert)
	e.markers = render.NewMarkers(surface)
	e.supervisor = transport.NewSupervisor(fetcher, subscriber, sink{e},
		transport.WithConfig(e.transport),
		transport.WithGenerations(e.clock.Next),
		transport.WithSupervisorLogger(e.logger),
	)

	return e
}

// Session returns the engine's session ID.
func (e *Engine) Session() string {
	return e.session
}

// Enqueue adds an event to the queue. Returns false once the engine has
// stopped.
func (e *Engine) Enqueue(event Event) bool {
	return e.queue.Enqueue(event)
}

// Select asks the loop to highlight the route for assetID.
func (e *Engine) Select(assetID string) bool {
	return e.queue.Enqueue(Event{Type: EventTypeSelect, AssetID: assetID})
}

// ClearSelection asks the loop to remove any route highlight.
func (e *Engine) ClearSelection() bool {
	return e.queue.Enqueue(Event{Type: EventTypeSelect})
}

// Run starts the transport supervisor and the route refresher and
// processes events until ctx is cancelled or Stop is called.
//
// Event errors are logged and processing continues.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting",
		"keep_missing", e.keepMissing,
		"push", e.subscriber != nil,
		"routes", e.routeFetcher != nil,
	)

	if err := e.supervisor.Start(ctx, e.postTransport); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}

	rctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		e.shutdown()
	}()

	if e.routeFetcher != nil && e.materializer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.refreshRoutes(rctx)
		}()
	}

	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			if err := e.processEvent(event); err != nil {
				e.logEventError(event, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel is closed with the queue; drain first.
			if e.queue.Closed() && e.queue.Len() == 0 {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the event queue, which causes Run to return.
func (e *Engine) Stop() {
	e.queue.Close()
}

// shutdown stops the transport, releases subscriptions still sitting in
// the queue and persists the geocode cache.
func (e *Engine) shutdown() {
	e.queue.Close()
	e.supervisor.Stop()
	for {
		event, ok := e.queue.TryDequeue()
		if !ok {
			break
		}
		if event.Type == EventTypeTransport && event.Transport != nil {
			e.supervisor.Handle(*event.Transport)
		}
	}

	if e.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		_ = e.cache.Flush(ctx) // Flush logs its own failure
	}
	e.logger.Info("engine stopped")
}

func (e *Engine) postTransport(ev transport.Event) bool {
	return e.queue.Enqueue(Event{Type: EventTypeTransport, Transport: &ev})
}

// processEvent routes an event to the appropriate handler.
// Called only from the Run goroutine.
func (e *Engine) processEvent(event Event) error {
	switch event.Type {
	case EventTypeTransport:
		if event.Transport == nil {
			return fmt.Errorf("transport event missing payload")
		}
		e.supervisor.Handle(*event.Transport)
		return nil

	case EventTypeRoutes:
		e.drawRoutes(event.Routes)
		return nil

	case EventTypeSelect:
		return e.selectRoute(event.AssetID)

	default:
		return fmt.Errorf("unknown event type: %d", event.Type)
	}
}

func (e *Engine) drawRoutes(features []route.Feature) {
	e.mu.Lock()
	e.features = features
	e.mu.Unlock()

	e.surface.DrawRoutes(route.Collection(features))
	metrics.RoutesRendered.Set(float64(len(features)))
	e.logger.Info("routes drawn", "count", len(features))
}

func (e *Engine) selectRoute(assetID string) error {
	if assetID == "" {
		route.ClearSelection(e.surface)
		return nil
	}

	e.mu.RLock()
	features := e.features
	e.mu.RUnlock()

	summary, ok := route.Select(e.surface, features, assetID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRoute, assetID)
	}
	e.logger.Debug("route selected",
		"asset_id", summary.AssetID,
		"from", summary.From,
		"to", summary.To,
	)
	return nil
}

// refreshRoutes fetches and materializes routes now and then every
// routeInterval. Runs on its own goroutine; results reach the loop as
// events.
func (e *Engine) refreshRoutes(ctx context.Context) {
	e.refreshOnce(ctx)

	ticker := time.NewTicker(e.routeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.refreshOnce(ctx)
		}
	}
}

func (e *Engine) refreshOnce(ctx context.Context) {
	fctx, cancel := context.WithTimeout(ctx, e.transport.FetchTimeout)
	records, err := e.routeFetcher.FetchRoutes(fctx)
	cancel()
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Warn("route fetch failed", "error", err)
		}
		return
	}

	features := e.materializer.Materialize(ctx, records)
	if ctx.Err() != nil {
		return
	}
	if !e.queue.Enqueue(Event{Type: EventTypeRoutes, Routes: features}) {
		return
	}

	if e.cache != nil {
		_ = e.cache.Flush(ctx)
	}
}

// alert is the reconciler's new-incident listener. It runs on the loop.
func (e *Engine) alert(inc incident.Incident) {
	a := Alert{Incident: inc, At: e.now()}

	e.mu.Lock()
	e.lastAlert = &a
	e.mu.Unlock()

	metrics.AlertsTotal.Inc()
	e.logger.Info("new incident",
		"incident_id", inc.ID,
		"location", inc.Location,
		"severity", string(inc.Class()),
	)
	for _, h := range e.handlers {
		h(a)
	}
}

// Incidents returns the current incident set, most recent first.
func (e *Engine) Incidents() []incident.Incident {
	return e.reconciler.CurrentSet()
}

// Routes returns the last drawn route features.
func (e *Engine) Routes() []route.Feature {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]route.Feature, len(e.features))
	copy(out, e.features)
	return out
}

// Route returns the summary of the drawn route for assetID.
func (e *Engine) Route(assetID string) (route.Summary, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	f, ok := route.Find(e.features, assetID)
	if !ok {
		return route.Summary{}, false
	}
	return route.Summarize(f), true
}

// Status reports the engine's current state.
func (e *Engine) Status() Status {
	e.mu.RLock()
	routes := len(e.features)
	var last *Alert
	if e.lastAlert != nil {
		a := *e.lastAlert
		last = &a
	}
	e.mu.RUnlock()

	st := Status{
		Session:   e.session,
		Transport: e.supervisor.State().String(),
		Incidents: e.reconciler.Len(),
		Markers:   e.reconciler.Rendered(),
		Routes:    routes,
		LastAlert: last,
	}
	if e.cache != nil {
		st.CacheEntries = e.cache.Len()
	}
	return st
}

// sink feeds accepted transport data into the reconciler and the surface.
// Called on the loop only, through Supervisor.Handle.
type sink struct {
	e *Engine
}

func (s sink) ApplySnapshot(list []incident.Incident) {
	d := s.e.reconciler.ApplySnapshot(list)
	s.e.markers.Apply(d)
	metrics.IncidentsKnown.Set(float64(s.e.reconciler.Len()))
	s.e.logger.Debug("snapshot applied",
		"received", len(list),
		"added", len(d.Added),
		"updated", len(d.Updated),
		"removed", len(d.Removed),
	)
}

func (s sink) ApplyDelta(inc incident.Incident) {
	d := s.e.reconciler.ApplyDelta(inc)
	s.e.markers.Apply(d)
	metrics.IncidentsKnown.Set(float64(s.e.reconciler.Len()))
	s.e.logger.Debug("delta applied", "incident_id", inc.ID, "renderable", inc.Renderable())
}

// logEventError logs an event processing failure with the event's context.
func (e *Engine) logEventError(event Event, err error) {
	switch event.Type {
	case EventTypeTransport:
		if event.Transport != nil {
			e.logger.Error("transport event failed",
				"error", err,
				"kind", event.Transport.Kind.String(),
				"gen", event.Transport.Gen,
			)
			return
		}
		e.logger.Error("transport event failed", "error", err, "note", "payload was nil")

	case EventTypeSelect:
		e.logger.Warn("route selection failed", "error", err, "asset_id", event.AssetID)

	default:
		e.logger.Error("event processing failed",
			"error", err,
			"event_type", event.Type.String(),
		)
	}
}
