package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/atlas/internal/incident"
	"github.com/roach88/atlas/internal/metrics"
)

// State is the supervisor's transport mode.
type State int32

const (
	// StateIdle is the state before the first subscribe outcome.
	StateIdle State = iota
	StatePushing
	StatePolling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePushing:
		return "pushing"
	case StatePolling:
		return "polling"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// EventKind distinguishes supervisor events.
type EventKind int

const (
	// EventSnapshot carries a fetched snapshot (initial or poll).
	EventSnapshot EventKind = iota + 1
	// EventFetchFailed reports a failed snapshot fetch.
	EventFetchFailed
	// EventSubscribed carries an established subscription.
	EventSubscribed
	// EventSubscribeFailed reports a failed initial subscribe.
	EventSubscribeFailed
	// EventDelta carries one pushed incident.
	EventDelta
	// EventPushFailed reports a transport error on a subscription.
	EventPushFailed
)

func (k EventKind) String() string {
	switch k {
	case EventSnapshot:
		return "snapshot"
	case EventFetchFailed:
		return "fetch_failed"
	case EventSubscribed:
		return "subscribed"
	case EventSubscribeFailed:
		return "subscribe_failed"
	case EventDelta:
		return "delta"
	case EventPushFailed:
		return "push_failed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is produced by supervisor goroutines and consumed by Handle on the
// engine loop. Gen identifies the session that produced it.
type Event struct {
	Kind     EventKind
	Gen      int64
	Snapshot Snapshot
	Incident incident.Incident
	Sub      Subscription
	Err      error
}

// Sink receives accepted incident data.
type Sink interface {
	ApplySnapshot(list []incident.Incident)
	ApplyDelta(inc incident.Incident)
}

// Config holds supervisor timings.
type Config struct {
	PollInterval       time.Duration
	FetchTimeout       time.Duration
	SubscribeTimeout   time.Duration
	ResubscribeInitial time.Duration
	ResubscribeMax     time.Duration
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		PollInterval:       10 * time.Second,
		FetchTimeout:       10 * time.Second,
		SubscribeTimeout:   15 * time.Second,
		ResubscribeInitial: 2 * time.Second,
		ResubscribeMax:     time.Minute,
	}
}

var errNoSubscriber = errors.New("transport: no subscriber configured")

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithConfig sets the timings. Zero fields keep their defaults.
func WithConfig(cfg Config) SupervisorOption {
	return func(s *Supervisor) {
		def := s.cfg
		if cfg.PollInterval > 0 {
			def.PollInterval = cfg.PollInterval
		}
		if cfg.FetchTimeout > 0 {
			def.FetchTimeout = cfg.FetchTimeout
		}
		if cfg.SubscribeTimeout > 0 {
			def.SubscribeTimeout = cfg.SubscribeTimeout
		}
		if cfg.ResubscribeInitial > 0 {
			def.ResubscribeInitial = cfg.ResubscribeInitial
		}
		if cfg.ResubscribeMax > 0 {
			def.ResubscribeMax = cfg.ResubscribeMax
		}
		s.cfg = def
	}
}

// WithGenerations sets the generation source. The engine passes its clock.
func WithGenerations(next func() int64) SupervisorOption {
	return func(s *Supervisor) {
		s.nextGen = next
	}
}

// WithSupervisorLogger sets the logger.
func WithSupervisorLogger(l *slog.Logger) SupervisorOption {
	return func(s *Supervisor) {
		s.logger = l
	}
}

// Supervisor keeps exactly one of push and polling active.
//
// Start, Handle and Stop must be called from one goroutine (the engine
// loop); the goroutines the supervisor spawns only post events. State is
// safe to read from any goroutine.
//
// INVARIANTS:
//   - At most one poll loop and at most one live subscription.
//   - Entering Pushing cancels polling and resubscription.
//   - Events whose generation is not current are discarded.
//   - Deltas reach the sink only from the accepted subscription. Deltas from
//     a subscription still pending are held and applied, in order, right
//     after it is accepted and polling has stopped.
type Supervisor struct {
	fetcher    Fetcher
	subscriber Subscriber
	sink       Sink
	cfg        Config
	nextGen    func() int64
	logger     *slog.Logger

	state   atomic.Int32
	started bool
	post    func(Event) bool
	ctx     context.Context
	cancel  context.CancelFunc

	startGen   int64
	pendingGen int64 // subscribe attempt in flight
	deadGen    int64 // pending subscription that failed before it was accepted
	pushGen    int64
	pollGen    int64
	held       []incident.Incident // deltas from pendingGen
	sub        Subscription
	stopPoll   context.CancelFunc
	stopResub  context.CancelFunc
}

// NewSupervisor creates a supervisor. subscriber may be nil, which leaves
// the supervisor polling.
func NewSupervisor(fetcher Fetcher, subscriber Subscriber, sink Sink, opts ...SupervisorOption) *Supervisor {
	var gen atomic.Int64
	s := &Supervisor{
		fetcher:    fetcher,
		subscriber: subscriber,
		sink:       sink,
		cfg:        DefaultConfig(),
		nextGen:    func() int64 { return gen.Add(1) },
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Start fetches the initial snapshot and then attempts to subscribe. post
// delivers events back to the caller's loop; it returns false once the loop
// no longer accepts events.
func (s *Supervisor) Start(ctx context.Context, post func(Event) bool) error {
	if s.State() == StateStopped {
		return ErrStopped
	}
	if s.started {
		return errors.New("transport: supervisor already started")
	}
	s.started = true
	s.post = post
	s.ctx, s.cancel = context.WithCancel(ctx)

	gen := s.nextGen()
	s.startGen = gen
	s.pendingGen = gen
	go s.initial(s.ctx, gen)
	return nil
}

func (s *Supervisor) initial(ctx context.Context, gen int64) {
	snap, err := s.fetch(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.post(Event{Kind: EventFetchFailed, Gen: gen, Err: err})
		return
	}
	if !s.post(Event{Kind: EventSnapshot, Gen: gen, Snapshot: snap}) {
		return
	}

	if s.subscriber == nil {
		s.post(Event{Kind: EventSubscribeFailed, Gen: gen, Err: errNoSubscriber})
		return
	}
	sub, err := s.subscribe(ctx, gen)
	if err != nil {
		s.post(Event{Kind: EventSubscribeFailed, Gen: gen, Err: err})
		return
	}
	if !s.post(Event{Kind: EventSubscribed, Gen: gen, Sub: sub}) {
		sub.Unsubscribe()
	}
}

// Handle applies one event. Called on the engine loop only.
func (s *Supervisor) Handle(ev Event) {
	if s.State() == StateStopped {
		s.discard(ev)
		return
	}

	switch ev.Kind {
	case EventSnapshot:
		initial := ev.Gen == s.startGen
		polled := ev.Gen == s.pollGen && s.State() == StatePolling
		if !initial && !polled {
			s.discard(ev)
			return
		}
		metrics.SnapshotFetches.WithLabelValues("ok").Inc()
		s.sink.ApplySnapshot(ev.Snapshot.Incidents)

	case EventFetchFailed:
		metrics.SnapshotFetches.WithLabelValues("error").Inc()
		s.logger.Warn("snapshot fetch failed", "gen", ev.Gen, "error", ev.Err)
		if ev.Gen == s.startGen && s.State() == StateIdle {
			s.enterPolling("initial fetch failed")
		}

	case EventSubscribed:
		if ev.Gen == s.deadGen {
			ev.Sub.Unsubscribe()
			s.deadGen = 0
			s.subscribeFailed(ev.Gen, "subscription failed before activation")
			return
		}
		if ev.Gen != s.pendingGen {
			s.discard(ev)
			return
		}
		s.stopPolling()
		s.sub = ev.Sub
		s.pushGen = ev.Gen
		s.pendingGen = 0
		s.transition(StatePushing, "subscribed")
		held := s.held
		s.held = nil
		for _, inc := range held {
			metrics.PushDeltas.Inc()
			s.sink.ApplyDelta(inc)
		}

	case EventSubscribeFailed:
		if ev.Gen != s.pendingGen || s.State() != StateIdle {
			s.discard(ev)
			return
		}
		s.logger.Warn("subscribe failed", "gen", ev.Gen, "error", ev.Err)
		s.subscribeFailed(ev.Gen, "subscribe failed")

	case EventDelta:
		if ev.Gen == s.pushGen && s.State() == StatePushing {
			metrics.PushDeltas.Inc()
			s.sink.ApplyDelta(ev.Incident)
			return
		}
		if ev.Gen != 0 && ev.Gen == s.pendingGen && ev.Gen != s.deadGen {
			s.held = append(s.held, ev.Incident)
			return
		}
		s.discard(ev)

	case EventPushFailed:
		if ev.Gen == s.pendingGen {
			s.deadGen = ev.Gen
			s.held = nil
			return
		}
		if ev.Gen != s.pushGen || s.State() != StatePushing {
			s.discard(ev)
			return
		}
		s.logger.Warn("push transport error", "gen", ev.Gen, "error", ev.Err)
		if s.sub != nil {
			s.sub.Unsubscribe()
			s.sub = nil
		}
		s.pushGen = 0
		s.enterPolling("push transport error")

	default:
		s.logger.Error("unknown transport event", "kind", ev.Kind)
	}
}

// subscribeFailed falls back to polling, or restarts resubscription when
// already polling.
func (s *Supervisor) subscribeFailed(gen int64, reason string) {
	if gen == s.pendingGen {
		s.pendingGen = 0
		s.held = nil
	}
	if s.State() == StatePolling {
		s.startResubscribe()
		return
	}
	s.enterPolling(reason)
}

// Stop cancels polling and resubscription and closes the subscription.
// Idempotent.
func (s *Supervisor) Stop() {
	if s.State() == StateStopped {
		return
	}
	s.transition(StateStopped, "stop")
	s.stopPolling()
	if s.cancel != nil {
		s.cancel()
	}
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
	s.pushGen = 0
	s.pendingGen = 0
	s.held = nil
}

func (s *Supervisor) enterPolling(reason string) {
	s.transition(StatePolling, reason)

	s.pollGen = s.nextGen()
	pctx, cancel := context.WithCancel(s.ctx)
	s.stopPoll = cancel
	go s.pollLoop(pctx, s.pollGen)

	s.startResubscribe()
}

func (s *Supervisor) startResubscribe() {
	if s.subscriber == nil {
		return
	}
	if s.stopResub != nil {
		s.stopResub()
	}
	gen := s.nextGen()
	s.pendingGen = gen
	s.held = nil
	rctx, cancel := context.WithCancel(s.ctx)
	s.stopResub = cancel
	go s.resubscribeLoop(rctx, gen)
}

// stopPolling cancels the poll loop and any resubscription in flight.
func (s *Supervisor) stopPolling() {
	if s.stopPoll != nil {
		s.stopPoll()
		s.stopPoll = nil
	}
	if s.stopResub != nil {
		s.stopResub()
		s.stopResub = nil
	}
	s.pollGen = 0
}

func (s *Supervisor) pollLoop(ctx context.Context, gen int64) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := s.fetch(ctx)
			if ctx.Err() != nil {
				return
			}
			ev := Event{Kind: EventSnapshot, Gen: gen, Snapshot: snap}
			if err != nil {
				ev = Event{Kind: EventFetchFailed, Gen: gen, Err: err}
			}
			if !s.post(ev) {
				return
			}
		}
	}
}

func (s *Supervisor) resubscribeLoop(ctx context.Context, gen int64) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.ResubscribeInitial
	b.MaxInterval = s.cfg.ResubscribeMax
	b.MaxElapsedTime = 0

	var sub Subscription
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		next, err := s.subscribe(ctx, gen)
		if err != nil {
			return err
		}
		sub = next
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.logger.Debug("resubscribe failed", "gen", gen, "error", err, "retry_in", wait)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return
	}
	if ctx.Err() != nil || !s.post(Event{Kind: EventSubscribed, Gen: gen, Sub: sub}) {
		sub.Unsubscribe()
	}
}

func (s *Supervisor) fetch(ctx context.Context) (Snapshot, error) {
	fctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()
	return s.fetcher.FetchSnapshot(fctx)
}

func (s *Supervisor) subscribe(ctx context.Context, gen int64) (Subscription, error) {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.SubscribeTimeout)
	defer cancel()
	return s.subscriber.Subscribe(sctx, Handler{
		OnIncident: func(inc incident.Incident) {
			s.post(Event{Kind: EventDelta, Gen: gen, Incident: inc})
		},
		OnError: func(err error) {
			s.post(Event{Kind: EventPushFailed, Gen: gen, Err: err})
		},
	})
}

func (s *Supervisor) transition(to State, reason string) {
	from := s.State()
	s.state.Store(int32(to))
	metrics.TransportTransitions.WithLabelValues(to.String()).Inc()
	s.logger.Info("transport state", "from", from.String(), "to", to.String(), "reason", reason)
}

func (s *Supervisor) discard(ev Event) {
	metrics.StaleEvents.Inc()
	if ev.Kind == EventSubscribed && ev.Sub != nil {
		ev.Sub.Unsubscribe()
	}
	s.logger.Debug("discarding stale transport event", "kind", ev.Kind.String(), "gen", ev.Gen)
}
