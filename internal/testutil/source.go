package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/atlas/internal/incident"
	"github.com/roach88/atlas/internal/route"
	"github.com/roach88/atlas/internal/transport"
)

// ErrScripted is the error returned by scripted failures.
var ErrScripted = errors.New("scripted failure")

// FakeSource is an in-memory backend: a snapshot fetcher, a route fetcher
// and a push subscriber whose behaviour tests can change at any time.
//
// Thread-safety: all methods are safe for concurrent use.
type FakeSource struct {
	mu             sync.Mutex
	snapshot       []incident.Incident
	fetchErr       error
	fetchCalls     int
	routes         []route.Record
	routesErr      error
	subscribeErr   error
	subscribeCalls int
	subs           []*FakeSubscription
}

var (
	_ transport.Fetcher      = (*FakeSource)(nil)
	_ transport.RouteFetcher = (*FakeSource)(nil)
	_ transport.Subscriber   = (*FakeSource)(nil)
)

// NewFakeSource creates a source serving snapshot.
func NewFakeSource(snapshot ...incident.Incident) *FakeSource {
	return &FakeSource{snapshot: snapshot}
}

// SetSnapshot replaces the served snapshot.
func (f *FakeSource) SetSnapshot(list ...incident.Incident) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = list
}

// FailFetch makes fetches fail with err; nil restores them.
func (f *FakeSource) FailFetch(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

// FailSubscribe makes subscribes fail with err; nil restores them.
func (f *FakeSource) FailSubscribe(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeErr = err
}

// SetRoutes sets the served route records.
func (f *FakeSource) SetRoutes(records ...route.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = records
}

// FailRoutes makes route fetches fail with err.
func (f *FakeSource) FailRoutes(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routesErr = err
}

// FetchSnapshot returns the current snapshot.
func (f *FakeSource) FetchSnapshot(ctx context.Context) (transport.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return transport.Snapshot{}, f.fetchErr
	}
	return transport.Snapshot{Incidents: append([]incident.Incident(nil), f.snapshot...)}, nil
}

// FetchRoutes returns the route records.
func (f *FakeSource) FetchRoutes(ctx context.Context) ([]route.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.routesErr != nil {
		return nil, f.routesErr
	}
	return append([]route.Record(nil), f.routes...), nil
}

// Subscribe opens a fake subscription.
func (f *FakeSource) Subscribe(ctx context.Context, h transport.Handler) (transport.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeCalls++
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	sub := &FakeSubscription{handler: h}
	f.subs = append(f.subs, sub)
	return sub, nil
}

// Push delivers inc to every live subscription and returns how many
// received it.
func (f *FakeSource) Push(inc incident.Incident) int {
	n := 0
	for _, sub := range f.live() {
		if sub.deliver(inc) {
			n++
		}
	}
	return n
}

// BreakPush signals a transport error on every live subscription.
func (f *FakeSource) BreakPush(err error) {
	for _, sub := range f.live() {
		sub.fail(err)
	}
}

func (f *FakeSource) live() []*FakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*FakeSubscription
	for _, sub := range f.subs {
		if sub.Active() {
			out = append(out, sub)
		}
	}
	return out
}

// ActiveSubscriptions counts subscriptions not yet ended.
func (f *FakeSource) ActiveSubscriptions() int {
	return len(f.live())
}

// FetchCalls returns the number of snapshot fetches.
func (f *FakeSource) FetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

// SubscribeCalls returns the number of subscribe attempts.
func (f *FakeSource) SubscribeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribeCalls
}

// FakeSubscription is a subscription opened on a FakeSource.
type FakeSubscription struct {
	mu      sync.Mutex
	handler transport.Handler
	ended   bool
}

// Unsubscribe ends the subscription.
func (s *FakeSubscription) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
}

// Active reports whether the subscription can still deliver.
func (s *FakeSubscription) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.ended
}

func (s *FakeSubscription) deliver(inc incident.Incident) bool {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return false
	}
	h := s.handler
	s.mu.Unlock()
	if h.OnIncident != nil {
		h.OnIncident(inc)
	}
	return true
}

func (s *FakeSubscription) fail(err error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	h := s.handler
	s.mu.Unlock()
	if h.OnError != nil {
		h.OnError(err)
	}
}
