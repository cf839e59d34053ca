// Package transport obtains incidents from the backend.
//
// Sources fetch snapshots and routes over GraphQL HTTP; subscribers deliver
// push deltas over a websocket. The Supervisor decides which of push and
// polling is active and never runs both.
package transport

import (
	"context"
	"errors"

	"github.com/roach88/atlas/internal/incident"
	"github.com/roach88/atlas/internal/route"
)

// ErrStopped is returned when an operation is attempted on a stopped
// supervisor or a closed subscription.
var ErrStopped = errors.New("transport: stopped")

// ErrCompleted reports that the server ended a subscription.
var ErrCompleted = errors.New("transport: subscription completed by server")

// Snapshot is one page of the incident listing. NextToken is surfaced but
// never followed.
type Snapshot struct {
	Incidents []incident.Incident
	NextToken string
}

// Fetcher fetches incident snapshots.
type Fetcher interface {
	FetchSnapshot(ctx context.Context) (Snapshot, error)
}

// RouteFetcher fetches route records.
type RouteFetcher interface {
	FetchRoutes(ctx context.Context) ([]route.Record, error)
}

// Handler receives push traffic. OnError is called at most once, after
// which the subscription delivers nothing more.
type Handler struct {
	OnIncident func(incident.Incident)
	OnError    func(error)
}

// Subscription is an active push session.
type Subscription interface {
	// Unsubscribe ends the session. Safe to call more than once.
	Unsubscribe()
}

// Subscriber opens push sessions. Subscribe returns once the server has
// accepted the subscription.
type Subscriber interface {
	Subscribe(ctx context.Context, h Handler) (Subscription, error)
}
