package engine

import (
	"sync"

	"github.com/roach88/atlas/internal/route"
	"github.com/roach88/atlas/internal/transport"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypeTransport carries a supervisor event (fetch, push, subscribe outcome).
	EventTypeTransport EventType = iota + 1
	// EventTypeRoutes carries freshly materialized route features.
	EventTypeRoutes
	// EventTypeSelect selects a route by asset ID; an empty ID clears the selection.
	EventTypeSelect
)

func (t EventType) String() string {
	switch t {
	case EventTypeTransport:
		return "transport"
	case EventTypeRoutes:
		return "routes"
	case EventTypeSelect:
		return "select"
	default:
		return "unknown"
	}
}

// Event wraps everything the loop consumes.
type Event struct {
	Type      EventType
	Transport *transport.Event
	Routes    []route.Feature
	AssetID   string
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded: supervisor goroutines, the route refresher and
// HTTP handlers enqueue without blocking while the Run loop dequeues.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Event{}, false) if queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Release the slot so route slices and subscriptions can be collected.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// The channel is closed once the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more events will be enqueued and wakes any waiter.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
