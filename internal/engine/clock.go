package engine

import "sync/atomic"

// Clock hands out transport generations.
//
// Every fetch session, subscription attempt and poll loop is tagged with a
// value from Next; the supervisor discards events whose tag is no longer
// current. Values are strictly increasing and never reused, so a late
// event from a torn-down session can never match a live one.
//
// Safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next generation.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last generation handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
