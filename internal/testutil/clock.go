package testutil

import (
	"sync"
	"time"
)

// Epoch is the wall time a DeterministicClock starts at.
var Epoch = time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a test clock with two hands: a logical sequence
// (trace ordering, transport generations) and a wall time that only moves
// when Advance is called (cache stamps, negative-entry expiry).
//
// Unlike engine.Clock it can be reset for test reuse.
//
// Thread-safety: All methods are safe for concurrent use.
type DeterministicClock struct {
	mu      sync.Mutex
	seq     int64
	elapsed time.Duration
}

// NewDeterministicClock creates a clock at sequence 0 and wall time Epoch.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next increments and returns the sequence. The first call returns 1.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the sequence without incrementing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Now returns the wall time. It has the signature of time.Now.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Epoch.Add(c.elapsed)
}

// Advance moves the wall time forward by d. The sequence is unaffected.
func (c *DeterministicClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elapsed += d
}

// Reset returns both hands to their starting positions.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
	c.elapsed = 0
}
