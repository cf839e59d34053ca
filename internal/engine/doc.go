// Package engine runs the incident and route sync loop.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// All state changes happen on the goroutine that calls Engine.Run. Snapshot
// fetches, push deltas, subscribe outcomes, poll ticks, route refreshes and
// route selections arrive as events on a FIFO queue and are applied one at
// a time, so a transport state change is atomic relative to the loop.
//
// Event Processing Flow:
//  1. Supervisor goroutines and the route refresher enqueue events
//  2. Run dequeues events one at a time
//  3. Transport events go through Supervisor.Handle, which drops stale
//     generations and forwards accepted data to the reconciler
//  4. The reconciler's diff is applied to the marker surface
//  5. Route events redraw the route layer
//
// Generations:
// The engine's Clock hands out transport generations. A generation is
// attached to every fetch, subscription and poll loop; events carrying a
// superseded generation are discarded, which is how in-flight work from a
// torn-down session is cancelled.
//
// Readers (the HTTP surface) use Incidents, Routes, Route and Status, which
// take their own locks and never touch loop-owned state.
package engine
