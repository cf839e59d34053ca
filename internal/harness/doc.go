// Package harness runs YAML scenarios against the reconciliation and route
// pipeline and compares their traces with golden files.
//
// A scenario drives the same components the engine wires together (the
// reconciler, the marker adapter over an in-memory surface, the waypoint
// resolver over a geocode cache and a scripted lookup, and the route
// materializer) but calls them directly, one step at a time, so traces are
// fully deterministic. Transport concerns (push vs polling, generations)
// are covered by the transport and engine package tests instead.
//
// Every effect a step has is appended to the trace in the order it
// happened:
//
//	add A (-74,40.7) #d32f2f      marker created
//	move A (-74.01,40.71)         marker moved in place
//	detail A #d32f2f "Main St"    marker popup replaced
//	remove C                      marker removed
//	alert C                       new-incident event
//	lookup Albany                 external geocoder call
//	routes 2                      routes layer redrawn
//	highlight bus-1               route selected
//	fit (-74,40) (-73,41)         viewport fitted
//	advance 25h0m0s               wall clock moved
//	purge 1                       negative cache entries dropped
package harness
