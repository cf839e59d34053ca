package testutil

import (
	"context"
	"sync"

	"github.com/roach88/atlas/internal/geocoder"
)

// LookupResult is a scripted geocoder answer.
type LookupResult struct {
	Match geocoder.Match
	Found bool
	Err   error
}

// CountingLookup is a geocoder.Lookup that answers from a script and counts
// calls per query. Queries missing from the script find nothing.
//
// Thread-safety: all methods are safe for concurrent use.
type CountingLookup struct {
	mu      sync.Mutex
	results map[string]LookupResult
	calls   map[string]int
	total   int
}

var _ geocoder.Lookup = (*CountingLookup)(nil)

// NewCountingLookup creates a lookup answering from results.
func NewCountingLookup(results map[string]LookupResult) *CountingLookup {
	if results == nil {
		results = map[string]LookupResult{}
	}
	return &CountingLookup{results: results, calls: map[string]int{}}
}

// Provider returns "fake".
func (l *CountingLookup) Provider() string { return "fake" }

// Lookup returns the scripted result for query.
func (l *CountingLookup) Lookup(ctx context.Context, query string) (geocoder.Match, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[query]++
	l.total++
	r := l.results[query]
	return r.Match, r.Found, r.Err
}

// Calls returns how many times query was looked up.
func (l *CountingLookup) Calls(query string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[query]
}

// Total returns the number of lookups.
func (l *CountingLookup) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}
