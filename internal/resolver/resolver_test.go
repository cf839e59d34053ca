package resolver_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/atlas/internal/geocache"
	"github.com/roach88/atlas/internal/geocoder"
	"github.com/roach88/atlas/internal/resolver"
	"github.com/roach88/atlas/internal/testutil"
)

func newResolver(results map[string]testutil.LookupResult) (*resolver.Resolver, *geocache.Cache, *testutil.CountingLookup) {
	cache := geocache.New(nil)
	lookup := testutil.NewCountingLookup(results)
	return resolver.New(cache, lookup), cache, lookup
}

func TestResolve_LiteralLatLon(t *testing.T) {
	r, cache, lookup := newResolver(nil)

	res, ok := r.Resolve(context.Background(), "40,-74")

	require.True(t, ok)
	assert.Equal(t, orb.Point{-74, 40}, res.Point)
	assert.Equal(t, "40,-74", res.Label)
	assert.Equal(t, 0, cache.Len(), "literals are never cached")
	assert.Equal(t, 0, lookup.Total())
}

func TestResolve_LiteralOutOfRangePassesThrough(t *testing.T) {
	r, cache, _ := newResolver(nil)

	res, ok := r.Resolve(context.Background(), " 200,10 ")

	require.True(t, ok)
	assert.Equal(t, orb.Point{200, 10}, res.Point)
	assert.Equal(t, "200,10", res.Label)
	assert.Equal(t, 0, cache.Len())
}

func TestResolve_EmptyToken(t *testing.T) {
	r, cache, lookup := newResolver(nil)

	_, ok := r.Resolve(context.Background(), "   ")

	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, 0, lookup.Total())
}

func TestResolve_SameTokenLookedUpOnce(t *testing.T) {
	r, cache, lookup := newResolver(map[string]testutil.LookupResult{
		"Port of Rotterdam": {
			Match: geocoder.Match{Point: orb.Point{4.4, 51.9}, PlaceName: "Rotterdam, Netherlands", Text: "Rotterdam"},
			Found: true,
		},
	})
	ctx := context.Background()

	first, ok := r.Resolve(ctx, "Port of Rotterdam")
	require.True(t, ok)
	second, ok := r.Resolve(ctx, "Port of Rotterdam")
	require.True(t, ok)

	assert.Equal(t, first, second)
	assert.Equal(t, "Rotterdam, Netherlands", first.Label)
	assert.Equal(t, 1, lookup.Calls("Port of Rotterdam"))
	assert.Equal(t, 1, cache.Len())
}

func TestResolve_TrimmedTokenIsCacheKey(t *testing.T) {
	r, cache, lookup := newResolver(map[string]testutil.LookupResult{
		"Hamburg": {Match: geocoder.Match{Point: orb.Point{10, 53.5}, Text: "Hamburg"}, Found: true},
	})
	ctx := context.Background()

	r.Resolve(ctx, "Hamburg")
	res, ok := r.Resolve(ctx, "  Hamburg ")

	require.True(t, ok)
	assert.Equal(t, "Hamburg", res.Label, "text is used when place name is empty")
	assert.Equal(t, 1, lookup.Total())
	assert.Equal(t, 1, cache.Len())
}

func TestResolve_LabelFallsBackToToken(t *testing.T) {
	r, _, _ := newResolver(map[string]testutil.LookupResult{
		"Depot 7": {Match: geocoder.Match{Point: orb.Point{1, 2}}, Found: true},
	})

	res, ok := r.Resolve(context.Background(), "Depot 7")

	require.True(t, ok)
	assert.Equal(t, "Depot 7", res.Label)
}

func TestResolve_NegativeMemoized(t *testing.T) {
	r, cache, lookup := newResolver(nil)
	ctx := context.Background()

	_, ok := r.Resolve(ctx, "Nowhereville")
	require.False(t, ok)

	for i := 0; i < 100; i++ {
		_, ok := r.Resolve(ctx, "Nowhereville")
		require.False(t, ok)
	}

	assert.Equal(t, 1, lookup.Calls("Nowhereville"))
	e, ok := cache.Get("Nowhereville")
	require.True(t, ok)
	assert.True(t, e.Negative)
}

func TestResolve_LookupErrorBecomesNegative(t *testing.T) {
	r, cache, lookup := newResolver(map[string]testutil.LookupResult{
		"Hamburg": {Err: &geocoder.StatusError{Provider: "fake", Status: "500"}},
	})
	ctx := context.Background()

	_, ok := r.Resolve(ctx, "Hamburg")
	assert.False(t, ok)
	_, ok = r.Resolve(ctx, "Hamburg")
	assert.False(t, ok)

	assert.Equal(t, 1, lookup.Total())
	assert.Equal(t, geocache.Stats{Negative: 1}, cache.Stats())
}

func TestResolve_CancelledContextNotCached(t *testing.T) {
	r, cache, _ := newResolver(map[string]testutil.LookupResult{
		"Hamburg": {Err: errors.New("context canceled")},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := r.Resolve(ctx, "Hamburg")

	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestResolve_NilLookup(t *testing.T) {
	cache := geocache.New(nil)
	r := resolver.New(cache, nil, resolver.WithTimeout(time.Second))

	_, ok := r.Resolve(context.Background(), "Hamburg")

	assert.False(t, ok)
	assert.Equal(t, geocache.Stats{Negative: 1}, cache.Stats())
}

func TestResolve_ExpiredNegativeLooksUpAgain(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	cache := geocache.New(nil, geocache.WithNegativeTTL(time.Hour), geocache.WithNow(func() time.Time { return now }))
	lookup := testutil.NewCountingLookup(nil)
	r := resolver.New(cache, lookup)
	ctx := context.Background()

	r.Resolve(ctx, "Nowhereville")
	r.Resolve(ctx, "Nowhereville")
	require.Equal(t, 1, lookup.Total())

	now = now.Add(2 * time.Hour)
	r.Resolve(ctx, "Nowhereville")
	assert.Equal(t, 2, lookup.Total())
}
