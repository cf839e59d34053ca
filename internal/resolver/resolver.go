// Package resolver turns waypoint tokens into coordinates.
//
// Resolution order is literal coordinates, then the geocode cache, then one
// external lookup. Lookup failures are never returned to the caller; they
// become negative cache entries so the same token is not looked up again.
package resolver

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/roach88/atlas/internal/geo"
	"github.com/roach88/atlas/internal/geocache"
	"github.com/roach88/atlas/internal/geocoder"
)

// DefaultTimeout bounds a single external lookup.
const DefaultTimeout = 5 * time.Second

// Resolution is a resolved waypoint.
type Resolution struct {
	Point orb.Point
	Label string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTimeout sets the per-lookup timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// Resolver resolves waypoint tokens through the cache and a Lookup.
//
// Thread-safety: Resolve is safe for concurrent use, but the route
// refresher calls it sequentially so each token is looked up at most once.
type Resolver struct {
	cache   *geocache.Cache
	lookup  geocoder.Lookup
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a resolver. lookup may be nil, in which case every uncached
// token resolves negatively.
func New(cache *geocache.Cache, lookup geocoder.Lookup, opts ...Option) *Resolver {
	r := &Resolver{
		cache:   cache,
		lookup:  lookup,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the coordinate and display label for token.
func (r *Resolver) Resolve(ctx context.Context, token string) (Resolution, bool) {
	s := strings.TrimSpace(token)
	if s == "" {
		return Resolution{}, false
	}

	if p, ok := geo.ParseLiteral(s); ok {
		return Resolution{Point: p, Label: s}, true
	}

	if e, ok := r.cache.Get(s); ok {
		if e.Negative {
			return Resolution{}, false
		}
		return Resolution{Point: e.Point, Label: e.Label}, true
	}

	if r.lookup == nil {
		r.cache.Put(s, geocache.NegativeEntry())
		return Resolution{}, false
	}

	lctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	match, found, err := r.lookup.Lookup(lctx, s)
	if err != nil {
		if ctx.Err() != nil {
			// Shutting down; leave the token for the next session.
			return Resolution{}, false
		}
		r.logger.Debug("geocode lookup failed", "token", s, "provider", r.lookup.Provider(), "error", err)
		r.cache.Put(s, geocache.NegativeEntry())
		return Resolution{}, false
	}
	if !found {
		r.logger.Debug("geocode lookup found nothing", "token", s, "provider", r.lookup.Provider())
		r.cache.Put(s, geocache.NegativeEntry())
		return Resolution{}, false
	}

	label := match.PlaceName
	if label == "" {
		label = match.Text
	}
	if label == "" {
		label = s
	}
	r.cache.Put(s, geocache.Positive(match.Point, label))
	return Resolution{Point: match.Point, Label: label}, true
}
