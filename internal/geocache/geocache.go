// Package geocache is the persistent waypoint geocode cache.
//
// The cache maps a trimmed free-text token to either a resolved coordinate
// with its display label or a negative entry recording that the token could
// not be resolved. Entries are never evicted. Persistence is delegated to a
// Backend; the cache itself is always served from memory.
//
// INVARIANTS:
//   - Literal-coordinate tokens are never stored.
//   - Load and Flush never fail the caller: corrupt or missing data loads as
//     an empty cache and failed saves are logged.
package geocache

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/roach88/atlas/internal/geo"
	"github.com/roach88/atlas/internal/metrics"
)

// Entry is one cached resolution.
type Entry struct {
	Point    orb.Point
	Label    string
	Negative bool
	CachedAt time.Time
}

// Positive creates a resolved entry.
func Positive(p orb.Point, label string) Entry {
	return Entry{Point: p, Label: label}
}

// NegativeEntry creates a tombstone for an unresolvable token.
func NegativeEntry() Entry {
	return Entry{Negative: true}
}

// Backend persists the whole cache mapping.
type Backend interface {
	// Load returns the persisted mapping. A missing store is an empty
	// mapping, not an error.
	Load(ctx context.Context) (map[string]Entry, error)
	// Save replaces the persisted mapping with entries.
	Save(ctx context.Context, entries map[string]Entry) error
}

// Stats summarizes the cache contents. Expired counts the negative entries
// older than the negative TTL; they are included in Negative.
type Stats struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Expired  int `json:"expired"`
}

// Option configures a Cache.
type Option func(*Cache)

// WithNegativeTTL lets negative entries older than ttl read as absent so the
// token is looked up again. Zero keeps negative entries forever.
func WithNegativeTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.negativeTTL = ttl
	}
}

// WithNow overrides the wall clock used to stamp entries.
func WithNow(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithLogger sets the logger for load and flush diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// Cache is the in-memory geocode cache.
//
// Thread-safety: all methods are safe for concurrent use.
type Cache struct {
	backend     Backend
	entries     *xsync.MapOf[string, Entry]
	negativeTTL time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// New creates an empty cache over backend. A nil backend keeps the cache in
// memory only.
func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{
		backend: backend,
		entries: xsync.NewMapOf[string, Entry](),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the entry for token.
func (c *Cache) Get(token string) (Entry, bool) {
	e, ok := c.entries.Load(token)
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return Entry{}, false
	}
	if e.Negative {
		if c.expired(e, c.now()) {
			metrics.CacheLookups.WithLabelValues("expired").Inc()
			return Entry{}, false
		}
		metrics.CacheLookups.WithLabelValues("negative").Inc()
		return e, true
	}
	metrics.CacheLookups.WithLabelValues("positive").Inc()
	return e, true
}

func (c *Cache) expired(e Entry, now time.Time) bool {
	return e.Negative && c.negativeTTL > 0 && now.Sub(e.CachedAt) > c.negativeTTL
}

// Put stores e under token, stamping it with the current time when it has
// no timestamp. Literal coordinate tokens are ignored.
func (c *Cache) Put(token string, e Entry) {
	if _, literal := geo.ParseLiteral(token); literal {
		return
	}
	if e.CachedAt.IsZero() {
		e.CachedAt = c.now()
	}
	c.entries.Store(token, e)
	metrics.CacheEntries.Set(float64(c.entries.Size()))
}

// Load replaces the in-memory mapping with the persisted one. Failures are
// logged and leave the cache empty.
func (c *Cache) Load(ctx context.Context) {
	c.entries.Clear()
	defer func() { metrics.CacheEntries.Set(float64(c.entries.Size())) }()

	if c.backend == nil {
		return
	}
	loaded, err := c.backend.Load(ctx)
	if err != nil {
		c.logger.Warn("geocode cache load failed, starting empty", "error", err)
		return
	}

	now := c.now()
	for token, e := range loaded {
		if _, literal := geo.ParseLiteral(token); literal {
			continue
		}
		if e.CachedAt.IsZero() {
			e.CachedAt = now
		}
		c.entries.Store(token, e)
	}
	c.logger.Debug("geocode cache loaded", "entries", c.entries.Size())
}

// Flush persists the whole mapping. A failure is logged, counted and
// returned; callers on the engine path ignore it.
func (c *Cache) Flush(ctx context.Context) error {
	if c.backend == nil {
		return nil
	}
	snapshot := c.Snapshot()
	if err := c.backend.Save(ctx, snapshot); err != nil {
		metrics.CacheFlushFailures.Inc()
		c.logger.Warn("geocode cache flush failed", "entries", len(snapshot), "error", err)
		return err
	}
	c.logger.Debug("geocode cache flushed", "entries", len(snapshot))
	return nil
}

// Snapshot returns a copy of every entry.
func (c *Cache) Snapshot() map[string]Entry {
	out := make(map[string]Entry, c.entries.Size())
	c.entries.Range(func(token string, e Entry) bool {
		out[token] = e
		return true
	})
	return out
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	return c.entries.Size()
}

// Stats counts positive, negative and expired negative entries.
func (c *Cache) Stats() Stats {
	var s Stats
	now := c.now()
	c.entries.Range(func(_ string, e Entry) bool {
		if e.Negative {
			s.Negative++
			if c.expired(e, now) {
				s.Expired++
			}
		} else {
			s.Positive++
		}
		return true
	})
	return s
}

// PurgeNegative deletes every negative entry and returns the removed tokens
// in sorted order.
func (c *Cache) PurgeNegative() []string {
	var purged []string
	c.entries.Range(func(token string, e Entry) bool {
		if e.Negative {
			purged = append(purged, token)
		}
		return true
	})
	for _, token := range purged {
		c.entries.Delete(token)
	}
	sort.Strings(purged)
	metrics.CacheEntries.Set(float64(c.entries.Size()))
	return purged
}
