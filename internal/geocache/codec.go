package geocache

import (
	"time"

	"github.com/paulmach/orb"

	"github.com/roach88/atlas/internal/geo"
)

// record is the persisted JSON shape of an entry:
// {"center":[lon,lat],"label":"..."} when resolved and
// {"negative":true,"cachedAt":unix} when not. CachedAt keeps the negative
// retry window across restarts.
type record struct {
	Center   []float64 `json:"center,omitempty"`
	Label    string    `json:"label,omitempty"`
	Negative bool      `json:"negative,omitempty"`
	CachedAt int64     `json:"cachedAt,omitempty"`
}

func encode(e Entry) record {
	r := record{Negative: e.Negative}
	if !e.Negative {
		r.Center = []float64{e.Point[0], e.Point[1]}
		r.Label = e.Label
	}
	if !e.CachedAt.IsZero() {
		r.CachedAt = e.CachedAt.Unix()
	}
	return r
}

// decode converts a persisted record. A nil record is a negative entry with
// no timestamp; Cache.Load stamps it.
// Records with a malformed center are rejected.
func decode(r *record) (Entry, bool) {
	if r == nil {
		return NegativeEntry(), true
	}
	var e Entry
	if r.CachedAt > 0 {
		e.CachedAt = time.Unix(r.CachedAt, 0).UTC()
	}
	if r.Negative {
		e.Negative = true
		return e, true
	}
	if len(r.Center) != 2 || !geo.Finite(r.Center...) {
		return Entry{}, false
	}
	e.Point = orb.Point{r.Center[0], r.Center[1]}
	e.Label = r.Label
	return e, true
}
