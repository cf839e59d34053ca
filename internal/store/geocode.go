package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/roach88/atlas/internal/geo"
	"github.com/roach88/atlas/internal/geocache"
)

var _ geocache.Backend = (*Store)(nil)

// Load reads every cached token. Rows with non-finite coordinates are
// skipped.
func (s *Store) Load(ctx context.Context) (map[string]geocache.Entry, error) {
	rows, err := s.Query(ctx, `
		SELECT token, lon, lat, label, negative, cached_at
		FROM geocode_cache
		ORDER BY token ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query geocode_cache: %w", err)
	}
	defer rows.Close()

	out := make(map[string]geocache.Entry)
	for rows.Next() {
		var (
			token    string
			lon, lat sql.NullFloat64
			label    string
			negative bool
			cachedAt int64
		)
		if err := rows.Scan(&token, &lon, &lat, &label, &negative, &cachedAt); err != nil {
			return nil, fmt.Errorf("scan geocode_cache: %w", err)
		}

		e := geocache.Entry{Label: label, Negative: negative}
		if cachedAt > 0 {
			e.CachedAt = time.Unix(cachedAt, 0).UTC()
		}
		if !negative {
			if !lon.Valid || !lat.Valid || !geo.Finite(lon.Float64, lat.Float64) {
				continue
			}
			e.Point = orb.Point{lon.Float64, lat.Float64}
		}
		out[token] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate geocode_cache: %w", err)
	}
	return out, nil
}

// Save replaces the table contents with entries in one transaction.
func (s *Store) Save(ctx context.Context, entries map[string]geocache.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM geocode_cache"); err != nil {
		return fmt.Errorf("clear geocode_cache: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO geocode_cache (token, lon, lat, label, negative, cached_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for token, e := range entries {
		var lon, lat sql.NullFloat64
		if !e.Negative {
			lon = sql.NullFloat64{Float64: e.Point[0], Valid: true}
			lat = sql.NullFloat64{Float64: e.Point[1], Valid: true}
		}
		var cachedAt int64
		if !e.CachedAt.IsZero() {
			cachedAt = e.CachedAt.Unix()
		}
		if _, err := stmt.ExecContext(ctx, token, lon, lat, e.Label, e.Negative, cachedAt); err != nil {
			return fmt.Errorf("insert %q: %w", token, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CountNegative returns the number of negative rows.
func (s *Store) CountNegative(ctx context.Context) (int, error) {
	rows, err := s.Query(ctx, "SELECT COUNT(*) FROM geocode_cache WHERE negative = ?", true)
	if err != nil {
		return 0, fmt.Errorf("count negative: %w", err)
	}
	defer rows.Close()

	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("scan count: %w", err)
		}
	}
	return n, rows.Err()
}
