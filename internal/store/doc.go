// Package store provides SQL-backed durable storage for the geocode cache.
//
// SQLite (mattn/go-sqlite3) is the default; Postgres (lib/pq) is available
// for shared deployments. Both use the same embedded schema. Queries are
// written with ? placeholders and rebound to $n for Postgres.
//
// # Database Configuration (SQLite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - user_version: schema migration counter
//
// Store implements geocache.Backend: Save replaces the whole table inside a
// transaction so a failed flush leaves the previous contents intact.
package store
