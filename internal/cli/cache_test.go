package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seededCache = `{
	"Albany": {"center": [-73.75, 42.65], "label": "Albany, NY"},
	"Atlantis": null,
	"Nowhereville": null
}`

func TestCacheStats(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.json")
	seedCache(t, cachePath, seededCache)
	cfg := writeConfig(t, "", cachePath)

	out, _, err := execute(context.Background(), "--config", cfg, "cache", "stats")
	require.NoError(t, err)
	assert.Equal(t, "backend:  file\npositive: 1\nnegative: 2\n", out)
}

func TestCacheStats_ExpiredNegatives(t *testing.T) {
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "cache.json")
	seedCache(t, cachePath, `{
	"Atlantis": {"negative": true, "cachedAt": 1704067200},
	"Nowhereville": null
}`)
	cfg := filepath.Join(dir, "atlas.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`geocoder:
  provider: none
cache:
  backend: file
  path: `+cachePath+`
  negative_ttl: 1h
`), 0o644))

	out, _, err := execute(context.Background(), "--config", cfg, "cache", "stats")
	require.NoError(t, err)
	assert.Equal(t, "backend:  file\npositive: 0\nnegative: 2\nexpired:  1\n", out)
}

func TestCacheStats_SQLiteReportsStoredRows(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "atlas.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`geocoder:
  provider: none
cache:
  backend: sqlite
  path: `+filepath.Join(dir, "cache.db")+`
`), 0o644))

	_, _, err := execute(context.Background(), "--config", cfg, "resolve", "Atlantis", "Nowhereville")
	require.NoError(t, err)

	out, _, err := execute(context.Background(), "--config", cfg, "--format", "json", "cache", "stats")
	require.NoError(t, err)

	var resp struct {
		Data CacheStats `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "sqlite", resp.Data.Backend)
	assert.Equal(t, 0, resp.Data.Positive)
	assert.Equal(t, 2, resp.Data.Negative)
	require.NotNil(t, resp.Data.StoredNegative)
	assert.Equal(t, 2, *resp.Data.StoredNegative)
}

func TestCachePurgeNegative(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.json")
	seedCache(t, cachePath, seededCache)
	cfg := writeConfig(t, "", cachePath)

	out, _, err := execute(context.Background(), "--config", cfg, "--format", "json", "cache", "purge-negative")
	require.NoError(t, err)

	var resp struct {
		Data PurgeReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []string{"Atlantis", "Nowhereville"}, resp.Data.Purged)

	data, err := os.ReadFile(cachePath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Albany": {"center": [-73.75, 42.65], "label": "Albany, NY"}}`, string(data))

	out, _, err = execute(context.Background(), "--config", cfg, "cache", "purge-negative")
	require.NoError(t, err)
	assert.Equal(t, "No negative entries.\n", out)
}

func TestCacheUnknownBackend(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "atlas.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("cache:\n  backend: memcached\n"), 0o644))

	_, _, err := execute(context.Background(), "--config", cfg, "cache", "stats")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "cache.backend")
}
