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

func seedCache(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestResolve_JSON(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.json")
	seedCache(t, cachePath, `{"Albany":{"center":[-73.75,42.65],"label":"Albany, NY"}}`)
	cfg := writeConfig(t, "", cachePath)

	out, _, err := execute(context.Background(), "--config", cfg, "--format", "json",
		"resolve", "40.7,-74", "Albany", "Nowhereville")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   ResolveReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Results, 3)

	literal := resp.Data.Results[0]
	assert.True(t, literal.Resolved)
	assert.Equal(t, &[2]float64{-74, 40.7}, literal.Point)
	assert.Equal(t, "40.7,-74", literal.Label)

	cached := resp.Data.Results[1]
	assert.True(t, cached.Resolved)
	assert.Equal(t, "Albany, NY", cached.Label)

	assert.False(t, resp.Data.Results[2].Resolved)
	assert.Nil(t, resp.Data.Results[2].Point)
	assert.Equal(t, 2, resp.Data.CacheEntries, "literals are never cached")

	data, err := os.ReadFile(cachePath)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"Albany": {"center": [-73.75, 42.65], "label": "Albany, NY"},
		"Nowhereville": null
	}`, string(data))
}

func TestResolve_Text(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.json")
	cfg := writeConfig(t, "", cachePath)

	out, _, err := execute(context.Background(), "--config", cfg, "resolve", "40.7,-74", "Atlantis")
	require.NoError(t, err)
	assert.Equal(t, "40.7,-74\t40.7,-74\t40.7,-74\nAtlantis\tunresolved\n", out)
}

func TestResolve_RequiresToken(t *testing.T) {
	_, _, err := execute(context.Background(), "resolve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestResolve_MapboxWithoutToken(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "atlas.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("geocoder:\n  provider: mapbox\ncache:\n  path: "+filepath.Join(dir, "c.json")+"\n"), 0o644))
	t.Setenv("ATLAS_MAPBOX_TOKEN", "")

	_, _, err := execute(context.Background(), "--config", cfg, "resolve", "Albany")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "mapbox_token is required")
}
