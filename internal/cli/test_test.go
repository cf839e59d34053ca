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

var harnessScenarios = filepath.Join("..", "harness", "testdata", "scenarios")

const passingScenario = `name: one-marker
description: a single incident becomes a single marker
steps:
  - snapshot:
      - {incidentId: A, latitude: 40.7, longitude: -74}
assertions:
  - type: marker_count
    count: 1
`

const failingScenario = `name: wrong-count
description: expects a marker that never appears
steps:
  - snapshot: []
assertions:
  - type: marker_count
    count: 1
`

func scenarioDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "scenarios")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestTestCommand_HarnessScenariosMatchGolden(t *testing.T) {
	out, _, err := execute(context.Background(), "test", harnessScenarios)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ snapshot-delta")
	assert.Contains(t, out, "Test Summary: 3 passed, 0 failed, 3 total")
}

func TestTestCommand_Filter(t *testing.T) {
	out, _, err := execute(context.Background(), "test", harnessScenarios, "--filter", "keep-*")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ keep-missing")
	assert.Contains(t, out, "1 total")

	out, _, err = execute(context.Background(), "test", harnessScenarios, "--filter", "nothing-*")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios matched.")
}

func TestTestCommand_JSON(t *testing.T) {
	out, _, err := execute(context.Background(), "--format", "json", "test", harnessScenarios)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.Data.Passed)
	assert.Len(t, resp.Data.Scenarios, 3)
}

func TestTestCommand_FailingAssertions(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"a.yaml": passingScenario, "b.yaml": failingScenario})

	out, _, err := execute(context.Background(), "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ one-marker")
	assert.Contains(t, out, "✗ wrong-count")
	assert.Contains(t, out, "marker_count")
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")
}

func TestTestCommand_UpdateThenCompare(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"a.yaml": passingScenario})
	golden := filepath.Join(filepath.Dir(dir), "golden", "one-marker.golden")

	out, _, err := execute(context.Background(), "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "golden updated")
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"op": "add A (-74,40.7) #888"`)

	_, _, err = execute(context.Background(), "test", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte("{}\n"), 0o644))
	out, _, err = execute(context.Background(), "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommand_CommandErrors(t *testing.T) {
	_, _, err := execute(context.Background(), "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")

	dir := scenarioDir(t, map[string]string{"bad.yaml": "name: x\n"})
	_, _, err = execute(context.Background(), "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "bad.yaml")

	_, _, err = execute(context.Background(), "test", harnessScenarios, "--filter", "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}

func TestTestCommand_MissingArgs(t *testing.T) {
	_, _, err := execute(context.Background(), "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}
