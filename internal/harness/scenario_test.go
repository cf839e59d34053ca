package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScenario_Valid(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: valid
description: one of each step
keep_missing: true
negative_ttl: 1h
geocoder:
  Albany: {lon: -73.75, lat: 42.65, label: "Albany, NY"}
steps:
  - snapshot: []
  - delta: {incidentId: A}
  - routes: [{assetId: bus-1, nodes: [Albany, "41,-73"]}]
  - select: bus-1
  - clear_selection: true
  - advance: 90m
  - purge_negative: true
assertions:
  - type: alert_count
    count: 1
`))
	require.NoError(t, err)

	assert.True(t, s.KeepMissing)
	assert.Equal(t, time.Hour, s.NegativeTTL)
	assert.Equal(t, Place{Lon: -73.75, Lat: 42.65, Label: "Albany, NY"}, s.Geocoder["Albany"])

	kinds := make([]string, len(s.Steps))
	for i, step := range s.Steps {
		kinds[i] = step.Kind()
	}
	assert.Equal(t, []string{
		StepSnapshot, StepDelta, StepRoutes, StepSelect, StepClear, StepAdvance, StepPurgeNegative,
	}, kinds)
	assert.Equal(t, 90*time.Minute, s.Steps[5].Advance)
	assert.Equal(t, "bus-1", (*s.Steps[2].Routes)[0].AssetID)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "name: x\ndescription: y\nstep: []\n", "field step not found"},
		{"missing name", "description: y\nsteps: [{select: a}]\nassertions: [{type: alert_count}]\n", "name is required"},
		{"missing description", "name: x\nsteps: [{select: a}]\nassertions: [{type: alert_count}]\n", "description is required"},
		{"no steps", "name: x\ndescription: y\nassertions: [{type: alert_count}]\n", "steps list is required"},
		{"no assertions", "name: x\ndescription: y\nsteps: [{select: a}]\n", "assertions list is required"},
		{"empty step", "name: x\ndescription: y\nsteps: [{}]\nassertions: [{type: alert_count}]\n", "steps[0]: no action"},
		{"two actions", "name: x\ndescription: y\nsteps: [{select: a, clear_selection: true}]\nassertions: [{type: alert_count}]\n", "more than one action"},
		{"negative advance", "name: x\ndescription: y\nsteps: [{advance: -1h}]\nassertions: [{type: alert_count}]\n", "advance must be positive"},
		{"unknown assertion", "name: x\ndescription: y\nsteps: [{select: a}]\nassertions: [{type: vibes}]\n", "unknown assertion type"},
		{"contains without op", "name: x\ndescription: y\nsteps: [{select: a}]\nassertions: [{type: trace_contains}]\n", "op is required"},
		{"order without ops", "name: x\ndescription: y\nsteps: [{select: a}]\nassertions: [{type: trace_order}]\n", "ops list is required"},
		{"lookup without token", "name: x\ndescription: y\nsteps: [{select: a}]\nassertions: [{type: lookup_count}]\n", "token is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenarios_SortedAndStrict(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("b.yaml", "name: b\ndescription: d\nsteps: [{select: a}]\nassertions: [{type: alert_count}]\n")
	write("a.yml", "name: a\ndescription: d\nsteps: [{select: a}]\nassertions: [{type: alert_count}]\n")
	write("notes.txt", "ignored")

	scenarios, err := LoadScenarios(dir)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "a", scenarios[0].Name)
	assert.Equal(t, "b", scenarios[1].Name)

	write("c.yaml", "name: c\n")
	_, err = LoadScenarios(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "c.yaml")
}

func TestLoadScenarios_EmptyDir(t *testing.T) {
	_, err := LoadScenarios(t.TempDir())
	assert.Error(t, err)
}
