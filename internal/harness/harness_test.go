package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	scenarios, err := LoadScenarios(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "assertion failures: %v", result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "routes_negative_cache.yaml"))
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := MarshalSnapshot(s.Name, first)
	require.NoError(t, err)
	b, err := MarshalSnapshot(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_FailingAssertionsReported(t *testing.T) {
	s := &Scenario{
		Name:        "failing",
		Description: "expects a marker that is never drawn",
		Steps: []Step{
			{Snapshot: &[]map[string]any{
				{"incidentId": "A", "latitude": 1.5, "longitude": 2.5},
			}},
		},
		Assertions: []Assertion{
			{Type: AssertMarkerCount, Count: 2},
			{Type: AssertTraceContains, Op: "add B"},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "marker_count")
	assert.Contains(t, result.Errors[1], `op "add B"`)
}

func TestRun_DefaultsForMissingFields(t *testing.T) {
	s := &Scenario{
		Name:        "defaults",
		Description: "missing location and null coordinates",
		Steps: []Step{
			{Snapshot: &[]map[string]any{
				{"incidentId": "A", "latitude": nil},
			}},
		},
		Assertions: []Assertion{{Type: AssertMarkerCount, Count: 1}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "%v", result.Errors)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, "add A (0,0) #888", result.Trace[0].Op, "null coordinates are zero and drawable")
}

func TestRun_EmptySnapshotClearsSurface(t *testing.T) {
	s := &Scenario{
		Name:        "empty",
		Description: "an empty snapshot removes every marker",
		Steps: []Step{
			{Snapshot: &[]map[string]any{{"incidentId": "A", "latitude": 1, "longitude": 1}}},
			{Snapshot: &[]map[string]any{}},
		},
		Assertions: []Assertion{
			{Type: AssertMarkerCount, Count: 0},
			{Type: AssertIncidentOrder},
			{Type: AssertTraceOrder, Ops: []string{"add A", "remove A"}},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "%v", result.Errors)
}
