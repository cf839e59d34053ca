package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of snapshots, deltas and route refreshes
// run against the reconciler, the marker adapter and the route pipeline,
// with assertions over the resulting surface trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// KeepMissing merges snapshots instead of replacing the set.
	KeepMissing bool `yaml:"keep_missing,omitempty"`

	// NegativeTTL is the geocode cache's negative-entry retry window.
	// Zero means negative entries never expire.
	NegativeTTL time.Duration `yaml:"negative_ttl,omitempty"`

	// Geocoder scripts the external lookup. Tokens not listed find nothing.
	Geocoder map[string]Place `yaml:"geocoder,omitempty"`

	// Steps run in order. Each step names exactly one action.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Place is a scripted geocoder answer.
type Place struct {
	Lon   float64 `yaml:"lon"`
	Lat   float64 `yaml:"lat"`
	Label string  `yaml:"label"`
}

// RouteRecord is a route as written in a scenario.
type RouteRecord struct {
	AssetID string   `yaml:"assetId"`
	Type    string   `yaml:"type,omitempty"`
	Nodes   []string `yaml:"nodes"`
}

// Step is one scenario action. Incident payloads are written in the wire
// shape (incidentId, location, latitude, ...) and go through the same loose
// decoding as backend responses, so `latitude: "bogus"` is a non-finite
// coordinate.
type Step struct {
	Snapshot      *[]map[string]any `yaml:"snapshot,omitempty"`
	Delta         map[string]any    `yaml:"delta,omitempty"`
	Routes        *[]RouteRecord    `yaml:"routes,omitempty"`
	Select        string            `yaml:"select,omitempty"`
	Clear         bool              `yaml:"clear_selection,omitempty"`
	Advance       time.Duration     `yaml:"advance,omitempty"`
	PurgeNegative bool              `yaml:"purge_negative,omitempty"`
}

// Step kinds.
const (
	StepSnapshot      = "snapshot"
	StepDelta         = "delta"
	StepRoutes        = "routes"
	StepSelect        = "select"
	StepClear         = "clear_selection"
	StepAdvance       = "advance"
	StepPurgeNegative = "purge_negative"
)

// kinds returns the actions set on s.
func (s Step) kinds() []string {
	var out []string
	if s.Snapshot != nil {
		out = append(out, StepSnapshot)
	}
	if s.Delta != nil {
		out = append(out, StepDelta)
	}
	if s.Routes != nil {
		out = append(out, StepRoutes)
	}
	if s.Select != "" {
		out = append(out, StepSelect)
	}
	if s.Clear {
		out = append(out, StepClear)
	}
	if s.Advance != 0 {
		out = append(out, StepAdvance)
	}
	if s.PurgeNegative {
		out = append(out, StepPurgeNegative)
	}
	return out
}

// Kind returns the step's action. Only meaningful on validated steps.
func (s Step) Kind() string {
	k := s.kinds()
	if len(k) != 1 {
		return ""
	}
	return k[0]
}

// Assertion validates trace or final state.
//
// Trace assertions match an op when it equals the pattern or starts with
// the pattern followed by a space, so "add A" matches "add A (-74,40.7) #d32f2f"
// but not "add AB ...".
type Assertion struct {
	// Type selects the check; see the Assert* constants.
	Type string `yaml:"type"`

	// Op is the pattern for trace_contains and trace_absent, and the
	// prefix for trace_count.
	Op string `yaml:"op,omitempty"`

	// Ops is the expected order for trace_order.
	Ops []string `yaml:"ops,omitempty"`

	// IDs is the expected list for incident_order and route_set.
	IDs []string `yaml:"ids,omitempty"`

	// Token names the waypoint for lookup_count.
	Token string `yaml:"token,omitempty"`

	// Value is the expected asset for highlighted ("" means none).
	Value string `yaml:"value,omitempty"`

	// Count is the expected number for the *_count assertions.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceAbsent   = "trace_absent"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertIncidentOrder = "incident_order"
	AssertMarkerCount   = "marker_count"
	AssertAlertCount    = "alert_count"
	AssertLookupCount   = "lookup_count"
	AssertRouteSet      = "route_set"
	AssertHighlighted   = "highlighted"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields (typos) and invalid steps are errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml and *.yml file in dir, sorted by path.
func LoadScenarios(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files in %s", dir)
	}

	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		out = append(out, s)
	}
	return out, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.NegativeTTL < 0 {
		return fmt.Errorf("negative_ttl must not be negative")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		switch k := step.kinds(); len(k) {
		case 0:
			return fmt.Errorf("steps[%d]: no action", i)
		case 1:
		default:
			return fmt.Errorf("steps[%d]: more than one action %v", i, k)
		}
		if step.Advance < 0 {
			return fmt.Errorf("steps[%d]: advance must be positive", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains, AssertTraceAbsent, AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for %s", index, a.Type)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertLookupCount:
		if a.Token == "" {
			return fmt.Errorf("assertions[%d]: token is required for lookup_count", index)
		}
	case AssertIncidentOrder, AssertRouteSet, AssertMarkerCount, AssertAlertCount, AssertHighlighted:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}
	return nil
}
