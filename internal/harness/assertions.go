package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the full trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] step %d: %s\n", event.Seq, event.Step, event.Op)
		}
	}

	return buf.String()
}

// matchOp reports whether op equals pattern or starts with pattern and a
// space.
func matchOp(op, pattern string) bool {
	return op == pattern || strings.HasPrefix(op, pattern+" ")
}

func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if matchOp(event.Op, a.Op) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("op %q", a.Op),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

func assertTraceAbsent(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if matchOp(event.Op, a.Op) {
			return &AssertionError{
				Type:     AssertTraceAbsent,
				Expected: fmt.Sprintf("no op %q", a.Op),
				Actual:   fmt.Sprintf("found at seq %d: %s", event.Seq, event.Op),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceOrder checks that the ops appear in order. Other ops may
// appear between them.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(a.Ops) && matchOp(event.Op, a.Ops[next]) {
			next++
		}
	}
	if next == len(a.Ops) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("ops in order: %q", a.Ops),
		Actual:   fmt.Sprintf("matched %d, then no %q", next, a.Ops[next]),
		Trace:    trace,
	}
}

// assertTraceCount counts ops that match a.Op.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	n := 0
	for _, event := range trace {
		if matchOp(event.Op, a.Op) {
			n++
		}
	}
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%d x %q", a.Count, a.Op),
		Actual:   fmt.Sprintf("%d", n),
		Trace:    trace,
	}
}

func assertEqualInt(kind string, want, got int) error {
	if want == got {
		return nil
	}
	return &AssertionError{Type: kind, Expected: fmt.Sprint(want), Actual: fmt.Sprint(got)}
}

func assertEqualIDs(kind string, want, got []string) error {
	if want == nil {
		want = []string{}
	}
	if slices.Equal(want, got) {
		return nil
	}
	return &AssertionError{Type: kind, Expected: fmt.Sprint(want), Actual: fmt.Sprint(got)}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns one message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	st := result.State

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceAbsent:
			err = assertTraceAbsent(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertIncidentOrder:
			err = assertEqualIDs(a.Type, a.IDs, st.Incidents)
		case AssertRouteSet:
			err = assertEqualIDs(a.Type, a.IDs, st.Routes)
		case AssertMarkerCount:
			err = assertEqualInt(a.Type, a.Count, st.Markers)
		case AssertAlertCount:
			err = assertEqualInt(a.Type, a.Count, st.Alerts)
		case AssertLookupCount:
			err = assertEqualInt(a.Type+" "+a.Token, a.Count, st.Lookups[a.Token])
		case AssertHighlighted:
			if st.Highlighted != a.Value {
				err = &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%q", a.Value), Actual: fmt.Sprintf("%q", st.Highlighted)}
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion[%d]: %s", i, err.Error()))
		}
	}

	return errs
}
