package incident

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Record is the incident shape returned by listIncidents and pushed by
// onNewIncident. Optional fields are pointers so that an absent value can be
// told apart from an empty one.
type Record struct {
	ID        string    `json:"incidentId"`
	Location  *string   `json:"location"`
	Latitude  Number    `json:"latitude"`
	Longitude Number    `json:"longitude"`
	Summary   *string   `json:"summary"`
	Severity  *string   `json:"severity"`
	Timestamp Timestamp `json:"timestamp"`
}

// Number accepts a JSON number, a numeric string, a boolean or null.
// Strings that are not numbers decode to NaN rather than failing the whole
// payload.
type Number struct {
	Value float64
	Valid bool
}

// Float returns the decoded value, or 0 when the field was absent or null.
func (n Number) Float() float64 {
	if !n.Valid {
		return 0
	}
	return n.Value
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*n = Number{}
		return nil
	case bytes.Equal(b, []byte("true")):
		*n = Number{Value: 1, Valid: true}
		return nil
	case bytes.Equal(b, []byte("false")):
		*n = Number{Value: 0, Valid: true}
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = Number{Value: parseLoose(s), Valid: true}
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		*n = Number{Value: math.NaN(), Valid: true}
		return nil
	}
	*n = Number{Value: v, Valid: true}
	return nil
}

func parseLoose(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// MillisecondThreshold separates unix-second from unix-millisecond
// timestamps: numeric values at or above it are read as milliseconds.
const MillisecondThreshold = 1e12

// Timestamp accepts unix seconds, unix milliseconds, numeric strings and
// RFC 3339 strings. Anything else decodes to an absent timestamp.
type Timestamp struct {
	t *time.Time
}

// Time returns the decoded time or nil.
func (ts Timestamp) Time() *time.Time {
	return ts.t
}

// UnmarshalJSON implements json.Unmarshaler.
func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	ts.t = nil
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		ts.t = parseTimestamp(s)
		return nil
	}
	ts.t = parseTimestamp(string(b))
	return nil
}

func parseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		var t time.Time
		if v >= MillisecondThreshold {
			t = time.UnixMilli(int64(v)).UTC()
		} else {
			t = time.Unix(int64(v), 0).UTC()
		}
		return &t
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t = t.UTC()
		return &t
	}
	return nil
}
