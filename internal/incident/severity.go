package incident

import (
	"strings"

	"golang.org/x/text/cases"
)

// Severity is the classified form of the open severity vocabulary.
type Severity string

const (
	SeverityHigh    Severity = "high"
	SeverityMedium  Severity = "medium"
	SeverityLow     Severity = "low"
	SeverityUnknown Severity = "unknown"
)

// Classify maps a free-text severity to a class by case-insensitive substring
// match, checked in the order high, medium, low.
func Classify(raw string) Severity {
	// Casers are stateful, so one per call.
	folded := cases.Fold().String(raw)
	switch {
	case strings.Contains(folded, "high"):
		return SeverityHigh
	case strings.Contains(folded, "medium"):
		return SeverityMedium
	case strings.Contains(folded, "low"):
		return SeverityLow
	default:
		return SeverityUnknown
	}
}

// Marker colours per severity class.
const (
	ColorHigh    = "#d32f2f"
	ColorMedium  = "#f9a825"
	ColorLow     = "#1976d2"
	ColorUnknown = "#666"
	ColorNone    = "#888"
)

// Color returns the marker colour for a raw severity value.
func Color(raw string) string {
	if raw == "" {
		return ColorNone
	}
	switch Classify(raw) {
	case SeverityHigh:
		return ColorHigh
	case SeverityMedium:
		return ColorMedium
	case SeverityLow:
		return ColorLow
	default:
		return ColorUnknown
	}
}
