package route

import (
	"sort"
	"strings"
)

// stopWords are dropped from a location before matching it against route
// waypoints.
var stopWords = map[string]struct{}{
	"port": {}, "of": {}, "international": {}, "airport": {}, "center": {},
	"hub": {}, "warehouse": {}, "terminal": {}, "de": {}, "es": {}, "el": {},
}

// SignificantWords returns the lower-cased words of location without commas
// and stop words.
func SignificantWords(location string) []string {
	cleaned := strings.ReplaceAll(strings.ToLower(location), ",", "")
	var out []string
	for _, w := range strings.Fields(cleaned) {
		if _, stop := stopWords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}

// Affected returns the sorted, deduplicated asset IDs of routes that pass
// through location: a route matches when any significant word of location
// is a substring of any of its lower-cased waypoints.
func Affected(location string, records []Record) []string {
	words := SignificantWords(location)
	if len(words) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	for _, rec := range records {
		if rec.AssetID == "" {
			continue
		}
		if matches(words, rec.Nodes) {
			seen[rec.AssetID] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func matches(words, nodes []string) bool {
	for _, node := range nodes {
		n := strings.ToLower(node)
		for _, w := range words {
			if strings.Contains(n, w) {
				return true
			}
		}
	}
	return false
}
