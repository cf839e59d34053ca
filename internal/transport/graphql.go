package transport

import (
	"encoding/json"
	"strings"
)

const incidentFields = `incidentId location latitude longitude summary severity timestamp`

// Queries sent to the backend.
const (
	ListIncidentsQuery = `query ListIncidents { listIncidents { items { ` + incidentFields + ` } nextToken } }`
	ListRoutesQuery    = `query ListRoutes { listRoutes { items { assetId type nodes } } }`
	OnNewIncidentQuery = `subscription OnNewIncident { onNewIncident { ` + incidentFields + ` } }`
)

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

func (r gqlResponse) errorText() string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

func (r gqlResponse) hasData() bool {
	return len(r.Data) > 0 && string(r.Data) != "null"
}
