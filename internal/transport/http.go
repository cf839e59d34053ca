package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/roach88/atlas/internal/incident"
	"github.com/roach88/atlas/internal/route"
)

// HTTPSource queries the GraphQL endpoint over HTTP POST.
type HTTPSource struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *slog.Logger
}

var (
	_ Fetcher      = (*HTTPSource)(nil)
	_ RouteFetcher = (*HTTPSource)(nil)
)

// NewHTTPSource creates a source for endpoint authenticated with apiKey.
// A nil client gets a 10 second timeout.
func NewHTTPSource(endpoint, apiKey string, client *http.Client, logger *slog.Logger) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSource{endpoint: endpoint, apiKey: apiKey, client: client, logger: logger}
}

// FetchSnapshot runs listIncidents and normalizes the items.
func (s *HTTPSource) FetchSnapshot(ctx context.Context) (Snapshot, error) {
	var data struct {
		ListIncidents struct {
			Items     []incident.Record `json:"items"`
			NextToken *string           `json:"nextToken"`
		} `json:"listIncidents"`
	}
	if err := s.do(ctx, ListIncidentsQuery, &data); err != nil {
		return Snapshot{}, fmt.Errorf("list incidents: %w", err)
	}

	snap := Snapshot{Incidents: incident.NormalizeAll(data.ListIncidents.Items)}
	if data.ListIncidents.NextToken != nil {
		snap.NextToken = *data.ListIncidents.NextToken
		s.logger.Debug("snapshot has more pages, not following", "next_token", snap.NextToken)
	}
	return snap, nil
}

// FetchRoutes runs listRoutes.
func (s *HTTPSource) FetchRoutes(ctx context.Context) ([]route.Record, error) {
	var data struct {
		ListRoutes struct {
			Items []route.Record `json:"items"`
		} `json:"listRoutes"`
	}
	if err := s.do(ctx, ListRoutesQuery, &data); err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	return data.ListRoutes.Items, nil
}

// do posts query and decodes the data member into out. GraphQL errors are
// logged; they only fail the call when no data came back.
func (s *HTTPSource) do(ctx context.Context, query string, out any) error {
	body, err := json.Marshal(gqlRequest{Query: query})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("x-api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("graphql endpoint returned %d", resp.StatusCode)
	}

	var r gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(r.Errors) > 0 {
		s.logger.Warn("graphql errors", "errors", r.errorText())
	}
	if !r.hasData() {
		if len(r.Errors) > 0 {
			return fmt.Errorf("graphql: %s", r.errorText())
		}
		return fmt.Errorf("graphql: empty data")
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
