package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func graphqlServer(t *testing.T, status int, body string) (*httptest.Server, *gqlRequest, *http.Header) {
	t.Helper()
	var got gqlRequest
	var hdr http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr = r.Header.Clone()
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &got)
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &got, &hdr
}

func TestHTTPSource_FetchSnapshot(t *testing.T) {
	srv, req, hdr := graphqlServer(t, http.StatusOK, `{"data":{"listIncidents":{"items":[
		{"incidentId":"a","location":"Port of Rotterdam","latitude":"51.9","longitude":4.4,"summary":"Crane outage","severity":"High","timestamp":"2024-05-01T10:00:00Z"},
		{"incidentId":"","location":"dropped"},
		{"incidentId":"b","latitude":null}
	],"nextToken":"page-2"}}}`)

	src := NewHTTPSource(srv.URL, "secret", nil, nil)
	snap, err := src.FetchSnapshot(context.Background())

	require.NoError(t, err)
	assert.Equal(t, ListIncidentsQuery, req.Query)
	assert.Equal(t, "secret", hdr.Get("x-api-key"))
	assert.Equal(t, "page-2", snap.NextToken)
	require.Len(t, snap.Incidents, 2)
	assert.Equal(t, "a", snap.Incidents[0].ID)
	assert.Equal(t, 51.9, snap.Incidents[0].Latitude)
	assert.Equal(t, "Unknown", snap.Incidents[1].Location)
	assert.Equal(t, 0.0, snap.Incidents[1].Latitude)
}

func TestHTTPSource_GraphQLErrorsWithDataStillUsed(t *testing.T) {
	srv, _, _ := graphqlServer(t, http.StatusOK, `{"data":{"listIncidents":{"items":[{"incidentId":"a"}]}},"errors":[{"message":"partial"}]}`)

	snap, err := NewHTTPSource(srv.URL, "", nil, nil).FetchSnapshot(context.Background())

	require.NoError(t, err)
	assert.Len(t, snap.Incidents, 1)
}

func TestHTTPSource_GraphQLErrorsWithoutData(t *testing.T) {
	srv, _, _ := graphqlServer(t, http.StatusOK, `{"data":null,"errors":[{"message":"Unauthorized"}]}`)

	_, err := NewHTTPSource(srv.URL, "", nil, nil).FetchSnapshot(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unauthorized")
}

func TestHTTPSource_Non2xx(t *testing.T) {
	srv, _, _ := graphqlServer(t, http.StatusBadGateway, `oops`)

	_, err := NewHTTPSource(srv.URL, "", nil, nil).FetchSnapshot(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPSource_FetchRoutes(t *testing.T) {
	srv, req, _ := graphqlServer(t, http.StatusOK, `{"data":{"listRoutes":{"items":[
		{"assetId":"VSL-1","type":"vessel","nodes":["Shanghai","Port of Rotterdam"]},
		{"assetId":"TRK-1","nodes":["40,-74"]}
	]}}}`)

	records, err := NewHTTPSource(srv.URL, "", nil, nil).FetchRoutes(context.Background())

	require.NoError(t, err)
	assert.Equal(t, ListRoutesQuery, req.Query)
	require.Len(t, records, 2)
	assert.Equal(t, "VSL-1", records[0].AssetID)
	assert.Equal(t, []string{"Shanghai", "Port of Rotterdam"}, records[0].Nodes)
	assert.Equal(t, "", records[1].Type)
}
