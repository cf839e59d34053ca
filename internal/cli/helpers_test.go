package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

const testIncidents = `{"data":{"listIncidents":{"items":[
	{"incidentId":"A","location":"Port of Albany","latitude":42.65,"longitude":-73.75,"summary":"Crane down","severity":"High","timestamp":"2024-05-01T10:00:00Z"},
	{"incidentId":"B","location":"Buffalo","latitude":"42.9","longitude":-78.9,"severity":"Low","timestamp":"2024-05-01T09:00:00Z"}
]}}}`

const testRoutes = `{"data":{"listRoutes":{"items":[
	{"assetId":"bus-1","type":"bus","nodes":["42.65,-73.75","Albany","42.81,-73.94"]},
	{"assetId":"bus-2","type":"bus","nodes":["Buffalo Terminal","Rochester"]},
	{"assetId":"ferry-1","type":"ferry","nodes":["40.7,-74"]}
]}}}`

// fakeBackend serves listIncidents and listRoutes and counts requests.
type fakeBackend struct {
	*httptest.Server
	incidents atomic.Int32
	routes    atomic.Int32
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(string(body), "listRoutes") {
			b.routes.Add(1)
			io.WriteString(w, testRoutes)
			return
		}
		b.incidents.Add(1)
		io.WriteString(w, testIncidents)
	}))
	t.Cleanup(b.Close)
	return b
}

// writeConfig writes a config using the file cache at cachePath and no
// external geocoder.
func writeConfig(t *testing.T, endpoint, cachePath string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "atlas.yaml")
	cfg := fmt.Sprintf(`backend:
  endpoint: %q
geocoder:
  provider: none
cache:
  backend: file
  path: %q
server:
  addr: ""
log:
  level: warn
`, endpoint, cachePath)
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

// execute runs the root command with args. No .env file is read.
func execute(ctx context.Context, args ...string) (string, string, error) {
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}
